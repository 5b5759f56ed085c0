package registry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/weftlabs/weft/internal/storage/dirstore"
)

// FileStore persists tasks as directories with meta.json + history.jsonl.
type FileStore struct {
	ds *dirstore.DirStore
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{ds: dirstore.NewDirStore(baseDir, "task")}
}

// Create persists a new task to disk.
func (fs *FileStore) Create(t *Task) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	if t.ID == "" {
		t.ID = GenerateTaskID()
	}

	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := fs.ds.EnsureDir(t.ID); err != nil {
		return err
	}
	return fs.ds.WriteMeta(t.ID, t)
}

// Get reads task metadata by ID.
func (fs *FileStore) Get(id string) (*Task, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	var t Task
	if err := fs.ds.ReadMeta(id, &t); err != nil {
		if errors.Is(err, dirstore.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &t, nil
}

// List returns tasks matching the filter, oldest first.
func (fs *FileStore) List(filter ListFilter) ([]*Task, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	dirs, err := fs.ds.ListDirs()
	if err != nil {
		return nil, err
	}

	var tasks []*Task
	for _, name := range dirs {
		var t Task
		if err := fs.ds.ReadMeta(name, &t); err != nil {
			continue // skip corrupted tasks
		}
		if filter.State != "" && t.State != filter.State {
			continue
		}
		tasks = append(tasks, &t)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Update atomically rewrites a task's meta.json.
func (fs *FileStore) Update(t *Task) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	return fs.ds.WriteMeta(t.ID, t)
}

// Delete removes a task directory, history included.
func (fs *FileStore) Delete(id string) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	return fs.ds.RemoveDir(id)
}

// AppendOutcome appends one attempt record to the history log.
func (fs *FileStore) AppendOutcome(taskID string, o StepOutcome) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	return fs.ds.AppendJSONL(taskID, "history.jsonl", o)
}

// LoadHistory reads the full history log in append order.
func (fs *FileStore) LoadHistory(taskID string) ([]StepOutcome, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	return dirstore.LoadJSONL[StepOutcome](fs.ds, taskID, "history.jsonl")
}
