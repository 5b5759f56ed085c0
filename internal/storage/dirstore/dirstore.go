// Package dirstore provides primitives for directory-per-entity file stores:
// each entity owns a subdirectory holding a meta.json plus companion files.
package dirstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const metaFile = "meta.json"

// ErrNotExist is wrapped by ReadMeta when the entity directory is missing.
var ErrNotExist = errors.New("entity does not exist")

// DirStore is the shared base for file-backed stores.
type DirStore struct {
	mu         sync.RWMutex
	root       string
	entityName string // for error messages: "task", "schedule"
}

// NewDirStore creates a DirStore rooted at root.
func NewDirStore(root, entityName string) *DirStore {
	return &DirStore{root: root, entityName: entityName}
}

// Lock acquires an exclusive lock.
func (ds *DirStore) Lock() { ds.mu.Lock() }

// Unlock releases an exclusive lock.
func (ds *DirStore) Unlock() { ds.mu.Unlock() }

// RLock acquires a shared read lock.
func (ds *DirStore) RLock() { ds.mu.RLock() }

// RUnlock releases a shared read lock.
func (ds *DirStore) RUnlock() { ds.mu.RUnlock() }

// Dir returns the directory path for a given entity ID.
func (ds *DirStore) Dir(id string) string {
	return filepath.Join(ds.root, id)
}

// FilePath returns the path to a named file within an entity's directory.
func (ds *DirStore) FilePath(id, name string) string {
	return filepath.Join(ds.root, id, name)
}

// EnsureDir creates the entity directory (and parents) if it doesn't exist.
func (ds *DirStore) EnsureDir(id string) error {
	if err := os.MkdirAll(ds.Dir(id), 0o755); err != nil {
		return fmt.Errorf("create %s %s: %w", ds.entityName, id, err)
	}
	return nil
}

// RemoveDir removes the entity directory and all its contents.
func (ds *DirStore) RemoveDir(id string) error {
	return os.RemoveAll(ds.Dir(id))
}

// ListDirs returns the names of all entity subdirectories. A missing root
// is an empty store, not an error.
func (ds *DirStore) ListDirs() ([]string, error) {
	entries, err := os.ReadDir(ds.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s root: %w", ds.entityName, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// WriteMeta atomically replaces meta.json: the document is staged in a
// temp file and renamed into place, so readers never see a torn write.
func (ds *DirStore) WriteMeta(id string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s meta: %w", ds.entityName, err)
	}

	dst := ds.FilePath(id, metaFile)
	staging := dst + ".tmp"
	if err := os.WriteFile(staging, data, 0o644); err != nil {
		return fmt.Errorf("stage %s meta: %w", ds.entityName, err)
	}
	if err := os.Rename(staging, dst); err != nil {
		return fmt.Errorf("commit %s meta: %w", ds.entityName, err)
	}
	return nil
}

// ReadMeta reads and unmarshals meta.json into out. A missing entity is
// reported as ErrNotExist so callers can map it to their own taxonomy.
func (ds *DirStore) ReadMeta(id string, out any) error {
	data, err := os.ReadFile(ds.FilePath(id, metaFile))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s %s: %w", ds.entityName, id, ErrNotExist)
	}
	if err != nil {
		return fmt.Errorf("read %s meta: %w", ds.entityName, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s meta: %w", ds.entityName, err)
	}
	return nil
}

// AppendJSONL appends one JSON-encoded record as a line to a log file
// within an entity's directory, creating the file on first append.
func (ds *DirStore) AppendJSONL(id, filename string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s line: %w", filename, err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(ds.FilePath(id, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filename, err)
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("append %s: %w", filename, werr)
	}
	if cerr != nil {
		return fmt.Errorf("close %s: %w", filename, cerr)
	}
	return nil
}

// LoadJSONL reads every record from a JSONL log file, in append order.
// Lines that fail to decode are skipped: a torn trailing write must not
// make the rest of the log unreadable.
func LoadJSONL[T any](ds *DirStore, id, filename string) ([]T, error) {
	f, err := os.Open(ds.FilePath(id, filename))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()

	var records []T
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", filename, err)
	}
	return records, nil
}
