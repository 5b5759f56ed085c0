package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	objective   TEXT NOT NULL,
	state       TEXT NOT NULL,
	plan        TEXT NOT NULL DEFAULT '[]',
	cursor      INTEGER NOT NULL DEFAULT 0,
	checkpoint  TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	started_at  DATETIME,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS history (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id     TEXT NOT NULL,
	step_id     TEXT NOT NULL,
	attempt     INTEGER NOT NULL,
	result      TEXT NOT NULL,
	output      TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_task ON history(task_id, seq);
`

// SQLiteStore persists tasks and their history in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Create persists a new task and sets its CreatedAt and UpdatedAt.
func (s *SQLiteStore) Create(t *Task) error {
	if t.ID == "" {
		t.ID = GenerateTaskID()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	plan, _ := json.Marshal(t.Plan)
	checkpoint := ""
	if t.Checkpoint != nil {
		b, _ := json.Marshal(t.Checkpoint)
		checkpoint = string(b)
	}

	_, err := s.db.Exec(`
		INSERT INTO tasks
			(id, objective, state, plan, cursor, checkpoint, created_at, updated_at, started_at, finished_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Objective, string(t.State), string(plan), t.Cursor, checkpoint,
		t.CreatedAt, t.UpdatedAt, nullTime(t.StartedAt), nullTime(t.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID.
func (s *SQLiteStore) Get(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT * FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, err
}

// Update saves changes to an existing task.
func (s *SQLiteStore) Update(t *Task) error {
	plan, _ := json.Marshal(t.Plan)
	checkpoint := ""
	if t.Checkpoint != nil {
		b, _ := json.Marshal(t.Checkpoint)
		checkpoint = string(b)
	}

	res, err := s.db.Exec(`
		UPDATE tasks SET
			objective=?, state=?, plan=?, cursor=?, checkpoint=?,
			updated_at=?, started_at=?, finished_at=?
		WHERE id=?`,
		t.Objective, string(t.State), string(plan), t.Cursor, checkpoint,
		t.UpdatedAt, nullTime(t.StartedAt), nullTime(t.FinishedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	return nil
}

// List returns tasks matching the filter, oldest first.
func (s *SQLiteStore) List(filter ListFilter) ([]*Task, error) {
	q := strings.Builder{}
	q.WriteString("SELECT * FROM tasks WHERE 1=1")
	args := []any{}

	if filter.State != "" {
		q.WriteString(" AND state=?")
		args = append(args, string(filter.State))
	}
	q.WriteString(" ORDER BY created_at ASC")

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Delete removes a task and its history.
func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM tasks WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	_, err = s.db.Exec("DELETE FROM history WHERE task_id=?", id)
	return err
}

// AppendOutcome appends one attempt record to the task's history.
func (s *SQLiteStore) AppendOutcome(taskID string, o StepOutcome) error {
	_, err := s.db.Exec(`
		INSERT INTO history (task_id, step_id, attempt, result, output, error, started_at, finished_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		taskID, o.StepID, o.Attempt, string(o.Result), o.Output, o.Error,
		o.StartedAt, o.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// LoadHistory returns the task's history in append order.
func (s *SQLiteStore) LoadHistory(taskID string) ([]StepOutcome, error) {
	rows, err := s.db.Query(`
		SELECT step_id, attempt, result, output, error, started_at, finished_at
		FROM history WHERE task_id=? ORDER BY seq ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var history []StepOutcome
	for rows.Next() {
		var o StepOutcome
		var result string
		if err := rows.Scan(&o.StepID, &o.Attempt, &result, &o.Output, &o.Error, &o.StartedAt, &o.FinishedAt); err != nil {
			return nil, err
		}
		o.Result = ResultKind(result)
		history = append(history, o)
	}
	return history, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var t Task
	var state, planJSON, checkpointJSON string
	var startedAt, finishedAt sql.NullTime

	err := s.Scan(
		&t.ID, &t.Objective, &state, &planJSON, &t.Cursor, &checkpointJSON,
		&t.CreatedAt, &t.UpdatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	t.State = TaskState(state)
	_ = json.Unmarshal([]byte(planJSON), &t.Plan)
	if checkpointJSON != "" {
		var cp Checkpoint
		if json.Unmarshal([]byte(checkpointJSON), &cp) == nil {
			t.Checkpoint = &cp
		}
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		t.FinishedAt = &finishedAt.Time
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
