// Package taskstore is the SQLite persistence of the development backend:
// the review-request shortlist, the task queue and finished results.
package taskstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a task or result does not exist
var ErrNotFound = errors.New("not found")

// ErrNotQueueing is returned when deleting a task that already started
var ErrNotQueueing = errors.New("task is not queueing")

// QueuedTask is a row of the queue table
type QueuedTask struct {
	ID        int64
	Status    domain.Status
	Params    []domain.TaskParam
	Progress  int
	CreatedAt time.Time
	StartedAt *time.Time
}

// Name renders the task name recorded in history
func (t QueuedTask) Name() string {
	return fmt.Sprintf("task %d", t.ID)
}

// Result is a finished task
type Result struct {
	TaskID      int64
	TaskName    string
	Status      domain.Status
	Params      []domain.TaskParam
	FailedTests []string
	Logs        []string
	FinishedAt  time.Time
}

// Store provides SQLite-backed persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// ClearShortlist removes every cached review request
func (s *Store) ClearShortlist() error {
	_, err := s.db.Exec(`DELETE FROM shortlist`)
	return err
}

// AddShortlist inserts or replaces review requests
func (s *Store) AddShortlist(prs []domain.ReviewRequest) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, pr := range prs {
		if _, err := tx.Exec(`
			INSERT INTO shortlist (number, title) VALUES (?, ?)
			ON CONFLICT(number) DO UPDATE SET title = excluded.title
		`, pr.Number, pr.Title); err != nil {
			return fmt.Errorf("insert #%d: %w", pr.Number, err)
		}
	}
	return tx.Commit()
}

// Shortlist returns the cached review requests, newest number first
func (s *Store) Shortlist() ([]domain.ReviewRequest, error) {
	rows, err := s.db.Query(`SELECT number, title FROM shortlist ORDER BY number DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prs []domain.ReviewRequest
	for rows.Next() {
		var pr domain.ReviewRequest
		if err := rows.Scan(&pr.Number, &pr.Title); err != nil {
			return nil, err
		}
		prs = append(prs, pr)
	}
	return prs, rows.Err()
}

// Enqueue appends a queueing task and returns its ID
func (s *Store) Enqueue(params []domain.TaskParam) (int64, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(`INSERT INTO queue (status, params, created_at) VALUES (?, ?, ?)`,
		string(domain.StatusQueueing), string(data), time.Now())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Queue returns every queued or running task in submission order
func (s *Store) Queue() ([]QueuedTask, error) {
	rows, err := s.db.Query(`SELECT id, status, params, progress, created_at, started_at FROM queue ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []QueuedTask
	for rows.Next() {
		t, err := scanQueued(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// DeleteQueued removes a task that has not started
func (s *Store) DeleteQueued(id int64) error {
	var status string
	err := s.db.QueryRow(`SELECT status FROM queue WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if domain.Status(status) != domain.StatusQueueing {
		return ErrNotQueueing
	}
	_, err = s.db.Exec(`DELETE FROM queue WHERE id = ? AND status = ?`, id, string(domain.StatusQueueing))
	return err
}

// Start marks the oldest queueing task running. Returns nil when none waits.
func (s *Store) Start() (*QueuedTask, error) {
	row := s.db.QueryRow(`SELECT id, status, params, progress, created_at, started_at FROM queue WHERE status = ? ORDER BY id LIMIT 1`,
		string(domain.StatusQueueing))
	t, err := scanQueued(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := s.db.Exec(`UPDATE queue SET status = ?, started_at = ? WHERE id = ?`,
		string(domain.StatusRunning), now, t.ID); err != nil {
		return nil, err
	}
	t.Status = domain.StatusRunning
	t.StartedAt = &now
	return t, nil
}

// Running returns the running task, nil when idle
func (s *Store) Running() (*QueuedTask, error) {
	row := s.db.QueryRow(`SELECT id, status, params, progress, created_at, started_at FROM queue WHERE status = ? ORDER BY id LIMIT 1`,
		string(domain.StatusRunning))
	t, err := scanQueued(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// SetProgress records the percentage of a running task
func (s *Store) SetProgress(id int64, percent int) error {
	_, err := s.db.Exec(`UPDATE queue SET progress = ? WHERE id = ?`, percent, id)
	return err
}

// Finish moves a task from the queue into the results
func (s *Store) Finish(r Result) error {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return err
	}
	failed, err := json.Marshal(r.FailedTests)
	if err != nil {
		return err
	}
	logs, err := json.Marshal(r.Logs)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO results (task_id, task_name, status, params, failed_tests, logs, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.TaskID, r.TaskName, string(r.Status), string(params), string(failed), string(logs), r.FinishedAt.Unix()); err != nil {
		return fmt.Errorf("insert result %d: %w", r.TaskID, err)
	}
	if _, err := tx.Exec(`DELETE FROM queue WHERE id = ?`, r.TaskID); err != nil {
		return err
	}
	return tx.Commit()
}

// History returns finished results, most recent first
func (s *Store) History(limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT task_id, task_name, status, params, failed_tests, logs, finished_at
		FROM results ORDER BY finished_at DESC, task_id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// GetResult returns the result of one task
func (s *Store) GetResult(id int64) (*Result, error) {
	row := s.db.QueryRow(`
		SELECT task_id, task_name, status, params, failed_tests, logs, finished_at
		FROM results WHERE task_id = ?
	`, id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQueued(row scanner) (*QueuedTask, error) {
	var t QueuedTask
	var status, params string
	var started sql.NullTime

	if err := row.Scan(&t.ID, &status, &params, &t.Progress, &t.CreatedAt, &started); err != nil {
		return nil, err
	}
	t.Status = domain.Status(status)
	if started.Valid {
		t.StartedAt = &started.Time
	}
	if err := json.Unmarshal([]byte(params), &t.Params); err != nil {
		return nil, fmt.Errorf("task %d params: %w", t.ID, err)
	}
	return &t, nil
}

func scanResult(row scanner) (*Result, error) {
	var r Result
	var status, params string
	var failed, logs sql.NullString
	var finished int64

	if err := row.Scan(&r.TaskID, &r.TaskName, &status, &params, &failed, &logs, &finished); err != nil {
		return nil, err
	}
	r.Status = domain.Status(status)
	r.FinishedAt = time.Unix(finished, 0)

	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return nil, fmt.Errorf("result %d params: %w", r.TaskID, err)
	}
	if failed.Valid && failed.String != "" && failed.String != "null" {
		if err := json.Unmarshal([]byte(failed.String), &r.FailedTests); err != nil {
			return nil, fmt.Errorf("result %d failed tests: %w", r.TaskID, err)
		}
	}
	if logs.Valid && logs.String != "" && logs.String != "null" {
		if err := json.Unmarshal([]byte(logs.String), &r.Logs); err != nil {
			return nil, fmt.Errorf("result %d logs: %w", r.TaskID, err)
		}
	}
	return &r, nil
}
