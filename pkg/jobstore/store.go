package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const driverSQLite = "sqlite"

// Open opens (and creates if needed) the SQLite-backed job database.
//
// Notes:
// - Local file paths are created if parent directories do not exist.
// - WAL and busy_timeout are applied for predictable behavior with a
//   concurrent server and CLI.
// - ":memory:" is supported for tests.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping job store: %w", err)
	}

	if err := configureLocal(ctx, db, dsn); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func buildDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("job store path is required")
	}
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "file:") {
		return path, nil
	}
	if err := ensureStoreDir(path); err != nil {
		return "", err
	}
	return "file:" + filepath.Clean(path), nil
}

func ensureStoreDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create job store dir: %w", err)
	}
	return nil
}

func configureLocal(ctx context.Context, db *sql.DB, dsn string) error {
	if dsn == ":memory:" {
		// A memory DB lives per connection; keep a single one.
		db.SetMaxOpenConns(1)
		return nil
	}
	pragmas := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("apply pragma: %w", err)
		}
	}
	return nil
}

// Store persists jobs and owns every lifecycle mutation.
//
// All writes go through the transition methods below; callers never assign
// job fields directly. Updates are last-writer-wins: progress updates are
// idempotent with respect to the processed count they carry.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an opened, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Create inserts a new job in pending with progress 0.
//
// The caller pairs this with queue submission in the same logical step; a
// failed submission must transition the job out of pending (see Fail).
func (s *Store) Create(ctx context.Context, queueID, slug string, totalItems int, owner string) (*Job, error) {
	queueID = strings.TrimSpace(queueID)
	if queueID == "" {
		return nil, errors.New("queue_id is required")
	}
	if strings.TrimSpace(slug) == "" {
		return nil, errors.New("slug is required")
	}
	if totalItems < 0 {
		return nil, errors.New("total_items must not be negative")
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs
		 (queue_id, slug, status, progress, total_items, processed_items, created_at, owner)
		 VALUES (?, ?, ?, 0, ?, 0, ?, ?)`,
		queueID, slug, string(StatusPending), totalItems, now, owner)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("job row id: %w", err)
	}

	return &Job{
		ID:         id,
		QueueID:    queueID,
		Slug:       slug,
		Status:     StatusPending,
		TotalItems: totalItems,
		CreatedAt:  now,
		Owner:      owner,
	}, nil
}

// Advance records batch progress. Allowed only while the job is not
// terminal; marks the job running and stamps started_at once, on first call.
// The processed count never moves backwards and is clamped to total_items.
func (s *Store) Advance(ctx context.Context, id int64, processed int) error {
	j, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Terminal() {
		return &StateError{ID: id, Status: j.Status, Op: "advance"}
	}

	if processed < j.ProcessedItems {
		processed = j.ProcessedItems
	}
	if j.TotalItems > 0 && processed > j.TotalItems {
		processed = j.TotalItems
	}

	started := j.StartedAt
	if started == nil {
		t := s.now()
		started = &t
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE jobs
		 SET status = ?, processed_items = ?, progress = ?, started_at = ?
		 WHERE id = ?`,
		string(StatusRunning), processed, progressFor(processed, j.TotalItems), started, id)
	if err != nil {
		return fmt.Errorf("advance job: %w", err)
	}
	return nil
}

// Complete marks the job completed with progress forced to 100 and stores
// the result payload as JSON.
func (s *Store) Complete(ctx context.Context, id int64, result any) error {
	j, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Terminal() {
		return &StateError{ID: id, Status: j.Status, Op: "complete"}
	}

	var payload sql.NullString
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result payload: %w", err)
		}
		payload = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE jobs
		 SET status = ?, progress = 100, processed_items = total_items,
		     result_data = ?, completed_at = ?
		 WHERE id = ?`,
		string(StatusCompleted), payload, s.now(), id)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail marks the job failed with the given message. Callable from pending
// or running only.
func (s *Store) Fail(ctx context.Context, id int64, message string) error {
	j, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Terminal() {
		return &StateError{ID: id, Status: j.Status, Op: "fail"}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		string(StatusFailed), message, s.now(), id)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// Cancel marks the job cancelled. Rejected if already terminal.
func (s *Store) Cancel(ctx context.Context, id int64) error {
	j, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Terminal() {
		return &StateError{ID: id, Status: j.Status, Op: "cancel"}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, completed_at = ? WHERE id = ?`,
		string(StatusCancelled), s.now(), id)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return nil
}

// Delete removes a job row. Only terminal jobs may be deleted.
func (s *Store) Delete(ctx context.Context, id int64) error {
	j, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !j.Terminal() {
		return &StateError{ID: id, Status: j.Status, Op: "delete"}
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}
