package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const jobColumns = `id, queue_id, slug, status, progress, total_items,
	processed_items, result_data, error_message, created_at, started_at,
	completed_at, owner`

// Get retrieves a job by its internal row id.
func (s *Store) Get(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// GetByQueueID retrieves a job by its external task-queue identifier.
func (s *Store) GetByQueueID(ctx context.Context, queueID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE queue_id = ?`, queueID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: queue_id %s", ErrNotFound, queueID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job by queue_id: %w", err)
	}
	return j, nil
}

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	Owner  string
	Status Status
	Slug   string
	Limit  int
}

// List returns jobs newest-first, optionally filtered.
func (s *Store) List(ctx context.Context, f Filter) ([]Job, error) {
	var where []string
	var args []any

	if f.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, f.Owner)
	}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, fmt.Errorf("unknown status filter: %s", f.Status)
		}
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Slug != "" {
		where = append(where, "slug = ?")
		args = append(args, f.Slug)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// Slugs returns the distinct operation slugs present in the store.
func (s *Store) Slugs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT slug FROM jobs ORDER BY slug ASC`)
	if err != nil {
		return nil, fmt.Errorf("list job slugs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scan slug: %w", err)
		}
		out = append(out, slug)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*Job, error) {
	var j Job
	var result, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := r.Scan(
		&j.ID, &j.QueueID, &j.Slug, &j.Status, &j.Progress, &j.TotalItems,
		&j.ProcessedItems, &result, &errMsg, &j.CreatedAt, &startedAt,
		&completedAt, &j.Owner)
	if err != nil {
		return nil, err
	}

	if result.Valid {
		j.ResultData = result.String
	}
	if errMsg.Valid {
		j.ErrorMessage = errMsg.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}
