// Package history provides access to the pm_transitions table for
// querying past suspend/resume outcomes.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transition status values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// ErrNotFound is returned when a transition record does not exist.
var ErrNotFound = errors.New("history: transition not found")

// Transition represents one completed system power transition.
type Transition struct {
	ID           string          `json:"id"`
	Event        string          `json:"event"`
	Status       string          `json:"status"`
	Error        string          `json:"error,omitempty"`
	FailedDevice string          `json:"failed_device,omitempty"`
	FailedStep   string          `json:"failed_step,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
	DeviceCount  int             `json:"device_count"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	Failures     []DeviceFailure `json:"failures,omitempty"`
}

// DeviceFailure records one device callback failure within a transition.
type DeviceFailure struct {
	Device string `json:"device"`
	Step   string `json:"step"`
	Error  string `json:"error"`
}

// Filter controls which transitions to return.
type Filter struct {
	Event  string // optional: filter by event (suspend, freeze, hibernate, ...)
	Status string // optional: filter by status (success, failure)
	Limit  int    // default 50, max 200
	Offset int    // pagination offset
}

// ListResult contains the paginated transition results.
type ListResult struct {
	Transitions []Transition `json:"transitions"`
	Total       int          `json:"total"`
	Limit       int          `json:"limit"`
	Offset      int          `json:"offset"`
}

// Repository defines the interface for transition history operations.
type Repository interface {
	Create(ctx context.Context, tr *Transition) error
	Get(ctx context.Context, id string) (*Transition, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// SQLiteRepository stores transition history in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new transition history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a transition record and its device failures in one
// transaction. The ID is generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, tr *Transition) error {
	if tr.ID == "" {
		tr.ID = "pwr-" + uuid.NewString()[:8]
	}
	if tr.FinishedAt.IsZero() {
		tr.FinishedAt = time.Now().UTC()
	}
	if tr.StartedAt.IsZero() {
		tr.StartedAt = tr.FinishedAt.Add(-time.Duration(tr.DurationMS) * time.Millisecond)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pm_transitions (id, event, status, error, failed_device, failed_step, duration_ms, device_count, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.Event, tr.Status, tr.Error, tr.FailedDevice, tr.FailedStep,
		tr.DurationMS, tr.DeviceCount,
		tr.StartedAt.UTC().Format(time.RFC3339),
		tr.FinishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}

	for _, f := range tr.Failures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pm_device_failures (transition_id, device, step, error, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			tr.ID, f.Device, f.Step, f.Error,
			tr.FinishedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting device failure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transition: %w", err)
	}
	return nil
}

// Get returns one transition by ID, including its device failures.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Transition, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, event, status, error, failed_device, failed_step, duration_ms, device_count, started_at, finished_at
		 FROM pm_transitions WHERE id = ?`, id)

	tr, err := scanTransition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT device, step, error FROM pm_device_failures WHERE transition_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("querying device failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f DeviceFailure
		if err := rows.Scan(&f.Device, &f.Step, &f.Error); err != nil {
			return nil, fmt.Errorf("scanning device failure: %w", err)
		}
		tr.Failures = append(tr.Failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device failures: %w", err)
	}

	return tr, nil
}

// List returns transitions matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for history queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.Event != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, filter.Event)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE clause is built from parameterised conditions (? placeholders) — no user input in SQL string.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM pm_transitions %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting transitions: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, event, status, error, failed_device, failed_step, duration_ms, device_count, started_at, finished_at FROM pm_transitions %s ORDER BY started_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	var transitions []Transition
	for rows.Next() {
		tr, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, *tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}

	if transitions == nil {
		transitions = []Transition{}
	}

	return &ListResult{
		Transitions: transitions,
		Total:       total,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}, nil
}

// Prune deletes transitions older than the retention window.
// Device failures cascade via the foreign key.
func (r *SQLiteRepository) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM pm_transitions WHERE finished_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning transitions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading pruned row count: %w", err)
	}
	return deleted, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransition(s scanner) (*Transition, error) {
	var tr Transition
	var startedAt, finishedAt string

	if err := s.Scan(&tr.ID, &tr.Event, &tr.Status, &tr.Error,
		&tr.FailedDevice, &tr.FailedStep, &tr.DurationMS, &tr.DeviceCount,
		&startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning transition: %w", err)
	}

	var err error
	if tr.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
	}
	if tr.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
		return nil, fmt.Errorf("parsing finished_at %q: %w", finishedAt, err)
	}

	return &tr, nil
}
