package exports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classdesk/internal/attendance"
)

// Status of an export job.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// ErrNotFound is returned for unknown export ids.
var ErrNotFound = errors.New("export not found")

// Export is an asynchronous spreadsheet export of one day's report.
type Export struct {
	ID         string                `json:"id"`
	Owner      string                `json:"owner"`
	SchoolID   int64                 `json:"school_id"`
	ClassLabel string                `json:"class_label"`
	Date       time.Time             `json:"date"`
	Report     attendance.PastReport `json:"-"`
	Status     Status                `json:"status"`
	URL        string                `json:"url,omitempty"`
	Error      string                `json:"error,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Repository persists export jobs in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new pending export and fills in its id and timestamps.
func (r *Repository) Insert(ctx context.Context, exp Export) (Export, error) {
	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	exp.Status = StatusPending
	payload, err := json.Marshal(exp.Report)
	if err != nil {
		return Export{}, fmt.Errorf("encode report: %w", err)
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO report_exports (id, owner, school_id, class_label, report_date, payload, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at
	`, exp.ID, exp.Owner, exp.SchoolID, exp.ClassLabel, exp.Date, payload, exp.Status)
	if err := row.Scan(&exp.CreatedAt, &exp.UpdatedAt); err != nil {
		return Export{}, err
	}
	return exp, nil
}

// Get returns a single export by id, including its report payload.
func (r *Repository) Get(ctx context.Context, id string) (Export, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner, school_id, class_label, report_date, payload, status, url, error, created_at, updated_at
		FROM report_exports WHERE id = $1
	`, id)
	var (
		exp     Export
		payload []byte
	)
	if err := row.Scan(&exp.ID, &exp.Owner, &exp.SchoolID, &exp.ClassLabel, &exp.Date, &payload,
		&exp.Status, &exp.URL, &exp.Error, &exp.CreatedAt, &exp.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Export{}, ErrNotFound
		}
		return Export{}, err
	}
	if err := json.Unmarshal(payload, &exp.Report); err != nil {
		return Export{}, fmt.Errorf("decode report %s: %w", id, err)
	}
	return exp, nil
}

// MarkDone records the uploaded file location.
func (r *Repository) MarkDone(ctx context.Context, id, url string) error {
	return r.setStatus(ctx, id, StatusDone, url, "")
}

// MarkFailed records why an export could not be produced.
func (r *Repository) MarkFailed(ctx context.Context, id, reason string) error {
	return r.setStatus(ctx, id, StatusFailed, "", reason)
}

func (r *Repository) setStatus(ctx context.Context, id string, status Status, url, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE report_exports
		SET status = $2, url = $3, error = $4, updated_at = NOW()
		WHERE id = $1
	`, id, status, url, reason)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOwner returns an owner's exports, newest first.
func (r *Repository) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]Export, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner, school_id, class_label, report_date, status, url, error, created_at, updated_at
		FROM report_exports
		WHERE owner = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, owner, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Export
	for rows.Next() {
		var exp Export
		if err := rows.Scan(&exp.ID, &exp.Owner, &exp.SchoolID, &exp.ClassLabel, &exp.Date,
			&exp.Status, &exp.URL, &exp.Error, &exp.CreatedAt, &exp.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, exp)
	}
	return res, rows.Err()
}
