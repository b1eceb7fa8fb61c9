package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kre8/diagram-relay/internal/model"
)

const requestColumns = `id, message, diagram_type, format_type, current_code, status, created_at, processed_at`

// RequestRepository provides data access for diagram requests and their responses.
// It is the only code that issues SQL against the requests and responses tables.
type RequestRepository struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a RequestRepository.
type Option func(*RequestRepository)

// WithClock overrides the time source used for created_at and processed_at.
func WithClock(now func() time.Time) Option {
	return func(r *RequestRepository) {
		r.now = now
	}
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *sql.DB, opts ...Option) *RequestRepository {
	r := &RequestRepository{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RequestRepository) timestamp() time.Time {
	return r.now().UTC()
}

// CreateRequest inserts a new pending request and returns its identifier.
func (r *RequestRepository) CreateRequest(ctx context.Context, req *model.NewRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO requests (message, diagram_type, format_type, current_code, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		req.Message,
		req.DiagramType,
		req.Format,
		req.CurrentCode,
		model.RequestStatusPending,
		r.timestamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get request id: %w", err)
	}

	return id, nil
}

// GetByID retrieves a request by its identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*model.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ?`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	return req, nil
}

// ListPending returns all pending requests, oldest first.
func (r *RequestRepository) ListPending(ctx context.Context) ([]*model.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, model.RequestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}

	return requests, nil
}

// LatestPending returns the most recently created pending request, or nil if
// there is none.
func (r *RequestRepository) LatestPending(ctx context.Context) (*model.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, model.RequestStatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest pending request: %w", err)
	}

	return req, nil
}

// MarkProcessing flags a request as picked up by an operator. It never moves a
// completed request backwards.
func (r *RequestRepository) MarkProcessing(ctx context.Context, id int64) error {
	query := `
		UPDATE requests
		SET status = ?
		WHERE id = ? AND status != ?
	`

	result, err := r.db.ExecContext(ctx, query, model.RequestStatusProcessing, id, model.RequestStatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to mark request processing: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		exists, err := r.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return model.ErrRequestNotFound
		}
	}

	return nil
}

// AddResponse records a response and completes the owning request in one
// transaction. A request that is already completed keeps its processed_at;
// the new response supersedes the previous one.
func (r *RequestRepository) AddResponse(ctx context.Context, id int64, code string) (*model.Response, error) {
	if code == "" {
		return nil, model.ErrCodeRequired
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status model.RequestStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM requests WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}

	now := r.timestamp()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO responses (request_id, diagram_code, created_at) VALUES (?, ?, ?)`,
		id, code, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert response: %w", err)
	}

	responseID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get response id: %w", err)
	}

	if !status.IsTerminal() {
		_, err = tx.ExecContext(ctx,
			`UPDATE requests SET status = ?, processed_at = ? WHERE id = ?`,
			model.RequestStatusCompleted, now, id)
		if err != nil {
			return nil, fmt.Errorf("failed to complete request: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit response: %w", err)
	}

	return &model.Response{
		ID:          responseID,
		RequestID:   id,
		DiagramCode: code,
		CreatedAt:   now,
	}, nil
}

// GetLatestResponse returns the most recent response for a request, or nil if
// the request has not been answered.
func (r *RequestRepository) GetLatestResponse(ctx context.Context, id int64) (*model.Response, error) {
	query := `
		SELECT id, request_id, diagram_code, created_at
		FROM responses
		WHERE request_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	resp := &model.Response{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&resp.ID,
		&resp.RequestID,
		&resp.DiagramCode,
		&resp.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}

	return resp, nil
}

// PurgeOlderThan deletes requests created more than days ago, removing their
// responses first.
func (r *RequestRepository) PurgeOlderThan(ctx context.Context, days int) (model.PurgeResult, error) {
	var result model.PurgeResult
	if days <= 0 {
		return result, model.ErrInvalidRetention
	}

	cutoff := r.timestamp().AddDate(0, 0, -days)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM responses
		WHERE request_id IN (SELECT id FROM requests WHERE created_at < ?)
	`, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to purge responses: %w", err)
	}
	if result.Responses, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE created_at < ?`, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to purge requests: %w", err)
	}
	if result.Requests, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.PurgeResult{}, fmt.Errorf("failed to commit purge: %w", err)
	}

	return result, nil
}

// CountByStatus returns the number of requests in each status.
func (r *RequestRepository) CountByStatus(ctx context.Context) (map[model.RequestStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}
	defer rows.Close()

	counts := map[model.RequestStatus]int{
		model.RequestStatusPending:    0,
		model.RequestStatusProcessing: 0,
		model.RequestStatusCompleted:  0,
	}
	for rows.Next() {
		var status model.RequestStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	return counts, nil
}

// Exists checks if a request exists.
func (r *RequestRepository) Exists(ctx context.Context, id int64) (bool, error) {
	query := `SELECT 1 FROM requests WHERE id = ? LIMIT 1`

	var exists int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check request existence: %w", err)
	}

	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*model.Request, error) {
	req := &model.Request{}
	var processedAt sql.NullTime

	err := row.Scan(
		&req.ID,
		&req.Message,
		&req.DiagramType,
		&req.Format,
		&req.CurrentCode,
		&req.Status,
		&req.CreatedAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}

	if processedAt.Valid {
		t := processedAt.Time
		req.ProcessedAt = &t
	}

	return req, nil
}
