package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/quote-stream/internal/domain"
)

// WorkflowRepository is the audit trail of workflow runs.
type WorkflowRepository interface {
	Create(ctx context.Context, workflowID string, startedAt time.Time) error
	Finish(ctx context.Context, result *domain.Result) error
	GetResult(ctx context.Context, workflowID string) (*domain.Result, error)
	ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Result, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgxpool with the WorkflowRepository interface.
func NewRepository(pool *pgxpool.Pool) WorkflowRepository {
	return &repository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (r *repository) Create(ctx context.Context, workflowID string, startedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO workflows
			(id, status, total_iterations, total_quotes_delivered, runtime_seconds, started_at)
		VALUES
			($1, $2, 0, 0, 0, $3)
	`, workflowID, string(domain.StatusInitializing), startedAt)
	if err != nil {
		return fmt.Errorf("create workflow %s: %w", workflowID, err)
	}
	return nil
}

func (r *repository) Finish(ctx context.Context, result *domain.Result) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE workflows
		SET status = $1,
		    total_iterations = $2,
		    total_quotes_delivered = $3,
		    runtime_seconds = $4,
		    completed_at = $5
		WHERE id = $6
	`,
		string(result.FinalStatus), result.TotalIterations,
		result.TotalQuotesDelivered, result.RuntimeSeconds,
		result.CompletedAt, result.WorkflowID,
	)
	if err != nil {
		return fmt.Errorf("finish workflow %s: %w", result.WorkflowID, err)
	}
	return nil
}

func (r *repository) GetResult(ctx context.Context, workflowID string) (*domain.Result, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, status, total_iterations, total_quotes_delivered,
		       runtime_seconds, started_at, completed_at
		FROM workflows
		WHERE id = $1
	`, workflowID)

	result, err := scanResult(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.WorkflowNotFoundError{WorkflowID: workflowID}
		}
		return nil, err
	}
	return result, nil
}

func (r *repository) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Result, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, status, total_iterations, total_quotes_delivered,
		       runtime_seconds, started_at, completed_at
		FROM workflows
		WHERE status = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list workflows by status %s: %w", status, err)
	}
	defer rows.Close()

	var results []*domain.Result
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// scanResult reads a workflow row from any pgx row type.
func scanResult(row interface {
	Scan(...any) error
}) (*domain.Result, error) {
	var result domain.Result
	var statusStr string
	err := row.Scan(
		&result.WorkflowID, &statusStr, &result.TotalIterations,
		&result.TotalQuotesDelivered, &result.RuntimeSeconds,
		&result.StartedAt, &result.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	result.FinalStatus = domain.Status(statusStr)
	return &result, nil
}
