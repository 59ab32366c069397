package result

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/types"
)

// Repository persists test results
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a test result repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateBatch persists all results of one admitted message in a single
// transaction.
func (r *Repository) CreateBatch(ctx context.Context, results []TestResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO lab.test_results (
			id, test_order_id, parameter, numeric_value, text_value, unit,
			reference_range, flag, result_status, reviewed_by_ai,
			ai_reviewed_date, is_confirmed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	for i := range results {
		res := &results[i]
		if res.ID.IsZero() {
			res.ID = types.NewID()
		}
		if res.CreatedAt.IsZero() {
			res.CreatedAt = time.Now().UTC()
		}

		_, err := tx.Exec(ctx, query,
			res.ID, res.TestOrderID, res.Parameter, res.NumericValue, res.TextValue,
			res.Unit, res.ReferenceRange, res.Flag, res.ResultStatus,
			res.ReviewedByAI, res.AIReviewedDate, res.IsConfirmed, res.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "failed to insert test result")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit test results")
	}
	return nil
}

// FindByID loads a single result
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*TestResult, error) {
	query := `
		SELECT id, test_order_id, parameter, numeric_value, text_value, unit,
			reference_range, flag, result_status, reviewed_by_ai,
			ai_reviewed_date, is_confirmed, created_at
		FROM lab.test_results
		WHERE id = $1`

	res, err := scanResult(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("test result", id.String())
		}
		return nil, errors.Wrap(err, "failed to find test result")
	}
	return res, nil
}

// ListByOrder returns all results belonging to an order
func (r *Repository) ListByOrder(ctx context.Context, orderID types.ID) ([]TestResult, error) {
	query := `
		SELECT id, test_order_id, parameter, numeric_value, text_value, unit,
			reference_range, flag, result_status, reviewed_by_ai,
			ai_reviewed_date, is_confirmed, created_at
		FROM lab.test_results
		WHERE test_order_id = $1
		ORDER BY created_at, parameter`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list test results")
	}
	defer rows.Close()

	return collectResults(rows)
}

// ListReviewed returns confirmed or reviewed results with a resolved
// status, newest first. Used as classifier training history.
func (r *Repository) ListReviewed(ctx context.Context, limit int) ([]TestResult, error) {
	if limit <= 0 || limit > 10000 {
		limit = 5000
	}

	query := `
		SELECT id, test_order_id, parameter, numeric_value, text_value, unit,
			reference_range, flag, result_status, reviewed_by_ai,
			ai_reviewed_date, is_confirmed, created_at
		FROM lab.test_results
		WHERE result_status <> '' AND numeric_value IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reviewed results")
	}
	defer rows.Close()

	return collectResults(rows)
}

// Confirm marks a result as confirmed by a human reviewer
func (r *Repository) Confirm(ctx context.Context, id types.ID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE lab.test_results SET is_confirmed = true WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to confirm test result")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("test result", id.String())
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*TestResult, error) {
	var res TestResult
	err := row.Scan(
		&res.ID, &res.TestOrderID, &res.Parameter, &res.NumericValue, &res.TextValue,
		&res.Unit, &res.ReferenceRange, &res.Flag, &res.ResultStatus,
		&res.ReviewedByAI, &res.AIReviewedDate, &res.IsConfirmed, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func collectResults(rows pgx.Rows) ([]TestResult, error) {
	var results []TestResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan test result")
		}
		results = append(results, *res)
	}
	return results, nil
}
