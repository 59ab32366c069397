package comment

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/types"
)

// Comment is a free-form note attached to a test order, optionally
// scoped to one of its results.
type Comment struct {
	ID           types.ID  `json:"id"`
	TestOrderID  types.ID  `json:"test_order_id"`
	TestResultID *types.ID `json:"test_result_id,omitempty"`
	Author       string    `json:"author"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository persists comments
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a comment repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create persists a new comment
func (r *Repository) Create(ctx context.Context, c *Comment) error {
	if c.Body == "" {
		return errors.Validation("invalid comment", map[string]string{"body": "required"})
	}
	if c.Author == "" {
		return errors.Validation("invalid comment", map[string]string{"author": "required"})
	}

	if c.ID.IsZero() {
		c.ID = types.NewID()
	}
	c.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO lab.comments (id, test_order_id, test_result_id, author, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.TestOrderID, c.TestResultID, c.Author, c.Body, c.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create comment")
	}
	return nil
}

// ListByOrder returns the comments of an order, oldest first
func (r *Repository) ListByOrder(ctx context.Context, orderID types.ID) ([]Comment, error) {
	query := `
		SELECT id, test_order_id, test_result_id, author, body, created_at
		FROM lab.comments
		WHERE test_order_id = $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list comments")
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.TestOrderID, &c.TestResultID, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan comment")
		}
		comments = append(comments, c)
	}
	return comments, nil
}

// Delete removes a comment
func (r *Repository) Delete(ctx context.Context, id types.ID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM lab.comments WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete comment")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("comment", id.String())
	}
	return nil
}
