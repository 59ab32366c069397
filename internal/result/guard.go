package result

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/types"
)

// Guard admits instrument messages exactly once. The unique constraint
// on message_id is the correctness backstop; the existence check is
// only a fast path. Feeds deliver at least once, so a losing insert
// means "already processed", never an error.
type Guard struct {
	pool *pgxpool.Pool
}

// NewGuard creates an ingestion guard
func NewGuard(pool *pgxpool.Pool) *Guard {
	return &Guard{pool: pool}
}

// TryAdmit records the message as processed and reports whether this
// call won admission. Only the first admission for a message id
// returns true.
func (g *Guard) TryAdmit(ctx context.Context, messageID, sourceSystem string, orderID types.ID) (bool, error) {
	var exists bool
	err := g.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM lab.processed_messages WHERE message_id = $1)`,
		messageID,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check processed message")
	}
	if exists {
		return false, nil
	}

	tag, err := g.pool.Exec(ctx, `
		INSERT INTO lab.processed_messages (message_id, source_system, test_order_id, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id) DO NOTHING`,
		messageID, sourceSystem, orderID, time.Now().UTC(),
	)
	if err != nil {
		// A concurrent winner surfaces as a unique violation when the
		// conflict target does not cover the constraint
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to record processed message")
	}

	// Zero rows means another consumer admitted the message first
	return tag.RowsAffected() == 1, nil
}
