package audit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/medilab/platform/internal/shared/errors"
)

// Sink is the narrow interface services use to append audit entries.
// Appends are best-effort at every call site: failures are logged by
// the caller and never fail the primary operation.
type Sink interface {
	Append(ctx context.Context, entry *EventLog) error
}

// Repository provides append-only audit log operations
type Repository struct {
	pool     *pgxpool.Pool
	mu       sync.Mutex
	lastHash string
}

// NewRepository creates a new audit repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Initialize loads the last hash from the database
func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var hash string
	err := r.pool.QueryRow(ctx, `
		SELECT hash FROM lab.event_logs
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&hash)

	if err != nil && !strings.Contains(err.Error(), "no rows") {
		return errors.Wrap(err, "failed to get last audit hash")
	}

	r.lastHash = hash
	return nil
}

// Append appends a new audit entry (thread-safe)
func (r *Repository) Append(ctx context.Context, entry *EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.PrevHash = r.lastHash
	entry.Hash = entry.computeHash()

	query := `
		INSERT INTO lab.event_logs (
			event_id, action, message, operator,
			entity_type, entity_id, timestamp, hash, prev_hash
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		) RETURNING sequence`

	err := r.pool.QueryRow(ctx, query,
		entry.EventID, entry.Action, entry.Message, entry.Operator,
		entry.EntityType, entry.EntityID, entry.Timestamp, entry.Hash, entry.PrevHash,
	).Scan(&entry.Sequence)

	if err != nil {
		return errors.Wrap(err, "failed to append audit entry")
	}

	r.lastHash = entry.Hash
	return nil
}

// List lists audit entries with filters (read-only)
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]EventLog, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argNum))
		args = append(args, filter.Action)
		argNum++
	}

	if filter.EntityType != "" {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", argNum))
		args = append(args, filter.EntityType)
		argNum++
	}

	if filter.EntityID != "" {
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", argNum))
		args = append(args, filter.EntityID)
		argNum++
	}

	if filter.Operator != "" {
		conditions = append(conditions, fmt.Sprintf("operator = $%d", argNum))
		args = append(args, filter.Operator)
		argNum++
	}

	if filter.StartTime != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argNum))
		args = append(args, *filter.StartTime)
		argNum++
	}

	if filter.EndTime != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", argNum))
		args = append(args, *filter.EndTime)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM lab.event_logs %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count audit entries")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT event_id, sequence, action, message, operator,
			entity_type, entity_id, timestamp, hash, prev_hash
		FROM lab.event_logs
		%s
		ORDER BY sequence DESC
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list audit entries")
	}
	defer rows.Close()

	var entries []EventLog
	for rows.Next() {
		var e EventLog
		err := rows.Scan(
			&e.EventID, &e.Sequence, &e.Action, &e.Message, &e.Operator,
			&e.EntityType, &e.EntityID, &e.Timestamp, &e.Hash, &e.PrevHash,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan audit entry")
		}
		entries = append(entries, e)
	}

	return entries, total, nil
}

// GetByEntity gets all audit entries for a specific entity
func (r *Repository) GetByEntity(ctx context.Context, entityType, entityID string, limit int) ([]EventLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	entries, _, err := r.List(ctx, ListFilter{
		EntityType: entityType,
		EntityID:   entityID,
		Limit:      limit,
	})
	return entries, err
}

// VerifyResult contains chain verification results
type VerifyResult struct {
	Valid      bool     `json:"valid"`
	Checked    int      `json:"checked"`
	Violations []string `json:"violations,omitempty"`
}

// VerifyChain verifies content hashes and chain linkage over the most
// recent entries.
func (r *Repository) VerifyChain(ctx context.Context, limit int) (*VerifyResult, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	entries, _, err := r.List(ctx, ListFilter{Limit: limit})
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}

	// Entries are in descending sequence order: entry i's hash must
	// match entry i-1's prev_hash.
	var expectedHash string
	for i, e := range entries {
		if !e.VerifyHash() {
			result.Valid = false
			result.Violations = append(result.Violations,
				fmt.Sprintf("content tampered: entry %s (seq %d)", e.EventID, e.Sequence))
		}

		if i > 0 && expectedHash != "" && e.Hash != expectedHash {
			result.Valid = false
			result.Violations = append(result.Violations,
				fmt.Sprintf("chain broken: entry %s (seq %d)", e.EventID, e.Sequence))
		}

		expectedHash = e.PrevHash
		result.Checked++
	}

	return result, nil
}
