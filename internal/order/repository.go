package order

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medilab/platform/internal/result"
	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/types"
)

// Repository persists test orders
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a test order repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `
	id, medical_record_id, order_code, test_type, priority, status, note,
	is_deleted, deleted_at, deleted_by,
	created_at, created_by, updated_at, updated_by`

// FindByID loads an order including soft-deleted rows, so callers can
// distinguish "already deleted" from "never existed".
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*TestOrder, error) {
	query := `SELECT` + orderColumns + ` FROM lab.test_orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("test order", id.String())
		}
		return nil, errors.Wrap(err, "failed to find test order")
	}
	return o, nil
}

// FindByCode loads an active order by its order code
func (r *Repository) FindByCode(ctx context.Context, orderCode string) (*TestOrder, error) {
	query := `SELECT` + orderColumns + ` FROM lab.test_orders WHERE order_code = $1 AND NOT is_deleted`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, orderCode))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("test order", orderCode)
		}
		return nil, errors.Wrap(err, "failed to find test order")
	}
	return o, nil
}

// ResolveByCode resolves the ingestion context for an instrument
// message: the order id, its test type, and the patient's gender for
// gender-specific flagging.
func (r *Repository) ResolveByCode(ctx context.Context, orderCode string) (*result.OrderContext, error) {
	query := `
		SELECT o.id, o.test_type, p.gender
		FROM lab.test_orders o
		JOIN lab.medical_records m ON m.id = o.medical_record_id
		JOIN lab.patients p ON p.id = m.patient_id
		WHERE o.order_code = $1 AND NOT o.is_deleted`

	var octx result.OrderContext
	var gender string
	err := r.pool.QueryRow(ctx, query, orderCode).Scan(&octx.OrderID, &octx.TestType, &gender)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("test order", orderCode)
		}
		return nil, errors.Wrap(err, "failed to resolve test order")
	}
	octx.PatientGender = types.Gender(gender)
	return &octx, nil
}

// Create persists a new order
func (r *Repository) Create(ctx context.Context, o *TestOrder) error {
	query := `
		INSERT INTO lab.test_orders (
			id, medical_record_id, order_code, test_type, priority, status, note,
			is_deleted, created_at, created_by, updated_at, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		o.ID, o.MedicalRecordID, o.OrderCode, o.TestType, string(o.Priority),
		string(o.Status), o.Note, o.CreatedAt, o.CreatedBy, o.UpdatedAt, o.UpdatedBy,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("order code already exists")
		}
		return errors.Wrap(err, "failed to create test order")
	}
	return nil
}

// Update overwrites the mutable fields of an order
func (r *Repository) Update(ctx context.Context, o *TestOrder) error {
	query := `
		UPDATE lab.test_orders SET
			medical_record_id = $2, priority = $3, status = $4, note = $5,
			updated_at = $6, updated_by = $7
		WHERE id = $1 AND NOT is_deleted`

	tag, err := r.pool.Exec(ctx, query,
		o.ID, o.MedicalRecordID, string(o.Priority), string(o.Status), o.Note,
		o.UpdatedAt, o.UpdatedBy,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update test order")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("test order", o.ID.String())
	}
	return nil
}

// SoftDelete retains the row with the delete markers set
func (r *Repository) SoftDelete(ctx context.Context, id types.ID, deletedBy string) error {
	query := `
		UPDATE lab.test_orders SET is_deleted = true, deleted_at = $2, deleted_by = $3
		WHERE id = $1 AND NOT is_deleted`

	tag, err := r.pool.Exec(ctx, query, id, time.Now().UTC(), deletedBy)
	if err != nil {
		return errors.Wrap(err, "failed to soft delete test order")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("test order", id.String())
	}
	return nil
}

// HardDelete removes the row entirely
func (r *Repository) HardDelete(ctx context.Context, id types.ID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM lab.test_orders WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete test order")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("test order", id.String())
	}
	return nil
}

// ListByMedicalRecord returns the active orders of a medical record,
// newest first.
func (r *Repository) ListByMedicalRecord(ctx context.Context, recordID types.ID, limit, offset int) ([]TestOrder, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM lab.test_orders WHERE medical_record_id = $1 AND NOT is_deleted`,
		recordID,
	).Scan(&total)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to count test orders")
	}

	query := `SELECT` + orderColumns + `
		FROM lab.test_orders
		WHERE medical_record_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, recordID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list test orders")
	}
	defer rows.Close()

	var orders []TestOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan test order")
		}
		orders = append(orders, *o)
	}

	return orders, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*TestOrder, error) {
	var o TestOrder
	var priority, status string
	var deletedBy *string

	err := row.Scan(
		&o.ID, &o.MedicalRecordID, &o.OrderCode, &o.TestType, &priority, &status,
		&o.Note, &o.IsDeleted, &o.DeletedAt, &deletedBy,
		&o.CreatedAt, &o.CreatedBy, &o.UpdatedAt, &o.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	o.Priority = Priority(priority)
	o.Status = Status(status)
	if deletedBy != nil {
		o.DeletedBy = *deletedBy
	}
	return &o, nil
}
