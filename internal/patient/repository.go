package patient

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/types"
)

// Repository persists patients and medical records
type Repository struct {
	pool   *pgxpool.Pool
	crypto *Crypto
	logger zerolog.Logger
}

// NewRepository creates a new patient repository
func NewRepository(pool *pgxpool.Pool, crypto *Crypto, logger zerolog.Logger) *Repository {
	return &Repository{
		pool:   pool,
		crypto: crypto,
		logger: logger.With().Str("component", "patient_repository").Logger(),
	}
}

// FindByIdentityKey looks up a patient by the deterministic lookup hash
// of the identity key. Returns ErrNotFound when absent.
func (r *Repository) FindByIdentityKey(ctx context.Context, identityKey types.NationalID) (*Patient, error) {
	query := `
		SELECT id, identity_key_enc, first_name, last_name, date_of_birth,
			gender, phone, email, address, created_at, updated_at
		FROM lab.patients
		WHERE identity_key_hash = $1`

	row := r.pool.QueryRow(ctx, query, r.crypto.LookupHash(string(identityKey)))

	p, err := r.scanPatient(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("patient", identityKey.Masked())
		}
		return nil, errors.Wrap(err, "failed to find patient")
	}
	return p, nil
}

// FindByID loads a patient by primary key
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*Patient, error) {
	query := `
		SELECT id, identity_key_enc, first_name, last_name, date_of_birth,
			gender, phone, email, address, created_at, updated_at
		FROM lab.patients
		WHERE id = $1`

	p, err := r.scanPatient(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("patient", id.String())
		}
		return nil, errors.Wrap(err, "failed to find patient")
	}
	return p, nil
}

// Create persists a new patient. The identity key is encrypted and
// hashed here; a unique-violation on the hash maps to DuplicateIdentity.
func (r *Repository) Create(ctx context.Context, p *Patient) error {
	enc, err := r.crypto.Encrypt(string(p.IdentityKey))
	if err != nil {
		return errors.Wrap(err, "failed to encrypt identity key")
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.ID.IsZero() {
		p.ID = types.NewID()
	}

	query := `
		INSERT INTO lab.patients (
			id, identity_key_enc, identity_key_hash, first_name, last_name,
			date_of_birth, gender, phone, email, address, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.pool.Exec(ctx, query,
		p.ID, enc, r.crypto.LookupHash(string(p.IdentityKey)),
		p.FirstName, p.LastName, nullTime(p.DateOfBirth), string(p.Gender),
		p.Phone, p.Email, p.Address, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.DuplicateIdentity(p.IdentityKey.Masked())
		}
		return errors.Wrap(err, "failed to create patient")
	}
	return nil
}

// Update overwrites the mutable demographic fields
func (r *Repository) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE lab.patients SET
			first_name = $2, last_name = $3, date_of_birth = $4, gender = $5,
			phone = $6, email = $7, address = $8, updated_at = $9
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		p.ID, p.FirstName, p.LastName, nullTime(p.DateOfBirth), string(p.Gender),
		p.Phone, p.Email, p.Address, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update patient")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("patient", p.ID.String())
	}
	return nil
}

// List returns a page of patients. A row whose identity key cannot be
// decrypted is kept with the sentinel value rather than failing the
// whole listing.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Patient, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM lab.patients`).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count patients")
	}

	query := `
		SELECT id, identity_key_enc, first_name, last_name, date_of_birth,
			gender, phone, email, address, created_at, updated_at
		FROM lab.patients
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list patients")
	}
	defer rows.Close()

	var patients []Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan patient")
		}
		patients = append(patients, *p)
	}

	return patients, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanPatient(row rowScanner) (*Patient, error) {
	var p Patient
	var enc, gender string
	var dob *time.Time

	err := row.Scan(
		&p.ID, &enc, &p.FirstName, &p.LastName, &dob,
		&gender, &p.Phone, &p.Email, &p.Address, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dob != nil {
		p.DateOfBirth = *dob
	}
	p.Gender = types.Gender(gender)

	key, err := r.crypto.Decrypt(enc)
	if err != nil {
		r.logger.Warn().Str("patient_id", p.ID.String()).Err(err).
			Msg("identity key decryption failed, substituting sentinel")
		p.IdentityKey = DecryptSentinel
	} else {
		p.IdentityKey = types.NationalID(key)
	}

	return &p, nil
}

// EnsureMedicalRecord returns the patient's medical record, creating it
// on first use. Each patient has exactly one active record.
func (r *Repository) EnsureMedicalRecord(ctx context.Context, patientID types.ID) (*MedicalRecord, error) {
	record, err := r.GetMedicalRecord(ctx, patientID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	record = &MedicalRecord{
		ID:           types.NewID(),
		PatientID:    patientID,
		RecordNumber: generateRecordNumber(),
		CreatedAt:    time.Now().UTC(),
	}

	query := `
		INSERT INTO lab.medical_records (id, patient_id, record_number, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		record.ID, record.PatientID, record.RecordNumber, record.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create medical record")
	}

	// Lost a concurrent create, read back the winner
	if tag.RowsAffected() == 0 {
		return r.GetMedicalRecord(ctx, patientID)
	}

	return record, nil
}

// GetMedicalRecord loads the patient's medical record
func (r *Repository) GetMedicalRecord(ctx context.Context, patientID types.ID) (*MedicalRecord, error) {
	query := `
		SELECT id, patient_id, record_number, created_at
		FROM lab.medical_records
		WHERE patient_id = $1`

	var record MedicalRecord
	err := r.pool.QueryRow(ctx, query, patientID).Scan(
		&record.ID, &record.PatientID, &record.RecordNumber, &record.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("medical record", patientID.String())
		}
		return nil, errors.Wrap(err, "failed to get medical record")
	}
	return &record, nil
}

func generateRecordNumber() string {
	suffix := make([]byte, 3)
	rand.Read(suffix)
	return fmt.Sprintf("MR-%s-%s",
		time.Now().UTC().Format("20060102"),
		strings.ToUpper(hex.EncodeToString(suffix)))
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
