package civreg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/medilab/platform/internal/registry"
	"github.com/medilab/platform/internal/shared/config"
)

// Adapter implements registry.Adapter against the civil registry's
// SQL Server database.
type Adapter struct {
	db  *sql.DB
	cfg config.RegistryConfig
}

// New opens the registry connection and verifies it
func New(ctx context.Context, cfg config.RegistryConfig) (*Adapter, error) {
	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password)

	if cfg.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping registry database: %w", err)
	}

	return &Adapter{db: db, cfg: cfg}, nil
}

// Exists reports whether a citizen account exists for the identity key
func (a *Adapter) Exists(ctx context.Context, identityKey string) (bool, error) {
	query := fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE IdentityKey = @key`, a.cfg.CitizenTable)

	var count int
	if err := a.db.QueryRowContext(ctx, query, sql.Named("key", identityKey)).Scan(&count); err != nil {
		return false, fmt.Errorf("registry exists check failed: %w", err)
	}
	return count > 0, nil
}

// GetByIdentityKey fetches the canonical citizen record, nil when absent
func (a *Adapter) GetByIdentityKey(ctx context.Context, identityKey string) (*registry.UserRecord, error) {
	query := fmt.Sprintf(`
		SELECT
			IdentityKey,
			FirstName,
			LastName,
			DateOfBirth,
			Gender,
			Phone,
			Email,
			Address
		FROM %s
		WHERE IdentityKey = @key
	`, a.cfg.CitizenTable)

	row := a.db.QueryRowContext(ctx, query, sql.Named("key", identityKey))

	var record registry.UserRecord
	var dob sql.NullTime
	var gender, phone, email, address sql.NullString

	err := row.Scan(
		&record.IdentityKey,
		&record.FirstName,
		&record.LastName,
		&dob,
		&gender,
		&phone,
		&email,
		&address,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("registry lookup failed: %w", err)
	}

	if dob.Valid {
		record.DateOfBirth = dob.Time
	}
	record.Gender = gender.String
	record.Phone = phone.String
	record.Email = email.String
	record.Address = address.String

	return &record, nil
}

// CreateUser registers a new citizen account in the registry
func (a *Adapter) CreateUser(ctx context.Context, record registry.UserRecord) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (IdentityKey, FirstName, LastName, DateOfBirth, Gender, Phone, Email, Address, CreatedAt)
		VALUES (@key, @first, @last, @dob, @gender, @phone, @email, @address, @created)
	`, a.cfg.CitizenTable)

	var dob any
	if !record.DateOfBirth.IsZero() {
		dob = record.DateOfBirth
	}

	_, err := a.db.ExecContext(ctx, query,
		sql.Named("key", record.IdentityKey),
		sql.Named("first", record.FirstName),
		sql.Named("last", record.LastName),
		sql.Named("dob", dob),
		sql.Named("gender", record.Gender),
		sql.Named("phone", record.Phone),
		sql.Named("email", record.Email),
		sql.Named("address", record.Address),
		sql.Named("created", time.Now().UTC()),
	)
	if err != nil {
		return false, fmt.Errorf("registry create failed: %w", err)
	}

	return true, nil
}

// SourceSystem returns the source system name
func (a *Adapter) SourceSystem() string {
	return "civreg"
}

// Health checks registry connectivity
func (a *Adapter) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close closes the registry connection
func (a *Adapter) Close() error {
	return a.db.Close()
}
