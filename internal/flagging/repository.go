package flagging

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/types"
)

// Repository persists flagging configurations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a flagging config repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindActive resolves the configuration for a test code and gender.
// Gender-specific rows win over gender-agnostic ones; among matching
// active rows the most recent effective_date not in the future wins.
func (r *Repository) FindActive(ctx context.Context, testCode string, gender types.Gender) (*Config, error) {
	query := `
		SELECT id, test_code, gender, min_value, max_value, unit,
			version, is_active, effective_date, created_at
		FROM lab.flagging_configs
		WHERE test_code = $1
			AND is_active = true
			AND effective_date <= $3
			AND (gender = $2 OR gender IS NULL)
		ORDER BY (gender IS NOT NULL) DESC, effective_date DESC, version DESC
		LIMIT 1`

	row := r.pool.QueryRow(ctx, query, testCode, nullGender(gender), time.Now().UTC())

	cfg, err := scanConfig(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("flagging config", testCode)
		}
		return nil, errors.Wrap(err, "failed to find flagging config")
	}
	return cfg, nil
}

// Create persists a new configuration version
func (r *Repository) Create(ctx context.Context, cfg *Config) error {
	if cfg.ID.IsZero() {
		cfg.ID = types.NewID()
	}
	cfg.CreatedAt = time.Now().UTC()
	if cfg.EffectiveDate.IsZero() {
		cfg.EffectiveDate = cfg.CreatedAt
	}

	query := `
		INSERT INTO lab.flagging_configs (
			id, test_code, gender, min_value, max_value, unit,
			version, is_active, effective_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		cfg.ID, cfg.TestCode, nullGender(cfg.Gender), cfg.Min, cfg.Max, cfg.Unit,
		cfg.Version, cfg.IsActive, cfg.EffectiveDate, cfg.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create flagging config")
	}
	return nil
}

// ListByTestCode returns all versions for a test code, newest first
func (r *Repository) ListByTestCode(ctx context.Context, testCode string) ([]Config, error) {
	query := `
		SELECT id, test_code, gender, min_value, max_value, unit,
			version, is_active, effective_date, created_at
		FROM lab.flagging_configs
		WHERE test_code = $1
		ORDER BY effective_date DESC, version DESC`

	rows, err := r.pool.Query(ctx, query, testCode)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list flagging configs")
	}
	defer rows.Close()

	var configs []Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan flagging config")
		}
		configs = append(configs, *cfg)
	}
	return configs, nil
}

// Deactivate marks a configuration version inactive
func (r *Repository) Deactivate(ctx context.Context, id types.ID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE lab.flagging_configs SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to deactivate flagging config")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("flagging config", id.String())
	}
	return nil
}

// EnsureSeed inserts the default threshold definitions once. Existing
// rows for the same (test_code, gender, version) are left untouched.
func (r *Repository) EnsureSeed(ctx context.Context) error {
	query := `
		INSERT INTO lab.flagging_configs (
			id, test_code, gender, min_value, max_value, unit,
			version, is_active, effective_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (test_code, gender, version) DO NOTHING`

	now := time.Now().UTC()
	for _, cfg := range SeedConfigs() {
		_, err := r.pool.Exec(ctx, query,
			types.NewID(), cfg.TestCode, nullGender(cfg.Gender), cfg.Min, cfg.Max,
			cfg.Unit, cfg.Version, true, now, now,
		)
		if err != nil {
			return errors.Wrap(err, "failed to seed flagging configs")
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*Config, error) {
	var cfg Config
	var gender *string

	err := row.Scan(
		&cfg.ID, &cfg.TestCode, &gender, &cfg.Min, &cfg.Max, &cfg.Unit,
		&cfg.Version, &cfg.IsActive, &cfg.EffectiveDate, &cfg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if gender != nil {
		cfg.Gender = types.Gender(*gender)
	}
	return &cfg, nil
}

func nullGender(g types.Gender) *string {
	if g == types.GenderUnknown {
		return nil
	}
	s := string(g)
	return &s
}
