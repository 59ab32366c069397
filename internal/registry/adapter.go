package registry

import (
	"context"
	"time"
)

// UserRecord is the canonical citizen account held by the national
// identity registry. The registry is authoritative for every field.
type UserRecord struct {
	IdentityKey string
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Gender      string
	Phone       string
	Email       string
	Address     string
}

// Adapter defines the interface to the national identity registry.
// Implementations connect to the actual registry (SQL Server based
// civil registry, or an in-memory stand-in for tests and local dev).
type Adapter interface {
	// Exists reports whether an account exists for the identity key
	Exists(ctx context.Context, identityKey string) (bool, error)

	// GetByIdentityKey fetches the canonical record, nil when absent
	GetByIdentityKey(ctx context.Context, identityKey string) (*UserRecord, error)

	// CreateUser registers a new account in the registry
	CreateUser(ctx context.Context, record UserRecord) (bool, error)

	// Adapter metadata and health
	SourceSystem() string
	Health(ctx context.Context) error
}
