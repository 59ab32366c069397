package registry

import (
	"context"
	"sync"
)

// MemoryAdapter is an in-process registry used by tests and local
// development when no civil registry connection is configured.
type MemoryAdapter struct {
	mu      sync.RWMutex
	records map[string]UserRecord
}

// NewMemoryAdapter creates an empty in-memory registry
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{records: make(map[string]UserRecord)}
}

// Seed loads records without the CreateUser bookkeeping
func (a *MemoryAdapter) Seed(records ...UserRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range records {
		a.records[r.IdentityKey] = r
	}
}

func (a *MemoryAdapter) Exists(ctx context.Context, identityKey string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.records[identityKey]
	return ok, nil
}

func (a *MemoryAdapter) GetByIdentityKey(ctx context.Context, identityKey string) (*UserRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.records[identityKey]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (a *MemoryAdapter) CreateUser(ctx context.Context, record UserRecord) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.records[record.IdentityKey]; ok {
		return false, nil
	}
	a.records[record.IdentityKey] = record
	return true, nil
}

func (a *MemoryAdapter) SourceSystem() string {
	return "memory"
}

func (a *MemoryAdapter) Health(ctx context.Context) error {
	return nil
}
