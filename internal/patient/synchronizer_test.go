package patient

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medilab/platform/internal/registry"
	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/types"
)

type memStore struct {
	patients map[types.NationalID]*Patient
	records  map[types.ID]*MedicalRecord
	creates  int
	updates  int
}

func newMemStore() *memStore {
	return &memStore{
		patients: make(map[types.NationalID]*Patient),
		records:  make(map[types.ID]*MedicalRecord),
	}
}

func (m *memStore) FindByIdentityKey(ctx context.Context, key types.NationalID) (*Patient, error) {
	p, ok := m.patients[key]
	if !ok {
		return nil, errors.NotFound("patient", key.Masked())
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) Create(ctx context.Context, p *Patient) error {
	if _, ok := m.patients[p.IdentityKey]; ok {
		return errors.DuplicateIdentity(p.IdentityKey.Masked())
	}
	if p.ID.IsZero() {
		p.ID = types.NewID()
	}
	cp := *p
	m.patients[p.IdentityKey] = &cp
	m.creates++
	return nil
}

func (m *memStore) Update(ctx context.Context, p *Patient) error {
	cp := *p
	m.patients[p.IdentityKey] = &cp
	m.updates++
	return nil
}

func (m *memStore) EnsureMedicalRecord(ctx context.Context, patientID types.ID) (*MedicalRecord, error) {
	if r, ok := m.records[patientID]; ok {
		return r, nil
	}
	r := &MedicalRecord{
		ID:           types.NewID(),
		PatientID:    patientID,
		RecordNumber: "MR-TEST",
		CreatedAt:    time.Now(),
	}
	m.records[patientID] = r
	return r, nil
}

type memNotifier struct {
	sent []string
}

func (n *memNotifier) NotifyAccountCreated(email, fullName string) {
	n.sent = append(n.sent, email)
}

func newTestSynchronizer(store *memStore, reg registry.Adapter) (*Synchronizer, *memNotifier) {
	notifier := &memNotifier{}
	return NewSynchronizer(store, reg, nil, notifier, zerolog.Nop()), notifier
}

func TestGetOrCreateFromRegistry(t *testing.T) {
	store := newMemStore()
	reg := registry.NewMemoryAdapter()
	reg.Seed(registry.UserRecord{
		IdentityKey: "123456789",
		FirstName:   "Ana",
		LastName:    "Petrovic",
		DateOfBirth: time.Date(1985, 3, 12, 0, 0, 0, 0, time.UTC),
		Gender:      "F",
		Email:       "ana@example.com",
	})
	sync, _ := newTestSynchronizer(store, reg)

	p, err := sync.GetOrCreate(context.Background(), "123456789", Demographics{
		FirstName: "Wrong",
		LastName:  "Name",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Registry fields win over supplied demographics
	if p.FirstName != "Ana" || p.LastName != "Petrovic" {
		t.Fatalf("Expected registry demographics, got %s %s", p.FirstName, p.LastName)
	}
	if p.Gender != types.GenderFemale {
		t.Fatalf("Expected female, got %q", p.Gender)
	}
	if store.creates != 1 {
		t.Fatalf("Expected 1 create, got %d", store.creates)
	}
}

func TestGetOrCreateExistingPatient(t *testing.T) {
	store := newMemStore()
	reg := registry.NewMemoryAdapter()
	sync, _ := newTestSynchronizer(store, reg)

	first, err := sync.GetOrCreate(context.Background(), "123456789", Demographics{FirstName: "Ana"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	second, err := sync.GetOrCreate(context.Background(), "123456789", Demographics{FirstName: "Other"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if first.ID != second.ID {
		t.Fatal("Expected the same patient on repeated GetOrCreate")
	}
	if store.creates != 1 {
		t.Fatalf("Expected 1 create, got %d", store.creates)
	}
}

func TestGetOrCreateRegistersRegistryAccount(t *testing.T) {
	store := newMemStore()
	reg := registry.NewMemoryAdapter()
	sync, notifier := newTestSynchronizer(store, reg)

	_, err := sync.GetOrCreate(context.Background(), "123456789", Demographics{
		FirstName: "Ana",
		LastName:  "Petrovic",
		Email:     "ana@example.com",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	exists, _ := reg.Exists(context.Background(), "123456789")
	if !exists {
		t.Fatal("Expected a registry account to be created")
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != "ana@example.com" {
		t.Fatalf("Expected account notification to ana@example.com, got %v", notifier.sent)
	}
}

func TestGetOrCreateInvalidKey(t *testing.T) {
	store := newMemStore()
	sync, _ := newTestSynchronizer(store, registry.NewMemoryAdapter())

	tests := []string{"", "12345678", "12345678901234", "12345678a"}
	for _, key := range tests {
		if _, err := sync.GetOrCreate(context.Background(), types.NationalID(key), Demographics{}); err == nil {
			t.Fatalf("Expected validation error for %q", key)
		}
	}
	if store.creates != 0 {
		t.Fatalf("Expected no creates, got %d", store.creates)
	}
}

func TestSynchronizeNoChanges(t *testing.T) {
	store := newMemStore()
	reg := registry.NewMemoryAdapter()
	record := registry.UserRecord{
		IdentityKey: "123456789",
		FirstName:   "Ana",
		LastName:    "Petrovic",
		Gender:      "F",
	}
	reg.Seed(record)
	sync, _ := newTestSynchronizer(store, reg)

	if _, err := sync.GetOrCreate(context.Background(), "123456789", Demographics{}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Registry record matches local state, dirty check skips the write
	if _, err := sync.Synchronize(context.Background(), "123456789", "tester"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if store.updates != 0 {
		t.Fatalf("Expected 0 updates, got %d", store.updates)
	}
}

func TestSynchronizeAppliesChangedFields(t *testing.T) {
	store := newMemStore()
	reg := registry.NewMemoryAdapter()
	reg.Seed(registry.UserRecord{
		IdentityKey: "123456789",
		FirstName:   "Ana",
		LastName:    "Petrovic",
	})
	sync, _ := newTestSynchronizer(store, reg)

	if _, err := sync.GetOrCreate(context.Background(), "123456789", Demographics{}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Registry record changes after local creation
	reg.Seed(registry.UserRecord{
		IdentityKey: "123456789",
		FirstName:   "Ana",
		LastName:    "Jovanovic",
		Phone:       "+381601234567",
	})

	p, err := sync.Synchronize(context.Background(), "123456789", "tester")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if store.updates != 1 {
		t.Fatalf("Expected 1 update, got %d", store.updates)
	}
	if p.LastName != "Jovanovic" {
		t.Fatalf("Expected last name Jovanovic, got %s", p.LastName)
	}
	if p.Phone != "+381601234567" {
		t.Fatalf("Expected phone update, got %s", p.Phone)
	}
	// Unchanged fields are left alone
	if p.FirstName != "Ana" {
		t.Fatalf("Expected first name Ana, got %s", p.FirstName)
	}
}

func TestSynchronizeEmptyRegistryFieldsIgnored(t *testing.T) {
	store := newMemStore()
	reg := registry.NewMemoryAdapter()
	reg.Seed(registry.UserRecord{
		IdentityKey: "123456789",
		FirstName:   "Ana",
		LastName:    "Petrovic",
		Phone:       "+381601234567",
	})
	sync, _ := newTestSynchronizer(store, reg)

	if _, err := sync.GetOrCreate(context.Background(), "123456789", Demographics{}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Registry drops the phone; an empty authoritative field must not
	// erase local data
	reg.Seed(registry.UserRecord{
		IdentityKey: "123456789",
		FirstName:   "Ana",
		LastName:    "Petrovic",
	})

	p, err := sync.Synchronize(context.Background(), "123456789", "tester")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if store.updates != 0 {
		t.Fatalf("Expected 0 updates, got %d", store.updates)
	}
	if p.Phone != "+381601234567" {
		t.Fatalf("Expected phone retained, got %s", p.Phone)
	}
}

func TestSynchronizeRegistryRecordAbsent(t *testing.T) {
	store := newMemStore()
	reg := registry.NewMemoryAdapter()
	reg.Seed(registry.UserRecord{IdentityKey: "123456789", FirstName: "Ana"})
	sync, _ := newTestSynchronizer(store, reg)

	if _, err := sync.GetOrCreate(context.Background(), "123456789", Demographics{}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Simulate the registry losing the record
	empty := registry.NewMemoryAdapter()
	sync2, _ := newTestSynchronizer(store, empty)

	_, err := sync2.Synchronize(context.Background(), "123456789", "tester")
	if err == nil {
		t.Fatal("Expected sync failure, got nil")
	}
	if !errors.Is(err, errors.ErrSyncFailure) {
		t.Fatalf("Expected ErrSyncFailure, got %v", err)
	}
}

func TestPatientAge(t *testing.T) {
	p := &Patient{DateOfBirth: time.Now().AddDate(-30, 0, -1)}
	if got := p.Age(); got != 30 {
		t.Fatalf("Expected age 30, got %d", got)
	}

	p = &Patient{}
	if got := p.Age(); got != 0 {
		t.Fatalf("Expected age 0 for unknown DOB, got %d", got)
	}
}
