package order

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/rs/zerolog"

	"github.com/medilab/platform/internal/audit"
	"github.com/medilab/platform/internal/patient"
	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/types"
)

type memOrderStore struct {
	orders map[types.ID]*TestOrder
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[types.ID]*TestOrder)}
}

func (m *memOrderStore) FindByID(ctx context.Context, id types.ID) (*TestOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, errors.NotFound("test order", id.String())
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderStore) Create(ctx context.Context, o *TestOrder) error {
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrderStore) Update(ctx context.Context, o *TestOrder) error {
	if _, ok := m.orders[o.ID]; !ok {
		return errors.NotFound("test order", o.ID.String())
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrderStore) SoftDelete(ctx context.Context, id types.ID, deletedBy string) error {
	o, ok := m.orders[id]
	if !ok || o.IsDeleted {
		return errors.NotFound("test order", id.String())
	}
	o.IsDeleted = true
	o.DeletedBy = deletedBy
	return nil
}

func (m *memOrderStore) HardDelete(ctx context.Context, id types.ID) error {
	if _, ok := m.orders[id]; !ok {
		return errors.NotFound("test order", id.String())
	}
	delete(m.orders, id)
	return nil
}

type memPatients struct {
	patients   map[types.NationalID]*patient.Patient
	records    map[types.ID]*patient.MedicalRecord
	syncErr    error
	relinkNext bool
}

func newMemPatients() *memPatients {
	return &memPatients{
		patients: make(map[types.NationalID]*patient.Patient),
		records:  make(map[types.ID]*patient.MedicalRecord),
	}
}

func (m *memPatients) GetOrCreate(ctx context.Context, key types.NationalID, demo patient.Demographics) (*patient.Patient, error) {
	if p, ok := m.patients[key]; ok {
		return p, nil
	}
	p := &patient.Patient{ID: types.NewID(), IdentityKey: key, FirstName: demo.FirstName, LastName: demo.LastName}
	m.patients[key] = p
	return p, nil
}

func (m *memPatients) Synchronize(ctx context.Context, key types.NationalID, actor string) (*patient.Patient, error) {
	if m.syncErr != nil {
		return nil, m.syncErr
	}
	p, ok := m.patients[key]
	if !ok {
		return nil, errors.NotFound("patient", key.Masked())
	}
	return p, nil
}

func (m *memPatients) EnsureMedicalRecord(ctx context.Context, patientID types.ID) (*patient.MedicalRecord, error) {
	if m.relinkNext {
		// Simulate the synchronized patient resolving to a different record
		m.relinkNext = false
		r := &patient.MedicalRecord{ID: types.NewID(), PatientID: patientID}
		m.records[patientID] = r
		return r, nil
	}
	if r, ok := m.records[patientID]; ok {
		return r, nil
	}
	r := &patient.MedicalRecord{ID: types.NewID(), PatientID: patientID, RecordNumber: "MR-TEST"}
	m.records[patientID] = r
	return r, nil
}

type memAudit struct {
	entries []*audit.EventLog
}

func (a *memAudit) Append(ctx context.Context, entry *audit.EventLog) error {
	a.entries = append(a.entries, entry)
	return nil
}

func (a *memAudit) actions() []string {
	var out []string
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func newTestService() (*Service, *memOrderStore, *memPatients, *memAudit) {
	store := newMemOrderStore()
	patients := newMemPatients()
	auditor := &memAudit{}
	svc := NewService(store, patients, auditor, nil, zerolog.Nop())
	return svc, store, patients, auditor
}

func validCreateRequest() CreateRequest {
	return CreateRequest{
		IdentityKey:  "123456789",
		Demographics: patient.Demographics{FirstName: "Ana", LastName: "Petrovic"},
		TestType:     "CBC",
		Priority:     "normal",
		CreatedBy:    "tech-1",
	}
}

// A create with no existing patient makes the patient, the medical
// record, and an order in Created status with a well-formed code.
func TestCreateOrderNewPatient(t *testing.T) {
	svc, store, patients, auditor := newTestService()

	id, err := svc.CreateOrder(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, ok := patients.patients["123456789"]; !ok {
		t.Fatal("Expected patient to be created")
	}
	if len(patients.records) != 1 {
		t.Fatalf("Expected 1 medical record, got %d", len(patients.records))
	}

	o := store.orders[id]
	if o == nil {
		t.Fatal("Expected order to be persisted")
	}
	if o.Status != StatusCreated {
		t.Fatalf("Expected status Created, got %s", o.Status)
	}
	if !regexp.MustCompile(`^ORD-\d{14}-[0-9A-F]{6}$`).MatchString(o.OrderCode) {
		t.Fatalf("Expected well-formed order code, got %s", o.OrderCode)
	}
	if o.MedicalRecordID.IsZero() {
		t.Fatal("Expected medical record linkage")
	}

	if len(auditor.entries) == 0 || auditor.entries[len(auditor.entries)-1].Action != audit.ActionCreateOrder {
		t.Fatalf("Expected Create Test Order audit entry, got %v", auditor.actions())
	}
}

func TestCreateOrderValidation(t *testing.T) {
	svc, store, _, _ := newTestService()

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"bad identity key", func(r *CreateRequest) { r.IdentityKey = "12ab" }},
		{"missing test type", func(r *CreateRequest) { r.TestType = "" }},
		{"bad priority", func(r *CreateRequest) { r.Priority = "asap" }},
		{"missing creator", func(r *CreateRequest) { r.CreatedBy = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest()
			tt.mutate(&req)

			_, err := svc.CreateOrder(context.Background(), req)
			if !errors.Is(err, errors.ErrValidation) {
				t.Fatalf("Expected ErrValidation, got %v", err)
			}
		})
	}

	if len(store.orders) != 0 {
		t.Fatalf("Expected no writes on validation failure, got %d orders", len(store.orders))
	}
}

func TestModifyOrder(t *testing.T) {
	svc, store, _, auditor := newTestService()

	id, err := svc.CreateOrder(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	err = svc.ModifyOrder(context.Background(), ModifyRequest{
		OrderID:     id,
		IdentityKey: "123456789",
		Priority:    "urgent",
		Status:      "InProgress",
		Note:        "rush",
		UpdatedBy:   "tech-2",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	o := store.orders[id]
	if o.Priority != PriorityUrgent || o.Status != StatusInProgress || o.Note != "rush" {
		t.Fatalf("Expected fields overwritten, got %+v", o)
	}
	if o.UpdatedBy != "tech-2" {
		t.Fatalf("Expected updated_by tech-2, got %s", o.UpdatedBy)
	}

	last := auditor.entries[len(auditor.entries)-1]
	if last.Action != audit.ActionModifyOrder {
		t.Fatalf("Expected Modify Test Order audit entry, got %s", last.Action)
	}
}

func TestModifyOrderRejectsUnknownStatus(t *testing.T) {
	svc, _, _, _ := newTestService()

	id, _ := svc.CreateOrder(context.Background(), validCreateRequest())

	err := svc.ModifyOrder(context.Background(), ModifyRequest{
		OrderID:     id,
		IdentityKey: "123456789",
		Priority:    "normal",
		Status:      "Archived",
		UpdatedBy:   "tech-1",
	})
	if !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("Expected ErrValidation for unknown status, got %v", err)
	}
}

// A sync failure aborts the modification with no partial write
func TestModifyOrderSyncFailureAborts(t *testing.T) {
	svc, store, patients, _ := newTestService()

	id, _ := svc.CreateOrder(context.Background(), validCreateRequest())
	before := *store.orders[id]

	patients.syncErr = errors.SyncFailure("123******", fmt.Errorf("registry down"))

	err := svc.ModifyOrder(context.Background(), ModifyRequest{
		OrderID:     id,
		IdentityKey: "123456789",
		Priority:    "urgent",
		Status:      "Pending",
		UpdatedBy:   "tech-1",
	})
	if !errors.Is(err, errors.ErrSyncFailure) {
		t.Fatalf("Expected ErrSyncFailure, got %v", err)
	}

	after := store.orders[id]
	if after.Priority != before.Priority || after.Status != before.Status {
		t.Fatal("Expected no partial write after sync failure")
	}
}

func TestModifyOrderRelinksMedicalRecord(t *testing.T) {
	svc, store, patients, auditor := newTestService()

	id, _ := svc.CreateOrder(context.Background(), validCreateRequest())
	originalRecord := store.orders[id].MedicalRecordID

	patients.relinkNext = true

	err := svc.ModifyOrder(context.Background(), ModifyRequest{
		OrderID:     id,
		IdentityKey: "123456789",
		Priority:    "normal",
		Status:      "Pending",
		UpdatedBy:   "tech-1",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if store.orders[id].MedicalRecordID == originalRecord {
		t.Fatal("Expected order re-linked to the new medical record")
	}

	var sawRelink bool
	for _, action := range auditor.actions() {
		if action == audit.ActionRelinkOrder {
			sawRelink = true
		}
	}
	if !sawRelink {
		t.Fatalf("Expected relink audit entry, got %v", auditor.actions())
	}
}

// A Pending order is removed outright and the delete is audited
func TestDeleteOrderHardPath(t *testing.T) {
	svc, store, _, auditor := newTestService()

	id, _ := svc.CreateOrder(context.Background(), validCreateRequest())
	svc.ModifyOrder(context.Background(), ModifyRequest{
		OrderID: id, IdentityKey: "123456789", Priority: "normal",
		Status: "Pending", UpdatedBy: "tech-1",
	})

	if err := svc.DeleteOrder(context.Background(), id, "tech-1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, ok := store.orders[id]; ok {
		t.Fatal("Expected row removed on hard delete")
	}

	last := auditor.entries[len(auditor.entries)-1]
	if last.Action != audit.ActionDeleteOrder {
		t.Fatalf("Expected Delete Test Order audit entry, got %s", last.Action)
	}
}

// A Completed order is retained with the delete markers set
func TestDeleteOrderSoftPath(t *testing.T) {
	svc, store, _, _ := newTestService()

	id, _ := svc.CreateOrder(context.Background(), validCreateRequest())
	svc.ModifyOrder(context.Background(), ModifyRequest{
		OrderID: id, IdentityKey: "123456789", Priority: "normal",
		Status: "Completed", UpdatedBy: "tech-1",
	})

	if err := svc.DeleteOrder(context.Background(), id, "tech-1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	o, ok := store.orders[id]
	if !ok {
		t.Fatal("Expected row retained on soft delete")
	}
	if !o.IsDeleted || o.DeletedBy != "tech-1" {
		t.Fatalf("Expected delete markers set, got %+v", o)
	}
}

func TestDeleteOrderTwice(t *testing.T) {
	svc, _, _, _ := newTestService()

	id, _ := svc.CreateOrder(context.Background(), validCreateRequest())
	svc.ModifyOrder(context.Background(), ModifyRequest{
		OrderID: id, IdentityKey: "123456789", Priority: "normal",
		Status: "Completed", UpdatedBy: "tech-1",
	})

	if err := svc.DeleteOrder(context.Background(), id, "tech-1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	err := svc.DeleteOrder(context.Background(), id, "tech-1")
	if !errors.Is(err, errors.ErrAlreadyDeleted) {
		t.Fatalf("Expected ErrAlreadyDeleted, got %v", err)
	}
}

func TestDeleteOrderMissing(t *testing.T) {
	svc, _, _, _ := newTestService()

	err := svc.DeleteOrder(context.Background(), types.NewID(), "tech-1")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}
