package order

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/medilab/platform/internal/audit"
	"github.com/medilab/platform/internal/patient"
	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/events"
	"github.com/medilab/platform/internal/shared/metrics"
	"github.com/medilab/platform/internal/shared/types"
)

// Store is the persistence surface the lifecycle manager needs
type Store interface {
	FindByID(ctx context.Context, id types.ID) (*TestOrder, error)
	Create(ctx context.Context, o *TestOrder) error
	Update(ctx context.Context, o *TestOrder) error
	SoftDelete(ctx context.Context, id types.ID, deletedBy string) error
	HardDelete(ctx context.Context, id types.ID) error
}

// PatientResolver resolves and refreshes patient identities
type PatientResolver interface {
	GetOrCreate(ctx context.Context, identityKey types.NationalID, demo patient.Demographics) (*patient.Patient, error)
	Synchronize(ctx context.Context, identityKey types.NationalID, actor string) (*patient.Patient, error)
	EnsureMedicalRecord(ctx context.Context, patientID types.ID) (*patient.MedicalRecord, error)
}

// CreateRequest carries the inputs for a new order
type CreateRequest struct {
	IdentityKey  types.NationalID
	Demographics patient.Demographics
	TestType     string
	Priority     string
	Note         string
	CreatedBy    string
}

// ModifyRequest carries the inputs for an order modification
type ModifyRequest struct {
	OrderID     types.ID
	IdentityKey types.NationalID
	Priority    string
	Status      string
	Note        string
	UpdatedBy   string
}

// Service orchestrates the test order lifecycle: identity resolution,
// medical record linkage, persistence, and the soft/hard delete
// policy. Audit entries and bus events are fire-and-forget.
type Service struct {
	store    Store
	patients PatientResolver
	auditor  audit.Sink
	bus      events.Publisher
	logger   zerolog.Logger
}

// NewService creates an order lifecycle service. auditor and bus may
// be nil.
func NewService(store Store, patients PatientResolver, auditor audit.Sink, bus events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		patients: patients,
		auditor:  auditor,
		bus:      bus,
		logger:   logger.With().Str("component", "order_service").Logger(),
	}
}

// CreateOrder resolves the patient, ensures the medical record, and
// persists a new order with Status Created. All validation happens
// before any side effect.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (types.ID, error) {
	priority, err := validateCreate(req)
	if err != nil {
		return "", err
	}

	p, err := s.patients.GetOrCreate(ctx, req.IdentityKey, req.Demographics)
	if err != nil {
		return "", err
	}

	record, err := s.patients.EnsureMedicalRecord(ctx, p.ID)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	o := &TestOrder{
		ID:              types.NewID(),
		MedicalRecordID: record.ID,
		OrderCode:       GenerateOrderCode(),
		TestType:        req.TestType,
		Priority:        priority,
		Status:          StatusCreated,
		Note:            req.Note,
		CreatedAt:       now,
		CreatedBy:       req.CreatedBy,
		UpdatedAt:       now,
		UpdatedBy:       req.CreatedBy,
	}

	if err := s.store.Create(ctx, o); err != nil {
		return "", err
	}
	metrics.RecordOrderCreated(string(priority))

	s.appendAudit(ctx, audit.ActionCreateOrder,
		fmt.Sprintf("Test order %s created for medical record %s", o.OrderCode, record.ID),
		req.CreatedBy, o.ID)
	s.publishEvent(ctx, events.TypeOrderCreated, o, req.CreatedBy)

	return o.ID, nil
}

// ModifyOrder re-synchronizes the patient, re-links the medical record
// when it changed, and overwrites the mutable fields. A sync failure
// aborts with no partial write.
func (s *Service) ModifyOrder(ctx context.Context, req ModifyRequest) error {
	priority, status, err := validateModify(req)
	if err != nil {
		return err
	}

	o, err := s.store.FindByID(ctx, req.OrderID)
	if err != nil {
		return err
	}
	if o.IsDeleted {
		return errors.AlreadyDeleted("test order", o.ID.String())
	}

	p, err := s.patients.Synchronize(ctx, req.IdentityKey, req.UpdatedBy)
	if err != nil {
		return err
	}

	record, err := s.patients.EnsureMedicalRecord(ctx, p.ID)
	if err != nil {
		return err
	}

	if record.ID != o.MedicalRecordID {
		s.logger.Info().Str("order_id", o.ID.String()).
			Str("from", o.MedicalRecordID.String()).Str("to", record.ID.String()).
			Msg("re-linking order to synchronized medical record")
		s.appendAudit(ctx, audit.ActionRelinkOrder,
			fmt.Sprintf("Test order %s re-linked from medical record %s to %s",
				o.OrderCode, o.MedicalRecordID, record.ID),
			req.UpdatedBy, o.ID)
		o.MedicalRecordID = record.ID
	}

	o.Priority = priority
	o.Status = status
	o.Note = req.Note
	o.UpdatedAt = time.Now().UTC()
	o.UpdatedBy = req.UpdatedBy

	if err := s.store.Update(ctx, o); err != nil {
		return err
	}
	metrics.RecordOrderModified()

	s.appendAudit(ctx, audit.ActionModifyOrder,
		fmt.Sprintf("Test order %s modified, status %s", o.OrderCode, o.Status),
		req.UpdatedBy, o.ID)
	s.publishEvent(ctx, events.TypeOrderModified, o, req.UpdatedBy)

	return nil
}

// DeleteOrder terminates an order. Completed orders are soft-deleted
// for compliance retention; all others are removed. Deleting twice is
// AlreadyDeleted.
func (s *Service) DeleteOrder(ctx context.Context, orderID types.ID, deletedBy string) error {
	if deletedBy == "" {
		return errors.Validation("invalid delete request", map[string]string{
			"deleted_by": "required",
		})
	}

	o, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.IsDeleted {
		return errors.AlreadyDeleted("test order", o.ID.String())
	}

	mode := DeleteIntent(o)
	switch mode {
	case SoftDelete:
		err = s.store.SoftDelete(ctx, o.ID, deletedBy)
	case HardDelete:
		err = s.store.HardDelete(ctx, o.ID)
	}
	if err != nil {
		return err
	}
	metrics.RecordOrderDeleted(string(mode))

	s.appendAudit(ctx, audit.ActionDeleteOrder,
		fmt.Sprintf("Test order %s deleted (%s)", o.OrderCode, mode),
		deletedBy, o.ID)
	s.publishEvent(ctx, events.TypeOrderDeleted, o, deletedBy)

	return nil
}

// GetOrder loads an active order
func (s *Service) GetOrder(ctx context.Context, orderID types.ID) (*TestOrder, error) {
	o, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.IsDeleted {
		return nil, errors.NotFound("test order", orderID.String())
	}
	return o, nil
}

func validateCreate(req CreateRequest) (Priority, error) {
	details := make(map[string]string)

	if _, err := types.ParseNationalID(string(req.IdentityKey)); err != nil {
		details["identity_key"] = err.Error()
	}
	if req.TestType == "" {
		details["test_type"] = "required"
	}
	if req.CreatedBy == "" {
		details["created_by"] = "required"
	}

	priority, err := ParsePriority(req.Priority)
	if err != nil {
		details["priority"] = err.Error()
	}

	if len(details) > 0 {
		return "", errors.Validation("invalid order request", details)
	}
	return priority, nil
}

func validateModify(req ModifyRequest) (Priority, Status, error) {
	details := make(map[string]string)

	if _, err := types.ParseNationalID(string(req.IdentityKey)); err != nil {
		details["identity_key"] = err.Error()
	}
	if req.UpdatedBy == "" {
		details["updated_by"] = "required"
	}

	priority, err := ParsePriority(req.Priority)
	if err != nil {
		details["priority"] = err.Error()
	}

	status, err := ParseStatus(req.Status)
	if err != nil {
		details["status"] = err.Error()
	}

	if len(details) > 0 {
		return "", "", errors.Validation("invalid order modification", details)
	}
	return priority, status, nil
}

func (s *Service) appendAudit(ctx context.Context, action, message, operator string, orderID types.ID) {
	if s.auditor == nil {
		return
	}
	entry := audit.NewEventLog(action, message, operator, audit.EntityTestOrder, orderID.String())
	if err := s.auditor.Append(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("audit append failed")
	}
}

func (s *Service) publishEvent(ctx context.Context, eventType string, o *TestOrder, operator string) {
	if s.bus == nil {
		return
	}
	event := events.NewEvent(eventType, "order_service", map[string]any{
		"order_id":   o.ID.String(),
		"order_code": o.OrderCode,
		"status":     string(o.Status),
		"priority":   string(o.Priority),
	}).WithOperator(operator)

	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Msg("event publish failed")
	}
}
