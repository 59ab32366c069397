package patient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medilab/platform/internal/audit"
	"github.com/medilab/platform/internal/registry"
	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/metrics"
	"github.com/medilab/platform/internal/shared/types"
)

// Store is the persistence surface the synchronizer needs
type Store interface {
	FindByIdentityKey(ctx context.Context, identityKey types.NationalID) (*Patient, error)
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
	EnsureMedicalRecord(ctx context.Context, patientID types.ID) (*MedicalRecord, error)
}

// Notifier delivers account-creation notices, fire-and-forget
type Notifier interface {
	NotifyAccountCreated(email, fullName string)
}

// Synchronizer keeps local patients aligned with the identity registry.
// The registry is authoritative for demographics; local rows are a
// cache reconciled on each synchronization call.
type Synchronizer struct {
	store    Store
	registry registry.Adapter
	auditor  audit.Sink
	notifier Notifier
	logger   zerolog.Logger
}

// NewSynchronizer creates a patient synchronizer. auditor and notifier
// may be nil; both are best-effort side effects.
func NewSynchronizer(store Store, reg registry.Adapter, auditor audit.Sink, notifier Notifier, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		store:    store,
		registry: reg,
		auditor:  auditor,
		notifier: notifier,
		logger:   logger.With().Str("component", "patient_synchronizer").Logger(),
	}
}

// GetOrCreate resolves a local patient by identity key, creating one
// when absent. Registry demographics win over caller-supplied ones.
// If the registry has no account either, one is requested there too,
// best-effort: a registry write failure never fails local creation.
func (s *Synchronizer) GetOrCreate(ctx context.Context, identityKey types.NationalID, demo Demographics) (*Patient, error) {
	if _, err := types.ParseNationalID(string(identityKey)); err != nil {
		return nil, errors.Validation("invalid identity key", map[string]string{
			"identity_key": err.Error(),
		})
	}

	existing, err := s.store.FindByIdentityKey(ctx, identityKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	p := &Patient{
		IdentityKey: identityKey,
		FirstName:   demo.FirstName,
		LastName:    demo.LastName,
		DateOfBirth: demo.DateOfBirth,
		Gender:      demo.Gender,
		Phone:       demo.Phone,
		Email:       demo.Email,
		Address:     demo.Address,
	}

	record, regErr := s.registry.GetByIdentityKey(ctx, string(identityKey))
	if regErr != nil {
		s.logger.Warn().Err(regErr).Str("identity_key", identityKey.Masked()).
			Msg("registry lookup failed, creating patient from supplied demographics")
	}
	if record != nil {
		applyRegistryRecord(p, record)
	}

	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	metrics.RecordRegistrySync("created")

	if record == nil && regErr == nil {
		s.createRegistryAccount(ctx, p)
	}

	s.appendAudit(ctx, audit.ActionCreatePatient,
		fmt.Sprintf("Patient %s created for identity key %s", p.FullName(), identityKey.Masked()),
		"system", audit.EntityPatient, p.ID.String())

	return p, nil
}

// Synchronize refreshes a local patient from the canonical registry
// record. Only non-empty registry fields that differ are applied, and
// nothing is written when the patch set is empty.
func (s *Synchronizer) Synchronize(ctx context.Context, identityKey types.NationalID, actor string) (*Patient, error) {
	p, err := s.store.FindByIdentityKey(ctx, identityKey)
	if err != nil {
		return nil, err
	}

	record, err := s.registry.GetByIdentityKey(ctx, string(identityKey))
	if err != nil {
		metrics.RecordRegistrySync("failure")
		return nil, errors.SyncFailure(identityKey.Masked(), err)
	}
	if record == nil {
		metrics.RecordRegistrySync("absent")
		return nil, errors.SyncFailure(identityKey.Masked(), fmt.Errorf("no registry record"))
	}

	patch := diffPatient(p, record)
	if len(patch) == 0 {
		metrics.RecordRegistrySync("unchanged")
		return p, nil
	}

	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	metrics.RecordRegistrySync("updated")

	s.appendAudit(ctx, audit.ActionSyncPatient,
		fmt.Sprintf("Patient %s synchronized, fields changed: %s", p.ID, strings.Join(patch, ", ")),
		actor, audit.EntityPatient, p.ID.String())

	return p, nil
}

// EnsureMedicalRecord exposes lazy medical record creation to callers
func (s *Synchronizer) EnsureMedicalRecord(ctx context.Context, patientID types.ID) (*MedicalRecord, error) {
	return s.store.EnsureMedicalRecord(ctx, patientID)
}

func (s *Synchronizer) createRegistryAccount(ctx context.Context, p *Patient) {
	created, err := s.registry.CreateUser(ctx, registry.UserRecord{
		IdentityKey: string(p.IdentityKey),
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		DateOfBirth: p.DateOfBirth,
		Gender:      string(p.Gender),
		Phone:       p.Phone,
		Email:       p.Email,
		Address:     p.Address,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("identity_key", p.IdentityKey.Masked()).
			Msg("registry account creation failed")
		return
	}
	if created && s.notifier != nil && p.Email != "" {
		s.notifier.NotifyAccountCreated(p.Email, p.FullName())
	}
}

func (s *Synchronizer) appendAudit(ctx context.Context, action, message, operator, entityType, entityID string) {
	if s.auditor == nil {
		return
	}
	entry := audit.NewEventLog(action, message, operator, entityType, entityID)
	if err := s.auditor.Append(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("audit append failed")
	}
}

// applyRegistryRecord overwrites local fields with non-empty registry
// values.
func applyRegistryRecord(p *Patient, r *registry.UserRecord) {
	if r.FirstName != "" {
		p.FirstName = r.FirstName
	}
	if r.LastName != "" {
		p.LastName = r.LastName
	}
	if !r.DateOfBirth.IsZero() {
		p.DateOfBirth = r.DateOfBirth
	}
	if g := types.ParseGender(r.Gender); g != types.GenderUnknown {
		p.Gender = g
	}
	if r.Phone != "" {
		p.Phone = r.Phone
	}
	if r.Email != "" {
		p.Email = r.Email
	}
	if r.Address != "" {
		p.Address = r.Address
	}
}

// diffPatient applies authoritative non-empty registry fields that
// differ from the local values and returns the names of the changed
// fields. An empty result means no write is needed.
func diffPatient(p *Patient, r *registry.UserRecord) []string {
	var changed []string

	if r.FirstName != "" && r.FirstName != p.FirstName {
		p.FirstName = r.FirstName
		changed = append(changed, "first_name")
	}
	if r.LastName != "" && r.LastName != p.LastName {
		p.LastName = r.LastName
		changed = append(changed, "last_name")
	}
	if !r.DateOfBirth.IsZero() && !sameDate(r.DateOfBirth, p.DateOfBirth) {
		p.DateOfBirth = r.DateOfBirth
		changed = append(changed, "date_of_birth")
	}
	if g := types.ParseGender(r.Gender); g != types.GenderUnknown && g != p.Gender {
		p.Gender = g
		changed = append(changed, "gender")
	}
	if r.Phone != "" && r.Phone != p.Phone {
		p.Phone = r.Phone
		changed = append(changed, "phone")
	}
	if r.Email != "" && r.Email != p.Email {
		p.Email = r.Email
		changed = append(changed, "email")
	}
	if r.Address != "" && r.Address != p.Address {
		p.Address = r.Address
		changed = append(changed, "address")
	}

	sort.Strings(changed)
	return changed
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
