package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/medilab/platform/internal/shared/types"
)

// Entity types referenced by audit entries
const (
	EntityTestOrder     = "TestOrder"
	EntityTestResult    = "TestResult"
	EntityPatient       = "Patient"
	EntityMedicalRecord = "MedicalRecord"
)

// Actions recorded by the lab pipeline
const (
	ActionCreateOrder    = "Create Test Order"
	ActionModifyOrder    = "Modify Test Order"
	ActionDeleteOrder    = "Delete Test Order"
	ActionRelinkOrder    = "Relink Test Order"
	ActionSyncPatient    = "Synchronize Patient"
	ActionCreatePatient  = "Create Patient"
	ActionIngestResult   = "Ingest Test Result"
	ActionReviewResult   = "Review Test Result"
)

// EventLog is an immutable audit record. Entries are hash-chained:
// each entry's hash covers its content plus the previous entry's hash,
// so tampering with history is detectable.
type EventLog struct {
	EventID    types.ID  `json:"event_id"`
	Sequence   int64     `json:"sequence"`
	Action     string    `json:"action"`
	Message    string    `json:"message"`
	Operator   string    `json:"operator"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Timestamp  time.Time `json:"timestamp"`
	Hash       string    `json:"hash"`
	PrevHash   string    `json:"prev_hash,omitempty"`
}

// NewEventLog creates a new audit entry. The hash is finalized by the
// repository once the previous hash is known.
func NewEventLog(action, message, operator, entityType, entityID string) *EventLog {
	e := &EventLog{
		EventID:    types.NewID(),
		Action:     action,
		Message:    message,
		Operator:   operator,
		EntityType: entityType,
		EntityID:   entityID,
		// Truncate to microseconds for PostgreSQL round-trip stability
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
	}
	e.Hash = e.computeHash()
	return e
}

// computeHash hashes the entry content with explicit field ordering.
// Timestamps are always rendered in UTC so verification is independent
// of the local timezone.
func (e *EventLog) computeHash() string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s",
		e.EventID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.PrevHash,
		e.Action,
		e.Message,
		e.Operator,
		e.EntityType,
		e.EntityID,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// VerifyHash verifies the entry's content hash
func (e *EventLog) VerifyHash() bool {
	return e.Hash == e.computeHash()
}

// ListFilter defines filters for listing audit entries
type ListFilter struct {
	Action     string
	EntityType string
	EntityID   string
	Operator   string
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
	Offset     int
}
