package order

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/medilab/platform/internal/shared/types"
)

// Priority of a test order
type Priority string

const (
	PriorityNormal    Priority = "normal"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

// ParsePriority validates a priority string
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(s)) {
	case PriorityNormal, PriorityUrgent, PriorityEmergency:
		return Priority(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("priority must be one of normal, urgent, emergency")
	}
}

// Status of a test order. The set is closed: Modify rejects anything
// outside it.
type Status string

const (
	StatusCreated    Status = "Created"
	StatusPending    Status = "Pending"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
)

// ParseStatus validates a status string
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusCreated, StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return Status(s), nil
	default:
		return "", fmt.Errorf("status must be one of Created, Pending, InProgress, Completed, Cancelled")
	}
}

// TestOrder tracks one laboratory order through its lifecycle
type TestOrder struct {
	ID              types.ID   `json:"id"`
	MedicalRecordID types.ID   `json:"medical_record_id"`
	OrderCode       string     `json:"order_code"`
	TestType        string     `json:"test_type"`
	Priority        Priority   `json:"priority"`
	Status          Status     `json:"status"`
	Note            string     `json:"note,omitempty"`
	IsDeleted       bool       `json:"is_deleted"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	DeletedBy       string     `json:"deleted_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CreatedBy       string     `json:"created_by"`
	UpdatedAt       time.Time  `json:"updated_at"`
	UpdatedBy       string     `json:"updated_by,omitempty"`
}

// DeleteMode is the terminal path chosen for an order
type DeleteMode string

const (
	SoftDelete DeleteMode = "soft"
	HardDelete DeleteMode = "hard"
)

// DeleteIntent decides the delete path from the order's state.
// Completed orders carry results with compliance value, so their rows
// are retained; everything else is removed outright.
func DeleteIntent(o *TestOrder) DeleteMode {
	if o.Status == StatusCompleted {
		return SoftDelete
	}
	return HardDelete
}

// GenerateOrderCode produces a unique human-readable order code:
// ORD-<UTC timestamp>-<6 hex chars>.
func GenerateOrderCode() string {
	suffix := make([]byte, 3)
	rand.Read(suffix)
	return fmt.Sprintf("ORD-%s-%s",
		time.Now().UTC().Format("20060102150405"),
		strings.ToUpper(hex.EncodeToString(suffix)))
}
