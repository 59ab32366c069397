package result

import (
	"time"

	"github.com/medilab/platform/internal/shared/types"
)

// TestResult is one measured parameter belonging to a test order.
// Flag and ResultStatus are written by the classification components
// after materialization.
type TestResult struct {
	ID             types.ID   `json:"id"`
	TestOrderID    types.ID   `json:"test_order_id"`
	Parameter      string     `json:"parameter"`
	NumericValue   *float64   `json:"numeric_value,omitempty"`
	TextValue      string     `json:"text_value,omitempty"`
	Unit           string     `json:"unit,omitempty"`
	ReferenceRange string     `json:"reference_range,omitempty"`
	Flag           string     `json:"flag,omitempty"`
	ResultStatus   string     `json:"result_status,omitempty"`
	ReviewedByAI   bool       `json:"reviewed_by_ai"`
	AIReviewedDate *time.Time `json:"ai_reviewed_date,omitempty"`
	IsConfirmed    bool       `json:"is_confirmed"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ProcessedMessage marks an instrument message as handled. Existence
// of a row is the idempotency guarantee; rows are never updated.
type ProcessedMessage struct {
	MessageID    string    `json:"message_id"`
	SourceSystem string    `json:"source_system"`
	TestOrderID  types.ID  `json:"test_order_id"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// InstrumentMessage is the wire shape delivered by instrument feeds.
// MessageID is assigned by the source system and drives deduplication.
type InstrumentMessage struct {
	MessageID    string             `json:"message_id"`
	SourceSystem string             `json:"source_system"`
	OrderCode    string             `json:"order_code"`
	Results      []InstrumentResult `json:"results"`
}

// InstrumentResult is one measurement within an instrument message
type InstrumentResult struct {
	Parameter      string   `json:"parameter"`
	NumericValue   *float64 `json:"numeric_value,omitempty"`
	TextValue      string   `json:"text_value,omitempty"`
	Unit           string   `json:"unit,omitempty"`
	ReferenceRange string   `json:"reference_range,omitempty"`
}
