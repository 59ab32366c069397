package flagging

import (
	"time"

	"github.com/medilab/platform/internal/shared/types"
)

// Flag is the classification of a numeric result against its
// reference thresholds.
type Flag string

const (
	FlagLow    Flag = "Low"
	FlagNormal Flag = "Normal"
	FlagHigh   Flag = "High"
)

// Config is one versioned threshold definition for a test code.
// Gender is empty for gender-agnostic thresholds; a gender-specific
// row takes precedence when both exist.
type Config struct {
	ID            types.ID     `json:"id"`
	TestCode      string       `json:"test_code"`
	Gender        types.Gender `json:"gender,omitempty"`
	Min           float64      `json:"min"`
	Max           float64      `json:"max"`
	Unit          string       `json:"unit"`
	Version       int          `json:"version"`
	IsActive      bool         `json:"is_active"`
	EffectiveDate time.Time    `json:"effective_date"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Classify applies the thresholds to a value. Bounds are inclusive:
// a value equal to Min or Max is Normal.
func (c *Config) Classify(value float64) Flag {
	switch {
	case value < c.Min:
		return FlagLow
	case value > c.Max:
		return FlagHigh
	default:
		return FlagNormal
	}
}
