package flagging

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/metrics"
	"github.com/medilab/platform/internal/shared/types"
)

// ConfigSource resolves the active threshold configuration for a test
type ConfigSource interface {
	FindActive(ctx context.Context, testCode string, gender types.Gender) (*Config, error)
}

// Engine computes deterministic Low/Normal/High flags. It never fails
// the ingestion path: missing configuration or an absent value both
// degrade to Normal.
type Engine struct {
	configs ConfigSource
	logger  zerolog.Logger
}

// NewEngine creates a flagging engine
func NewEngine(configs ConfigSource, logger zerolog.Logger) *Engine {
	return &Engine{
		configs: configs,
		logger:  logger.With().Str("component", "flagging_engine").Logger(),
	}
}

// CalculateFlag classifies a numeric value for the test code. A nil
// value or a missing configuration yields Normal (fail-open).
func (e *Engine) CalculateFlag(ctx context.Context, testCode string, value *float64, gender types.Gender) Flag {
	if value == nil {
		metrics.RecordFlagComputed(string(FlagNormal))
		return FlagNormal
	}

	cfg, err := e.configs.FindActive(ctx, testCode, gender)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			e.logger.Warn().Str("test_code", testCode).Str("gender", gender.String()).
				Msg("no active flagging configuration, defaulting to Normal")
		} else {
			e.logger.Warn().Err(err).Str("test_code", testCode).
				Msg("flagging configuration lookup failed, defaulting to Normal")
		}
		metrics.RecordFlagComputed(string(FlagNormal))
		return FlagNormal
	}

	flag := cfg.Classify(*value)
	metrics.RecordFlagComputed(string(flag))
	return flag
}
