package result

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medilab/platform/internal/audit"
	"github.com/medilab/platform/internal/flagging"
	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/events"
	"github.com/medilab/platform/internal/shared/metrics"
	"github.com/medilab/platform/internal/shared/types"
)

// OrderContext is what ingestion needs to know about the target order
type OrderContext struct {
	OrderID       types.ID
	TestType      string
	PatientGender types.Gender
}

// OrderResolver maps an instrument order code to its order context
type OrderResolver interface {
	ResolveByCode(ctx context.Context, orderCode string) (*OrderContext, error)
}

// Admitter gates message processing, true only on first admission
type Admitter interface {
	TryAdmit(ctx context.Context, messageID, sourceSystem string, orderID types.ID) (bool, error)
}

// Store persists materialized results
type Store interface {
	CreateBatch(ctx context.Context, results []TestResult) error
}

// Flagger computes the deterministic threshold flag
type Flagger interface {
	CalculateFlag(ctx context.Context, testCode string, value *float64, gender types.Gender) flagging.Flag
}

// Reviewer resolves the statistical status label for a result
type Reviewer interface {
	Review(ctx context.Context, r *TestResult) string
}

// Ingestor turns instrument messages into classified test results.
// All materialization is gated on the admission guard so redelivered
// messages have exactly one persisted effect.
type Ingestor struct {
	guard    Admitter
	store    Store
	orders   OrderResolver
	flagger  Flagger
	reviewer Reviewer
	auditor  audit.Sink
	bus      events.Publisher
	logger   zerolog.Logger
}

// NewIngestor creates a result ingestor. auditor and bus may be nil.
func NewIngestor(guard Admitter, store Store, orders OrderResolver, flagger Flagger, reviewer Reviewer, auditor audit.Sink, bus events.Publisher, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		guard:    guard,
		store:    store,
		orders:   orders,
		flagger:  flagger,
		reviewer: reviewer,
		auditor:  auditor,
		bus:      bus,
		logger:   logger.With().Str("component", "result_ingestor").Logger(),
	}
}

// Ingest processes one instrument message and returns the number of
// results persisted. A redelivered message returns 0 with no error.
func (i *Ingestor) Ingest(ctx context.Context, msg InstrumentMessage) (int, error) {
	if err := validateMessage(msg); err != nil {
		return 0, err
	}

	orderCtx, err := i.orders.ResolveByCode(ctx, msg.OrderCode)
	if err != nil {
		return 0, err
	}

	admitted, err := i.guard.TryAdmit(ctx, msg.MessageID, msg.SourceSystem, orderCtx.OrderID)
	if err != nil {
		return 0, err
	}
	if !admitted {
		metrics.RecordDuplicateMessage(msg.SourceSystem)
		i.logger.Info().Str("message_id", msg.MessageID).Str("source", msg.SourceSystem).
			Msg("duplicate instrument message rejected")
		return 0, nil
	}

	results := make([]TestResult, 0, len(msg.Results))
	for _, in := range msg.Results {
		res := TestResult{
			TestOrderID:    orderCtx.OrderID,
			Parameter:      in.Parameter,
			NumericValue:   in.NumericValue,
			TextValue:      in.TextValue,
			Unit:           in.Unit,
			ReferenceRange: in.ReferenceRange,
		}

		res.Flag = string(i.flagger.CalculateFlag(ctx, in.Parameter, in.NumericValue, orderCtx.PatientGender))
		i.reviewer.Review(ctx, &res)

		results = append(results, res)
	}

	if err := i.store.CreateBatch(ctx, results); err != nil {
		return 0, err
	}
	metrics.RecordResultIngested(msg.SourceSystem)

	i.appendAudit(ctx, msg, orderCtx.OrderID, len(results))
	i.publishEvent(ctx, msg, orderCtx.OrderID, len(results))

	return len(results), nil
}

func validateMessage(msg InstrumentMessage) error {
	details := make(map[string]string)
	if msg.MessageID == "" {
		details["message_id"] = "required"
	}
	if msg.SourceSystem == "" {
		details["source_system"] = "required"
	}
	if msg.OrderCode == "" {
		details["order_code"] = "required"
	}
	if len(details) > 0 {
		return errors.Validation("invalid instrument message", details)
	}
	return nil
}

func (i *Ingestor) appendAudit(ctx context.Context, msg InstrumentMessage, orderID types.ID, count int) {
	if i.auditor == nil {
		return
	}
	entry := audit.NewEventLog(
		audit.ActionIngestResult,
		fmt.Sprintf("Ingested %d results from %s message %s", count, msg.SourceSystem, msg.MessageID),
		msg.SourceSystem,
		audit.EntityTestOrder,
		orderID.String(),
	)
	if err := i.auditor.Append(ctx, entry); err != nil {
		i.logger.Warn().Err(err).Msg("audit append failed")
	}
}

func (i *Ingestor) publishEvent(ctx context.Context, msg InstrumentMessage, orderID types.ID, count int) {
	if i.bus == nil {
		return
	}
	event := events.NewEvent(events.TypeResultIngested, "result_ingestor", map[string]any{
		"message_id":    msg.MessageID,
		"source_system": msg.SourceSystem,
		"test_order_id": orderID.String(),
		"result_count":  count,
	})
	if err := i.bus.Publish(ctx, event); err != nil {
		i.logger.Warn().Err(err).Msg("event publish failed")
	}
}
