package result

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/medilab/platform/internal/flagging"
	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/types"
)

type memGuard struct {
	mu       sync.Mutex
	admitted map[string]bool
}

func newMemGuard() *memGuard {
	return &memGuard{admitted: make(map[string]bool)}
}

func (g *memGuard) TryAdmit(ctx context.Context, messageID, sourceSystem string, orderID types.ID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.admitted[messageID] {
		return false, nil
	}
	g.admitted[messageID] = true
	return true, nil
}

type memResultStore struct {
	mu      sync.Mutex
	results []TestResult
}

func (s *memResultStore) CreateBatch(ctx context.Context, results []TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, results...)
	return nil
}

type memOrderResolver struct {
	orders map[string]*OrderContext
}

func (r *memOrderResolver) ResolveByCode(ctx context.Context, orderCode string) (*OrderContext, error) {
	o, ok := r.orders[orderCode]
	if !ok {
		return nil, errors.NotFound("test order", orderCode)
	}
	return o, nil
}

type staticFlagger struct {
	flag flagging.Flag
}

func (f *staticFlagger) CalculateFlag(ctx context.Context, testCode string, value *float64, gender types.Gender) flagging.Flag {
	return f.flag
}

type staticReviewer struct {
	label string
}

func (r *staticReviewer) Review(ctx context.Context, res *TestResult) string {
	res.ResultStatus = r.label
	res.ReviewedByAI = true
	return r.label
}

func ptr(v float64) *float64 { return &v }

func newTestIngestor(store *memResultStore) *Ingestor {
	orderID := types.NewID()
	resolver := &memOrderResolver{orders: map[string]*OrderContext{
		"ORD-20250101120000-ABC123": {OrderID: orderID, TestType: "CBC", PatientGender: types.GenderMale},
	}}
	return NewIngestor(
		newMemGuard(), store, resolver,
		&staticFlagger{flag: flagging.FlagLow}, &staticReviewer{label: "Low"},
		nil, nil, zerolog.Nop(),
	)
}

func validMessage(messageID string) InstrumentMessage {
	return InstrumentMessage{
		MessageID:    messageID,
		SourceSystem: "analyzer-1",
		OrderCode:    "ORD-20250101120000-ABC123",
		Results: []InstrumentResult{
			{Parameter: "WBC", NumericValue: ptr(3.0), Unit: "10^3/uL", ReferenceRange: "4.0-11.0"},
			{Parameter: "RBC", NumericValue: ptr(4.8), Unit: "10^6/uL", ReferenceRange: "4.35-5.65"},
		},
	}
}

func TestIngestMaterializesResults(t *testing.T) {
	store := &memResultStore{}
	ing := newTestIngestor(store)

	count, err := ing.Ingest(context.Background(), validMessage("msg-1"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if count != 2 {
		t.Fatalf("Expected 2 results, got %d", count)
	}
	if len(store.results) != 2 {
		t.Fatalf("Expected 2 persisted results, got %d", len(store.results))
	}

	for _, res := range store.results {
		if res.Flag != "Low" {
			t.Fatalf("Expected flag Low, got %q", res.Flag)
		}
		if res.ResultStatus != "Low" || !res.ReviewedByAI {
			t.Fatalf("Expected reviewed result, got %+v", res)
		}
		if res.TestOrderID.IsZero() {
			t.Fatal("Expected order linkage on result")
		}
	}
}

// Re-ingesting an admitted message must have no second effect
func TestIngestDuplicateMessage(t *testing.T) {
	store := &memResultStore{}
	ing := newTestIngestor(store)

	if _, err := ing.Ingest(context.Background(), validMessage("msg-1")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	count, err := ing.Ingest(context.Background(), validMessage("msg-1"))
	if err != nil {
		t.Fatalf("Expected no error on duplicate, got %v", err)
	}
	if count != 0 {
		t.Fatalf("Expected 0 results on duplicate, got %d", count)
	}
	if len(store.results) != 2 {
		t.Fatalf("Expected no duplicate rows, got %d", len(store.results))
	}
}

func TestIngestDistinctMessages(t *testing.T) {
	store := &memResultStore{}
	ing := newTestIngestor(store)

	for _, id := range []string{"msg-1", "msg-2"} {
		if _, err := ing.Ingest(context.Background(), validMessage(id)); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}
	if len(store.results) != 4 {
		t.Fatalf("Expected 4 persisted results, got %d", len(store.results))
	}
}

func TestIngestValidation(t *testing.T) {
	store := &memResultStore{}
	ing := newTestIngestor(store)

	tests := []struct {
		name   string
		mutate func(*InstrumentMessage)
	}{
		{"missing message id", func(m *InstrumentMessage) { m.MessageID = "" }},
		{"missing source system", func(m *InstrumentMessage) { m.SourceSystem = "" }},
		{"missing order code", func(m *InstrumentMessage) { m.OrderCode = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validMessage("msg-x")
			tt.mutate(&msg)

			_, err := ing.Ingest(context.Background(), msg)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !errors.Is(err, errors.ErrValidation) {
				t.Fatalf("Expected ErrValidation, got %v", err)
			}
		})
	}

	if len(store.results) != 0 {
		t.Fatalf("Expected no writes on validation failure, got %d", len(store.results))
	}
}

func TestIngestUnknownOrder(t *testing.T) {
	store := &memResultStore{}
	ing := newTestIngestor(store)

	msg := validMessage("msg-1")
	msg.OrderCode = "ORD-00000000000000-FFFFFF"

	_, err := ing.Ingest(context.Background(), msg)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if len(store.results) != 0 {
		t.Fatalf("Expected no writes, got %d", len(store.results))
	}
}

// Concurrent redelivery of the same message admits exactly one winner
func TestIngestConcurrentRedelivery(t *testing.T) {
	store := &memResultStore{}
	ing := newTestIngestor(store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ing.Ingest(context.Background(), validMessage("msg-1"))
		}()
	}
	wg.Wait()

	if len(store.results) != 2 {
		t.Fatalf("Expected exactly one persisted effect (2 rows), got %d", len(store.results))
	}
}
