package review

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/medilab/platform/internal/result"
	"github.com/medilab/platform/internal/shared/metrics"
)

// Status labels produced by the review chain
const (
	StatusLow     = "Low"
	StatusNormal  = "Normal"
	StatusHigh    = "High"
	StatusPending = "Pending"
	StatusUnknown = "Unknown"
)

// Service predicts a result status label for incoming test results.
// The trained model is process-wide and read-mostly: retraining builds
// a complete replacement off to the side and publishes it with an
// atomic pointer swap, so readers never see a half-built model.
type Service struct {
	model  atomic.Pointer[model]
	vocab  atomic.Pointer[[]string]
	logger zerolog.Logger
}

// NewService creates an untrained review service. Until Train runs,
// every review resolves through the rule-based fallback.
func NewService(logger zerolog.Logger) *Service {
	return &Service{
		logger: logger.With().Str("component", "review_service").Logger(),
	}
}

// Train fits the classifier on historical results. Rows without a
// numeric value, parameter, unit, or resolved status label are
// filtered out; an empty training set is a no-op and the previous
// model stays published.
func (s *Service) Train(ctx context.Context, history []result.TestResult) {
	var samples []sample
	labels := make(map[string]struct{})

	for _, r := range history {
		if r.NumericValue == nil || r.Parameter == "" || r.Unit == "" || r.ResultStatus == "" {
			continue
		}
		samples = append(samples, sample{
			value:  *r.NumericValue,
			tokens: tokenize(r.Parameter, r.Unit),
			label:  r.ResultStatus,
		})
		labels[r.ResultStatus] = struct{}{}
	}

	if len(samples) == 0 {
		s.logger.Info().Int("history", len(history)).Msg("no usable training rows, keeping current model")
		return
	}

	m := buildModel(samples)

	// Label vocabulary comes from the model's class metadata; the
	// distinct sorted training labels are the deterministic fallback.
	vocab := m.vocabulary()
	if len(vocab) == 0 {
		for label := range labels {
			vocab = append(vocab, label)
		}
		sort.Strings(vocab)
	}

	s.model.Store(m)
	s.vocab.Store(&vocab)

	s.logger.Info().Int("samples", len(samples)).Int("classes", len(vocab)).
		Msg("review model trained")
}

// Review resolves a status label for the result through the ordered
// strategy chain and writes it back along with the AI review fields.
// It never fails: some label always wins.
func (s *Service) Review(ctx context.Context, r *result.TestResult) string {
	label := s.resolve(r)

	now := time.Now().UTC()
	r.ResultStatus = label
	r.ReviewedByAI = true
	r.AIReviewedDate = &now

	return label
}

type strategy struct {
	name  string
	apply func(*result.TestResult) string
}

// resolve tries each labeling strategy in order; the first non-empty
// label wins. The rule-based strategy always produces a label, which
// makes the chain total.
func (s *Service) resolve(r *result.TestResult) string {
	strategies := []strategy{
		{"classifier", s.classifierLabel},
		{"argmax", s.argmaxLabel},
		{"rule", rangeRuleLabel},
	}

	for _, st := range strategies {
		if label := st.apply(r); label != "" {
			metrics.RecordReviewPrediction(st.name)
			return label
		}
	}

	// Unreachable: rangeRuleLabel is total
	return StatusUnknown
}

// classifierLabel asks the trained model directly
func (s *Service) classifierLabel(r *result.TestResult) string {
	m := s.model.Load()
	if m == nil || r.NumericValue == nil {
		return ""
	}
	label, _ := m.predict(*r.NumericValue, tokenize(r.Parameter, r.Unit))
	return label
}

// argmaxLabel decodes the highest-scoring class index against the
// derived label vocabulary when the model returns no usable label.
func (s *Service) argmaxLabel(r *result.TestResult) string {
	m := s.model.Load()
	vocabPtr := s.vocab.Load()
	if m == nil || vocabPtr == nil || r.NumericValue == nil {
		return ""
	}
	vocab := *vocabPtr

	_, scores := m.predict(*r.NumericValue, tokenize(r.Parameter, r.Unit))
	best := -1
	for i := range scores {
		if best < 0 || scores[i] > scores[best] {
			best = i
		}
	}
	if best < 0 || best >= len(vocab) {
		return ""
	}
	return vocab[best]
}

var rangePattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)\s*$`)

// rangeRuleLabel is the pure fallback: parse the reference range as
// "low-high" and compare. No range means the result is still pending
// interpretation; an unparsable range is Unknown.
func rangeRuleLabel(r *result.TestResult) string {
	if r.ReferenceRange == "" {
		return StatusPending
	}

	match := rangePattern.FindStringSubmatch(r.ReferenceRange)
	if match == nil {
		return StatusUnknown
	}

	low, err1 := strconv.ParseFloat(match[1], 64)
	high, err2 := strconv.ParseFloat(match[2], 64)
	if err1 != nil || err2 != nil {
		return StatusUnknown
	}

	if r.NumericValue == nil {
		return StatusPending
	}

	switch {
	case *r.NumericValue < low:
		return StatusLow
	case *r.NumericValue > high:
		return StatusHigh
	default:
		return StatusNormal
	}
}
