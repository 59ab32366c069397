package review

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// sample is one training observation: a numeric value, token features
// from the parameter name and unit, and the resolved status label.
type sample struct {
	value  float64
	tokens []string
	label  string
}

// classStats accumulates per-class statistics during training
type classStats struct {
	count       int
	sum         float64
	sumSq       float64
	tokenCounts map[string]int
	totalTokens int
}

// model is an immutable trained naive Bayes classifier. The numeric
// value uses a Gaussian likelihood per class; parameter and unit
// tokens use a multinomial likelihood with add-one smoothing. Models
// are never mutated after build; retraining builds a new one.
type model struct {
	classes []string
	stats   map[string]*classStats
	vocab   map[string]struct{}
	total   int
}

// buildModel trains a model from filtered samples. Returns nil when
// there is nothing to learn from.
func buildModel(samples []sample) *model {
	if len(samples) == 0 {
		return nil
	}

	m := &model{
		stats: make(map[string]*classStats),
		vocab: make(map[string]struct{}),
		total: len(samples),
	}

	for _, s := range samples {
		cs, ok := m.stats[s.label]
		if !ok {
			cs = &classStats{tokenCounts: make(map[string]int)}
			m.stats[s.label] = cs
			m.classes = append(m.classes, s.label)
		}
		cs.count++
		cs.sum += s.value
		cs.sumSq += s.value * s.value
		for _, tok := range s.tokens {
			cs.tokenCounts[tok]++
			cs.totalTokens++
			m.vocab[tok] = struct{}{}
		}
	}

	sort.Strings(m.classes)
	return m
}

// predict scores every class and returns the winning label along with
// the per-class log scores, ordered to match vocabulary().
func (m *model) predict(value float64, tokens []string) (string, []float64) {
	scores := make([]float64, len(m.classes))
	best := -1

	for i, class := range m.classes {
		cs := m.stats[class]
		score := math.Log(float64(cs.count) / float64(m.total))
		score += m.gaussianLogLikelihood(cs, value)
		for _, tok := range tokens {
			score += m.tokenLogLikelihood(cs, tok)
		}
		scores[i] = score
		if best < 0 || score > scores[best] {
			best = i
		}
	}

	if best < 0 {
		return "", scores
	}
	return m.classes[best], scores
}

// vocabulary returns the class labels in score order
func (m *model) vocabulary() []string {
	return m.classes
}

func (m *model) gaussianLogLikelihood(cs *classStats, value float64) float64 {
	mean := cs.sum / float64(cs.count)
	variance := cs.sumSq/float64(cs.count) - mean*mean
	// Variance floor keeps single-sample classes usable
	if variance < 1e-9 {
		variance = 1e-9
	}
	diff := value - mean
	return -0.5*math.Log(2*math.Pi*variance) - diff*diff/(2*variance)
}

func (m *model) tokenLogLikelihood(cs *classStats, token string) float64 {
	count := cs.tokenCounts[token]
	return math.Log(float64(count+1) / float64(cs.totalTokens+len(m.vocab)))
}

// tokenize splits parameter and unit text into lowercase alphanumeric
// tokens.
func tokenize(parts ...string) []string {
	var tokens []string
	for _, part := range parts {
		fields := strings.FieldsFunc(strings.ToLower(part), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		tokens = append(tokens, fields...)
	}
	return tokens
}
