package review

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/medilab/platform/internal/result"
)

func ptr(v float64) *float64 { return &v }

func trainingHistory() []result.TestResult {
	var history []result.TestResult
	add := func(value float64, label string) {
		history = append(history, result.TestResult{
			Parameter:    "WBC",
			Unit:         "10^3/uL",
			NumericValue: ptr(value),
			ResultStatus: label,
		})
	}

	for _, v := range []float64{1.0, 2.0, 2.5, 3.0, 3.5} {
		add(v, "Low")
	}
	for _, v := range []float64{5.0, 6.0, 7.0, 8.0, 9.0} {
		add(v, "Normal")
	}
	for _, v := range []float64{13.0, 15.0, 18.0, 20.0, 25.0} {
		add(v, "High")
	}
	return history
}

func TestTrainAndReview(t *testing.T) {
	svc := NewService(zerolog.Nop())
	svc.Train(context.Background(), trainingHistory())

	tests := []struct {
		value float64
		want  string
	}{
		{2.0, "Low"},
		{7.0, "Normal"},
		{18.0, "High"},
	}

	for _, tt := range tests {
		r := &result.TestResult{Parameter: "WBC", Unit: "10^3/uL", NumericValue: ptr(tt.value)}
		got := svc.Review(context.Background(), r)
		if got != tt.want {
			t.Fatalf("Expected %s for %v, got %s", tt.want, tt.value, got)
		}
		if r.ResultStatus != tt.want {
			t.Fatalf("Expected label written back, got %q", r.ResultStatus)
		}
		if !r.ReviewedByAI || r.AIReviewedDate == nil {
			t.Fatal("Expected AI review fields to be set")
		}
	}
}

func TestTrainFiltersUnusableRows(t *testing.T) {
	svc := NewService(zerolog.Nop())

	svc.Train(context.Background(), []result.TestResult{
		{Parameter: "WBC", Unit: "10^3/uL", ResultStatus: "Low"},       // no value
		{Unit: "10^3/uL", NumericValue: ptr(1.0), ResultStatus: "Low"}, // no parameter
		{Parameter: "WBC", NumericValue: ptr(1.0), ResultStatus: "Low"}, // no unit
		{Parameter: "WBC", Unit: "10^3/uL", NumericValue: ptr(1.0)},     // no label
	})

	if svc.model.Load() != nil {
		t.Fatal("Expected no model from unusable rows")
	}
}

func TestTrainEmptyIsNoOp(t *testing.T) {
	svc := NewService(zerolog.Nop())
	svc.Train(context.Background(), trainingHistory())
	trained := svc.model.Load()

	svc.Train(context.Background(), nil)

	if svc.model.Load() != trained {
		t.Fatal("Expected empty training set to keep the published model")
	}
}

func TestReviewUntrainedFallsBackToRule(t *testing.T) {
	svc := NewService(zerolog.Nop())

	tests := []struct {
		name   string
		result result.TestResult
		want   string
	}{
		{"below range", result.TestResult{NumericValue: ptr(3.0), ReferenceRange: "4.0-11.0"}, "Low"},
		{"in range", result.TestResult{NumericValue: ptr(7.0), ReferenceRange: "4.0-11.0"}, "Normal"},
		{"above range", result.TestResult{NumericValue: ptr(12.0), ReferenceRange: "4.0-11.0"}, "High"},
		{"no range", result.TestResult{NumericValue: ptr(7.0)}, "Pending"},
		{"unparsable range", result.TestResult{NumericValue: ptr(7.0), ReferenceRange: "see note"}, "Unknown"},
		{"no value with range", result.TestResult{ReferenceRange: "4.0-11.0"}, "Pending"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.result
			got := svc.Review(context.Background(), &r)
			if got != tt.want {
				t.Fatalf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestReviewNeverEmpty(t *testing.T) {
	svc := NewService(zerolog.Nop())
	svc.Train(context.Background(), trainingHistory())

	inputs := []result.TestResult{
		{},
		{NumericValue: ptr(7.0)},
		{Parameter: "XYZ", Unit: "?", NumericValue: ptr(-5.0)},
		{TextValue: "positive", ReferenceRange: "negative"},
	}

	for _, in := range inputs {
		r := in
		if got := svc.Review(context.Background(), &r); got == "" {
			t.Fatalf("Expected a label for %+v, got empty", in)
		}
	}
}

func TestVocabularyDeterministic(t *testing.T) {
	svc := NewService(zerolog.Nop())
	svc.Train(context.Background(), trainingHistory())

	vocab := *svc.vocab.Load()
	want := []string{"High", "Low", "Normal"}
	if len(vocab) != len(want) {
		t.Fatalf("Expected %d labels, got %d", len(want), len(vocab))
	}
	for i := range want {
		if vocab[i] != want[i] {
			t.Fatalf("Expected sorted vocabulary %v, got %v", want, vocab)
		}
	}
}

// Concurrent retraining must never expose a half-built model
func TestConcurrentTrainAndReview(t *testing.T) {
	svc := NewService(zerolog.Nop())
	svc.Train(context.Background(), trainingHistory())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				svc.Train(context.Background(), trainingHistory())
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r := &result.TestResult{Parameter: "WBC", Unit: "10^3/uL", NumericValue: ptr(7.0)}
				if got := svc.Review(context.Background(), r); got == "" {
					t.Error("Expected a label during concurrent retraining")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("White Blood Cells", "10^3/uL")
	want := map[string]bool{"white": true, "blood": true, "cells": true, "10": true, "3": true, "ul": true}
	if len(tokens) != len(want) {
		t.Fatalf("Expected %d tokens, got %v", len(want), tokens)
	}
	for _, tok := range tokens {
		if !want[tok] {
			t.Fatalf("Unexpected token %q in %v", tok, tokens)
		}
	}
}
