package order

import (
	"regexp"
	"testing"
)

func TestGenerateOrderCodeFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^ORD-\d{14}-[0-9A-F]{6}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := GenerateOrderCode()
		if !pattern.MatchString(code) {
			t.Fatalf("Expected code matching ORD-<timestamp>-<hex>, got %s", code)
		}
		if seen[code] {
			t.Fatalf("Expected unique codes, got duplicate %s", code)
		}
		seen[code] = true
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		input string
		want  Priority
		ok    bool
	}{
		{"normal", PriorityNormal, true},
		{"urgent", PriorityUrgent, true},
		{"emergency", PriorityEmergency, true},
		{"Urgent", PriorityUrgent, true},
		{"", "", false},
		{"stat", "", false},
	}

	for _, tt := range tests {
		got, err := ParsePriority(tt.input)
		if tt.ok && err != nil {
			t.Fatalf("Expected no error for %q, got %v", tt.input, err)
		}
		if !tt.ok && err == nil {
			t.Fatalf("Expected error for %q", tt.input)
		}
		if tt.ok && got != tt.want {
			t.Fatalf("Expected %s for %q, got %s", tt.want, tt.input, got)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"Created", "Pending", "InProgress", "Completed", "Cancelled"} {
		if _, err := ParseStatus(s); err != nil {
			t.Fatalf("Expected no error for %q, got %v", s, err)
		}
	}

	for _, s := range []string{"", "created", "Done", "archived"} {
		if _, err := ParseStatus(s); err == nil {
			t.Fatalf("Expected error for %q", s)
		}
	}
}

func TestDeleteIntent(t *testing.T) {
	tests := []struct {
		status Status
		want   DeleteMode
	}{
		{StatusCompleted, SoftDelete},
		{StatusCreated, HardDelete},
		{StatusPending, HardDelete},
		{StatusInProgress, HardDelete},
		{StatusCancelled, HardDelete},
	}

	for _, tt := range tests {
		o := &TestOrder{Status: tt.status}
		if got := DeleteIntent(o); got != tt.want {
			t.Fatalf("Expected %s for status %s, got %s", tt.want, tt.status, got)
		}
	}
}
