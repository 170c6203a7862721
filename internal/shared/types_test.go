package shared

import (
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	tests := []struct {
		prefix string
	}{
		{prefix: "evt_"},
		{prefix: "item_"},
		{prefix: ""},
	}

	for _, tt := range tests {
		t.Run("prefix_"+tt.prefix, func(t *testing.T) {
			id := NewID(tt.prefix)
			if !strings.HasPrefix(id, tt.prefix) {
				t.Errorf("expected ID to start with '%s', got '%s'", tt.prefix, id)
			}
			expectedLen := len(tt.prefix) + 32
			if len(id) != expectedLen {
				t.Errorf("expected length %d, got %d", expectedLen, len(id))
			}
		})
	}

	id1 := NewID("test_")
	id2 := NewID("test_")
	if id1 == id2 {
		t.Error("expected unique IDs, got duplicates")
	}
}

func TestNormalizeBackoff(t *testing.T) {
	tests := []struct {
		name  string
		input BackoffConfig
		want  BackoffConfig
	}{
		{
			name:  "empty config gets defaults",
			input: BackoffConfig{},
			want:  BackoffConfig{Initial: time.Second, MaxAttempts: 5, MaxDelay: 30 * time.Second},
		},
		{
			name:  "preserves non-zero values",
			input: BackoffConfig{Initial: 200 * time.Millisecond, MaxAttempts: 10, MaxDelay: 5 * time.Second},
			want:  BackoffConfig{Initial: 200 * time.Millisecond, MaxAttempts: 10, MaxDelay: 5 * time.Second},
		},
		{
			name:  "negative values treated as zero",
			input: BackoffConfig{Initial: -time.Second, MaxAttempts: -5, MaxDelay: -time.Second},
			want:  BackoffConfig{Initial: time.Second, MaxAttempts: 5, MaxDelay: 30 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeBackoff(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeBackoff() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBackoffConfig_Delay(t *testing.T) {
	b := DefaultBackoff()
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		if got := b.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}

	if got := b.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want 1s", got)
	}
}

func TestMinDuration(t *testing.T) {
	tests := []struct {
		a, b time.Duration
		want time.Duration
	}{
		{100 * time.Millisecond, 200 * time.Millisecond, 100 * time.Millisecond},
		{300 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond},
		{time.Second, time.Second, time.Second},
	}

	for _, tt := range tests {
		if got := MinDuration(tt.a, tt.b); got != tt.want {
			t.Errorf("MinDuration(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
