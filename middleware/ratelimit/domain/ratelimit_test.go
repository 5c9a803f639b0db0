package domain

import (
	"math"
	"testing"
	"time"
)

func TestState_OlderThan(t *testing.T) {
	cases := []struct {
		name   string
		state  State
		cutoff Nanos
		want   bool
	}{
		{"none is never older", None(), math.MaxUint64, false},
		{"strictly older", Some(10), 11, true},
		{"equal survives", Some(10), 10, false},
		{"newer survives", Some(10), 9, false},
		{"zero is a real value", Some(0), 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.state.OlderThan(tc.cutoff); got != tc.want {
				t.Fatalf("OlderThan(%d)=%v, want %v", tc.cutoff, got, tc.want)
			}
		})
	}
}

func TestNanos_SaturatingArithmetic(t *testing.T) {
	if got := Nanos(5).Sub(10); got != 0 {
		t.Fatalf("expected Sub to saturate at 0, got %d", got)
	}
	if got := Nanos(math.MaxUint64 - 1).Add(10); got != math.MaxUint64 {
		t.Fatalf("expected Add to saturate, got %d", got)
	}
	if got := Nanos(math.MaxUint64).Duration(); got != time.Duration(math.MaxInt64) {
		t.Fatalf("expected Duration to clamp, got %s", got)
	}
	if got := NanosFromDuration(-time.Second); got != 0 {
		t.Fatalf("expected negative duration to map to 0, got %d", got)
	}
}

func TestQuota_ReplenishInterval(t *testing.T) {
	q := PerSecond(10)
	if q.ReplenishInterval() != 100*time.Millisecond {
		t.Fatalf("expected 100ms, got %s", q.ReplenishInterval())
	}
	if q.RPS() != 10 {
		t.Fatalf("expected 10 rps, got %v", q.RPS())
	}
	if !q.Valid() {
		t.Fatalf("expected quota to be valid")
	}
	if (Quota{}).Valid() {
		t.Fatalf("expected zero quota to be invalid")
	}
}

func TestQuotaFromRPS(t *testing.T) {
	q := QuotaFromRPS(5, 10)
	if q.Burst != 10 {
		t.Fatalf("expected burst 10, got %d", q.Burst)
	}
	if q.ReplenishInterval() != 200*time.Millisecond {
		t.Fatalf("expected 200ms interval, got %s", q.ReplenishInterval())
	}

	low := QuotaFromRPS(0.02, 1)
	if low.ReplenishInterval() != 50*time.Second {
		t.Fatalf("expected 50s interval, got %s", low.ReplenishInterval())
	}
	if QuotaFromRPS(0, 1).Valid() {
		t.Fatalf("expected rps=0 to be invalid")
	}
}
