package clock

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	clock := RealClock{}

	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("clock time %v outside measurement window [%v, %v]", now, before, after)
	}
}

func TestMockClockSetAndNow(t *testing.T) {
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{}
	clock.Set(fixed)

	if !clock.Now().Equal(fixed) {
		t.Errorf("expected %v, got %v", fixed, clock.Now())
	}
	if !clock.Now().Equal(clock.Now()) {
		t.Error("mock clock must not move on its own")
	}
}

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{}
	clock.Set(start)

	tests := []struct {
		name     string
		duration time.Duration
		expected time.Time
	}{
		{"advance five seconds", 5 * time.Second, start.Add(5 * time.Second)},
		{"advance one more minute", time.Minute, start.Add(time.Minute + 5*time.Second)},
		{"advance zero", 0, start.Add(time.Minute + 5*time.Second)},
		{"advance backwards", -time.Hour, start.Add(time.Minute + 5*time.Second - time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Advance(tt.duration)
			if !clock.Now().Equal(tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, clock.Now())
			}
		})
	}
}

func TestClockInterfaceCompliance(t *testing.T) {
	var _ Clock = RealClock{}
	var _ Clock = &MockClock{}
}
