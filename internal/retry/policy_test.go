package retry

import (
	"context"
	"testing"
	"time"
)

func TestPolicy_Delay(t *testing.T) {
	policy := DefaultPolicy()

	for attempt := 1; attempt <= 30; attempt++ {
		delay := policy.Delay(attempt)
		if attempt%10 == 0 {
			if delay != DefaultCooldown {
				t.Errorf("Delay(%d) = %v, expected cooldown %v", attempt, delay, DefaultCooldown)
			}
			continue
		}
		if delay < DefaultDelayMin || delay > DefaultDelayMax {
			t.Errorf("Delay(%d) = %v, expected within [%v, %v]", attempt, delay, DefaultDelayMin, DefaultDelayMax)
		}
	}
}

func TestPolicy_DelayEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		attempt  int
		expected time.Duration
	}{
		{"fixed delay", Policy{DelayMin: time.Second, DelayMax: time.Second}, 1, time.Second},
		{"inverted bounds", Policy{DelayMin: time.Second, DelayMax: time.Millisecond}, 1, time.Second},
		{"no cooldown", Policy{DelayMin: time.Second, DelayMax: time.Second, Cooldown: time.Hour}, 10, time.Second},
		{"every attempt cools down", Policy{CooldownEvery: 1, Cooldown: time.Minute}, 3, time.Minute},
		{"zero", Policy{}, 1, 0},
	}

	for _, test := range tests {
		if result := test.policy.Delay(test.attempt); result != test.expected {
			t.Errorf("%s: Delay(%d) = %v, expected %v", test.name, test.attempt, result, test.expected)
		}
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Sleep(ctx, time.Hour); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return on cancellation")
	}

	if err := Sleep(ctx, 0); err != context.Canceled {
		t.Errorf("Expected context.Canceled for zero delay, got %v", err)
	}
}
