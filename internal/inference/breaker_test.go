package inference

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Second, 50*time.Millisecond)

	for i := 0; i < 2; i++ {
		if !b.Allow("gpt") {
			t.Fatalf("expected allow before threshold reached (i=%d)", i)
		}
		b.RecordFailure("gpt")
	}
	if b.State("gpt") != StateClosed {
		t.Fatalf("expected closed before threshold, got %s", b.State("gpt"))
	}

	b.Allow("gpt")
	b.RecordFailure("gpt")
	if b.State("gpt") != StateOpen {
		t.Fatalf("expected open after threshold failures, got %s", b.State("gpt"))
	}
	if b.Allow("gpt") {
		t.Fatal("expected Allow to reject while open and within cooldown")
	}
}

func TestBreakerHalfOpenProbeSucceedsCloses(t *testing.T) {
	b := NewBreaker(1, time.Second, 10*time.Millisecond)

	b.Allow("gpt")
	b.RecordFailure("gpt") // opens
	time.Sleep(20 * time.Millisecond)

	if !b.Allow("gpt") {
		t.Fatal("expected half-open probe to be admitted after cooldown")
	}
	if b.State("gpt") != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State("gpt"))
	}
	if b.Allow("gpt") {
		t.Fatal("expected second caller to be rejected while a probe is in flight")
	}

	b.RecordSuccess("gpt")
	if b.State("gpt") != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", b.State("gpt"))
	}
}

func TestBreakerHalfOpenProbeFailsReopens(t *testing.T) {
	b := NewBreaker(1, time.Second, 10*time.Millisecond)

	b.Allow("gpt")
	b.RecordFailure("gpt") // opens
	time.Sleep(20 * time.Millisecond)

	b.Allow("gpt") // admits probe, half-open
	b.RecordFailure("gpt")

	if b.State("gpt") != StateOpen {
		t.Fatalf("expected reopened after failed probe, got %s", b.State("gpt"))
	}
}

func TestBreakerFailuresOutsideWindowDoNotAccumulate(t *testing.T) {
	b := NewBreaker(2, 10*time.Millisecond, time.Second)

	b.Allow("gpt")
	b.RecordFailure("gpt")
	time.Sleep(20 * time.Millisecond) // failure window elapses

	b.Allow("gpt")
	b.RecordFailure("gpt")

	if b.State("gpt") != StateClosed {
		t.Fatalf("expected closed: failures are outside the sliding window, got %s", b.State("gpt"))
	}
}
