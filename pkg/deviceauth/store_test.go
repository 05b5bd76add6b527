package deviceauth

import (
	"testing"
	"time"
)

func TestPollPendingThenApproves(t *testing.T) {
	s := New(0, 3, time.Minute)
	issued, err := s.Start("user-1", "user-1@example.com")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, _, err := s.Poll(issued.DeviceCode); err != ErrPending {
			t.Fatalf("poll %d: expected ErrPending, got %v", i, err)
		}
	}

	subject, email, err := s.Poll(issued.DeviceCode)
	if err != nil {
		t.Fatalf("expected approval on 3rd poll, got %v", err)
	}
	if subject != "user-1" || email != "user-1@example.com" {
		t.Fatalf("unexpected identity: %s %s", subject, email)
	}

	if _, _, err := s.Poll(issued.DeviceCode); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after approval consumes the code, got %v", err)
	}
}

func TestPollSlowDown(t *testing.T) {
	s := New(time.Hour, 5, time.Minute)
	issued, err := s.Start("user-1", "user-1@example.com")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, _, err := s.Poll(issued.DeviceCode); err != ErrPending {
		t.Fatalf("first poll: expected ErrPending, got %v", err)
	}
	if _, _, err := s.Poll(issued.DeviceCode); err != ErrSlowDown {
		t.Fatalf("second immediate poll: expected ErrSlowDown, got %v", err)
	}
}

func TestPollUnknownCode(t *testing.T) {
	s := New(0, 1, time.Minute)
	if _, _, err := s.Poll("does-not-exist"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPollExpiredCode(t *testing.T) {
	s := New(0, 1, time.Millisecond)
	issued, err := s.Start("user-1", "user-1@example.com")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, _, err := s.Poll(issued.DeviceCode); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for expired code, got %v", err)
	}
}
