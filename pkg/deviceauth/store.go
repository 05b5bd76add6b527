// Package deviceauth implements the mocked SSO device authorization grant
// that produces the bearer credential the Identity Resolver later
// verifies. No real user interaction backs the approval: a device code
// auto-approves itself after a configured number of polls. This is
// explicitly a non-production stub — the spec's Non-goals exclude real SSO
// protocol implementation — kept only so the governance pipeline has
// something to authenticate against end to end.
package deviceauth

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a device_code is unknown or has expired.
var ErrNotFound = errors.New("device code not found or expired")

// ErrPending is returned by Poll while the device code has not yet
// accumulated enough polls to auto-approve.
var ErrPending = errors.New("authorization_pending")

// ErrSlowDown is returned by Poll when the client polls more often than
// the advertised interval.
var ErrSlowDown = errors.New("slow_down")

type entry struct {
	deviceCode string
	userCode   string
	subject    string
	email      string
	pollCount  int
	lastPollAt time.Time
	expiresAt  time.Time
}

// Store holds in-flight device codes in memory. A single gateway instance
// is assumed — there is no cross-instance sharing, matching the scope of a
// mocked flow.
type Store struct {
	mu            sync.Mutex
	entries       map[string]*entry
	pollInterval  time.Duration
	autoApprove   int
	codeTTL       time.Duration
}

// New creates a Store. pollInterval is the minimum time between polls
// before slow_down is returned; autoApproveAfterPolls is the number of the
// poll on which Poll auto-approves a device code (earlier polls return
// ErrPending).
func New(pollInterval time.Duration, autoApproveAfterPolls int, codeTTL time.Duration) *Store {
	return &Store{
		entries:      make(map[string]*entry),
		pollInterval: pollInterval,
		autoApprove:  autoApproveAfterPolls,
		codeTTL:      codeTTL,
	}
}

func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating device code: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// Issued is the result of starting a new device authorization request.
type Issued struct {
	DeviceCode string
	UserCode   string
	ExpiresIn  int
	Interval   int
}

// Start begins a new device authorization request for the given mocked
// identity. In a real device flow, subject/email would be bound only once
// a human approves the user_code out of band; here they are fixed at
// issuance time since nothing backs the approval step.
func (s *Store) Start(subject, email string) (*Issued, error) {
	deviceCode, err := randomCode(20)
	if err != nil {
		return nil, err
	}
	userCode, err := randomCode(4)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	e := &entry{
		deviceCode: deviceCode,
		userCode:   userCode,
		subject:    subject,
		email:      email,
		expiresAt:  now.Add(s.codeTTL),
	}

	s.mu.Lock()
	s.entries[deviceCode] = e
	s.mu.Unlock()

	return &Issued{
		DeviceCode: deviceCode,
		UserCode:   userCode,
		ExpiresIn:  int(s.codeTTL.Seconds()),
		Interval:   int(s.pollInterval.Seconds()),
	}, nil
}

// Poll records one poll attempt against deviceCode. It returns the
// (subject, email) pair once the code has auto-approved, ErrPending while
// waiting, ErrSlowDown if polled too fast, or ErrNotFound if the code is
// unknown or expired.
func (s *Store) Poll(deviceCode string) (subject, email string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[deviceCode]
	if !ok {
		return "", "", ErrNotFound
	}
	now := time.Now()
	if now.After(e.expiresAt) {
		delete(s.entries, deviceCode)
		return "", "", ErrNotFound
	}

	if !e.lastPollAt.IsZero() && now.Sub(e.lastPollAt) < s.pollInterval {
		return "", "", ErrSlowDown
	}
	e.lastPollAt = now
	e.pollCount++

	if e.pollCount < s.autoApprove {
		return "", "", ErrPending
	}

	delete(s.entries, deviceCode)
	return e.subject, e.email, nil
}
