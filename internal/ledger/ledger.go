// Package ledger implements the budget reserve/commit/refund lifecycle: a
// per-user, per-UTC-day spending cap enforced with a single atomic Redis
// operation per call, so two concurrent requests against the same budget key
// can never both be admitted past the cap.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/adlcgate/internal/telemetry"
)

// ErrBudgetExceeded is returned by Reserve when admitting the request would
// exceed the caller's daily cap. The overrun slack is not applied here.
var ErrBudgetExceeded = errors.New("budget exceeded")

// ErrReservationNotFound is returned by Commit/Refund when the reservation
// has already been committed, refunded, or has expired.
var ErrReservationNotFound = errors.New("reservation not found")

// Ledger enforces per-day spending caps backed by Redis.
type Ledger struct {
	rdb            *redis.Client
	dailyBudget    int64
	overrunSlack   float64
	reservationTTL time.Duration

	reserveScript *redis.Script
	commitScript  *redis.Script
	refundScript  *redis.Script

	// OnOverrun, if set, is invoked whenever a Commit would push the day's
	// spend past the daily cap plus the overrun slack and the spend is
	// clamped at that limit — the hook ops alerting hangs off of.
	OnOverrun func(userID string)
}

// New creates a Ledger. dailyBudgetMicros is the default per-user daily cap
// in integer micro-units; overrunSlack is a fraction (e.g. 0.05 for 5%) by
// which committed spend may exceed the cap before Commit clamps it and flags
// an overrun. Reserve always gates on the bare cap.
func New(rdb *redis.Client, dailyBudgetMicros int64, overrunSlack float64, reservationTTL time.Duration) *Ledger {
	return &Ledger{
		rdb:            rdb,
		dailyBudget:    dailyBudgetMicros,
		overrunSlack:   overrunSlack,
		reservationTTL: reservationTTL,
		reserveScript:  redis.NewScript(reserveLua),
		commitScript:   redis.NewScript(commitLua),
		refundScript:   redis.NewScript(refundLua),
	}
}

// BudgetKey identifies a budget ledger bucket: one caller, one UTC day.
type BudgetKey struct {
	UserID string
	Day    string // YYYY-MM-DD, UTC
}

func (k BudgetKey) dayHash() string { return fmt.Sprintf("budget:{%s}:%s", k.UserID, k.Day) }
func (k BudgetKey) dayZSet() string { return fmt.Sprintf("budget:{%s}:%s:expiry", k.UserID, k.Day) }
func (k BudgetKey) resvHash() string {
	return fmt.Sprintf("budget:{%s}:%s:resv", k.UserID, k.Day)
}

// DayKey returns the BudgetKey for userID on the UTC day containing t.
func DayKey(userID string, t time.Time) BudgetKey {
	return BudgetKey{UserID: userID, Day: t.UTC().Format("2006-01-02")}
}

// Reserve atomically admits or rejects a spending intent of amountMicros
// against key's cap, reclaiming any expired reservations first. On success it
// returns a reservation ID that must later be passed to Commit or Refund.
func (l *Ledger) Reserve(ctx context.Context, key BudgetKey, amountMicros int64) (string, error) {
	reservationID := uuid.NewString()
	now := time.Now().UTC()

	res, err := l.reserveScript.Run(ctx, l.rdb,
		[]string{key.dayHash(), key.dayZSet(), key.resvHash()},
		now.UnixMilli(),
		reservationID,
		amountMicros,
		l.reservationTTL.Milliseconds(),
		l.dailyBudget,
	).Result()
	if err != nil {
		telemetry.BudgetReservationsTotal.WithLabelValues("reserve", "error").Inc()
		return "", fmt.Errorf("reserving budget: %w", err)
	}

	rows, ok := res.([]interface{})
	if !ok || len(rows) < 3 {
		return "", fmt.Errorf("reserving budget: unexpected script result %#v", res)
	}

	if reclaimed, _ := rows[2].(int64); reclaimed > 0 {
		telemetry.BudgetAutoRefundTotal.Add(float64(reclaimed))
	}

	admitted, _ := rows[0].(int64)
	if admitted == 0 {
		telemetry.BudgetReservationsTotal.WithLabelValues("reserve", "rejected").Inc()
		return "", ErrBudgetExceeded
	}

	telemetry.BudgetReservationsTotal.WithLabelValues("reserve", "admitted").Inc()
	return reservationID, nil
}

// Commit finalizes a reservation at its actual cost, releasing the hold and
// recording the real spend. actualAmountMicros may differ from the amount
// originally reserved; the server-side estimate computed at Reserve time is
// only a hold, never the authoritative charge.
func (l *Ledger) Commit(ctx context.Context, key BudgetKey, reservationID string, actualAmountMicros int64) error {
	capMicros := int64(float64(l.dailyBudget) * (1 + l.overrunSlack))

	res, err := l.commitScript.Run(ctx, l.rdb,
		[]string{key.dayHash(), key.dayZSet(), key.resvHash()},
		reservationID,
		actualAmountMicros,
		capMicros,
	).Result()
	if err != nil {
		telemetry.BudgetReservationsTotal.WithLabelValues("commit", "error").Inc()
		return fmt.Errorf("committing budget reservation: %w", err)
	}

	rows, ok := res.([]interface{})
	if !ok || len(rows) < 2 {
		return fmt.Errorf("committing budget reservation: unexpected script result %#v", res)
	}
	found, _ := rows[0].(int64)
	if found == 0 {
		telemetry.BudgetReservationsTotal.WithLabelValues("commit", "not_found").Inc()
		return ErrReservationNotFound
	}

	if overrun, _ := rows[1].(int64); overrun == 1 {
		telemetry.BudgetOverrunTotal.Inc()
		if l.OnOverrun != nil {
			l.OnOverrun(key.UserID)
		}
	}
	telemetry.BudgetReservationsTotal.WithLabelValues("commit", "ok").Inc()
	return nil
}

// Refund releases a reservation without recording any spend, used when a
// governed call fails or panics after a reservation was made. Refunding a
// reservation that has already been committed, refunded, or expired is a
// no-op by design — see ErrReservationNotFound, which callers may safely
// ignore during cleanup paths.
func (l *Ledger) Refund(ctx context.Context, key BudgetKey, reservationID string) error {
	res, err := l.refundScript.Run(ctx, l.rdb,
		[]string{key.dayHash(), key.dayZSet(), key.resvHash()},
		reservationID,
	).Result()
	if err != nil {
		telemetry.BudgetReservationsTotal.WithLabelValues("refund", "error").Inc()
		return fmt.Errorf("refunding budget reservation: %w", err)
	}
	if ok, _ := res.(int64); ok == 0 {
		telemetry.BudgetReservationsTotal.WithLabelValues("refund", "not_found").Inc()
		return ErrReservationNotFound
	}
	telemetry.BudgetReservationsTotal.WithLabelValues("refund", "ok").Inc()
	return nil
}
