package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency. All of these are
// local, recoverable conditions surfaced to the caller; none should crash
// the process.

var (
	// Ledger errors
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be a positive integer")
	ErrSubjectNotFound     = errors.New("subject not found")

	// Queue errors
	ErrUnknownKind  = errors.New("unknown queue kind")
	ErrQueueFull    = errors.New("queue is full")
	ErrQueueStalled = errors.New("queue item stalled past watchdog timeout")

	// Redeem errors
	ErrRedeemNotFound = errors.New("redeem not found")
	ErrRedeemDisabled = errors.New("redeem is disabled")

	// Batch errors
	ErrInvalidRequest = errors.New("invalid request")
)

// CooldownError reports a rejected admission, carrying the remaining whole
// seconds until the cooldown expires.
type CooldownError struct {
	Key       string
	Remaining int64
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active for %s: %ds remaining", e.Key, e.Remaining)
}

// IsCooldown reports whether err is a cooldown rejection and returns the
// remaining seconds if so.
func IsCooldown(err error) (int64, bool) {
	var ce *CooldownError
	if errors.As(err, &ce) {
		return ce.Remaining, true
	}
	return 0, false
}
