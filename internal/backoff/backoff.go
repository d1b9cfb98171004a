package backoff

import "time"

const (
	// Base is the wait before the first reconnect attempt.
	Base = 1 * time.Second

	// Cap bounds the wait regardless of attempt count.
	Cap = 30 * time.Second

	// MaxAttempts is the number of reconnect attempts before giving up.
	MaxAttempts = 10
)

// Delay returns the wait before the given reconnect attempt (1-based):
// Base doubled per attempt, capped at Cap. Deterministic; no jitter is
// applied, so simultaneous mass reconnects are not spread out.
func Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Shift saturates well past Cap for large attempt counts; clamp the
	// exponent so the shift itself cannot overflow.
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	d := Base << uint(shift)
	if d > Cap || d <= 0 {
		return Cap
	}
	return d
}
