package ai

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"time"
)

// backoff tracks the delay between attempts.
type backoff struct {
	next time.Duration
	max  time.Duration
}

func newBackoff(base, maxDelay time.Duration) *backoff {
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	if maxDelay < base {
		maxDelay = base
	}
	return &backoff{next: base, max: maxDelay}
}

// wait sleeps for the jittered delay, or returns early with ctx's error.
func (b *backoff) wait(ctx context.Context, hint time.Duration) error {
	d := withJitter(b.next)
	if hint > d {
		d = hint
	}
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// isRetryableStatus reports whether a typed API error is worth another attempt.
func isRetryableStatus(err error) (bool, time.Duration) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true, rl.RetryAfter
	}
	var se *ServerError
	return errors.As(err, &se), 0
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	// jitter factor in [0.8, 1.2)
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}
