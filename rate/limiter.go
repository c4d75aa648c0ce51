package rate

import (
	"fmt"
	"time"
)

type RateError struct {
	RetryAfter time.Duration // Advisory wait before the next attempt.
}

func (e RateError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter)
}

// Limiter admits at most Rate.Count events per sliding Rate.Period. The zero rate admits
// everything.
type Limiter struct {
	rate Rate
	w    slidingWindow
	now  func() time.Time
}

func NewLimiter(r Rate) *Limiter {
	return &Limiter{rate: r, now: time.Now}
}

func (l *Limiter) Rate() Rate { return l.rate }

// Take records one event, or returns a RateError if the limit is reached.
func (l *Limiter) Take() error {
	if !l.rate.IsPositive() {
		return nil
	}
	if l.w.inc(toSubticks(l.now(), l.rate.Period), count(l.rate.Count)) {
		return nil
	}
	return RateError{RetryAfter: l.rate.Interval()}
}

// Used returns the number of events in the current sliding window.
func (l *Limiter) Used() uint {
	if !l.rate.IsPositive() {
		return 0
	}
	return uint(l.w.read(toSubticks(l.now(), l.rate.Period), count(l.rate.Count)))
}
