package retry

import (
	"context"
	"errors"
	"time"

	"get.pme.sh/wsjrpc/util"
)

var ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")

type Policy struct {
	Attempts int           `json:"attempts,omitempty" yaml:"attempts,omitempty"`   // Maximum number of attempts, negative for unlimited.
	Backoff  util.Duration `json:"backoff,omitempty" yaml:"backoff,omitempty"`     // Base delay between attempts.
	MaxDelay util.Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty"` // Upper bound of a single delay.
}

func Basic() Policy {
	return Policy{
		Attempts: 5,
		Backoff:  util.Duration(200 * time.Millisecond),
		MaxDelay: util.Duration(5 * time.Second),
	}
}

// Once never retries.
func Once() Policy {
	return Policy{Attempts: 1}
}

func (p Policy) adjust() Policy {
	if p.Attempts == 0 {
		p.Attempts = 1
	}
	p.Backoff = util.Duration(p.Backoff.Or(150 * time.Millisecond))
	p.MaxDelay = util.Duration(p.MaxDelay.Or(20 * time.Duration(p.Backoff)))
	return p
}

// Delay returns the wait before attempt n, counted from 1. Each delay grows by half of
// itself plus the base backoff.
func (p Policy) Delay(n int) time.Duration {
	p = p.adjust()
	var d time.Duration
	for i := 0; i < n; i++ {
		d += time.Duration(p.Backoff)
		d += d >> 1
		if d >= time.Duration(p.MaxDelay) {
			return time.Duration(p.MaxDelay)
		}
	}
	return d
}

type permanent struct {
	error
}

func (err permanent) Unwrap() error { return err.error }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err}
}

func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var p permanent
	return !errors.As(err, &p)
}

// Do runs fn until it succeeds, returns a non retryable error, runs out of attempts or
// ctx ends. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	p = p.adjust()
	for attempt := 0; ; attempt++ {
		err := fn(attempt)
		if !Retryable(err) {
			var perm permanent
			if errors.As(err, &perm) {
				return perm.error
			}
			return err
		}
		if p.Attempts > 0 && attempt+1 >= p.Attempts {
			return errors.Join(ErrMaxAttemptsExceeded, err)
		}
		select {
		case <-ctx.Done():
			return errors.Join(context.Cause(ctx), err)
		case <-time.After(p.Delay(attempt + 1)):
		}
	}
}
