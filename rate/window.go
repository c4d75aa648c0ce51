package rate

import (
	"sync/atomic"
	"time"
)

type count = uint32
type tick uint32
type subtick uint64

const (
	precisionShift = 8
	precisionMask  = 1<<precisionShift - 1
)

func toSubticks(t time.Time, period time.Duration) subtick {
	ns, p := uint64(t.UnixNano()), uint64(period.Nanoseconds())
	frac := ((ns % p) << precisionShift) / p
	return subtick((ns/p)<<precisionShift | frac)
}

func (s subtick) tick() tick {
	return tick(s >> precisionShift)
}

// carry is the share of the previous window still inside the sliding one.
func (s subtick) carry(prev, limit count) count {
	coeff := (^s) & precisionMask
	return min(limit, count((uint64(prev)*uint64(coeff))>>precisionShift))
}

// window is a fixed window counter packed into one word, tick low and count high.
type window struct {
	v atomic.Uint64
}

func (w *window) read(now tick) count {
	v := w.v.Load()
	if tick(v) != now {
		return 0
	}
	return count(v >> 32)
}

func (w *window) inc(now tick, limit count) bool {
	for {
		expected := w.v.Load()
		n, t := count(expected>>32), tick(expected)
		if t != now {
			n = 0
		}
		if n >= limit {
			return false
		}
		desired := uint64(n+1)<<32 | uint64(now)
		if w.v.CompareAndSwap(expected, desired) {
			return true
		}
	}
}

// slidingWindow approximates a sliding window with the current and previous fixed ones.
type slidingWindow struct {
	window [2]window
}

func (w *slidingWindow) inc(s subtick, limit count) bool {
	t := s.tick()
	i := t & 1
	prev := s.carry(w.window[i^1].read(t-1), limit)
	if prev >= limit {
		return false
	}
	return w.window[i].inc(t, limit-prev)
}

func (w *slidingWindow) read(s subtick, limit count) count {
	t := s.tick()
	i := t & 1
	return s.carry(w.window[i^1].read(t-1), limit) + w.window[i].read(t)
}
