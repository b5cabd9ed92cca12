package stream

import "time"

// backoff yields non-decreasing reconnect delays, doubling from base up to
// max. Reset returns it to base after a sustained healthy streaming period.
type backoff struct {
	base time.Duration
	max  time.Duration
	cur  time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &backoff{base: base, max: max, cur: base}
}

// Next returns the delay to wait before the next attempt and advances the
// sequence.
func (b *backoff) Next() time.Duration {
	d := b.cur
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return d
}

func (b *backoff) Reset() {
	b.cur = b.base
}
