package stream

import "time"

// dedupeSet is a bounded set of recently seen correlation ids. Entries expire
// after the horizon; when the set still outgrows maxEntries the oldest half is
// discarded to bound memory across long replays.
type dedupeSet struct {
	horizon    time.Duration
	maxEntries int
	seen       map[string]time.Time
}

func newDedupeSet(horizon time.Duration, maxEntries int) *dedupeSet {
	if horizon <= 0 {
		horizon = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 3000
	}
	return &dedupeSet{horizon: horizon, maxEntries: maxEntries, seen: make(map[string]time.Time)}
}

// Seen reports whether id was already recorded and, if not, records it.
func (d *dedupeSet) Seen(id string, now time.Time) bool {
	d.expire(now)
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = now
	d.shrink()
	return false
}

func (d *dedupeSet) expire(now time.Time) {
	cutoff := now.Add(-d.horizon)
	for id, ts := range d.seen {
		if ts.Before(cutoff) {
			delete(d.seen, id)
		}
	}
}

func (d *dedupeSet) shrink() {
	if len(d.seen) <= d.maxEntries {
		return
	}
	drop := len(d.seen) - d.maxEntries/2
	var oldest time.Time
	for ; drop > 0; drop-- {
		var victim string
		first := true
		for id, ts := range d.seen {
			if first || ts.Before(oldest) {
				victim, oldest, first = id, ts, false
			}
		}
		delete(d.seen, victim)
	}
}

func (d *dedupeSet) Len() int { return len(d.seen) }
