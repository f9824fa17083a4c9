package link

import "time"

// backoff produces the reconnect delay sequence floor, 2*floor, 4*floor,
// ... capped at ceiling.
type backoff struct {
	floor   time.Duration
	ceiling time.Duration
	current time.Duration
}

func newBackoff(floor, ceiling time.Duration) *backoff {
	return &backoff{floor: floor, ceiling: ceiling, current: floor}
}

// Next returns the delay to wait now and doubles the following one.
func (b *backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.ceiling {
		b.current = b.ceiling
	}
	return d
}

// Reset returns the sequence to its floor.
func (b *backoff) Reset() {
	b.current = b.floor
}
