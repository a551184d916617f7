package realtime

import "time"

const (
	DefaultBackoffFloor   = time.Second
	DefaultBackoffCeiling = 30 * time.Second
)

// Backoff yields reconnect delays that double from Floor up to Ceiling. It
// is not safe for concurrent use; the Client guards it with its own lock.
type Backoff struct {
	Floor   time.Duration
	Ceiling time.Duration

	current time.Duration
}

func NewBackoff(floor, ceiling time.Duration) *Backoff {
	if floor <= 0 {
		floor = DefaultBackoffFloor
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &Backoff{Floor: floor, Ceiling: ceiling, current: floor}
}

// Next returns the delay to wait now and doubles the one after it.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.Ceiling {
		b.current = b.Ceiling
	}
	return d
}

// Reset puts the next delay back at the floor.
func (b *Backoff) Reset() {
	b.current = b.Floor
}

// Peek returns the delay Next would return without advancing.
func (b *Backoff) Peek() time.Duration {
	return b.current
}
