package bus

import (
	"sync/atomic"

	"exchange/pkg/exception"
)

// Barrier tracks the progress a consumer depends on.
type Barrier struct {
	cursor  *Sequence
	deps    []*Sequence
	wait    WaitStrategy
	alerted *atomic.Bool
}

// Available returns the highest sequence every dependency has reached.
func (b *Barrier) Available() int64 {
	avail := b.cursor.Get()
	if len(b.deps) > 0 {
		if min := MinimumSequence(b.deps, avail); min < avail {
			avail = min
		}
	}
	return avail
}

// WaitFor blocks until seq is available and returns the highest available
// sequence, which may be greater than seq.
func (b *Barrier) WaitFor(seq int64) (int64, error) {
	for attempt := 0; ; attempt++ {
		if b.alerted.Load() {
			return InitialSequence, exception.ErrAlerted
		}
		if avail := b.Available(); avail >= seq {
			return avail, nil
		}
		b.wait.Idle(attempt)
	}
}
