package bus

import (
	"sync/atomic"

	"github.com/yanun0323/errors"

	"exchange/pkg/exception"
)

// Ring is a fixed-capacity circular buffer of pre-allocated slots.
//
// A single producer claims sequences with Next, fills the slot returned
// by Get and makes it visible with Publish. Consumers observe published
// slots through a Barrier. The producer never overwrites a slot before
// every gating sequence has passed it.
//
// Next, TryNext and Publish are not safe for concurrent use.
type Ring[T any] struct {
	slots []T
	mask  int64

	cursor       *Sequence
	next         int64
	cachedGating int64
	gating       []*Sequence

	wait    WaitStrategy
	alerted atomic.Bool
	stalls  atomic.Uint64
}

// NewRing allocates a ring. Capacity must be a power of two.
func NewRing[T any](capacity int, factory func() T, wait WaitStrategy) (*Ring[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "ring capacity %d is not a power of two", capacity)
	}
	if factory == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "ring slot factory")
	}
	if wait == nil {
		wait = YieldingWait{}
	}
	r := &Ring[T]{
		slots:        make([]T, capacity),
		mask:         int64(capacity - 1),
		cursor:       NewSequence(InitialSequence),
		next:         InitialSequence,
		cachedGating: InitialSequence,
		wait:         wait,
	}
	for i := range r.slots {
		r.slots[i] = factory()
	}
	return r, nil
}

// Capacity returns the number of slots.
func (r *Ring[T]) Capacity() int {
	return len(r.slots)
}

// ResetTo moves the ring to start after seq. Only valid before any
// consumer runs.
func (r *Ring[T]) ResetTo(seq int64) {
	r.cursor.Set(seq)
	r.next = seq
	r.cachedGating = seq
}

// SetGating registers the sequences the producer must not lap.
func (r *Ring[T]) SetGating(seqs ...*Sequence) {
	r.gating = append([]*Sequence(nil), seqs...)
}

// Cursor returns the highest published sequence.
func (r *Ring[T]) Cursor() *Sequence {
	return r.cursor
}

// Get returns the slot for seq.
func (r *Ring[T]) Get(seq int64) T {
	return r.slots[seq&r.mask]
}

// Next claims the next sequence, waiting while the ring is full.
func (r *Ring[T]) Next() (int64, error) {
	next := r.next + 1
	wrap := next - int64(len(r.slots))
	if wrap > r.cachedGating {
		stalled := false
		for attempt := 0; ; attempt++ {
			if r.alerted.Load() {
				return InitialSequence, exception.ErrAlerted
			}
			min := MinimumSequence(r.gating, r.next)
			if wrap <= min {
				r.cachedGating = min
				break
			}
			if !stalled {
				stalled = true
				r.stalls.Add(1)
			}
			r.wait.Idle(attempt)
		}
	}
	r.next = next
	return next, nil
}

// TryNext claims the next sequence or fails with exception.ErrRingFull.
func (r *Ring[T]) TryNext() (int64, error) {
	if r.alerted.Load() {
		return InitialSequence, exception.ErrAlerted
	}
	next := r.next + 1
	wrap := next - int64(len(r.slots))
	if wrap > r.cachedGating {
		min := MinimumSequence(r.gating, r.next)
		if wrap > min {
			return InitialSequence, exception.ErrRingFull
		}
		r.cachedGating = min
	}
	r.next = next
	return next, nil
}

// Publish makes every slot up to seq visible to consumers.
func (r *Ring[T]) Publish(seq int64) {
	r.cursor.Set(seq)
}

// Remaining returns the number of free slots as seen by the producer.
func (r *Ring[T]) Remaining() int64 {
	consumed := MinimumSequence(r.gating, r.next)
	return int64(len(r.slots)) - (r.next - consumed)
}

// Stalls returns how many times the producer had to wait for capacity.
func (r *Ring[T]) Stalls() uint64 {
	return r.stalls.Load()
}

// Alert wakes every waiter on this ring with exception.ErrAlerted.
func (r *Ring[T]) Alert() {
	r.alerted.Store(true)
}

// Alerted reports whether Alert was called.
func (r *Ring[T]) Alerted() bool {
	return r.alerted.Load()
}

// NewBarrier creates a barrier that waits for the cursor and every
// dependency sequence.
func (r *Ring[T]) NewBarrier(deps ...*Sequence) *Barrier {
	return &Barrier{
		cursor:  r.cursor,
		deps:    append([]*Sequence(nil), deps...),
		wait:    r.wait,
		alerted: &r.alerted,
	}
}
