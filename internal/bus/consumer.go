package bus

import (
	"exchange/pkg/exception"
)

// Handler processes one slot. endOfBatch is true for the last sequence
// currently available.
type Handler[T any] func(seq int64, item T, endOfBatch bool) error

// Consumer runs a handler over the ring in sequence order.
type Consumer[T any] struct {
	ring     *Ring[T]
	barrier  *Barrier
	progress *Sequence
	handler  Handler[T]
	limit    int64
}

// NewConsumer creates a consumer that starts after the current cursor.
// limit caps how many sequences are handled before progress is
// published; zero means no cap.
func (r *Ring[T]) NewConsumer(barrier *Barrier, handler Handler[T], limit int) *Consumer[T] {
	return &Consumer[T]{
		ring:     r,
		barrier:  barrier,
		progress: NewSequence(r.cursor.Get()),
		handler:  handler,
		limit:    int64(limit),
	}
}

// Sequence returns the consumer progress for downstream barriers.
func (c *Consumer[T]) Sequence() *Sequence {
	return c.progress
}

// Run consumes until the ring is alerted or the handler fails.
func (c *Consumer[T]) Run() error {
	next := c.progress.Get() + 1
	for {
		avail, err := c.barrier.WaitFor(next)
		if err != nil {
			if err == exception.ErrAlerted {
				return nil
			}
			return err
		}
		if c.limit > 0 && avail-next >= c.limit {
			avail = next + c.limit - 1
		}
		for ; next <= avail; next++ {
			if err := c.handler(next, c.ring.Get(next), next == avail); err != nil {
				return err
			}
		}
		c.progress.Set(avail)
	}
}
