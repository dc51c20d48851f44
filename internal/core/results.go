package core

import (
	"context"
	"sync"

	"exchange/internal/schema"
)

// Results keeps a copy of every published command. Its Consume method is
// a ResultConsumer; Wait lets other goroutines block on a sequence.
type Results struct {
	mu      sync.Mutex
	results map[int64]schema.Command
	order   []int64
	changed chan struct{}
}

func NewResults() *Results {
	return &Results{
		results: make(map[int64]schema.Command),
		changed: make(chan struct{}),
	}
}

func (r *Results) Consume(cmd *schema.Command) {
	out := cmd.Copy()
	r.mu.Lock()
	r.results[cmd.Seq] = out
	r.order = append(r.order, cmd.Seq)
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()
}

// Get returns the result of seq if it has been published.
func (r *Results) Get(seq int64) (schema.Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.results[seq]
	return cmd, ok
}

// Wait blocks until seq has been published or ctx ends.
func (r *Results) Wait(ctx context.Context, seq int64) (schema.Command, error) {
	for {
		r.mu.Lock()
		cmd, ok := r.results[seq]
		changed := r.changed
		r.mu.Unlock()
		if ok {
			return cmd, nil
		}
		select {
		case <-ctx.Done():
			return schema.Command{}, ctx.Err()
		case <-changed:
		}
	}
}

// Order returns the published sequences in delivery order.
func (r *Results) Order() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.order...)
}

func (r *Results) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
