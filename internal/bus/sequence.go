package bus

import "sync/atomic"

// InitialSequence is the value of a sequence before anything was published.
const InitialSequence int64 = -1

// Sequence is a cache-line padded progress counter. It is written by a
// single goroutine and read by any.
type Sequence struct {
	_ [56]byte
	v atomic.Int64
	_ [56]byte
}

// NewSequence creates a sequence with the given value.
func NewSequence(initial int64) *Sequence {
	s := &Sequence{}
	s.v.Store(initial)
	return s
}

func (s *Sequence) Get() int64 {
	return s.v.Load()
}

func (s *Sequence) Set(v int64) {
	s.v.Store(v)
}

// MinimumSequence returns the smallest value among seqs, or fallback when
// seqs is empty.
func MinimumSequence(seqs []*Sequence, fallback int64) int64 {
	if len(seqs) == 0 {
		return fallback
	}
	min := seqs[0].Get()
	for _, s := range seqs[1:] {
		if v := s.Get(); v < min {
			min = v
		}
	}
	return min
}
