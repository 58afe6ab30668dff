package random

import "sync"

// Sequence replays scripted values. Ints and Floats are consumed in order
// and the last value repeats once a list is exhausted; an empty list yields 0.
// IntN results are reduced modulo n so scripts stay within range.
type Sequence struct {
	mu     sync.Mutex
	Ints   []int
	Floats []float64
	ii, fi int
}

func (s *Sequence) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Ints) == 0 {
		return 0
	}
	v := s.Ints[min(s.ii, len(s.Ints)-1)]
	s.ii++
	if n <= 0 {
		return 0
	}
	return ((v % n) + n) % n
}

func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Floats) == 0 {
		return 0
	}
	v := s.Floats[min(s.fi, len(s.Floats)-1)]
	s.fi++
	return v
}

// Fixed always returns the same values.
type Fixed struct {
	Int   int
	Float float64
}

func (f Fixed) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return ((f.Int % n) + n) % n
}

func (f Fixed) Float64() float64 { return f.Float }
