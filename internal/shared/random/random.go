// Package random provides the injectable randomness used by the simulation
// loops. Production code uses a seeded PCG generator; tests script outcomes
// with Sequence.
package random

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source is the minimal randomness contract of the simulation.
type Source interface {
	// IntN returns a value in [0, n). n must be positive.
	IntN(n int) int
	// Float64 returns a value in [0, 1).
	Float64() float64
}

// Rand is a goroutine-safe Source.
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a Rand seeded with seed, or with the current time when seed is 0.
func New(seed int64) *Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Rand{r: rand.New(rand.NewPCG(uint64(seed), uint64(seed>>1)^0x9e3779b97f4a7c15))}
}

func (r *Rand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.IntN(n)
}

func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}

// Between returns an integer in the inclusive range [lo, hi].
func Between(src Source, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + src.IntN(hi-lo+1)
}

// Uniform returns a float in [lo, hi).
func Uniform(src Source, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}

// Chance reports true with probability p.
func Chance(src Source, p float64) bool {
	return src.Float64() < p
}

// Pick returns a uniformly chosen element. items must not be empty.
func Pick[T any](src Source, items []T) T {
	return items[src.IntN(len(items))]
}

// D100 rolls 1..100.
func D100(src Source) int {
	return Between(src, 1, 100)
}
