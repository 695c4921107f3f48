// Package fuzzing holds the state shared by the trials of one fuzz test:
// the seeded random source and the stop signal.
package fuzzing

import (
	"math/rand/v2"
	"sync"
)

// SharedRNG is the single random source of one fuzz test. Every access goes
// through mu.
type SharedRNG struct {
	mu    sync.Mutex
	rng   *rand.Rand
	draws uint64
}

// NewSharedRNG seeds a new source.
func NewSharedRNG(seed uint64) *SharedRNG {
	return &SharedRNG{rng: rand.New(rand.NewPCG(seed, mix(seed)))}
}

// Draw returns the next value of the sequence.
// Which trial gets which draw depends on the scheduler; only the sequence of
// draws is reproducible for a given seed.
func (r *SharedRNG) Draw() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draws++
	return r.rng.Uint64()
}

// Draws reports how many values were handed out.
func (r *SharedRNG) Draws() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draws
}

// DeriveSeed computes the seed of trial index from base without shared state,
// so trial inputs do not depend on scheduling.
func DeriveSeed(base uint64, index int) uint64 {
	return mix(base + uint64(index+1)*0x9e3779b97f4a7c15)
}

// mix is the splitmix64 finalizer.
func mix(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
