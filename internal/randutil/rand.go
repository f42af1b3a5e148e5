package randutil

import rand "math/rand/v2"

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
// The helper centralises how we derive the two 64-bit seeds required by rand/v2
// so that all call sites get reproducible sequences.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// Derive returns the generator for one step of a seeded sequence. The same
// (seed, step) pair always yields the same stream, so a game replayed from its
// log reproduces every dice roll and card draw.
func Derive(seed int64, step int) *rand.Rand {
	return New(DeriveSeed(seed, step))
}

// DeriveSeed mixes a step counter into a base seed.
func DeriveSeed(seed int64, step int) int64 {
	return int64(mix(uint64(seed) ^ mix(uint64(step)*goldenRatio64+1)))
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
