package simulation

import (
	"hash/fnv"
	"math/rand/v2"
)

// NewRand creates the random source for a seed. Every draw of the engine comes from a
// source created here and passed in explicitly.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// TripSeed derives the per-trip seed used in per-trip seed mode
func TripSeed(base uint64, tripID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(tripID))
	return base ^ h.Sum64()
}

func normal(r *rand.Rand, mean, std float64) float64 {
	return mean + std*r.NormFloat64()
}

// uniform draws from [lo, hi); the bounds may be given in either order
func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}
