package engine

import (
	"math/rand"
	"sync"
	"time"
)

// Source is the randomness the engine draws from.
type Source interface {
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64
	// Intn returns a value in [0, n). n must be positive.
	Intn(n int) int
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Intn(n)
}

// NewSource returns a Source seeded with seed, safe for concurrent use.
func NewSource(seed int64) Source {
	return &lockedSource{r: rand.New(rand.NewSource(seed))}
}

func newRNG() Source { return NewSource(time.Now().UnixNano()) }

// ComputeDamage rolls an attack's damage: uniform over the inclusive range
// [floor(attack/2), attack]. Non-positive attack deals nothing.
func ComputeDamage(src Source, attack int) int {
	if attack <= 0 {
		return 0
	}
	lo := attack / 2
	span := attack - lo + 1
	dmg := int(src.Float64()*float64(span)) + lo
	// Float64 never returns 1.0, but a misbehaving source must not overshoot.
	if dmg > attack {
		dmg = attack
	}
	return dmg
}

// RandomID draws an id uniformly from 1..size.
func RandomID(src Source, size int) int {
	if size <= 0 {
		return 1
	}
	return src.Intn(size) + 1
}
