// Package rng owns the three random subsystems of a training run: batch-order
// shuffling, weight initialization, and dropout masks. Each is an independent
// PCG generator so that checkpointing can persist and restore all randomness
// as explicit data rather than ambient process state.
package rng

import (
	"fmt"
	"math/rand/v2"
)

// Set bundles the run's generators. The struct is created once at startup and
// threaded through the components that consume randomness.
type Set struct {
	Shuffle *rand.Rand
	Init    *rand.Rand
	Dropout *rand.Rand

	shuffleSrc *rand.PCG
	initSrc    *rand.PCG
	dropoutSrc *rand.PCG
}

// NewSet derives the three generators from a single seed. Distinct stream
// constants keep the generators independent even under the same seed.
func NewSet(seed uint64) *Set {
	s := &Set{
		shuffleSrc: rand.NewPCG(seed, 1),
		initSrc:    rand.NewPCG(seed, 2),
		dropoutSrc: rand.NewPCG(seed, 3),
	}
	s.Shuffle = rand.New(s.shuffleSrc)
	s.Init = rand.New(s.initSrc)
	s.Dropout = rand.New(s.dropoutSrc)
	return s
}

// Snapshot captures the exact state of all three generators.
type Snapshot struct {
	Shuffle []byte `json:"system_rng"`
	Init    []byte `json:"model_rng"`
	Dropout []byte `json:"dropout_rng"`
}

// Snapshot serializes the current generator states.
func (s *Set) Snapshot() (*Snapshot, error) {
	shuffle, err := s.shuffleSrc.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("rng: snapshot shuffle generator: %w", err)
	}
	init, err := s.initSrc.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("rng: snapshot init generator: %w", err)
	}
	dropout, err := s.dropoutSrc.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("rng: snapshot dropout generator: %w", err)
	}
	return &Snapshot{Shuffle: shuffle, Init: init, Dropout: dropout}, nil
}

// Restore rewinds all three generators to a previously captured state.
func (s *Set) Restore(snap *Snapshot) error {
	if err := s.shuffleSrc.UnmarshalBinary(snap.Shuffle); err != nil {
		return fmt.Errorf("rng: restore shuffle generator: %w", err)
	}
	if err := s.initSrc.UnmarshalBinary(snap.Init); err != nil {
		return fmt.Errorf("rng: restore init generator: %w", err)
	}
	if err := s.dropoutSrc.UnmarshalBinary(snap.Dropout); err != nil {
		return fmt.Errorf("rng: restore dropout generator: %w", err)
	}
	return nil
}
