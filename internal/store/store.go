// Package store provides the optional last-sample cache backing the
// synchronous read path. It holds exactly one sample per entity, so room
// eviction and process restarts only lose in-process state, never the
// last position served to plain HTTP readers.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/openfleet/location-relay/internal/model"
)

// ErrNoSample indicates no sample has been cached for the entity.
var ErrNoSample = errors.New("no sample for entity")

// LastSampleStore caches the single most recent sample per entity.
// Implementations must be safe for concurrent use.
type LastSampleStore interface {
	// Put overwrites the cached sample for the sample's entity.
	Put(ctx context.Context, sample model.LocationSample) error

	// Get returns the cached sample for an entity, or ErrNoSample.
	Get(ctx context.Context, entityID string) (model.LocationSample, error)
}

// MemoryStore is an in-process LastSampleStore for redis-less deployments
// and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	samples map[string]model.LocationSample
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		samples: make(map[string]model.LocationSample),
	}
}

// Put overwrites the cached sample for the sample's entity.
func (s *MemoryStore) Put(_ context.Context, sample model.LocationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[sample.EntityID] = sample
	return nil
}

// Get returns the cached sample for an entity, or ErrNoSample.
func (s *MemoryStore) Get(_ context.Context, entityID string) (model.LocationSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sample, ok := s.samples[entityID]
	if !ok {
		return model.LocationSample{}, ErrNoSample
	}
	return sample, nil
}
