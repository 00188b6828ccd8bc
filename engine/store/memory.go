// Package store provides the listing metadata stores: an embedded
// in-memory implementation for tests and single-node setups, and a
// Postgres-backed one for shared deployments.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/engine/filter"
	"github.com/homeseek/homeseek/engine/geo"
)

// Memory is an in-memory listing store guarded by a single RWMutex. It
// implements search.ListingStore.
type Memory struct {
	mu sync.RWMutex
	m  map[int64]domain.Listing
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[int64]domain.Listing)}
}

// Get returns the listing with the given id.
func (s *Memory) Get(_ context.Context, id int64) (domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.m[id]
	if !ok {
		return domain.Listing{}, fmt.Errorf("store: listing %d: %w", id, domain.ErrNotFound)
	}
	return l, nil
}

// Query returns listings inside the bounding box (when given) that satisfy
// every condition. Result order is unspecified; ranking happens upstream.
func (s *Memory) Query(_ context.Context, box *geo.Box, conds []filter.Condition) ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Listing
	for _, l := range s.m {
		if box != nil {
			if !l.HasCoordinates() || !box.Contains(geo.Point{Lon: *l.Lon, Lat: *l.Lat}) {
				continue
			}
		}
		if !filter.Matches(l, conds) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// Upsert inserts or replaces a listing by id.
func (s *Memory) Upsert(_ context.Context, l domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[l.ID] = l
	return nil
}

// Delete removes a listing. Deleting an absent id is a no-op.
func (s *Memory) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

// Scan invokes fn for every stored listing, stopping on the first error.
func (s *Memory) Scan(_ context.Context, fn func(domain.Listing) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.m {
		if err := fn(l); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored listings.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
