// Package memory is an in-process repository.Store for tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/repository"
)

// Store holds records keyed by ID. Lookups record the IDs they were asked
// for so tests can assert on access.
type Store struct {
	mu        sync.RWMutex
	products  map[string]domain.ProductRecord
	reviews   map[string]domain.ReviewRecord
	relations map[domain.EventKind]map[string][]string
	lookups   int
	failErr   error
}

var _ repository.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		products:  make(map[string]domain.ProductRecord),
		reviews:   make(map[string]domain.ReviewRecord),
		relations: make(map[domain.EventKind]map[string][]string),
	}
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p domain.ProductRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// PutReview inserts or replaces a review.
func (s *Store) PutReview(r domain.ReviewRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[r.ID] = r
}

// Remove hard-deletes id from every table.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
	delete(s.reviews, id)
}

// Relate records that the intermediate entity of kind affects productIDs.
func (s *Store) Relate(kind domain.EventKind, entityID string, productIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.relations[kind]
	if !ok {
		m = make(map[string][]string)
		s.relations[kind] = m
	}
	m[entityID] = append(m[entityID], productIDs...)
}

// FailWith makes every read fail with err. Nil restores normal behaviour.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Lookups returns how many LookupEligibility and Load calls were made.
func (s *Store) Lookups() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookups
}

func (s *Store) eligibility(t domain.IndexType) ([]domain.Eligibility, error) {
	var out []domain.Eligibility
	switch t {
	case domain.IndexProducts:
		for _, id := range slices.Sorted(maps.Keys(s.products)) {
			p := s.products[id]
			out = append(out, domain.Eligibility{ID: p.ID, Status: string(p.Status), DeletedAt: p.DeletedAt})
		}
	case domain.IndexReviews:
		for _, id := range slices.Sorted(maps.Keys(s.reviews)) {
			r := s.reviews[id]
			out = append(out, domain.Eligibility{ID: r.ID, DeletedAt: r.DeletedAt})
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownIndexType, t)
	}
	return out, nil
}

func (s *Store) ScanEligibility(_ context.Context, t domain.IndexType, filter repository.Filter) ([]domain.Eligibility, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failErr != nil {
		return nil, s.failErr
	}

	all, err := s.eligibility(t)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) LookupEligibility(ctx context.Context, t domain.IndexType, ids []string) ([]domain.Eligibility, error) {
	s.mu.Lock()
	s.lookups++
	s.mu.Unlock()
	if len(ids) == 0 {
		return nil, nil
	}
	return s.ScanEligibility(ctx, t, repository.Where(repository.In(repository.FieldID, ids)))
}

func (s *Store) LoadProducts(_ context.Context, ids []string) ([]domain.ProductRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.failErr != nil {
		return nil, s.failErr
	}

	var out []domain.ProductRecord
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) LoadReviews(_ context.Context, ids []string) ([]domain.ReviewRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.failErr != nil {
		return nil, s.failErr
	}

	var out []domain.ReviewRecord
	for _, id := range ids {
		if r, ok := s.reviews[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// ProductIDsFor returns the related products, de-duplicated and sorted.
func (s *Store) ProductIDsFor(_ context.Context, kind domain.EventKind, ids []string) ([]string, error) {
	if !kind.IsIntermediate() {
		return nil, fmt.Errorf("%w: %q", repository.ErrUnsupportedKind, kind)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failErr != nil {
		return nil, s.failErr
	}

	set := make(map[string]struct{})
	for _, id := range ids {
		for _, pid := range s.relations[kind][id] {
			set[pid] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil, nil
	}
	return slices.Sorted(maps.Keys(set)), nil
}
