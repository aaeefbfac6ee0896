package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/leverdex/depositd/internal/app/domain/deposit"
	"github.com/leverdex/depositd/internal/app/storage"
)

// Store is an in-memory implementation of the deposit store. It is safe for
// concurrent use and serves as the reference implementation for the atomic
// Put contract; persistent backends must behave identically.
type Store struct {
	mu      sync.RWMutex
	records map[string]deposit.Record
	byOwner map[string][]string
}

var _ storage.DepositStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		records: make(map[string]deposit.Record),
		byOwner: make(map[string][]string),
	}
}

// Put inserts the record unless one already exists for its signature. The
// record map and the owner index are updated under one critical section so a
// reader never observes a record without its index entry.
func (s *Store) Put(_ context.Context, rec deposit.Record) (deposit.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.Signature]; ok {
		return existing, false, nil
	}

	s.records[rec.Signature] = rec
	ownerKey := ownerKey(rec.Owner)
	s.byOwner[ownerKey] = append(s.byOwner[ownerKey], rec.Signature)
	return rec, true, nil
}

func (s *Store) Get(_ context.Context, signature string) (deposit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[signature]
	if !ok {
		return deposit.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Has(_ context.Context, signature string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[signature]
	return ok, nil
}

// ListByOwner returns the owner's verified records in insertion order.
func (s *Store) ListByOwner(_ context.Context, owner string) ([]deposit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sigs := s.byOwner[ownerKey(owner)]
	result := make([]deposit.Record, 0, len(sigs))
	for _, sig := range sigs {
		rec, ok := s.records[sig]
		if !ok || !rec.Verified {
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}

func (s *Store) TotalByOwner(ctx context.Context, owner string) (uint64, error) {
	records, err := s.ListByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, rec := range records {
		total += rec.Lamports
	}
	return total, nil
}

func ownerKey(owner string) string {
	return strings.TrimSpace(owner)
}
