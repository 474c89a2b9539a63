package storemem

import (
	"context"
	"sort"
	"sync"
	"time"

	"zkpad/internal/domain"
)

// Store is the in-process state store: attestations, verification
// receipts, and idempotency records. All mutation funnels through
// UpdateWith, which serializes writers per identifier.
type Store struct {
	mu           sync.RWMutex
	attestations map[string]*domain.Attestation
	receipts     map[string]*domain.VerificationReceipt
	idempotency  map[string]domain.IdempotencyRecord

	archive domain.ArchiveStore
}

func New() *Store {
	return &Store{
		attestations: make(map[string]*domain.Attestation),
		receipts:     make(map[string]*domain.VerificationReceipt),
		idempotency:  make(map[string]domain.IdempotencyRecord),
	}
}

// NewWithArchive mirrors every accepted write to the SQL archive.
// Archive failures never surface to callers.
func NewWithArchive(archive domain.ArchiveStore) *Store {
	s := New()
	s.archive = archive
	return s
}

func (s *Store) PutIfAbsent(ctx context.Context, a *domain.Attestation) error {
	s.mu.Lock()
	if _, exists := s.attestations[a.ID]; exists {
		s.mu.Unlock()
		return domain.ErrConflict
	}
	stored := a.Clone()
	stored.Revision = 1
	s.attestations[a.ID] = stored
	s.mu.Unlock()

	a.Revision = stored.Revision
	s.archiveAttestation(ctx, stored)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attestations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a.Clone(), nil
}

// UpdateWith applies fn to a copy of the stored attestation and commits it
// with a revision bump. The store lock holds for the duration of fn, so
// concurrent updates to one identifier serialize; fn must not block.
func (s *Store) UpdateWith(ctx context.Context, id string, fn func(*domain.Attestation) error) (*domain.Attestation, error) {
	s.mu.Lock()
	current, ok := s.attestations[id]
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	next.Revision = current.Revision + 1
	s.attestations[id] = next
	out := next.Clone()
	s.mu.Unlock()

	s.archiveAttestation(ctx, out)
	return out, nil
}

func (s *Store) List(_ context.Context, filter domain.ListFilter) ([]*domain.Attestation, int, error) {
	s.mu.RLock()
	all := make([]*domain.Attestation, 0, len(s.attestations))
	for _, a := range s.attestations {
		if filter.State != "" && a.State != filter.State {
			continue
		}
		all = append(all, a.Clone())
	}
	s.mu.RUnlock()

	// Identifiers embed a seconds-precision timestamp, so lexicographic
	// order is creation-time order.
	sort.Slice(all, func(i, j int) bool {
		return all[i].ID < all[j].ID
	})

	total := len(all)
	if filter.Offset > 0 {
		if filter.Offset >= len(all) {
			return nil, total, nil
		}
		all = all[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, total, nil
}

func (s *Store) PutReceipt(ctx context.Context, r *domain.VerificationReceipt) error {
	s.mu.Lock()
	if _, exists := s.receipts[r.ID]; exists {
		s.mu.Unlock()
		return domain.ErrConflict
	}
	stored := *r
	stored.Checks = append([]domain.CheckOutcome(nil), r.Checks...)
	s.receipts[r.ID] = &stored
	s.mu.Unlock()

	if s.archive != nil {
		_ = s.archive.SaveReceipt(ctx, &stored)
	}
	return nil
}

func (s *Store) GetReceipt(_ context.Context, id string) (*domain.VerificationReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *r
	out.Checks = append([]domain.CheckOutcome(nil), r.Checks...)
	return &out, nil
}

// PutIdempotency inserts key -> attestationID unless an unexpired entry
// already exists. The returned id is the winner's; created reports
// whether this caller won the insert.
func (s *Store) PutIdempotency(ctx context.Context, key, attestationID string, now time.Time) (string, bool, error) {
	s.mu.Lock()
	if existing, ok := s.idempotency[key]; ok {
		if now.Sub(existing.CreatedAt) < domain.IdempotencyTTL {
			s.mu.Unlock()
			return existing.AttestationID, false, nil
		}
	}
	rec := domain.IdempotencyRecord{
		Key:           key,
		AttestationID: attestationID,
		CreatedAt:     now,
	}
	s.idempotency[key] = rec
	s.mu.Unlock()

	if s.archive != nil {
		_ = s.archive.SaveIdempotency(ctx, rec, now.Add(domain.IdempotencyTTL))
	}
	return attestationID, true, nil
}

func (s *Store) GetIdempotency(_ context.Context, key string, now time.Time) (*domain.IdempotencyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.idempotency[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if now.Sub(rec.CreatedAt) >= domain.IdempotencyTTL {
		return nil, domain.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *Store) DeleteIdempotency(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idempotency, key)
}

func (s *Store) ExpireIdempotency(_ context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, rec := range s.idempotency {
		if now.Sub(rec.CreatedAt) >= domain.IdempotencyTTL {
			delete(s.idempotency, key)
			removed++
		}
	}
	return removed
}

// ResetAll drops every container. Demo mode only.
func (s *Store) ResetAll(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attestations = make(map[string]*domain.Attestation)
	s.receipts = make(map[string]*domain.VerificationReceipt)
	s.idempotency = make(map[string]domain.IdempotencyRecord)
}

func (s *Store) archiveAttestation(ctx context.Context, a *domain.Attestation) {
	if s.archive == nil {
		return
	}
	_ = s.archive.SaveAttestation(ctx, a)
}

var _ domain.StateStore = (*Store)(nil)
