// Package store persists KYC submissions in memory or PostgreSQL, and
// provides the Redis per-user lock for multi-instance in-memory deployments.
package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"securekyc/internal/kyc/models"
	id "securekyc/pkg/domain"
	"securekyc/pkg/platform/sentinel"
)

// OwnerLookup resolves a user's email for admin listings.
type OwnerLookup interface {
	EmailOf(ctx context.Context, userID id.UserID) (string, error)
}

type memoryRecord struct {
	seq uint64
	sub models.Submission
}

// InMemoryStore keeps submissions in a map. Returned records are copies.
type InMemoryStore struct {
	mu      sync.RWMutex
	seq     uint64
	records map[id.SubmissionID]*memoryRecord
	owners  OwnerLookup
}

func NewInMemory(owners OwnerLookup) *InMemoryStore {
	return &InMemoryStore{
		records: make(map[id.SubmissionID]*memoryRecord),
		owners:  owners,
	}
}

func (s *InMemoryStore) Create(_ context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[sub.ID]; exists {
		return fmt.Errorf("submission %s: %w", sub.ID, sentinel.ErrConflict)
	}
	s.seq++
	s.records[sub.ID] = &memoryRecord{seq: s.seq, sub: clone(sub)}
	return nil
}

// Update replaces the mutable fields of an existing record in place. The
// owner and insertion position never change.
func (s *InMemoryStore) Update(_ context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sub.ID]
	if !ok || rec.sub.UserID != sub.UserID {
		return fmt.Errorf("submission %s: %w", sub.ID, sentinel.ErrNotFound)
	}
	rec.sub = clone(sub)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID, status *models.Status) ([]*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*memoryRecord, 0)
	for _, rec := range s.records {
		if rec.sub.UserID != userID {
			continue
		}
		if status != nil && rec.sub.Status != *status {
			continue
		}
		matched = append(matched, rec)
	}
	return newestFirst(matched), nil
}

func (s *InMemoryStore) ListAllWithOwner(ctx context.Context, status *models.Status) ([]models.OwnedSubmission, error) {
	s.mu.RLock()
	matched := make([]*memoryRecord, 0, len(s.records))
	for _, rec := range s.records {
		if status != nil && rec.sub.Status != *status {
			continue
		}
		matched = append(matched, rec)
	}
	subs := newestFirst(matched)
	s.mu.RUnlock()

	emails := make(map[id.UserID]string)
	out := make([]models.OwnedSubmission, 0, len(subs))
	for _, sub := range subs {
		email, seen := emails[sub.UserID]
		if !seen && s.owners != nil {
			var err error
			email, err = s.owners.EmailOf(ctx, sub.UserID)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return nil, fmt.Errorf("resolve owner of %s: %w", sub.ID, err)
			}
			emails[sub.UserID] = email
		}
		out = append(out, models.OwnedSubmission{Submission: *sub, OwnerEmail: email})
	}
	return out, nil
}

// newestFirst orders by submission date descending; ties go to the most
// recently inserted record.
func newestFirst(recs []*memoryRecord) []*models.Submission {
	slices.SortFunc(recs, func(a, b *memoryRecord) int {
		if c := b.sub.SubmissionDate.Compare(a.sub.SubmissionDate); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})
	out := make([]*models.Submission, len(recs))
	for i, rec := range recs {
		c := clone(&rec.sub)
		out[i] = &c
	}
	return out
}

func clone(sub *models.Submission) models.Submission {
	c := *sub
	c.Reasons = slices.Clone(sub.Reasons)
	if sub.Facts.Flags != nil {
		flags := *sub.Facts.Flags
		c.Facts.Flags = &flags
	}
	return c
}
