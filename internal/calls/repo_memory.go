package calls

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and early development.
// A single mutex makes Mutate an atomic read-modify-write, matching the
// row-lock semantics of the Postgres implementation.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]CallRecord

	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]CallRecord{}, Now: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, providerCallID string) (CallRecord, error) {
	if providerCallID == "" {
		return CallRecord{}, ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[providerCallID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Mutate(ctx context.Context, providerCallID string, fn MutateFn) (CallRecord, error) {
	if providerCallID == "" {
		return CallRecord{}, ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now().UTC()
	rec, ok := s.records[providerCallID]
	created := !ok
	if created {
		rec = CallRecord{ProviderCallID: providerCallID, CreatedAt: now}
	}
	createdAt := rec.CreatedAt
	if err := fn(&rec, created); err != nil {
		return CallRecord{}, err
	}
	rec.ProviderCallID = providerCallID // immutable key
	rec.CreatedAt = createdAt           // immutable creation stamp
	rec.UpdatedAt = now
	s.records[providerCallID] = rec
	return rec, nil
}

func (s *MemoryStore) List(ctx context.Context, f HistoryFilter) ([]CallRecord, int, error) {
	f = f.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CallRecord, 0, len(s.records))
	for _, rec := range s.records {
		if !matchesFilter(rec, f) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	total := len(out)
	start := (f.Page - 1) * f.Limit
	if start >= total {
		return []CallRecord{}, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (s *MemoryStore) SetTranscript(ctx context.Context, providerCallID, transcript string) error {
	_, err := s.Mutate(ctx, providerCallID, func(rec *CallRecord, created bool) error {
		if created {
			return ErrNotFound
		}
		rec.Transcript = transcript
		return nil
	})
	return err
}

func matchesFilter(rec CallRecord, f HistoryFilter) bool {
	if f.OwnerUserID != "" && rec.OwnerUserID != f.OwnerUserID {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.Direction != "" && rec.Direction != f.Direction {
		return false
	}
	if !f.From.IsZero() && rec.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && rec.CreatedAt.After(f.To) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(rec.FromNumber), q) &&
			!strings.Contains(strings.ToLower(rec.ToNumber), q) &&
			!strings.Contains(strings.ToLower(rec.ContactName), q) {
			return false
		}
	}
	return true
}
