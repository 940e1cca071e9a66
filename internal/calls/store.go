package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("calls: record not found")
	ErrInvalidRequest = errors.New("calls: invalid request")
)

// MutateFn edits a record in place inside Store.Mutate. created reports
// whether the record was freshly created for this mutation (no prior row for
// the provider call id); implementations persist the edited record after fn
// returns nil.
type MutateFn func(rec *CallRecord, created bool) error

// Store abstracts call record persistence.
//
// Mutate is the concurrency contract of the whole reconciliation path: the
// read-modify-write for one provider_call_id must be atomic (row lock or
// equivalent), never separate read-then-write steps. Webhook delivery is
// concurrent and at-least-once.
type Store interface {
	Get(ctx context.Context, providerCallID string) (CallRecord, error)
	Mutate(ctx context.Context, providerCallID string, fn MutateFn) (CallRecord, error)
	List(ctx context.Context, f HistoryFilter) ([]CallRecord, int, error)
	SetTranscript(ctx context.Context, providerCallID, transcript string) error
}

// HistoryFilter narrows a call-history query. Zero values mean "no filter".
type HistoryFilter struct {
	OwnerUserID string
	Status      Status
	Direction   Direction
	From        time.Time
	To          time.Time

	// Search matches against from/to numbers and the contact name.
	Search string

	Page  int
	Limit int
}

func (f HistoryFilter) withDefaults() HistoryFilter {
	out := f
	if out.Page <= 0 {
		out.Page = 1
	}
	if out.Limit <= 0 || out.Limit > 200 {
		out.Limit = 50
	}
	return out
}
