// Package webhook merges asynchronous provider events into call records.
// Delivery is concurrent, at-least-once and possibly out of order; the
// reconciler is written so that replaying any event is a no-op.
package webhook

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"casevoice/internal/calls"
	"casevoice/internal/users"
)

// Event is one provider callback, either a call-status or a recording-status
// notification. Optional fields are empty when the provider omits them.
type Event struct {
	ProviderCallID string

	// RawStatus is the provider's status string ("ringing", "completed", ...).
	RawStatus string

	From      string
	To        string
	Direction string

	RecordingURL string

	// Durations arrive as form-encoded strings.
	RecordingDuration string
	CallDuration      string
}

// Outcome reports what one reconciliation changed.
type Outcome struct {
	Record  calls.CallRecord
	Created bool

	// RecordingTriggered is true only for the reconciliation that first
	// supplied a non-null recording URL.
	RecordingTriggered bool
}

// RetrievalTrigger starts recording retrieval for a finished call. The
// implementation dispatches its own work; Reconcile does not wait on it.
type RetrievalTrigger interface {
	Trigger(providerCallID, recordingURL string)
}

// TriggerFunc adapts a function to RetrievalTrigger.
type TriggerFunc func(providerCallID, recordingURL string)

func (f TriggerFunc) Trigger(providerCallID, recordingURL string) { f(providerCallID, recordingURL) }

type Reconciler struct {
	store     calls.Store
	directory users.Directory
	retrieval RetrievalTrigger
	log       *slog.Logger

	Now func() time.Time
}

func NewReconciler(store calls.Store, directory users.Directory, retrieval RetrievalTrigger, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		store:     store,
		directory: directory,
		retrieval: retrieval,
		log:       log,
		Now:       time.Now,
	}
}

// Reconcile merges one provider event into the call record, creating the
// record when this is the first event seen for the call id. The whole merge
// runs as one atomic read-modify-write per call id.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) (Outcome, error) {
	if ev.ProviderCallID == "" {
		return Outcome{}, calls.ErrInvalidRequest
	}

	status, known := calls.MapProviderStatus(ev.RawStatus)
	if !known {
		// Unknown strings fold into ENDED so a terminal-sounding event is
		// never dropped, but the raw value is worth keeping in the logs.
		r.log.Warn("unrecognized provider call status",
			"provider_call_id", ev.ProviderCallID, "raw_status", ev.RawStatus)
	}

	// Owner resolution happens outside the record lock: it is best-effort
	// and must never extend or block the merge.
	ownerID := r.resolveOwner(ctx, ev)

	var out Outcome
	rec, err := r.store.Mutate(ctx, ev.ProviderCallID, func(rec *calls.CallRecord, created bool) error {
		now := r.Now().UTC()
		out.Created = created

		if created {
			rec.FromNumber = ev.From
			rec.ToNumber = ev.To
			rec.Direction = calls.MapProviderDirection(ev.Direction)
			rec.OwnerUserID = ownerID
			rec.StartedAt = &now
		} else {
			// Late webhooks may carry fields the first one lacked.
			if rec.FromNumber == "" {
				rec.FromNumber = ev.From
			}
			if rec.ToNumber == "" {
				rec.ToNumber = ev.To
			}
			if rec.OwnerUserID == "" {
				rec.OwnerUserID = ownerID
			}
		}

		// Monotonic status merge: a stale non-terminal event never
		// downgrades a terminal status, but the rest of the event (recording
		// URL, durations) still merges below.
		if !(rec.Status.IsTerminal() && !status.IsTerminal()) {
			rec.Status = status
			if status.IsTerminal() && rec.EndedAt == nil {
				rec.EndedAt = &now
			}
		}

		if ev.RecordingURL != "" && rec.RecordingURL == "" {
			rec.RecordingURL = ev.RecordingURL
			out.RecordingTriggered = true
		}

		// Recording duration wins over the provider call duration: it
		// reflects the actual recorded audio length.
		if d, ok := parseSeconds(ev.RecordingDuration); ok {
			rec.DurationSeconds = &d
		} else if d, ok := parseSeconds(ev.CallDuration); ok && rec.DurationSeconds == nil {
			rec.DurationSeconds = &d
		}

		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	out.Record = rec

	if out.RecordingTriggered && r.retrieval != nil {
		r.retrieval.Trigger(rec.ProviderCallID, rec.RecordingURL)
	}
	return out, nil
}

func (r *Reconciler) resolveOwner(ctx context.Context, ev Event) string {
	if r.directory == nil {
		return ""
	}
	id, err := r.directory.UserIDByPhone(ctx, ev.From, ev.To)
	if err != nil {
		r.log.Warn("user lookup by phone failed",
			"provider_call_id", ev.ProviderCallID, "err", err)
		return ""
	}
	return id
}

func parseSeconds(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
