package webhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"casevoice/internal/calls"
	"casevoice/internal/users"
)

type recordedTrigger struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordedTrigger) Trigger(providerCallID, recordingURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, providerCallID+"|"+recordingURL)
}

func (r *recordedTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestReconciler(t *testing.T) (*Reconciler, *calls.MemoryStore, *recordedTrigger) {
	t.Helper()
	store := calls.NewMemoryStore()
	trigger := &recordedTrigger{}
	dir := users.NewMemoryDirectory()
	dir.ByPhone["+15550009999"] = "u42"
	r := NewReconciler(store, dir, trigger, nil)
	return r, store, trigger
}

func TestReconcileCreatesRecordFromFirstEvent(t *testing.T) {
	r, _, _ := newTestReconciler(t)

	out, err := r.Reconcile(context.Background(), Event{
		ProviderCallID: "CA1",
		RawStatus:      "ringing",
		From:           "+15550009999",
		To:             "+15550001111",
		Direction:      "outbound-dial",
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !out.Created {
		t.Fatalf("expected created")
	}
	rec := out.Record
	if rec.Status != calls.StatusRinging {
		t.Fatalf("status = %v", rec.Status)
	}
	if rec.Direction != calls.DirectionOutgoing {
		t.Fatalf("direction = %v", rec.Direction)
	}
	if rec.OwnerUserID != "u42" {
		t.Fatalf("owner = %q", rec.OwnerUserID)
	}
	if rec.StartedAt == nil {
		t.Fatalf("started_at not set")
	}
}

func TestReconcileIsIdempotentOnReplay(t *testing.T) {
	r, store, trigger := newTestReconciler(t)
	ctx := context.Background()

	ev := Event{
		ProviderCallID: "CA1",
		RawStatus:      "completed",
		CallDuration:   "50",
		RecordingURL:   "https://api.example/rec/RE1",
	}
	first, err := r.Reconcile(ctx, ev)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !first.RecordingTriggered {
		t.Fatalf("first delivery should trigger retrieval")
	}

	// At-least-once delivery: the exact same event arrives again.
	second, err := r.Reconcile(ctx, ev)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.RecordingTriggered {
		t.Fatalf("replay must not re-trigger retrieval")
	}
	if trigger.count() != 1 {
		t.Fatalf("retrieval triggered %d times", trigger.count())
	}

	rec, err := store.Get(ctx, "CA1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != calls.StatusEnded || *rec.DurationSeconds != 50 {
		t.Fatalf("replay changed record: %+v", rec)
	}
}

func TestReconcileTerminalStatusIsMonotonic(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, Event{ProviderCallID: "CA1", RawStatus: "completed"}); err != nil {
		t.Fatalf("terminal event: %v", err)
	}

	// A stale in-progress webhook arrives after the call already ended.
	if _, err := r.Reconcile(ctx, Event{ProviderCallID: "CA1", RawStatus: "in-progress"}); err != nil {
		t.Fatalf("stale event: %v", err)
	}

	rec, err := store.Get(ctx, "CA1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != calls.StatusEnded {
		t.Fatalf("terminal status downgraded to %v", rec.Status)
	}

	// A different terminal status may still replace it.
	if _, err := r.Reconcile(ctx, Event{ProviderCallID: "CA1", RawStatus: "failed"}); err != nil {
		t.Fatalf("terminal replace: %v", err)
	}
	rec, _ = store.Get(ctx, "CA1")
	if rec.Status != calls.StatusRejected {
		t.Fatalf("terminal-to-terminal merge lost: %v", rec.Status)
	}
}

func TestReconcileOutOfOrderRecordingBeforeStatus(t *testing.T) {
	r, store, trigger := newTestReconciler(t)
	ctx := context.Background()

	// Recording callback outruns the voice-status callback entirely.
	out, err := r.Reconcile(ctx, Event{
		ProviderCallID:    "CA1",
		RawStatus:         "completed",
		RecordingURL:      "https://api.example/rec/RE1",
		RecordingDuration: "42",
	})
	if err != nil {
		t.Fatalf("recording event: %v", err)
	}
	if !out.Created || !out.RecordingTriggered {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	// Now the late voice-status arrives with from/to details.
	if _, err := r.Reconcile(ctx, Event{
		ProviderCallID: "CA1",
		RawStatus:      "completed",
		From:           "+15550009999",
		To:             "+15550001111",
		CallDuration:   "50",
	}); err != nil {
		t.Fatalf("late status event: %v", err)
	}

	rec, err := store.Get(ctx, "CA1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.FromNumber != "+15550009999" {
		t.Fatalf("late event did not backfill from: %+v", rec)
	}
	if rec.RecordingURL != "https://api.example/rec/RE1" {
		t.Fatalf("recording url lost: %+v", rec)
	}
	// Recording duration wins over the later call duration.
	if rec.DurationSeconds == nil || *rec.DurationSeconds != 42 {
		t.Fatalf("duration = %v, want 42", rec.DurationSeconds)
	}
	if trigger.count() != 1 {
		t.Fatalf("retrieval triggered %d times", trigger.count())
	}
}

func TestReconcileRecordingDurationOverridesCallDuration(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, Event{ProviderCallID: "CA1", RawStatus: "completed", CallDuration: "50"}); err != nil {
		t.Fatalf("status event: %v", err)
	}
	if _, err := r.Reconcile(ctx, Event{ProviderCallID: "CA1", RawStatus: "completed", RecordingURL: "https://api.example/rec/RE1", RecordingDuration: "42"}); err != nil {
		t.Fatalf("recording event: %v", err)
	}

	rec, _ := store.Get(ctx, "CA1")
	if rec.DurationSeconds == nil || *rec.DurationSeconds != 42 {
		t.Fatalf("duration = %v, want recording duration 42", rec.DurationSeconds)
	}
}

func TestReconcileCallDurationOnlyFillsEmpty(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, Event{ProviderCallID: "CA1", RawStatus: "completed", RecordingURL: "https://api.example/rec/RE1", RecordingDuration: "42"}); err != nil {
		t.Fatalf("recording event: %v", err)
	}
	if _, err := r.Reconcile(ctx, Event{ProviderCallID: "CA1", RawStatus: "completed", CallDuration: "50"}); err != nil {
		t.Fatalf("status event: %v", err)
	}

	rec, _ := store.Get(ctx, "CA1")
	if rec.DurationSeconds == nil || *rec.DurationSeconds != 42 {
		t.Fatalf("call duration overwrote recording duration: %v", rec.DurationSeconds)
	}
}

func TestReconcileUnknownStatusEndsCall(t *testing.T) {
	r, store, _ := newTestReconciler(t)

	if _, err := r.Reconcile(context.Background(), Event{ProviderCallID: "CA1", RawStatus: "mystery"}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	rec, _ := store.Get(context.Background(), "CA1")
	if rec.Status != calls.StatusEnded {
		t.Fatalf("unknown status mapped to %v", rec.Status)
	}
	if rec.EndedAt == nil {
		t.Fatalf("terminal merge did not stamp ended_at")
	}
}

func TestReconcileRejectsEmptyCallID(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	if _, err := r.Reconcile(context.Background(), Event{RawStatus: "completed"}); err == nil {
		t.Fatalf("expected error for empty call id")
	}
}

func TestReconcileConcurrentDeliveries(t *testing.T) {
	r, store, trigger := newTestReconciler(t)
	ctx := context.Background()

	events := []Event{
		{ProviderCallID: "CA1", RawStatus: "ringing"},
		{ProviderCallID: "CA1", RawStatus: "in-progress"},
		{ProviderCallID: "CA1", RawStatus: "completed", CallDuration: "50"},
		{ProviderCallID: "CA1", RawStatus: "completed", RecordingURL: "https://api.example/rec/RE1", RecordingDuration: "42"},
		{ProviderCallID: "CA1", RawStatus: "completed", RecordingURL: "https://api.example/rec/RE1", RecordingDuration: "42"},
	}

	var wg sync.WaitGroup
	for _, ev := range events {
		wg.Add(1)
		go func(ev Event) {
			defer wg.Done()
			if _, err := r.Reconcile(ctx, ev); err != nil {
				t.Errorf("reconcile %v: %v", ev.RawStatus, err)
			}
		}(ev)
	}
	wg.Wait()

	rec, err := store.Get(ctx, "CA1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != calls.StatusEnded {
		t.Fatalf("final status = %v", rec.Status)
	}
	if rec.DurationSeconds == nil || *rec.DurationSeconds != 42 {
		t.Fatalf("final duration = %v", rec.DurationSeconds)
	}
	if trigger.count() != 1 {
		t.Fatalf("retrieval triggered %d times, want exactly once", trigger.count())
	}
}

func TestReconcileStampsEndedAtOnce(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	ctx := context.Background()

	first := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	r.Now = func() time.Time { return first }
	if _, err := r.Reconcile(ctx, Event{ProviderCallID: "CA1", RawStatus: "completed"}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	r.Now = func() time.Time { return first.Add(time.Minute) }
	if _, err := r.Reconcile(ctx, Event{ProviderCallID: "CA1", RawStatus: "completed"}); err != nil {
		t.Fatalf("replay: %v", err)
	}

	rec, _ := store.Get(ctx, "CA1")
	if rec.EndedAt == nil || !rec.EndedAt.Equal(first) {
		t.Fatalf("ended_at = %v, want %v", rec.EndedAt, first)
	}
}
