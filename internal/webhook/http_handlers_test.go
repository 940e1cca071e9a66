package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"casevoice/internal/calls"
	"casevoice/internal/users"

	"github.com/gin-gonic/gin"
)

type failingStore struct {
	calls.Store
}

func (failingStore) Mutate(ctx context.Context, providerCallID string, fn calls.MutateFn) (calls.CallRecord, error) {
	return calls.CallRecord{}, errors.New("db down")
}

func postForm(t *testing.T, r *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func newWebhookRouter(store calls.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	rec := NewReconciler(store, users.NewMemoryDirectory(), nil, nil)
	h := Handlers{Reconciler: rec}
	r := gin.New()
	r.POST("/webhooks/twilio/voice-status", h.HandleVoiceStatus)
	r.POST("/webhooks/twilio/recording-status", h.HandleRecordingStatus)
	return r
}

func TestVoiceStatusWebhookReturns200(t *testing.T) {
	store := calls.NewMemoryStore()
	r := newWebhookRouter(store)

	w := postForm(t, r, "/webhooks/twilio/voice-status", url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"completed"},
		"From":       {"+15550009999"},
		"To":         {"+15550001111"},
		"Direction":  {"outbound-dial"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	rec, err := store.Get(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != calls.StatusEnded {
		t.Fatalf("record status = %v", rec.Status)
	}
}

func TestVoiceStatusWebhookAlways200OnStoreFailure(t *testing.T) {
	r := newWebhookRouter(failingStore{})

	w := postForm(t, r, "/webhooks/twilio/voice-status", url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"completed"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("provider must see 200, got %d", w.Code)
	}
}

func TestVoiceStatusWebhookMissingCallSid200(t *testing.T) {
	r := newWebhookRouter(calls.NewMemoryStore())
	w := postForm(t, r, "/webhooks/twilio/voice-status", url.Values{
		"CallStatus": {"completed"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRecordingStatusWebhookIgnoresNonCompleted(t *testing.T) {
	store := calls.NewMemoryStore()
	r := newWebhookRouter(store)

	w := postForm(t, r, "/webhooks/twilio/recording-status", url.Values{
		"CallSid":         {"CA1"},
		"RecordingStatus": {"in-progress"},
		"RecordingUrl":    {"https://api.example/rec/RE1"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if _, err := store.Get(context.Background(), "CA1"); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("non-completed recording event must not create a record, got %v", err)
	}
}

func TestRecordingStatusWebhookStoresRecording(t *testing.T) {
	store := calls.NewMemoryStore()
	r := newWebhookRouter(store)

	w := postForm(t, r, "/webhooks/twilio/recording-status", url.Values{
		"CallSid":           {"CA1"},
		"RecordingStatus":   {"completed"},
		"RecordingUrl":      {"https://api.example/rec/RE1"},
		"RecordingDuration": {"42"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	rec, err := store.Get(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.RecordingURL != "https://api.example/rec/RE1" {
		t.Fatalf("recording url = %q", rec.RecordingURL)
	}
	if rec.DurationSeconds == nil || *rec.DurationSeconds != 42 {
		t.Fatalf("duration = %v", rec.DurationSeconds)
	}
}
