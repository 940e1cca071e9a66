package webhook

import (
	"net/http"

	"casevoice/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers receives Twilio's form-encoded status callbacks.
//
// Both endpoints answer 200 no matter what happened internally: the provider
// retries aggressively on non-200, and a retry storm on a recoverable store
// error helps nobody. Failures are logged and the event is dropped.
type Handlers struct {
	Reconciler *Reconciler
}

// HandleVoiceStatus handles POST /webhooks/twilio/voice-status.
func (h Handlers) HandleVoiceStatus(c *gin.Context) {
	log := logger.FromGin(c)

	ev := Event{
		ProviderCallID: c.PostForm("CallSid"),
		RawStatus:      c.PostForm("CallStatus"),
		From:           c.PostForm("From"),
		To:             c.PostForm("To"),
		Direction:      c.PostForm("Direction"),
		CallDuration:   c.PostForm("CallDuration"),
	}
	if ev.ProviderCallID == "" {
		log.Warn("voice status webhook without CallSid")
		c.String(http.StatusOK, "OK")
		return
	}

	out, err := h.Reconciler.Reconcile(c.Request.Context(), ev)
	if err != nil {
		log.Error("voice status reconciliation failed",
			"provider_call_id", ev.ProviderCallID, "err", err)
		c.String(http.StatusOK, "OK")
		return
	}
	log.Info("voice status reconciled",
		"provider_call_id", ev.ProviderCallID,
		"status", out.Record.Status,
		"created", out.Created)
	c.String(http.StatusOK, "OK")
}

// HandleRecordingStatus handles POST /webhooks/twilio/recording-status.
// Twilio fires it when the recording becomes available, typically seconds
// after the terminal call-status webhook.
func (h Handlers) HandleRecordingStatus(c *gin.Context) {
	log := logger.FromGin(c)

	if c.PostForm("RecordingStatus") != "completed" {
		c.String(http.StatusOK, "OK")
		return
	}

	ev := Event{
		ProviderCallID:    c.PostForm("CallSid"),
		RawStatus:         "completed",
		RecordingURL:      c.PostForm("RecordingUrl"),
		RecordingDuration: c.PostForm("RecordingDuration"),
	}
	if ev.ProviderCallID == "" {
		log.Warn("recording status webhook without CallSid")
		c.String(http.StatusOK, "OK")
		return
	}

	out, err := h.Reconciler.Reconcile(c.Request.Context(), ev)
	if err != nil {
		log.Error("recording status reconciliation failed",
			"provider_call_id", ev.ProviderCallID, "err", err)
		c.String(http.StatusOK, "OK")
		return
	}
	log.Info("recording status reconciled",
		"provider_call_id", ev.ProviderCallID,
		"retrieval_triggered", out.RecordingTriggered)
	c.String(http.StatusOK, "OK")
}
