package telephony

import (
	"net/http"
	"strings"

	"casevoice/pkg/logger"

	"github.com/gin-gonic/gin"
)

// VoiceHandler answers the TwiML application's voice webhook. Twilio calls
// it when a softphone connection dials out; the response bridges the call to
// the PSTN destination and arms recording.
type VoiceHandler struct {
	// PublicBaseURL builds the recording callback URL handed to the provider.
	PublicBaseURL string
}

func (h VoiceHandler) HandleVoice(c *gin.Context) {
	log := logger.FromGin(c)

	to := c.PostForm("To")
	from := c.PostForm("From")

	twiml, err := RenderBridge(BridgeParams{
		To:                      to,
		CallerID:                from,
		RecordingStatusCallback: strings.TrimRight(h.PublicBaseURL, "/") + "/webhooks/twilio/recording-status",
	})
	if err != nil {
		// Twilio needs valid TwiML even on failure; anything else plays an
		// unhelpful carrier error to the caller.
		log.Error("voice webhook failed", "to", to, "err", err)
		c.Header("Content-Type", "text/xml")
		c.String(http.StatusOK, RenderFailure())
		return
	}

	log.Info("bridging call", "from", from, "to", to)
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, twiml)
}
