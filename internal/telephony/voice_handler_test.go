package telephony

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func postVoice(t *testing.T, h VoiceHandler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/twilio/voice", h.HandleVoice)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/voice", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleVoiceBridgesWithRecording(t *testing.T) {
	h := VoiceHandler{PublicBaseURL: "https://voice.example.com/"}
	w := postVoice(t, h, url.Values{
		"To":   {"+15551234567"},
		"From": {"client:user_42"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`record="record-from-answer"`,
		`recordingStatusCallback="https://voice.example.com/webhooks/twilio/recording-status"`,
		"<Number>+15551234567</Number>",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("twiml missing %q:\n%s", want, body)
		}
	}
}

func TestHandleVoiceWithoutDestinationStillReturnsTwiML(t *testing.T) {
	h := VoiceHandler{PublicBaseURL: "https://voice.example.com"}
	w := postVoice(t, h, url.Values{"From": {"client:user_42"}})

	if w.Code != http.StatusOK {
		t.Fatalf("twilio must always get 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<Say>") {
		t.Fatalf("failure twiml expected:\n%s", w.Body.String())
	}
}
