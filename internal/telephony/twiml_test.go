package telephony

import (
	"strings"
	"testing"
)

func TestRenderBridge(t *testing.T) {
	out, err := RenderBridge(BridgeParams{
		To:                      "+15551234567",
		CallerID:                "+15550001111",
		RecordingStatusCallback: "https://api.example/webhooks/twilio/recording-status",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"<Response>",
		`callerId="+15550001111"`,
		`record="record-from-answer"`,
		`recordingStatusCallback="https://api.example/webhooks/twilio/recording-status"`,
		`timeout="30"`,
		"<Number>+15551234567</Number>",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("twiml missing %q:\n%s", want, out)
		}
	}
}

func TestRenderBridgeRequiresDestination(t *testing.T) {
	if _, err := RenderBridge(BridgeParams{}); err == nil {
		t.Fatalf("expected error for empty destination")
	}
}

func TestRenderBridgeCustomTimeout(t *testing.T) {
	out, err := RenderBridge(BridgeParams{To: "+15551234567", TimeoutSeconds: 45})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, `timeout="45"`) {
		t.Fatalf("timeout not rendered:\n%s", out)
	}
}

func TestRenderFailure(t *testing.T) {
	out := RenderFailure()
	if !strings.Contains(out, "<Say>") || !strings.Contains(out, "<Hangup") {
		t.Fatalf("failure twiml:\n%s", out)
	}
}
