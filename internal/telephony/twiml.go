// Package telephony is the provider boundary: TwiML rendering for the voice
// webhook and thin wrappers over the provider REST API. No business logic.
package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlDial struct {
	XMLName                 xml.Name `xml:"Dial"`
	CallerID                string   `xml:"callerId,attr,omitempty"`
	Timeout                 int      `xml:"timeout,attr,omitempty"`
	Record                  string   `xml:"record,attr,omitempty"`
	RecordingStatusCallback string   `xml:"recordingStatusCallback,attr,omitempty"`
	Number                  string   `xml:"Number,omitempty"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// BridgeParams drives the voice-webhook TwiML: connect the caller to the
// dialed number, record from answer, and point the recording callback at us.
type BridgeParams struct {
	To                      string
	CallerID                string
	TimeoutSeconds          int
	RecordingStatusCallback string
}

// RenderBridge renders the TwiML that bridges an outbound softphone call to
// its destination. A trailing Say covers the no-answer path.
func RenderBridge(p BridgeParams) (string, error) {
	if strings.TrimSpace(p.To) == "" {
		return "", errors.New("telephony: destination number required")
	}
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = 30
	}

	r := twimlResponse{Verbs: []any{
		twimlDial{
			CallerID:                p.CallerID,
			Timeout:                 p.TimeoutSeconds,
			Record:                  "record-from-answer",
			RecordingStatusCallback: p.RecordingStatusCallback,
			Number:                  p.To,
		},
		twimlSay{Text: "The call could not be completed. Please try again later."},
	}}
	return encodeTwiML(r)
}

// RenderFailure renders the apology TwiML used when the webhook itself
// cannot process the call.
func RenderFailure() string {
	r := twimlResponse{Verbs: []any{
		twimlSay{Text: "Sorry, there was an error processing your call."},
		twimlHangup{},
	}}
	out, _ := encodeTwiML(r)
	return out
}

func encodeTwiML(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
