package calls

import (
	"strings"
	"time"
)

// CallRecord is the single source of truth for one phone call.
//
// Reconciliation invariant: ProviderCallID is unique and immutable once set;
// every merge of webhook state happens as one atomic read-modify-write keyed
// by it (see Store.Mutate).
//
// OwnerUserID is resolved best-effort from the from/to numbers and may stay
// empty; a call record is never blocked on user resolution.
type CallRecord struct {
	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`

	Direction Direction `json:"direction" db:"direction"`

	FromNumber string `json:"from_number" db:"from_number"`
	ToNumber   string `json:"to_number" db:"to_number"`

	Status Status `json:"status" db:"status"`

	// DurationSeconds is nil until either a recording duration or a
	// provider-reported call duration arrives.
	DurationSeconds *int `json:"duration_seconds,omitempty" db:"duration_seconds"`

	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`
	Transcript   string `json:"transcript,omitempty" db:"transcript"`

	OwnerUserID string `json:"owner_user_id,omitempty" db:"owner_user_id"`

	// ContactName is a display hint captured at dial time; webhooks never set it.
	ContactName string `json:"contact_name,omitempty" db:"contact_name"`

	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Direction string

const (
	DirectionIncoming Direction = "INCOMING"
	DirectionOutgoing Direction = "OUTGOING"
)

type Status string

const (
	StatusRinging    Status = "RINGING"
	StatusProcessing Status = "PROCESSING"
	StatusEnded      Status = "ENDED"
	StatusLineBusy   Status = "LINE_BUSY"
	StatusNoResponse Status = "NO_RESPONSE"
	StatusRejected   Status = "REJECTED"
)

// IsTerminal reports whether a status ends the call lifecycle. A stale
// non-terminal webhook must never downgrade a terminal status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusEnded, StatusRejected, StatusLineBusy, StatusNoResponse:
		return true
	default:
		return false
	}
}

// MapProviderStatus maps a raw Twilio call status string to the canonical enum.
// Unknown strings map to ENDED rather than erroring: an unrecognized
// terminal-sounding event must not be dropped. Callers should log the raw
// value when the second return is false.
func MapProviderStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed":
		return StatusEnded, true
	case "ringing", "queued", "initiated":
		return StatusRinging, true
	case "in-progress":
		return StatusProcessing, true
	case "busy":
		return StatusLineBusy, true
	case "no-answer":
		return StatusNoResponse, true
	case "failed", "canceled":
		return StatusRejected, true
	default:
		return StatusEnded, false
	}
}

// MapProviderDirection maps Twilio's Direction field ("inbound",
// "outbound-api", "outbound-dial") onto the two-valued enum.
func MapProviderDirection(raw string) Direction {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "inbound") {
		return DirectionIncoming
	}
	return DirectionOutgoing
}
