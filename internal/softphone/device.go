package softphone

import "context"

// ConnEventType enumerates events a live connection can emit.
type ConnEventType string

const (
	// ConnRinging means the far end is being alerted.
	ConnRinging ConnEventType = "ringing"
	// ConnAccept means the media path is up and the call is live.
	ConnAccept ConnEventType = "accept"
	// ConnDisconnect means the call ended, locally or remotely.
	ConnDisconnect ConnEventType = "disconnect"
	// ConnError means the connection failed.
	ConnError ConnEventType = "error"
)

// ConnEvent is one lifecycle event from a connection.
type ConnEvent struct {
	Type ConnEventType

	// CallSID is the provider call id. It can still be empty on an early
	// accept; consumers must fall back to Conn.CallSID later.
	CallSID string

	Err error
}

// Conn is one active voice connection.
type Conn interface {
	// CallSID returns the provider call id, or "" while the provider has not
	// assigned one yet.
	CallSID() string
	Mute(muted bool) error
	Disconnect() error
	// Events delivers lifecycle events. The channel closes when the
	// connection is fully torn down.
	Events() <-chan ConnEvent
}

// Device is the voice SDK endpoint the controller drives. Implementations
// wrap the vendor client; tests substitute fakes.
type Device interface {
	// Register makes the device reachable for incoming calls.
	Register(ctx context.Context) error
	// Connect places an outgoing call. Params are passed through to the
	// TwiML application (the dialed number under "To").
	Connect(ctx context.Context, params map[string]string) (Conn, error)
	// UpdateToken swaps the access token in place without tearing the
	// device down. Used by the refresh loop.
	UpdateToken(token string) error
	// Destroy tears the device down.
	Destroy() error
}
