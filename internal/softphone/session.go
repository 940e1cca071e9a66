package softphone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"casevoice/internal/phone"
	"casevoice/internal/ratelimit"
)

// State is the controller's call state.
type State string

const (
	StateIdle          State = "IDLE"
	StateConnecting    State = "CONNECTING"
	StateRinging       State = "RINGING"
	StateConnected     State = "CONNECTED"
	StateDisconnecting State = "DISCONNECTING"
	StateError         State = "ERROR"
)

// ErrCallInProgress rejects a dial while another call is active.
var ErrCallInProgress = errors.New("softphone: a call is already in progress")

// ErrNotReady rejects a dial before the device finished initializing.
var ErrNotReady = errors.New("softphone: device not ready")

// LiveTranscripts is the slice of the transcription manager the controller
// needs: start a session on accept, stop it on disconnect.
type LiveTranscripts interface {
	StartSession(ctx context.Context, providerCallID string) error
	StopSession(ctx context.Context, providerCallID string) error
}

// CallObserver receives user-facing call lifecycle callbacks: local history
// updates, on-screen notifications. Each method fires at most once per call.
type CallObserver interface {
	// CallStarted fires when the call is accepted. The provider call id can
	// still be empty at that point.
	CallStarted(providerCallID string)
	// CallEnded fires after an accepted call disconnects, with the locally
	// timed duration.
	CallEnded(providerCallID string, duration time.Duration)
	// CallFailed fires when a call fails to connect or dies mid-call.
	CallFailed(err error)
}

// Controller drives one user's softphone: device initialization with token
// refresh, dial preconditions, and the call state machine.
//
// State moves IDLE -> CONNECTING -> RINGING -> CONNECTED -> DISCONNECTING
// -> IDLE; any connection failure passes through ERROR and settles back at
// IDLE without retrying. The failed call is simply over.
type Controller struct {
	device      Device
	issuer      *TokenIssuer
	limiter     ratelimit.Limiter
	transcripts LiveTranscripts
	log         *slog.Logger

	UserID string

	// Observer, when set, gets lifecycle callbacks for the UI layer.
	Observer CallObserver

	// RefreshInterval is how often the refresh loop checks the token.
	RefreshInterval time.Duration
	Now             func() time.Time

	mu             sync.Mutex
	state          State
	ready          bool
	conn           Conn
	token          Token
	hangupInFlight bool
	accepted       bool
	activeCallSID  string
	connectedAt    time.Time

	stopRefresh chan struct{}
	stopOnce    sync.Once
}

func NewController(device Device, issuer *TokenIssuer, limiter ratelimit.Limiter, transcripts LiveTranscripts, userID string, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		device:          device,
		issuer:          issuer,
		limiter:         limiter,
		transcripts:     transcripts,
		log:             log,
		UserID:          userID,
		RefreshInterval: time.Minute,
		Now:             time.Now,
		state:           StateIdle,
		stopRefresh:     make(chan struct{}),
	}
}

// State returns the current call state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveCallSID returns the provider call id of the live call, if known.
func (c *Controller) ActiveCallSID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCallSID
}

// Init issues the first token, registers the device, and starts the token
// refresh loop. Missing credentials fail immediately; transient registration
// failures get a short bounded backoff.
func (c *Controller) Init(ctx context.Context) error {
	tok, err := c.issuer.Issue(c.UserID)
	if err != nil {
		// Configuration problems are permanent until an operator fixes the
		// environment; backing off would just hide them.
		return err
	}
	if err := c.device.UpdateToken(tok.Value); err != nil {
		return fmt.Errorf("softphone: installing token: %w", err)
	}

	if err := c.register(ctx); err != nil {
		return fmt.Errorf("softphone: device registration: %w", err)
	}

	c.mu.Lock()
	c.token = tok
	c.ready = true
	c.mu.Unlock()

	go c.refreshLoop()

	c.log.Info("softphone ready", "user_id", c.UserID, "identity", tok.Identity)
	return nil
}

// register makes the device reachable, retrying transient failures with a
// doubling backoff.
func (c *Controller) register(ctx context.Context) error {
	var regErr error
	backoff := time.Second
	for attempt := 0; attempt < 3; attempt++ {
		if regErr = c.device.Register(ctx); regErr == nil {
			return nil
		}
		c.log.Warn("device registration failed",
			"user_id", c.UserID, "attempt", attempt+1, "err", regErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return regErr
}

// Close stops the refresh loop and tears down the device.
func (c *Controller) Close() error {
	c.stopOnce.Do(func() { close(c.stopRefresh) })

	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()

	return c.device.Destroy()
}

// refreshLoop checks the token every RefreshInterval and swaps it in place
// when it gets within the refresh threshold of expiry. The device keeps its
// registration through UpdateToken; a refused swap falls back to a full
// device reinitialization.
func (c *Controller) refreshLoop() {
	ticker := time.NewTicker(c.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopRefresh:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		expiresAt := c.token.ExpiresAt
		c.mu.Unlock()

		if !NeedsRefresh(c.Now(), expiresAt) {
			continue
		}

		tok, err := c.issuer.Issue(c.UserID)
		if err != nil {
			c.log.Error("token refresh failed", "user_id", c.UserID, "err", err)
			continue
		}
		if err := c.device.UpdateToken(tok.Value); err != nil {
			c.log.Error("token update failed, reinitializing device",
				"user_id", c.UserID, "err", err)
			if err := c.reinitialize(tok); err != nil {
				c.log.Error("device reinitialization failed",
					"user_id", c.UserID, "err", err)
			}
			continue
		}

		c.mu.Lock()
		c.token = tok
		c.mu.Unlock()

		c.log.Info("voice token refreshed",
			"user_id", c.UserID, "expires_at", tok.ExpiresAt)
	}
}

// reinitialize rebuilds the device after an in-place token swap was refused:
// tear it down, install the token fresh, and re-register with backoff. The
// controller is not ready until registration succeeds again.
func (c *Controller) reinitialize(tok Token) error {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()

	if err := c.device.Destroy(); err != nil {
		c.log.Warn("device teardown failed", "user_id", c.UserID, "err", err)
	}
	if err := c.device.UpdateToken(tok.Value); err != nil {
		return fmt.Errorf("softphone: installing token: %w", err)
	}
	if err := c.register(context.Background()); err != nil {
		return fmt.Errorf("softphone: device registration: %w", err)
	}

	c.mu.Lock()
	c.token = tok
	c.ready = true
	c.mu.Unlock()

	c.log.Info("device reinitialized", "user_id", c.UserID, "expires_at", tok.ExpiresAt)
	return nil
}

// Dial validates preconditions and places an outgoing call. The number is
// normalized first, then the local state checks run, then the per-user dial
// rate limit is consulted, and only then does the device connect.
func (c *Controller) Dial(ctx context.Context, rawNumber string) error {
	to, err := phone.Normalize(rawNumber)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.ready {
		c.mu.Unlock()
		return ErrNotReady
	}
	if c.state != StateIdle && c.state != StateError {
		c.mu.Unlock()
		return ErrCallInProgress
	}
	// Reserve the state machine before consulting the rate limit; a dial
	// rejected for local reasons must not burn a window slot.
	c.state = StateConnecting
	c.accepted = false
	c.hangupInFlight = false
	c.activeCallSID = ""
	c.mu.Unlock()

	if c.limiter != nil {
		if err := c.limiter.Allow(ctx, c.UserID); err != nil {
			c.mu.Lock()
			c.state = StateIdle
			c.mu.Unlock()
			return err
		}
	}

	conn, err := c.device.Connect(ctx, map[string]string{"To": to})
	if err != nil {
		c.failCall(err)
		return fmt.Errorf("softphone: connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.watch(conn)

	c.log.Info("dialing", "user_id", c.UserID, "to", phone.Sanitize(to))
	return nil
}

// Hangup ends the active call. Hanging up with no call, or while a hangup is
// already in flight, is a no-op: disconnect events race user clicks and the
// loser of that race must not error.
func (c *Controller) Hangup() error {
	c.mu.Lock()
	if c.conn == nil || c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	if c.hangupInFlight {
		c.mu.Unlock()
		return nil
	}
	c.hangupInFlight = true
	c.state = StateDisconnecting
	conn := c.conn
	c.mu.Unlock()

	return conn.Disconnect()
}

// Mute toggles the active call's microphone.
func (c *Controller) Mute(muted bool) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if conn == nil || state != StateConnected {
		return errors.New("softphone: no connected call")
	}
	return conn.Mute(muted)
}

// watch consumes connection events until the connection closes.
func (c *Controller) watch(conn Conn) {
	for ev := range conn.Events() {
		switch ev.Type {
		case ConnRinging:
			c.mu.Lock()
			if c.state == StateConnecting {
				c.state = StateRinging
			}
			c.mu.Unlock()

		case ConnAccept:
			c.onAccept(conn, ev)

		case ConnDisconnect:
			c.onDisconnect(conn)
			return

		case ConnError:
			c.failCall(ev.Err)
			return
		}
	}
	// Channel closed without a disconnect event; treat it as one.
	c.onDisconnect(conn)
}

// onAccept marks the call live and starts live transcription exactly once.
// The call SID can lag the accept event, so the transcription start waits
// for whichever event first carries it.
func (c *Controller) onAccept(conn Conn, ev ConnEvent) {
	c.mu.Lock()
	if c.accepted {
		c.mu.Unlock()
		return
	}
	c.accepted = true
	c.state = StateConnected
	c.connectedAt = c.Now()

	sid := ev.CallSID
	if sid == "" {
		sid = conn.CallSID()
	}
	c.activeCallSID = sid
	c.mu.Unlock()

	c.log.Info("call connected", "user_id", c.UserID, "provider_call_id", sid)
	if c.Observer != nil {
		c.Observer.CallStarted(sid)
	}

	if c.transcripts == nil {
		return
	}
	if sid == "" {
		// Poll briefly for the SID; the provider assigns it moments after
		// accept at the latest.
		go c.startTranscriptionWhenIdentified(conn)
		return
	}
	if err := c.transcripts.StartSession(context.Background(), sid); err != nil {
		c.log.Error("starting live transcription", "provider_call_id", sid, "err", err)
	}
}

func (c *Controller) startTranscriptionWhenIdentified(conn Conn) {
	for i := 0; i < 20; i++ {
		sid := conn.CallSID()
		if sid != "" {
			c.mu.Lock()
			stillLive := c.state == StateConnected
			c.activeCallSID = sid
			c.mu.Unlock()

			if stillLive {
				if err := c.transcripts.StartSession(context.Background(), sid); err != nil {
					c.log.Error("starting live transcription", "provider_call_id", sid, "err", err)
				}
			}
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
	c.log.Warn("call never received a provider call id", "user_id", c.UserID)
}

func (c *Controller) onDisconnect(conn Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	sid := c.activeCallSID
	wasAccepted := c.accepted
	var duration time.Duration
	if wasAccepted {
		duration = c.Now().Sub(c.connectedAt)
	}
	c.conn = nil
	c.state = StateIdle
	c.hangupInFlight = false
	c.accepted = false
	c.activeCallSID = ""
	c.mu.Unlock()

	if sid != "" && c.transcripts != nil {
		if err := c.transcripts.StopSession(context.Background(), sid); err != nil {
			c.log.Error("stopping live transcription", "provider_call_id", sid, "err", err)
		}
	}
	if wasAccepted && c.Observer != nil {
		c.Observer.CallEnded(sid, duration)
	}

	c.log.Info("call ended",
		"user_id", c.UserID, "provider_call_id", sid, "duration", duration)
}

// failCall parks the controller in ERROR and surfaces the failure to the
// observer. There is no automatic redial; the next Dial moves straight back
// through CONNECTING.
func (c *Controller) failCall(err error) {
	c.mu.Lock()
	c.state = StateError
	c.conn = nil
	c.hangupInFlight = false
	c.accepted = false
	c.activeCallSID = ""
	c.mu.Unlock()

	c.log.Error("call failed", "user_id", c.UserID, "err", err)
	if c.Observer != nil {
		c.Observer.CallFailed(err)
	}
}
