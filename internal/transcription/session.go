package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"casevoice/internal/calls"
)

// Manager owns the live transcription sessions, at most one per call.
type Manager struct {
	engine LiveEngine
	store  calls.Store
	log    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(engine LiveEngine, store calls.Store, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		engine:   engine,
		store:    store,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Start opens a live session for the call, or returns the one already open.
// Starting twice for the same call never opens a second engine connection.
func (m *Manager) Start(ctx context.Context, providerCallID string) (*Session, error) {
	if providerCallID == "" {
		return nil, fmt.Errorf("transcription: call id required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[providerCallID]; ok {
		return s, nil
	}

	stream, err := m.engine.Open(ctx, providerCallID)
	if err != nil {
		return nil, fmt.Errorf("transcription: opening live session: %w", err)
	}

	s := newSession(providerCallID, stream, m.log)
	m.sessions[providerCallID] = s
	go s.pump()

	m.log.Info("live transcription session started", "provider_call_id", providerCallID)
	return s, nil
}

// Get returns the open session for the call, if any.
func (m *Manager) Get(providerCallID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[providerCallID]
	return s, ok
}

// Stop closes the call's session: the engine connection is shut down, every
// segment it still had buffered is drained, and the accumulated transcript is
// persisted before the session disappears. Stopping a call with no session
// is a no-op.
func (m *Manager) Stop(ctx context.Context, providerCallID string) error {
	m.mu.Lock()
	s, ok := m.sessions[providerCallID]
	delete(m.sessions, providerCallID)
	m.mu.Unlock()

	if !ok {
		return nil
	}

	transcript := s.shutdown()
	if transcript == "" {
		m.log.Info("live transcription session closed without transcript",
			"provider_call_id", providerCallID)
		return nil
	}

	if err := m.store.SetTranscript(ctx, providerCallID, transcript); err != nil {
		return fmt.Errorf("transcription: persisting live transcript: %w", err)
	}
	m.log.Info("live transcript persisted",
		"provider_call_id", providerCallID, "chars", len(transcript))
	return nil
}

// StartSession and StopSession expose the manager to callers that only
// drive session lifecycle and never touch the segment feed.
func (m *Manager) StartSession(ctx context.Context, providerCallID string) error {
	_, err := m.Start(ctx, providerCallID)
	return err
}

func (m *Manager) StopSession(ctx context.Context, providerCallID string) error {
	return m.Stop(ctx, providerCallID)
}

// Session is one live transcription stream plus its fan-out to listeners.
type Session struct {
	CallID string

	stream LiveStream
	log    *slog.Logger

	mu      sync.Mutex
	finals  []string
	subs    map[int]chan Segment
	nextSub int

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(callID string, stream LiveStream, log *slog.Logger) *Session {
	return &Session{
		CallID: callID,
		stream: stream,
		log:    log,
		subs:   make(map[int]chan Segment),
		done:   make(chan struct{}),
	}
}

// Write feeds raw audio into the session.
func (s *Session) Write(p []byte) (int, error) {
	return s.stream.Write(p)
}

// Subscribe attaches a listener to the segment feed. The returned cancel
// function detaches it; the channel is closed when the session ends.
func (s *Session) Subscribe() (<-chan Segment, func()) {
	ch := make(chan Segment, 64)

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
		s.mu.Unlock()
	}
}

// pump consumes the stream until the engine closes it, accumulating final
// segments and fanning everything out to subscribers.
func (s *Session) pump() {
	for seg := range s.stream.Segments() {
		s.mu.Lock()
		if seg.Final {
			s.finals = append(s.finals, seg.Text)
		}
		for _, ch := range s.subs {
			select {
			case ch <- seg:
			default:
				// A stalled listener must not stall transcription.
			}
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	close(s.done)
	s.mu.Unlock()
}

// shutdown closes the stream and blocks until pump has drained every
// remaining segment, then returns the assembled transcript.
func (s *Session) shutdown() string {
	s.closeOnce.Do(func() {
		if err := s.stream.Close(); err != nil {
			s.log.Warn("closing live stream", "call_id", s.CallID, "err", err)
		}
	})
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.finals, " ")
}
