package transcription

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// Segment is one piece of live transcript. Final segments are committed
// text; non-final ones are interim and will be replaced.
type Segment struct {
	Text  string    `json:"text"`
	Final bool      `json:"final"`
	At    time.Time `json:"at"`
}

// LiveStream is one open speech-to-text connection. Audio goes in through
// Write; transcript segments come out of Segments, which is closed once the
// engine has flushed everything after Close.
type LiveStream interface {
	Write(p []byte) (int, error)
	Segments() <-chan Segment
	Close() error
}

// LiveEngine opens live transcription streams.
type LiveEngine interface {
	Open(ctx context.Context, callID string) (LiveStream, error)
}

// DeepgramLive opens websocket streams against Deepgram's live API.
type DeepgramLive struct {
	apiKey string
	model  string
	log    *slog.Logger
}

func NewDeepgramLive(apiKey, model string, log *slog.Logger) (*DeepgramLive, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("transcription: deepgram api key required")
	}
	if model == "" {
		model = "nova-2"
	}
	if log == nil {
		log = slog.Default()
	}
	return &DeepgramLive{apiKey: apiKey, model: model, log: log}, nil
}

func (d *DeepgramLive) Open(ctx context.Context, callID string) (LiveStream, error) {
	ctx, cancel := context.WithCancel(ctx)

	s := &deepgramStream{
		callID: callID,
		out:    make(chan Segment, 256),
		cancel: cancel,
		log:    d.log,
	}
	s.pipeReader, s.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.model,
		Encoding:       "linear16",
		SampleRate:     16000,
		Channels:       1,
		InterimResults: true,
		SmartFormat:    true,
		Punctuate:      true,
	}

	dgClient, err := listen.NewWSUsingCallback(ctx, d.apiKey, clientOptions, transcriptOptions, &liveCallback{stream: s})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transcription: live client: %w", err)
	}
	s.client = dgClient

	if connected := dgClient.Connect(); !connected {
		cancel()
		return nil, fmt.Errorf("transcription: live connection failed")
	}
	d.log.Info("live transcription connected", "call_id", callID, "model", d.model)

	go func() {
		if err := dgClient.Stream(s.pipeReader); err != nil && ctx.Err() == nil {
			d.log.Error("live transcription stream error", "call_id", callID, "err", err)
		}
	}()

	return s, nil
}

type deepgramStream struct {
	callID     string
	client     *listen.WSCallback
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	out        chan Segment
	cancel     context.CancelFunc
	log        *slog.Logger
}

func (s *deepgramStream) Write(p []byte) (int, error) {
	return s.pipeWriter.Write(p)
}

func (s *deepgramStream) Segments() <-chan Segment { return s.out }

func (s *deepgramStream) Close() error {
	_ = s.pipeWriter.Close()
	if s.client != nil {
		s.client.Stop()
	}
	s.cancel()
	return nil
}

// liveCallback bridges Deepgram's callback API onto the segment channel.
type liveCallback struct {
	stream *deepgramStream
}

func (c *liveCallback) Open(or *msginterfaces.OpenResponse) error {
	return nil
}

func (c *liveCallback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	text := mr.Channel.Alternatives[0].Transcript
	if text == "" {
		return nil
	}
	seg := Segment{
		Text:  text,
		Final: mr.IsFinal || mr.SpeechFinal,
		At:    time.Now().UTC(),
	}
	select {
	case c.stream.out <- seg:
	default:
		c.stream.log.Warn("live transcript channel full, dropping segment",
			"call_id", c.stream.callID)
	}
	return nil
}

func (c *liveCallback) Metadata(md *msginterfaces.MetadataResponse) error { return nil }

func (c *liveCallback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error { return nil }

func (c *liveCallback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error { return nil }

func (c *liveCallback) Close(cr *msginterfaces.CloseResponse) error {
	close(c.stream.out)
	return nil
}

func (c *liveCallback) Error(er *msginterfaces.ErrorResponse) error {
	c.stream.log.Error("live transcription error",
		"call_id", c.stream.callID,
		"code", er.ErrCode,
		"message", er.ErrMsg)
	return nil
}

func (c *liveCallback) UnhandledEvent(byData []byte) error { return nil }
