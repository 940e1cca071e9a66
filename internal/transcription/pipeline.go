package transcription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"casevoice/internal/calls"
	"casevoice/internal/recording"
)

// Normalizer canonicalizes audio before transcription.
type Normalizer interface {
	Normalize(data []byte) []byte
}

// Pipeline runs the post-call transcription flow: download the recording,
// normalize it, transcribe it, persist the transcript.
type Pipeline struct {
	fetcher    recording.Fetcher
	normalizer Normalizer
	engine     Engine
	store      calls.Store
	log        *slog.Logger

	// Timeout bounds one full pipeline run when triggered in the background.
	Timeout time.Duration
}

func NewPipeline(fetcher recording.Fetcher, normalizer Normalizer, engine Engine, store calls.Store, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		fetcher:    fetcher,
		normalizer: normalizer,
		engine:     engine,
		store:      store,
		log:        log,
		Timeout:    5 * time.Minute,
	}
}

// Trigger starts a pipeline run in the background. It satisfies the webhook
// reconciler's retrieval hook: the webhook response must not wait on a
// download plus a transcription round trip.
func (p *Pipeline) Trigger(providerCallID, recordingURL string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
		defer cancel()
		if err := p.Run(ctx, providerCallID, recordingURL); err != nil {
			p.log.Error("transcription pipeline failed",
				"provider_call_id", providerCallID, "err", err)
		}
	}()
}

// Run executes one pipeline pass. A failed download is retried exactly once;
// recordings stay fetchable on the provider side, so a second immediate
// attempt usually rides out a blip without queueing infrastructure.
func (p *Pipeline) Run(ctx context.Context, providerCallID, recordingURL string) error {
	data, err := p.fetcher.Fetch(ctx, recordingURL)
	if err != nil && errors.Is(err, recording.ErrRetrieval) {
		p.log.Warn("recording fetch failed, retrying once",
			"provider_call_id", providerCallID, "err", err)
		data, err = p.fetcher.Fetch(ctx, recordingURL)
	}
	if err != nil {
		return err
	}

	if p.normalizer != nil {
		data = p.normalizer.Normalize(data)
	}

	text, err := p.engine.Transcribe(ctx, data)
	if err != nil {
		// The failure text is what users see in place of a transcript, but
		// the record keeps a null transcript so a later pass can still fill
		// it in.
		p.log.Error("transcription failed",
			"provider_call_id", providerCallID, "err", err)
		text = FailureText
	}
	if text == FailureText {
		return nil
	}

	if err := p.store.SetTranscript(ctx, providerCallID, text); err != nil {
		return err
	}
	p.log.Info("transcript persisted",
		"provider_call_id", providerCallID, "chars", len(text))
	return nil
}
