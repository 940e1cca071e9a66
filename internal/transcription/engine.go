// Package transcription turns call recordings into text, both as a batch
// step after the recording lands and as a live stream during the call.
package transcription

import "context"

// FailureText is the transcript value produced when the engine fails. It is
// shown to users in place of a transcript but is never persisted as one.
const FailureText = "Getting an Error During Transcribtion"

// Engine transcribes a complete recording in one shot.
type Engine interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, wav []byte) (string, error)

func (f EngineFunc) Transcribe(ctx context.Context, wav []byte) (string, error) {
	return f(ctx, wav)
}
