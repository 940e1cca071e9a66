package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DeepgramEngine is the batch transcription engine backed by Deepgram's
// prerecorded REST API.
type DeepgramEngine struct {
	apiKey string
	model  string
}

func NewDeepgramEngine(apiKey, model string) (*DeepgramEngine, error) {
	if apiKey == "" {
		return nil, errors.New("transcription: deepgram api key required")
	}
	if model == "" {
		model = "nova-2"
	}
	return &DeepgramEngine{apiKey: apiKey, model: model}, nil
}

func (e *DeepgramEngine) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if len(wav) == 0 {
		return "", errors.New("transcription: empty audio")
	}

	c := listen.NewREST(e.apiKey, &interfaces.ClientOptions{})
	dg := prerecorded.New(c)

	res, err := dg.FromStream(ctx, bytes.NewReader(wav), &interfaces.PreRecordedTranscriptionOptions{
		Model:       e.model,
		SmartFormat: true,
		Punctuate:   true,
	})
	if err != nil {
		return "", fmt.Errorf("transcription: deepgram request failed: %w", err)
	}

	if res == nil {
		return "", errors.New("transcription: malformed deepgram response")
	}
	// No channels or alternatives means the recording carried no
	// recognizable speech. An empty transcript is a valid result.
	if len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return res.Results.Channels[0].Alternatives[0].Transcript, nil
}
