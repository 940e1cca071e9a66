// Package recording downloads finished call recordings from the provider.
package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrRetrieval marks a failed download attempt. Callers distinguish it from
// programming errors because a retrieval failure is worth one retry.
var ErrRetrieval = errors.New("recording: retrieval failed")

// Fetcher downloads recording audio. Implementations must return bytes that
// are a complete audio file, or an error wrapping ErrRetrieval.
type Fetcher interface {
	Fetch(ctx context.Context, recordingURL string) ([]byte, error)
}

// HTTPFetcher pulls recording media over the provider's authenticated media
// endpoint. The recording-status webhook hands us a URL without an extension;
// appending ".wav" selects the WAV rendition.
type HTTPFetcher struct {
	AccountSID string
	AuthToken  string
	Client     *http.Client
}

func NewHTTPFetcher(accountSID, authToken string) *HTTPFetcher {
	return &HTTPFetcher{
		AccountSID: accountSID,
		AuthToken:  authToken,
		Client:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, recordingURL string) ([]byte, error) {
	if recordingURL == "" {
		return nil, fmt.Errorf("%w: empty recording url", ErrRetrieval)
	}

	url := recordingURL
	if !strings.HasSuffix(url, ".wav") && !strings.HasSuffix(url, ".mp3") {
		url += ".wav"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	req.SetBasicAuth(f.AccountSID, f.AuthToken)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrRetrieval, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrRetrieval, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty media body", ErrRetrieval)
	}
	return body, nil
}
