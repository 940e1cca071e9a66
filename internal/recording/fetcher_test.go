package recording

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPFetcherDownloadsWithBasicAuth(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		user, pass, ok := r.BasicAuth()
		if !ok || user != "ACxxx" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("RIFF-audio-bytes"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("ACxxx", "secret")
	data, err := f.Fetch(context.Background(), srv.URL+"/recordings/RE1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "RIFF-audio-bytes" {
		t.Fatalf("body = %q", data)
	}
	if gotPath != "/recordings/RE1.wav" {
		t.Fatalf("path = %q, want .wav rendition", gotPath)
	}
}

func TestHTTPFetcherKeepsExplicitExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recordings/RE1.mp3" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("ACxxx", "secret")
	if _, err := f.Fetch(context.Background(), srv.URL+"/recordings/RE1.mp3"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
}

func TestHTTPFetcherNon2xxIsRetrievalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher("ACxxx", "secret")
	_, err := f.Fetch(context.Background(), srv.URL+"/recordings/RE1")
	if !errors.Is(err, ErrRetrieval) {
		t.Fatalf("err = %v, want ErrRetrieval", err)
	}
}

func TestHTTPFetcherEmptyBodyIsRetrievalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	f := NewHTTPFetcher("ACxxx", "secret")
	if _, err := f.Fetch(context.Background(), srv.URL+"/recordings/RE1"); !errors.Is(err, ErrRetrieval) {
		t.Fatalf("err = %v, want ErrRetrieval", err)
	}
}

func TestHTTPFetcherEmptyURL(t *testing.T) {
	f := NewHTTPFetcher("ACxxx", "secret")
	if _, err := f.Fetch(context.Background(), ""); !errors.Is(err, ErrRetrieval) {
		t.Fatalf("err = %v, want ErrRetrieval", err)
	}
}
