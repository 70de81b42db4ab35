package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/kaiven11/artical-generate/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestExtractPrefersArticleTitleAndBodySelectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<h1>Generic Heading</h1>
			<h1 class="article-title">The Real Title</h1>
			<article class="article-body">Real body content with several words in it.</article>
		</body></html>`))
	}))
	defer srv.Close()

	s := New(srv.Client(), testLogger)
	result, err := s.Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.Title != "The Real Title" {
		t.Errorf("expected the higher-priority title selector to win, got %q", result.Title)
	}
	if result.Body == "" {
		t.Error("expected non-empty body")
	}
	if result.WordCount == 0 {
		t.Error("expected a positive word count")
	}
}

func TestExtractFallsBackToXPathWhenCSSSelectorsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<div class="unmatched-wrapper">
				<h1>XPath Only Title</h1>
				<div class="content">Only the xpath fallback should find this body text.</div>
			</div>
		</body></html>`))
	}))
	defer srv.Close()

	s := New(srv.Client(), testLogger)
	result, err := s.Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.Title != "XPath Only Title" {
		t.Errorf("expected the plain h1 selector to find the title, got %q", result.Title)
	}
	if result.Body == "" {
		t.Error("expected xpath fallback to recover a body")
	}
}

func TestExtractReturnsValidationErrorWhenNoBodyFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body></body></html>`))
	}))
	defer srv.Close()

	s := New(srv.Client(), testLogger)
	_, err := s.Extract(context.Background(), srv.URL)
	var valErr *types.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
}

func TestExtractReturnsTransportErrorOnHTTPFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(srv.Client(), testLogger)
	_, err := s.Extract(context.Background(), srv.URL)
	var transportErr *types.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected a TransportError, got %v", err)
	}
	if transportErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", transportErr.StatusCode)
	}
}
