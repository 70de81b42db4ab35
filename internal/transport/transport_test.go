package transport

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestFingerprintedTransportSetsBrowserHeaders(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: New()}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if gotHeaders.Get("Accept-Language") == "" {
		t.Error("expected Accept-Language header to be set")
	}
	if gotHeaders.Get("Sec-Ch-Ua") == "" {
		t.Error("expected Sec-Ch-Ua header to be set")
	}
}

func TestFingerprintedTransportDecompressesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte("hello decompressed world"))
		gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	client := &http.Client{Transport: New()}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "hello decompressed world" {
		t.Errorf("expected transparently decompressed body, got %q", string(body))
	}
}

func TestFingerprintedTransportSetProxy(t *testing.T) {
	proxyURL, err := url.Parse("http://127.0.0.1:9")
	if err != nil {
		t.Fatalf("parse proxy url: %v", err)
	}

	var called bool
	tr := New()
	tr.SetProxy(func(*http.Request) (*url.URL, error) {
		called = true
		return proxyURL, nil
	})

	client := &http.Client{Transport: tr, Timeout: 0}
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	_, _ = client.Do(req)

	if !called {
		t.Error("expected the configured proxy function to be invoked")
	}
}
