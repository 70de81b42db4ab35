// Package transport provides a fingerprinted HTTP transport; cmd/republish
// builds the LLM client's http.Client on it (buffered and streaming calls
// alike), so those calls look like ordinary browser traffic instead of a
// bespoke Go HTTP client. Adapted from the teacher's internal/fetcher/stealth.go
// (TLSTransport, randomTLSConfig) and internal/fetcher/http.go
// (decompressReader).
package transport

import (
	"compress/flate"
	"compress/gzip"
	"crypto/tls"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/andybalholm/brotli"
)

// FingerprintedTransport wraps an *http.Transport and rewrites outbound
// requests to carry realistic browser headers and TLS parameters, and
// transparently decompresses gzip/deflate/br response bodies.
type FingerprintedTransport struct {
	inner *http.Transport
}

// New creates a FingerprintedTransport with no proxy configured. Call
// SetProxy afterwards to route through the identity controller's current
// egress.
func New() *FingerprintedTransport {
	return &FingerprintedTransport{
		inner: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:     randomTLSConfig(),
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 50,
			IdleConnTimeout:     90 * time.Second,
			DisableCompression:  true, // decompression is handled explicitly below
		},
	}
}

// SetProxy installs a proxy selection function, mirroring the teacher's
// ProxyManager.ProxyFunc wiring.
func (t *FingerprintedTransport) SetProxy(proxyFunc func(*http.Request) (*url.URL, error)) {
	t.inner.Proxy = proxyFunc
}

// RoundTrip implements http.RoundTripper, adding realistic browser headers
// (in the teacher's order) before delegating, then unwrapping any
// content-encoding the server applied.
func (t *FingerprintedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	applyBrowserHeaders(req)

	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	decoded, err := decompressReader(resp, resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	if decoded != resp.Body {
		resp.Body = struct {
			io.Reader
			io.Closer
		}{decoded, resp.Body}
	}
	return resp, nil
}

func applyBrowserHeaders(req *http.Request) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}
	if req.Header.Get("Sec-Ch-Ua") == "" {
		req.Header.Set("Sec-Ch-Ua", `"Chromium";v="120", "Not?A_Brand";v="8", "Google Chrome";v="120"`)
		req.Header.Set("Sec-Ch-Ua-Mobile", "?0")
		req.Header.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	}
}

// decompressReader wraps a reader with the appropriate decompressor for the
// response's Content-Encoding header. Handles gzip, deflate, and brotli.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// randomTLSConfig mimics common browser TLS fingerprints by selecting one of
// a small set of plausible cipher-suite orderings at startup.
func randomTLSConfig() *tls.Config {
	cipherSuites := [][]uint16{
		{ // Chrome-like
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		},
		{ // Firefox-like
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
	selected := cipherSuites[rand.Intn(len(cipherSuites))]

	return &tls.Config{
		CipherSuites: selected,
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS13,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
			tls.CurveP384,
		},
	}
}
