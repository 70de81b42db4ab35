// Package identity implements the Identity & Proxy Controller (spec §4.E):
// rotating browser fingerprints/profile directories and proxies (each on its
// own request) so a detection-site quota or verification challenge can be evaded by
// presenting a fresh identity. Adapted from the teacher's
// internal/fetcher/proxy.go (ProxyManager round-robin/random rotation,
// health checking) combined with the profile/fingerprint rotation scheme of
// original_source's ai_detection.py (_switch_fingerprint_and_profile).
package identity

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// RotationStrategy selects how the next proxy in the pool is chosen.
type RotationStrategy string

const (
	StrategyRoundRobin RotationStrategy = "round_robin"
	StrategyRandom     RotationStrategy = "random"
	StrategyStickyUntilFail RotationStrategy = "sticky_until_fail"
)

// RotateReason records why a rotation happened, surfaced in logs and
// DetectionResult.Diagnostic for operators debugging quota churn.
type RotateReason string

const (
	ReasonDetectorSignal RotateReason = "detector_signal" // quota/verification phrase observed
	ReasonScheduled      RotateReason = "scheduled"        // periodic rotation policy
	ReasonManual         RotateReason = "manual"
)

// Profile is one browser identity: a fingerprint seed and the on-disk
// profile directory Chromium should load it from. DetectionsUsedToday and
// VerificationFailures track usage against this identity specifically and
// reset whenever the profile rotates; LastSwitchedAt anchors the
// time-based half of ShouldRotate's policy (spec §4.E).
type Profile struct {
	ProfileID            int64
	Fingerprint          int64
	ProfileDir           string
	EgressIP             string
	DetectionsUsedToday  int
	VerificationFailures int
	LastSwitchedAt       time.Time
}

type proxyEntry struct {
	url     *url.URL
	healthy atomic.Bool
}

// Controller owns the current Profile and proxy pool, serializing rotation
// decisions through a channel so concurrent detector goroutines never race
// to pick the "next" identity while one read the old one.
type Controller struct {
	logger *slog.Logger

	baseProfileDir string
	strategy       RotationStrategy

	mu      sync.RWMutex
	current Profile

	proxies      []*proxyEntry
	proxyIdx     atomic.Int64
	proxyRotation RotationStrategy

	httpClient *http.Client
	egressProbeURL string

	rotateCh chan rotateRequest
}

// rotateKind distinguishes the two independent operations spec §4.E defines
// (rotate_profile vs rotate_proxy) so serializeRotations only ever touches
// the state the caller actually asked to rotate.
type rotateKind int

const (
	rotateProfileKind rotateKind = iota
	rotateProxyKind
)

type rotateRequest struct {
	kind   rotateKind
	reason RotateReason
	done   chan struct{}
}

// Config configures the Identity & Proxy Controller (§6.2 proxy.*).
type Config struct {
	BaseProfileDir    string
	RotationStrategy  RotationStrategy
	ProxyURLs         []string
	ProxyRotation     RotationStrategy
	EgressProbeURL    string
}

func DefaultConfig() Config {
	return Config{
		BaseProfileDir:   "./chrome-profiles",
		RotationStrategy: StrategyRoundRobin,
		ProxyRotation:    StrategyRoundRobin,
		EgressProbeURL:   "https://httpbin.org/ip",
	}
}

func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Controller {
	c := &Controller{
		logger:         logger.With("component", "identity_controller"),
		baseProfileDir: cfg.BaseProfileDir,
		strategy:       cfg.RotationStrategy,
		proxyRotation:  cfg.ProxyRotation,
		httpClient:     httpClient,
		egressProbeURL: cfg.EgressProbeURL,
		rotateCh:       make(chan rotateRequest),
		current: Profile{
			ProfileID:      1,
			Fingerprint:    time.Now().UnixNano() % 1_000_000,
			ProfileDir:     fmt.Sprintf("%s/chro_1", cfg.BaseProfileDir),
			LastSwitchedAt: time.Now(),
		},
	}
	for _, raw := range cfg.ProxyURLs {
		u, err := url.Parse(raw)
		if err != nil {
			logger.Warn("invalid proxy URL", "url", raw, "error", err)
			continue
		}
		entry := &proxyEntry{url: u}
		entry.healthy.Store(true)
		c.proxies = append(c.proxies, entry)
	}

	go c.serializeRotations()
	return c
}

// Current returns a copy of the active profile; safe for concurrent callers
// since Profile is a plain value type.
func (c *Controller) Current() Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// CurrentProxyURL returns the proxy currently paired with Current(), or ""
// for a direct connection.
func (c *Controller) CurrentProxyURL() string {
	entry := c.nextHealthyProxy()
	if entry == nil {
		return ""
	}
	return entry.url.String()
}

// RotateProfile advances to a new fingerprint/profile directory, following
// the original's scheme of incrementing both the numeric id and fingerprint
// and deriving a fresh profile directory name from them. Blocks until the
// rotation has been applied so the caller's next Detect sees the new
// identity.
func (c *Controller) RotateProfile(reason RotateReason) {
	done := make(chan struct{})
	c.rotateCh <- rotateRequest{kind: rotateProfileKind, reason: reason, done: done}
	<-done
}

// ShouldRotate implements spec §4.E's policy: rotate once the current
// identity has failed enough in a row, or once it has been in use long
// enough that continuing to reuse it risks looking scripted regardless of
// recent failures.
func (c *Controller) ShouldRotate(failureCount int) bool {
	if failureCount >= 2 {
		return true
	}
	c.mu.RLock()
	lastSwitchedAt := c.current.LastSwitchedAt
	c.mu.RUnlock()
	return time.Since(lastSwitchedAt) > 30*time.Minute
}

func (c *Controller) serializeRotations() {
	for req := range c.rotateCh {
		switch req.kind {
		case rotateProfileKind:
			c.mu.Lock()
			nextID := c.current.ProfileID + 1
			nextFingerprint := c.current.Fingerprint + 1
			c.current.ProfileID = nextID
			c.current.Fingerprint = nextFingerprint
			c.current.ProfileDir = fmt.Sprintf("%s/chro_%d", c.baseProfileDir, nextFingerprint)
			c.current.DetectionsUsedToday = 0
			c.current.VerificationFailures = 0
			c.current.LastSwitchedAt = time.Now()
			c.mu.Unlock()

			c.logger.Info("rotated profile",
				"reason", req.reason,
				"profile_id", nextID,
				"fingerprint", nextFingerprint,
			)

		case rotateProxyKind:
			c.rotateProxyLocked()
			c.logger.Info("rotated proxy", "reason", req.reason)
		}
		close(req.done)
	}
}

// RotateProxy advances the proxy pointer independently of the profile
// rotation, used when only the egress IP (not the browser fingerprint)
// needs to change.
func (c *Controller) RotateProxy() {
	done := make(chan struct{})
	c.rotateCh <- rotateRequest{kind: rotateProxyKind, reason: ReasonManual, done: done}
	<-done
}

// RecordDetectionAttempt increments the current identity's usage counter,
// exercised by the driver on every submission attempt.
func (c *Controller) RecordDetectionAttempt() {
	c.mu.Lock()
	c.current.DetectionsUsedToday++
	c.mu.Unlock()
}

// RecordVerificationFailure increments the current identity's failure
// counter and returns the updated count, so callers can feed it straight
// into ShouldRotate.
func (c *Controller) RecordVerificationFailure() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.VerificationFailures++
	return c.current.VerificationFailures
}

func (c *Controller) rotateProxyLocked() {
	entry := c.nextHealthyProxy()
	if entry == nil {
		return
	}

	c.mu.RLock()
	previousIP := c.current.EgressIP
	c.mu.RUnlock()

	ip, err := c.probeEgressIP(entry.url)
	if err != nil {
		c.logger.Warn("egress probe failed after rotation", "error", err)
		entry.healthy.Store(false)
		return
	}
	if ip == "" || ip == previousIP {
		// A null or unchanged IP does not count as a successful rotation
		// (spec §2/§4.E); treat the proxy as unusable rather than silently
		// reporting the rotation as having worked.
		c.logger.Warn("egress IP unchanged after proxy rotation", "proxy", entry.url.Host)
		entry.healthy.Store(false)
		return
	}

	c.mu.Lock()
	c.current.EgressIP = ip
	c.mu.Unlock()
}

func (c *Controller) nextHealthyProxy() *proxyEntry {
	healthy := make([]*proxyEntry, 0, len(c.proxies))
	for _, p := range c.proxies {
		if p.healthy.Load() {
			healthy = append(healthy, p)
		}
	}
	if len(healthy) == 0 {
		return nil
	}

	switch c.proxyRotation {
	case StrategyRandom:
		return healthy[rand.Intn(len(healthy))]
	default: // round_robin and sticky_until_fail both advance here; sticky
		// callers simply avoid invoking rotation on success.
		idx := c.proxyIdx.Add(1) % int64(len(healthy))
		return healthy[idx]
	}
}

// probeEgressIP issues a GET through proxyURL against the configured echo
// endpoint and parses the observed address out of the response body.
// Supports the two common echo-service shapes: ipify's {"ip": "..."} and
// httpbin's {"origin": "..."}.
func (c *Controller) probeEgressIP(proxyURL *url.URL) (string, error) {
	client := *c.httpClient
	transport := &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	client.Transport = transport
	client.Timeout = 10 * time.Second

	resp, err := client.Get(c.egressProbeURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return parseEgressIP(resp.Body)
}

// parseEgressIP extracts the observed address from an echo-endpoint response
// body, supporting the two common shapes: ipify's {"ip": "..."} and
// httpbin's {"origin": "..."}.
func parseEgressIP(body io.Reader) (string, error) {
	var payload struct {
		IP     string `json:"ip"`
		Origin string `json:"origin"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode egress probe response: %w", err)
	}
	if payload.IP != "" {
		return payload.IP, nil
	}
	return payload.Origin, nil
}

// MarkProxyUnhealthy flags a proxy as failed so subsequent rotations skip
// it, mirroring the teacher's MarkFailed.
func (c *Controller) MarkProxyUnhealthy(proxyURL string) {
	for _, p := range c.proxies {
		if p.url.String() == proxyURL {
			p.healthy.Store(false)
			c.logger.Warn("proxy marked unhealthy", "proxy", p.url.Host)
			return
		}
	}
}

// HealthyProxyCount reports how many proxies are currently usable.
func (c *Controller) HealthyProxyCount() int {
	n := 0
	for _, p := range c.proxies {
		if p.healthy.Load() {
			n++
		}
	}
	return n
}
