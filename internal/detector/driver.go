// Package detector implements the Detector Driver component (spec §4.D): a
// single headless-browser session against the configured AI-detection site,
// submitting content and polling for a percentage score. Adapted from the
// teacher's internal/fetcher/browser.go (Rod browser lifecycle, page pool,
// stealth patching) generalized from a general-purpose page fetch into one
// fixed detection workflow, and from original_source's ai_detection.py
// (ZhuqueAIDetector) for the polling cadence and percentage-extraction rules.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/kaiven11/artical-generate/internal/identity"
	"github.com/kaiven11/artical-generate/internal/types"
)

// Config configures the Detector Driver (§6.2 ai_detection.*).
type Config struct {
	SiteURL          string
	Threshold        float64 // score at/above which content is flagged as AI-written
	SubmitSelector   string  // textarea/input CSS selector, tried first
	SubmitXPath      string  // xpath fallback if SubmitSelector isn't found
	ResultSelector   string
	ResultXPath      string
	PollInterval     time.Duration
	PollBackoff      time.Duration
	MaxPollAttempts  int
	NavigateTimeout  time.Duration

	// QuotaPhrases and VerificationPhrases are the locale-specific signal
	// strings scanned for in page text (§9: "the exact identity of
	// 'verification failure' is locale-specific; implementers should list
	// the recognised phrases as configuration"). Defaults seed the
	// Chinese/English phrases found in original_source's ai_detection.py.
	QuotaPhrases        []string
	VerificationPhrases []string

	// CaptchaProvider, when non-empty, enables CAPTCHA hand-off through
	// CAPTCHASolver ("2captcha", "anti-captcha", "capsolver" — only
	// "2captcha" is actually wired by Solve today).
	CaptchaProvider string
	CaptchaAPIKey   string
}

func DefaultConfig() Config {
	return Config{
		Threshold:           25.0,
		PollInterval:        5 * time.Second, // initial warm-up delay
		PollBackoff:         1 * time.Second, // steady poll cadence thereafter
		MaxPollAttempts:     15,              // 15s bound after the initial delay
		NavigateTimeout:     30 * time.Second,
		QuotaPhrases:        defaultQuotaPhrases,
		VerificationPhrases: defaultVerificationPhrases,
	}
}

// Driver owns one browser instance and serializes detection calls through
// it; concurrent Detect calls queue behind a mutex rather than racing for
// the same page.
type Driver struct {
	cfg      Config
	identity *identity.Controller
	logger   *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser

	captchaSolver *CAPTCHASolver
}

func New(cfg Config, identityCtl *identity.Controller, logger *slog.Logger) *Driver {
	if cfg.QuotaPhrases == nil {
		cfg.QuotaPhrases = defaultQuotaPhrases
	}
	if cfg.VerificationPhrases == nil {
		cfg.VerificationPhrases = defaultVerificationPhrases
	}
	d := &Driver{
		cfg:      cfg,
		identity: identityCtl,
		logger:   logger.With("component", "detector_driver"),
	}
	if cfg.CaptchaProvider != "" {
		d.captchaSolver = NewCAPTCHASolver(cfg.CaptchaProvider, cfg.CaptchaAPIKey, logger)
	}
	return d
}

// ensureBrowser lazily launches (or relaunches, after a profile rotation)
// the Chromium instance under the identity controller's current profile.
func (d *Driver) ensureBrowser() (*rod.Browser, error) {
	if d.browser != nil {
		return d.browser, nil
	}

	profile := d.identity.Current()

	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		UserDataDir(profile.ProfileDir)

	if proxyURL := d.identity.CurrentProxyURL(); proxyURL != "" {
		l = l.Proxy(proxyURL)
	}

	launchURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch detector browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect detector browser: %w", err)
	}
	d.browser = browser
	return browser, nil
}

// reset closes the current browser so the next Detect call launches a fresh
// one under whatever profile the identity controller now points at.
func (d *Driver) reset() {
	if d.browser != nil {
		_ = d.browser.Close()
		d.browser = nil
	}
}

const maxDetectAttempts = 3

// minSubmissionLength and the pad/truncate bounds enforce the precondition
// the real detector site imposes: too-short text is rejected outright, and
// very long text is truncated rather than submitted whole.
const (
	minSubmissionLength = 10
	padFloor            = 350
	truncateCeiling      = 2000
)

// Detect submits content to the configured detection site and returns a
// DetectionResult. It owns its own retry envelope: up to maxDetectAttempts
// tries, rotating profile on QuotaExceeded, and proxy on VerificationFailed
// once the identity controller's ShouldRotate agrees (from the second
// failure recorded on the current identity), between attempts, with no
// rotation for plain transport errors. After the
// envelope is exhausted it reports a hard-failed score rather than erroring,
// so the loop always has a score to act on.
func (d *Driver) Detect(ctx context.Context, articleID int64, content string) (*types.DetectionResult, error) {
	if len(content) < minSubmissionLength {
		return nil, &types.ValidationError{Field: "content", Reason: "too short to submit for detection"}
	}
	content = normalizeSubmissionLength(content)

	var lastErr error
	verificationFailures := 0

	for attempt := 1; attempt <= maxDetectAttempts; attempt++ {
		result, diagnostic, err := d.detectOnce(ctx, articleID, content)
		if err == nil {
			return &types.DetectionResult{
				ArticleID:  articleID,
				Detector:   "zhuque",
				Score:      result,
				Threshold:  d.cfg.Threshold,
				Passed:     result < d.cfg.Threshold,
				DetectedAt: time.Now(),
				Diagnostic: diagnostic,
			}, nil
		}
		lastErr = err

		switch {
		case isQuotaExceeded(err):
			d.identity.RotateProfile(identity.ReasonDetectorSignal)
			d.reset()
		case isVerificationFailed(err):
			verificationFailures = d.identity.RecordVerificationFailure()
			if d.identity.ShouldRotate(verificationFailures) {
				d.identity.RotateProxy()
				d.reset()
			}
		default:
			// plain transport error: retry against the same identity
		}
	}

	return &types.DetectionResult{
		ArticleID:  articleID,
		Detector:   "zhuque",
		Score:      100,
		Threshold:  d.cfg.Threshold,
		Passed:     false,
		DetectedAt: time.Now(),
		Diagnostic: map[string]any{"status": "failed", "error": lastErr.Error()},
	}, nil
}

// detectOnce runs one submission attempt against the current identity.
func (d *Driver) detectOnce(ctx context.Context, articleID int64, content string) (float64, map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.identity.RecordDetectionAttempt()

	browser, err := d.ensureBrowser()
	if err != nil {
		return 0, nil, err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return 0, nil, fmt.Errorf("open stealth page: %w", err)
	}
	defer page.Close()

	if err := page.Timeout(d.cfg.NavigateTimeout).Navigate(d.cfg.SiteURL); err != nil {
		return 0, nil, &types.TransportError{Operation: "detector_navigate", Err: err}
	}
	_ = page.Timeout(d.cfg.NavigateTimeout).WaitStable(300 * time.Millisecond)

	if err := d.submit(page, content); err != nil {
		return 0, nil, &types.TransportError{Operation: "detector_submit", Err: err}
	}

	return d.poll(ctx, page)
}

// normalizeSubmissionLength repeats short text up to padFloor and truncates
// long text at truncateCeiling, matching the detector site's own tolerance
// window.
func normalizeSubmissionLength(content string) string {
	if len(content) > truncateCeiling {
		return content[:truncateCeiling]
	}
	if len(content) >= padFloor {
		return content
	}
	var sb strings.Builder
	for sb.Len() < padFloor {
		sb.WriteString(content)
		sb.WriteString(" ")
	}
	padded := sb.String()
	if len(padded) > truncateCeiling {
		padded = padded[:truncateCeiling]
	}
	return padded
}

// submit locates the input element via the configured CSS selector, falling
// back to XPath when the selector doesn't match (layered locator strategy).
func (d *Driver) submit(page *rod.Page, content string) error {
	el, err := d.locate(page, d.cfg.SubmitSelector, d.cfg.SubmitXPath)
	if err != nil {
		return fmt.Errorf("locate submit field: %w", err)
	}
	if err := el.Input(content); err != nil {
		return fmt.Errorf("enter content: %w", err)
	}
	if err := page.Keyboard.Type(proto.InputKeyEnter); err != nil {
		return fmt.Errorf("submit content: %w", err)
	}
	return nil
}

func (d *Driver) locate(page *rod.Page, cssSelector, xpath string) (*rod.Element, error) {
	if cssSelector != "" {
		if el, err := page.Timeout(2 * time.Second).Element(cssSelector); err == nil {
			return el, nil
		}
	}
	if xpath != "" {
		if el, err := page.Timeout(2 * time.Second).ElementX(xpath); err == nil {
			return el, nil
		}
	}
	return nil, fmt.Errorf("no element matched selector %q or xpath %q", cssSelector, xpath)
}

// poll repeatedly reads the result area, parsing a percentage once the page
// stabilizes or failing with a quota/verification-shaped error. The first
// wait is the longer warm-up interval (the detector needs time to render a
// result at all); every wait after that uses the shorter steady poll
// interval.
func (d *Driver) poll(ctx context.Context, page *rod.Page) (float64, map[string]any, error) {
	for attempt := 0; attempt < d.cfg.MaxPollAttempts; attempt++ {
		wait := d.cfg.PollBackoff
		if attempt == 0 {
			wait = d.cfg.PollInterval
		}

		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-time.After(wait):
		}

		text, err := d.readResultText(page)
		if err != nil {
			d.tryHandleCaptcha(ctx, page)
			continue
		}

		if ok, failures := checkVerificationFailure(text, d.cfg.VerificationPhrases); ok {
			return 0, nil, &types.VerificationFailedError{ConsecutiveFailures: failures}
		}
		if exceeded, profileID := checkDailyLimitExceeded(text, d.identity.Current().ProfileID, d.cfg.QuotaPhrases); exceeded {
			return 0, nil, &types.QuotaExceededError{ProfileID: profileID}
		}

		if score, ok := extractPercentage(text); ok {
			diagnostic := map[string]any{
				"status":     "success",
				"profile_id": d.identity.Current().ProfileID,
				"egress_ip":  d.identity.Current().EgressIP,
				"attempt":    attempt + 1,
			}
			return score, diagnostic, nil
		}
	}

	// Exhausted polling without a parseable result: fall back to the
	// original's documented neutral default rather than failing the stage.
	diagnostic := map[string]any{
		"status":     "partial_success",
		"profile_id": d.identity.Current().ProfileID,
	}
	return 50.0, diagnostic, nil
}

func (d *Driver) readResultText(page *rod.Page) (string, error) {
	el, err := d.locate(page, d.cfg.ResultSelector, d.cfg.ResultXPath)
	if err != nil {
		return "", err
	}
	return el.Text()
}

// tryHandleCaptcha checks the current page for a known CAPTCHA challenge
// blocking the result element and, if a solver is configured, solves it and
// injects the token so the next poll attempt can see past it. Reading the
// page and scanning it costs little, so this runs on every failed poll
// rather than only after some threshold of misses.
func (d *Driver) tryHandleCaptcha(ctx context.Context, page *rod.Page) {
	html, err := page.HTML()
	if err != nil {
		return
	}
	captchaType, siteKey := DetectCAPTCHA(html)
	if captchaType == "" {
		return
	}
	if d.captchaSolver == nil {
		d.logger.Warn("captcha challenge detected but no solver configured", "type", captchaType)
		return
	}

	token, err := d.captchaSolver.Solve(ctx, captchaType, siteKey, d.cfg.SiteURL)
	if err != nil {
		d.logger.Warn("captcha solve failed", "type", captchaType, "error", err)
		return
	}
	if _, err := page.Eval(injectCaptchaTokenJS, string(captchaType), token); err != nil {
		d.logger.Warn("failed to inject captcha token", "error", err)
	}
}

// injectCaptchaTokenJS writes a solved token into the hidden response field
// the challenged widget polls, mirroring how a solved challenge normally
// reports back to the page.
const injectCaptchaTokenJS = `(type, token) => {
	const selectors = {
		recaptcha_v2: '#g-recaptcha-response',
		hcaptcha: '[name="h-captcha-response"]',
		turnstile: '[name="cf-turnstile-response"]',
	}
	const el = document.querySelector(selectors[type])
	if (el) {
		el.value = token
		el.style.display = 'block'
	}
}`

// chromePhrases are substrings that contain a "%" but are not an AI-score
// percentage (marketing copy on the detector's own page).
var chromePhrases = []string{
	"accuracy rate",
	"准确率",
	"social media",
	"fake aigc",
	"98%+",
}

var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// extractPercentage finds the first percentage in text that isn't part of a
// known marketing phrase, mirroring the original's re.findall + exclusion
// list approach.
func extractPercentage(text string) (float64, bool) {
	lower := strings.ToLower(text)
	for _, phrase := range chromePhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			text = strings.ReplaceAll(text, phrase, "")
		}
	}

	matches := percentPattern.FindStringSubmatch(text)
	if len(matches) < 2 {
		return 0, false
	}
	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
