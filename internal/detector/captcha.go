package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CAPTCHAType identifies the challenge family a detection run encountered.
type CAPTCHAType string

const (
	CAPTCHAReCaptchaV2 CAPTCHAType = "recaptcha_v2"
	CAPTCHAHCaptcha    CAPTCHAType = "hcaptcha"
	CAPTCHATurnstile   CAPTCHAType = "turnstile"
)

// CAPTCHASolver hands a challenge off to an external solving service when
// the detection site interposes one ahead of the result page. Optional:
// Driver.tryHandleCaptcha only calls Solve once DetectCAPTCHA has found a
// challenge on the current page.
type CAPTCHASolver struct {
	provider string
	apiKey   string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewCAPTCHASolver(provider, apiKey string, logger *slog.Logger) *CAPTCHASolver {
	var endpoint string
	switch provider {
	case "2captcha":
		endpoint = "https://2captcha.com/in.php"
	case "anti-captcha":
		endpoint = "https://api.anti-captcha.com"
	case "capsolver":
		endpoint = "https://api.capsolver.com"
	}
	return &CAPTCHASolver{
		provider: provider,
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 120 * time.Second},
		logger:   logger.With("component", "captcha_solver"),
	}
}

// Solve submits sitekey/siteURL to the configured provider and polls for a
// solution token, returning when solved or ctx is cancelled.
func (cs *CAPTCHASolver) Solve(ctx context.Context, captchaType CAPTCHAType, siteKey, siteURL string) (string, error) {
	if cs.provider != "2captcha" {
		return "", fmt.Errorf("unsupported captcha provider: %s", cs.provider)
	}

	params := url.Values{
		"key":     {cs.apiKey},
		"json":    {"1"},
		"pageurl": {siteURL},
	}
	switch captchaType {
	case CAPTCHAReCaptchaV2:
		params.Set("method", "userrecaptcha")
		params.Set("googlekey", siteKey)
	case CAPTCHAHCaptcha:
		params.Set("method", "hcaptcha")
		params.Set("sitekey", siteKey)
	case CAPTCHATurnstile:
		params.Set("method", "turnstile")
		params.Set("sitekey", siteKey)
	default:
		return "", fmt.Errorf("unsupported captcha type: %s", captchaType)
	}

	submitResp, err := cs.client.PostForm(cs.endpoint, params)
	if err != nil {
		return "", fmt.Errorf("submit captcha: %w", err)
	}
	defer submitResp.Body.Close()

	var submitResult struct {
		Status  int    `json:"status"`
		Request string `json:"request"`
	}
	if err := json.NewDecoder(submitResp.Body).Decode(&submitResult); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if submitResult.Status != 1 {
		return "", fmt.Errorf("captcha submit failed: %s", submitResult.Request)
	}
	taskID := submitResult.Request

	resultEndpoint := strings.Replace(cs.endpoint, "/in.php", "/res.php", 1)
	pollParams := url.Values{"key": {cs.apiKey}, "action": {"get"}, "id": {taskID}, "json": {"1"}}

	for i := 0; i < 60; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
		}

		pollResp, err := cs.client.Get(resultEndpoint + "?" + pollParams.Encode())
		if err != nil {
			continue
		}
		body, _ := io.ReadAll(pollResp.Body)
		pollResp.Body.Close()

		var result struct {
			Status  int    `json:"status"`
			Request string `json:"request"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			continue
		}
		if result.Status == 1 {
			return result.Request, nil
		}
		if result.Request != "CAPCHA_NOT_READY" {
			return "", fmt.Errorf("captcha solve error: %s", result.Request)
		}
	}

	return "", fmt.Errorf("captcha solve timeout")
}

// DetectCAPTCHA scans page text for common challenge indicators, returning
// the inferred type and any sitekey it can locate inline.
func DetectCAPTCHA(html string) (CAPTCHAType, string) {
	lower := strings.ToLower(html)

	if strings.Contains(lower, "recaptcha") || strings.Contains(html, "g-recaptcha") {
		if siteKey := extractBetween(html, `data-sitekey="`, `"`); siteKey != "" {
			return CAPTCHAReCaptchaV2, siteKey
		}
	}
	if strings.Contains(lower, "hcaptcha") || strings.Contains(html, "h-captcha") {
		if siteKey := extractBetween(html, `data-sitekey="`, `"`); siteKey != "" {
			return CAPTCHAHCaptcha, siteKey
		}
	}
	if strings.Contains(lower, "turnstile") || strings.Contains(html, "cf-turnstile") {
		if siteKey := extractBetween(html, `data-sitekey="`, `"`); siteKey != "" {
			return CAPTCHATurnstile, siteKey
		}
	}
	return "", ""
}

func extractBetween(s, start, end string) string {
	idx := strings.Index(s, start)
	if idx < 0 {
		return ""
	}
	s = s[idx+len(start):]
	idx = strings.Index(s, end)
	if idx < 0 {
		return ""
	}
	return s[:idx]
}
