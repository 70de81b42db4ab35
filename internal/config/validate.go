package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values against the ranges
// spec §6.2 documents.
func Validate(cfg *Config) error {
	if cfg.AIDetection.Threshold < 0 || cfg.AIDetection.Threshold > 100 {
		return fmt.Errorf("ai_detection.threshold must be 0-100, got %v", cfg.AIDetection.Threshold)
	}

	if cfg.AIOptimization.MaxAttempts < 1 || cfg.AIOptimization.MaxAttempts > 20 {
		return fmt.Errorf("ai_optimization.max_attempts must be 1-20, got %d", cfg.AIOptimization.MaxAttempts)
	}
	if cfg.AIOptimization.RetryDelaySeconds < 0 || cfg.AIOptimization.RetryDelaySeconds > 60 {
		return fmt.Errorf("ai_optimization.retry_delay_seconds must be 0-60, got %d", cfg.AIOptimization.RetryDelaySeconds)
	}

	if cfg.Performance.AIDetectionTimeout < 5 || cfg.Performance.AIDetectionTimeout > 60 {
		return fmt.Errorf("performance.ai_detection_timeout must be 5-60, got %d", cfg.Performance.AIDetectionTimeout)
	}
	if cfg.Performance.BrowserStartupWait < 0.5 || cfg.Performance.BrowserStartupWait > 5 {
		return fmt.Errorf("performance.browser_startup_wait must be 0.5-5, got %v", cfg.Performance.BrowserStartupWait)
	}
	if cfg.Performance.PageLoadWait < 1 || cfg.Performance.PageLoadWait > 10 {
		return fmt.Errorf("performance.page_load_wait must be 1-10, got %v", cfg.Performance.PageLoadWait)
	}
	if cfg.Performance.ElementFindTimeout < 1 || cfg.Performance.ElementFindTimeout > 15 {
		return fmt.Errorf("performance.element_find_timeout must be 1-15, got %d", cfg.Performance.ElementFindTimeout)
	}

	if cfg.LLM.EndpointURL == "" {
		return fmt.Errorf("llm.endpoint_url is required")
	}
	if _, err := url.Parse(cfg.LLM.EndpointURL); err != nil {
		return fmt.Errorf("invalid llm.endpoint_url: %w", err)
	}
	if cfg.LLM.DefaultModel == "" {
		return fmt.Errorf("llm.default_model is required")
	}

	if cfg.Proxy.ControllerURL != "" {
		if _, err := url.Parse(cfg.Proxy.ControllerURL); err != nil {
			return fmt.Errorf("invalid proxy.controller_url: %w", err)
		}
	}
	for _, proxyURL := range cfg.Proxy.URLs {
		if _, err := url.Parse(proxyURL); err != nil {
			return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
		}
	}
	validRotations := map[string]bool{"round_robin": true, "random": true}
	if cfg.Proxy.Rotation != "" && !validRotations[cfg.Proxy.Rotation] {
		return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
	}

	if cfg.Detector.SiteURL == "" {
		return fmt.Errorf("detector.site_url is required")
	}
	if _, err := url.Parse(cfg.Detector.SiteURL); err != nil {
		return fmt.Errorf("invalid detector.site_url: %w", err)
	}
	if cfg.Detector.SubmitSelector == "" && cfg.Detector.SubmitXPath == "" {
		return fmt.Errorf("detector.submit_selector or detector.submit_xpath must be set")
	}
	if cfg.Detector.ResultSelector == "" && cfg.Detector.ResultXPath == "" {
		return fmt.Errorf("detector.result_selector or detector.result_xpath must be set")
	}

	validBackends := map[string]bool{"memory": true, "mongo": true}
	if !validBackends[cfg.Store.Backend] {
		return fmt.Errorf("store.backend must be 'memory' or 'mongo', got %q", cfg.Store.Backend)
	}
	if cfg.Store.Backend == "mongo" && cfg.Store.MongoURI == "" {
		return fmt.Errorf("store.mongo_uri is required when store.backend is 'mongo'")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	return nil
}

// ValidateURL checks if a URL string is valid for an import source (§4.A
// NewURLImportArticle precondition).
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
