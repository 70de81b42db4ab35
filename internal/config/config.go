// Package config is the layered configuration surface for the republishing
// pipeline (spec §6.2), structured the way the teacher's
// internal/config/config.go lays out its own Config: one struct per
// concern, mapstructure/yaml tags for viper, a DefaultConfig constructor.
package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for the republishing pipeline.
type Config struct {
	AIDetection   AIDetectionConfig   `mapstructure:"ai_detection"   yaml:"ai_detection"`
	AIOptimization AIOptimizationConfig `mapstructure:"ai_optimization" yaml:"ai_optimization"`
	Performance   PerformanceConfig   `mapstructure:"performance"    yaml:"performance"`
	LLM           LLMConfig           `mapstructure:"llm"            yaml:"llm"`
	Proxy         ProxyConfig         `mapstructure:"proxy"          yaml:"proxy"`
	Detector      DetectorSiteConfig  `mapstructure:"detector"       yaml:"detector"`
	Store         StoreConfig         `mapstructure:"store"          yaml:"store"`
	Logging       LoggingConfig       `mapstructure:"logging"        yaml:"logging"`
}

// AIDetectionConfig controls the detector-driver threshold (§6.2).
type AIDetectionConfig struct {
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
}

// AIOptimizationConfig controls the detect-optimise loop bounds (§6.2).
type AIOptimizationConfig struct {
	MaxAttempts       int `mapstructure:"max_attempts"        yaml:"max_attempts"`
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds" yaml:"retry_delay_seconds"`
}

// PerformanceConfig controls the browser/polling timing knobs (§6.2). The
// three presets below override this block atomically.
type PerformanceConfig struct {
	AIDetectionTimeout int     `mapstructure:"ai_detection_timeout" yaml:"ai_detection_timeout"`
	BrowserStartupWait float64 `mapstructure:"browser_startup_wait" yaml:"browser_startup_wait"`
	PageLoadWait       float64 `mapstructure:"page_load_wait"       yaml:"page_load_wait"`
	ElementFindTimeout int     `mapstructure:"element_find_timeout" yaml:"element_find_timeout"`
}

// Preset names for PerformanceConfig (§6.2).
const (
	PresetUltraFast = "ultra_fast"
	PresetBalanced  = "balanced"
	PresetStable    = "stable"
)

// PerformancePresets holds the three named overrides §6.2 names.
var PerformancePresets = map[string]PerformanceConfig{
	PresetUltraFast: {
		AIDetectionTimeout: 5,
		BrowserStartupWait: 0.5,
		PageLoadWait:       1.0,
		ElementFindTimeout: 1,
	},
	PresetBalanced: {
		AIDetectionTimeout: 15,
		BrowserStartupWait: 1.0,
		PageLoadWait:       3.0,
		ElementFindTimeout: 5,
	},
	PresetStable: {
		AIDetectionTimeout: 60,
		BrowserStartupWait: 5.0,
		PageLoadWait:       10.0,
		ElementFindTimeout: 15,
	},
}

// LLMConfig controls the single configured LLM endpoint (§6.2).
type LLMConfig struct {
	EndpointURL  string `mapstructure:"endpoint_url"  yaml:"endpoint_url"`
	APIKey       string `mapstructure:"api_key"       yaml:"api_key"`
	DefaultModel string `mapstructure:"default_model" yaml:"default_model"`
}

// ProxyConfig controls the Identity & Proxy Controller's pool (§6.2).
type ProxyConfig struct {
	ControllerURL string   `mapstructure:"controller_url" yaml:"controller_url"`
	URLs          []string `mapstructure:"urls"           yaml:"urls"`
	Rotation      string   `mapstructure:"rotation"       yaml:"rotation"`
	BaseProfileDir string  `mapstructure:"base_profile_dir" yaml:"base_profile_dir"`
	EgressProbeURL string  `mapstructure:"egress_probe_url" yaml:"egress_probe_url"`
}

// DetectorSiteConfig carries the concrete vendor detector site locators,
// separate from AIDetectionConfig's pure policy threshold.
type DetectorSiteConfig struct {
	SiteURL        string `mapstructure:"site_url"        yaml:"site_url"`
	SubmitSelector string `mapstructure:"submit_selector" yaml:"submit_selector"`
	SubmitXPath    string `mapstructure:"submit_xpath"    yaml:"submit_xpath"`
	ResultSelector string `mapstructure:"result_selector" yaml:"result_selector"`
	ResultXPath    string `mapstructure:"result_xpath"    yaml:"result_xpath"`

	// CaptchaProvider, when set, enables hand-off to an external solving
	// service when a challenge blocks the result element. Optional.
	CaptchaProvider string `mapstructure:"captcha_provider" yaml:"captcha_provider"`
	CaptchaAPIKey   string `mapstructure:"captcha_api_key"  yaml:"captcha_api_key"`
}

// StoreConfig selects and configures the persistence backend (§4.A, §6.1).
type StoreConfig struct {
	Backend  string `mapstructure:"backend"  yaml:"backend"` // "mongo" or "memory"
	MongoURI string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	Database string `mapstructure:"database" yaml:"database"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// DefaultConfig returns a Config with the defaults spec §6.2 documents.
func DefaultConfig() *Config {
	return &Config{
		AIDetection: AIDetectionConfig{
			Threshold: 25,
		},
		AIOptimization: AIOptimizationConfig{
			MaxAttempts:       5,
			RetryDelaySeconds: 2,
		},
		Performance: PerformancePresets[PresetBalanced],
		LLM: LLMConfig{
			DefaultModel: "gpt-4o-mini",
		},
		Proxy: ProxyConfig{
			Rotation:       "round_robin",
			BaseProfileDir: "./chrome-profiles",
			EgressProbeURL: "https://api.ipify.org",
		},
		Detector: DetectorSiteConfig{
			SiteURL:        "https://matrix.tencent.com/ai-detect/ai_gen_txt",
			ResultSelector: ".result-percentage",
		},
		Store: StoreConfig{
			Backend:  "memory",
			Database: "artical_generate",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// ApplyPreset overrides cfg.Performance atomically with a named preset
// (§6.2: "Presets ultra_fast | balanced | stable override the
// performance.* block atomically").
func ApplyPreset(cfg *Config, name string) bool {
	preset, ok := PerformancePresets[name]
	if !ok {
		return false
	}
	cfg.Performance = preset
	return true
}

// DetectionTimeout returns Performance.AIDetectionTimeout as a Duration.
func (c *Config) DetectionTimeout() time.Duration {
	return time.Duration(c.Performance.AIDetectionTimeout) * time.Second
}

// ElementFindTimeout returns Performance.ElementFindTimeout as a Duration.
func (c *Config) ElementFindTimeout() time.Duration {
	return time.Duration(c.Performance.ElementFindTimeout) * time.Second
}
