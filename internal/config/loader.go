package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the config file and the environment.
// Priority (highest to lowest): env vars > config file > defaults. CLI flags
// are not read here; callers apply them to the returned Config.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("REPUBLISH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("republish")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".republish"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		if key := os.Getenv("REPUBLISH_LLM_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		}
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	return Load(path)
}

// ApplyPresetName is a convenience wrapper CLI code can call after Load to
// honor a --performance-preset flag, returning an error for an unknown name
// instead of silently ignoring it the way ApplyPreset does.
func ApplyPresetName(cfg *Config, name string) error {
	if name == "" {
		return nil
	}
	if !ApplyPreset(cfg, name) {
		return fmt.Errorf("unknown performance preset %q (want %s, %s, or %s)", name, PresetUltraFast, PresetBalanced, PresetStable)
	}
	return nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("ai_detection.threshold", cfg.AIDetection.Threshold)

	v.SetDefault("ai_optimization.max_attempts", cfg.AIOptimization.MaxAttempts)
	v.SetDefault("ai_optimization.retry_delay_seconds", cfg.AIOptimization.RetryDelaySeconds)

	v.SetDefault("performance.ai_detection_timeout", cfg.Performance.AIDetectionTimeout)
	v.SetDefault("performance.browser_startup_wait", cfg.Performance.BrowserStartupWait)
	v.SetDefault("performance.page_load_wait", cfg.Performance.PageLoadWait)
	v.SetDefault("performance.element_find_timeout", cfg.Performance.ElementFindTimeout)

	v.SetDefault("llm.endpoint_url", cfg.LLM.EndpointURL)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.default_model", cfg.LLM.DefaultModel)

	v.SetDefault("proxy.controller_url", cfg.Proxy.ControllerURL)
	v.SetDefault("proxy.urls", cfg.Proxy.URLs)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)
	v.SetDefault("proxy.base_profile_dir", cfg.Proxy.BaseProfileDir)
	v.SetDefault("proxy.egress_probe_url", cfg.Proxy.EgressProbeURL)

	v.SetDefault("detector.site_url", cfg.Detector.SiteURL)
	v.SetDefault("detector.submit_selector", cfg.Detector.SubmitSelector)
	v.SetDefault("detector.submit_xpath", cfg.Detector.SubmitXPath)
	v.SetDefault("detector.result_selector", cfg.Detector.ResultSelector)
	v.SetDefault("detector.result_xpath", cfg.Detector.ResultXPath)

	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.mongo_uri", cfg.Store.MongoURI)
	v.SetDefault("store.database", cfg.Store.Database)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)
}
