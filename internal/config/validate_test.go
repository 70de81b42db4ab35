package config

import "testing"

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.LLM.EndpointURL = "https://api.example.com/v1/chat/completions"
	cfg.Detector.SubmitSelector = "#input"
	return cfg
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("expected a filled-in default config to validate, got %v", err)
	}
}

func TestValidateDefaultConfigAloneIsIncomplete(t *testing.T) {
	// DefaultConfig() is deliberately missing llm.endpoint_url and a
	// detector submit locator; Validate must catch both.
	if err := Validate(DefaultConfig()); err == nil {
		t.Error("expected DefaultConfig() alone to fail validation")
	}
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.AIDetection.Threshold = 150
	if err := Validate(cfg); err == nil {
		t.Error("expected out-of-range threshold to be rejected")
	}
}

func TestValidateRejectsBadMaxAttempts(t *testing.T) {
	cfg := validConfig()
	cfg.AIOptimization.MaxAttempts = 0
	if err := Validate(cfg); err == nil {
		t.Error("expected max_attempts below 1 to be rejected")
	}
	cfg.AIOptimization.MaxAttempts = 21
	if err := Validate(cfg); err == nil {
		t.Error("expected max_attempts above 20 to be rejected")
	}
}

func TestValidateRequiresMongoURIWhenBackendIsMongo(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Backend = "mongo"
	if err := Validate(cfg); err == nil {
		t.Error("expected missing mongo_uri to be rejected when backend is mongo")
	}
	cfg.Store.MongoURI = "mongodb://localhost:27017"
	if err := Validate(cfg); err != nil {
		t.Errorf("expected mongo backend with URI set to validate, got %v", err)
	}
}

func TestValidateRejectsUnknownProxyRotation(t *testing.T) {
	cfg := validConfig()
	cfg.Proxy.Rotation = "sticky_forever"
	if err := Validate(cfg); err == nil {
		t.Error("expected unknown proxy.rotation to be rejected")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com/post", false},
		{"http://example.com/post", false},
		{"ftp://example.com/post", true},
		{"not a url", true},
		{"https://", true},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestApplyPreset(t *testing.T) {
	cfg := DefaultConfig()
	if !ApplyPreset(cfg, PresetUltraFast) {
		t.Fatal("expected ultra_fast preset to apply")
	}
	if cfg.Performance.AIDetectionTimeout != 5 {
		t.Errorf("expected ultra_fast ai_detection_timeout 5, got %d", cfg.Performance.AIDetectionTimeout)
	}
	if ApplyPreset(cfg, "not_a_real_preset") {
		t.Error("expected unknown preset name to be rejected")
	}
}

func TestApplyPresetName(t *testing.T) {
	cfg := DefaultConfig()
	if err := ApplyPresetName(cfg, ""); err != nil {
		t.Errorf("expected empty preset name to be a no-op, got %v", err)
	}
	if err := ApplyPresetName(cfg, PresetStable); err != nil {
		t.Errorf("expected stable preset to apply, got %v", err)
	}
	if cfg.Performance.AIDetectionTimeout != 60 {
		t.Errorf("expected stable ai_detection_timeout 60, got %d", cfg.Performance.AIDetectionTimeout)
	}
	if err := ApplyPresetName(cfg, "bogus"); err == nil {
		t.Error("expected an error for an unknown preset name")
	}
}
