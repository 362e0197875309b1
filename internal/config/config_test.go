package config

import (
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that DefaultConfig returns expected values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected log_level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.Verbose {
		t.Error("Expected verbose to be false")
	}

	// Server defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected server host '0.0.0.0', got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Expected server port 5000, got %d", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "*" {
		t.Errorf("Expected cors origin '*', got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Server.MaxUploadMB != 20 {
		t.Errorf("Expected max_upload_mb 20, got %d", cfg.Server.MaxUploadMB)
	}
	if cfg.Server.WriteTimeout != 0 {
		t.Errorf("Expected no write timeout, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.RateLimit.Enabled {
		t.Error("Expected rate limiting to be disabled by default")
	}
	if cfg.Server.AutoOrient {
		t.Error("Expected EXIF auto-orientation to be off by default")
	}

	// Engine defaults
	if strings.Join(cfg.Engine.Languages, ",") != "th,en" {
		t.Errorf("Expected languages th,en, got %v", cfg.Engine.Languages)
	}
	if cfg.Engine.PageSegMode != 3 {
		t.Errorf("Expected psm 3, got %d", cfg.Engine.PageSegMode)
	}
	if cfg.Engine.Level != "textline" {
		t.Errorf("Expected level 'textline', got %s", cfg.Engine.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid, got %v", err)
	}
}

// TestConfigValidation covers each rejected setting.
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid", modify: func(*Config) {}},
		{name: "bad log level", modify: func(c *Config) { c.LogLevel = "loud" }, wantErr: "invalid log level"},
		{name: "port zero", modify: func(c *Config) { c.Server.Port = 0 }, wantErr: "invalid server port"},
		{name: "port too high", modify: func(c *Config) { c.Server.Port = 70000 }, wantErr: "invalid server port"},
		{name: "upload size", modify: func(c *Config) { c.Server.MaxUploadMB = 0 }, wantErr: "invalid max upload size"},
		{name: "image side", modify: func(c *Config) { c.Server.MaxImageSide = -1 }, wantErr: "invalid max image side"},
		{name: "negative timeout", modify: func(c *Config) { c.Server.ReadTimeout = -time.Second }, wantErr: "invalid server timeouts"},
		{name: "negative rate limit", modify: func(c *Config) { c.Server.RateLimit.RequestsPerHour = -1 }, wantErr: "invalid rate limit"},
		{name: "no languages", modify: func(c *Config) { c.Engine.Languages = nil }, wantErr: "invalid engine languages"},
		{name: "unknown language", modify: func(c *Config) { c.Engine.Languages = []string{"th", "klingon"} }, wantErr: "klingon"},
		{name: "psm range", modify: func(c *Config) { c.Engine.PageSegMode = 14 }, wantErr: "invalid engine psm"},
		{name: "level", modify: func(c *Config) { c.Engine.Level = "glyph" }, wantErr: "invalid engine level"},
		{name: "level case insensitive", modify: func(c *Config) { c.Engine.Level = "Word" }},
		{name: "min confidence", modify: func(c *Config) { c.Engine.MinConfidence = 1.5 }, wantErr: "engine.min_confidence"},
		{name: "warmup", modify: func(c *Config) { c.Engine.WarmupIterations = -2 }, wantErr: "invalid warmup iterations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

// TestToServerConfig verifies the conversion to server settings.
func TestToServerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.CORSOrigin = "https://app.example"
	cfg.Server.MaxImageSide = 2000
	cfg.Server.AutoOrient = true
	cfg.Server.RateLimit.Enabled = true
	cfg.Engine.Languages = []string{"en"}

	sc := cfg.ToServerConfig()

	if sc.CORSOrigin != "https://app.example" {
		t.Errorf("Expected CORS origin to carry over, got %s", sc.CORSOrigin)
	}
	if sc.MaxUploadMB != 20 {
		t.Errorf("Expected MaxUploadMB 20, got %d", sc.MaxUploadMB)
	}
	if sc.MaxImageSide != 2000 || !sc.AutoOrient {
		t.Errorf("Expected decode settings to carry over, got side=%d orient=%v", sc.MaxImageSide, sc.AutoOrient)
	}
	if !sc.RateLimit.Enabled || sc.RateLimit.RequestsPerMinute != 60 {
		t.Errorf("Expected rate limit to carry over, got %+v", sc.RateLimit)
	}
	if len(sc.Languages) != 1 || sc.Languages[0] != "en" {
		t.Errorf("Expected languages [en], got %v", sc.Languages)
	}

	sc.Languages[0] = "th"
	if cfg.Engine.Languages[0] != "en" {
		t.Error("ToServerConfig must copy the language slice")
	}
}

// TestAddress verifies listen address formatting.
func TestAddress(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Address(); got != "0.0.0.0:5000" {
		t.Errorf("Expected 0.0.0.0:5000, got %s", got)
	}
}
