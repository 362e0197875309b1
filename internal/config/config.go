package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrbridge/internal/engine"
	"github.com/MeKo-Tech/ocrbridge/internal/server"
)

// Config represents the complete configuration for the ocrbridge service.
// It is loaded from configuration files, environment variables and
// command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file" json:"log_file"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// HTTP server configuration
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// OCR engine configuration
	Engine EngineConfig `mapstructure:"engine" yaml:"engine" json:"engine"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string          `mapstructure:"host" yaml:"host" json:"host"`
	Port              int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin        string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB       int64           `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	ReadTimeout       time.Duration   `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration   `mapstructure:"read_header_timeout" yaml:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration   `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout   time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MetricsEnabled    bool            `mapstructure:"metrics_enabled" yaml:"metrics_enabled" json:"metrics_enabled"`
	WebSocketEnabled  bool            `mapstructure:"websocket_enabled" yaml:"websocket_enabled" json:"websocket_enabled"`
	AutoOrient        bool            `mapstructure:"auto_orient" yaml:"auto_orient" json:"auto_orient"`
	MaxImageSide      int             `mapstructure:"max_image_side" yaml:"max_image_side" json:"max_image_side"`
	RateLimit         RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client throttling settings. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// EngineConfig contains Tesseract settings.
type EngineConfig struct {
	Languages        []string `mapstructure:"languages" yaml:"languages" json:"languages"`
	PageSegMode      int      `mapstructure:"psm" yaml:"psm" json:"psm"`
	Level            string   `mapstructure:"level" yaml:"level" json:"level"`
	MinConfidence    float64  `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
	WarmupIterations int      `mapstructure:"warmup_iterations" yaml:"warmup_iterations" json:"warmup_iterations"`
	TessdataPrefix   string   `mapstructure:"tessdata_prefix" yaml:"tessdata_prefix" json:"tessdata_prefix"`
}

const (
	infoLevel = "info"

	defaultPort = 5000
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validLevels    = []string{"word", "textline", "line", "paragraph", "para", "block"}
)

// DefaultConfig returns a configuration with all default values set.
func DefaultConfig() Config {
	return Config{
		LogLevel: infoLevel,
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              defaultPort,
			CORSOrigin:        "*",
			MaxUploadMB:       20,
			ReadTimeout:       60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			MetricsEnabled:    true,
			WebSocketEnabled:  true,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
			},
		},
		Engine: EngineConfig{
			Languages:        append([]string(nil), engine.DefaultLanguages...),
			PageSegMode:      3,
			Level:            "textline",
			WarmupIterations: 1,
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.MaxImageSide < 0 {
		return fmt.Errorf("invalid max image side: %d (must not be negative)", c.Server.MaxImageSide)
	}
	if c.Server.ReadTimeout < 0 || c.Server.ReadHeaderTimeout < 0 || c.Server.WriteTimeout < 0 {
		return errors.New("invalid server timeouts: must not be negative")
	}
	if err := c.Server.RateLimit.validate(); err != nil {
		return err
	}

	if len(c.Engine.Languages) == 0 {
		return errors.New("invalid engine languages: at least one language is required")
	}
	if _, err := engine.ValidateLanguages(c.Engine.Languages); err != nil {
		return fmt.Errorf("invalid engine languages: %w", err)
	}
	if c.Engine.PageSegMode < 0 || c.Engine.PageSegMode > 13 {
		return fmt.Errorf("invalid engine psm: %d (must be between 0 and 13)", c.Engine.PageSegMode)
	}
	level := strings.ToLower(strings.TrimSpace(c.Engine.Level))
	if level != "" && !contains(validLevels, level) {
		return fmt.Errorf("invalid engine level: %s (must be one of: %s)", c.Engine.Level, strings.Join(validLevels, ", "))
	}
	if err := validateThreshold(c.Engine.MinConfidence, "engine.min_confidence"); err != nil {
		return err
	}
	if c.Engine.WarmupIterations < 0 {
		return fmt.Errorf("invalid warmup iterations: %d (must not be negative)", c.Engine.WarmupIterations)
	}

	return nil
}

func (r RateLimitConfig) validate() error {
	if r.RequestsPerMinute < 0 || r.RequestsPerHour < 0 || r.MaxRequestsPerDay < 0 || r.MaxDataPerDay < 0 {
		return errors.New("invalid rate limit: limits must not be negative")
	}
	return nil
}

// Address returns the listen address in host:port form.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ToServerConfig converts the config to the HTTP server configuration format.
func (c *Config) ToServerConfig() server.Config {
	return server.Config{
		CORSOrigin:       c.Server.CORSOrigin,
		MaxUploadMB:      c.Server.MaxUploadMB,
		Languages:        append([]string(nil), c.Engine.Languages...),
		AutoOrient:       c.Server.AutoOrient,
		MaxImageSide:     c.Server.MaxImageSide,
		MetricsEnabled:   c.Server.MetricsEnabled,
		WebSocketEnabled: c.Server.WebSocketEnabled,
		RateLimit: server.RateLimitConfig{
			Enabled:           c.Server.RateLimit.Enabled,
			RequestsPerMinute: c.Server.RateLimit.RequestsPerMinute,
			RequestsPerHour:   c.Server.RateLimit.RequestsPerHour,
			MaxRequestsPerDay: c.Server.RateLimit.MaxRequestsPerDay,
			MaxDataPerDay:     c.Server.RateLimit.MaxDataPerDay,
		},
	}
}

// contains checks if a slice contains a specific string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateThreshold validates that a threshold value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
