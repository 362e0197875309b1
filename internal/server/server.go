package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/ocrbridge/internal/engine"
	"github.com/MeKo-Tech/ocrbridge/internal/imagedecode"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	recognizer       engine.Recognizer
	languages        []string
	corsOrigin       string
	maxUploadMB      int64
	decodeOpts       imagedecode.Options
	metricsEnabled   bool
	websocketEnabled bool
	rateLimiter      *RateLimiter
	validate         *validator.Validate
	wsReadTimeout    time.Duration
}

// Config holds server configuration.
type Config struct {
	CORSOrigin       string
	MaxUploadMB      int64
	Languages        []string
	AutoOrient       bool
	MaxImageSide     int
	MetricsEnabled   bool
	WebSocketEnabled bool
	RateLimit        RateLimitConfig
}

// DefaultConfig returns the settings the mobile client expects.
func DefaultConfig() Config {
	return Config{
		CORSOrigin:       "*",
		MaxUploadMB:      20,
		Languages:        append([]string(nil), engine.DefaultLanguages...),
		MetricsEnabled:   true,
		WebSocketEnabled: true,
	}
}

// New creates a server around rec. A nil rec puts the server in degraded
// mode where every OCR request fails with 500.
func New(cfg Config, rec engine.Recognizer) *Server {
	langs := cfg.Languages
	if rec != nil {
		langs = rec.Languages()
	}
	if len(langs) == 0 {
		langs = engine.DefaultLanguages
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 20
	}

	s := &Server{
		recognizer:       rec,
		languages:        append([]string(nil), langs...),
		corsOrigin:       cfg.CORSOrigin,
		maxUploadMB:      cfg.MaxUploadMB,
		decodeOpts:       imagedecode.Options{AutoOrient: cfg.AutoOrient, MaxSide: cfg.MaxImageSide},
		metricsEnabled:   cfg.MetricsEnabled,
		websocketEnabled: cfg.WebSocketEnabled,
		validate:         validator.New(validator.WithRequiredStructEnabled()),
		wsReadTimeout:    wsReadTimeout,
	}
	if cfg.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiterFromConfig(cfg.RateLimit)
	}
	return s
}

// ModelLoaded reports whether a recognizer is available.
func (s *Server) ModelLoaded() bool {
	return s.recognizer != nil
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.recognizer != nil {
		return s.recognizer.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/{$}", s.route("root", s.rootHandler))
	mux.HandleFunc("/", s.corsHeaders(metricsMiddleware("unmatched", s.notFoundHandler)))
	mux.HandleFunc("/health", s.route("health", s.healthHandler))
	mux.HandleFunc("/api/languages", s.route("languages", s.languagesHandler))
	mux.HandleFunc("/api/ocr", s.route("ocr", s.rateLimitMiddleware(s.ocrHandler)))
	mux.HandleFunc("/api/ocr-formdata", s.route("ocr_formdata", s.rateLimitMiddleware(s.ocrFormHandler)))
	if s.metricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	if s.websocketEnabled {
		// Frames are admitted individually by the rate limiter after the upgrade.
		mux.HandleFunc("/ws/ocr", s.route("websocket", s.ocrWebSocketHandler))
	}
}

// Handler returns the complete middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return requestIDMiddleware(recoverMiddleware(loggingMiddleware(mux)))
}

// route applies the per-endpoint middleware.
func (s *Server) route(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return s.corsMiddleware(metricsMiddleware(endpoint, h))
}

// RunMaintenance prunes idle rate limiter entries every interval until ctx
// is cancelled. It returns immediately when rate limiting is disabled.
func (s *Server) RunMaintenance(ctx context.Context, interval time.Duration) {
	if s.rateLimiter == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.rateLimiter.Prune(24 * time.Hour); n > 0 {
				slog.Debug("Pruned idle rate limit entries", "count", n)
			}
		}
	}
}
