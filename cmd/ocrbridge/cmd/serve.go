package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/ocrbridge/internal/config"
	"github.com/MeKo-Tech/ocrbridge/internal/engine"
	"github.com/MeKo-Tech/ocrbridge/internal/engine/tesseract"
	"github.com/MeKo-Tech/ocrbridge/internal/netinfo"
	"github.com/MeKo-Tech/ocrbridge/internal/server"
)

// maintenanceInterval is how often idle rate limiter entries are pruned.
const maintenanceInterval = 10 * time.Minute

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP OCR server",
	Long: `Start an HTTP server that provides the OCR API.

The server provides the following endpoints:
  GET  /                  - Service info
  GET  /health            - Health check
  GET  /api/languages     - Loaded and supported languages
  POST /api/ocr           - OCR on a base64 JSON image
  POST /api/ocr-formdata  - OCR on a multipart image upload
  GET  /ws/ocr            - WebSocket streaming OCR
  GET  /metrics           - Prometheus metrics

If the OCR engine cannot be loaded the server still starts and every OCR
request fails with 500 until it is restarted.

Examples:
  ocrbridge serve
  ocrbridge serve --port 8080
  ocrbridge serve --languages th,en --psm 6`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rec := loadRecognizer(cfg)

		ln, err := net.Listen("tcp", cfg.Address())
		if err != nil {
			if rec != nil {
				_ = rec.Close()
			}
			return fmt.Errorf("failed to listen on %s: %w", cfg.Address(), err)
		}

		return runServer(ctx, cfg, rec, ln, cmd.OutOrStdout())
	},
}

// serveFlags maps serve flags onto configuration keys.
var serveFlags = map[string]string{
	"host":                 "server.host",
	"port":                 "server.port",
	"cors-origin":          "server.cors_origin",
	"max-upload-size":      "server.max_upload_mb",
	"read-timeout":         "server.read_timeout",
	"write-timeout":        "server.write_timeout",
	"shutdown-timeout":     "server.shutdown_timeout",
	"metrics":              "server.metrics_enabled",
	"websocket":            "server.websocket_enabled",
	"auto-orient":          "server.auto_orient",
	"max-image-side":       "server.max_image_side",
	"rate-limit-enabled":   "server.rate_limit.enabled",
	"requests-per-minute":  "server.rate_limit.requests_per_minute",
	"requests-per-hour":    "server.rate_limit.requests_per_hour",
	"max-requests-per-day": "server.rate_limit.max_requests_per_day",
	"max-data-per-day":     "server.rate_limit.max_data_per_day",
	"languages":            "engine.languages",
	"psm":                  "engine.psm",
	"level":                "engine.level",
	"min-confidence":       "engine.min_confidence",
	"warmup":               "engine.warmup_iterations",
	"tessdata-prefix":      "engine.tessdata_prefix",
}

func init() {
	rootCmd.AddCommand(serveCmd)

	defaults := config.DefaultConfig()
	f := serveCmd.Flags()

	// Server flags
	f.String("host", defaults.Server.Host, "server host")
	f.IntP("port", "p", defaults.Server.Port, "server port")
	f.String("cors-origin", defaults.Server.CORSOrigin, "CORS allowed origin")
	f.Int64("max-upload-size", defaults.Server.MaxUploadMB, "maximum upload size in MB")
	f.Duration("read-timeout", defaults.Server.ReadTimeout, "HTTP read timeout")
	f.Duration("write-timeout", defaults.Server.WriteTimeout, "HTTP write timeout (0 disables)")
	f.Duration("shutdown-timeout", defaults.Server.ShutdownTimeout, "graceful shutdown timeout")
	f.Bool("metrics", defaults.Server.MetricsEnabled, "expose Prometheus metrics on /metrics")
	f.Bool("websocket", defaults.Server.WebSocketEnabled, "enable the /ws/ocr endpoint")
	f.Bool("auto-orient", defaults.Server.AutoOrient, "apply EXIF orientation to JPEG input")
	f.Int("max-image-side", defaults.Server.MaxImageSide, "downscale images whose longer side exceeds this (0 disables)")

	// Rate limiting flags
	f.Bool("rate-limit-enabled", defaults.Server.RateLimit.Enabled, "enable per-client rate limiting")
	f.Int("requests-per-minute", defaults.Server.RateLimit.RequestsPerMinute, "requests per minute per client")
	f.Int("requests-per-hour", defaults.Server.RateLimit.RequestsPerHour, "requests per hour per client")
	f.Int("max-requests-per-day", defaults.Server.RateLimit.MaxRequestsPerDay, "requests per day per client (0 disables)")
	f.Int64("max-data-per-day", defaults.Server.RateLimit.MaxDataPerDay, "bytes per day per client (0 disables)")

	// Engine flags
	f.StringSlice("languages", defaults.Engine.Languages, "OCR languages to load")
	f.Int("psm", defaults.Engine.PageSegMode, "Tesseract page segmentation mode (0-13)")
	f.String("level", defaults.Engine.Level, "region level: word, textline, paragraph or block")
	f.Float64("min-confidence", defaults.Engine.MinConfidence, "drop regions below this confidence")
	f.Int("warmup", defaults.Engine.WarmupIterations, "warmup recognitions run at startup")
	f.String("tessdata-prefix", defaults.Engine.TessdataPrefix, "directory containing traineddata files")

	bindFlags(f, serveFlags)
}

// bindFlags binds each flag to its configuration key on the global viper.
func bindFlags(f *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		if err := viper.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

// toEngineConfig converts the engine section to tesseract settings.
func toEngineConfig(cfg *config.Config) tesseract.Config {
	return tesseract.Config{
		Languages:        append([]string(nil), cfg.Engine.Languages...),
		PageSegMode:      cfg.Engine.PageSegMode,
		Level:            cfg.Engine.Level,
		MinConfidence:    cfg.Engine.MinConfidence,
		WarmupIterations: cfg.Engine.WarmupIterations,
		TessdataPrefix:   cfg.Engine.TessdataPrefix,
	}
}

// loadRecognizer loads the OCR engine once. A failure is logged and nil is
// returned so the server can still start in degraded mode.
func loadRecognizer(cfg *config.Config) engine.Recognizer {
	start := time.Now()
	eng, err := tesseract.New(toEngineConfig(cfg))
	if err != nil {
		slog.Error("Failed to load OCR engine, OCR requests will fail", "error", err)
		return nil
	}
	slog.Info("OCR engine loaded", "engine", eng.Name(), "languages", eng.Languages(), "duration", time.Since(start))
	return eng
}

// newHTTPServer builds the http.Server for cfg.
func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
}

// printBanner writes the addresses clients can use to reach the server.
func printBanner(w io.Writer, port int, modelLoaded bool) {
	urls := netinfo.ServerURLs(port)
	_, _ = fmt.Fprintln(w, "ocrbridge OCR API")
	if !modelLoaded {
		_, _ = fmt.Fprintln(w, "WARNING: OCR engine not loaded, OCR requests will fail")
	}
	_, _ = fmt.Fprintf(w, "  Local:    %s\n", urls.Local)
	for _, u := range urls.Network {
		_, _ = fmt.Fprintf(w, "  Network:  %s\n", u)
	}
	_, _ = fmt.Fprintf(w, "  Emulator: %s\n", urls.Emulator)
}

// runServer serves on ln until ctx is cancelled, then shuts down gracefully.
// The recognizer is closed before returning.
func runServer(ctx context.Context, cfg *config.Config, rec engine.Recognizer, ln net.Listener, out io.Writer) error {
	srv := server.New(cfg.ToServerConfig(), rec)
	defer func() {
		if err := srv.Close(); err != nil {
			slog.Warn("Failed to release OCR engine", "error", err)
		}
	}()

	httpServer := newHTTPServer(cfg, srv.Handler())

	port := cfg.Server.Port
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	printBanner(out, port, srv.ModelLoaded())

	maintCtx, cancelMaint := context.WithCancel(ctx)
	defer cancelMaint()
	go srv.RunMaintenance(maintCtx, maintenanceInterval)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting OCR server", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
