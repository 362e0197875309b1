package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/MeKo-Tech/ocrbridge/internal/engine"
	"github.com/MeKo-Tech/ocrbridge/internal/imagedecode"
	"github.com/MeKo-Tech/ocrbridge/internal/version"
)

// OCRRequest is the JSON body accepted by POST /api/ocr.
type OCRRequest struct {
	Image     string   `json:"image" validate:"required"`
	Languages []string `json:"languages" validate:"omitempty,max=16,dive,required,max=16"`
}

// apiError carries an HTTP status and client message out of the shared
// OCR path.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

// rootHandler describes the service.
func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, msgMethodNotAllow)
		return
	}

	endpoints := map[string]string{
		"ocr":          "/api/ocr (POST)",
		"ocr_formdata": "/api/ocr-formdata (POST)",
		"health":       "/health (GET)",
		"languages":    "/api/languages (GET)",
	}
	if s.metricsEnabled {
		endpoints["metrics"] = "/metrics (GET)"
	}
	if s.websocketEnabled {
		endpoints["websocket"] = "/ws/ocr (GET, upgrade)"
	}

	status := "ready"
	if !s.ModelLoaded() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, InfoResponse{
		Message:       "OCR API Server is running!",
		Endpoints:     endpoints,
		Status:        status,
		EasyOCRLoaded: s.ModelLoaded(),
		Engine:        s.engineName(),
		Version:       version.Version,
	})
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, msgMethodNotAllow)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Message:       "OCR API is working",
		EasyOCRLoaded: s.ModelLoaded(),
		Engine:        s.engineName(),
		Version:       version.Version,
		Time:          time.Now().UTC().Format(time.RFC3339),
	})
}

// languagesHandler lists loaded and supported language codes.
func (s *Server) languagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, msgMethodNotAllow)
		return
	}
	writeJSON(w, http.StatusOK, LanguagesResponse{
		Loaded:    s.languages,
		Supported: engine.SupportedLanguages(),
	})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, msgNotFound)
}

// ocrHandler processes base64 JSON OCR requests.
func (s *Server) ocrHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, msgMethodNotAllow)
		return
	}
	start := time.Now()

	if !s.ModelLoaded() {
		ocrRequestsTotal.WithLabelValues("json", "unavailable").Inc()
		writeError(w, r, http.StatusInternalServerError, msgModelNotLoaded)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, msgFileTooLarge)
			return
		}
		writeError(w, r, http.StatusBadRequest, prefixInvalidJSON+err.Error())
		return
	}
	uploadSizeBytes.Observe(float64(len(body)))

	req, apiErr := s.parseOCRRequest(body)
	if apiErr != nil {
		s.fail(w, r, "json", apiErr)
		return
	}

	langs, apiErr := s.resolveLanguages(req.Languages)
	if apiErr != nil {
		s.fail(w, r, "json", apiErr)
		return
	}

	frame, err := imagedecode.DecodeBase64(req.Image, s.decodeOpts)
	if err != nil {
		slog.Warn("Image decoding error", "request_id", RequestIDFromContext(r.Context()), "error", err)
		s.fail(w, r, "json", &apiError{status: http.StatusBadRequest, message: prefixDecodeJSON + err.Error()})
		return
	}

	resp, apiErr := s.runOCR(r.Context(), frame, langs, "json")
	if apiErr != nil {
		s.fail(w, r, "json", apiErr)
		return
	}
	resp.ProcessingMs = time.Since(start).Milliseconds()
	resp.RequestID = RequestIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, resp)
}

// ocrFormHandler processes multipart OCR uploads.
func (s *Server) ocrFormHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, msgMethodNotAllow)
		return
	}
	start := time.Now()

	if !s.ModelLoaded() {
		ocrRequestsTotal.WithLabelValues("formdata", "unavailable").Inc()
		writeError(w, r, http.StatusInternalServerError, msgModelNotLoaded)
		return
	}

	maxBytes := s.maxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, msgFileTooLarge)
			return
		}
		s.fail(w, r, "formdata", &apiError{status: http.StatusBadRequest, message: msgNoImageFile})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		s.fail(w, r, "formdata", &apiError{status: http.StatusBadRequest, message: msgNoImageFile})
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	requested := s.formLanguages(r)
	langs, apiErr := s.resolveLanguages(requested)
	if apiErr != nil {
		s.fail(w, r, "formdata", apiErr)
		return
	}

	frame, err := imagedecode.Decode(file, s.decodeOpts)
	if err != nil {
		slog.Warn("Image file processing error", "request_id", RequestIDFromContext(r.Context()),
			"filename", header.Filename, "error", err)
		s.fail(w, r, "formdata", &apiError{status: http.StatusBadRequest, message: prefixDecodeForm + err.Error()})
		return
	}

	resp, apiErr := s.runOCR(r.Context(), frame, langs, "formdata")
	if apiErr != nil {
		s.fail(w, r, "formdata", apiErr)
		return
	}
	resp.ProcessingMs = time.Since(start).Milliseconds()
	resp.RequestID = RequestIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, resp)
}

// parseOCRRequest decodes and validates a JSON OCR body.
func (s *Server) parseOCRRequest(body []byte) (*OCRRequest, *apiError) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &apiError{status: http.StatusBadRequest, message: msgNoJSON}
	}

	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return nil, &apiError{status: http.StatusBadRequest, message: prefixInvalidJSON + err.Error()}
	}
	switch v := parsed.(type) {
	case nil:
		return nil, &apiError{status: http.StatusBadRequest, message: msgNoJSON}
	case map[string]any:
		if len(v) == 0 {
			return nil, &apiError{status: http.StatusBadRequest, message: msgNoJSON}
		}
	case []any:
		if len(v) == 0 {
			return nil, &apiError{status: http.StatusBadRequest, message: msgNoJSON}
		}
		return nil, &apiError{status: http.StatusBadRequest, message: prefixInvalidJSON + "expected a JSON object"}
	default:
		return nil, &apiError{status: http.StatusBadRequest, message: prefixInvalidJSON + "expected a JSON object"}
	}

	var req OCRRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, &apiError{status: http.StatusBadRequest, message: prefixInvalidJSON + err.Error()}
	}
	if err := s.validate.Struct(&req); err != nil {
		return nil, validationError(err)
	}
	return &req, nil
}

// validationError maps validator failures onto client messages.
func validationError(err error) *apiError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &apiError{status: http.StatusBadRequest, message: prefixInvalidJSON + err.Error()}
	}
	for _, fe := range verrs {
		if fe.StructField() == "Image" {
			return &apiError{status: http.StatusBadRequest, message: msgNoImageData}
		}
	}
	return &apiError{status: http.StatusBadRequest, message: prefixInvalidLangs + verrs.Error()}
}

// formLanguages reads the JSON-encoded languages form field. Anything that
// does not parse as a list of strings selects the defaults.
func (s *Server) formLanguages(r *http.Request) []string {
	raw := r.FormValue("languages")
	if raw == "" {
		return nil
	}
	var langs []string
	if err := json.Unmarshal([]byte(raw), &langs); err != nil {
		slog.Debug("Ignoring unparsable languages field", "value", raw, "error", err)
		return nil
	}
	return langs
}

func (s *Server) resolveLanguages(requested []string) ([]string, *apiError) {
	langs, err := engine.ResolveLanguages(requested, s.languages)
	if err != nil {
		return nil, &apiError{status: http.StatusBadRequest, message: prefixInvalidLangs + err.Error()}
	}
	return langs, nil
}

// runOCR invokes the recognizer once and formats the result.
func (s *Server) runOCR(ctx context.Context, frame *imagedecode.Frame, langs []string, source string) (OCRResponse, *apiError) {
	if !s.ModelLoaded() {
		return OCRResponse{}, &apiError{status: http.StatusInternalServerError, message: msgModelNotLoaded}
	}

	h, w, _ := frame.Shape()
	slog.Debug("Running OCR", "request_id", RequestIDFromContext(ctx), "height", h, "width", w, "languages", langs)

	start := time.Now()
	regions, err := s.recognizer.ReadText(ctx, frame, langs)
	ocrProcessingDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		var langErr *engine.LanguageError
		if errors.As(err, &langErr) {
			return OCRResponse{}, &apiError{status: http.StatusBadRequest, message: prefixInvalidLangs + err.Error()}
		}
		slog.Error("OCR processing error", "request_id", RequestIDFromContext(ctx), "error", err)
		return OCRResponse{}, &apiError{status: http.StatusInternalServerError, message: prefixOCRFailed + err.Error()}
	}

	resp := buildOCRResponse(regions, langs)
	ocrRequestsTotal.WithLabelValues(source, "success").Inc()
	ocrRegionsDetected.WithLabelValues(source).Observe(float64(resp.TotalRegions))
	ocrTextLength.WithLabelValues(source).Observe(float64(len(resp.Text)))
	slog.Info("OCR completed", "request_id", RequestIDFromContext(ctx),
		"regions", resp.TotalRegions, "preview", preview(resp.Text, 100))
	return resp, nil
}

// fail records a failed OCR request and writes its envelope.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, source string, e *apiError) {
	status := "client_error"
	if e.status >= http.StatusInternalServerError {
		status = "error"
	}
	ocrRequestsTotal.WithLabelValues(source, status).Inc()
	writeError(w, r, e.status, e.message)
}

func (s *Server) maxUploadBytes() int64 {
	return s.maxUploadMB * 1024 * 1024
}

func (s *Server) engineName() string {
	if s.recognizer == nil {
		return ""
	}
	return s.recognizer.Name()
}

// preview truncates s to at most n runes.
func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return fmt.Sprintf("%s...", string(runes[:n]))
}
