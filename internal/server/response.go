package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MeKo-Tech/ocrbridge/internal/engine"
)

// Client-visible failure messages.
const (
	msgModelNotLoaded  = "OCR model not loaded properly"
	msgNoJSON          = "No JSON data provided"
	msgNoImageData     = "No image data provided"
	msgNoImageFile     = "No image file provided"
	msgFileTooLarge    = "File too large"
	msgNotFound        = "Endpoint not found"
	msgMethodNotAllow  = "Method not allowed"
	msgInternalError   = "Internal server error"
	prefixInvalidJSON  = "Invalid JSON data: "
	prefixInvalidLangs = "Invalid languages: "
	prefixDecodeJSON   = "Failed to decode image: "
	prefixDecodeForm   = "Failed to process image file: "
	prefixOCRFailed    = "OCR processing failed: "
)

// Detail is one recognized region on the wire.
type Detail struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	BBox       [4][2]float64 `json:"bbox"`
}

// OCRResponse is the success envelope for both OCR routes.
type OCRResponse struct {
	Success       bool     `json:"success"`
	Text          string   `json:"text"`
	Details       []Detail `json:"details"`
	TotalRegions  int      `json:"total_regions"`
	LanguagesUsed []string `json:"languages_used"`
	ProcessingMs  int64    `json:"processing_ms"`
	RequestID     string   `json:"request_id,omitempty"`
}

// ErrorResponse is the failure envelope used by every route.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// InfoResponse is returned by GET /.
type InfoResponse struct {
	Message       string            `json:"message"`
	Endpoints     map[string]string `json:"endpoints"`
	Status        string            `json:"status"`
	EasyOCRLoaded bool              `json:"easyocr_loaded"`
	Engine        string            `json:"engine,omitempty"`
	Version       string            `json:"version"`
}

// HealthResponse is returned by GET /health. The easyocr_loaded key is
// kept for existing mobile clients.
type HealthResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	EasyOCRLoaded bool   `json:"easyocr_loaded"`
	Engine        string `json:"engine,omitempty"`
	Version       string `json:"version,omitempty"`
	Time          string `json:"time"`
}

// LanguagesResponse is returned by GET /api/languages.
type LanguagesResponse struct {
	Loaded    []string          `json:"loaded"`
	Supported []engine.Language `json:"supported"`
}

// buildOCRResponse formats regions into the success envelope. Region order
// is preserved and text joins the non-empty trimmed region texts. Regions
// with a non-finite confidence or a degenerate box are dropped so the
// envelope always encodes.
func buildOCRResponse(regions []engine.Region, langs []string) OCRResponse {
	details := make([]Detail, 0, len(regions))
	parts := make([]string, 0, len(regions))
	for i, r := range regions {
		conf, ok := engine.NormalizeConfidence(r.Confidence, 1)
		if !ok || !engine.ValidBox(r.Box) {
			slog.Warn("Skipping unserializable region", "index", i, "confidence", fmt.Sprint(r.Confidence))
			continue
		}
		text := engine.CleanText(r.Text)
		d := Detail{Text: text, Confidence: conf}
		for i, p := range r.Box {
			d.BBox[i] = [2]float64{p.X, p.Y}
		}
		details = append(details, d)
		if text != "" {
			parts = append(parts, text)
		}
	}
	if langs == nil {
		langs = []string{}
	}
	return OCRResponse{
		Success:       true,
		Text:          strings.Join(parts, " "),
		Details:       details,
		TotalRegions:  len(details),
		LanguagesUsed: langs,
	}
}

// writeJSON writes v with the given status. When v cannot be encoded the
// client gets a 500 envelope instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "error", err, "status", status)
		status = http.StatusInternalServerError
		data, _ = json.Marshal(ErrorResponse{Success: false, Message: msgInternalError})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

// writeError writes the failure envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := ErrorResponse{Success: false, Message: message}
	if r != nil {
		resp.RequestID = RequestIDFromContext(r.Context())
	}
	writeJSON(w, status, resp)
}
