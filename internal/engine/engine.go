// Package engine defines the contract between the HTTP layer and the OCR
// backend. An engine is loaded once at startup and shared read-only by every
// request.
package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/MeKo-Tech/ocrbridge/internal/imagedecode"
)

// Point is a 2D image coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Region is one recognized text area.
type Region struct {
	// Box holds the four corners clockwise from top-left.
	Box        [4]Point
	Text       string
	Confidence float64
}

// Recognizer reads text from RGB frames.
type Recognizer interface {
	// ReadText runs recognition for the given client language codes.
	// An empty langs selects the recognizer defaults.
	ReadText(ctx context.Context, frame *imagedecode.Frame, langs []string) ([]Region, error)
	// Name identifies the backend, e.g. "tesseract".
	Name() string
	// Languages lists the client language codes the recognizer accepts.
	Languages() []string
	Close() error
}

// RecognitionError wraps a backend failure during inference.
type RecognitionError struct {
	Engine string
	Err    error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("%s recognition failed: %v", e.Engine, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// ConversionError reports a backend region that could not be turned into a
// Region. Callers skip such regions.
type ConversionError struct {
	Index  int
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("region %d: %s", e.Index, e.Reason)
}

// RectBox builds a clockwise quadrilateral from an axis-aligned rectangle.
func RectBox(minX, minY, maxX, maxY float64) [4]Point {
	return [4]Point{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
	}
}

// NormalizeConfidence maps a backend score on [0,scale] to [0,1].
// Non-finite scores are rejected.
func NormalizeConfidence(score, scale float64) (float64, bool) {
	if math.IsNaN(score) || math.IsInf(score, 0) || scale <= 0 {
		return 0, false
	}
	c := score / scale
	switch {
	case c < 0:
		c = 0
	case c > 1:
		c = 1
	}
	return c, true
}

// ValidBox reports whether all corners are finite and the box has area.
func ValidBox(box [4]Point) bool {
	for _, p := range box {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return false
		}
	}
	// Shoelace formula
	var area float64
	for i := range box {
		j := (i + 1) % len(box)
		area += box[i].X*box[j].Y - box[j].X*box[i].Y
	}
	return math.Abs(area) > 0
}
