package engine

import (
	"image"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RawRegion is an axis-aligned backend result before validation.
type RawRegion struct {
	Rect  image.Rectangle
	Text  string
	Score float64
}

// ConvertRegions turns raw backend output into Regions. Scores are divided by
// scale. Regions that fail validation are reported in the returned error
// slice and left out; regions below minConfidence are dropped silently.
func ConvertRegions(raw []RawRegion, scale, minConfidence float64) ([]Region, []error) {
	regions := make([]Region, 0, len(raw))
	var errs []error
	for i, r := range raw {
		conf, ok := NormalizeConfidence(r.Score, scale)
		if !ok {
			errs = append(errs, &ConversionError{Index: i, Reason: "non-finite confidence"})
			continue
		}
		box := RectBox(float64(r.Rect.Min.X), float64(r.Rect.Min.Y), float64(r.Rect.Max.X), float64(r.Rect.Max.Y))
		if r.Rect.Empty() || !ValidBox(box) {
			errs = append(errs, &ConversionError{Index: i, Reason: "degenerate bounding box"})
			continue
		}
		if conf < minConfidence {
			continue
		}
		regions = append(regions, Region{
			Box:        box,
			Text:       CleanText(r.Text),
			Confidence: conf,
		})
	}
	return regions, errs
}

// CleanText NFC-normalizes s and trims surrounding whitespace.
func CleanText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
