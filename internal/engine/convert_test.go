package engine

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertRegions(t *testing.T) {
	raw := []RawRegion{
		{Rect: image.Rect(10, 20, 110, 40), Text: " Hello \n", Score: 93},
		{Rect: image.Rect(5, 5, 5, 30), Text: "flat", Score: 80},
		{Rect: image.Rect(0, 50, 40, 70), Text: "nan", Score: math.NaN()},
		{Rect: image.Rect(0, 80, 60, 100), Text: "World", Score: 150},
	}

	regions, errs := ConvertRegions(raw, 100, 0)
	require.Len(t, regions, 2)
	require.Len(t, errs, 2)

	assert.Equal(t, "Hello", regions[0].Text)
	assert.InDelta(t, 0.93, regions[0].Confidence, 1e-9)
	assert.Equal(t, RectBox(10, 20, 110, 40), regions[0].Box)

	assert.Equal(t, "World", regions[1].Text)
	assert.Equal(t, 1.0, regions[1].Confidence)

	var convErr *ConversionError
	require.ErrorAs(t, errs[0], &convErr)
	assert.Equal(t, 1, convErr.Index)
	assert.Contains(t, convErr.Error(), "degenerate")

	require.ErrorAs(t, errs[1], &convErr)
	assert.Equal(t, 2, convErr.Index)
}

func TestConvertRegionsMinConfidence(t *testing.T) {
	raw := []RawRegion{
		{Rect: image.Rect(0, 0, 10, 10), Text: "low", Score: 20},
		{Rect: image.Rect(0, 20, 10, 30), Text: "high", Score: 70},
	}

	regions, errs := ConvertRegions(raw, 100, 0.5)
	assert.Empty(t, errs)
	require.Len(t, regions, 1)
	assert.Equal(t, "high", regions[0].Text)
}

func TestConvertRegionsEmpty(t *testing.T) {
	regions, errs := ConvertRegions(nil, 100, 0)
	assert.NotNil(t, regions)
	assert.Empty(t, regions)
	assert.Empty(t, errs)
}

func TestCleanText(t *testing.T) {
	// "e" followed by a combining acute accent composes to U+00E9.
	assert.Equal(t, "\u00e9t\u00e9", CleanText("  e\u0301te\u0301 "))
	assert.Equal(t, "สวัสดี", CleanText("สวัสดี\n"))
	assert.Equal(t, "", CleanText(" \t "))
}
