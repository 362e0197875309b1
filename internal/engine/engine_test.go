package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectBox(t *testing.T) {
	box := RectBox(10, 20, 110, 40)
	assert.Equal(t, [4]Point{{10, 20}, {110, 20}, {110, 40}, {10, 40}}, box)
	assert.True(t, ValidBox(box))
}

func TestValidBox(t *testing.T) {
	tests := []struct {
		name string
		box  [4]Point
		want bool
	}{
		{name: "rectangle", box: RectBox(0, 0, 5, 5), want: true},
		{name: "zero width", box: RectBox(3, 0, 3, 5), want: false},
		{name: "single point", box: RectBox(1, 1, 1, 1), want: false},
		{name: "nan corner", box: [4]Point{{math.NaN(), 0}, {1, 0}, {1, 1}, {0, 1}}, want: false},
		{name: "inf corner", box: [4]Point{{0, 0}, {math.Inf(1), 0}, {1, 1}, {0, 1}}, want: false},
		{name: "skewed quad", box: [4]Point{{0, 0}, {10, 2}, {9, 6}, {-1, 4}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidBox(tt.box))
		})
	}
}

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct {
		name   string
		score  float64
		scale  float64
		want   float64
		wantOK bool
	}{
		{name: "percent", score: 87.5, scale: 100, want: 0.875, wantOK: true},
		{name: "unit", score: 0.42, scale: 1, want: 0.42, wantOK: true},
		{name: "negative clamps", score: -1, scale: 100, want: 0, wantOK: true},
		{name: "overflow clamps", score: 101, scale: 100, want: 1, wantOK: true},
		{name: "nan", score: math.NaN(), scale: 100, wantOK: false},
		{name: "inf", score: math.Inf(1), scale: 100, wantOK: false},
		{name: "bad scale", score: 50, scale: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeConfidence(tt.score, tt.scale)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestRecognitionError(t *testing.T) {
	inner := errors.New("boom")
	err := &RecognitionError{Engine: "tesseract", Err: inner}
	assert.Equal(t, "tesseract recognition failed: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestValidateLanguages(t *testing.T) {
	codes, err := ValidateLanguages([]string{"TH", " en ", "th"})
	require.NoError(t, err)
	assert.Equal(t, []string{"th", "en"}, codes)

	_, err = ValidateLanguages([]string{"en", "klingon"})
	var langErr *LanguageError
	require.ErrorAs(t, err, &langErr)
	assert.Equal(t, "klingon", langErr.Code)
}

func TestResolveLanguages(t *testing.T) {
	allowed := []string{"th", "en"}

	t.Run("empty uses allowed", func(t *testing.T) {
		got, err := ResolveLanguages(nil, allowed)
		require.NoError(t, err)
		assert.Equal(t, allowed, got)

		// The returned slice must not alias the configured one.
		got[0] = "xx"
		assert.Equal(t, "th", allowed[0])
	})

	t.Run("subset honored", func(t *testing.T) {
		got, err := ResolveLanguages([]string{"en"}, allowed)
		require.NoError(t, err)
		assert.Equal(t, []string{"en"}, got)
	})

	t.Run("known but not loaded", func(t *testing.T) {
		_, err := ResolveLanguages([]string{"ja"}, allowed)
		var langErr *LanguageError
		require.ErrorAs(t, err, &langErr)
		assert.Contains(t, langErr.Error(), "not loaded")
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := ResolveLanguages([]string{"zz"}, allowed)
		var langErr *LanguageError
		require.ErrorAs(t, err, &langErr)
		assert.Contains(t, langErr.Error(), "not supported")
	})
}

func TestTesseractCodes(t *testing.T) {
	assert.Equal(t, []string{"tha", "eng"}, TesseractCodes([]string{"th", "en"}))
	assert.Equal(t, []string{"jpn"}, TesseractCodes([]string{"nope", "ja"}))
}

func TestSupportedLanguagesSorted(t *testing.T) {
	langs := SupportedLanguages()
	require.NotEmpty(t, langs)
	for i := 1; i < len(langs); i++ {
		assert.Less(t, langs[i-1].Code, langs[i].Code)
	}
	for _, d := range DefaultLanguages {
		_, ok := LookupLanguage(d)
		assert.True(t, ok, "default language %s missing from table", d)
	}
}
