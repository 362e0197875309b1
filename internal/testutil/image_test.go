package testutil

import (
	"encoding/base64"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTextImage(t *testing.T) {
	config := DefaultTestImageConfig()
	config.Text = "Hello"

	img := GenerateTextImage(config)
	require.NotNil(t, img)
	assert.Equal(t, SmallSize.Width, img.Bounds().Dx())
	assert.Equal(t, SmallSize.Height, img.Bounds().Dy())

	// Some pixel must carry the foreground color.
	dark := false
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] < 128 {
			dark = true
			break
		}
	}
	assert.True(t, dark, "expected rendered text pixels")
}

func TestCreateSolidImage(t *testing.T) {
	img := CreateSolidImage(4, 3, color.RGBA{10, 20, 30, 255})
	r, g, b, _ := img.At(2, 1).RGBA()
	assert.Equal(t, uint32(10), r>>8)
	assert.Equal(t, uint32(20), g>>8)
	assert.Equal(t, uint32(30), b>>8)
}

func TestDataURL(t *testing.T) {
	url := DataURL("image/png", []byte{1, 2, 3})
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw)
}
