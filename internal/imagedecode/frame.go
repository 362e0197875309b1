package imagedecode

import (
	"bytes"
	"image"
	"image/png"
)

// Frame is an 8-bit RGB pixel array of shape Height x Width x 3.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// Shape returns the array dimensions as (height, width, channels).
func (f *Frame) Shape() (int, int, int) {
	return f.Height, f.Width, 3
}

// RGBAt returns the color components of the pixel at (x, y).
func (f *Frame) RGBAt(x, y int) (uint8, uint8, uint8) {
	i := (y*f.Width + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Image returns an opaque NRGBA view of the frame.
func (f *Frame) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < len(f.Pix); i, j = i+3, j+4 {
		img.Pix[j] = f.Pix[i]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

// PNG encodes the frame losslessly.
func (f *Frame) PNG() ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, f.Image()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
