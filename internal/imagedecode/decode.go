// Package imagedecode turns client-supplied image payloads into RGB frames.
//
// Inputs arrive either as base64 strings (optionally carrying a data URL
// header) or as raw upload streams. Both paths end in the same canonical
// representation: a row-major, 3-channel, 8-bit Frame.
package imagedecode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Marker that ends a data URL header such as "data:image/jpeg;base64,".
const dataURLMarker = "base64,"

var (
	// ErrEmptyInput is returned when there are no bytes to decode.
	ErrEmptyInput = errors.New("empty image data")
	// ErrInvalidBase64 is returned when the payload is not valid base64.
	ErrInvalidBase64 = errors.New("invalid base64 data")
	// ErrUnsupportedImage is returned when the bytes are not a known image format.
	ErrUnsupportedImage = errors.New("unsupported or corrupt image")
)

// DecodeError records the stage at which decoding failed.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Options tunes decoding. The zero value decodes as-is.
type Options struct {
	// AutoOrient applies the EXIF orientation tag, if any.
	AutoOrient bool
	// MaxSide downscales images whose longer side exceeds it. 0 disables.
	MaxSide int
}

// NormalizeBase64 strips an optional data URL header and whitespace and pads
// the payload with '=' to a multiple of four characters.
func NormalizeBase64(s string) string {
	if idx := strings.Index(s, dataURLMarker); idx >= 0 {
		s = s[idx+len(dataURLMarker):]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return s
}

// DecodeBase64Bytes normalizes s and returns the raw bytes it encodes.
// Both the standard and the URL-safe alphabets are accepted.
func DecodeBase64Bytes(s string) ([]byte, error) {
	norm := NormalizeBase64(s)
	if norm == "" {
		return nil, &DecodeError{Op: "base64", Err: ErrEmptyInput}
	}
	data, err := base64.StdEncoding.DecodeString(norm)
	if err != nil {
		var urlErr error
		data, urlErr = base64.URLEncoding.DecodeString(norm)
		if urlErr != nil {
			return nil, &DecodeError{Op: "base64", Err: fmt.Errorf("%w: %v", ErrInvalidBase64, err)}
		}
	}
	if len(data) == 0 {
		return nil, &DecodeError{Op: "base64", Err: ErrEmptyInput}
	}
	return data, nil
}

// DecodeBase64 decodes a base64 (or data URL) encoded image into a Frame.
func DecodeBase64(s string, opts Options) (*Frame, error) {
	data, err := DecodeBase64Bytes(s)
	if err != nil {
		return nil, err
	}
	return Decode(bytes.NewReader(data), opts)
}

// Decode reads an encoded image from r and converts it to an RGB Frame.
func Decode(r io.Reader, opts Options) (*Frame, error) {
	if r == nil {
		return nil, &DecodeError{Op: "decode", Err: ErrEmptyInput}
	}
	img, err := imaging.Decode(r, imaging.AutoOrientation(opts.AutoOrient))
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &DecodeError{Op: "decode", Err: fmt.Errorf("%w: truncated data", ErrUnsupportedImage)}
		}
		return nil, &DecodeError{Op: "decode", Err: fmt.Errorf("%w: %v", ErrUnsupportedImage, err)}
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, &DecodeError{Op: "decode", Err: fmt.Errorf("%w: zero-sized image", ErrUnsupportedImage)}
	}
	if opts.MaxSide > 0 && (b.Dx() > opts.MaxSide || b.Dy() > opts.MaxSide) {
		img = imaging.Fit(img, opts.MaxSide, opts.MaxSide, imaging.Lanczos)
	}
	return FromImage(img), nil
}

// FromImage converts any image to an RGB Frame, dropping alpha without
// compositing.
func FromImage(img image.Image) *Frame {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	pix := make([]uint8, w*h*3)
	for y := range h {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		dst := pix[y*w*3 : (y+1)*w*3]
		for x := range w {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return &Frame{Width: w, Height: h, Pix: pix}
}
