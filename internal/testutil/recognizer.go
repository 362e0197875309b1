package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/ocrbridge/internal/engine"
	"github.com/MeKo-Tech/ocrbridge/internal/imagedecode"
)

// FakeRecognizer is a deterministic engine.Recognizer that counts calls and
// records its inputs.
type FakeRecognizer struct {
	mu sync.Mutex

	Regions []engine.Region
	Err     error
	Panic   any
	Langs   []string
	Delay   time.Duration

	calls     int
	lastFrame *imagedecode.Frame
	lastLangs []string
	closed    bool
}

// NewFakeRecognizer returns a fake that answers with regions and accepts
// the default languages.
func NewFakeRecognizer(regions ...engine.Region) *FakeRecognizer {
	return &FakeRecognizer{
		Regions: regions,
		Langs:   append([]string(nil), engine.DefaultLanguages...),
	}
}

// SampleRegions returns two well-formed regions and one with blank text.
func SampleRegions() []engine.Region {
	return []engine.Region{
		{Box: engine.RectBox(10, 10, 100, 30), Text: " Hello ", Confidence: 0.95},
		{Box: engine.RectBox(10, 40, 60, 60), Text: "  ", Confidence: 0.30},
		{Box: engine.RectBox(10, 70, 120, 90), Text: "สวัสดี", Confidence: 0.875},
	}
}

// ReadText implements engine.Recognizer.
func (f *FakeRecognizer) ReadText(ctx context.Context, frame *imagedecode.Frame, langs []string) ([]engine.Region, error) {
	f.mu.Lock()
	f.calls++
	f.lastFrame = frame
	f.lastLangs = append([]string(nil), langs...)
	p, err, delay := f.Panic, f.Err, f.Delay
	regions := append([]engine.Region(nil), f.Regions...)
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if p != nil {
		panic(p)
	}
	if err != nil {
		return nil, err
	}
	return regions, nil
}

// Name implements engine.Recognizer.
func (f *FakeRecognizer) Name() string { return "fake" }

// Languages implements engine.Recognizer.
func (f *FakeRecognizer) Languages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Langs...)
}

// Close implements engine.Recognizer.
func (f *FakeRecognizer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Calls returns how many times ReadText ran.
func (f *FakeRecognizer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastFrame returns the frame passed to the most recent call.
func (f *FakeRecognizer) LastFrame() *imagedecode.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFrame
}

// LastLanguages returns the languages passed to the most recent call.
func (f *FakeRecognizer) LastLanguages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastLangs
}

// Closed reports whether Close was called.
func (f *FakeRecognizer) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
