// Package tesseract implements engine.Recognizer on top of Tesseract via
// gosseract. Tesseract handles are not reentrant, so every call borrows a
// client from a bounded per-language-set pool.
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/MeKo-Tech/ocrbridge/internal/engine"
	"github.com/MeKo-Tech/ocrbridge/internal/imagedecode"
)

// Name is the backend identifier reported in health output.
const Name = "tesseract"

// Config holds engine settings.
type Config struct {
	Languages        []string
	PageSegMode      int
	Level            string
	MinConfidence    float64
	WarmupIterations int
	TessdataPrefix   string
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Languages:        append([]string(nil), engine.DefaultLanguages...),
		PageSegMode:      3,
		Level:            "textline",
		MinConfidence:    0,
		WarmupIterations: 1,
	}
}

// ParseLevel maps a segmentation level name to a gosseract iterator level.
func ParseLevel(name string) (gosseract.PageIteratorLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "word":
		return gosseract.RIL_WORD, nil
	case "", "textline", "line":
		return gosseract.RIL_TEXTLINE, nil
	case "paragraph", "para":
		return gosseract.RIL_PARA, nil
	case "block":
		return gosseract.RIL_BLOCK, nil
	default:
		return 0, fmt.Errorf("unknown segmentation level %q", name)
	}
}

// Engine is a pooled Tesseract recognizer.
type Engine struct {
	cfg       Config
	level     gosseract.PageIteratorLevel
	languages []string

	mu     sync.Mutex
	pools  map[string]*clientPool[*gosseract.Client]
	closed bool
}

// New validates cfg, checks that the language data loads and warms up the
// default pool.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Languages) == 0 {
		cfg.Languages = append([]string(nil), engine.DefaultLanguages...)
	}
	langs, err := engine.ValidateLanguages(cfg.Languages)
	if err != nil {
		return nil, fmt.Errorf("invalid engine languages: %w", err)
	}
	if cfg.PageSegMode < 0 || cfg.PageSegMode > 13 {
		return nil, fmt.Errorf("page segmentation mode %d out of range [0,13]", cfg.PageSegMode)
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		level:     level,
		languages: langs,
		pools:     make(map[string]*clientPool[*gosseract.Client]),
	}

	// Tesseract initializes lazily, so missing traineddata surfaces in warmup.
	first, err := e.newClient(langs)
	if err != nil {
		return nil, err
	}
	e.release(e.poolFor(langs), first)

	if err := e.warmup(); err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("warmup failed: %w", err)
	}

	slog.Info("Tesseract engine loaded",
		"languages", langs,
		"tesseract_languages", engine.TesseractCodes(langs),
		"psm", cfg.PageSegMode,
		"level", cfg.Level,
		"version", gosseract.Version())
	return e, nil
}

func (e *Engine) newClient(langs []string) (*gosseract.Client, error) {
	client := gosseract.NewClient()
	if e.cfg.TessdataPrefix != "" {
		client.TessdataPrefix = e.cfg.TessdataPrefix
	}
	codes := engine.TesseractCodes(langs)
	if err := client.SetLanguage(codes...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to set language %q: %w", strings.Join(codes, "+"), err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(e.cfg.PageSegMode)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode %d: %w", e.cfg.PageSegMode, err)
	}
	return client, nil
}

func poolKey(langs []string) string {
	return strings.Join(langs, "+")
}

// poolFor returns the client pool for a language set, creating it on first
// use. Each pool keeps at most GOMAXPROCS idle clients.
func (e *Engine) poolFor(langs []string) *clientPool[*gosseract.Client] {
	key := poolKey(langs)
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.pools[key]; ok {
		return p
	}
	set := append([]string(nil), langs...)
	p := newClientPool(runtime.GOMAXPROCS(0), func() (*gosseract.Client, error) {
		return e.newClient(set)
	})
	e.pools[key] = p
	return p
}

func (e *Engine) warmup() error {
	if e.cfg.WarmupIterations <= 0 {
		return nil
	}
	blank := imagedecode.FromImage(imaging.New(64, 32, color.White))
	for i := 0; i < e.cfg.WarmupIterations; i++ {
		if _, err := e.ReadText(context.Background(), blank, nil); err != nil {
			return err
		}
	}
	return nil
}

// ReadText recognizes text in frame using the requested client language
// codes, or the configured set when langs is empty.
func (e *Engine) ReadText(ctx context.Context, frame *imagedecode.Frame, langs []string) ([]engine.Region, error) {
	if frame == nil {
		return nil, &engine.RecognitionError{Engine: Name, Err: errors.New("nil frame")}
	}
	langs, err := engine.ResolveLanguages(langs, e.languages)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, &engine.RecognitionError{Engine: Name, Err: errors.New("engine closed")}
	}

	data, err := frame.PNG()
	if err != nil {
		return nil, &engine.RecognitionError{Engine: Name, Err: fmt.Errorf("encode frame: %w", err)}
	}

	pool := e.poolFor(langs)
	client, err := pool.get()
	if err != nil {
		slog.Error("Failed to create Tesseract client", "languages", langs, "error", err)
		return nil, &engine.RecognitionError{Engine: Name, Err: err}
	}

	type result struct {
		raw []engine.RawRegion
		err error
	}
	// The goroutine owns the client until recognition returns, even when
	// ctx is cancelled first.
	ch := make(chan result, 1)
	go func() {
		defer e.release(pool, client)
		raw, err := e.recognize(client, data)
		ch <- result{raw, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.err != nil {
		return nil, &engine.RecognitionError{Engine: Name, Err: res.err}
	}

	regions, convErrs := engine.ConvertRegions(res.raw, 100, e.cfg.MinConfidence)
	for _, ce := range convErrs {
		slog.Warn("Skipping region", "error", ce)
	}
	return regions, nil
}

func (e *Engine) recognize(client *gosseract.Client, data []byte) ([]engine.RawRegion, error) {
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(e.level)
	if err != nil {
		return nil, fmt.Errorf("failed to get bounding boxes: %w", err)
	}
	return toRaw(boxes), nil
}

func toRaw(boxes []gosseract.BoundingBox) []engine.RawRegion {
	raw := make([]engine.RawRegion, 0, len(boxes))
	for _, b := range boxes {
		raw = append(raw, engine.RawRegion{Rect: b.Box, Text: b.Word, Score: b.Confidence})
	}
	return raw
}

// Name implements engine.Recognizer.
func (e *Engine) Name() string { return Name }

// Languages implements engine.Recognizer.
func (e *Engine) Languages() []string {
	return append([]string(nil), e.languages...)
}

// release returns a borrowed client to its pool, or closes it once the
// engine has been closed.
func (e *Engine) release(pool *clientPool[*gosseract.Client], client *gosseract.Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.closed {
		err = client.Close()
	} else {
		err = pool.put(client)
	}
	if err != nil {
		slog.Warn("Failed to close Tesseract client", "error", err)
	}
}

// Close releases every idle pooled client. Clients still borrowed are closed
// when their request returns them.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	var errs []error
	for key, p := range e.pools {
		if err := p.drain(); err != nil {
			errs = append(errs, fmt.Errorf("close clients %s: %w", key, err))
		}
	}
	e.pools = map[string]*clientPool[*gosseract.Client]{}
	return errors.Join(errs...)
}
