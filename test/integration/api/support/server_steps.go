package support

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/ocrbridge/internal/engine"
	"github.com/MeKo-Tech/ocrbridge/internal/server"
)

// anOCRServerWithAWorkingEngine configures a healthy server.
func (testCtx *TestContext) anOCRServerWithAWorkingEngine() error {
	testCtx.Degraded = false
	return nil
}

// anOCRServerWhoseEngineFailedToLoad configures degraded mode.
func (testCtx *TestContext) anOCRServerWhoseEngineFailedToLoad() error {
	testCtx.Degraded = true
	return nil
}

func (testCtx *TestContext) anUploadLimitOfMB(mb int) error {
	testCtx.Config.MaxUploadMB = int64(mb)
	return nil
}

func (testCtx *TestContext) aRateLimitOfRequestsPerMinute(n int) error {
	testCtx.Config.RateLimit = server.RateLimitConfig{Enabled: true, RequestsPerMinute: n}
	return nil
}

func (testCtx *TestContext) theEngineHasLanguagesLoaded(csv string) error {
	testCtx.Recognizer.Langs = splitCSV(csv)
	return nil
}

// theEngineRecognizes appends a region; each new region sits below the last.
func (testCtx *TestContext) theEngineRecognizes(text string, confidence float64) error {
	n := float64(len(testCtx.Recognizer.Regions))
	testCtx.Recognizer.Regions = append(testCtx.Recognizer.Regions, engine.Region{
		Box:        engine.RectBox(10, 10+n*30, 200, 35+n*30),
		Text:       text,
		Confidence: confidence,
	})
	return nil
}

func (testCtx *TestContext) theEngineShouldHaveBeenCalledTimes(n int) error {
	if got := testCtx.Recognizer.Calls(); got != n {
		return fmt.Errorf("expected %d engine calls, got %d", n, got)
	}
	return nil
}

func (testCtx *TestContext) theEngineShouldHaveReceivedLanguages(csv string) error {
	want := strings.Join(splitCSV(csv), ",")
	got := strings.Join(testCtx.Recognizer.LastLanguages(), ",")
	if got != want {
		return fmt.Errorf("expected languages %q, got %q", want, got)
	}
	return nil
}

func (testCtx *TestContext) theEngineShouldHaveReceivedAnImageOf(width, height int) error {
	frame := testCtx.Recognizer.LastFrame()
	if frame == nil {
		return fmt.Errorf("engine received no image")
	}
	if frame.Width != width || frame.Height != height {
		return fmt.Errorf("expected a %dx%d image, got %dx%d", width, height, frame.Width, frame.Height)
	}
	return nil
}

func splitCSV(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", s)
	}
	return n, nil
}

// RegisterServerSteps registers server setup and engine assertions.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an OCR server with a working engine$`, testCtx.anOCRServerWithAWorkingEngine)
	sc.Step(`^an OCR server whose engine failed to load$`, testCtx.anOCRServerWhoseEngineFailedToLoad)
	sc.Step(`^an upload limit of (\d+) MB$`, func(s string) error {
		n, err := atoi(s)
		if err != nil {
			return err
		}
		return testCtx.anUploadLimitOfMB(n)
	})
	sc.Step(`^a rate limit of (\d+) requests? per minute$`, func(s string) error {
		n, err := atoi(s)
		if err != nil {
			return err
		}
		return testCtx.aRateLimitOfRequestsPerMinute(n)
	})
	sc.Step(`^the engine has languages "([^"]*)" loaded$`, testCtx.theEngineHasLanguagesLoaded)
	sc.Step(`^the engine recognizes "([^"]*)" with confidence ([\d.]+)$`, testCtx.theEngineRecognizes)
	sc.Step(`^the engine should have been called (\d+) times?$`, func(s string) error {
		n, err := atoi(s)
		if err != nil {
			return err
		}
		return testCtx.theEngineShouldHaveBeenCalledTimes(n)
	})
	sc.Step(`^the engine should have received languages "([^"]*)"$`, testCtx.theEngineShouldHaveReceivedLanguages)
	sc.Step(`^the engine should have received a (\d+)x(\d+) image$`, func(ws, hs string) error {
		w, err := atoi(ws)
		if err != nil {
			return err
		}
		h, err := atoi(hs)
		if err != nil {
			return err
		}
		return testCtx.theEngineShouldHaveReceivedAnImageOf(w, h)
	})
}
