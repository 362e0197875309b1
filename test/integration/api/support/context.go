package support

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/MeKo-Tech/ocrbridge/internal/engine"
	"github.com/MeKo-Tech/ocrbridge/internal/server"
	"github.com/MeKo-Tech/ocrbridge/internal/testutil"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Server under test
	Config     server.Config
	Recognizer *testutil.FakeRecognizer
	Degraded   bool
	HTTPServer *httptest.Server

	// HTTP response state
	LastStatusCode int
	LastBody       []byte
	LastHeaders    http.Header
	LastJSON       map[string]any

	client *http.Client
}

// NewTestContext creates a context with default server settings and a
// recognizer that finds nothing.
func NewTestContext() *TestContext {
	return &TestContext{
		Config:     server.DefaultConfig(),
		Recognizer: testutil.NewFakeRecognizer(),
		client:     &http.Client{},
	}
}

// StartServer starts the HTTP server if it is not running yet.
func (testCtx *TestContext) StartServer() {
	if testCtx.HTTPServer != nil {
		return
	}
	var rec engine.Recognizer
	if !testCtx.Degraded {
		rec = testCtx.Recognizer
	}
	testCtx.HTTPServer = httptest.NewServer(server.New(testCtx.Config, rec).Handler())
}

// URL returns the absolute URL for path on the running server.
func (testCtx *TestContext) URL(path string) string {
	testCtx.StartServer()
	return testCtx.HTTPServer.URL + path
}

// Do sends req and records the response.
func (testCtx *TestContext) Do(req *http.Request) error {
	resp, err := testCtx.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	testCtx.LastStatusCode = resp.StatusCode
	testCtx.LastHeaders = resp.Header
	testCtx.LastBody = body
	testCtx.LastJSON = nil
	if len(body) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(body, &decoded); err == nil {
			testCtx.LastJSON = decoded
		}
	}
	return nil
}

// Cleanup stops the server.
func (testCtx *TestContext) Cleanup() error {
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
		testCtx.HTTPServer = nil
	}
	return nil
}
