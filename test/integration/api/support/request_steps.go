package support

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/ocrbridge/internal/server"
	"github.com/MeKo-Tech/ocrbridge/internal/testutil"
)

// pngBytes renders a width x height test image.
func pngBytes(width, height int) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testutil.CreateTestImage(width, height)); err != nil {
		return nil, fmt.Errorf("encode test image: %w", err)
	}
	return buf.Bytes(), nil
}

func (testCtx *TestContext) send(method, path, contentType string, body []byte) error {
	req, err := http.NewRequest(method, testCtx.URL(path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return testCtx.Do(req)
}

func (testCtx *TestContext) iSendARequestTo(method, path string) error {
	return testCtx.send(method, path, "", nil)
}

func (testCtx *TestContext) iSendAPOSTRequestWithBody(path string, body *godog.DocString) error {
	return testCtx.send(http.MethodPost, path, "application/json", []byte(body.Content))
}

func (testCtx *TestContext) iPostAnImageAsBase64(width, height int, path string, dataURL bool, langs string) error {
	data, err := pngBytes(width, height)
	if err != nil {
		return err
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	if dataURL {
		encoded = "data:image/png;base64," + encoded
	}
	payload := map[string]any{"image": encoded}
	if langs != "" {
		payload["languages"] = splitCSV(langs)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return testCtx.send(http.MethodPost, path, "application/json", body)
}

func (testCtx *TestContext) iUploadAnImage(width, height int, path, field string) error {
	data, err := pngBytes(width, height)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "photo.png")
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return testCtx.send(http.MethodPost, path, mw.FormDataContentType(), buf.Bytes())
}

func (testCtx *TestContext) iPostABodyOfMB(mb int, path string) error {
	body := `{"image":"` + strings.Repeat("A", mb*1024*1024) + `"}`
	return testCtx.send(http.MethodPost, path, "application/json", []byte(body))
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastStatusCode != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, testCtx.LastStatusCode, testCtx.LastBody)
	}
	return nil
}

func (testCtx *TestContext) field(name string) (any, error) {
	if testCtx.LastJSON == nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", testCtx.LastBody)
	}
	v, ok := testCtx.LastJSON[name]
	if !ok {
		return nil, fmt.Errorf("response has no field %q: %s", name, testCtx.LastBody)
	}
	return v, nil
}

func (testCtx *TestContext) theJSONFieldShouldBe(name, want string) error {
	v, err := testCtx.field(name)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s to be %q, got %q", name, want, got)
	}
	return nil
}

func (testCtx *TestContext) theMessageShouldStartWith(prefix string) error {
	v, err := testCtx.field("message")
	if err != nil {
		return err
	}
	msg, _ := v.(string)
	if !strings.HasPrefix(msg, prefix) {
		return fmt.Errorf("expected message starting with %q, got %q", prefix, msg)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldHaveDetails(n int) error {
	v, err := testCtx.field("details")
	if err != nil {
		return err
	}
	details, ok := v.([]any)
	if !ok {
		return fmt.Errorf("details is not an array: %v", v)
	}
	if len(details) != n {
		return fmt.Errorf("expected %d details, got %d", n, len(details))
	}
	for i, d := range details {
		entry, _ := d.(map[string]any)
		box, _ := entry["bbox"].([]any)
		if len(box) != 4 {
			return fmt.Errorf("detail %d: expected 4 bbox points, got %v", i, entry["bbox"])
		}
		conf, _ := entry["confidence"].(float64)
		if conf < 0 || conf > 1 {
			return fmt.Errorf("detail %d: confidence %v out of range", i, conf)
		}
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, want string) error {
	if got := testCtx.LastHeaders.Get(name); got != want {
		return fmt.Errorf("expected header %s %q, got %q", name, want, got)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldCarryARequestID() error {
	id := testCtx.LastHeaders.Get(server.RequestIDHeader)
	if id == "" {
		return fmt.Errorf("missing %s header", server.RequestIDHeader)
	}
	if testCtx.LastJSON != nil {
		if body, ok := testCtx.LastJSON["request_id"]; ok && body != id {
			return fmt.Errorf("body request_id %v does not match header %q", body, id)
		}
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldBeEmpty() error {
	if len(testCtx.LastBody) != 0 {
		return fmt.Errorf("expected empty body, got %q", testCtx.LastBody)
	}
	return nil
}

// RegisterRequestSteps registers HTTP request and response steps.
func (testCtx *TestContext) RegisterRequestSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I send a (GET|POST|PUT|DELETE|OPTIONS) request to "([^"]*)"$`, testCtx.iSendARequestTo)
	sc.Step(`^I send a POST request to "([^"]*)" with body:$`, testCtx.iSendAPOSTRequestWithBody)
	sc.Step(`^I post a (\d+)x(\d+) PNG image as base64 to "([^"]*)"$`, func(w, h, path string) error {
		return testCtx.withSize(w, h, func(wi, hi int) error { return testCtx.iPostAnImageAsBase64(wi, hi, path, false, "") })
	})
	sc.Step(`^I post a (\d+)x(\d+) PNG image as a data URL to "([^"]*)"$`, func(w, h, path string) error {
		return testCtx.withSize(w, h, func(wi, hi int) error { return testCtx.iPostAnImageAsBase64(wi, hi, path, true, "") })
	})
	sc.Step(`^I post a (\d+)x(\d+) PNG image as base64 to "([^"]*)" with languages "([^"]*)"$`, func(w, h, path, langs string) error {
		return testCtx.withSize(w, h, func(wi, hi int) error { return testCtx.iPostAnImageAsBase64(wi, hi, path, false, langs) })
	})
	sc.Step(`^I upload a (\d+)x(\d+) PNG image to "([^"]*)" as "([^"]*)"$`, func(w, h, path, field string) error {
		return testCtx.withSize(w, h, func(wi, hi int) error { return testCtx.iUploadAnImage(wi, hi, path, field) })
	})
	sc.Step(`^I post a body of (\d+) MB to "([^"]*)"$`, func(mb, path string) error {
		n, err := atoi(mb)
		if err != nil {
			return err
		}
		return testCtx.iPostABodyOfMB(n, path)
	})

	sc.Step(`^the response status should be (\d+)$`, func(s string) error {
		n, err := atoi(s)
		if err != nil {
			return err
		}
		return testCtx.theResponseStatusShouldBe(n)
	})
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theJSONFieldShouldBe)
	sc.Step(`^the message should start with "([^"]*)"$`, testCtx.theMessageShouldStartWith)
	sc.Step(`^the response should have (\d+) details? with valid boxes$`, func(s string) error {
		n, err := atoi(s)
		if err != nil {
			return err
		}
		return testCtx.theResponseShouldHaveDetails(n)
	})
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the response should carry a request ID$`, testCtx.theResponseShouldCarryARequestID)
	sc.Step(`^the response body should be empty$`, testCtx.theResponseShouldBeEmpty)
}

func (testCtx *TestContext) withSize(ws, hs string, fn func(w, h int) error) error {
	w, err := atoi(ws)
	if err != nil {
		return err
	}
	h, err := atoi(hs)
	if err != nil {
		return err
	}
	return fn(w, h)
}
