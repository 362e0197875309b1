package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ocrbridge/internal/testutil"
)

// recordingConn captures messages written by the WebSocket handlers.
type recordingConn struct {
	messages [][]byte
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	c.messages = append(c.messages, data)
	return nil
}

func (c *recordingConn) last(t *testing.T) map[string]any {
	t.Helper()
	require.NotEmpty(t, c.messages)
	var out map[string]any
	require.NoError(t, json.Unmarshal(c.messages[len(c.messages)-1], &out))
	return out
}

func TestHandleWebSocketMessage(t *testing.T) {
	rec := testutil.NewFakeRecognizer(testutil.SampleRegions()...)
	s := New(DefaultConfig(), rec)
	conn := &recordingConn{}

	msg, err := json.Marshal(map[string]any{"id": "frame-1", "image": pngPayload(t), "languages": []string{"en"}})
	require.NoError(t, err)
	s.handleWebSocketMessage(conn, msg)

	out := conn.last(t)
	assert.Equal(t, "frame-1", out["id"])
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Hello สวัสดี", out["text"])
	assert.EqualValues(t, 3, out["total_regions"])
	assert.Equal(t, []any{"en"}, out["languages_used"])
	assert.Equal(t, 1, rec.Calls())
}

func TestHandleWebSocketMessage_Errors(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantID      string
		wantMessage string
	}{
		{name: "invalid json", payload: "{", wantMessage: prefixInvalidJSON},
		{name: "missing image", payload: `{"id":"a"}`, wantID: "a", wantMessage: msgNoImageData},
		{name: "bad base64", payload: `{"id":"b","image":"not-base64!!"}`, wantID: "b", wantMessage: prefixDecodeJSON},
		{name: "bad language", payload: `{"id":"c","image":"aGVsbG8=","languages":["xx"]}`, wantID: "c", wantMessage: prefixInvalidLangs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.NewFakeRecognizer()
			s := New(DefaultConfig(), rec)
			conn := &recordingConn{}

			s.handleWebSocketMessage(conn, []byte(tt.payload))

			out := conn.last(t)
			assert.Equal(t, false, out["success"])
			assert.True(t, strings.HasPrefix(out["message"].(string), tt.wantMessage), out["message"])
			if tt.wantID != "" {
				assert.Equal(t, tt.wantID, out["id"])
			}
			assert.Zero(t, rec.Calls())
		})
	}
}

func TestHandleWebSocketMessage_ModelNotLoaded(t *testing.T) {
	s := New(DefaultConfig(), nil)
	conn := &recordingConn{}

	s.handleWebSocketMessage(conn, []byte(`{"id":"x","image":"aGVsbG8="}`))

	out := conn.last(t)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, msgModelNotLoaded, out["message"])
}

func TestHandleWebSocketMessage_GeneratesID(t *testing.T) {
	s := New(DefaultConfig(), testutil.NewFakeRecognizer())
	conn := &recordingConn{}

	s.handleWebSocketMessage(conn, []byte(`{"image":"`+pngPayload(t)+`"}`))

	out := conn.last(t)
	assert.NotEmpty(t, out["id"])
	assert.Equal(t, out["id"], out["request_id"])
}

func TestOCRWebSocket_RoundTrip(t *testing.T) {
	rec := testutil.NewFakeRecognizer(testutil.SampleRegions()...)
	srv := httptest.NewServer(New(DefaultConfig(), rec).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/ocr"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	for i, id := range []string{"one", "two"} {
		require.NoError(t, conn.WriteJSON(map[string]any{"id": id, "image": pngPayload(t)}))
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		var out map[string]any
		require.NoError(t, conn.ReadJSON(&out))
		assert.Equal(t, id, out["id"])
		assert.Equal(t, true, out["success"])
		assert.Equal(t, i+1, rec.Calls())
	}

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	var out map[string]any
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, false, out["success"])
}

func TestOCRWebSocket_SlowFrameKeepsConnection(t *testing.T) {
	rec := testutil.NewFakeRecognizer(testutil.SampleRegions()...)
	rec.Delay = 300 * time.Millisecond
	s := New(DefaultConfig(), rec)
	s.wsReadTimeout = 100 * time.Millisecond
	payload := pngPayload(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/ocr"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	// Each frame outlasts the read timeout.
	for _, id := range []string{"slow-1", "slow-2"} {
		require.NoError(t, conn.WriteJSON(map[string]any{"id": id, "image": payload}))
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		var out map[string]any
		require.NoError(t, conn.ReadJSON(&out))
		assert.Equal(t, id, out["id"])
		assert.Equal(t, true, out["success"])
	}
	assert.Equal(t, 2, rec.Calls())
}

func TestOCRWebSocket_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WebSocketEnabled = false
	srv := httptest.NewServer(New(cfg, testutil.NewFakeRecognizer()).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/ocr"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, 404, resp.StatusCode)
}
