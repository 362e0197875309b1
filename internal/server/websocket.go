package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/ocrbridge/internal/imagedecode"
)

const (
	wsReadTimeout  = 60 * time.Second // per idle read, renewed after each frame
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy mirrors the CORS setting, which defaults to "*".
		return true
	},
}

// WebSocketOCRRequest is one text frame sent by a client on /ws/ocr.
type WebSocketOCRRequest struct {
	ID string `json:"id" validate:"max=128"`
	OCRRequest
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

type wsResult struct {
	ID string `json:"id"`
	OCRResponse
}

type wsError struct {
	ID string `json:"id"`
	ErrorResponse
}

// ocrWebSocketHandler upgrades the connection and serves OCR frames until
// the client disconnects.
func (s *Server) ocrWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr,
		"request_id", RequestIDFromContext(r.Context()))

	// Base64 inflates payloads by a third.
	conn.SetReadLimit(s.maxUploadBytes()*4/3 + 4096)
	s.handleWebSocketConnection(conn, getClientIP(r))
}

// handleWebSocketConnection reads frames with a ping/pong keepalive.
func (s *Server) handleWebSocketConnection(conn *websocket.Conn, clientIP string) {
	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(s.wsReadTimeout))
	}
	_ = extend()
	conn.SetPongHandler(func(string) error { return extend() })

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType != websocket.TextMessage {
			s.sendWebSocketError(conn, "", http.StatusBadRequest, "Only text frames are supported")
			continue
		}
		if s.rateLimiter != nil {
			if err := s.rateLimiter.CheckRateLimit(clientIP, int64(len(data))); err != nil {
				rateLimitHits.WithLabelValues("websocket").Inc()
				s.sendWebSocketError(conn, "", http.StatusTooManyRequests, "Rate limit exceeded: "+err.Error())
				continue
			}
		}
		s.handleWebSocketMessage(conn, data)
		// Pongs are not processed while OCR runs.
		_ = extend()
	}
}

// handleWebSocketMessage runs OCR for one frame and writes the reply.
func (s *Server) handleWebSocketMessage(conn WebSocketConnWriter, data []byte) {
	start := time.Now()

	var req WebSocketOCRRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", http.StatusBadRequest, prefixInvalidJSON+err.Error())
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if !s.ModelLoaded() {
		ocrRequestsTotal.WithLabelValues("websocket", "unavailable").Inc()
		s.sendWebSocketError(conn, req.ID, http.StatusInternalServerError, msgModelNotLoaded)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		e := validationError(err)
		s.sendWebSocketError(conn, req.ID, e.status, e.message)
		return
	}

	langs, apiErr := s.resolveLanguages(req.Languages)
	if apiErr != nil {
		s.sendWebSocketError(conn, req.ID, apiErr.status, apiErr.message)
		return
	}

	frame, err := imagedecode.DecodeBase64(req.Image, s.decodeOpts)
	if err != nil {
		ocrRequestsTotal.WithLabelValues("websocket", "client_error").Inc()
		s.sendWebSocketError(conn, req.ID, http.StatusBadRequest, prefixDecodeJSON+err.Error())
		return
	}

	resp, apiErr := s.runOCR(contextWithRequestID(req.ID), frame, langs, "websocket")
	if apiErr != nil {
		ocrRequestsTotal.WithLabelValues("websocket", "error").Inc()
		s.sendWebSocketError(conn, req.ID, apiErr.status, apiErr.message)
		return
	}
	resp.ProcessingMs = time.Since(start).Milliseconds()
	resp.RequestID = req.ID
	s.sendWebSocket(conn, wsResult{ID: req.ID, OCRResponse: resp})
}

func (s *Server) sendWebSocketError(conn WebSocketConnWriter, id string, status int, message string) {
	slog.Debug("WebSocket request failed", "id", id, "status", status, "message", message)
	s.sendWebSocket(conn, wsError{ID: id, ErrorResponse: ErrorResponse{Success: false, Message: message, RequestID: id}})
}

func (s *Server) sendWebSocket(conn WebSocketConnWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", fmt.Errorf("write: %w", err))
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
