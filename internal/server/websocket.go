package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/MeKo-Tech/leafscan/internal/extract"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/product"
	"github.com/MeKo-Tech/leafscan/internal/validate"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocketExtractRequest is one extraction request. Data is the file
// content, base64 encoded in JSON.
type WebSocketExtractRequest struct {
	RequestID  string          `json:"request_id"`
	Filename   string          `json:"filename"`
	Data       []byte          `json:"data"`
	Detections []ocr.Detection `json:"detections,omitempty"`
}

// WebSocketExtractResponse reports progress for a request. Status is
// "processing", "completed" or "error".
type WebSocketExtractResponse struct {
	Type       string              `json:"type"`
	Status     string              `json:"status"`
	RequestID  string              `json:"request_id,omitempty"`
	Extraction *product.Extraction `json:"extraction,omitempty"`
	JSONFile   string              `json:"json_file,omitempty"`
	Error      string              `json:"error,omitempty"`
	ErrorCode  string              `json:"error_code,omitempty"`
}

const wsResponseType = "extract_response"

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.allowedOrigin(origin) != ""
		},
	}
}

// websocketHandler handles GET /ws/extract.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	log.Info().Str("remote_addr", r.RemoteAddr).Msg("WebSocket connection established")
	s.handleWebSocketConnection(r, conn)
}

// handleWebSocketConnection reads requests until the client disconnects.
// Requests on one connection are processed in order.
func (s *Server) handleWebSocketConnection(r *http.Request, conn *websocket.Conn) {
	log := zerolog.Ctx(r.Context())
	conn.SetReadLimit(s.cfg.MaxUploadBytes*4/3 + multipartOverhead)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

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
				log.Warn().Err(err).Msg("WebSocket read failed")
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		if messageType != websocket.TextMessage {
			continue
		}
		if err := s.handleWebSocketMessage(r, conn, data); err != nil {
			log.Warn().Err(err).Msg("WebSocket write failed")
			return
		}
	}
}

// handleWebSocketMessage processes one request. Only write failures are
// returned; request problems are reported to the client.
func (s *Server) handleWebSocketMessage(r *http.Request, conn *websocket.Conn, data []byte) error {
	var req WebSocketExtractRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return s.sendWebSocketError(conn, "", fmt.Sprintf("Failed to parse request: %v", err), CodeInvalidWebSocketIn)
	}

	if err := validate.ValidateUpload(req.Filename, int64(len(req.Data)), s.cfg.AllowedExtensions, s.cfg.MaxUploadBytes); err != nil {
		_, code := classify(err)
		return s.sendWebSocketError(conn, req.RequestID, err.Error(), code)
	}

	if err := s.sendWebSocketResponse(conn, WebSocketExtractResponse{
		Type:      wsResponseType,
		Status:    "processing",
		RequestID: req.RequestID,
	}); err != nil {
		return err
	}

	ext, loc, err := s.runExtraction(r.Context(), "websocket", extract.Input{
		Name:       req.Filename,
		Data:       req.Data,
		Detections: req.Detections,
	})
	if err != nil {
		_, code := extractionStatus(err)
		zerolog.Ctx(r.Context()).Error().Err(err).Str("request_id", req.RequestID).Msg("WebSocket extraction failed")
		return s.sendWebSocketError(conn, req.RequestID, "Extraction failed: "+err.Error(), code)
	}

	return s.sendWebSocketResponse(conn, WebSocketExtractResponse{
		Type:       wsResponseType,
		Status:     "completed",
		RequestID:  req.RequestID,
		Extraction: ext,
		JSONFile:   loc,
	})
}

func (s *Server) sendWebSocketError(conn *websocket.Conn, requestID, message, code string) error {
	return s.sendWebSocketResponse(conn, WebSocketExtractResponse{
		Type:      wsResponseType,
		Status:    "error",
		RequestID: requestID,
		Error:     message,
		ErrorCode: code,
	})
}

func (s *Server) sendWebSocketResponse(conn *websocket.Conn, resp WebSocketExtractResponse) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(resp); err != nil {
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}
