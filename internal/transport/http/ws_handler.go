package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"green-assessment-service/internal/app"
)

type WSHandler struct {
	service  *app.AssessmentService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AssessmentService, logger *zap.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		_, wildcard := set["*"]
		return ok || wildcard
	}
}

type inboundMessage struct {
	Type string `json:"type"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type chunkPayload struct {
	Text       string `json:"text"`
	Generation uint64 `json:"generation"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ServeWS upgrades HTTP requests to websockets, pushes session events and
// accepts {"type":"recommend"} to start the streamed recommendation fetch.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}

	updates, cancel, err := h.service.Subscribe(r.Context(), sessionID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws_upgrade_failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		case <-closeSignals:
		}
	}

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					h.logger.Debug("ws_write_failed", zap.String("session", sessionID), zap.Error(err))
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					// session deleted or evicted: end the socket so the reader unblocks
					deadline := time.Now().Add(time.Second)
					msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed")
					_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
					_ = conn.Close()
					return
				}
				push(toOutbound(ev))
			case <-closeSignals:
				return
			}
		}
	}()

	// fetches outlive the socket; their results land on the session
	fetchCtx := context.WithoutCancel(r.Context())

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "recommend":
			go func() {
				if _, err := h.service.GenerateRecommendations(fetchCtx, sessionID); err != nil {
					_, code := statusFor(err)
					push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error(), Code: code}})
				}
			}()
		default:
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	<-writerDone
}

func toOutbound(ev app.Event) outboundMessage[any] {
	if ev.Type == app.EventChunk {
		return outboundMessage[any]{Type: string(ev.Type), Payload: chunkPayload{Text: ev.Chunk, Generation: ev.Session.Generation}}
	}
	return outboundMessage[any]{Type: string(ev.Type), Payload: ev.Session}
}
