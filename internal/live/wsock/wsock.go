// Package wsock carries live connections over websockets. It owns the socket;
// admission, rooms and delivery belong to the hub.
package wsock

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"apb/internal/live"
	"apb/internal/platform/middleware"
	id "apb/pkg/domain"
	"apb/pkg/requestcontext"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	maxClientFrame      = 4 << 10
)

type Handler struct {
	hub          *live.Hub
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	writeTimeout time.Duration
	pingInterval time.Duration
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

func New(hub *live.Hub, opts ...Option) *Handler {
	h := &Handler{
		hub:          hub,
		logger:       slog.Default(),
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Admission relies on the token alone; no cookies are read.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and runs the connection until either side
// closes it. The credential comes from the token query parameter, the
// Authorization header, or an authenticate frame sent within the admission
// timeout.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		return
	}
	defer ws.Close()

	ctx := context.WithoutCancel(r.Context())
	conn := h.hub.Connect()
	logger := h.logger.With(
		"request_id", requestcontext.RequestID(ctx),
		"connection_id", conn.ID().String(),
		"client", describeClient(r.UserAgent()),
		"client_ip", requestcontext.ClientIP(ctx),
	)

	credential := credentialFrom(r)
	if credential == "" {
		credential, err = h.awaitCredential(ws)
		if err != nil {
			reason := live.ReasonClientGone
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				reason = live.ReasonAdmissionTimeout
			}
			conn.Close(reason)
			h.sendClose(ws, conn.CloseReason())
			logger.InfoContext(ctx, "websocket closed before admission", "reason", string(conn.CloseReason()))
			return
		}
	}

	principal, err := h.hub.Admit(ctx, conn, credential)
	if err != nil {
		h.sendClose(ws, conn.CloseReason())
		return
	}
	logger = logger.With("user_id", principal.UserID.String())

	if err := h.sendAdmitted(ws, conn); err != nil {
		conn.Close(live.ReasonWriteFailed)
		return
	}

	written := make(chan struct{})
	go func() {
		defer close(written)
		h.writeLoop(ws, conn, logger)
	}()
	h.readLoop(ctx, ws, conn, logger)
	<-written
}

// credentialFrom reads the token query parameter or a bearer header.
func credentialFrom(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	if token, ok := middleware.BearerToken(r); ok {
		return token
	}
	return ""
}

// awaitCredential reads frames until an authenticate frame arrives or the
// admission timeout passes.
func (h *Handler) awaitCredential(ws *websocket.Conn) (string, error) {
	ws.SetReadLimit(maxClientFrame)
	if err := ws.SetReadDeadline(time.Now().Add(h.hub.AdmissionTimeout())); err != nil {
		return "", err
	}
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return "", err
		}
		frame, err := decodeClientFrame(data)
		if err != nil || frame.Type != frameAuthenticate {
			continue
		}
		return frame.Token, nil
	}
}

func (h *Handler) sendAdmitted(ws *websocket.Conn, conn *live.Conn) error {
	frame, err := json.Marshal(admittedFrame{
		Type:         frameAdmitted,
		ConnectionID: conn.ID().String(),
		Agencies:     conn.Scopes().IDs(),
	})
	if err != nil {
		return err
	}
	if err := ws.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, frame)
}

// writeLoop is the only writer once the connection is admitted.
func (h *Handler) writeLoop(ws *websocket.Conn, conn *live.Conn, logger *slog.Logger) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			h.sendClose(ws, conn.CloseReason())
			_ = ws.Close()
			return
		case frame := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Info("websocket write failed", "error", err)
				conn.Close(live.ReasonWriteFailed)
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.writeTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				conn.Close(live.ReasonWriteFailed)
			}
		}
	}
}

// readLoop handles client frames until the socket fails, then closes the
// connection.
func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, conn *live.Conn, logger *slog.Logger) {
	defer conn.Close(live.ReasonClientGone)

	pongWait := 2 * h.pingInterval
	ws.SetReadLimit(maxClientFrame)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		frame, err := decodeClientFrame(data)
		if err != nil {
			logger.DebugContext(ctx, "ignoring malformed client frame", "error", err)
			continue
		}
		switch frame.Type {
		case frameView:
			bulletinID, err := id.ParseBulletinID(frame.BulletinID)
			if err != nil {
				continue
			}
			logger.InfoContext(ctx, "bulletin viewed", "bulletin_id", bulletinID.String())
		case frameAuthenticate:
			// already admitted
		default:
			logger.DebugContext(ctx, "ignoring unknown client frame", "type", frame.Type)
		}
	}
}

func (h *Handler) sendClose(ws *websocket.Conn, reason live.CloseReason) {
	code, text := closeCode(reason)
	msg := websocket.FormatCloseMessage(code, text)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
}
