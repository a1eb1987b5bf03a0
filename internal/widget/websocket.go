package widget

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/support-hub/internal/backend"
	"github.com/ashureev/support-hub/internal/chat"
	"github.com/ashureev/support-hub/internal/domain"
	"github.com/ashureev/support-hub/internal/identity"
	"github.com/coder/websocket"
)

const writeTimeout = 10 * time.Second

// Outgoing frame types.
const (
	frameState = "state"
	frameEvent = "event"
	frameTurn  = "turn"
	frameError = "error"
	framePong  = "pong"
	frameLead  = "lead"
)

// frame is a server to client message.
type frame struct {
	Type  string                `json:"type"`
	State *chat.State           `json:"state,omitempty"`
	Event *chat.Event           `json:"event,omitempty"`
	Turn  *chat.TurnResult      `json:"turn,omitempty"`
	Lead  *backend.LeadResponse `json:"lead,omitempty"`
	Error string                `json:"error,omitempty"`
}

// wsMessage is a client to server message.
type wsMessage struct {
	Type        string              `json:"type"`
	Agent       domain.AgentType    `json:"agent,omitempty"`
	Text        string              `json:"text,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`

	// Lead form fields.
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
}

// WebSocketHandler pushes widget state to the browser and accepts turns.
type WebSocketHandler struct {
	hub           *Hub
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        hub.logger,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, `{"error":"origin not allowed"}`, http.StatusForbidden)
		return
	}

	mgr, err := h.hub.Manager(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error":"widget unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	c := h.hub.conns.Register(userID, ws)
	defer h.hub.conns.Unregister(userID, c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	state := mgr.Snapshot()
	h.reply(c, frame{Type: frameState, State: &state})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		h.writeLoop(ctx, ws, c, userID)
	}()

	h.readLoop(ctx, ws, c, mgr, userID)
	cancel()
	wg.Wait()
	h.logger.Info("Widget session ended", "user_id", userID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop dispatches client messages until the connection ends. Turns run
// concurrently so a slow backend never blocks switches or pings, and outlive
// the connection so their replies are still recorded. readLoop returns only
// after every turn it started has finished.
func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, c *client, mgr *chat.Manager, userID string) {
	var turns sync.WaitGroup
	defer turns.Wait()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				h.logger.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(c, frame{Type: frameError, Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case "ping":
			h.reply(c, frame{Type: framePong})
		case "state":
			state := mgr.Snapshot()
			h.reply(c, frame{Type: frameState, State: &state})
		case "switch":
			if err := mgr.SwitchAgent(msg.Agent); err != nil {
				h.reply(c, frame{Type: frameError, Error: err.Error()})
			}
		case "clear":
			if err := mgr.ClearMessages(msg.Agent); err != nil {
				h.reply(c, frame{Type: frameError, Error: err.Error()})
			}
		case "send":
			h.runTurn(ctx, &turns, c, func(ctx context.Context) (chat.TurnResult, error) {
				return mgr.Send(ctx, msg.Agent, msg.Text, msg.Attachments)
			})
		case "attach":
			h.runTurn(ctx, &turns, c, func(ctx context.Context) (chat.TurnResult, error) {
				return mgr.AttachFiles(ctx, msg.Attachments)
			})
		case "create_ticket":
			h.runTurn(ctx, &turns, c, mgr.RequestTicket)
		case "lead":
			req := backend.LeadRequest{Name: msg.Name, Email: msg.Email, Company: msg.Company}
			turns.Add(1)
			go func() {
				defer turns.Done()
				resp, err := mgr.SubmitLead(context.WithoutCancel(ctx), req)
				if err != nil {
					h.reply(c, frame{Type: frameError, Error: err.Error()})
					return
				}
				h.reply(c, frame{Type: frameLead, Lead: resp})
			}()
		default:
			h.reply(c, frame{Type: frameError, Error: "unknown message type"})
		}
	}
}

// runTurn runs fn in the background, detached from the connection, and
// replies with its result.
func (h *WebSocketHandler) runTurn(ctx context.Context, turns *sync.WaitGroup, c *client, fn func(context.Context) (chat.TurnResult, error)) {
	turns.Add(1)
	go func() {
		defer turns.Done()
		res, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			h.reply(c, frame{Type: frameError, Error: err.Error()})
			return
		}
		h.reply(c, frame{Type: frameTurn, Turn: &res})
	}()
}

// writeLoop drains c's queue onto the socket.
func (h *WebSocketHandler) writeLoop(ctx context.Context, ws *websocket.Conn, c *client, userID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					h.logger.Debug("WebSocket write error", "error", err, "user_id", userID)
				}
				return
			}
		}
	}
}

// reply queues f for this connection only.
func (h *WebSocketHandler) reply(c *client, f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Warn("Failed to marshal widget frame", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("Widget send queue full, dropping reply", "conn_id", c.id)
	}
}
