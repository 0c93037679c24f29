// ABOUTME: Event stream endpoints: subscriber token minting and WebSocket fan-out
// ABOUTME: Subscribers trade the shared secret for a short-lived token first

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/2389/agent-mesh/internal/auth"
	"github.com/2389/agent-mesh/internal/events"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	// pongWait must exceed pingInterval or healthy connections get dropped.
	pongWait = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type mintTokenRequest struct {
	AgentID string `json:"agent_id"`
}

// MintSubscriberToken issues a short-lived token for the event stream.
// POST /v1/events/token
func (h *Handler) MintSubscriberToken(c echo.Context) error {
	var req mintTokenRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.AgentID == "" {
		return badRequest(c, "agent_id is required")
	}

	if _, err := h.registry.Get(c.Request().Context(), req.AgentID); err != nil {
		return h.fail(c, err)
	}

	token, err := h.tokens.Generate(req.AgentID, auth.DefaultTokenTTL)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(auth.DefaultTokenTTL.Seconds()),
	})
}

// StreamEvents upgrades to a WebSocket and forwards broker events as JSON.
// Query: token (required), types (comma-separated event type filter).
// GET /v1/events
func (h *Handler) StreamEvents(c echo.Context) error {
	agentID, err := h.tokens.Verify(c.QueryParam("token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid subscriber token")
	}

	var wanted map[events.Type]bool
	if raw := c.QueryParam("types"); raw != "" {
		wanted = make(map[events.Type]bool)
		for _, t := range strings.Split(raw, ",") {
			wanted[events.Type(strings.TrimSpace(t))] = true
		}
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return err
	}

	subID, ch := h.broker.Attach()
	h.logger.Info("event subscriber connected", "agent_id", agentID, "subscriber_id", subID)

	go h.streamWriter(ws, subID, ch, wanted)
	go h.streamReader(ws, subID)

	return nil
}

// streamWriter forwards broker events to the socket and keeps it alive with
// pings. It owns all writes to the connection.
func (h *Handler) streamWriter(ws *websocket.Conn, subID string, ch <-chan events.Event, wanted map[events.Type]bool) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case evt, ok := <-ch:
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if wanted != nil && !wanted[evt.Type] {
				continue
			}
			if err := ws.WriteJSON(evt); err != nil {
				h.logger.Debug("event write failed", "subscriber_id", subID, "error", err)
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// streamReader drains the socket to process control frames and detaches the
// subscriber when the peer goes away.
func (h *Handler) streamReader(ws *websocket.Conn, subID string) {
	defer h.broker.Detach(subID)

	ws.SetReadLimit(1024)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("event subscriber read error", "subscriber_id", subID, "error", err)
			}
			return
		}
	}
}
