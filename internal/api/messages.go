// ABOUTME: Message routing endpoints: send, broadcast, read, status, retry
// ABOUTME: Delivery lifecycle transitions are enforced by the router service

package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/2389/agent-mesh/internal/router"
)

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
	// TimeoutSeconds, when positive, bounds the delivery window.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// SendMessage creates a pending direct message.
// POST /v1/messages
func (h *Handler) SendMessage(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	opts := router.SendOptions{
		Type:    req.Type,
		Timeout: time.Duration(req.TimeoutSeconds) * time.Second,
	}
	msg, err := h.router.Send(c.Request().Context(), req.From, req.To, req.Content, opts)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toMessageJSON(msg))
}

type broadcastRequest struct {
	From    string `json:"from"`
	Content string `json:"content"`
}

// Broadcast fans a message out to every other registered agent.
// POST /v1/messages/broadcast
func (h *Handler) Broadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.router.Broadcast(c.Request().Context(), req.From, req.Content)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"recipient_count": res.RecipientCount,
		"message_ids":     res.MessageIDs,
	})
}

// GetMessages lists messages addressed to an agent, newest first.
// Query: since (RFC 3339, exclusive), unread_only (bool).
// GET /v1/agents/:agent_id/messages
func (h *Handler) GetMessages(c echo.Context) error {
	var opts router.ListOptions
	if raw := c.QueryParam("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return badRequest(c, "since must be an RFC 3339 timestamp")
		}
		opts.Since = &t
	}
	opts.UnreadOnly = c.QueryParam("unread_only") == "true"

	msgs, err := h.router.GetMessages(c.Request().Context(), c.Param("agent_id"), opts)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": toMessageListJSON(msgs)})
}

// MarkRead marks a message as read. Idempotent.
// POST /v1/messages/:message_id/read
func (h *Handler) MarkRead(c echo.Context) error {
	if err := h.router.MarkRead(c.Request().Context(), c.Param("message_id")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

type statusRequest struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// UpdateStatus advances a message along the delivery lifecycle.
// POST /v1/messages/:message_id/status
func (h *Handler) UpdateStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := h.router.UpdateStatus(c.Request().Context(), c.Param("message_id"), req.Status, req.Error); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// ListFailedMessages lists recent failed and timed-out messages for an agent.
// GET /v1/agents/:agent_id/messages/failed
func (h *Handler) ListFailedMessages(c echo.Context) error {
	msgs, err := h.router.ListFailed(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": toMessageListJSON(msgs)})
}

// RetryMessage requeues a failed or timed-out message as pending.
// POST /v1/messages/:message_id/retry
func (h *Handler) RetryMessage(c echo.Context) error {
	if err := h.router.Retry(c.Request().Context(), c.Param("message_id")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

type invokeSkillRequest struct {
	From    string `json:"from"`
	Payload string `json:"payload"`
}

// InvokeSkill sends a skill invocation message to the target agent.
// POST /v1/agents/:agent_id/skills/:skill/invoke
func (h *Handler) InvokeSkill(c echo.Context) error {
	var req invokeSkillRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	msg, err := h.router.InvokeSkill(c.Request().Context(), req.From, c.Param("agent_id"), c.Param("skill"), req.Payload)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toMessageJSON(msg))
}
