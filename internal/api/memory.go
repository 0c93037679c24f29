// ABOUTME: Collective memory endpoints: write, read, delete, history
// ABOUTME: Writers and deleters must be group members; versions are monotonic

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/2389/agent-mesh/internal/memory"
)

type writeMemoryRequest struct {
	AgentID string          `json:"agent_id"`
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
	Type    string          `json:"type,omitempty"`
}

// WriteMemory writes or updates a memory entry in a group's store.
// POST /v1/groups/:group_id/memory
func (h *Handler) WriteMemory(c echo.Context) error {
	var req writeMemoryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.memory.Write(c.Request().Context(), c.Param("group_id"), req.AgentID, req.Key, req.Value, req.Type)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"memory_id": res.MemoryID,
		"version":   res.Version,
	})
}

// ReadMemory lists a group's memory entries.
// Query: keys (comma-separated), type.
// GET /v1/groups/:group_id/memory
func (h *Handler) ReadMemory(c echo.Context) error {
	var opts memory.ReadOptions
	if raw := c.QueryParam("keys"); raw != "" {
		opts.Keys = strings.Split(raw, ",")
	}
	opts.Type = c.QueryParam("type")

	entries, err := h.memory.ReadAll(c.Request().Context(), c.Param("group_id"), opts)
	if err != nil {
		return h.fail(c, err)
	}

	out := make([]memoryJSON, len(entries))
	for i, e := range entries {
		out[i] = toMemoryJSON(e)
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": out})
}

// ReadMemoryKey returns a single memory entry.
// GET /v1/groups/:group_id/memory/:key
func (h *Handler) ReadMemoryKey(c echo.Context) error {
	entry, err := h.memory.ReadOne(c.Request().Context(), c.Param("group_id"), c.Param("key"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toMemoryJSON(entry))
}

// DeleteMemory removes a memory entry. The acting agent comes from the
// agent_id query parameter because DELETE bodies are unreliable.
// DELETE /v1/groups/:group_id/memory/:key
func (h *Handler) DeleteMemory(c echo.Context) error {
	agentID := c.QueryParam("agent_id")
	if agentID == "" {
		return badRequest(c, "agent_id query parameter is required")
	}

	if err := h.memory.Delete(c.Request().Context(), c.Param("group_id"), agentID, c.Param("key")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// MemoryHistory summarizes a key's current version and last writer.
// GET /v1/groups/:group_id/memory/:key/history
func (h *Handler) MemoryHistory(c echo.Context) error {
	hist, err := h.memory.GetHistory(c.Request().Context(), c.Param("group_id"), c.Param("key"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"key":             hist.Key,
		"current_version": hist.CurrentVersion,
		"last_updated":    hist.LastUpdated,
		"last_updated_by": hist.LastUpdatedBy,
	})
}
