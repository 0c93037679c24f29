// ABOUTME: Group endpoints: create, membership, listing, group broadcast
// ABOUTME: Group broadcasts exclude the sender and start delivered

package api

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

type createGroupRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	CreatedBy   string          `json:"created_by"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// CreateGroup creates a group; the creator becomes its first admin member.
// POST /v1/groups
func (h *Handler) CreateGroup(c echo.Context) error {
	var req createGroupRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	group, err := h.groups.Create(c.Request().Context(), req.Name, req.Description, req.CreatedBy, req.Metadata)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toGroupJSON(group))
}

// ListGroups lists all groups with member counts.
// GET /v1/groups
func (h *Handler) ListGroups(c echo.Context) error {
	list, err := h.groups.List(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}

	out := make([]groupJSON, len(list))
	for i, g := range list {
		out[i] = toGroupJSON(g)
	}
	return c.JSON(http.StatusOK, map[string]any{"groups": out})
}

// GetGroup returns a group with its member roster.
// GET /v1/groups/:group_id
func (h *Handler) GetGroup(c echo.Context) error {
	detail, err := h.groups.Get(c.Request().Context(), c.Param("group_id"))
	if err != nil {
		return h.fail(c, err)
	}

	members := make([]memberJSON, len(detail.Members))
	for i, m := range detail.Members {
		members[i] = toMemberJSON(m)
	}
	resp := struct {
		groupJSON
		Members []memberJSON `json:"members"`
	}{toGroupJSON(detail.Group), members}
	return c.JSON(http.StatusOK, resp)
}

type addMemberRequest struct {
	AgentID string `json:"agent_id"`
	Role    string `json:"role,omitempty"`
}

// AddMember adds an agent to a group.
// POST /v1/groups/:group_id/members
func (h *Handler) AddMember(c echo.Context) error {
	var req addMemberRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := h.groups.AddMember(c.Request().Context(), c.Param("group_id"), req.AgentID, req.Role); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]bool{"ok": true})
}

// RemoveMember removes an agent from a group.
// DELETE /v1/groups/:group_id/members/:agent_id
func (h *Handler) RemoveMember(c echo.Context) error {
	if err := h.groups.RemoveMember(c.Request().Context(), c.Param("group_id"), c.Param("agent_id")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// ListMembers lists a group's members with roles.
// GET /v1/groups/:group_id/members
func (h *Handler) ListMembers(c echo.Context) error {
	members, err := h.groups.ListMembers(c.Request().Context(), c.Param("group_id"))
	if err != nil {
		return h.fail(c, err)
	}

	out := make([]memberJSON, len(members))
	for i, m := range members {
		out[i] = toMemberJSON(m)
	}
	return c.JSON(http.StatusOK, map[string]any{"members": out})
}

// ListAgentGroups lists the groups an agent belongs to, with its role.
// GET /v1/agents/:agent_id/groups
func (h *Handler) ListAgentGroups(c echo.Context) error {
	list, err := h.groups.ListForAgent(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return h.fail(c, err)
	}

	out := make([]groupJSON, len(list))
	for i, ag := range list {
		g := toGroupJSON(&ag.Group)
		g.Role = ag.Role
		out[i] = g
	}
	return c.JSON(http.StatusOK, map[string]any{"groups": out})
}

type groupBroadcastRequest struct {
	From    string `json:"from"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

// GroupBroadcast sends a message to every member of a group except the sender.
// POST /v1/groups/:group_id/broadcast
func (h *Handler) GroupBroadcast(c echo.Context) error {
	var req groupBroadcastRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ids, err := h.groups.Broadcast(c.Request().Context(), c.Param("group_id"), req.From, req.Content, req.Type)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"recipient_count": len(ids),
		"message_ids":     ids,
	})
}
