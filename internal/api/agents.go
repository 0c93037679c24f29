// ABOUTME: Agent registry endpoints: register, heartbeat, list, get, skills
// ABOUTME: Registration is idempotent by name and preserves agent identity

package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/2389/agent-mesh/internal/registry"
)

type registerRequest struct {
	Name         string         `json:"name"`
	Endpoint     string         `json:"endpoint,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Skills       []skillRequest `json:"skills,omitempty"`
}

type skillRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
}

type registerResponse struct {
	Agent             agentJSON `json:"agent"`
	IsNewRegistration bool      `json:"is_new_registration"`
}

// RegisterAgent registers an agent or refreshes an existing one by name.
// POST /v1/agents/register
func (h *Handler) RegisterAgent(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	skills := make([]registry.SkillSpec, len(req.Skills))
	for i, s := range req.Skills {
		skills[i] = registry.SkillSpec{Name: s.Name, Description: s.Description, Endpoint: s.Endpoint}
	}

	res, err := h.registry.Register(c.Request().Context(), req.Name, req.Endpoint, req.Capabilities, skills)
	if err != nil {
		return h.fail(c, err)
	}

	status := http.StatusOK
	if res.IsNewRegistration {
		status = http.StatusCreated
	}
	return c.JSON(status, registerResponse{
		Agent:             toAgentJSON(res.Agent),
		IsNewRegistration: res.IsNewRegistration,
	})
}

// Heartbeat refreshes an agent's last-seen time.
// POST /v1/agents/:agent_id/heartbeat
func (h *Handler) Heartbeat(c echo.Context) error {
	if err := h.registry.Heartbeat(c.Request().Context(), c.Param("agent_id")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// ListAgents lists all registered agents with derived presence.
// GET /v1/agents
func (h *Handler) ListAgents(c echo.Context) error {
	statuses, err := h.registry.List(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}

	agents := make([]agentJSON, len(statuses))
	for i, s := range statuses {
		a := toAgentJSON(s.Agent)
		online := s.Online
		a.Online = &online
		agents[i] = a
	}
	return c.JSON(http.StatusOK, map[string]any{"agents": agents})
}

// GetAgent returns a single agent by ID.
// GET /v1/agents/:agent_id
func (h *Handler) GetAgent(c echo.Context) error {
	agent, err := h.registry.Get(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toAgentJSON(agent))
}

// ListSkills lists the skills an agent declared at registration.
// GET /v1/agents/:agent_id/skills
func (h *Handler) ListSkills(c echo.Context) error {
	skills, err := h.registry.ListSkills(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return h.fail(c, err)
	}

	out := make([]skillJSON, len(skills))
	for i, s := range skills {
		out[i] = toSkillJSON(s)
	}
	return c.JSON(http.StatusOK, map[string]any{"skills": out})
}
