// ABOUTME: Client operations for the agent registry
// ABOUTME: Register, heartbeat, listing, and skill invocation

package client

import (
	"context"
	"net/http"
	"net/url"
)

// SkillSpec declares a skill at registration time.
type SkillSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
}

// RegisterRequest registers or refreshes an agent by name.
type RegisterRequest struct {
	Name         string      `json:"name"`
	Endpoint     string      `json:"endpoint,omitempty"`
	Capabilities []string    `json:"capabilities,omitempty"`
	Skills       []SkillSpec `json:"skills,omitempty"`
}

// RegisterResult is the hub's answer to a registration.
type RegisterResult struct {
	Agent             Agent `json:"agent"`
	IsNewRegistration bool  `json:"is_new_registration"`
}

// Register registers an agent. Registering an existing name keeps its ID.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	var res RegisterResult
	if err := c.do(ctx, http.MethodPost, "/v1/agents/register", nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Heartbeat refreshes the agent's last-seen time.
func (c *Client) Heartbeat(ctx context.Context, agentID string) error {
	return c.do(ctx, http.MethodPost, "/v1/agents/"+url.PathEscape(agentID)+"/heartbeat", nil, nil, nil)
}

// ListAgents returns all registered agents with derived presence.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var res struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/agents", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Agents, nil
}

// GetAgent returns one agent by ID.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var a Agent
	if err := c.do(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(agentID), nil, nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListSkills returns the skills an agent declared.
func (c *Client) ListSkills(ctx context.Context, agentID string) ([]Skill, error) {
	var res struct {
		Skills []Skill `json:"skills"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(agentID)+"/skills", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Skills, nil
}

// InvokeSkill sends a skill invocation message to the target agent.
func (c *Client) InvokeSkill(ctx context.Context, from, to, skill, payload string) (*Message, error) {
	path := "/v1/agents/" + url.PathEscape(to) + "/skills/" + url.PathEscape(skill) + "/invoke"
	var msg Message
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]string{
		"from":    from,
		"payload": payload,
	}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
