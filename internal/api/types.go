// ABOUTME: JSON shapes for API responses
// ABOUTME: Store rows never serialize directly; these are the wire forms

package api

import (
	"encoding/json"
	"time"

	"github.com/2389/agent-mesh/internal/store"
)

type agentJSON struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Endpoint     string    `json:"endpoint,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Online       *bool     `json:"online,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
	CreatedAt    time.Time `json:"created_at"`
}

func toAgentJSON(a *store.Agent) agentJSON {
	return agentJSON{
		ID:           a.ID,
		Name:         a.Name,
		Endpoint:     a.Endpoint,
		Capabilities: a.Capabilities,
		LastSeen:     a.LastSeen,
		CreatedAt:    a.CreatedAt,
	}
}

type skillJSON struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
}

func toSkillJSON(s *store.Skill) skillJSON {
	return skillJSON{
		ID:          s.ID,
		AgentID:     s.AgentID,
		Name:        s.Name,
		Description: s.Description,
		Endpoint:    s.Endpoint,
	}
}

type messageJSON struct {
	ID        string     `json:"id"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	Read      bool       `json:"read"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toMessageJSON(m *store.Message) messageJSON {
	return messageJSON{
		ID:        m.ID,
		From:      m.FromAgent,
		To:        m.ToAgent,
		Content:   m.Content,
		Type:      m.Type,
		Read:      m.Read,
		Status:    m.Status,
		Error:     m.Error,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}

func toMessageListJSON(msgs []*store.Message) []messageJSON {
	out := make([]messageJSON, len(msgs))
	for i, m := range msgs {
		out[i] = toMessageJSON(m)
	}
	return out
}

type groupJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	MemberCount int             `json:"member_count"`
	Role        string          `json:"role,omitempty"`
}

func toGroupJSON(g *store.Group) groupJSON {
	return groupJSON{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Metadata:    g.Metadata,
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
		MemberCount: g.MemberCount,
	}
}

type memberJSON struct {
	agentJSON
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func toMemberJSON(m *store.GroupMember) memberJSON {
	return memberJSON{
		agentJSON: toAgentJSON(&m.Agent),
		Role:      m.Role,
		JoinedAt:  m.JoinedAt,
	}
}

type memoryJSON struct {
	ID        string          `json:"id"`
	GroupID   string          `json:"group_id"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Type      string          `json:"type"`
	Version   int64           `json:"version"`
	AgentID   string          `json:"agent_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toMemoryJSON(e *store.MemoryEntry) memoryJSON {
	return memoryJSON{
		ID:        e.ID,
		GroupID:   e.GroupID,
		Key:       e.Key,
		Value:     e.Value,
		Type:      e.Type,
		Version:   e.Version,
		AgentID:   e.AgentID,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}
