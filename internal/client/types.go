// ABOUTME: Wire types returned by the mesh API
// ABOUTME: Mirrors the hub's JSON response shapes

package client

import (
	"encoding/json"
	"time"
)

// Agent is a registered mesh participant.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Endpoint     string    `json:"endpoint,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Online       *bool     `json:"online,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
	CreatedAt    time.Time `json:"created_at"`
}

// Skill is a capability an agent declared at registration.
type Skill struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
}

// Message is a routed message with its delivery state.
type Message struct {
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

// Group is a named agent collection.
type Group struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	MemberCount int             `json:"member_count"`
	Role        string          `json:"role,omitempty"`
}

// Member is an agent together with its role in a group.
type Member struct {
	Agent
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// MemoryEntry is a versioned per-group key-value record.
type MemoryEntry struct {
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

// MemoryHistory summarizes a key's current version.
type MemoryHistory struct {
	Key            string    `json:"key"`
	CurrentVersion int64     `json:"current_version"`
	LastUpdated    time.Time `json:"last_updated"`
	LastUpdatedBy  string    `json:"last_updated_by"`
}

// BroadcastResult reports a fan-out send.
type BroadcastResult struct {
	RecipientCount int      `json:"recipient_count"`
	MessageIDs     []string `json:"message_ids"`
}
