// ABOUTME: Store interface and data types for agent-mesh persistence
// ABOUTME: Defines Agent, Message, Group, MemoryEntry structs and the Store interface

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateMember is returned when adding a (group, agent) pair that already exists
var ErrDuplicateMember = errors.New("member already in group")

// ErrIllegalTransition is returned when a message status update is not permitted
// from the message's current status
var ErrIllegalTransition = errors.New("illegal status transition")

// ErrReadonlyEntry is returned when a non-creator writes or deletes a readonly memory entry
var ErrReadonlyEntry = errors.New("readonly entry owned by another agent")

// Message status constants. A message rests in exactly one of these states;
// completed, failed, and timeout are terminal except for retry, which resets
// failed/timeout back to pending.
const (
	StatusPending    = "pending"
	StatusDelivered  = "delivered"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusTimeout    = "timeout"
)

// MessageType constants for message types
const (
	MessageTypeDirect          = "direct"
	MessageTypeBroadcast       = "broadcast"
	MessageTypeSkillInvocation = "skill_invocation"
)

// Membership role constants
const (
	RoleMember   = "member"
	RoleAdmin    = "admin"
	RoleObserver = "observer"
)

// Memory type constants. Readonly entries may only be rewritten or deleted by
// the agent that created them.
const (
	MemoryTypeShared   = "shared"
	MemoryTypeReadonly = "readonly"
)

// Agent represents a registered agent process. Name uniquely determines ID
// for the lifetime of the system; re-registration with the same name never
// creates a second record.
type Agent struct {
	ID           string
	Name         string
	Endpoint     string
	Capabilities []string
	LastSeen     time.Time
	CreatedAt    time.Time
}

// Skill represents a capability an agent declared at registration time.
type Skill struct {
	ID          string
	AgentID     string
	Name        string
	Description string
	Endpoint    string
	CreatedAt   time.Time
}

// Message represents a single agent-to-agent message and its delivery state.
type Message struct {
	ID        string
	FromAgent string
	ToAgent   string
	Content   string
	Type      string // "direct", "broadcast", "skill_invocation"
	Read      bool
	Status    string
	Error     string // last failure detail, empty unless failed/timeout
	// ExpiresAt is set when the sender requested a delivery timeout.
	// Messages without it are never auto-timed-out by the sweep.
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Group represents a named collection of agents.
type Group struct {
	ID          string
	Name        string
	Description string
	Metadata    json.RawMessage
	CreatedBy   string
	CreatedAt   time.Time

	// MemberCount is populated by list/get queries, not persisted.
	MemberCount int
}

// Membership links an agent to a group with a role.
type Membership struct {
	GroupID  string
	AgentID  string
	Role     string // "member", "admin", "observer"
	JoinedAt time.Time
}

// GroupMember is an agent row joined with its membership in a group.
type GroupMember struct {
	Agent
	Role     string
	JoinedAt time.Time
}

// AgentGroup is a group row joined with the agent's role in it.
type AgentGroup struct {
	Group
	Role string
}

// MemoryEntry is a per-group versioned key-value record. Version starts at 1
// and increments by exactly 1 on every successful write to the same key.
// AgentID is the last writer; for readonly entries it is always the creator.
type MemoryEntry struct {
	ID        string
	GroupID   string
	Key       string
	Value     json.RawMessage
	Type      string // "shared", "readonly"
	Version   int64
	AgentID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageFilter narrows ListMessages results.
type MessageFilter struct {
	ToAgent    string
	Since      *time.Time // exclusive lower bound on created_at
	UnreadOnly bool
}

// MemoryFilter narrows ListMemory results.
type MemoryFilter struct {
	Keys []string
	Type string
}

// Store defines the interface for agent-mesh persistence. All read-modify-write
// sequences (registration upsert, version increment, status transition) are
// atomic with respect to concurrent writers of the same record.
type Store interface {
	// Agents
	RegisterAgent(ctx context.Context, agent *Agent, skills []*Skill) (stored *Agent, existing bool, err error)
	GetAgent(ctx context.Context, id string) (*Agent, error)
	GetAgentByName(ctx context.Context, name string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
	TouchAgent(ctx context.Context, id string, seen time.Time) error
	ListSkills(ctx context.Context, agentID string) ([]*Skill, error)

	// Messages
	CreateMessage(ctx context.Context, msg *Message) error
	CreateMessages(ctx context.Context, msgs []*Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, filter MessageFilter) ([]*Message, error)
	MarkMessageRead(ctx context.Context, id string) error
	TransitionMessage(ctx context.Context, id, toStatus, errText string, allowedFrom []string) error
	ListFailedMessages(ctx context.Context, toAgent string, limit int) ([]*Message, error)
	ListExpiredMessages(ctx context.Context, now time.Time) ([]*Message, error)

	// Groups and membership
	CreateGroup(ctx context.Context, group *Group) error
	GetGroup(ctx context.Context, id string) (*Group, error)
	ListGroups(ctx context.Context) ([]*Group, error)
	AddMember(ctx context.Context, m *Membership) error
	RemoveMember(ctx context.Context, groupID, agentID string) error
	ListMembers(ctx context.Context, groupID string) ([]*GroupMember, error)
	ListGroupsForAgent(ctx context.Context, agentID string) ([]*AgentGroup, error)
	GetMembership(ctx context.Context, groupID, agentID string) (*Membership, error)

	// Collective memory
	WriteMemory(ctx context.Context, groupID, key string, value json.RawMessage, memType, agentID string) (*MemoryEntry, error)
	GetMemory(ctx context.Context, groupID, key string) (*MemoryEntry, error)
	ListMemory(ctx context.Context, groupID string, filter MemoryFilter) ([]*MemoryEntry, error)
	DeleteMemory(ctx context.Context, groupID, key, agentID string) error

	// Close releases the underlying database handle
	Close() error
}
