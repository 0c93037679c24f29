// ABOUTME: Agent registry with identity-preserving registration and presence tracking
// ABOUTME: Names map to stable agent ids for the lifetime of the system

package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agent-mesh/internal/apperr"
	"github.com/2389/agent-mesh/internal/events"
	"github.com/2389/agent-mesh/internal/store"
)

// DefaultPresenceAge is the last-seen age under which an agent counts as
// online. Presence is derived, never stored.
const DefaultPresenceAge = 5 * time.Minute

// SkillSpec describes a skill declared at registration time.
type SkillSpec struct {
	Name        string
	Description string
	Endpoint    string
}

// RegisterResult reports the outcome of a registration.
type RegisterResult struct {
	Agent             *store.Agent
	IsNewRegistration bool
}

// AgentStatus is an agent with its derived presence.
type AgentStatus struct {
	*store.Agent
	Online bool
}

// Service implements the agent registry.
type Service struct {
	store       store.Store
	broker      *events.Broker
	presenceAge time.Duration
	logger      *slog.Logger
}

// New creates a registry service. A zero presenceAge falls back to
// DefaultPresenceAge.
func New(st store.Store, broker *events.Broker, presenceAge time.Duration, logger *slog.Logger) *Service {
	if presenceAge <= 0 {
		presenceAge = DefaultPresenceAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		broker:      broker,
		presenceAge: presenceAge,
		logger:      logger.With("component", "registry"),
	}
}

// Register registers an agent by name, preserving identity across calls.
// Repeated registration with the same name returns the same agent id, updates
// the endpoint (when non-empty), replaces capabilities and skills wholesale,
// and advances last_seen. Only a first registration emits agent_joined.
func (s *Service) Register(ctx context.Context, name, endpoint string, capabilities []string, skills []SkillSpec) (*RegisterResult, error) {
	if name == "" {
		return nil, apperr.New(apperr.CodeValidation, "agent name is required")
	}

	now := time.Now().UTC()
	agent := &store.Agent{
		ID:           uuid.New().String(),
		Name:         name,
		Endpoint:     endpoint,
		Capabilities: capabilities,
		LastSeen:     now,
		CreatedAt:    now,
	}

	skillRows := make([]*store.Skill, len(skills))
	for i, spec := range skills {
		skillRows[i] = &store.Skill{
			ID:          uuid.New().String(),
			Name:        spec.Name,
			Description: spec.Description,
			Endpoint:    spec.Endpoint,
			CreatedAt:   now,
		}
	}

	stored, existing, err := s.store.RegisterAgent(ctx, agent, skillRows)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "registering agent %q", name)
	}

	if !existing {
		s.logger.Info("agent joined", "agent_id", stored.ID, "name", stored.Name)
		s.broker.Publish(events.Event{
			Type: events.TypeAgentJoined,
			Payload: map[string]any{
				"agent_id": stored.ID,
				"name":     stored.Name,
			},
		})
	}

	return &RegisterResult{Agent: stored, IsNewRegistration: !existing}, nil
}

// Heartbeat advances an agent's last_seen to now. An unknown id is a NotFound
// error; callers that prefer fire-and-forget semantics may ignore it.
func (s *Service) Heartbeat(ctx context.Context, agentID string) error {
	err := s.store.TouchAgent(ctx, agentID, time.Now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "agent %s not found", agentID)
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "recording heartbeat")
	}
	return nil
}

// List returns all agents with derived presence, most recently active first.
func (s *Service) List(ctx context.Context) ([]*AgentStatus, error) {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "listing agents")
	}

	now := time.Now()
	statuses := make([]*AgentStatus, len(agents))
	for i, agent := range agents {
		statuses[i] = &AgentStatus{
			Agent:  agent,
			Online: now.Sub(agent.LastSeen) < s.presenceAge,
		}
	}
	return statuses, nil
}

// Get returns a single agent by id.
func (s *Service) Get(ctx context.Context, id string) (*store.Agent, error) {
	agent, err := s.store.GetAgent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "agent %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "getting agent")
	}
	return agent, nil
}

// ListSkills returns the skills of one agent, or of the whole mesh when
// agentID is empty.
func (s *Service) ListSkills(ctx context.Context, agentID string) ([]*store.Skill, error) {
	skills, err := s.store.ListSkills(ctx, agentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "listing skills")
	}
	return skills, nil
}
