// ABOUTME: Group and membership manager with group-scoped broadcast
// ABOUTME: Enforces unique membership pairs and role assignment

package groups

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agent-mesh/internal/apperr"
	"github.com/2389/agent-mesh/internal/events"
	"github.com/2389/agent-mesh/internal/store"
)

// GroupDetail is a group joined with its full member rows.
type GroupDetail struct {
	*store.Group
	Members []*store.GroupMember
}

// Service implements the group and membership manager.
type Service struct {
	store  store.Store
	broker *events.Broker
	logger *slog.Logger
}

// New creates a group service.
func New(st store.Store, broker *events.Broker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		broker: broker,
		logger: logger.With("component", "groups"),
	}
}

// Create makes a new group, enrolls the creator as its first admin member,
// and emits group_created. Group names carry no uniqueness constraint.
func (s *Service) Create(ctx context.Context, name, description, createdBy string, metadata json.RawMessage) (*store.Group, error) {
	if name == "" {
		return nil, apperr.New(apperr.CodeValidation, "group name is required")
	}
	if createdBy == "" {
		return nil, apperr.New(apperr.CodeValidation, "creator agent id is required")
	}

	group := &store.Group{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Metadata:    metadata,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "creating group %q", name)
	}

	// The creator joins immediately so it can write group memory without a
	// separate addMember call. A vanished creator agent surfaces as NotFound.
	err := s.store.AddMember(ctx, &store.Membership{
		GroupID:  group.ID,
		AgentID:  createdBy,
		Role:     store.RoleAdmin,
		JoinedAt: group.CreatedAt,
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "creator agent %s not found", createdBy)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "enrolling creator in group %q", name)
	}

	s.logger.Info("group created", "group_id", group.ID, "name", name, "created_by", createdBy)
	s.broker.Publish(events.Event{
		Type: events.TypeGroupCreated,
		Payload: map[string]any{
			"group_id":   group.ID,
			"name":       name,
			"created_by": createdBy,
		},
	})
	return group, nil
}

// AddMember joins an agent to a group with a role. A missing group or agent
// is NotFound; an existing pair is Conflict.
func (s *Service) AddMember(ctx context.Context, groupID, agentID, role string) error {
	switch role {
	case "":
		role = store.RoleMember
	case store.RoleMember, store.RoleAdmin, store.RoleObserver:
	default:
		return apperr.New(apperr.CodeValidation, "unknown role %q", role)
	}

	err := s.store.AddMember(ctx, &store.Membership{
		GroupID:  groupID,
		AgentID:  agentID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Wrap(apperr.CodeNotFound, err, "adding member")
	}
	if errors.Is(err, store.ErrDuplicateMember) {
		return apperr.New(apperr.CodeConflict, "agent %s is already a member of group %s", agentID, groupID)
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "adding member")
	}

	s.broker.Publish(events.Event{
		Type: events.TypeGroupMemberAdded,
		Payload: map[string]any{
			"group_id": groupID,
			"agent_id": agentID,
			"role":     role,
		},
	})
	return nil
}

// RemoveMember deletes a membership pair and emits group_member_removed.
func (s *Service) RemoveMember(ctx context.Context, groupID, agentID string) error {
	err := s.store.RemoveMember(ctx, groupID, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "agent %s is not a member of group %s", agentID, groupID)
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "removing member")
	}

	s.broker.Publish(events.Event{
		Type: events.TypeGroupMemberRemoved,
		Payload: map[string]any{
			"group_id": groupID,
			"agent_id": agentID,
		},
	})
	return nil
}

// Get returns a group with member count and full member rows.
func (s *Service) Get(ctx context.Context, groupID string) (*GroupDetail, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "group %s not found", groupID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "getting group")
	}

	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "listing members")
	}
	return &GroupDetail{Group: group, Members: members}, nil
}

// List returns all groups with member counts, newest first.
func (s *Service) List(ctx context.Context) ([]*store.Group, error) {
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "listing groups")
	}
	return groups, nil
}

// ListForAgent returns the groups an agent belongs to with its role in each.
func (s *Service) ListForAgent(ctx context.Context, agentID string) ([]*store.AgentGroup, error) {
	if agentID == "" {
		return nil, apperr.New(apperr.CodeValidation, "agent id is required")
	}
	groups, err := s.store.ListGroupsForAgent(ctx, agentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "listing groups for agent")
	}
	return groups, nil
}

// ListMembers returns a group's members joined with their roles.
func (s *Service) ListMembers(ctx context.Context, groupID string) ([]*store.GroupMember, error) {
	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "listing members")
	}
	return members, nil
}

// Broadcast sends content to every member of a group except the sender.
// Group broadcasts are considered pre-delivered: each created message starts
// in status delivered, unlike direct sends which start pending. An empty
// recipient set is NotFound. A single group_broadcast event carries the
// aggregate recipient count.
func (s *Service) Broadcast(ctx context.Context, groupID, from, content, messageType string) ([]string, error) {
	if from == "" || content == "" {
		return nil, apperr.New(apperr.CodeValidation, "from and content are required")
	}
	if messageType == "" {
		messageType = store.MessageTypeBroadcast
	}
	switch messageType {
	case store.MessageTypeDirect, store.MessageTypeBroadcast, store.MessageTypeSkillInvocation:
	default:
		return nil, apperr.New(apperr.CodeValidation, "unknown message type %q", messageType)
	}

	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "listing members")
	}

	now := time.Now().UTC()
	var msgs []*store.Message
	for _, member := range members {
		if member.Agent.ID == from {
			continue
		}
		msgs = append(msgs, &store.Message{
			ID:        uuid.New().String(),
			FromAgent: from,
			ToAgent:   member.Agent.ID,
			Content:   content,
			Type:      messageType,
			Status:    store.StatusDelivered,
			CreatedAt: now,
		})
	}
	if len(msgs) == 0 {
		return nil, apperr.New(apperr.CodeNotFound, "group %s has no other members", groupID)
	}

	if err := s.store.CreateMessages(ctx, msgs); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "creating group broadcast messages")
	}

	ids := make([]string, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}

	s.logger.Info("group broadcast sent", "group_id", groupID, "from", from, "recipients", len(msgs))
	s.broker.Publish(events.Event{
		Type: events.TypeGroupBroadcast,
		Payload: map[string]any{
			"group_id":        groupID,
			"from":            from,
			"recipient_count": len(msgs),
		},
	})
	return ids, nil
}
