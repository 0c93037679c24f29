// ABOUTME: Message router implementing the delivery status lifecycle
// ABOUTME: Direct send, broadcast, skill invocation, status transitions, and retry

package router

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

// failedListLimit caps ListFailed results.
const failedListLimit = 50

// legalTransitions maps a target status to the statuses it may be entered
// from via UpdateStatus. Pending is reachable only through Retry, which is
// the single backward edge out of the terminal failed/timeout states.
var legalTransitions = map[string][]string{
	store.StatusDelivered:  {store.StatusPending},
	store.StatusProcessing: {store.StatusDelivered},
	store.StatusCompleted:  {store.StatusProcessing},
	store.StatusFailed:     {store.StatusPending, store.StatusProcessing},
	store.StatusTimeout:    {store.StatusPending, store.StatusProcessing},
}

// SendOptions tunes a direct send.
type SendOptions struct {
	// Type overrides the message type; defaults to direct.
	Type string
	// Timeout, when positive, makes the message eligible for the sweep
	// once the window elapses. Zero means never auto-timed-out.
	Timeout time.Duration
}

// BroadcastResult reports a fan-out send.
type BroadcastResult struct {
	RecipientCount int
	MessageIDs     []string
}

// ListOptions narrows GetMessages results.
type ListOptions struct {
	Since      *time.Time
	UnreadOnly bool
}

// Service implements the message router.
type Service struct {
	store  store.Store
	broker *events.Broker
	logger *slog.Logger
}

// New creates a router service.
func New(st store.Store, broker *events.Broker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		broker: broker,
		logger: logger.With("component", "router"),
	}
}

// Send creates a pending message from one agent to another and emits
// new_message.
func (s *Service) Send(ctx context.Context, from, to, content string, opts SendOptions) (*store.Message, error) {
	if from == "" || to == "" || content == "" {
		return nil, apperr.New(apperr.CodeValidation, "from, to, and content are required")
	}

	msgType := opts.Type
	if msgType == "" {
		msgType = store.MessageTypeDirect
	}
	switch msgType {
	case store.MessageTypeDirect, store.MessageTypeBroadcast, store.MessageTypeSkillInvocation:
	default:
		return nil, apperr.New(apperr.CodeValidation, "unknown message type %q", msgType)
	}

	now := time.Now().UTC()
	msg := &store.Message{
		ID:        uuid.New().String(),
		FromAgent: from,
		ToAgent:   to,
		Content:   content,
		Type:      msgType,
		Status:    store.StatusPending,
		CreatedAt: now,
	}
	if opts.Timeout > 0 {
		expires := now.Add(opts.Timeout)
		msg.ExpiresAt = &expires
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "creating message")
	}

	s.broker.Publish(events.Event{
		Type: events.TypeNewMessage,
		Payload: map[string]any{
			"message_id": msg.ID,
			"from":       msg.FromAgent,
			"to":         msg.ToAgent,
			"type":       msg.Type,
		},
	})
	return msg, nil
}

// InvokeSkill sends a skill_invocation message after checking that the target
// agent actually declared the named skill.
func (s *Service) InvokeSkill(ctx context.Context, from, to, skill, payload string) (*store.Message, error) {
	if skill == "" {
		return nil, apperr.New(apperr.CodeValidation, "skill name is required")
	}

	skills, err := s.store.ListSkills(ctx, to)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "listing skills for agent %s", to)
	}
	found := false
	for _, sk := range skills {
		if sk.Name == skill {
			found = true
			break
		}
	}
	if !found {
		return nil, apperr.New(apperr.CodeNotFound, "agent %s has no skill %q", to, skill)
	}

	return s.Send(ctx, from, to, payload, SendOptions{Type: store.MessageTypeSkillInvocation})
}

// Broadcast sends content to every agent except the sender. One message is
// created per recipient but only a single broadcast event is emitted,
// carrying the aggregate recipient count.
func (s *Service) Broadcast(ctx context.Context, from, content string) (*BroadcastResult, error) {
	if from == "" || content == "" {
		return nil, apperr.New(apperr.CodeValidation, "from and content are required")
	}

	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "listing agents")
	}

	now := time.Now().UTC()
	var msgs []*store.Message
	for _, agent := range agents {
		if agent.ID == from {
			continue
		}
		msgs = append(msgs, &store.Message{
			ID:        uuid.New().String(),
			FromAgent: from,
			ToAgent:   agent.ID,
			Content:   content,
			Type:      store.MessageTypeBroadcast,
			Status:    store.StatusPending,
			CreatedAt: now,
		})
	}
	if len(msgs) == 0 {
		return nil, apperr.New(apperr.CodeNotFound, "no broadcast recipients")
	}

	if err := s.store.CreateMessages(ctx, msgs); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "creating broadcast messages")
	}

	ids := make([]string, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}

	s.logger.Info("broadcast sent", "from", from, "recipients", len(msgs))
	s.broker.Publish(events.Event{
		Type: events.TypeBroadcast,
		Payload: map[string]any{
			"from":            from,
			"recipient_count": len(msgs),
		},
	})
	return &BroadcastResult{RecipientCount: len(msgs), MessageIDs: ids}, nil
}

// GetMessages returns messages addressed to an agent, newest first.
func (s *Service) GetMessages(ctx context.Context, agentID string, opts ListOptions) ([]*store.Message, error) {
	if agentID == "" {
		return nil, apperr.New(apperr.CodeValidation, "agent id is required")
	}

	msgs, err := s.store.ListMessages(ctx, store.MessageFilter{
		ToAgent:    agentID,
		Since:      opts.Since,
		UnreadOnly: opts.UnreadOnly,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "listing messages")
	}
	return msgs, nil
}

// MarkRead flips a message's read flag. Idempotent.
func (s *Service) MarkRead(ctx context.Context, messageID string) error {
	err := s.store.MarkMessageRead(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "message %s not found", messageID)
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "marking message read")
	}
	return nil
}

// UpdateStatus moves a message along the lifecycle. Only the legal edge set
// is accepted; in particular nothing transitions back to pending except
// Retry. Entering failed or timeout emits a failure event carrying the error
// text and the recipient.
func (s *Service) UpdateStatus(ctx context.Context, messageID, status, errText string) error {
	allowedFrom, ok := legalTransitions[status]
	if !ok {
		if status == store.StatusPending {
			return apperr.New(apperr.CodeValidation, "pending is only reachable via retry")
		}
		return apperr.New(apperr.CodeValidation, "unknown status %q", status)
	}

	err := s.store.TransitionMessage(ctx, messageID, status, errText, allowedFrom)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "message %s not found", messageID)
	}
	if errors.Is(err, store.ErrIllegalTransition) {
		return apperr.Wrap(apperr.CodeValidation, err, "updating message %s", messageID)
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "updating message status")
	}

	if status == store.StatusFailed || status == store.StatusTimeout {
		s.publishFailure(ctx, messageID, status, errText)
	}
	return nil
}

// publishFailure emits message_failed or message_timeout with the recipient.
// The event is best-effort; a lookup failure is logged, not surfaced.
func (s *Service) publishFailure(ctx context.Context, messageID, status, errText string) {
	evtType := events.TypeMessageFailed
	if status == store.StatusTimeout {
		evtType = events.TypeMessageTimeout
	}

	toAgent := ""
	if msg, err := s.store.GetMessage(ctx, messageID); err == nil {
		toAgent = msg.ToAgent
	} else {
		s.logger.Warn("could not resolve recipient for failure event", "message_id", messageID, "error", err)
	}

	s.broker.Publish(events.Event{
		Type: evtType,
		Payload: map[string]any{
			"message_id": messageID,
			"to":         toAgent,
			"error":      errText,
		},
	})
}

// ListFailed returns an agent's most recent failed or timed-out messages.
func (s *Service) ListFailed(ctx context.Context, agentID string) ([]*store.Message, error) {
	if agentID == "" {
		return nil, apperr.New(apperr.CodeValidation, "agent id is required")
	}

	msgs, err := s.store.ListFailedMessages(ctx, agentID, failedListLimit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "listing failed messages")
	}
	return msgs, nil
}

// Retry resets a failed or timed-out message back to pending and emits
// message_retry. Any other current status is a validation failure.
func (s *Service) Retry(ctx context.Context, messageID string) error {
	err := s.store.TransitionMessage(ctx, messageID, store.StatusPending, "",
		[]string{store.StatusFailed, store.StatusTimeout})
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "message %s not found", messageID)
	}
	if errors.Is(err, store.ErrIllegalTransition) {
		return apperr.New(apperr.CodeValidation, "only failed or timed-out messages can be retried")
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "retrying message")
	}

	s.logger.Info("message retried", "message_id", messageID)
	s.broker.Publish(events.Event{
		Type:    events.TypeMessageRetry,
		Payload: map[string]any{"message_id": messageID},
	})
	return nil
}
