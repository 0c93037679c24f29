// ABOUTME: Fan-out broker pushing one event per mutating operation to all subscribers
// ABOUTME: Fire-and-forget: a slow or disconnected subscriber never blocks publishers

package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names an event published by a mutating mesh operation.
type Type string

// Event types, one per mutating operation.
const (
	TypeAgentJoined        Type = "agent_joined"
	TypeNewMessage         Type = "new_message"
	TypeBroadcast          Type = "broadcast"
	TypeGroupCreated       Type = "group_created"
	TypeGroupMemberAdded   Type = "group_member_added"
	TypeGroupMemberRemoved Type = "group_member_removed"
	TypeGroupBroadcast     Type = "group_broadcast"
	TypeMemoryUpdated      Type = "memory_updated"
	TypeMemoryDeleted      Type = "memory_deleted"
	TypeMessageFailed      Type = "message_failed"
	TypeMessageRetry       Type = "message_retry"
	TypeMessageTimeout     Type = "message_timeout"
)

// Event is a structured notification delivered to all attached subscribers.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// defaultBuffer is the per-subscriber channel depth. A subscriber that falls
// this far behind starts losing events and must reconcile via polling reads.
const defaultBuffer = 64

// Broker owns the process-wide subscriber set. Other components never reach
// the set directly; they go through Attach, Detach, and Publish.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
	buffer      int
	logger      *slog.Logger
}

// NewBroker creates a broker with the default per-subscriber buffer.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subscribers: make(map[string]chan Event),
		buffer:      defaultBuffer,
		logger:      logger.With("component", "events"),
	}
}

// Attach registers a new subscriber and returns its id and receive channel.
// Late subscribers receive nothing retroactively.
func (b *Broker) Attach() (string, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return id, ch
	}

	b.subscribers[id] = ch
	b.logger.Debug("subscriber attached", "subscriber_id", id, "total", len(b.subscribers))
	return id, ch
}

// Detach removes a subscriber and closes its channel. Safe to call twice.
func (b *Broker) Detach(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
		b.logger.Debug("subscriber detached", "subscriber_id", id, "total", len(b.subscribers))
	}
}

// Publish delivers the event to every attached subscriber without blocking.
// Events to subscribers with full buffers are dropped.
func (b *Broker) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				"subscriber_id", id, "type", evt.Type)
		}
	}
}

// SubscriberCount returns the number of attached subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close detaches all subscribers and rejects future publishes.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
	b.logger.Info("event broker closed")
}
