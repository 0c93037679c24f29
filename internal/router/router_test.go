// ABOUTME: Tests for the message router
// ABOUTME: Covers lifecycle transitions, retry, broadcast exclusion, and events

package router

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agent-mesh/internal/apperr"
	"github.com/2389/agent-mesh/internal/events"
	"github.com/2389/agent-mesh/internal/store"
)

type fixture struct {
	svc    *Service
	store  *store.SQLiteStore
	broker *events.Broker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "mesh.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	broker := events.NewBroker(nil)
	t.Cleanup(broker.Close)

	return &fixture{svc: New(st, broker, nil), store: st, broker: broker}
}

func (f *fixture) registerAgent(t *testing.T, name string) *store.Agent {
	t.Helper()
	now := time.Now().UTC()
	agent := &store.Agent{
		ID:        name + "-id",
		Name:      name,
		LastSeen:  now,
		CreatedAt: now,
	}
	_, _, err := f.store.RegisterAgent(context.Background(), agent, nil)
	require.NoError(t, err)
	return agent
}

func recvEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("expected an event")
		return events.Event{}
	}
}

func TestSend(t *testing.T) {
	f := newFixture(t)
	_, ch := f.broker.Attach()

	msg, err := f.svc.Send(context.Background(), "a", "b", "hi", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, msg.Status)
	assert.Equal(t, store.MessageTypeDirect, msg.Type)
	assert.False(t, msg.Read)
	assert.Nil(t, msg.ExpiresAt)

	evt := recvEvent(t, ch)
	assert.Equal(t, events.TypeNewMessage, evt.Type)
	assert.Equal(t, msg.ID, evt.Payload["message_id"])
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tc := range []struct{ from, to, content string }{
		{"", "b", "hi"},
		{"a", "", "hi"},
		{"a", "b", ""},
	} {
		_, err := f.svc.Send(ctx, tc.from, tc.to, tc.content, SendOptions{})
		require.Error(t, err)
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	}

	_, err := f.svc.Send(ctx, "a", "b", "hi", SendOptions{Type: "carrier_pigeon"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestSend_WithTimeout(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.Send(context.Background(), "a", "b", "hi", SendOptions{Timeout: time.Minute})
	require.NoError(t, err)
	require.NotNil(t, msg.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Minute), *msg.ExpiresAt, 5*time.Second)
}

func TestLifecycle_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, "a", "b", "hi", SendOptions{})
	require.NoError(t, err)

	for _, status := range []string{store.StatusDelivered, store.StatusProcessing, store.StatusCompleted} {
		require.NoError(t, f.svc.UpdateStatus(ctx, msg.ID, status, ""))
	}

	got, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
}

func TestUpdateStatus_IllegalTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, "a", "b", "hi", SendOptions{})
	require.NoError(t, err)

	// pending -> completed skips delivered/processing
	err = f.svc.UpdateStatus(ctx, msg.ID, store.StatusCompleted, "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	// nothing transitions back to pending except retry
	err = f.svc.UpdateStatus(ctx, msg.ID, store.StatusPending, "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	// completed is terminal
	require.NoError(t, f.svc.UpdateStatus(ctx, msg.ID, store.StatusDelivered, ""))
	require.NoError(t, f.svc.UpdateStatus(ctx, msg.ID, store.StatusProcessing, ""))
	require.NoError(t, f.svc.UpdateStatus(ctx, msg.ID, store.StatusCompleted, ""))
	err = f.svc.UpdateStatus(ctx, msg.ID, store.StatusFailed, "late failure")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestUpdateStatus_UnknownStatusAndMissingMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.UpdateStatus(ctx, "whatever", "exploded", "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	err = f.svc.UpdateStatus(ctx, "no-such-message", store.StatusDelivered, "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestUpdateStatus_FailureEmitsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, "a", "b", "hi", SendOptions{})
	require.NoError(t, err)

	_, ch := f.broker.Attach()
	require.NoError(t, f.svc.UpdateStatus(ctx, msg.ID, store.StatusFailed, "no route"))

	evt := recvEvent(t, ch)
	assert.Equal(t, events.TypeMessageFailed, evt.Type)
	assert.Equal(t, "b", evt.Payload["to"])
	assert.Equal(t, "no route", evt.Payload["error"])
}

func TestMarkRead_DoesNotTouchStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, "a", "b", "hi", SendOptions{})
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkRead(ctx, msg.ID))
	require.NoError(t, f.svc.MarkRead(ctx, msg.ID)) // idempotent

	got, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)
	assert.Equal(t, store.StatusPending, got.Status)
}

func TestRetry_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, "x", "y", "hi", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, msg.Status)

	require.NoError(t, f.svc.UpdateStatus(ctx, msg.ID, store.StatusTimeout, "no reply"))

	failed, err := f.svc.ListFailed(ctx, "y")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, msg.ID, failed[0].ID)

	require.NoError(t, f.svc.Retry(ctx, msg.ID))

	got, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, got.Status)
	assert.Empty(t, got.Error)

	failed, err = f.svc.ListFailed(ctx, "y")
	require.NoError(t, err)
	assert.Empty(t, failed, "retried message should leave the failed list")
}

func TestRetry_OnlyFromFailedOrTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, "a", "b", "hi", SendOptions{})
	require.NoError(t, err)

	err = f.svc.Retry(ctx, msg.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	err = f.svc.Retry(ctx, "no-such-message")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestBroadcast_ExcludesSender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sender := f.registerAgent(t, "sender")
	f.registerAgent(t, "peer-1")
	f.registerAgent(t, "peer-2")

	_, ch := f.broker.Attach()
	res, err := f.svc.Broadcast(ctx, sender.ID, "all hands")
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecipientCount)
	assert.Len(t, res.MessageIDs, 2)

	for _, id := range res.MessageIDs {
		msg, err := f.store.GetMessage(ctx, id)
		require.NoError(t, err)
		assert.NotEqual(t, sender.ID, msg.ToAgent, "broadcast must never address the sender")
		assert.Equal(t, store.MessageTypeBroadcast, msg.Type)
	}

	// One aggregate event, not one per message
	evt := recvEvent(t, ch)
	assert.Equal(t, events.TypeBroadcast, evt.Type)
	assert.Equal(t, 2, evt.Payload["recipient_count"])
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second event: %s", extra.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcast_NoRecipients(t *testing.T) {
	f := newFixture(t)
	sender := f.registerAgent(t, "sender")

	_, err := f.svc.Broadcast(context.Background(), sender.ID, "anyone?")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestGetMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Send(ctx, "a", "b", "first", SendOptions{})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = f.svc.Send(ctx, "a", "b", "second", SendOptions{})
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkRead(ctx, first.ID))

	msgs, err := f.svc.GetMessages(ctx, "b", ListOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Content, "newest first")

	msgs, err = f.svc.GetMessages(ctx, "b", ListOptions{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "second", msgs[0].Content)

	since := first.CreatedAt
	msgs, err = f.svc.GetMessages(ctx, "b", ListOptions{Since: &since})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestInvokeSkill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	target := &store.Agent{ID: "t-id", Name: "target", LastSeen: now, CreatedAt: now}
	_, _, err := f.store.RegisterAgent(ctx, target, []*store.Skill{
		{ID: "s-1", Name: "summarize", CreatedAt: now},
	})
	require.NoError(t, err)

	msg, err := f.svc.InvokeSkill(ctx, "caller", target.ID, "summarize", `{"doc":"..."}`)
	require.NoError(t, err)
	assert.Equal(t, store.MessageTypeSkillInvocation, msg.Type)
	assert.Equal(t, store.StatusPending, msg.Status)

	_, err = f.svc.InvokeSkill(ctx, "caller", target.ID, "translate", `{}`)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestSweepOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Expired and eligible
	expired, err := f.svc.Send(ctx, "a", "b", "stale", SendOptions{Timeout: time.Millisecond})
	require.NoError(t, err)
	// No timeout requested: never swept
	unbounded, err := f.svc.Send(ctx, "a", "b", "unbounded", SendOptions{})
	require.NoError(t, err)
	// Timeout requested but window still open
	fresh, err := f.svc.Send(ctx, "a", "b", "fresh", SendOptions{Timeout: time.Hour})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, ch := f.broker.Attach()

	n, err := f.svc.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	evt := recvEvent(t, ch)
	assert.Equal(t, events.TypeMessageTimeout, evt.Type)
	assert.Equal(t, expired.ID, evt.Payload["message_id"])

	got, err := f.store.GetMessage(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusTimeout, got.Status)

	for _, id := range []string{unbounded.ID, fresh.ID} {
		got, err := f.store.GetMessage(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.StatusPending, got.Status)
	}

	// Timed-out messages can be retried
	require.NoError(t, f.svc.Retry(ctx, expired.ID))
}
