// ABOUTME: Tests for the mesh client SDK against a live in-process hub
// ABOUTME: Covers the main operation surface and error code propagation

package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agent-mesh/internal/api"
	"github.com/2389/agent-mesh/internal/apperr"
	"github.com/2389/agent-mesh/internal/auth"
	"github.com/2389/agent-mesh/internal/events"
	"github.com/2389/agent-mesh/internal/groups"
	"github.com/2389/agent-mesh/internal/memory"
	"github.com/2389/agent-mesh/internal/registry"
	"github.com/2389/agent-mesh/internal/router"
	"github.com/2389/agent-mesh/internal/store"
)

const testSecret = "client-test-secret"

func newTestHub(t *testing.T) *Client {
	c, _ := newTestHubWithBroker(t)
	return c
}

func newTestHubWithBroker(t *testing.T) (*Client, *events.Broker) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "mesh.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	broker := events.NewBroker(nil)
	t.Cleanup(broker.Close)

	h := api.NewHandler(
		registry.New(st, broker, registry.DefaultPresenceAge, nil),
		router.New(st, broker, nil),
		groups.New(st, broker, nil),
		memory.New(st, broker, nil),
		broker,
		auth.NewJWTVerifier([]byte(testSecret)),
		nil,
	)

	srv := httptest.NewServer(h.NewServer(testSecret))
	t.Cleanup(srv.Close)
	return New(srv.URL, testSecret), broker
}

func TestHealth(t *testing.T) {
	c := newTestHub(t)
	require.NoError(t, c.Health(context.Background()))
}

func TestRegisterAndMessage(t *testing.T) {
	c := newTestHub(t)
	ctx := context.Background()

	sender, err := c.Register(ctx, RegisterRequest{Name: "sender"})
	require.NoError(t, err)
	assert.True(t, sender.IsNewRegistration)

	receiver, err := c.Register(ctx, RegisterRequest{Name: "receiver"})
	require.NoError(t, err)

	msg, err := c.Send(ctx, SendRequest{
		From: sender.Agent.ID, To: receiver.Agent.ID, Content: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "pending", msg.Status)

	inbox, err := c.Messages(ctx, receiver.Agent.ID, MessageFilter{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "hello", inbox[0].Content)

	require.NoError(t, c.MarkRead(ctx, msg.ID))
	inbox, err = c.Messages(ctx, receiver.Agent.ID, MessageFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestErrorCodePropagation(t *testing.T) {
	c := newTestHub(t)
	ctx := context.Background()

	err := c.Heartbeat(ctx, "no-such-agent")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound), "got %v", err)

	_, err = c.Register(ctx, RegisterRequest{Name: ""})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation), "got %v", err)
}

func TestWrongSecret(t *testing.T) {
	c := newTestHub(t)
	bad := New(c.baseURL, "wrong")

	_, err := bad.ListAgents(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized), "got %v", err)
}

func TestGroupMemoryRoundTrip(t *testing.T) {
	c := newTestHub(t)
	ctx := context.Background()

	owner, err := c.Register(ctx, RegisterRequest{Name: "owner"})
	require.NoError(t, err)

	group, err := c.CreateGroup(ctx, CreateGroupRequest{Name: "ops", CreatedBy: owner.Agent.ID})
	require.NoError(t, err)

	res, err := c.WriteMemory(ctx, group.ID, owner.Agent.ID, "plan", json.RawMessage(`{"step":1}`), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Version)

	entry, err := c.ReadMemoryKey(ctx, group.ID, "plan")
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":1}`, string(entry.Value))

	hist, err := c.GetMemoryHistory(ctx, group.ID, "plan")
	require.NoError(t, err)
	assert.Equal(t, int64(1), hist.CurrentVersion)

	require.NoError(t, c.DeleteMemory(ctx, group.ID, owner.Agent.ID, "plan"))
	_, err = c.ReadMemoryKey(ctx, group.ID, "plan")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestStreamEvents(t *testing.T) {
	c := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := c.Register(ctx, RegisterRequest{Name: "subscriber"})
	require.NoError(t, err)

	ch, err := c.StreamEvents(ctx, sub.Agent.ID, string(events.TypeAgentJoined))
	require.NoError(t, err)

	// Subscriber attachment trails the upgrade response slightly.
	time.Sleep(100 * time.Millisecond)

	// Registration of a new agent publishes agent_joined.
	_, err = c.Register(ctx, RegisterRequest{Name: "late-arrival"})
	require.NoError(t, err)

	select {
	case evt := <-ch:
		assert.Equal(t, events.TypeAgentJoined, evt.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("agent_joined event not received on stream")
	}
}

func TestStreamEvents_PeerClose(t *testing.T) {
	c, broker := newTestHubWithBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := c.Register(ctx, RegisterRequest{Name: "subscriber"})
	require.NoError(t, err)

	before := runtime.NumGoroutine()

	ch, err := c.StreamEvents(ctx, sub.Agent.ID)
	require.NoError(t, err)

	// Closing the broker makes the hub close the socket from its side.
	broker.Close()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "event channel should close when the hub hangs up")
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after hub hangup")
	}

	// Both stream goroutines must exit without ctx being cancelled.
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines leaked after hangup: %d > %d", runtime.NumGoroutine(), before)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
