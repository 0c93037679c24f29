// ABOUTME: Tests for the agent registry service
// ABOUTME: Covers identity idempotence, validation, heartbeat, and presence derivation

package registry

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

func newTestService(t *testing.T) (*Service, *events.Broker) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "mesh.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	broker := events.NewBroker(nil)
	t.Cleanup(broker.Close)

	return New(st, broker, 0, nil), broker
}

func TestRegister_New(t *testing.T) {
	svc, broker := newTestService(t)
	_, ch := broker.Attach()

	res, err := svc.Register(context.Background(), "builder", "http://localhost:9000", []string{"chat"}, nil)
	require.NoError(t, err)
	assert.True(t, res.IsNewRegistration)
	assert.NotEmpty(t, res.Agent.ID)

	select {
	case evt := <-ch:
		assert.Equal(t, events.TypeAgentJoined, evt.Type)
		assert.Equal(t, res.Agent.ID, evt.Payload["agent_id"])
	case <-time.After(time.Second):
		t.Fatal("agent_joined event not published")
	}
}

func TestRegister_IdentityIdempotence(t *testing.T) {
	svc, broker := newTestService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, "builder", "http://one", []string{"chat"}, nil)
	require.NoError(t, err)

	_, ch := broker.Attach()
	second, err := svc.Register(ctx, "builder", "http://two", []string{"chat", "review"}, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Agent.ID, second.Agent.ID)
	assert.False(t, second.IsNewRegistration)
	assert.Equal(t, "http://two", second.Agent.Endpoint)
	assert.Equal(t, []string{"chat", "review"}, second.Agent.Capabilities)

	// Re-registration is not a join
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event on re-registration: %s", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegister_EmptyName(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), "", "http://x", nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestRegister_WithSkills(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, "builder", "http://x", nil, []SkillSpec{
		{Name: "compile", Description: "compiles things", Endpoint: "http://x/compile"},
	})
	require.NoError(t, err)

	skills, err := svc.ListSkills(ctx, res.Agent.ID)
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, "compile", skills[0].Name)
	assert.Equal(t, res.Agent.ID, skills[0].AgentID)
}

func TestHeartbeat(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, "builder", "http://x", nil, nil)
	require.NoError(t, err)

	before := res.Agent.LastSeen
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, svc.Heartbeat(ctx, res.Agent.ID))

	agent, err := svc.Get(ctx, res.Agent.ID)
	require.NoError(t, err)
	assert.True(t, agent.LastSeen.After(before), "heartbeat should advance last_seen")
}

func TestHeartbeat_UnknownAgent(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Heartbeat(context.Background(), "no-such-agent")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestList_PresenceDerivation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "builder", "http://x", nil, nil)
	require.NoError(t, err)

	statuses, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Online, "freshly registered agent should be online")

	// An agent silent for longer than the presence age is offline
	stale := New(svc.store, svc.broker, time.Nanosecond, nil)
	time.Sleep(time.Millisecond)
	statuses, err = stale.List(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Online)
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}
