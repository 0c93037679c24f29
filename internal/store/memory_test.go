// ABOUTME: Tests for collective memory persistence
// ABOUTME: Covers version monotonicity, readonly enforcement, filters, and deletion

package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func newMemoryFixture(t *testing.T) (*SQLiteStore, *Group, *Agent, *Agent) {
	t.Helper()
	s := newTestStore(t)
	t.Cleanup(func() { s.Close() })

	owner := mustRegister(t, s, "owner")
	peer := mustRegister(t, s, "peer")
	group := testGroup("ops", owner.ID)
	if err := s.CreateGroup(context.Background(), group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return s, group, owner, peer
}

func TestWriteMemory_VersionsIncrement(t *testing.T) {
	s, group, owner, peer := newMemoryFixture(t)
	ctx := context.Background()

	entry, err := s.WriteMemory(ctx, group.ID, "plan", json.RawMessage(`{"a":1}`), MemoryTypeShared, owner.ID)
	if err != nil {
		t.Fatalf("first WriteMemory failed: %v", err)
	}
	if entry.Version != 1 {
		t.Errorf("first write should be version 1, got %d", entry.Version)
	}

	entry, err = s.WriteMemory(ctx, group.ID, "plan", json.RawMessage(`{"a":2}`), MemoryTypeShared, peer.ID)
	if err != nil {
		t.Fatalf("second WriteMemory failed: %v", err)
	}
	if entry.Version != 2 {
		t.Errorf("second write should be version 2, got %d", entry.Version)
	}
	if entry.AgentID != peer.ID {
		t.Errorf("last writer mismatch: got %q, want %q", entry.AgentID, peer.ID)
	}

	got, err := s.GetMemory(ctx, group.ID, "plan")
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if string(got.Value) != `{"a":2}` {
		t.Errorf("Value mismatch: got %s", got.Value)
	}
	if got.Version != 2 {
		t.Errorf("stored version mismatch: got %d", got.Version)
	}

	entries, err := s.ListMemory(ctx, group.ID, MemoryFilter{})
	if err != nil {
		t.Fatalf("ListMemory failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("update-in-place created a new row: %d entries", len(entries))
	}
}

func TestWriteMemory_ReadonlyCreatorOnly(t *testing.T) {
	s, group, owner, peer := newMemoryFixture(t)
	ctx := context.Background()

	if _, err := s.WriteMemory(ctx, group.ID, "pinned", json.RawMessage(`"v1"`), MemoryTypeReadonly, owner.ID); err != nil {
		t.Fatalf("WriteMemory failed: %v", err)
	}

	_, err := s.WriteMemory(ctx, group.ID, "pinned", json.RawMessage(`"v2"`), MemoryTypeReadonly, peer.ID)
	if !errors.Is(err, ErrReadonlyEntry) {
		t.Errorf("non-creator write: expected ErrReadonlyEntry, got %v", err)
	}

	// The creator can still rewrite its own entry
	entry, err := s.WriteMemory(ctx, group.ID, "pinned", json.RawMessage(`"v2"`), MemoryTypeReadonly, owner.ID)
	if err != nil {
		t.Fatalf("creator rewrite failed: %v", err)
	}
	if entry.Version != 2 {
		t.Errorf("creator rewrite should be version 2, got %d", entry.Version)
	}
}

func TestListMemory_Filters(t *testing.T) {
	s, group, owner, _ := newMemoryFixture(t)
	ctx := context.Background()

	for _, w := range []struct {
		key     string
		memType string
	}{
		{"plan", MemoryTypeShared},
		{"notes", MemoryTypeShared},
		{"pinned", MemoryTypeReadonly},
	} {
		if _, err := s.WriteMemory(ctx, group.ID, w.key, json.RawMessage(`{}`), w.memType, owner.ID); err != nil {
			t.Fatalf("WriteMemory(%s) failed: %v", w.key, err)
		}
	}

	entries, err := s.ListMemory(ctx, group.ID, MemoryFilter{Keys: []string{"plan", "pinned"}})
	if err != nil {
		t.Fatalf("ListMemory by keys failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("key filter: expected 2 entries, got %d", len(entries))
	}

	entries, err = s.ListMemory(ctx, group.ID, MemoryFilter{Type: MemoryTypeReadonly})
	if err != nil {
		t.Fatalf("ListMemory by type failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "pinned" {
		t.Errorf("type filter: expected only pinned, got %d entries", len(entries))
	}
}

func TestDeleteMemory(t *testing.T) {
	s, group, owner, peer := newMemoryFixture(t)
	ctx := context.Background()

	if _, err := s.WriteMemory(ctx, group.ID, "plan", json.RawMessage(`{}`), MemoryTypeShared, owner.ID); err != nil {
		t.Fatalf("WriteMemory failed: %v", err)
	}

	if err := s.DeleteMemory(ctx, group.ID, "plan", peer.ID); err != nil {
		t.Fatalf("DeleteMemory failed: %v", err)
	}
	if _, err := s.GetMemory(ctx, group.ID, "plan"); err != ErrNotFound {
		t.Errorf("deleted entry should be gone, got %v", err)
	}
	if err := s.DeleteMemory(ctx, group.ID, "plan", peer.ID); err != ErrNotFound {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteMemory_ReadonlyCreatorOnly(t *testing.T) {
	s, group, owner, peer := newMemoryFixture(t)
	ctx := context.Background()

	if _, err := s.WriteMemory(ctx, group.ID, "pinned", json.RawMessage(`{}`), MemoryTypeReadonly, owner.ID); err != nil {
		t.Fatalf("WriteMemory failed: %v", err)
	}

	err := s.DeleteMemory(ctx, group.ID, "pinned", peer.ID)
	if !errors.Is(err, ErrReadonlyEntry) {
		t.Errorf("non-creator delete: expected ErrReadonlyEntry, got %v", err)
	}
	if err := s.DeleteMemory(ctx, group.ID, "pinned", owner.ID); err != nil {
		t.Errorf("creator delete failed: %v", err)
	}
}
