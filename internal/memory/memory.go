// ABOUTME: Collective memory store with per-key versioning and membership gating
// ABOUTME: Writes broadcast memory_updated; deletes broadcast memory_deleted

package memory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/agent-mesh/internal/apperr"
	"github.com/2389/agent-mesh/internal/events"
	"github.com/2389/agent-mesh/internal/store"
)

// WriteResult reports a successful memory write.
type WriteResult struct {
	MemoryID string
	Version  int64
}

// History summarizes the current state of a key. No per-version ledger is
// retained; this is a projection of the live row only.
type History struct {
	Key            string
	CurrentVersion int64
	LastUpdated    time.Time
	LastUpdatedBy  string
}

// ReadOptions narrows ReadAll results.
type ReadOptions struct {
	Keys []string
	Type string
}

// Service implements the collective memory store.
type Service struct {
	store  store.Store
	broker *events.Broker
	logger *slog.Logger
}

// New creates a memory service.
func New(st store.Store, broker *events.Broker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		broker: broker,
		logger: logger.With("component", "memory"),
	}
}

// requireMembership verifies the agent belongs to the group.
func (s *Service) requireMembership(ctx context.Context, groupID, agentID string) error {
	_, err := s.store.GetMembership(ctx, groupID, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeForbidden, "agent %s is not a member of group %s", agentID, groupID)
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "checking membership")
	}
	return nil
}

// Write creates or updates the entry for (groupID, key). The writer must be a
// group member. An existing key is updated in place with its version
// incremented by exactly 1; a new key starts at version 1. Readonly entries
// reject writes by anyone but their creator.
func (s *Service) Write(ctx context.Context, groupID, agentID, key string, value json.RawMessage, memType string) (*WriteResult, error) {
	if key == "" {
		return nil, apperr.New(apperr.CodeValidation, "memory key is required")
	}
	switch memType {
	case "":
		memType = store.MemoryTypeShared
	case store.MemoryTypeShared, store.MemoryTypeReadonly:
	default:
		return nil, apperr.New(apperr.CodeValidation, "unknown memory type %q", memType)
	}

	if err := s.requireMembership(ctx, groupID, agentID); err != nil {
		return nil, err
	}

	entry, err := s.store.WriteMemory(ctx, groupID, key, value, memType, agentID)
	if errors.Is(err, store.ErrReadonlyEntry) {
		return nil, apperr.New(apperr.CodeForbidden, "key %q is readonly and owned by another agent", key)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "writing memory key %q", key)
	}

	s.broker.Publish(events.Event{
		Type: events.TypeMemoryUpdated,
		Payload: map[string]any{
			"group_id":  groupID,
			"memory_id": entry.ID,
			"key":       key,
			"agent_id":  agentID,
		},
	})
	return &WriteResult{MemoryID: entry.ID, Version: entry.Version}, nil
}

// ReadAll returns a group's entries, optionally filtered by key list and
// memory type, newest-updated first.
func (s *Service) ReadAll(ctx context.Context, groupID string, opts ReadOptions) ([]*store.MemoryEntry, error) {
	entries, err := s.store.ListMemory(ctx, groupID, store.MemoryFilter{
		Keys: opts.Keys,
		Type: opts.Type,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "listing memory")
	}
	return entries, nil
}

// ReadOne returns the entry for a single key.
func (s *Service) ReadOne(ctx context.Context, groupID, key string) (*store.MemoryEntry, error) {
	entry, err := s.store.GetMemory(ctx, groupID, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "memory key %q not found in group %s", key, groupID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "reading memory key %q", key)
	}
	return entry, nil
}

// Delete removes a key. The caller must be a group member; readonly entries
// reject deletion by anyone but their creator.
func (s *Service) Delete(ctx context.Context, groupID, agentID, key string) error {
	if err := s.requireMembership(ctx, groupID, agentID); err != nil {
		return err
	}

	err := s.store.DeleteMemory(ctx, groupID, key, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "memory key %q not found in group %s", key, groupID)
	}
	if errors.Is(err, store.ErrReadonlyEntry) {
		return apperr.New(apperr.CodeForbidden, "key %q is readonly and owned by another agent", key)
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "deleting memory key %q", key)
	}

	s.broker.Publish(events.Event{
		Type: events.TypeMemoryDeleted,
		Payload: map[string]any{
			"group_id": groupID,
			"key":      key,
			"agent_id": agentID,
		},
	})
	return nil
}

// GetHistory returns the current version metadata for a key.
func (s *Service) GetHistory(ctx context.Context, groupID, key string) (*History, error) {
	entry, err := s.ReadOne(ctx, groupID, key)
	if err != nil {
		return nil, err
	}
	return &History{
		Key:            entry.Key,
		CurrentVersion: entry.Version,
		LastUpdated:    entry.UpdatedAt,
		LastUpdatedBy:  entry.AgentID,
	}, nil
}
