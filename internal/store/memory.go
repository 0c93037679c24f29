// ABOUTME: Collective memory persistence for the SQLite store
// ABOUTME: Versioned per-(group, key) entries with atomic increment-on-write

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WriteMemory creates or updates the entry for (groupID, key) in a single
// transaction. An existing entry has its version incremented by exactly 1;
// a new entry starts at version 1. Writing a readonly entry created by a
// different agent returns ErrReadonlyEntry.
func (s *SQLiteStore) WriteMemory(ctx context.Context, groupID, key string, value json.RawMessage, memType, agentID string) (*MemoryEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	entry, err := s.getMemoryTx(ctx, tx, groupID, key)
	if err != nil && err != ErrNotFound {
		return nil, err
	}

	if err == ErrNotFound {
		entry = &MemoryEntry{
			ID:        uuid.New().String(),
			GroupID:   groupID,
			Key:       key,
			Value:     value,
			Type:      memType,
			Version:   1,
			AgentID:   agentID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memory_entries (id, group_id, key, value, memory_type, version, agent_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			entry.ID, entry.GroupID, entry.Key, string(entry.Value), entry.Type,
			entry.Version, entry.AgentID, formatTime(entry.CreatedAt), formatTime(entry.UpdatedAt),
		)
		if err != nil {
			return nil, fmt.Errorf("inserting memory entry: %w", err)
		}
	} else {
		if entry.Type == MemoryTypeReadonly && entry.AgentID != agentID {
			return nil, ErrReadonlyEntry
		}

		entry.Value = value
		entry.Type = memType
		entry.Version++
		entry.AgentID = agentID
		entry.UpdatedAt = now

		_, err = tx.ExecContext(ctx, `
			UPDATE memory_entries
			SET value = ?, memory_type = ?, version = ?, agent_id = ?, updated_at = ?
			WHERE group_id = ? AND key = ?
		`,
			string(entry.Value), entry.Type, entry.Version, entry.AgentID,
			formatTime(entry.UpdatedAt), groupID, key,
		)
		if err != nil {
			return nil, fmt.Errorf("updating memory entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing memory write: %w", err)
	}

	s.logger.Debug("wrote memory entry", "group_id", groupID, "key", key, "version", entry.Version)
	return entry, nil
}

func scanMemoryEntry(scan func(dest ...any) error) (*MemoryEntry, error) {
	var entry MemoryEntry
	var value, createdAtStr, updatedAtStr string

	err := scan(
		&entry.ID, &entry.GroupID, &entry.Key, &value, &entry.Type,
		&entry.Version, &entry.AgentID, &createdAtStr, &updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	entry.Value = []byte(value)
	if entry.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if entry.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &entry, nil
}

const memoryColumns = `id, group_id, key, value, memory_type, version, agent_id, created_at, updated_at`

func (s *SQLiteStore) getMemoryTx(ctx context.Context, q querier, groupID, key string) (*MemoryEntry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memory_entries WHERE group_id = ? AND key = ?`,
		groupID, key,
	)

	entry, err := scanMemoryEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying memory entry: %w", err)
	}
	return entry, nil
}

// GetMemory retrieves the entry for (groupID, key).
// Returns ErrNotFound if no entry exists.
func (s *SQLiteStore) GetMemory(ctx context.Context, groupID, key string) (*MemoryEntry, error) {
	return s.getMemoryTx(ctx, s.db, groupID, key)
}

// ListMemory returns a group's entries matching the filter, newest-updated first
func (s *SQLiteStore) ListMemory(ctx context.Context, groupID string, filter MemoryFilter) ([]*MemoryEntry, error) {
	query := `SELECT ` + memoryColumns + ` FROM memory_entries WHERE group_id = ?`
	args := []any{groupID}

	if len(filter.Keys) > 0 {
		query += ` AND key IN (`
		for i, k := range filter.Keys {
			if i > 0 {
				query += `, `
			}
			query += `?`
			args = append(args, k)
		}
		query += `)`
	}
	if filter.Type != "" {
		query += ` AND memory_type = ?`
		args = append(args, filter.Type)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying memory entries: %w", err)
	}
	defer rows.Close()

	var entries []*MemoryEntry
	for rows.Next() {
		entry, err := scanMemoryEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning memory entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// DeleteMemory removes the entry for (groupID, key). Deleting a readonly
// entry created by a different agent returns ErrReadonlyEntry; a missing
// entry returns ErrNotFound.
func (s *SQLiteStore) DeleteMemory(ctx context.Context, groupID, key, agentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	entry, err := s.getMemoryTx(ctx, tx, groupID, key)
	if err != nil {
		return err
	}
	if entry.Type == MemoryTypeReadonly && entry.AgentID != agentID {
		return ErrReadonlyEntry
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_entries WHERE group_id = ? AND key = ?`, groupID, key,
	); err != nil {
		return fmt.Errorf("deleting memory entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing memory delete: %w", err)
	}

	s.logger.Debug("deleted memory entry", "group_id", groupID, "key", key)
	return nil
}
