// ABOUTME: Group and membership persistence for the SQLite store
// ABOUTME: Covers group CRUD, unique membership pairs, and joined member listings

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateGroup inserts a new group. Group names are not unique.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *Group) error {
	var metadata any
	if len(group.Metadata) > 0 {
		metadata = string(group.Metadata)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, name, description, metadata, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		group.ID, group.Name, group.Description, metadata, group.CreatedBy,
		formatTime(group.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting group: %w", err)
	}

	s.logger.Debug("created group", "id", group.ID, "name", group.Name)
	return nil
}

func scanGroup(scan func(dest ...any) error, withCount bool) (*Group, error) {
	var group Group
	var metadata sql.NullString
	var createdAtStr string

	dest := []any{&group.ID, &group.Name, &group.Description, &metadata, &group.CreatedBy, &createdAtStr}
	if withCount {
		dest = append(dest, &group.MemberCount)
	}

	if err := scan(dest...); err != nil {
		return nil, err
	}

	if metadata.Valid {
		group.Metadata = []byte(metadata.String)
	}
	var err error
	if group.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &group, nil
}

// GetGroup retrieves a group by ID with its member count.
// Returns ErrNotFound if the group doesn't exist.
func (s *SQLiteStore) GetGroup(ctx context.Context, id string) (*Group, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT g.id, g.name, g.description, g.metadata, g.created_by, g.created_at,
		       (SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id)
		FROM groups g
		WHERE g.id = ?
	`, id)

	group, err := scanGroup(row.Scan, true)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying group: %w", err)
	}
	return group, nil
}

// ListGroups returns all groups with member counts, newest first
func (s *SQLiteStore) ListGroups(ctx context.Context) ([]*Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.description, g.metadata, g.created_by, g.created_at,
		       (SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id)
		FROM groups g
		ORDER BY g.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		group, err := scanGroup(rows.Scan, true)
		if err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		groups = append(groups, group)
	}

	return groups, rows.Err()
}

// AddMember inserts a membership row. The store validates that both the group
// and the agent exist (ErrNotFound) and that the pair is unique
// (ErrDuplicateMember).
func (s *SQLiteStore) AddMember(ctx context.Context, m *Membership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM groups WHERE id = ?`, m.GroupID).Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("group %s: %w", m.GroupID, ErrNotFound)
		}
		return fmt.Errorf("checking group: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE id = ?`, m.AgentID).Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("agent %s: %w", m.AgentID, ErrNotFound)
		}
		return fmt.Errorf("checking agent: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO group_members (group_id, agent_id, role, joined_at)
		VALUES (?, ?, ?, ?)
	`, m.GroupID, m.AgentID, m.Role, formatTime(m.JoinedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateMember
		}
		return fmt.Errorf("inserting membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing membership: %w", err)
	}

	s.logger.Debug("added member", "group_id", m.GroupID, "agent_id", m.AgentID, "role", m.Role)
	return nil
}

// RemoveMember deletes a membership row.
// Returns ErrNotFound if the pair doesn't exist.
func (s *SQLiteStore) RemoveMember(ctx context.Context, groupID, agentID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND agent_id = ?`,
		groupID, agentID,
	)
	if err != nil {
		return fmt.Errorf("deleting membership: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("removed member", "group_id", groupID, "agent_id", agentID)
	return nil
}

// GetMembership retrieves a single membership row.
// Returns ErrNotFound if the pair doesn't exist.
func (s *SQLiteStore) GetMembership(ctx context.Context, groupID, agentID string) (*Membership, error) {
	var m Membership
	var joinedAtStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT group_id, agent_id, role, joined_at
		FROM group_members
		WHERE group_id = ? AND agent_id = ?
	`, groupID, agentID).Scan(&m.GroupID, &m.AgentID, &m.Role, &joinedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying membership: %w", err)
	}

	if m.JoinedAt, err = parseTime(joinedAtStr); err != nil {
		return nil, fmt.Errorf("parsing joined_at: %w", err)
	}
	return &m, nil
}

// ListMembers returns the agents in a group joined with their roles,
// most recently joined first
func (s *SQLiteStore) ListMembers(ctx context.Context, groupID string) ([]*GroupMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.endpoint, a.capabilities, a.last_seen, a.created_at,
		       m.role, m.joined_at
		FROM group_members m
		JOIN agents a ON a.id = m.agent_id
		WHERE m.group_id = ?
		ORDER BY m.joined_at DESC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("querying members: %w", err)
	}
	defer rows.Close()

	var members []*GroupMember
	for rows.Next() {
		var member GroupMember
		var caps, lastSeenStr, createdAtStr, joinedAtStr string

		err := rows.Scan(
			&member.ID, &member.Name, &member.Endpoint, &caps, &lastSeenStr, &createdAtStr,
			&member.Role, &joinedAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}

		if member.Capabilities, err = decodeCapabilities(caps); err != nil {
			return nil, err
		}
		if member.LastSeen, err = parseTime(lastSeenStr); err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		if member.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if member.JoinedAt, err = parseTime(joinedAtStr); err != nil {
			return nil, fmt.Errorf("parsing joined_at: %w", err)
		}
		members = append(members, &member)
	}

	return members, rows.Err()
}

// ListGroupsForAgent returns the groups an agent belongs to joined with its
// role in each, newest group first
func (s *SQLiteStore) ListGroupsForAgent(ctx context.Context, agentID string) ([]*AgentGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.description, g.metadata, g.created_by, g.created_at,
		       (SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.id),
		       m.role
		FROM group_members m
		JOIN groups g ON g.id = m.group_id
		WHERE m.agent_id = ?
		ORDER BY g.created_at DESC
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("querying agent groups: %w", err)
	}
	defer rows.Close()

	var groups []*AgentGroup
	for rows.Next() {
		var ag AgentGroup
		var metadata sql.NullString
		var createdAtStr string

		err := rows.Scan(
			&ag.ID, &ag.Name, &ag.Description, &metadata, &ag.CreatedBy, &createdAtStr,
			&ag.MemberCount, &ag.Role,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning agent group: %w", err)
		}

		if metadata.Valid {
			ag.Metadata = []byte(metadata.String)
		}
		if ag.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		groups = append(groups, &ag)
	}

	return groups, rows.Err()
}
