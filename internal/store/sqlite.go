// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides agent/message/group/memory persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is RFC 3339 with fixed-width nanoseconds so that TEXT columns
// sort chronologically under lexicographic ORDER BY.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN so read-modify-write
	// transactions never deadlock against each other
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_txlock=immediate", path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Wait for concurrent writers instead of failing with SQLITE_BUSY
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL UNIQUE,
			endpoint     TEXT NOT NULL DEFAULT '',
			capabilities TEXT NOT NULL DEFAULT '[]',
			last_seen    TEXT NOT NULL,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_agents_last_seen ON agents(last_seen DESC);

		CREATE TABLE IF NOT EXISTS skills (
			id          TEXT PRIMARY KEY,
			agent_id    TEXT NOT NULL REFERENCES agents(id),
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			endpoint    TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_skills_agent ON skills(agent_id);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			from_agent TEXT NOT NULL,
			to_agent   TEXT NOT NULL,
			content    TEXT NOT NULL,
			type       TEXT NOT NULL DEFAULT 'direct',
			read       INTEGER NOT NULL DEFAULT 0,
			status     TEXT NOT NULL DEFAULT 'pending',
			error      TEXT NOT NULL DEFAULT '',
			expires_at TEXT,
			created_at TEXT NOT NULL,

			CHECK (type IN ('direct', 'broadcast', 'skill_invocation')),
			CHECK (status IN ('pending', 'delivered', 'processing', 'completed', 'failed', 'timeout'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_to_created ON messages(to_agent, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);
		CREATE INDEX IF NOT EXISTS idx_messages_expires ON messages(expires_at) WHERE expires_at IS NOT NULL;

		CREATE TABLE IF NOT EXISTS groups (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			metadata    TEXT,
			created_by  TEXT NOT NULL,
			created_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_groups_created ON groups(created_at DESC);

		CREATE TABLE IF NOT EXISTS group_members (
			group_id  TEXT NOT NULL REFERENCES groups(id),
			agent_id  TEXT NOT NULL REFERENCES agents(id),
			role      TEXT NOT NULL DEFAULT 'member',
			joined_at TEXT NOT NULL,

			PRIMARY KEY (group_id, agent_id),
			CHECK (role IN ('member', 'admin', 'observer'))
		);

		CREATE INDEX IF NOT EXISTS idx_group_members_agent ON group_members(agent_id);

		CREATE TABLE IF NOT EXISTS memory_entries (
			id          TEXT PRIMARY KEY,
			group_id    TEXT NOT NULL REFERENCES groups(id),
			key         TEXT NOT NULL,
			value       TEXT NOT NULL,
			memory_type TEXT NOT NULL DEFAULT 'shared',
			version     INTEGER NOT NULL DEFAULT 1,
			agent_id    TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,

			UNIQUE (group_id, key),
			CHECK (memory_type IN ('shared', 'readonly'))
		);

		CREATE INDEX IF NOT EXISTS idx_memory_group_updated ON memory_entries(group_id, updated_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// formatTime renders a timestamp for storage in a TEXT column
func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// parseTime reads a timestamp written by formatTime
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Tolerate rows written without fractional seconds
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}

// encodeCapabilities serializes a capability list for storage
func encodeCapabilities(caps []string) (string, error) {
	if caps == nil {
		caps = []string{}
	}
	data, err := json.Marshal(caps)
	if err != nil {
		return "", fmt.Errorf("encoding capabilities: %w", err)
	}
	return string(data), nil
}

// decodeCapabilities deserializes a stored capability list
func decodeCapabilities(data string) ([]string, error) {
	var caps []string
	if err := json.Unmarshal([]byte(data), &caps); err != nil {
		return nil, fmt.Errorf("decoding capabilities: %w", err)
	}
	return caps, nil
}

// RegisterAgent performs the identity-preserving registration upsert in a
// single transaction. If an agent with the same name exists, its endpoint
// (when non-empty), capabilities, skills, and last_seen are updated in place
// and the existing row is returned with existing=true. Otherwise the given
// agent is inserted as-is and returned with existing=false.
func (s *SQLiteStore) RegisterAgent(ctx context.Context, agent *Agent, skills []*Skill) (*Agent, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.getAgentBy(ctx, tx, "name", agent.Name)
	if err != nil && err != ErrNotFound {
		return nil, false, err
	}

	existing := err == nil
	stored := agent
	if existing {
		stored = current
		if agent.Endpoint != "" {
			stored.Endpoint = agent.Endpoint
		}
		stored.Capabilities = agent.Capabilities
		stored.LastSeen = agent.LastSeen

		caps, err := encodeCapabilities(stored.Capabilities)
		if err != nil {
			return nil, false, err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE agents SET endpoint = ?, capabilities = ?, last_seen = ? WHERE id = ?`,
			stored.Endpoint, caps, formatTime(stored.LastSeen), stored.ID,
		)
		if err != nil {
			return nil, false, fmt.Errorf("updating agent: %w", err)
		}

		// Registration replaces the agent's declared skills wholesale
		if _, err := tx.ExecContext(ctx, `DELETE FROM skills WHERE agent_id = ?`, stored.ID); err != nil {
			return nil, false, fmt.Errorf("clearing skills: %w", err)
		}
	} else {
		caps, err := encodeCapabilities(agent.Capabilities)
		if err != nil {
			return nil, false, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO agents (id, name, endpoint, capabilities, last_seen, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			agent.ID, agent.Name, agent.Endpoint, caps,
			formatTime(agent.LastSeen), formatTime(agent.CreatedAt),
		)
		if err != nil {
			return nil, false, fmt.Errorf("inserting agent: %w", err)
		}
	}

	for _, skill := range skills {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO skills (id, agent_id, name, description, endpoint, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			skill.ID, stored.ID, skill.Name, skill.Description, skill.Endpoint,
			formatTime(skill.CreatedAt),
		)
		if err != nil {
			return nil, false, fmt.Errorf("inserting skill %q: %w", skill.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing registration: %w", err)
	}

	s.logger.Debug("registered agent", "id", stored.ID, "name", stored.Name, "existing", existing)
	return stored, existing, nil
}

// querier abstracts *sql.DB and *sql.Tx for shared query helpers
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// getAgentBy fetches a single agent by an identifying column.
// Returns ErrNotFound if no row matches.
func (s *SQLiteStore) getAgentBy(ctx context.Context, q querier, column, value string) (*Agent, error) {
	query := fmt.Sprintf(`
		SELECT id, name, endpoint, capabilities, last_seen, created_at
		FROM agents
		WHERE %s = ?
	`, column)

	var agent Agent
	var caps, lastSeenStr, createdAtStr string

	err := q.QueryRowContext(ctx, query, value).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Endpoint,
		&caps,
		&lastSeenStr,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}

	if agent.Capabilities, err = decodeCapabilities(caps); err != nil {
		return nil, err
	}
	if agent.LastSeen, err = parseTime(lastSeenStr); err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}
	if agent.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &agent, nil
}

// GetAgent retrieves an agent by ID.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	return s.getAgentBy(ctx, s.db, "id", id)
}

// GetAgentByName retrieves an agent by its unique name.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) GetAgentByName(ctx context.Context, name string) (*Agent, error) {
	return s.getAgentBy(ctx, s.db, "name", name)
}

// ListAgents returns all agents ordered by last_seen descending
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, endpoint, capabilities, last_seen, created_at
		FROM agents
		ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var agent Agent
		var caps, lastSeenStr, createdAtStr string

		if err := rows.Scan(&agent.ID, &agent.Name, &agent.Endpoint, &caps, &lastSeenStr, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		if agent.Capabilities, err = decodeCapabilities(caps); err != nil {
			return nil, err
		}
		if agent.LastSeen, err = parseTime(lastSeenStr); err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		if agent.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		agents = append(agents, &agent)
	}

	return agents, rows.Err()
}

// TouchAgent advances an agent's last_seen timestamp.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) TouchAgent(ctx context.Context, id string, seen time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET last_seen = ? WHERE id = ?`,
		formatTime(seen), id,
	)
	if err != nil {
		return fmt.Errorf("updating last_seen: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSkills returns the skills of one agent, or of all agents when agentID is empty
func (s *SQLiteStore) ListSkills(ctx context.Context, agentID string) ([]*Skill, error) {
	query := `
		SELECT id, agent_id, name, description, endpoint, created_at
		FROM skills
	`
	var args []any
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying skills: %w", err)
	}
	defer rows.Close()

	var skills []*Skill
	for rows.Next() {
		var skill Skill
		var createdAtStr string

		if err := rows.Scan(&skill.ID, &skill.AgentID, &skill.Name, &skill.Description, &skill.Endpoint, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning skill: %w", err)
		}
		if skill.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		skills = append(skills, &skill)
	}

	return skills, rows.Err()
}
