// ABOUTME: Message persistence for the SQLite store
// ABOUTME: Covers creation, filtered listing, read flag, and atomic status transitions

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CreateMessage inserts a single message
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	return s.execInsertMessage(ctx, s.db, msg)
}

// CreateMessages inserts a batch of messages in one transaction.
// Used by broadcast paths; per-message failure aborts the batch.
func (s *SQLiteStore) CreateMessages(ctx context.Context, msgs []*Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, msg := range msgs {
		if err := s.execInsertMessage(ctx, tx, msg); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing messages: %w", err)
	}
	return nil
}

// execer abstracts *sql.DB and *sql.Tx for inserts
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) execInsertMessage(ctx context.Context, e execer, msg *Message) error {
	var expiresAt any
	if msg.ExpiresAt != nil {
		expiresAt = formatTime(*msg.ExpiresAt)
	}

	_, err := e.ExecContext(ctx, `
		INSERT INTO messages (id, from_agent, to_agent, content, type, read, status, error, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID, msg.FromAgent, msg.ToAgent, msg.Content, msg.Type,
		boolToInt(msg.Read), msg.Status, msg.Error, expiresAt, formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("created message", "id", msg.ID, "from", msg.FromAgent, "to", msg.ToAgent, "type", msg.Type)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const messageColumns = `id, from_agent, to_agent, content, type, read, status, error, expires_at, created_at`

func scanMessage(scan func(dest ...any) error) (*Message, error) {
	var msg Message
	var read int
	var expiresAtStr sql.NullString
	var createdAtStr string

	err := scan(
		&msg.ID, &msg.FromAgent, &msg.ToAgent, &msg.Content, &msg.Type,
		&read, &msg.Status, &msg.Error, &expiresAtStr, &createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	msg.Read = read != 0
	if expiresAtStr.Valid {
		t, err := parseTime(expiresAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing expires_at: %w", err)
		}
		msg.ExpiresAt = &t
	}
	if msg.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &msg, nil
}

// GetMessage retrieves a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)

	msg, err := scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return msg, nil
}

// ListMessages returns messages matching the filter, newest first
func (s *SQLiteStore) ListMessages(ctx context.Context, filter MessageFilter) ([]*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE to_agent = ?`
	args := []any{filter.ToAgent}

	if filter.Since != nil {
		query += ` AND created_at > ?`
		args = append(args, formatTime(*filter.Since))
	}
	if filter.UnreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC`

	return s.queryMessages(ctx, query, args...)
}

// ListFailedMessages returns the most recent failed or timed-out messages
// addressed to an agent, newest first
func (s *SQLiteStore) ListFailedMessages(ctx context.Context, toAgent string, limit int) ([]*Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE to_agent = ? AND status IN (?, ?)
		ORDER BY created_at DESC
		LIMIT ?
	`, toAgent, StatusFailed, StatusTimeout, limit)
}

// ListExpiredMessages returns messages still pending or processing whose
// requested delivery deadline has passed
func (s *SQLiteStore) ListExpiredMessages(ctx context.Context, now time.Time) ([]*Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE status IN (?, ?) AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY created_at ASC
	`, StatusPending, StatusProcessing, formatTime(now))
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, msg)
	}

	return msgs, rows.Err()
}

// MarkMessageRead sets the read flag. Idempotent.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking message read: %w", err)
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

// TransitionMessage moves a message to toStatus if its current status is in
// allowedFrom, in a single guarded UPDATE so concurrent transitions of the
// same message cannot race. Returns ErrNotFound if the message doesn't exist
// and ErrIllegalTransition if its current status is not in allowedFrom.
func (s *SQLiteStore) TransitionMessage(ctx context.Context, id, toStatus, errText string, allowedFrom []string) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(allowedFrom)), ", ")
	args := []any{toStatus, errText, id}
	for _, from := range allowedFrom {
		args = append(args, from)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ?, error = ? WHERE id = ? AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("updating message status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected > 0 {
		s.logger.Debug("message transitioned", "id", id, "status", toStatus)
		return nil
	}

	// Distinguish a missing message from an illegal transition
	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM messages WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying message status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, toStatus)
}
