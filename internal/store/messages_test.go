// ABOUTME: Tests for message persistence and status transitions
// ABOUTME: Covers filtered listing, read flag, guarded transitions, and expiry scans

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testMessage(from, to, content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		FromAgent: from,
		ToAgent:   to,
		Content:   content,
		Type:      MessageTypeDirect,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateAndGetMessage(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	msg := testMessage("a", "b", "hello")
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if got.Content != "hello" {
		t.Errorf("Content mismatch: got %q", got.Content)
	}
	if got.Status != StatusPending {
		t.Errorf("fresh message should be pending, got %q", got.Status)
	}
	if got.Read {
		t.Error("fresh message should be unread")
	}
	if got.ExpiresAt != nil {
		t.Error("message without timeout request should have nil ExpiresAt")
	}
}

func TestGetMessage_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if _, err := s.GetMessage(context.Background(), "nope"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListMessages_Filters(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 4; i++ {
		msg := testMessage("a", "b", fmt.Sprintf("msg-%d", i))
		msg.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if i == 0 {
			msg.Read = true
		}
		if err := s.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}
	// A message for someone else must never show up
	if err := s.CreateMessage(ctx, testMessage("a", "c", "other")); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	msgs, err := s.ListMessages(ctx, MessageFilter{ToAgent: "b"})
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "msg-3" {
		t.Errorf("messages not newest-first: got %q first", msgs[0].Content)
	}

	since := base.Add(90 * time.Second)
	msgs, err = s.ListMessages(ctx, MessageFilter{ToAgent: "b", Since: &since})
	if err != nil {
		t.Fatalf("ListMessages with since failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("since filter: expected 2 messages, got %d", len(msgs))
	}

	msgs, err = s.ListMessages(ctx, MessageFilter{ToAgent: "b", UnreadOnly: true})
	if err != nil {
		t.Fatalf("ListMessages unread failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("unread filter: expected 3 messages, got %d", len(msgs))
	}
}

func TestMarkMessageRead_Idempotent(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	msg := testMessage("a", "b", "hi")
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.MarkMessageRead(ctx, msg.ID); err != nil {
			t.Fatalf("MarkMessageRead call %d failed: %v", i+1, err)
		}
	}

	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if !got.Read {
		t.Error("message should be read")
	}
	if got.Status != StatusPending {
		t.Errorf("mark-read must not alter status, got %q", got.Status)
	}
}

func TestTransitionMessage(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	msg := testMessage("a", "b", "hi")
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	err := s.TransitionMessage(ctx, msg.ID, StatusDelivered, "", []string{StatusPending})
	if err != nil {
		t.Fatalf("TransitionMessage failed: %v", err)
	}

	got, _ := s.GetMessage(ctx, msg.ID)
	if got.Status != StatusDelivered {
		t.Errorf("status not updated: got %q", got.Status)
	}
}

func TestTransitionMessage_Illegal(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	msg := testMessage("a", "b", "hi")
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	err := s.TransitionMessage(ctx, msg.ID, StatusCompleted, "", []string{StatusProcessing})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition, got %v", err)
	}

	got, _ := s.GetMessage(ctx, msg.ID)
	if got.Status != StatusPending {
		t.Errorf("failed transition must not change status, got %q", got.Status)
	}
}

func TestTransitionMessage_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	err := s.TransitionMessage(context.Background(), "nope", StatusDelivered, "", []string{StatusPending})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListFailedMessages(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, status := range []string{StatusFailed, StatusTimeout, StatusCompleted, StatusPending} {
		msg := testMessage("a", "b", fmt.Sprintf("msg-%d", i))
		msg.Status = status
		msg.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	msgs, err := s.ListFailedMessages(ctx, "b", 50)
	if err != nil {
		t.Fatalf("ListFailedMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 failed messages, got %d", len(msgs))
	}
	if msgs[0].Status != StatusTimeout || msgs[1].Status != StatusFailed {
		t.Errorf("failed messages not newest-first: %q, %q", msgs[0].Status, msgs[1].Status)
	}
}

func TestListExpiredMessages(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	expired := testMessage("a", "b", "expired")
	expired.ExpiresAt = &past

	fresh := testMessage("a", "b", "fresh")
	fresh.ExpiresAt = &future

	// No timeout requested: never swept regardless of age
	unbounded := testMessage("a", "b", "unbounded")
	unbounded.CreatedAt = now.Add(-24 * time.Hour)

	terminal := testMessage("a", "b", "terminal")
	terminal.ExpiresAt = &past
	terminal.Status = StatusCompleted

	for _, msg := range []*Message{expired, fresh, unbounded, terminal} {
		if err := s.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	msgs, err := s.ListExpiredMessages(ctx, now)
	if err != nil {
		t.Fatalf("ListExpiredMessages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != expired.ID {
		t.Errorf("expected only the expired pending message, got %d messages", len(msgs))
	}
}

func TestCreateMessages_Batch(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	batch := []*Message{
		testMessage("a", "b", "one"),
		testMessage("a", "c", "two"),
	}
	if err := s.CreateMessages(ctx, batch); err != nil {
		t.Fatalf("CreateMessages failed: %v", err)
	}

	for _, msg := range batch {
		if _, err := s.GetMessage(ctx, msg.ID); err != nil {
			t.Errorf("batch message %s not stored: %v", msg.ID, err)
		}
	}
}
