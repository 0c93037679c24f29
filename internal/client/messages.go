// ABOUTME: Client operations for message routing
// ABOUTME: Send, broadcast, inbox reads, lifecycle updates, and retry

package client

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// SendRequest creates a direct message.
type SendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
	// TimeoutSeconds bounds the delivery window when positive.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Send creates a pending direct message.
func (c *Client) Send(ctx context.Context, req SendRequest) (*Message, error) {
	var msg Message
	if err := c.do(ctx, http.MethodPost, "/v1/messages", nil, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Broadcast fans a message out to every other registered agent.
func (c *Client) Broadcast(ctx context.Context, from, content string) (*BroadcastResult, error) {
	var res BroadcastResult
	if err := c.do(ctx, http.MethodPost, "/v1/messages/broadcast", nil, map[string]string{
		"from":    from,
		"content": content,
	}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// MessageFilter narrows Messages results.
type MessageFilter struct {
	Since      *time.Time
	UnreadOnly bool
}

// Messages lists messages addressed to an agent, newest first.
func (c *Client) Messages(ctx context.Context, agentID string, filter MessageFilter) ([]Message, error) {
	query := url.Values{}
	if filter.Since != nil {
		query.Set("since", filter.Since.Format(time.RFC3339Nano))
	}
	if filter.UnreadOnly {
		query.Set("unread_only", "true")
	}

	var res struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(agentID)+"/messages", query, nil, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// MarkRead marks a message as read. Idempotent.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPost, "/v1/messages/"+url.PathEscape(messageID)+"/read", nil, nil, nil)
}

// UpdateStatus advances a message along the delivery lifecycle.
func (c *Client) UpdateStatus(ctx context.Context, messageID, status, errText string) error {
	return c.do(ctx, http.MethodPost, "/v1/messages/"+url.PathEscape(messageID)+"/status", nil, map[string]string{
		"status": status,
		"error":  errText,
	}, nil)
}

// ListFailed lists recent failed and timed-out messages for an agent.
func (c *Client) ListFailed(ctx context.Context, agentID string) ([]Message, error) {
	var res struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(agentID)+"/messages/failed", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// Retry requeues a failed or timed-out message as pending.
func (c *Client) Retry(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPost, "/v1/messages/"+url.PathEscape(messageID)+"/retry", nil, nil, nil)
}
