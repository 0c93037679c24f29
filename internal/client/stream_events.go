// ABOUTME: Client subscription to the hub's event stream
// ABOUTME: Mints a subscriber token then dials the WebSocket endpoint

package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/2389/agent-mesh/internal/events"
)

// StreamEvents subscribes to the hub's event stream as agentID. Events arrive
// on the returned channel until ctx is cancelled or the connection drops,
// after which the channel is closed. types, when non-empty, narrows delivery
// to the named event types.
func (c *Client) StreamEvents(ctx context.Context, agentID string, types ...string) (<-chan events.Event, error) {
	var mint struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/events/token", nil, map[string]string{
		"agent_id": agentID,
	}, &mint); err != nil {
		return nil, err
	}

	query := url.Values{"token": {mint.Token}}
	if len(types) > 0 {
		query.Set("types", strings.Join(types, ","))
	}
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/v1/events?" + query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing event stream: %w", err)
	}

	ch := make(chan events.Event)
	done := make(chan struct{})
	go func() {
		defer close(ch)
		defer close(done)
		defer conn.Close()

		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		for {
			var evt events.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case ch <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
