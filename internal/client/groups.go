// ABOUTME: Client operations for groups, membership, and collective memory
// ABOUTME: Covers creation, rosters, group broadcast, and versioned memory

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// CreateGroupRequest creates a new group.
type CreateGroupRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	CreatedBy   string          `json:"created_by"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// CreateGroup makes a group; the creator joins as its first admin member.
func (c *Client) CreateGroup(ctx context.Context, req CreateGroupRequest) (*Group, error) {
	var g Group
	if err := c.do(ctx, http.MethodPost, "/v1/groups", nil, req, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGroups returns all groups with member counts.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var res struct {
		Groups []Group `json:"groups"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/groups", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Groups, nil
}

// GroupDetail is a group with its member roster.
type GroupDetail struct {
	Group
	Members []Member `json:"members"`
}

// GetGroup returns a group with its members.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*GroupDetail, error) {
	var d GroupDetail
	if err := c.do(ctx, http.MethodGet, "/v1/groups/"+url.PathEscape(groupID), nil, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// AddMember joins an agent to a group. Empty role defaults to member.
func (c *Client) AddMember(ctx context.Context, groupID, agentID, role string) error {
	return c.do(ctx, http.MethodPost, "/v1/groups/"+url.PathEscape(groupID)+"/members", nil, map[string]string{
		"agent_id": agentID,
		"role":     role,
	}, nil)
}

// RemoveMember removes an agent from a group.
func (c *Client) RemoveMember(ctx context.Context, groupID, agentID string) error {
	path := "/v1/groups/" + url.PathEscape(groupID) + "/members/" + url.PathEscape(agentID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// AgentGroups lists the groups an agent belongs to, with its role.
func (c *Client) AgentGroups(ctx context.Context, agentID string) ([]Group, error) {
	var res struct {
		Groups []Group `json:"groups"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(agentID)+"/groups", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Groups, nil
}

// GroupBroadcast sends content to every member of a group except the sender.
func (c *Client) GroupBroadcast(ctx context.Context, groupID, from, content string) (*BroadcastResult, error) {
	var res BroadcastResult
	if err := c.do(ctx, http.MethodPost, "/v1/groups/"+url.PathEscape(groupID)+"/broadcast", nil, map[string]string{
		"from":    from,
		"content": content,
	}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// WriteMemoryResult reports a memory write.
type WriteMemoryResult struct {
	MemoryID string `json:"memory_id"`
	Version  int64  `json:"version"`
}

// WriteMemory writes or updates a group memory entry.
func (c *Client) WriteMemory(ctx context.Context, groupID, agentID, key string, value json.RawMessage, memType string) (*WriteMemoryResult, error) {
	var res WriteMemoryResult
	if err := c.do(ctx, http.MethodPost, "/v1/groups/"+url.PathEscape(groupID)+"/memory", nil, map[string]any{
		"agent_id": agentID,
		"key":      key,
		"value":    value,
		"type":     memType,
	}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ReadMemory lists a group's memory entries, optionally narrowed by keys.
func (c *Client) ReadMemory(ctx context.Context, groupID string, keys ...string) ([]MemoryEntry, error) {
	query := url.Values{}
	if len(keys) > 0 {
		query.Set("keys", strings.Join(keys, ","))
	}

	var res struct {
		Entries []MemoryEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/groups/"+url.PathEscape(groupID)+"/memory", query, nil, &res); err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// ReadMemoryKey returns a single memory entry.
func (c *Client) ReadMemoryKey(ctx context.Context, groupID, key string) (*MemoryEntry, error) {
	path := "/v1/groups/" + url.PathEscape(groupID) + "/memory/" + url.PathEscape(key)
	var e MemoryEntry
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteMemory removes a memory entry on behalf of agentID.
func (c *Client) DeleteMemory(ctx context.Context, groupID, agentID, key string) error {
	path := "/v1/groups/" + url.PathEscape(groupID) + "/memory/" + url.PathEscape(key)
	query := url.Values{"agent_id": {agentID}}
	return c.do(ctx, http.MethodDelete, path, query, nil, nil)
}

// GetMemoryHistory summarizes a key's current version and last writer.
func (c *Client) GetMemoryHistory(ctx context.Context, groupID, key string) (*MemoryHistory, error) {
	path := "/v1/groups/" + url.PathEscape(groupID) + "/memory/" + url.PathEscape(key) + "/history"
	var h MemoryHistory
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}
