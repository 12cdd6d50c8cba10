package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/casalink/inboxd/internal/model"
	"go.uber.org/zap"
)

// Client talks to the marketplace REST API. It implements Directory and
// Messages plus the entity lookups the notification router falls back to.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	logger  *zap.Logger
}

// NewClient creates an API client for the given base URL and bearer token.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

type connectionWire struct {
	ID          string `json:"id"`
	InitiatorID string `json:"initiator_id"`
	CreatedAt   int64  `json:"created_at_unix_ms"`
	Peer        struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
		AvatarURL   string `json:"avatar_url"`
		Role        string `json:"role"`
		IsOnline    bool   `json:"is_online"`
	} `json:"peer"`
}

type messageWire struct {
	ID            string   `json:"id"`
	ConnectionID  string   `json:"connection_id"`
	SenderID      string   `json:"sender_id"`
	FromInitiator bool     `json:"from_initiator"`
	Text          string   `json:"text"`
	Attachments   []string `json:"attachments"`
	Read          bool     `json:"read"`
	Timestamp     int64    `json:"timestamp_unix_ms"`
}

// ListConnections fetches the relationship set for a user.
func (c *Client) ListConnections(ctx context.Context, userID string) ([]model.Connection, error) {
	var resp struct {
		Connections []connectionWire `json:"connections"`
	}
	if err := c.get(ctx, "/v1/users/"+url.PathEscape(userID)+"/connections", &resp); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	conns := make([]model.Connection, 0, len(resp.Connections))
	for _, w := range resp.Connections {
		conns = append(conns, model.Connection{
			ID:          w.ID,
			InitiatorID: w.InitiatorID,
			CreatedAt:   w.CreatedAt,
			Peer: model.Profile{
				UserID:      w.Peer.UserID,
				DisplayName: w.Peer.DisplayName,
				AvatarURL:   w.Peer.AvatarURL,
				Role:        model.Role(w.Peer.Role),
				IsOnline:    w.Peer.IsOnline,
			},
		})
	}
	return conns, nil
}

// MessageHistory fetches a connection's messages in chronological order.
func (c *Client) MessageHistory(ctx context.Context, connectionID string) ([]model.Message, error) {
	var resp struct {
		Messages []messageWire `json:"messages"`
	}
	if err := c.get(ctx, "/v1/connections/"+url.PathEscape(connectionID)+"/messages", &resp); err != nil {
		return nil, fmt.Errorf("message history %s: %w", connectionID, err)
	}

	msgs := make([]model.Message, 0, len(resp.Messages))
	for _, w := range resp.Messages {
		msgs = append(msgs, model.Message{
			ID:            w.ID,
			ConnectionID:  w.ConnectionID,
			SenderID:      w.SenderID,
			FromInitiator: w.FromInitiator,
			Text:          w.Text,
			Attachments:   w.Attachments,
			Read:          w.Read,
			Timestamp:     w.Timestamp,
		})
	}
	return msgs, nil
}

// Job fetches one job by id. Returns ErrNotFound for revoked/deleted jobs.
func (c *Client) Job(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.get(ctx, "/v1/jobs/"+url.PathEscape(jobID), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Property fetches one property by id. Returns ErrNotFound when it no
// longer exists.
func (c *Client) Property(ctx context.Context, propertyID string) (*Property, error) {
	var prop Property
	if err := c.get(ctx, "/v1/properties/"+url.PathEscape(propertyID), &prop); err != nil {
		return nil, err
	}
	return &prop, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return nil
}
