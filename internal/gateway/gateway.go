// Package gateway implements the outbound messaging gateway client. Message
// persistence is the source of truth; gateway delivery is best-effort, so
// send failures are returned to the caller for logging but never roll back
// an already-persisted message or an already-settled debit.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OutboundMessage is the dispatch payload for one customer-bound message.
type OutboundMessage struct {
	TenantID    string  `json:"tenant_id"`
	SubTenantID *string `json:"sub_tenant_id,omitempty"`
	Destination string  `json:"destination"`
	Type        string  `json:"type"`
	Text        string  `json:"text,omitempty"`
	MediaRef    string  `json:"media_ref,omitempty"`
}

// Sender delivers outbound messages to the customer's channel.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// Client is an HTTP Sender posting to the gateway's /v1/messages endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient constructs a gateway client with a bounded per-call timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Send implements Sender. Non-2xx responses are reported as errors.
func (c *Client) Send(ctx context.Context, msg OutboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway send: unexpected status %d", resp.StatusCode)
	}
	return nil
}
