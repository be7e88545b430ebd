// Package bot wraps the external conversational-AI responder. The service
// receives a free-text message plus a company id and returns a free-text
// reply. Calls are bounded by the caller's context; this client never retries.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Responder produces an automated reply for a customer message.
type Responder interface {
	Reply(ctx context.Context, companyID int64, message string) (string, error)
}

// Client is the HTTP implementation of Responder.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient builds a client for the responder endpoint. The http.Client
// timeout is a backstop; per-call deadlines come from ctx.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type replyRequest struct {
	Message   string `json:"message"`
	CompanyID int64  `json:"company_id"`
}

type replyResponse struct {
	Response string `json:"response"`
}

// Reply performs one synchronous round trip to the responder.
func (c *Client) Reply(ctx context.Context, companyID int64, message string) (string, error) {
	payload, err := json.Marshal(replyRequest{Message: message, CompanyID: companyID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("bot responder returned %d: %s", resp.StatusCode, body)
	}

	var parsed replyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode bot reply: %w", err)
	}
	return parsed.Response, nil
}
