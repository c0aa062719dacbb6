package license

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DefaultEndpoint is the public verification URL.
const DefaultEndpoint = "https://hippomind.org/api/verify-license"

const (
	msgNetwork         = "Network error. Please check your internet connection."
	msgRejected        = "Invalid license key. Please check and try again."
	msgVerifyOffline   = "Failed to verify license. Please check your internet connection."
	msgActivateOffline = "Failed to activate license. Please check your internet connection."
)

// Result is what the client reports to the user.
type Result struct {
	Valid bool
	Email string
	Error string
	// Offline is set when the server could not be reached or answered
	// with an error status.
	Offline bool
}

// Client talks to a license server.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a Client. An empty endpoint uses DefaultEndpoint.
func NewClient(endpoint string, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// Verify checks key without consuming an activation.
func (c *Client) Verify(ctx context.Context, key string) Result {
	return c.call(ctx, key, false, msgVerifyOffline)
}

// Activate checks key and consumes an activation.
func (c *Client) Activate(ctx context.Context, key string) Result {
	return c.call(ctx, key, true, msgActivateOffline)
}

func (c *Client) call(ctx context.Context, key string, increment bool, offline string) Result {
	body, err := json.Marshal(VerifyRequest{LicenseKey: strings.TrimSpace(key), Increment: increment})
	if err != nil {
		return Result{Error: offline}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Error: offline}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("license request failed", slog.String("error", err.Error()))
		return Result{Error: offline, Offline: true}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("license server error", slog.String("status", fmt.Sprint(resp.StatusCode)))
		return Result{Error: msgNetwork, Offline: true}
	}

	var vr VerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return Result{Error: offline, Offline: true}
	}
	if !vr.Valid {
		if vr.Error == "" {
			vr.Error = msgRejected
		}
		return Result{Error: vr.Error}
	}
	return Result{Valid: true, Email: vr.Email}
}
