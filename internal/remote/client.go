// Package remote implements the HTTP client for the inference endpoint:
// a liveness probe and a synthesis call, both bearer-authenticated.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ambiware-labs/voxbatch/internal/config"
)

// StatusUnreachable is the status recorded when the endpoint could not be
// reached at all (connection refused, timeout, DNS failure).
const StatusUnreachable = 0

type Client struct {
	baseURL string
	apiKey  string
	modelID string
	http    *http.Client
	log     *slog.Logger
}

func NewClient(cfg config.EndpointConfig, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		modelID: cfg.ModelID,
		http:    &http.Client{},
		log:     log.With(slog.String("component", "remote")),
	}
}

func (c *Client) ModelID() string { return c.modelID }

// Ping issues one liveness probe. Transport failures are not errors from the
// caller's point of view; they come back as StatusUnreachable.
func (c *Client) Ping(ctx context.Context) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		c.log.Warn("failed to build ping request", slog.String("error", err.Error()))
		return StatusUnreachable
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return StatusUnreachable
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode
}

type synthesisRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// Synthesize posts one line of text and returns the raw audio payload on
// HTTP 200. A non-200 response yields (nil, status, nil); a transport
// failure yields (nil, StatusUnreachable, err).
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, int, error) {
	body, err := json.Marshal(synthesisRequest{Text: text, Model: c.modelID})
	if err != nil {
		return nil, StatusUnreachable, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts", bytes.NewReader(body))
	if err != nil {
		return nil, StatusUnreachable, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, StatusUnreachable, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, nil
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, StatusUnreachable, fmt.Errorf("read synthesis response: %w", err)
	}
	return audio, resp.StatusCode, nil
}
