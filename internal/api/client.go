package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnauthorized marks 401/403 responses. The preference sync controller
// swallows it; everything else surfaces it to the caller.
var ErrUnauthorized = errors.New("unauthorized")

const defaultTimeout = 10 * time.Second

// Client talks to the workspace backend over HTTP.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	log     *zap.Logger
}

// NewClient builds a client for the given base URL. An empty token sends
// unauthenticated requests; the server answers those with 401.
func NewClient(baseURL, token string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: defaultTimeout},
		log:     log.Named("api"),
	}
}

// HasToken reports whether the client carries credentials.
func (c *Client) HasToken() bool { return c.token != "" }

// SetTimeout overrides the per-request timeout. Non-positive values keep
// the default.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpc.Timeout = d
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// ParseVoiceCommand asks the backend to turn a transcript into a command.
func (c *Client) ParseVoiceCommand(ctx context.Context, text, sessionID string) (ParsedCommand, error) {
	req := struct {
		Text      string `json:"text"`
		SessionID string `json:"session_id"`
	}{Text: text, SessionID: sessionID}

	var cmd ParsedCommand
	if err := c.do(ctx, http.MethodPost, "/api/voice/parse", req, &cmd); err != nil {
		return ParsedCommand{}, err
	}
	if cmd.RawText == "" {
		cmd.RawText = text
	}
	return cmd, nil
}

// SendAgentMessage delivers a message to one agent in a session.
func (c *Client) SendAgentMessage(ctx context.Context, sessionID, agentID, message string) error {
	req := struct {
		Message string `json:"message"`
	}{Message: message}
	path := fmt.Sprintf("/api/sessions/%s/agents/%s/messages", sessionID, agentID)
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// CreateAgent spawns a new agent in the session.
func (c *Client) CreateAgent(ctx context.Context, sessionID string, req CreateAgentRequest) (Agent, error) {
	var agent Agent
	path := fmt.Sprintf("/api/sessions/%s/agents", sessionID)
	if err := c.do(ctx, http.MethodPost, path, req, &agent); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// GetUserConfig fetches the user's persisted configuration. It returns
// (nil, nil) for unauthenticated clients so callers can fall back to
// local defaults without special-casing the error.
func (c *Client) GetUserConfig(ctx context.Context) (*UserConfig, error) {
	if !c.HasToken() {
		return nil, nil
	}
	var cfg UserConfig
	if err := c.do(ctx, http.MethodGet, "/api/user/config", nil, &cfg); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			c.log.Debug("user config fetch unauthorized")
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// UpdateUserConfig persists the user configuration server-side. Callers
// build the envelope; fields they leave nil stay untouched on the server.
func (c *Client) UpdateUserConfig(ctx context.Context, cfg UserConfig) error {
	return c.do(ctx, http.MethodPut, "/api/user/config", cfg, nil)
}
