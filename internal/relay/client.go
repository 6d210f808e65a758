// Package relay bridges chat turns between the caller-facing API and a remote
// conversational-agent endpoint. It opens the streaming request for a turn,
// decodes and interprets the event stream, and manages the suspend/resume
// lifecycle around interactive credential requests.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ashureev/agent-relay/internal/stream"
	"golang.org/x/oauth2"
)

// Flavor identifies the wire dialect of the agent endpoint.
type Flavor string

const (
	// FlavorAgentEngine talks to a deployed Agent Engine via its :query and
	// :streamQuery class-method endpoints. Responses are concatenated JSON
	// objects and requests carry an ambient-credential bearer token.
	FlavorAgentEngine Flavor = "agentengine"
	// FlavorADK talks to a locally served ADK API (/list-apps, /run_sse).
	// Responses are SSE framed and no bearer token is sent.
	FlavorADK Flavor = "adk"
)

const maxErrorBodyBytes = 4096

// Message is the outbound message envelope sent to the agent for one turn.
type Message struct {
	Role  string        `json:"role"`
	Parts []MessagePart `json:"parts"`
}

// MessagePart is one part of an outbound message.
type MessagePart struct {
	Text             string                   `json:"text,omitempty"`
	FunctionResponse *stream.FunctionResponse `json:"function_response,omitempty"`
}

// TextMessage wraps a user utterance as a one-part message.
func TextMessage(text string) Message {
	return Message{Role: "user", Parts: []MessagePart{{Text: text}}}
}

// CredentialMessage wraps a completed credential exchange as a
// function-result message correlated to the originating request by callID.
func CredentialMessage(callID string, authConfig map[string]any) Message {
	return Message{Role: "user", Parts: []MessagePart{{
		FunctionResponse: &stream.FunctionResponse{
			Name:     stream.CredentialRequestTool,
			ID:       callID,
			Response: authConfig,
		},
	}}}
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the agent endpoint, without a trailing slash.
	BaseURL string
	Flavor  Flavor
	// UserID is the remote user identity presented to the agent endpoint.
	UserID string
	// AppName names the deployed ADK app. When empty it is resolved once from
	// the endpoint's /list-apps and cached.
	AppName string
	// Timeout bounds each upstream request end to end, including the time the
	// endpoint holds the stream open while the model computes.
	Timeout time.Duration
	// Tokens supplies bearer tokens for the endpoint; nil sends none.
	Tokens oauth2.TokenSource
}

// Client issues conversation-create and streaming-turn requests against one
// agent endpoint. It is safe for concurrent use.
type Client struct {
	baseURL string
	flavor  Flavor
	userID  string
	tokens  oauth2.TokenSource
	http    *http.Client

	mu      sync.Mutex
	appName string
}

// NewClient creates a client for the configured endpoint.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		flavor:  cfg.Flavor,
		userID:  cfg.UserID,
		tokens:  cfg.Tokens,
		appName: cfg.AppName,
		http:    &http.Client{Timeout: timeout},
	}
}

// Framing returns the stream framing used by this endpoint flavor.
func (c *Client) Framing() stream.Framing {
	if c.flavor == FlavorADK {
		return stream.FramingSSE
	}
	return stream.FramingJSON
}

// CreateConversation asks the endpoint for a new remote conversation and
// returns its identifier.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	switch c.flavor {
	case FlavorADK:
		return c.createConversationADK(ctx)
	default:
		return c.createConversationAgentEngine(ctx)
	}
}

func (c *Client) createConversationAgentEngine(ctx context.Context) (string, error) {
	body := map[string]any{
		"class_method": "create_session",
		"input":        map[string]any{"user_id": c.userID},
	}
	resp, err := c.post(ctx, c.baseURL+":query", body, false)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)

	var out struct {
		Output struct {
			ID string `json:"id"`
		} `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode create_session response: %w", err)
	}
	if out.Output.ID == "" {
		return "", fmt.Errorf("create_session response carried no session id")
	}
	return out.Output.ID, nil
}

func (c *Client) createConversationADK(ctx context.Context) (string, error) {
	app, err := c.resolveAppName(ctx)
	if err != nil {
		return "", err
	}
	u := fmt.Sprintf("%s/apps/%s/users/%s/sessions", c.baseURL, url.PathEscape(app), url.PathEscape(c.userID))
	resp, err := c.post(ctx, u, map[string]any{}, false)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode session create response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("session create response carried no session id")
	}
	return out.ID, nil
}

// resolveAppName returns the configured ADK app name, fetching the first entry
// of /list-apps on first use.
func (c *Client) resolveAppName(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.appName != "" {
		return c.appName, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/list-apps", nil)
	if err != nil {
		return "", fmt.Errorf("build list-apps request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("list apps: %w", err)}
	}
	defer closeBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.statusError(resp)
	}

	var apps []string
	if err := json.NewDecoder(resp.Body).Decode(&apps); err != nil {
		return "", fmt.Errorf("decode list-apps response: %w", err)
	}
	if len(apps) == 0 {
		return "", fmt.Errorf("agent endpoint reports no deployed apps")
	}
	c.appName = apps[0]
	slog.Info("Resolved ADK app name", "app_name", c.appName)
	return c.appName, nil
}

// OpenStream opens the streaming turn request and returns the live response.
// The caller owns the body and must close it. A non-2xx status or connection
// failure is returned as a *TransportError.
func (c *Client) OpenStream(ctx context.Context, conversationID string, msg Message) (*http.Response, error) {
	var u string
	var body map[string]any
	switch c.flavor {
	case FlavorADK:
		app, err := c.resolveAppName(ctx)
		if err != nil {
			return nil, err
		}
		u = c.baseURL + "/run_sse"
		body = map[string]any{
			"appName":    app,
			"userId":     c.userID,
			"sessionId":  conversationID,
			"newMessage": msg,
			"streaming":  false,
		}
	default:
		u = c.baseURL + ":streamQuery?alt=sse"
		body = map[string]any{
			"class_method": "async_stream_query",
			"input": map[string]any{
				"user_id":    c.userID,
				"session_id": conversationID,
				"message":    msg,
			},
		}
	}

	resp, err := c.post(ctx, u, body, true)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// post issues a JSON POST and verifies the status. The response body is left
// open for the caller.
func (c *Client) post(ctx context.Context, u string, body any, streaming bool) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if streaming {
		req.Header.Set("Accept", "text/event-stream")
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("fetch bearer token: %w", err)
		}
		tok.SetAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		terr := c.statusError(resp)
		closeBody(resp)
		return nil, terr
	}
	return resp, nil
}

// statusError drains a bounded slice of the error body into the operational
// log and returns the status as a TransportError. The raw upstream body never
// reaches the caller.
func (c *Client) statusError(resp *http.Response) *TransportError {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	slog.Warn("Agent endpoint returned error status",
		"status", resp.StatusCode,
		"url", resp.Request.URL.String(),
		"body", string(snippet),
	)
	return &TransportError{Status: resp.StatusCode}
}

func closeBody(resp *http.Response) {
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes)); err != nil {
		slog.Debug("failed to drain response body", "error", err)
	}
	if err := resp.Body.Close(); err != nil {
		slog.Debug("failed to close response body", "error", err)
	}
}
