// Package client is a Go client for the SELVE session API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/selve/internal/assessment"
	"github.com/ashureev/selve/internal/domain"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("selve api: %d %s", e.StatusCode, e.Message)
}

// Client talks to a SELVE server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CreateSession starts a session. metadata may be nil.
func (c *Client) CreateSession(ctx context.Context, metadata map[string]any) (*domain.Session, error) {
	in := map[string]any{}
	if metadata != nil {
		in["metadata"] = metadata
	}
	var out struct {
		Session *domain.Session `json:"session"`
	}
	if err := c.do(ctx, http.MethodPost, "/sessions", in, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

// GetSession fetches a session with its answers.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var out struct {
		Session *domain.Session `json:"session"`
	}
	path := "/sessions?sessionId=" + url.QueryEscape(sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

// Complete marks the session completed.
func (c *Client) Complete(ctx context.Context, sessionID string) (*domain.Session, error) {
	in := map[string]any{"sessionId": sessionID, "status": domain.StatusCompleted}
	var out struct {
		Session *domain.Session `json:"session"`
	}
	if err := c.do(ctx, http.MethodPatch, "/sessions", in, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

// Next returns the next step for the session.
func (c *Client) Next(ctx context.Context, sessionID string) (*assessment.Step, error) {
	var step assessment.Step
	if err := c.do(ctx, http.MethodGet, "/questions/"+url.PathEscape(sessionID), nil, &step); err != nil {
		return nil, err
	}
	return &step, nil
}

// SubmitAnswer records an answer and returns the stored row and new step.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID, questionID string, value json.RawMessage) (*domain.Answer, int, error) {
	in := map[string]any{
		"sessionId":  sessionID,
		"questionId": questionID,
		"answer":     value,
	}
	var out struct {
		Answer      *domain.Answer `json:"answer"`
		CurrentStep int            `json:"currentStep"`
	}
	if err := c.do(ctx, http.MethodPost, "/answers", in, &out); err != nil {
		return nil, 0, err
	}
	return out.Answer, out.CurrentStep, nil
}
