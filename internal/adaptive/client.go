package adaptive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/selve/internal/domain"
)

var errEmptyQuestion = errors.New("engine returned neither a question nor done")

// ClientConfig holds configuration for the engine client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "http://localhost:8090",
		Timeout: 10 * time.Second,
	}
}

// Client calls the adaptive engine over HTTP. It never retries; callers own retry/backoff.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the engine at cfg.BaseURL.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("adaptive engine base URL is required")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{Transport: transport},
		logger:  logger,
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// NextQuestion asks the engine for the next question given the answers so far.
func (c *Client) NextQuestion(ctx context.Context, sessionID string, answers []*domain.Answer) (*NextResult, error) {
	req := NextRequest{SessionID: sessionID, Answers: make([]AnsweredEntry, 0, len(answers))}
	for _, a := range answers {
		req.Answers = append(req.Answers, AnsweredEntry{QuestionID: a.QuestionID, Value: a.Value})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal engine request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/next-question", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build engine request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		timeout := isTimeout(err)
		c.logger.Warn("Adaptive engine request failed",
			"session_id", sessionID,
			"timeout", timeout,
			"elapsed", time.Since(start),
			"error", err)
		return nil, &domain.UpstreamError{Timeout: timeout, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close engine response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Adaptive engine returned non-success status",
			"session_id", sessionID,
			"status", resp.StatusCode)
		return nil, &domain.UpstreamError{StatusCode: resp.StatusCode}
	}

	var decoded engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if isTimeout(err) {
			return nil, &domain.UpstreamError{Timeout: true, Err: err}
		}
		return nil, &domain.UpstreamError{Err: fmt.Errorf("decode engine response: %w", err)}
	}
	if !decoded.Done && decoded.Question == nil {
		return nil, &domain.UpstreamError{Err: errEmptyQuestion}
	}

	c.logger.Debug("Adaptive engine responded",
		"session_id", sessionID,
		"done", decoded.Done,
		"elapsed", time.Since(start))

	return decoded.toResult(len(answers)), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
