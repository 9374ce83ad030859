// Package recommend calls the external assignment-recommendation service.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hylla/fordela/internal/domain"
)

const defaultTimeout = 3 * time.Second

// Gateway is an HTTP client for the recommendation service. Any transport
// failure, timeout, or non-200 response surfaces as
// domain.ErrGatewayUnavailable so callers can fall back to manual
// assignment.
type Gateway struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.client.Timeout = d
		}
	}
}

// WithLogger overrides the gateway's logger.
func WithLogger(logger *log.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithHTTPClient swaps the underlying HTTP client, used by tests.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		if client != nil {
			g.client = client
		}
	}
}

// New returns a Gateway talking to the service rooted at baseURL.
func New(baseURL string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type recommendRequest struct {
	TaskID string `json:"task_id"`
	Limit  int    `json:"limit"`
}

type recommendResponse struct {
	Recommendations []struct {
		EngineerID string  `json:"engineer_id"`
		Score      float64 `json:"score"`
	} `json:"recommendations"`
}

// Recommend fetches ranked engineer suggestions for a task. The returned
// slice is raw gateway output; the caller normalizes and truncates it.
func (g *Gateway) Recommend(ctx context.Context, taskID string, limit int) ([]domain.Recommendation, error) {
	body, err := json.Marshal(recommendRequest{TaskID: taskID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", domain.ErrGatewayUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/recommendations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrGatewayUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("recommendation gateway unreachable", "task", taskID, "err", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.Warn("recommendation gateway rejected request", "task", taskID, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}

	var decoded recommendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		g.logger.Warn("recommendation gateway returned malformed payload", "task", taskID, "err", err)
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrGatewayUnavailable, err)
	}

	out := make([]domain.Recommendation, 0, len(decoded.Recommendations))
	for _, rec := range decoded.Recommendations {
		out = append(out, domain.Recommendation{EngineerID: rec.EngineerID, Score: rec.Score})
	}
	return out, nil
}
