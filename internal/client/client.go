// ============================================================================
// ingestflow API Client
// ============================================================================
//
// Package: internal/client
// File: client.go
// Purpose: HTTP adapter for the ingestion backend
//
// Endpoints:
//   POST {base}/ingest               {"ids":[...],"priority":"HIGH"} -> {"ingestion_id":"..."}
//   GET  {base}/status/{ingestion_id} -> JobStatus
//
// Error Mapping:
//   - 2xx with a parseable body   -> success
//   - 404 on /status              -> ErrJobNotFound
//   - any other non-2xx           -> *HTTPError
//   - transport / decode failure  -> *NetworkError
//
// Every request waits on a client-side rate limiter and carries an
// X-Request-ID header so backend logs can be correlated.
//
// ============================================================================

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/submission"
	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the backend address used when none is configured
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds a single request
	DefaultTimeout = 10 * time.Second

	// DefaultRateLimit is requests per second
	DefaultRateLimit = 5

	maxErrorBody = 512
)

// Recorder receives request outcomes, typically a metrics collector
type Recorder interface {
	RecordRequest(endpoint string, kind ErrorKind, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, ErrorKind, time.Duration) {}

// Client talks to the ingestion backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	recorder   Recorder
}

// Option configures the Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithRateLimit sets requests per second; zero or less disables limiting
func WithRateLimit(requestsPerSecond int) Option {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithLogger sets a logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder sets a request recorder
func WithRecorder(recorder Recorder) Option {
	return func(c *Client) {
		if recorder != nil {
			c.recorder = recorder
		}
	}
}

// New creates a Client for baseURL
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     slog.Default(),
		recorder:   nopRecorder{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the normalized backend address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit posts a validated request and returns the job handle
func (c *Client) Submit(ctx context.Context, req types.SubmissionRequest) (types.JobHandle, error) {
	if err := submission.ValidateRequest(req); err != nil {
		return "", err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	var resp types.SubmissionResponse
	if err := c.do(ctx, http.MethodPost, "/ingest", body, &resp); err != nil {
		return "", err
	}
	if resp.IngestionID.IsBlank() {
		return "", &NetworkError{Endpoint: "/ingest", Cause: fmt.Errorf("response has no ingestion_id")}
	}

	c.logger.Info("Submission accepted",
		"handle", resp.IngestionID,
		"ids", len(req.IDs),
		"priority", req.Priority)
	return resp.IngestionID, nil
}

// GetStatus fetches the full current status of a job
func (c *Client) GetStatus(ctx context.Context, handle types.JobHandle) (*types.JobStatus, error) {
	if handle.IsBlank() {
		return nil, ErrMissingHandle
	}

	path := "/status/" + url.PathEscape(strings.TrimSpace(string(handle)))

	var status types.JobStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// do performs one request and decodes a 2xx body into result
func (c *Client) do(ctx context.Context, method, path string, body []byte, result interface{}) (err error) {
	endpoint := endpointLabel(path)
	start := time.Now()
	defer func() {
		c.recorder.RecordRequest(endpoint, KindOf(err), time.Since(start))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return &NetworkError{Endpoint: path, Cause: fmt.Errorf("rate limiter: %w", err)}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &NetworkError{Endpoint: path, Cause: err}
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("API request", "method", method, "path", path, "request_id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Endpoint: path, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusNotFound && endpoint == "status" {
			return fmt.Errorf("%w: %s", ErrJobNotFound, strings.TrimPrefix(path, "/status/"))
		}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Endpoint:   path,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &NetworkError{Endpoint: path, Cause: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// endpointLabel keeps metric label cardinality bounded
func endpointLabel(path string) string {
	if strings.HasPrefix(path, "/status/") {
		return "status"
	}
	return strings.TrimPrefix(path, "/")
}
