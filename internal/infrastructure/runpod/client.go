package runpod

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/basel-ax/fluxfaces/internal/domain"
)

const (
	defaultBaseURL = "https://api.runpod.ai/v2"

	// maxErrorBody bounds the response excerpt kept on transport errors
	maxErrorBody = 2048
)

const (
	opGenerateSync    = "generate sync"
	opStartGeneration = "start generation"
	opCheckStatus     = "check status"
	opCancelJob       = "cancel job"
)

// Options configures a Client
type Options struct {
	BaseURL    string
	EndpointID string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client represents the serverless endpoint API client. It holds no mutable
// state and may be shared between goroutines.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

var _ domain.JobClient = (*Client)(nil)

// NewClient creates a new endpoint client
func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	if id := strings.Trim(strings.TrimSpace(opts.EndpointID), "/"); id != "" {
		base += "/" + url.PathEscape(id)
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: client,
		baseURL:    base,
		apiKey:     strings.TrimSpace(opts.APIKey),
	}
}

// BaseURL returns the endpoint root all calls are issued against
func (c *Client) BaseURL() string {
	return c.baseURL
}

type runRequest struct {
	Input domain.JobInput `json:"input"`
}

// RunSync submits a job and waits for the endpoint to return its result
func (c *Client) RunSync(ctx context.Context, input domain.JobInput) (*domain.JobResult, error) {
	var result domain.JobResult
	if err := c.do(ctx, opGenerateSync, http.MethodPost, "/runsync", runRequest{Input: input}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Run submits a job for asynchronous execution and returns its handle
func (c *Client) Run(ctx context.Context, input domain.JobInput) (domain.JobHandle, error) {
	var result struct {
		ID     string           `json:"id"`
		Status domain.JobStatus `json:"status"`
	}
	if err := c.do(ctx, opStartGeneration, http.MethodPost, "/run", runRequest{Input: input}, &result); err != nil {
		return "", err
	}
	if strings.TrimSpace(result.ID) == "" {
		return "", &domain.TransportError{Op: opStartGeneration, Err: errors.New("response carries no job id")}
	}
	return domain.JobHandle(result.ID), nil
}

// Status checks the current state of a job. A FAILED job is reported through
// the result, not as an error.
func (c *Client) Status(ctx context.Context, handle domain.JobHandle) (*domain.JobResult, error) {
	if err := validateHandle(opCheckStatus, handle); err != nil {
		return nil, err
	}
	var result domain.JobResult
	if err := c.do(ctx, opCheckStatus, http.MethodGet, "/status/"+url.PathEscape(string(handle)), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Cancel requests cancellation of a job. Whether it takes effect is up to the endpoint.
func (c *Client) Cancel(ctx context.Context, handle domain.JobHandle) (*domain.CancelResponse, error) {
	if err := validateHandle(opCancelJob, handle); err != nil {
		return nil, err
	}
	var result domain.CancelResponse
	if err := c.do(ctx, opCancelJob, http.MethodPost, "/cancel/"+url.PathEscape(string(handle)), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func validateHandle(op string, handle domain.JobHandle) error {
	if strings.TrimSpace(string(handle)) == "" {
		return &domain.TransportError{Op: op, Err: errors.New("job id is required")}
	}
	return nil
}

// do sends one JSON request and decodes the JSON response into out
func (c *Client) do(ctx context.Context, op, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &domain.TransportError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &domain.TransportError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Op: op, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.TransportError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
