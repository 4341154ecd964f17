// Package client talks to the engagement record API over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"card-engagement-api/internal/models"
)

const defaultTimeout = 10 * time.Second

// APIError is returned for any non-2xx reply.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engagement api: status %d: %s", e.StatusCode, e.Message)
}

// Client is an engagement API client. It satisfies syncer.Remote.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. The supplied client is
// used as is; WithTimeout does not change it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// CreateEngagement calls POST /engagements.
func (c *Client) CreateEngagement(ctx context.Context, req models.CreateEngagementRequest) (models.EngagementRecord, error) {
	var rec models.EngagementRecord
	err := c.do(ctx, http.MethodPost, "/engagements", req, &rec)
	return rec, err
}

// UpdateEngagement calls PATCH /engagements/{id}.
func (c *Client) UpdateEngagement(ctx context.Context, id string, req models.UpdateEngagementRequest) (models.EngagementRecord, error) {
	var rec models.EngagementRecord
	err := c.do(ctx, http.MethodPatch, "/engagements/"+url.PathEscape(id), req, &rec)
	return rec, err
}

// GetEngagement calls GET /engagements/{id}.
func (c *Client) GetEngagement(ctx context.Context, id string) (models.EngagementRecord, error) {
	var rec models.EngagementRecord
	err := c.do(ctx, http.MethodGet, "/engagements/"+url.PathEscape(id), nil, &rec)
	return rec, err
}

// ListEngagements calls GET /cards/{card_id}/engagements. An empty
// temperature and a zero limit are omitted.
func (c *Client) ListEngagements(ctx context.Context, cardID string, temperature models.Temperature, limit int) (models.ListEngagementsResponse, error) {
	q := url.Values{}
	if temperature != "" {
		q.Set("temperature", string(temperature))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/cards/" + url.PathEscape(cardID) + "/engagements"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp models.ListEngagementsResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body models.ErrorResponse
	msg := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
