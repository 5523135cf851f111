// Package engine provides the public Go SDK for the geo engine HTTP API.
package engine

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

	"github.com/google/uuid"

	geoengine "github.com/spherical-ai/spherical/libs/geo-engine/internal/engine"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

// Result and payload types shared with the server.
type (
	QueryResult = geoengine.QueryResult
	Validation  = geoengine.Validation
	Stats       = geoengine.Stats
	Feature     = spatial.Feature
	Document    = vectorstore.Document
)

// ErrNotFound is returned when a feature or document does not exist.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("geo engine: %d %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("geo engine: %d %s", e.StatusCode, e.Message)
}

// Client talks to a geo engine API server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient creates a new client. BaseURL defaults to the local server.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8086"
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/api/v1",
		apiKey:     cfg.APIKey,
		httpClient: hc,
	}, nil
}

// Query runs a natural-language query. Rejected queries are not errors:
// they come back with Success false.
func (c *Client) Query(ctx context.Context, text string) (*QueryResult, error) {
	var res QueryResult
	if err := c.do(ctx, http.MethodPost, "/query", map[string]string{"query": text}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Validate checks a query without running it.
func (c *Client) Validate(ctx context.Context, text string) (*Validation, error) {
	var v Validation
	if err := c.do(ctx, http.MethodPost, "/validate", map[string]string{"query": text}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Suggestions returns example queries matching partial.
func (c *Client) Suggestions(ctx context.Context, partial string) ([]string, error) {
	var body struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := c.do(ctx, http.MethodGet, "/suggestions?q="+url.QueryEscape(partial), nil, &body); err != nil {
		return nil, err
	}
	return body.Suggestions, nil
}

// Stats returns engine counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertFeature adds or replaces a feature.
func (c *Client) InsertFeature(ctx context.Context, f Feature) error {
	return c.do(ctx, http.MethodPost, "/features", f, nil)
}

// GetFeature fetches a feature by id.
func (c *Client) GetFeature(ctx context.Context, id string) (*Feature, error) {
	var f Feature
	if err := c.do(ctx, http.MethodGet, "/features/"+url.PathEscape(id), nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// RemoveFeature deletes a feature. It returns ErrNotFound for unknown ids.
func (c *Client) RemoveFeature(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/features/"+url.PathEscape(id), nil, nil)
}

// AddDocuments indexes documents and returns how many were added.
func (c *Client) AddDocuments(ctx context.Context, docs []Document) (int, error) {
	var body struct {
		Added int `json:"added"`
	}
	if err := c.do(ctx, http.MethodPost, "/documents", map[string][]Document{"documents": docs}, &body); err != nil {
		return 0, err
	}
	return body.Added, nil
}

// GetDocument fetches a document by id. Embeddings are not returned.
func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	var d Document
	if err := c.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(id), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// RemoveDocument deletes a document. It returns ErrNotFound for unknown ids.
func (c *Client) RemoveDocument(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/documents/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	traceID := observability.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	req.Header.Set("X-Trace-ID", traceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Detail = payload.Detail
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
