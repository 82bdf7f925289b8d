// Package tempo provides a client for interacting with the Grafana Tempo distributed tracing backend.
package tempo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	otlptrace "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// Client implements HTTP interaction with the Tempo API to fetch traces and spans.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Tempo client
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// doRequest performs the HTTP request to Tempo via HTTP API
func (c *Client) doRequest(ctx context.Context, apiPath string, params url.Values) ([]byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	u.Path = apiPath
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tempo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from tempo: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

// SearchTraceIDs returns the IDs of recent traces for a service within the time window.
// An empty service matches every trace.
func (c *Client) SearchTraceIDs(ctx context.Context, service string, start, end time.Time, limit int) ([]string, error) {
	params := url.Values{
		"q":     []string{BuildServiceQuery(service)},
		"start": []string{fmt.Sprintf("%d", start.Unix())},
		"end":   []string{fmt.Sprintf("%d", end.Unix())},
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	resp, err := c.doRequest(ctx, "/api/search", params)
	if err != nil {
		c.logger.Error("Failed to search traces", "service", service, "error", err)
		return nil, err
	}

	var searchResult SearchResult
	if err := json.Unmarshal(resp, &searchResult); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	ids := make([]string, 0, len(searchResult.Traces))
	for _, t := range searchResult.Traces {
		ids = append(ids, t.TraceID)
	}

	return ids, nil
}

// GetTraceByID fetches a single complete trace by its ID as OTLP resource spans.
func (c *Client) GetTraceByID(ctx context.Context, traceID string) ([]*otlptrace.ResourceSpans, error) {
	resp, err := c.doRequest(ctx, fmt.Sprintf("/api/traces/%s", traceID), nil)
	if err != nil {
		c.logger.Error("Failed to fetch trace by ID", "traceID", traceID, "error", err)
		return nil, err
	}

	spans, err := DecodeTrace(resp)
	if err != nil {
		return nil, fmt.Errorf("trace %s: %w", traceID, err)
	}
	return spans, nil
}

// DecodeTrace parses an OTLP JSON trace body as served by /api/traces.
func DecodeTrace(body []byte) ([]*otlptrace.ResourceSpans, error) {
	var envelope traceResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse trace response: %w", err)
	}

	opts := protojson.UnmarshalOptions{DiscardUnknown: true}
	raw := envelope.resourceSpans()
	out := make([]*otlptrace.ResourceSpans, 0, len(raw))
	for i, r := range raw {
		rs := &otlptrace.ResourceSpans{}
		if err := opts.Unmarshal(r, rs); err != nil {
			return nil, fmt.Errorf("failed to decode resource spans %d: %w", i, err)
		}
		out = append(out, rs)
	}
	return out, nil
}
