package gql

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"duplicator/internal/logging"
)

// Client is the single shared request layer for one tenant, parameterized
// by (tenantDomain, accessToken, apiVersion) per §4.1. It issues GraphQL
// documents and paginates cursor-based connections, retrying transient
// failures with backoff and honoring the platform's cost-extension
// throttling signal.
type Client struct {
	tenantDomain string
	accessToken  string
	apiVersion   string

	httpClient *http.Client
	retry      RetryConfig

	costThreshold float64
	log           *zap.SugaredLogger
}

// New constructs a Client for one tenant. timeout is the per-request
// deadline (60s platform default per §5).
func New(tenantDomain, accessToken, apiVersion string, timeout time.Duration) *Client {
	transport := &http2.Transport{
		AllowHTTP: false,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	return &Client{
		tenantDomain: tenantDomain,
		accessToken:  accessToken,
		apiVersion:   apiVersion,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		retry:         DefaultRetryConfig(),
		costThreshold: 500,
		log:           logging.Get(logging.CategoryRequest),
	}
}

// SetHTTPClient overrides the underlying HTTP client, e.g. to point at a
// test server or inject a custom transport.
func (c *Client) SetHTTPClient(h *http.Client) {
	c.httpClient = h
}

// SetRetryConfig overrides the retry/backoff policy.
func (c *Client) SetRetryConfig(cfg RetryConfig) {
	c.retry = cfg
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", c.tenantDomain, c.apiVersion)
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type costExtension struct {
	RequestedQueryCost int `json:"requestedQueryCost"`
	ActualQueryCost    int `json:"actualQueryCost"`
	ThrottleStatus     struct {
		CurrentlyAvailable float64 `json:"currentlyAvailable"`
		MaximumAvailable   float64 `json:"maximumAvailable"`
		RestoreRate        float64 `json:"restoreRate"`
	} `json:"throttleStatus"`
}

type graphQLResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     []graphQLError  `json:"errors,omitempty"`
	Extensions struct {
		Cost *costExtension `json:"cost,omitempty"`
	} `json:"extensions"`
}

// Do issues a single GraphQL document with variables, retrying on transport
// and throttling failures. The returned payload is the response's raw
// "data" object. userErrors embedded in the data payload are NOT inspected
// here — callers decode "data" themselves and check for a userErrors field
// per operation.
func (c *Client) Do(ctx context.Context, document string, variables map[string]any) (json.RawMessage, error) {
	var lastErr error
	throttledAttempts := 0
	lastThrottleSignal := false

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			d := calculateBackoff(c.retry, throttledAttempts-1)
			c.log.Debugw("retrying request", "attempt", attempt, "backoff", d)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}

		data, throttled, err := c.doOnce(ctx, document, variables)
		if err == nil {
			return data, nil
		}
		lastErr = err
		var te *TransportError
		lastThrottleSignal = throttled && errors.As(err, &te) && (te.Op == "throttled" || te.Op == "http-status")
		if throttled {
			throttledAttempts++
		} else {
			throttledAttempts = 0
		}
		c.log.Warnw("request attempt failed", "attempt", attempt+1, "throttled", throttled, "error", logging.Redact(err.Error()))
	}

	if lastThrottleSignal {
		return nil, &ThrottleError{Attempts: c.retry.MaxAttempts}
	}
	return nil, fmt.Errorf("gql: exhausted %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

// doOnce performs exactly one HTTP round trip. The bool return indicates
// whether the failure (if any) looks like a throttling signal worth
// retrying, as distinct from a hard transport error.
func (c *Client) doOnce(ctx context.Context, document string, variables map[string]any) (json.RawMessage, bool, error) {
	body, err := json.Marshal(graphQLRequest{Query: document, Variables: variables})
	if err != nil {
		return nil, false, &TransportError{Op: "marshal", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, false, &TransportError{Op: "build-request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, &TransportError{Op: "do-request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &TransportError{Op: "read-body", Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return nil, true, &TransportError{Op: "http-status", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, &TransportError{Op: "http-status", Err: fmt.Errorf("status %d: %s", resp.StatusCode, logging.Redact(string(respBody)))}
	}

	var parsed graphQLResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, true, &TransportError{Op: "parse-response", Err: err}
	}

	if throttled := c.isThrottledResponse(parsed); throttled {
		return nil, true, &TransportError{Op: "throttled", Err: fmt.Errorf("cost exceeded / throttled")}
	}
	if len(parsed.Errors) > 0 {
		return nil, false, &TransportError{Op: "graphql-errors", Err: fmt.Errorf("%s", parsed.Errors[0].Message)}
	}

	c.observeCost(ctx, parsed.Extensions.Cost)

	return parsed.Data, false, nil
}

// isThrottledResponse detects the in-band "cost exceeded / throttled"
// signal embedded in the error array, as distinct from a genuine validation
// error.
func (c *Client) isThrottledResponse(resp graphQLResponse) bool {
	for _, e := range resp.Errors {
		if code, ok := e.Extensions["code"].(string); ok && (code == "THROTTLED" || code == "MAX_COST_EXCEEDED") {
			return true
		}
	}
	return false
}

// observeCost voluntarily sleeps proportionally when the remaining credit
// budget falls below the client's threshold, regardless of response status,
// per §4.1's cost-observation rule.
func (c *Client) observeCost(ctx context.Context, cost *costExtension) {
	if cost == nil {
		return
	}
	available := cost.ThrottleStatus.CurrentlyAvailable
	if available >= c.costThreshold || cost.ThrottleStatus.RestoreRate <= 0 {
		return
	}
	deficit := c.costThreshold - available
	sleep := time.Duration(deficit/cost.ThrottleStatus.RestoreRate*1000) * time.Millisecond
	if sleep <= 0 {
		return
	}
	if sleep > c.retry.MaxBackoff {
		sleep = c.retry.MaxBackoff
	}
	c.log.Debugw("observing cost budget, sleeping before next request", "sleep", sleep, "available", available)
	select {
	case <-ctx.Done():
	case <-time.After(sleep):
	}
}
