// Package bulk implements the asynchronous bulk export runtime (§4.2):
// submitting a bulkOperationRunQuery mutation, polling it to a terminal
// state, downloading the resulting newline-delimited JSON file, and
// reconstructing parent/child object graphs from the flattened stream.
package bulk

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"duplicator/internal/gql"
	"duplicator/internal/logging"
)

// Status is one state of the bulk operation state machine.
type Status string

const (
	StatusCreated     Status = "CREATED"
	StatusRunning     Status = "RUNNING"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
	StatusAccessDenied Status = "ACCESS_DENIED"
	StatusCanceled    Status = "CANCELED"
)

func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAccessDenied, StatusCanceled:
		return true
	default:
		return false
	}
}

// Runner executes bulk query operations against one tenant. The platform
// allows at most one running bulk query per tenant, so Runner serializes
// submissions with a mutex; concurrent callers queue in submission order.
type Runner struct {
	client *gql.Client
	mu     sync.Mutex
	log    *zap.SugaredLogger

	httpClient *http.Client

	initialPollInterval time.Duration
	maxPollInterval     time.Duration
}

// New constructs a Runner over an existing request-layer Client.
func New(client *gql.Client) *Runner {
	return &Runner{
		client:              client,
		log:                 logging.Get(logging.CategoryBulk),
		httpClient:          http.DefaultClient,
		initialPollInterval: 1 * time.Second,
		maxPollInterval:     30 * time.Second,
	}
}

// SetPollIntervals overrides the poll backoff schedule. Mainly useful for
// tests that don't want to wait out the real 1s/30s defaults.
func (r *Runner) SetPollIntervals(initial, max time.Duration) {
	r.initialPollInterval = initial
	r.maxPollInterval = max
}

const submitMutation = `
mutation RunBulkQuery($query: String!) {
  bulkOperationRunQuery(query: $query) {
    bulkOperation { id status }
    userErrors { field message }
  }
}`

const pollQuery = `
query CurrentBulkOperation {
  currentBulkOperation {
    id
    status
    errorCode
    objectCount
    url
  }
}`

type bulkOperation struct {
	ID          string `json:"id"`
	Status      Status `json:"status"`
	ErrorCode   string `json:"errorCode"`
	ObjectCount string `json:"objectCount"`
	URL         string `json:"url"`
}

// Run submits query as a bulk operation, polls it to completion, downloads
// and reconstructs the result, and returns the records as a lazy sequence.
// The sequence is finite and non-restartable: ranging over it a second time
// yields nothing.
func (r *Runner) Run(ctx context.Context, query string) (iter.Seq[*Node], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.submit(ctx, query); err != nil {
		return nil, err
	}

	op, err := r.pollUntilTerminal(ctx)
	if err != nil {
		return nil, err
	}

	if op.Status != StatusCompleted {
		return nil, &TerminalFailureError{Status: string(op.Status), ErrorCode: op.ErrorCode}
	}

	if op.URL == "" {
		return func(yield func(*Node) bool) {}, nil
	}

	lines, err := r.download(ctx, op.URL)
	if err != nil {
		return nil, err
	}

	roots := reassemble(lines, func(lineNumber int, err error) {
		r.log.Warnw("skipping malformed bulk result line", "line", lineNumber, "error", err)
	})

	return func(yield func(*Node) bool) {
		for _, root := range roots {
			if !yield(root) {
				return
			}
		}
	}, nil
}

func (r *Runner) submit(ctx context.Context, query string) error {
	data, err := r.client.Do(ctx, submitMutation, map[string]any{"query": query})
	if err != nil {
		return &SubmissionError{Detail: err.Error()}
	}

	var parsed struct {
		BulkOperationRunQuery struct {
			BulkOperation bulkOperation      `json:"bulkOperation"`
			UserErrors    []gql.UserError    `json:"userErrors"`
		} `json:"bulkOperationRunQuery"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return &SubmissionError{Detail: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.BulkOperationRunQuery.UserErrors) > 0 {
		return &SubmissionError{Detail: gql.UserErrors(parsed.BulkOperationRunQuery.UserErrors).Error()}
	}
	r.log.Infow("submitted bulk operation", "id", parsed.BulkOperationRunQuery.BulkOperation.ID)
	return nil
}

// pollUntilTerminal polls at an interval that grows as min(1.5 x prior,
// 30s), starting at 1s, until the operation reaches a terminal status.
func (r *Runner) pollUntilTerminal(ctx context.Context) (*bulkOperation, error) {
	interval := r.initialPollInterval
	maxInterval := r.maxPollInterval

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		data, err := r.client.Do(ctx, pollQuery, nil)
		if err != nil {
			return nil, fmt.Errorf("bulk: poll: %w", err)
		}
		var parsed struct {
			CurrentBulkOperation *bulkOperation `json:"currentBulkOperation"`
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("bulk: poll: decode: %w", err)
		}
		if parsed.CurrentBulkOperation == nil {
			return nil, fmt.Errorf("bulk: poll: no current bulk operation")
		}
		op := parsed.CurrentBulkOperation
		r.log.Debugw("polled bulk operation", "status", op.Status, "interval", interval)
		if op.Status.terminal() {
			return op, nil
		}

		interval = time.Duration(float64(interval) * 1.5)
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}

// download streams the result URL and splits it into lines, ready for
// reassembly. The platform does not impose a size limit on this file, so
// lines are read one at a time rather than buffered wholesale into one
// giant byte slice... in practice the accumulated slice of lines is still
// memory-bound by file size, since correct parent/child reconstruction
// requires seeing the whole stream before any root can be considered
// complete.
func (r *Runner) download(ctx context.Context, url string) ([][]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DownloadError{URL: url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var lines [][]byte
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		lines = append(lines, cp)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, &DownloadError{URL: url, Err: err}
	}
	return lines, nil
}
