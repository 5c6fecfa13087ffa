package bulk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"duplicator/internal/gql"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRunner(t *testing.T, handler http.HandlerFunc) (*Runner, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := gql.New(strings.TrimPrefix(srv.URL, "http://"), "token", "2025-10", 5*time.Second)
	c.SetHTTPClient(srv.Client())
	r := New(c)
	r.httpClient = srv.Client()
	r.initialPollInterval = time.Millisecond
	r.maxPollInterval = 5 * time.Millisecond
	return r, srv
}

func TestRunnerRunCompletesAndDownloads(t *testing.T) {
	resultLine := `{"id":"gid://shopify/Product/1","handle":"tshirt"}` + "\n"

	var srvURL string
	callCount := 0
	r, srv := newTestRunner(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if req.URL.Path == "/result.jsonl" {
			_, _ = w.Write([]byte(resultLine))
			return
		}
		callCount++
		switch {
		case callCount == 1:
			_, _ = w.Write([]byte(`{"data":{"bulkOperationRunQuery":{"bulkOperation":{"id":"gid://shopify/BulkOperation/1","status":"CREATED"},"userErrors":[]}}}`))
		case callCount < 3:
			_, _ = w.Write([]byte(`{"data":{"currentBulkOperation":{"id":"gid://shopify/BulkOperation/1","status":"RUNNING","errorCode":"","objectCount":"0","url":""}}}`))
		default:
			_, _ = w.Write([]byte(`{"data":{"currentBulkOperation":{"id":"gid://shopify/BulkOperation/1","status":"COMPLETED","errorCode":"","objectCount":"1","url":"` + srvURL + `/result.jsonl"}}}`))
		}
	})
	defer srv.Close()
	srvURL = srv.URL

	seq, err := r.Run(context.Background(), "{ products { edges { node { id } } } }")
	require.NoError(t, err)

	var nodes []*Node
	for n := range seq {
		nodes = append(nodes, n)
	}
	require.Len(t, nodes, 1)
	require.Equal(t, "gid://shopify/Product/1", nodes[0].ID)
}

func TestRunnerTerminalFailureSurfacesError(t *testing.T) {
	callCount := 0
	r, srv := newTestRunner(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		callCount++
		if callCount == 1 {
			_, _ = w.Write([]byte(`{"data":{"bulkOperationRunQuery":{"bulkOperation":{"id":"1","status":"CREATED"},"userErrors":[]}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"currentBulkOperation":{"id":"1","status":"FAILED","errorCode":"INTERNAL_SERVER_ERROR","objectCount":"0","url":""}}}`))
	})
	defer srv.Close()

	_, err := r.Run(context.Background(), "{ products { edges { node { id } } } }")
	require.Error(t, err)
	var terminal *TerminalFailureError
	require.ErrorAs(t, err, &terminal)
	require.Equal(t, "FAILED", terminal.Status)
}

func TestRunnerEmptyResultIsZeroLengthSequence(t *testing.T) {
	callCount := 0
	r, srv := newTestRunner(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		callCount++
		if callCount == 1 {
			_, _ = w.Write([]byte(`{"data":{"bulkOperationRunQuery":{"bulkOperation":{"id":"1","status":"CREATED"},"userErrors":[]}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"currentBulkOperation":{"id":"1","status":"COMPLETED","errorCode":"","objectCount":"0","url":""}}}`))
	})
	defer srv.Close()

	seq, err := r.Run(context.Background(), "{ products { edges { node { id } } } }")
	require.NoError(t, err)

	count := 0
	for range seq {
		count++
	}
	require.Equal(t, 0, count)
}
