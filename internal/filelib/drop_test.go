package filelib

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDropRefusesWithoutExactConfirmation(t *testing.T) {
	s, srv := newTestSyncer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("drop should never reach the network without confirmation: %s", r.URL)
	})
	defer srv.Close()

	stats, err := s.Drop(context.Background(), "yes")
	require.ErrorIs(t, err, ErrConfirmationRequired)
	require.Equal(t, Stats{}, stats)
}

func TestDropDeletesInBatches(t *testing.T) {
	ids := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		ids = append(ids, "gid://shopify/GenericFile/"+strconv.Itoa(i))
	}

	var deleteCalls int
	var deletedTotal int
	s, srv := newTestSyncer(t, func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "DestFiles"):
			page1 := ids[:100]
			page2 := ids[100:]
			after, _ := req.Variables["after"].(string)
			var nodes []string
			var hasNext bool
			var cursor string
			if after == "" {
				nodes = page1
				hasNext = true
				cursor = "c1"
			} else {
				nodes = page2
				hasNext = false
			}
			var b strings.Builder
			b.WriteString(`{"data":{"files":{"nodes":[`)
			for i, id := range nodes {
				if i > 0 {
					b.WriteString(",")
				}
				b.WriteString(`{"id":"` + id + `","alt":"","url":"https://cdn.shopify.com/s/files/1/f.pdf"}`)
			}
			b.WriteString(`],"pageInfo":{"hasNextPage":`)
			if hasNext {
				b.WriteString("true")
			} else {
				b.WriteString("false")
			}
			b.WriteString(`,"endCursor":"` + cursor + `"}}}}`)
			_, _ = w.Write([]byte(b.String()))
		case strings.Contains(req.Query, "FileDelete"):
			deleteCalls++
			fileIDs, _ := req.Variables["fileIds"].([]any)
			require.LessOrEqual(t, len(fileIDs), dropBatchSize)
			deletedTotal += len(fileIDs)
			_, _ = w.Write([]byte(`{"data":{"fileDelete":{"deletedFileIds":[],"userErrors":[]}}}`))
		default:
			t.Fatalf("unexpected query: %s", req.Query)
		}
	})
	defer srv.Close()

	stats, err := s.Drop(context.Background(), "delete")
	require.NoError(t, err)
	require.Equal(t, 120, stats.Total)
	require.Equal(t, 120, stats.Deleted)
	require.Equal(t, 0, stats.Failed)
	require.Equal(t, 3, deleteCalls)
	require.Equal(t, 120, deletedTotal)
}

func TestDropContinuesAfterBatchFailure(t *testing.T) {
	ids := []string{"gid://shopify/GenericFile/1", "gid://shopify/GenericFile/2"}

	var deleteCalls int
	s, srv := newTestSyncer(t, func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "DestFiles"):
			_, _ = w.Write([]byte(`{"data":{"files":{"nodes":[{"id":"` + ids[0] + `","alt":"","url":"https://cdn.shopify.com/s/files/1/a.pdf"},{"id":"` + ids[1] + `","alt":"","url":"https://cdn.shopify.com/s/files/1/b.pdf"}],"pageInfo":{"hasNextPage":false,"endCursor":""}}}}`))
		case strings.Contains(req.Query, "FileDelete"):
			deleteCalls++
			_, _ = w.Write([]byte(`{"data":{"fileDelete":{"deletedFileIds":[],"userErrors":[{"field":["fileIds"],"message":"internal error"}]}}}`))
		default:
			t.Fatalf("unexpected query: %s", req.Query)
		}
	})
	defer srv.Close()

	stats, err := s.Drop(context.Background(), "delete")
	require.NoError(t, err)
	require.Equal(t, 1, deleteCalls)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 0, stats.Deleted)
	require.Equal(t, 1, stats.Failed)
	require.Len(t, stats.Errors, 1)
}
