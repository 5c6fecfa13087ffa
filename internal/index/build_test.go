package index

import (
	"context"
	"encoding/json"
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

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func TestBuilderBuildAssemblesIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.Contains(req.Query, "DestProducts"):
			_, _ = w.Write([]byte(`{"data":{"products":{"nodes":[
				{"id":"gid://shopify/Product/1","handle":"tshirt","variants":{"nodes":[{"id":"gid://shopify/ProductVariant/11","sku":"RED-L"}]}}
			],"pageInfo":{"hasNextPage":false,"endCursor":""}}}}`))
		case strings.Contains(req.Query, "DestCollections"):
			_, _ = w.Write([]byte(`{"data":{"collections":{"nodes":[{"id":"gid://shopify/Collection/1","handle":"shirts"}],"pageInfo":{"hasNextPage":false,"endCursor":""}}}}`))
		case strings.Contains(req.Query, "DestPages"):
			_, _ = w.Write([]byte(`{"data":{"pages":{"nodes":[],"pageInfo":{"hasNextPage":false,"endCursor":""}}}}`))
		case strings.Contains(req.Query, "DestBlogs"):
			_, _ = w.Write([]byte(`{"data":{"blogs":{"nodes":[{"id":"gid://shopify/Blog/1","handle":"news","articles":{"nodes":[{"id":"gid://shopify/Article/1","handle":"launch"}]}}],"pageInfo":{"hasNextPage":false,"endCursor":""}}}}`))
		case strings.Contains(req.Query, "DestPublications"):
			_, _ = w.Write([]byte(`{"data":{"publications":{"nodes":[{"id":"gid://shopify/Publication/1","name":"Online Store"}]}}}`))
		case strings.Contains(req.Query, "DestMarkets"):
			_, _ = w.Write([]byte(`{"data":{"markets":{"nodes":[],"pageInfo":{"hasNextPage":false,"endCursor":""}}}}`))
		default:
			t.Fatalf("unexpected query: %s", req.Query)
		}
	}))
	defer srv.Close()

	client := gql.New(strings.TrimPrefix(srv.URL, "http://"), "token", "2025-10", 5*time.Second)
	client.SetHTTPClient(srv.Client())

	builder := NewBuilder(client, 4)
	idx, err := builder.Build(context.Background())
	require.NoError(t, err)

	id, ok := idx.Product("tshirt")
	require.True(t, ok)
	require.Equal(t, "gid://shopify/Product/1", id)

	id, ok = idx.Variant("tshirt:RED-L")
	require.True(t, ok)
	require.Equal(t, "gid://shopify/ProductVariant/11", id)

	id, ok = idx.Collection("shirts")
	require.True(t, ok)
	require.Equal(t, "gid://shopify/Collection/1", id)

	id, ok = idx.Article("news:launch")
	require.True(t, ok)
	require.Equal(t, "gid://shopify/Article/1", id)

	id, ok = idx.Publication("Online Store")
	require.True(t, ok)
	require.Equal(t, "gid://shopify/Publication/1", id)
}
