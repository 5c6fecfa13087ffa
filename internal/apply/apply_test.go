package apply

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"duplicator/internal/gql"
	"duplicator/internal/index"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func newTestPipeline(t *testing.T, handler http.HandlerFunc) (*Pipeline, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client := gql.New(strings.TrimPrefix(srv.URL, "http://"), "token", "2025-10", 5*time.Second)
	client.SetHTTPClient(srv.Client())

	p := NewPipeline(client, t.TempDir())
	p.idx = index.New()
	return p, srv
}

func writeJSONLFile(t *testing.T, dir, filename string, lines []string) {
	t.Helper()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestApplyProductsCreatesNewProduct(t *testing.T) {
	p, srv := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "ProductCreate"):
			_, _ = w.Write([]byte(`{"data":{"productCreate":{"product":{"id":"gid://shopify/Product/1"},"userErrors":[]}}}`))
		case strings.Contains(req.Query, "ProductVariantsBulkCreate"):
			_, _ = w.Write([]byte(`{"data":{"productVariantsBulkCreate":{"productVariants":[{"id":"gid://shopify/ProductVariant/11","sku":"RED-L"}],"userErrors":[]}}}`))
		default:
			t.Fatalf("unexpected query: %s", req.Query)
		}
	})
	defer srv.Close()

	writeJSONLFile(t, p.Dir, "products.jsonl", []string{
		`{"naturalKey":"tshirt","publishableStatus":"ACTIVE","data":{"title":"T-Shirt","variants":[{"naturalKey":"tshirt:RED-L","sku":"RED-L","position":1}]}}`,
	})

	stats, err := p.applyProducts(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Created)
	require.Equal(t, 0, stats.Failed)

	id, ok := p.idx.Product("tshirt")
	require.True(t, ok)
	require.Equal(t, "gid://shopify/Product/1", id)

	vid, ok := p.idx.Variant("tshirt:RED-L")
	require.True(t, ok)
	require.Equal(t, "gid://shopify/ProductVariant/11", vid)
}

func TestApplyProductsUpdatesExistingAndSkipsVariants(t *testing.T) {
	p, srv := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(req.Query, "ProductUpdate") {
			_, _ = w.Write([]byte(`{"data":{"productUpdate":{"product":{"id":"gid://shopify/Product/1"},"userErrors":[]}}}`))
			return
		}
		t.Fatalf("unexpected query for already-existing product: %s", req.Query)
	})
	defer srv.Close()

	p.idx.AddProduct("tshirt", "gid://shopify/Product/1")
	writeJSONLFile(t, p.Dir, "products.jsonl", []string{
		`{"naturalKey":"tshirt","data":{"title":"T-Shirt v2","variants":[{"naturalKey":"tshirt:RED-L","sku":"RED-L","position":1}]}}`,
	})

	stats, err := p.applyProducts(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Updated)
	require.Equal(t, 0, stats.Created)
}

func TestApplyProductsMissingFileIsNoop(t *testing.T) {
	p, srv := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected when products.jsonl is absent")
	})
	defer srv.Close()

	stats, err := p.applyProducts(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, Stats{Phase: "products"}, stats)
}
