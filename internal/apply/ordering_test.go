package apply

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"duplicator/internal/rewrite"
)

// TestApplyBlogThenArticleCreatesParentFirst covers the blog/article
// ordering scenario: the dump has articles for a blog the destination
// doesn't have yet, and applyArticles (phase 6) must see the blog
// applyBlogs (phase 5) just created, with no index rebuild in between.
func TestApplyBlogThenArticleCreatesParentFirst(t *testing.T) {
	p, srv := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "BlogCreate"):
			_, _ = w.Write([]byte(`{"data":{"blogCreate":{"blog":{"id":"gid://shopify/Blog/1"},"userErrors":[]}}}`))
		case strings.Contains(req.Query, "ArticleCreate"):
			input, _ := req.Variables["input"].(map[string]any)
			require.Equal(t, "gid://shopify/Blog/1", input["blogId"])
			_, _ = w.Write([]byte(`{"data":{"articleCreate":{"article":{"id":"gid://shopify/Article/1"},"userErrors":[]}}}`))
		default:
			t.Fatalf("unexpected query: %s", req.Query)
		}
	})
	defer srv.Close()

	writeJSONLFile(t, p.Dir, "blogs.jsonl", []string{
		`{"naturalKey":"news","data":{"title":"News"}}`,
	})
	writeJSONLFile(t, p.Dir, "articles.jsonl", []string{
		`{"naturalKey":"news:first-post","data":{"title":"First post","body":"hello"}}`,
	})

	blogStats, err := p.applyBlogs(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, blogStats.Created)

	resolver := rewrite.NewResolver(p.idx)
	articleStats, err := p.applyArticles(context.Background(), resolver)
	require.NoError(t, err)
	require.Equal(t, 1, articleStats.Created)
	require.Equal(t, 0, articleStats.Skipped)

	id, ok := p.idx.Article("news:first-post")
	require.True(t, ok)
	require.Equal(t, "gid://shopify/Article/1", id)
}

// TestApplyProductVariantWithoutSKUIsAddressableByPosition covers the
// variant-without-SKU scenario: a product with one SKU'd variant and one
// bare variant must leave both addressable in the destination index, the
// bare one by its position-based key.
func TestApplyProductVariantWithoutSKUIsAddressableByPosition(t *testing.T) {
	p, srv := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "ProductCreate"):
			_, _ = w.Write([]byte(`{"data":{"productCreate":{"product":{"id":"gid://shopify/Product/1"},"userErrors":[]}}}`))
		case strings.Contains(req.Query, "ProductVariantsBulkCreate"):
			_, _ = w.Write([]byte(`{"data":{"productVariantsBulkCreate":{"productVariants":[{"id":"gid://shopify/ProductVariant/11","sku":"RED-L"},{"id":"gid://shopify/ProductVariant/12","sku":""}],"userErrors":[]}}}`))
		default:
			t.Fatalf("unexpected query: %s", req.Query)
		}
	})
	defer srv.Close()

	writeJSONLFile(t, p.Dir, "products.jsonl", []string{
		`{"naturalKey":"tshirt","data":{"title":"T-Shirt","variants":[{"naturalKey":"tshirt:RED-L","sku":"RED-L","position":1},{"naturalKey":"tshirt:pos2","sku":"","position":2}]}}`,
	})

	resolver := rewrite.NewResolver(p.idx)
	stats, err := p.applyProducts(context.Background(), resolver)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Created)

	skuID, ok := p.idx.Variant("tshirt:RED-L")
	require.True(t, ok)
	require.Equal(t, "gid://shopify/ProductVariant/11", skuID)

	posID, ok := p.idx.Variant("tshirt:pos2")
	require.True(t, ok)
	require.Equal(t, "gid://shopify/ProductVariant/12", posID)
}
