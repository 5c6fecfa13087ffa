package dump

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
	"duplicator/internal/jsonl"
	"duplicator/internal/record"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type bulkRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// fakeBulkServer serves a bulkOperationRunQuery + poll + a pre-canned
// result file, regardless of the submitted query's content, so dump
// writers can be tested without a real tenant.
func fakeBulkServer(t *testing.T, resultLines string) *httptest.Server {
	t.Helper()
	callCount := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/result.jsonl" {
			_, _ = w.Write([]byte(resultLines))
			return
		}
		var req bulkRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		if strings.Contains(req.Query, "bulkOperationRunQuery") {
			_, _ = w.Write([]byte(`{"data":{"bulkOperationRunQuery":{"bulkOperation":{"id":"1","status":"CREATED"},"userErrors":[]}}}`))
			return
		}
		callCount++
		_, _ = w.Write([]byte(`{"data":{"currentBulkOperation":{"id":"1","status":"COMPLETED","errorCode":"","objectCount":"1","url":"` + srv.URL + `/result.jsonl"}}}`))
	}))
	return srv
}

func newTestSession(t *testing.T, srv *httptest.Server) *Session {
	t.Helper()
	c := gql.New(strings.TrimPrefix(srv.URL, "http://"), "token", "2025-10", 5*time.Second)
	c.SetHTTPClient(srv.Client())
	s := NewSession(c, t.TempDir())
	s.Runner.SetPollIntervals(time.Millisecond, 5*time.Millisecond)
	return s
}

func TestSessionProductsTransformsVariantsAndMetafields(t *testing.T) {
	lines := strings.Join([]string{
		`{"id":"gid://shopify/Product/1","handle":"tshirt","title":"T-Shirt","status":"ACTIVE"}`,
		`{"id":"gid://shopify/ProductVariant/11","__parentId":"gid://shopify/Product/1","sku":"RED-L"}`,
		`{"id":"gid://shopify/Metafield/99","__parentId":"gid://shopify/Product/1","key":"featured","namespace":"custom","type":"product_reference","value":"gid://shopify/Product/2","reference":{"__typename":"Product","handle":"mug"}}`,
	}, "\n") + "\n"

	srv := fakeBulkServer(t, lines)
	defer srv.Close()
	s := newTestSession(t, srv)

	stats, err := s.Products(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Written)

	recs, err := jsonl.DecodeAll[record.Record](filepath.Join(s.Dir, "products.jsonl"), nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "tshirt", recs[0].NaturalKey)

	data, _ := json.Marshal(recs[0].Data)
	require.Contains(t, string(data), `"refProduct"`)
	require.Contains(t, string(data), `"handle":"mug"`)
	require.Contains(t, string(data), `"naturalKey":"tshirt:RED-L"`)
}

func TestSessionCollectionsBasic(t *testing.T) {
	lines := `{"id":"gid://shopify/Collection/1","handle":"shirts","title":"Shirts"}` + "\n"
	srv := fakeBulkServer(t, lines)
	defer srv.Close()
	s := newTestSession(t, srv)

	stats, err := s.Collections(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Written)

	_, err = os.Stat(filepath.Join(s.Dir, "collections.jsonl"))
	require.NoError(t, err)
}

func TestSessionMetaobjectsInlineFields(t *testing.T) {
	lines := `{"id":"gid://shopify/Metaobject/1","handle":"summer-salad","type":"recipe","fields":[{"key":"title","type":"single_line_text_field","value":"Summer Salad"},{"key":"hero","type":"product_reference","value":"gid://shopify/Product/5","reference":{"__typename":"Product","handle":"tshirt"}}]}` + "\n"
	srv := fakeBulkServer(t, lines)
	defer srv.Close()
	s := newTestSession(t, srv)

	stats, err := s.Metaobjects(context.Background(), "recipe")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Written)

	recs, err := jsonl.DecodeAll[record.Record](filepath.Join(s.Dir, "metaobjects-recipe.jsonl"), nil)
	require.NoError(t, err)
	require.Equal(t, "recipe:summer-salad", recs[0].NaturalKey)

	data, _ := json.Marshal(recs[0].Data)
	require.Contains(t, string(data), `"refProduct"`)
}
