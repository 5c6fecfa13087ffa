package enrich

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"duplicator/internal/jsonl"
	"duplicator/internal/record"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFixture(t *testing.T, dir, filename string, recs []record.Record) {
	t.Helper()
	w, err := jsonl.CreateWriter(filepath.Join(dir, filename))
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
}

func TestEnrichDirAddsListReferenceAnnotations(t *testing.T) {
	dir := t.TempDir()

	listValue, err := json.Marshal([]string{"gid://shopify/Product/2", "gid://shopify/Collection/3"})
	require.NoError(t, err)

	shirt := record.Record{
		NaturalKey: "shirt",
		SourceID:   "gid://shopify/Product/1",
		Data: map[string]any{
			"title": "Shirt",
			"metafields": []any{
				map[string]any{
					"key":   "related",
					"type":  "list.product_reference",
					"value": string(listValue),
				},
			},
		},
	}
	mug := record.Record{
		NaturalKey: "mug",
		SourceID:   "gid://shopify/Product/2",
		Data:       map[string]any{"title": "Mug"},
	}
	writeFixture(t, dir, "products.jsonl", []record.Record{shirt, mug})

	winter := record.Record{
		NaturalKey: "winter",
		SourceID:   "gid://shopify/Collection/3",
		Data:       map[string]any{"title": "Winter"},
	}
	writeFixture(t, dir, "collections.jsonl", []record.Record{winter})

	stats, err := EnrichDir(dir)
	require.NoError(t, err)
	require.Equal(t, 1, stats.FieldsEnriched)

	recs, err := jsonl.DecodeAll[record.Record](filepath.Join(dir, "products.jsonl"), nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	data, err := json.Marshal(recs[0].Data)
	require.NoError(t, err)
	require.Contains(t, string(data), `"refList"`)
	require.Contains(t, string(data), `"handle":"mug"`)
	require.Contains(t, string(data), `"handle":"winter"`)
}

func TestEnrichDirIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	listValue, _ := json.Marshal([]string{"gid://shopify/Product/2"})
	shirt := record.Record{
		NaturalKey: "shirt",
		SourceID:   "gid://shopify/Product/1",
		Data: map[string]any{
			"metafields": []any{
				map[string]any{"key": "related", "type": "list.product_reference", "value": string(listValue)},
			},
		},
	}
	mug := record.Record{NaturalKey: "mug", SourceID: "gid://shopify/Product/2", Data: map[string]any{}}
	writeFixture(t, dir, "products.jsonl", []record.Record{shirt, mug})

	_, err := EnrichDir(dir)
	require.NoError(t, err)
	first, err := jsonl.DecodeAll[record.Record](filepath.Join(dir, "products.jsonl"), nil)
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)

	stats, err := EnrichDir(dir)
	require.NoError(t, err)
	require.Equal(t, 1, stats.FieldsEnriched)

	second, err := jsonl.DecodeAll[record.Record](filepath.Join(dir, "products.jsonl"), nil)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)

	require.JSONEq(t, string(firstJSON), string(secondJSON))
}

func TestEnrichDirDropsUnresolvableEntries(t *testing.T) {
	dir := t.TempDir()

	listValue, _ := json.Marshal([]string{"gid://shopify/Product/999", "gid://shopify/TaxonomyValue/1"})
	shirt := record.Record{
		NaturalKey: "shirt",
		SourceID:   "gid://shopify/Product/1",
		Data: map[string]any{
			"metafields": []any{
				map[string]any{"key": "related", "type": "list.product_reference", "value": string(listValue)},
			},
		},
	}
	writeFixture(t, dir, "products.jsonl", []record.Record{shirt})

	stats, err := EnrichDir(dir)
	require.NoError(t, err)
	require.Equal(t, 0, stats.FieldsEnriched)

	recs, err := jsonl.DecodeAll[record.Record](filepath.Join(dir, "products.jsonl"), nil)
	require.NoError(t, err)
	data, err := json.Marshal(recs[0].Data)
	require.NoError(t, err)
	require.NotContains(t, string(data), "refList")
}
