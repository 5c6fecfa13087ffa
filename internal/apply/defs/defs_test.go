package defs

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

	"duplicator/internal/dump"
	"duplicator/internal/gql"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func writeDefinitionsDoc(t *testing.T, dir string, doc dump.DefinitionsDoc) {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "definitions.json"), data, 0o644))
}

func TestApplyCreatesOnlyMissingDefinitions(t *testing.T) {
	var moCreateCalls, mfCreateCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "ExistingMetaobjectDefinitions"):
			_, _ = w.Write([]byte(`{"data":{"metaobjectDefinitions":{"nodes":[{"id":"gid://shopify/MetaobjectDefinition/1","type":"recipe"}]}}}`))
		case strings.Contains(req.Query, "ExistingMetafieldDefinitions"):
			_, _ = w.Write([]byte(`{"data":{"metafieldDefinitions":{"nodes":[{"namespace":"custom","key":"already_there","ownerType":"PRODUCT"}]}}}`))
		case strings.Contains(req.Query, "MetaobjectDefinitionCreate"):
			moCreateCalls++
			_, _ = w.Write([]byte(`{"data":{"metaobjectDefinitionCreate":{"metaobjectDefinition":{"id":"gid://shopify/MetaobjectDefinition/2","type":"ingredient"},"userErrors":[]}}}`))
		case strings.Contains(req.Query, "MetafieldDefinitionCreate"):
			mfCreateCalls++
			_, _ = w.Write([]byte(`{"data":{"metafieldDefinitionCreate":{"createdDefinition":{"id":"gid://shopify/MetafieldDefinition/9"},"userErrors":[]}}}`))
		default:
			t.Fatalf("unexpected query: %s", req.Query)
		}
	}))
	defer srv.Close()

	client := gql.New(strings.TrimPrefix(srv.URL, "http://"), "token", "2025-10", 5*time.Second)
	client.SetHTTPClient(srv.Client())

	dir := t.TempDir()
	writeDefinitionsDoc(t, dir, dump.DefinitionsDoc{
		MetaobjectDefinitions: []dump.MetaobjectDefinition{
			{Type: "recipe", Name: "Recipe"},   // already exists: skipped
			{Type: "ingredient", Name: "Ingredient"}, // missing: created
		},
		MetafieldDefinitions: []dump.MetafieldDefinition{
			{Namespace: "custom", Key: "already_there", OwnerType: "PRODUCT", Type: "single_line_text_field"}, // exists: skipped
			{Namespace: "custom", Key: "new_one", OwnerType: "PRODUCT", Type: "single_line_text_field"},        // missing: created
		},
	})

	stats, err := Apply(context.Background(), client, dir)
	require.NoError(t, err)

	require.Equal(t, 1, moCreateCalls)
	require.Equal(t, 1, mfCreateCalls)
	require.Equal(t, 4, stats.Total)
	require.Equal(t, 2, stats.Created)
	require.Equal(t, 2, stats.Skipped)
	require.Equal(t, 0, stats.Failed)
}

func TestApplySkipsReservedNamespaceSilently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "ExistingMetaobjectDefinitions"):
			_, _ = w.Write([]byte(`{"data":{"metaobjectDefinitions":{"nodes":[]}}}`))
		case strings.Contains(req.Query, "ExistingMetafieldDefinitions"):
			_, _ = w.Write([]byte(`{"data":{"metafieldDefinitions":{"nodes":[]}}}`))
		default:
			t.Fatalf("reserved-namespace definition should never reach a create mutation: %s", req.Query)
		}
	}))
	defer srv.Close()

	client := gql.New(strings.TrimPrefix(srv.URL, "http://"), "token", "2025-10", 5*time.Second)
	client.SetHTTPClient(srv.Client())

	dir := t.TempDir()
	writeDefinitionsDoc(t, dir, dump.DefinitionsDoc{
		MetaobjectDefinitions: []dump.MetaobjectDefinition{
			{Type: "shopify--color-swatch", Name: "Color swatch"},
		},
		MetafieldDefinitions: []dump.MetafieldDefinition{
			{Namespace: "reviews", Key: "rating", OwnerType: "PRODUCT", Type: "number_decimal"},
		},
	})

	stats, err := Apply(context.Background(), client, dir)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 0, stats.Created)
	require.Equal(t, 2, stats.Skipped)
}

func TestApplyRewritesMetaobjectValidationToDestinationID(t *testing.T) {
	var capturedValidations []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "ExistingMetaobjectDefinitions"):
			_, _ = w.Write([]byte(`{"data":{"metaobjectDefinitions":{"nodes":[{"id":"gid://shopify/MetaobjectDefinition/1","type":"ingredient"}]}}}`))
		case strings.Contains(req.Query, "ExistingMetafieldDefinitions"):
			_, _ = w.Write([]byte(`{"data":{"metafieldDefinitions":{"nodes":[]}}}`))
		case strings.Contains(req.Query, "MetafieldDefinitionCreate"):
			def, _ := req.Variables["definition"].(map[string]any)
			raw, _ := json.Marshal(def["validations"])
			var vs []map[string]string
			_ = json.Unmarshal(raw, &vs)
			capturedValidations = vs
			_, _ = w.Write([]byte(`{"data":{"metafieldDefinitionCreate":{"createdDefinition":{"id":"gid://shopify/MetafieldDefinition/9"},"userErrors":[]}}}`))
		default:
			t.Fatalf("unexpected query: %s", req.Query)
		}
	}))
	defer srv.Close()

	client := gql.New(strings.TrimPrefix(srv.URL, "http://"), "token", "2025-10", 5*time.Second)
	client.SetHTTPClient(srv.Client())

	dir := t.TempDir()
	writeDefinitionsDoc(t, dir, dump.DefinitionsDoc{
		MetaobjectDefinitions: []dump.MetaobjectDefinition{
			{ID: "gid://shopify/MetaobjectDefinition/source-42", Type: "ingredient", Name: "Ingredient"},
		},
		MetafieldDefinitions: []dump.MetafieldDefinition{
			{
				Namespace: "custom", Key: "main_ingredient", OwnerType: "PRODUCT", Type: "metaobject_reference",
				Validations: []dump.MetafieldValidation{
					{Name: "metaobject_definition_id", Value: "gid://shopify/MetaobjectDefinition/source-42"},
				},
			},
		},
	})

	stats, err := Apply(context.Background(), client, dir)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Failed)
	require.Len(t, capturedValidations, 1)
	require.Equal(t, "gid://shopify/MetaobjectDefinition/1", capturedValidations[0]["value"])
}
