// Package enrich implements the Enrichment Pass (§4.4/§4.5): a post-export
// sweep that builds a GID-to-natural-key map from the files a dump session
// just wrote, then re-reads every file a second time to add `refList`
// annotations to list-reference fields — the one case the Reference
// Rewriter cannot resolve inline, since the bulk API does not allow nested
// connections inside a list field.
package enrich

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"duplicator/internal/jsonl"
	"duplicator/internal/naturalkey"
	"duplicator/internal/record"
)

// gidIndex maps a source tenant's opaque id to the natural key the Dump
// Writers assigned it. The entity kind is recovered separately from the GID
// prefix itself (naturalkey.ParseGID), so the index need only ever store a
// plain string.
type gidIndex map[string]string

// fixedDumpFiles enumerates every on-disk artifact with a known, static
// name. metaobjects-{type}.jsonl files are discovered separately via glob,
// since the type set is tenant-defined.
var fixedDumpFiles = []string{
	"products.jsonl",
	"collections.jsonl",
	"pages.jsonl",
	"blogs.jsonl",
	"articles.jsonl",
	"files.jsonl",
}

// buildGIDIndex scans every dump file in dir and returns the opaque-id ->
// natural-key map used to resolve list-reference entries.
func buildGIDIndex(dir string) (gidIndex, error) {
	idx := make(gidIndex)

	paths := make([]string, 0, len(fixedDumpFiles))
	for _, name := range fixedDumpFiles {
		paths = append(paths, filepath.Join(dir, name))
	}
	matches, err := filepath.Glob(filepath.Join(dir, "metaobjects-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("enrich: glob metaobjects: %w", err)
	}
	paths = append(paths, matches...)

	for _, path := range paths {
		if err := indexFile(path, idx); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// indexFile adds every record's (and, for products, every nested variant's)
// id -> natural-key pair from one dump file. A missing file is not an
// error: not every tenant has articles, files, or any metaobjects at all.
func indexFile(path string, idx gidIndex) error {
	recs, err := jsonl.DecodeAll[record.Record](path, func(lineNumber int, line string, err error) error {
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("enrich: index %s: %w", path, err)
	}

	for _, rec := range recs {
		if rec.SourceID != "" {
			idx[rec.SourceID] = rec.NaturalKey
		}
		indexNestedVariants(rec, idx)
	}
	return nil
}

// indexNestedVariants adds a product record's nested variants, which carry
// their own opaque id but are not top-level dump records in their own
// right.
func indexNestedVariants(rec record.Record, idx gidIndex) {
	raw, ok := rec.Data["variants"]
	if !ok {
		return
	}
	variants, ok := raw.([]any)
	if !ok {
		return
	}
	for _, v := range variants {
		vm, ok := v.(map[string]any)
		if !ok {
			continue
		}
		id, _ := vm["sourceId"].(string)
		key, _ := vm["naturalKey"].(string)
		if id != "" && key != "" {
			idx[id] = key
		}
	}
}

// resolvedFields reconstructs the natural-key field set for one opaque id,
// given its recovered entity kind, using the same field names the
// single-reference annotator (internal/dump's referencedNodeHint) uses on
// export. Variants differ: here only one of sku or position is set, and
// position is a decimal string rather than a JSON number.
func resolvedFields(kind naturalkey.GIDKind, naturalKey string) map[string]string {
	switch kind {
	case naturalkey.KindProduct, naturalkey.KindCollection, naturalkey.KindPage, naturalkey.KindBlog:
		return map[string]string{"handle": naturalKey}
	case naturalkey.KindArticle:
		blogHandle, articleHandle, _ := strings.Cut(naturalKey, ":")
		return map[string]string{"blogHandle": blogHandle, "articleHandle": articleHandle}
	case naturalkey.KindMetaobject:
		typ, handle, _ := strings.Cut(naturalKey, ":")
		return map[string]string{"type": typ, "handle": handle}
	case naturalkey.KindProductVariant:
		return variantFields(naturalKey)
	case naturalkey.KindMediaImage, naturalkey.KindGenericFile, naturalkey.KindVideo:
		return map[string]string{"filename": naturalKey}
	default:
		return nil
	}
}

// variantFields splits a variant natural key back into its components. The
// format is "productHandle:sku" (SKU-keyed) or "productHandle:posN"
// (position-keyed fallback) per naturalkey.VariantKeys.
func variantFields(naturalKey string) map[string]string {
	i := strings.LastIndex(naturalKey, ":")
	if i < 0 {
		return map[string]string{"productHandle": naturalKey}
	}
	productHandle, rest := naturalKey[:i], naturalKey[i+1:]
	if strings.HasPrefix(rest, "pos") {
		return map[string]string{"productHandle": productHandle, "position": strings.TrimPrefix(rest, "pos")}
	}
	return map[string]string{"productHandle": productHandle, "sku": rest}
}
