package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"go.uber.org/zap"

	"duplicator/internal/jsonl"
	"duplicator/internal/logging"
	"duplicator/internal/naturalkey"
	"duplicator/internal/record"
	"duplicator/internal/rewrite"
)

// Stats summarizes one enrichment run.
type Stats struct {
	FilesProcessed int
	FieldsEnriched int
}

// enrichTargetFiles is every dump artifact the second pass rewrites.
// shop-metafields.jsonl is a valid enrichment target (its list-reference
// fields may need a refList annotation) even though it is excluded from
// the GID index itself, since a Shop metafield has no natural key other
// tenants' references could resolve to.
var enrichTargetFiles = append(append([]string{}, fixedDumpFiles...), "shop-metafields.jsonl")

// EnrichDir runs the Enrichment Pass over every dump file in dir: it builds
// the opaque-id -> natural-key map from what was just dumped, then re-reads
// every file a second time, adding refList annotations to list-reference
// fields, and writes the enriched records back in place. Running EnrichDir
// twice on already-enriched files is a no-op: the same source gids always
// resolve to the same refList entries.
func EnrichDir(dir string) (Stats, error) {
	log := logging.Get(logging.CategoryEnrich)

	idx, err := buildGIDIndex(dir)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats

	paths := make([]string, 0, len(enrichTargetFiles))
	for _, name := range enrichTargetFiles {
		paths = append(paths, filepath.Join(dir, name))
	}
	matches, err := filepath.Glob(filepath.Join(dir, "metaobjects-*.jsonl"))
	if err != nil {
		return stats, fmt.Errorf("enrich: glob metaobjects: %w", err)
	}
	paths = append(paths, matches...)

	for _, path := range paths {
		n, err := enrichFile(path, idx, log)
		if err != nil {
			return stats, err
		}
		if n >= 0 {
			stats.FilesProcessed++
			stats.FieldsEnriched += n
		}
	}
	return stats, nil
}

// enrichFile rewrites one dump file in place, returning the number of
// fields it attached a refList annotation to, or -1 if the file does not
// exist (not every tenant has every entity family).
func enrichFile(path string, idx gidIndex, log *zap.SugaredLogger) (int, error) {
	recs, err := jsonl.DecodeAll[record.Record](path, nil)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return -1, nil
		}
		return 0, fmt.Errorf("enrich: read %s: %w", path, err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	enriched := 0
	for i := range recs {
		enriched += enrichData(recs[i].Data, idx, log)
	}

	w, err := jsonl.CreateWriter(path)
	if err != nil {
		return enriched, fmt.Errorf("enrich: rewrite %s: %w", path, err)
	}
	defer w.Close()
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			return enriched, fmt.Errorf("enrich: rewrite %s: %w", path, err)
		}
	}
	return enriched, nil
}

// enrichData walks one record's Data payload looking for the shapes the
// dump writers use to hold typed fields ("metafields"/"fields" arrays, the
// single "field" map shop-metafields.jsonl uses, and nested "variants"), and
// enriches every list-reference field it finds. Returns the count enriched.
func enrichData(data map[string]any, idx gidIndex, log *zap.SugaredLogger) int {
	count := 0
	for _, key := range []string{"metafields", "fields"} {
		arr, ok := data[key].([]any)
		if !ok {
			continue
		}
		for _, item := range arr {
			if fm, ok := item.(map[string]any); ok && enrichFieldMap(fm, idx, log) {
				count++
			}
		}
	}
	if fm, ok := data["field"].(map[string]any); ok {
		if enrichFieldMap(fm, idx, log) {
			count++
		}
	}
	if variants, ok := data["variants"].([]any); ok {
		for _, v := range variants {
			if vm, ok := v.(map[string]any); ok {
				count += enrichData(vm, idx, log)
			}
		}
	}
	return count
}

// enrichFieldMap adds a refList annotation to fm if it is a list-reference
// field whose value decodes to a JSON array of opaque ids. Unresolvable
// entries are dropped with a warning rather than failing the whole field,
// mirroring the Reference Rewriter's import-time behavior.
func enrichFieldMap(fm map[string]any, idx gidIndex, log *zap.SugaredLogger) bool {
	typ, _ := fm["type"].(string)
	if !rewrite.IsListReferenceType(typ) {
		return false
	}
	value, _ := fm["value"].(string)
	if value == "" {
		return false
	}
	var gids []string
	if err := json.Unmarshal([]byte(value), &gids); err != nil {
		return false
	}

	entries := make([]record.ListReferenceEntry, 0, len(gids))
	for _, gid := range gids {
		naturalKey, ok := idx[gid]
		if !ok {
			log.Warnw("enrichment: unresolvable list-reference entry, dropping", "gid", gid)
			continue
		}
		kind := naturalkey.ParseGID(gid)
		fields := resolvedFields(kind, naturalKey)
		if fields == nil {
			continue
		}
		entries = append(entries, record.ListReferenceEntry{Type: string(kind), HandleFields: fields})
	}

	annotation := rewrite.BuildListReferenceAnnotation(entries)
	if annotation == nil {
		return false
	}
	for k, v := range annotation {
		fm[k] = v
	}
	return true
}
