package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"duplicator/internal/index"
	"duplicator/internal/jsonl"
	"duplicator/internal/record"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare --dir's dumped natural keys against the destination index (read-only)",
	RunE:  runDiff,
}

// sourceFamilyFiles maps each entity family diff reports on to its
// single-file dump artifact. Metaobjects are handled separately, since
// they are split one file per discovered type.
var sourceFamilyFiles = map[string]string{
	"products":    "products.jsonl",
	"collections": "collections.jsonl",
	"pages":       "pages.jsonl",
	"blogs":       "blogs.jsonl",
	"articles":    "articles.jsonl",
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	builder := index.NewBuilder(destClient(), cfg.WorkerCount)
	destIdx, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("diff: build destination index: %w", err)
	}
	destFamilies := destIdx.Families()

	sourceFamilies, err := readSourceFamilies(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("diff: read source dump: %w", err)
	}

	for family, sourceKeys := range sourceFamilies {
		destKeys := destFamilies[family]
		onlySource, onlyDest, both := 0, 0, 0
		for k := range sourceKeys {
			if _, ok := destKeys[k]; ok {
				both++
			} else {
				onlySource++
			}
		}
		for k := range destKeys {
			if _, ok := sourceKeys[k]; !ok {
				onlyDest++
			}
		}
		fmt.Printf("%-14s only-source=%d only-dest=%d both=%d\n", family, onlySource, onlyDest, both)
	}
	return nil
}

func readSourceFamilies(dir string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(sourceFamilyFiles)+1)
	for family, filename := range sourceFamilyFiles {
		keys, err := readNaturalKeys(filepath.Join(dir, filename))
		if err != nil {
			return nil, err
		}
		out[family] = keys
	}

	matches, err := filepath.Glob(filepath.Join(dir, "metaobjects-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("glob metaobjects: %w", err)
	}
	metaobjectKeys := make(map[string]string)
	for _, path := range matches {
		keys, err := readNaturalKeys(path)
		if err != nil {
			return nil, err
		}
		for k, v := range keys {
			metaobjectKeys[k] = v
		}
	}
	out["metaobjects"] = metaobjectKeys

	return out, nil
}

func readNaturalKeys(path string) (map[string]string, error) {
	recs, err := jsonl.DecodeAll[record.Record](path, func(int, string, error) error { return nil })
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	out := make(map[string]string, len(recs))
	for _, r := range recs {
		out[r.NaturalKey] = r.SourceID
	}
	return out, nil
}
