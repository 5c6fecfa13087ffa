// Package apply implements the Apply Pipeline (§4.6): a fixed ten-phase
// sequence that upserts one tenant's dumped entities into a second tenant,
// keyed by natural key, rebuilding the Destination Index between phases so
// later phases can resolve references to entities the earlier ones just
// created.
package apply

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"duplicator/internal/gql"
	"duplicator/internal/index"
	"duplicator/internal/logging"
	"duplicator/internal/rewrite"
)

// Pipeline bundles everything one apply run needs: the destination tenant's
// request-layer client, the dump directory to read from, and the knobs that
// shape concurrency and the optional multi-pass metaobject resolver.
type Pipeline struct {
	Dest *gql.Client
	Dir  string

	// WorkerCount bounds per-phase fan-out (§5 "suggested 4-8"). Defaults to
	// 6 if unset.
	WorkerCount int

	// MaxMetaobjectPasses bounds the optional bounded-retry resolver over
	// metaobject cross-references (§9/§11). 1 (the default) means a single
	// pass — effectively off, relying on the metafields phase to correct
	// any stragglers.
	MaxMetaobjectPasses int

	idx             *index.Index
	metaobjectTypes []string
	fileByName      map[string]index.FileEntry
	fileByURL       map[string]string
	log             *zap.SugaredLogger
}

// NewPipeline constructs a Pipeline against the destination tenant.
func NewPipeline(dest *gql.Client, dir string) *Pipeline {
	return &Pipeline{
		Dest:                dest,
		Dir:                 dir,
		WorkerCount:         6,
		MaxMetaobjectPasses: 1,
		log:                 logging.Get(logging.CategoryApply),
	}
}

func (p *Pipeline) workers() int {
	if p.WorkerCount < 1 {
		return 1
	}
	return p.WorkerCount
}

func (p *Pipeline) path(filename string) string {
	return filepath.Join(p.Dir, filename)
}

// Run executes every phase in the fixed order of §4.6, rebuilding the index
// before phase 2 (files), and again before phase 9 (metaobjects) per the
// listed rebuild point. No phase aborts the run on record-level failure;
// every phase's Stats is collected into the returned Report regardless.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	var report Report

	types, err := discoverDumpedMetaobjectTypes(p.Dir)
	if err != nil {
		return report, fmt.Errorf("apply: discover metaobject types: %w", err)
	}
	p.metaobjectTypes = types

	if err := p.rebuildIndex(ctx); err != nil {
		return report, fmt.Errorf("apply: phase 1 build initial index: %w", err)
	}
	report.add(Stats{Phase: "build-initial-index"})

	filesStats, err := p.applyFiles(ctx)
	if err != nil {
		return report, fmt.Errorf("apply: phase 2 files: %w", err)
	}
	report.add(filesStats)

	resolver := rewrite.NewResolver(p.idx)

	productsStats, err := p.applyProducts(ctx, resolver)
	if err != nil {
		return report, fmt.Errorf("apply: phase 3 products: %w", err)
	}
	report.add(productsStats)

	collectionsStats, err := p.applyCollections(ctx, resolver)
	if err != nil {
		return report, fmt.Errorf("apply: phase 4 collections: %w", err)
	}
	report.add(collectionsStats)

	blogsStats, err := p.applyBlogs(ctx)
	if err != nil {
		return report, fmt.Errorf("apply: phase 5 blogs: %w", err)
	}
	report.add(blogsStats)

	articlesStats, err := p.applyArticles(ctx, resolver)
	if err != nil {
		return report, fmt.Errorf("apply: phase 6 articles: %w", err)
	}
	report.add(articlesStats)

	pagesStats, err := p.applyPages(ctx, resolver)
	if err != nil {
		return report, fmt.Errorf("apply: phase 7 pages: %w", err)
	}
	report.add(pagesStats)

	if err := p.rebuildIndex(ctx); err != nil {
		return report, fmt.Errorf("apply: phase 8 rebuild index: %w", err)
	}
	report.add(Stats{Phase: "rebuild-index"})
	resolver = rewrite.NewResolver(p.idx)

	metaobjectsStats, err := p.applyMetaobjects(ctx, resolver)
	if err != nil {
		return report, fmt.Errorf("apply: phase 9 metaobjects: %w", err)
	}
	report.add(metaobjectsStats)

	// Metaobjects just created must be visible to the metafields phase
	// (e.g. a product metafield referencing one), so the index is refreshed
	// once more before the final phase without counting as its own phase.
	if err := p.rebuildIndex(ctx); err != nil {
		return report, fmt.Errorf("apply: pre-metafields index refresh: %w", err)
	}
	resolver = rewrite.NewResolver(p.idx)

	metafieldsStats, err := p.applyMetafields(ctx, resolver)
	if err != nil {
		return report, fmt.Errorf("apply: phase 10 metafields: %w", err)
	}
	report.add(metafieldsStats)

	return report, nil
}

// rebuildIndex discards the current Destination Index and builds a fresh
// one, per §3.3 invariant 3 and the rebuild points named in §4.6. The file
// maps are re-folded into the fresh index afterward: index.Builder's
// destination queries never populate them (§4.6 "Files" — the sync phase's
// pre-pass already did that exact lookup), so a rebuild would otherwise
// silently drop every refFile annotation's resolvability for the phases
// that run after it.
func (p *Pipeline) rebuildIndex(ctx context.Context) error {
	b := index.NewBuilder(p.Dest, p.workers())
	b.SetMetaobjectTypes(p.metaobjectTypes)
	idx, err := b.Build(ctx)
	if err != nil {
		return err
	}
	for filename, entry := range p.fileByName {
		idx.AddFileByName(filename, entry)
	}
	for url, id := range p.fileByURL {
		idx.AddFileByURL(url, id)
	}
	p.idx = idx
	return nil
}
