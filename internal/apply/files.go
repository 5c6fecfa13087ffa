package apply

import (
	"context"

	"duplicator/internal/filelib"
)

// applyFiles runs phase 2 (§4.6 "Files"): the File Library Sync. Its result
// is folded directly into the Destination Index (filesByName/filesByURL are
// not rebuilt by index.Builder's destination queries, since the sync's
// pre-pass already performed that exact lookup) so later phases can resolve
// refFile annotations without a redundant query. The same maps are kept on
// the Pipeline itself so rebuildIndex can re-fold them into every
// subsequently built index; otherwise the later rebuilds ahead of phases 9
// and 10 would silently drop them.
func (p *Pipeline) applyFiles(ctx context.Context) (Stats, error) {
	syncer := filelib.NewSyncer(p.Dest)
	fstats, result, err := syncer.Sync(ctx, p.Dir, p.workers())
	if err != nil {
		return Stats{}, err
	}

	p.fileByName = result.FilenameMap
	p.fileByURL = result.SourceURLToID
	for filename, entry := range result.FilenameMap {
		p.idx.AddFileByName(filename, entry)
	}
	for url, id := range result.SourceURLToID {
		p.idx.AddFileByURL(url, id)
	}

	return Stats{
		Phase:   "files",
		Total:   fstats.Total,
		Created: fstats.Created,
		Updated: fstats.Updated,
		Skipped: fstats.Skipped,
		Failed:  fstats.Failed,
		Errors:  fstats.Errors,
	}, nil
}
