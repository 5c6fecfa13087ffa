package apply

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"duplicator/internal/jsonl"
	"duplicator/internal/naturalkey"
	"duplicator/internal/record"
	"duplicator/internal/rewrite"
)

type metaobjectApplyPayload struct {
	Fields []record.Field `json:"fields"`
}

const metaobjectUpsertMutation = `
mutation MetaobjectUpsert($handle: MetaobjectHandleInput!, $metaobject: MetaobjectUpsertInput!) {
  metaobjectUpsert(handle: $handle, metaobject: $metaobject) {
    metaobject { id }
    userErrors { field message }
  }
}`

// applyMetaobjects implements phase 9: upsert every metaobject instance via
// the platform's dedicated upsert mutation (§4.6 "use it"), keyed by
// (type, handle). A metaobject whose fields reference another metaobject
// (including its own type — cycles) is retried for up to
// p.MaxMetaobjectPasses total passes, since the straggler may simply have
// been processed before its reference's target within the same phase. A
// retry pass that completes none of its stragglers ends the loop early.
// p.MaxMetaobjectPasses defaults to 1 (no retry), leaving any remaining
// stragglers for the metafields phase to pick up once the index is rebuilt.
func (p *Pipeline) applyMetaobjects(ctx context.Context, resolver *rewrite.Resolver) (Stats, error) {
	var stats Stats
	stats.Phase = "metaobjects"

	matches, err := filepath.Glob(filepath.Join(p.Dir, "metaobjects-*.jsonl"))
	if err != nil {
		return stats, fmt.Errorf("apply: metaobjects: glob: %w", err)
	}

	type pending struct {
		metaobjectType string
		rec            record.Record
	}
	var all []pending
	for _, path := range matches {
		metaobjectType := metaobjectTypeFromFilename(path)
		recs, err := jsonl.DecodeAll[record.Record](path, func(int, string, error) error { return nil })
		if err != nil {
			return stats, fmt.Errorf("apply: metaobjects: read %s: %w", path, err)
		}
		for _, r := range recs {
			all = append(all, pending{metaobjectType: metaobjectType, rec: r})
		}
	}

	passes := p.MaxMetaobjectPasses
	if passes < 1 {
		passes = 1
	}

	// latest holds each record's most recent attempt's Stats, keyed by its
	// position in all; a straggler's earlier-round Stats are superseded by
	// its final attempt rather than double-counted.
	latest := make([]Stats, len(all))

	type indexed struct {
		i    int
		item pending
	}
	remaining := make([]indexed, len(all))
	for i, item := range all {
		remaining[i] = indexed{i: i, item: item}
	}

	for round := 1; round <= passes && len(remaining) > 0; round++ {
		var stragglersMu sync.Mutex
		var stragglers []indexed
		var latestMu sync.Mutex
		runPool(ctx, remaining, p.workers(), func(ctx context.Context, entry indexed) Stats {
			s, complete := p.applyOneMetaobject(ctx, resolver, entry.item.metaobjectType, entry.item.rec)
			latestMu.Lock()
			if latest[entry.i].Created > 0 && s.Updated > 0 {
				// Created by an earlier pass of this run: it stays counted as created.
				s.Created, s.Updated = s.Created+s.Updated, 0
			}
			latest[entry.i] = s
			latestMu.Unlock()
			if !complete && round < passes {
				stragglersMu.Lock()
				stragglers = append(stragglers, entry)
				stragglersMu.Unlock()
			}
			return Stats{}
		})
		if round > 1 && len(stragglers) == len(remaining) {
			// This retry pass completed none of its records; stop early.
			break
		}
		remaining = stragglers
	}

	stats.Total = len(all)
	for _, s := range latest {
		stats.Created += s.Created
		stats.Updated += s.Updated
		stats.Skipped += s.Skipped
		stats.Failed += s.Failed
		for _, e := range s.Errors {
			if len(stats.Errors) >= maxSampledErrors {
				break
			}
			stats.Errors = append(stats.Errors, e)
		}
	}

	return stats, nil
}

// applyOneMetaobject upserts one metaobject instance. complete reports
// whether every field resolved; when false and another pass remains, the
// caller retries this record instead of counting it final.
func (p *Pipeline) applyOneMetaobject(ctx context.Context, resolver *rewrite.Resolver, metaobjectType string, r record.Record) (Stats, bool) {
	var stats Stats
	stats.Total = 1

	payload, err := decodeInto[metaobjectApplyPayload](r.Data)
	if err != nil {
		stats.recordError(fmt.Errorf("metaobject %s: decode: %w", r.NaturalKey, err))
		return stats, true
	}

	fields := make([]map[string]string, 0, len(payload.Fields))
	anyUnresolved := false
	for i := range payload.Fields {
		f := payload.Fields[i]
		if resolver.ResolveField(&f) == rewrite.OutcomeUnresolved {
			anyUnresolved = true
			continue
		}
		fields = append(fields, map[string]string{"key": f.Key, "value": f.Value})
	}

	metaobjectInput := map[string]any{"fields": fields}
	if r.PublishableStatus != "" {
		metaobjectInput["capabilities"] = map[string]any{
			"publishable": map[string]string{"status": r.PublishableStatus},
		}
	}
	vars := map[string]any{
		"handle":     map[string]string{"type": metaobjectType, "handle": handleFromMetaobjectKey(r.NaturalKey)},
		"metaobject": metaobjectInput,
	}

	data, err := p.Dest.Do(ctx, metaobjectUpsertMutation, vars)
	if err != nil {
		stats.recordError(fmt.Errorf("metaobject %s: %w", r.NaturalKey, err))
		return stats, true
	}
	var parsed struct {
		MetaobjectUpsert struct {
			Metaobject *struct {
				ID string `json:"id"`
			} `json:"metaobject"`
			UserErrors []struct {
				Field   []string `json:"field"`
				Message string   `json:"message"`
			} `json:"userErrors"`
		} `json:"metaobjectUpsert"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		stats.recordError(fmt.Errorf("metaobject %s: decode response: %w", r.NaturalKey, err))
		return stats, true
	}
	if len(parsed.MetaobjectUpsert.UserErrors) > 0 {
		stats.recordError(fmt.Errorf("metaobject %s: %s", r.NaturalKey, parsed.MetaobjectUpsert.UserErrors[0].Message))
		return stats, true
	}
	if parsed.MetaobjectUpsert.Metaobject == nil {
		stats.recordError(fmt.Errorf("metaobject %s: no metaobject returned", r.NaturalKey))
		return stats, true
	}

	id := parsed.MetaobjectUpsert.Metaobject.ID
	_, existedBefore := p.idx.Metaobject(r.NaturalKey)
	p.idx.AddMetaobject(r.NaturalKey, id)
	if existedBefore {
		stats.Updated++
	} else {
		stats.Created++
	}

	return stats, !anyUnresolved
}

func metaobjectTypeFromFilename(path string) string {
	name := filepath.Base(path)
	name = name[len("metaobjects-") : len(name)-len(".jsonl")]
	return name
}

// handleFromMetaobjectKey recovers the bare handle from a
// naturalkey.Metaobject composite key.
func handleFromMetaobjectKey(key string) string {
	_, handle, ok := naturalkey.SplitMetaobject(key)
	if !ok {
		return key
	}
	return handle
}
