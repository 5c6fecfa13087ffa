package apply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"duplicator/internal/jsonl"
	"duplicator/internal/record"
	"duplicator/internal/rewrite"
)

type metafieldsPayload struct {
	Metafields []record.Field `json:"metafields"`
}

type fieldsPayload struct {
	Fields []record.Field `json:"fields"`
}

type singleFieldPayload struct {
	Field record.Field `json:"field"`
}

type productWithVariantsPayload struct {
	Metafields []record.Field `json:"metafields"`
	Variants   []struct {
		NaturalKey string         `json:"naturalKey"`
		Metafields []record.Field `json:"metafields"`
	} `json:"variants"`
}

func decodeInto[T any](data map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(data)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

const shopQuery = `{ shop { id } }`

func (p *Pipeline) shopID(ctx context.Context) (string, error) {
	data, err := p.Dest.Do(ctx, shopQuery, nil)
	if err != nil {
		return "", fmt.Errorf("shop: %w", err)
	}
	var parsed struct {
		Shop struct {
			ID string `json:"id"`
		} `json:"shop"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("shop: decode: %w", err)
	}
	return parsed.Shop.ID, nil
}

// collectFn receives one owning record: its natural key (for diagnostics),
// its resolved destination owner id (if any), and the typed fields to
// attach to it.
type collectFn func(naturalKey, ownerID string, ok bool, fields []record.Field)

// applyMetafields implements phase 10: every owner type's metafields,
// including the shop singleton, collected from every dump file in one pass
// and written in batches of metafieldBatchSize (§4.6's platform-imposed
// ceiling), regardless of which owner each entry belongs to. Metafields are
// deferred to this final phase (rather than set during each entity's own
// creation phase) because a field may reference an entity — a metaobject,
// in particular — that does not exist yet until phase 9.
func (p *Pipeline) applyMetafields(ctx context.Context, resolver *rewrite.Resolver) (Stats, error) {
	stats := Stats{Phase: "metafields"}

	var inputs []metafieldInput
	collect := func(naturalKey, ownerID string, ok bool, fields []record.Field) {
		stats.Total++
		if !ok {
			stats.Skipped++
			p.log.Warnw("metafields: owner not found in destination index, skipping record", "naturalKey", naturalKey)
			return
		}
		inputs = append(inputs, resolveFields(resolver, ownerID, fields, p.log)...)
	}

	if err := p.collectProductMetafields(collect); err != nil {
		return stats, err
	}
	if err := p.collectSimpleMetafields("collections.jsonl", p.idx.Collection, collect); err != nil {
		return stats, err
	}
	if err := p.collectSimpleMetafields("pages.jsonl", p.idx.Page, collect); err != nil {
		return stats, err
	}
	if err := p.collectSimpleMetafields("blogs.jsonl", p.idx.Blog, collect); err != nil {
		return stats, err
	}
	if err := p.collectSimpleMetafields("articles.jsonl", p.idx.Article, collect); err != nil {
		return stats, err
	}
	if err := p.collectMetaobjectMetafields(collect); err != nil {
		return stats, err
	}
	if err := p.collectShopMetafields(ctx, collect); err != nil {
		return stats, err
	}

	batches := chunkMetafields(inputs)
	batchStats := runPool(ctx, batches, p.workers(), func(ctx context.Context, batch []metafieldInput) Stats {
		return p.applyMetafieldBatch(ctx, batch)
	})
	stats.Created += batchStats.Created
	stats.Updated += batchStats.Updated
	stats.Failed += batchStats.Failed
	stats.Errors = append(stats.Errors, batchStats.Errors...)
	if len(stats.Errors) > maxSampledErrors {
		stats.Errors = stats.Errors[:maxSampledErrors]
	}

	return stats, nil
}

const metafieldsSetMutation = `
mutation MetafieldsSet($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    metafields { id }
    userErrors { field message }
  }
}`

// applyMetafieldBatch applies one metafieldsSet call. metafieldsSet is a
// true upsert, so a successful call cannot distinguish created from
// updated entries; they are all counted as Updated.
func (p *Pipeline) applyMetafieldBatch(ctx context.Context, batch []metafieldInput) Stats {
	var stats Stats
	data, err := p.Dest.Do(ctx, metafieldsSetMutation, map[string]any{"metafields": batch})
	if err != nil {
		stats.recordError(fmt.Errorf("metafieldsSet: %w", err))
		stats.Failed = len(batch)
		return stats
	}
	var parsed struct {
		MetafieldsSet struct {
			Metafields []struct {
				ID string `json:"id"`
			} `json:"metafields"`
			UserErrors []struct {
				Field   []string `json:"field"`
				Message string   `json:"message"`
			} `json:"userErrors"`
		} `json:"metafieldsSet"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		stats.recordError(fmt.Errorf("metafieldsSet: decode: %w", err))
		stats.Failed = len(batch)
		return stats
	}
	if len(parsed.MetafieldsSet.UserErrors) > 0 {
		for _, ue := range parsed.MetafieldsSet.UserErrors {
			stats.recordError(fmt.Errorf("metafieldsSet: %s", ue.Message))
		}
		return stats
	}
	stats.Updated = len(parsed.MetafieldsSet.Metafields)
	return stats
}

// collectSimpleMetafields handles the shared shape (collections, pages,
// blogs, articles): one record per owner, fields under "metafields",
// owner resolved by natural key through lookup.
func (p *Pipeline) collectSimpleMetafields(filename string, lookup func(string) (string, bool), collect collectFn) error {
	path := filepath.Join(p.Dir, filename)
	recs, err := jsonl.DecodeAll[record.Record](path, func(int, string, error) error { return nil })
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return fmt.Errorf("apply: metafields: read %s: %w", filename, err)
	}
	for _, r := range recs {
		payload, derr := decodeInto[metafieldsPayload](r.Data)
		if derr != nil {
			p.log.Warnw("metafields: malformed record, skipping", "file", filename, "naturalKey", r.NaturalKey, "error", derr)
			continue
		}
		id, ok := lookup(r.NaturalKey)
		collect(r.NaturalKey, id, ok, payload.Metafields)
	}
	return nil
}

func (p *Pipeline) collectProductMetafields(collect collectFn) error {
	path := filepath.Join(p.Dir, "products.jsonl")
	recs, err := jsonl.DecodeAll[record.Record](path, func(int, string, error) error { return nil })
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return fmt.Errorf("apply: metafields: read products.jsonl: %w", err)
	}
	for _, r := range recs {
		payload, derr := decodeInto[productWithVariantsPayload](r.Data)
		if derr != nil {
			p.log.Warnw("metafields: malformed product record, skipping", "naturalKey", r.NaturalKey, "error", derr)
			continue
		}
		id, ok := p.idx.Product(r.NaturalKey)
		collect(r.NaturalKey, id, ok, payload.Metafields)
		for _, v := range payload.Variants {
			vid, vok := p.idx.Variant(v.NaturalKey)
			collect(v.NaturalKey, vid, vok, v.Metafields)
		}
	}
	return nil
}

func (p *Pipeline) collectMetaobjectMetafields(collect collectFn) error {
	matches, err := filepath.Glob(filepath.Join(p.Dir, "metaobjects-*.jsonl"))
	if err != nil {
		return fmt.Errorf("apply: metafields: glob metaobjects: %w", err)
	}
	for _, path := range matches {
		recs, derr := jsonl.DecodeAll[record.Record](path, func(int, string, error) error { return nil })
		if derr != nil {
			return fmt.Errorf("apply: metafields: read %s: %w", path, derr)
		}
		for _, r := range recs {
			payload, ferr := decodeInto[fieldsPayload](r.Data)
			if ferr != nil {
				p.log.Warnw("metafields: malformed metaobject record, skipping", "naturalKey", r.NaturalKey, "error", ferr)
				continue
			}
			id, ok := p.idx.Metaobject(r.NaturalKey)
			collect(r.NaturalKey, id, ok, payload.Fields)
		}
	}
	return nil
}

func (p *Pipeline) collectShopMetafields(ctx context.Context, collect collectFn) error {
	path := filepath.Join(p.Dir, "shop-metafields.jsonl")
	recs, err := jsonl.DecodeAll[record.Record](path, func(int, string, error) error { return nil })
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return fmt.Errorf("apply: metafields: read shop-metafields.jsonl: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}
	shopID, err := p.shopID(ctx)
	if err != nil {
		return err
	}
	for _, r := range recs {
		payload, derr := decodeInto[singleFieldPayload](r.Data)
		if derr != nil {
			p.log.Warnw("metafields: malformed shop metafield record, skipping", "naturalKey", r.NaturalKey, "error", derr)
			continue
		}
		collect(r.NaturalKey, shopID, true, []record.Field{payload.Field})
	}
	return nil
}
