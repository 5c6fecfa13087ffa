package apply

import (
	"context"
	"encoding/json"
	"fmt"

	"duplicator/internal/jsonl"
	"duplicator/internal/record"
	"duplicator/internal/rewrite"
)

type collectionApplyPayload struct {
	Title        string   `json:"title"`
	Publications []string `json:"publications,omitempty"`
}

const collectionCreateMutation = `
mutation CollectionCreate($input: CollectionInput!) {
  collectionCreate(input: $input) {
    collection { id }
    userErrors { field message }
  }
}`

const collectionUpdateMutation = `
mutation CollectionUpdate($input: CollectionInput!) {
  collectionUpdate(input: $input) {
    collection { id }
    userErrors { field message }
  }
}`

// applyCollections implements phase 4: upsert every collection by handle,
// then sync its sales-channel publications.
func (p *Pipeline) applyCollections(ctx context.Context, resolver *rewrite.Resolver) (Stats, error) {
	recs, err := jsonl.DecodeAll[record.Record](p.path("collections.jsonl"), func(int, string, error) error { return nil })
	if err != nil {
		if isNotExist(err) {
			return Stats{Phase: "collections"}, nil
		}
		return Stats{}, fmt.Errorf("apply: collections: read: %w", err)
	}

	stats := runPool(ctx, recs, p.workers(), func(ctx context.Context, r record.Record) Stats {
		return p.applyOneCollection(ctx, r)
	})
	stats.Phase = "collections"
	return stats, nil
}

func (p *Pipeline) applyOneCollection(ctx context.Context, r record.Record) Stats {
	var stats Stats
	stats.Total = 1

	payload, err := decodeInto[collectionApplyPayload](r.Data)
	if err != nil {
		stats.recordError(fmt.Errorf("collection %s: decode: %w", r.NaturalKey, err))
		return stats
	}

	input := map[string]any{"title": payload.Title, "handle": r.NaturalKey}

	existingID, exists := p.idx.Collection(r.NaturalKey)
	var collectionID string
	if exists {
		input["id"] = existingID
		id, err := p.doCollectionMutation(ctx, collectionUpdateMutation, "collectionUpdate", input)
		if err != nil {
			stats.recordError(fmt.Errorf("collection %s: update: %w", r.NaturalKey, err))
			return stats
		}
		collectionID = id
		stats.Updated++
	} else {
		id, err := p.doCollectionMutation(ctx, collectionCreateMutation, "collectionCreate", input)
		if err != nil {
			stats.recordError(fmt.Errorf("collection %s: create: %w", r.NaturalKey, err))
			return stats
		}
		collectionID = id
		p.idx.AddCollection(r.NaturalKey, collectionID)
		stats.Created++
	}

	if err := syncPublications(ctx, p.Dest, p.idx, collectionID, payload.Publications); err != nil {
		stats.recordError(fmt.Errorf("collection %s: publications: %w", r.NaturalKey, err))
	}

	return stats
}

func (p *Pipeline) doCollectionMutation(ctx context.Context, mutation, field string, input map[string]any) (string, error) {
	data, err := p.Dest.Do(ctx, mutation, map[string]any{"input": input})
	if err != nil {
		return "", err
	}
	var parsed map[string]struct {
		Collection *struct {
			ID string `json:"id"`
		} `json:"collection"`
		UserErrors []struct {
			Field   []string `json:"field"`
			Message string   `json:"message"`
		} `json:"userErrors"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	result, ok := parsed[field]
	if !ok {
		return "", fmt.Errorf("missing %q in response", field)
	}
	if len(result.UserErrors) > 0 {
		return "", fmt.Errorf("%s", result.UserErrors[0].Message)
	}
	if result.Collection == nil {
		return "", fmt.Errorf("no collection returned")
	}
	return result.Collection.ID, nil
}
