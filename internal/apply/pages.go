package apply

import (
	"context"
	"encoding/json"
	"fmt"

	"duplicator/internal/jsonl"
	"duplicator/internal/record"
	"duplicator/internal/rewrite"
)

type pageApplyPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

const pageCreateMutation = `
mutation PageCreate($input: PageCreateInput!) {
  pageCreate(page: $input) {
    page { id }
    userErrors { code field message }
  }
}`

const pageUpdateMutation = `
mutation PageUpdate($id: ID!, $input: PageUpdateInput!) {
  pageUpdate(id: $id, page: $input) {
    page { id }
    userErrors { code field message }
  }
}`

// applyPages implements phase 7: upsert every page by handle.
func (p *Pipeline) applyPages(ctx context.Context, resolver *rewrite.Resolver) (Stats, error) {
	recs, err := jsonl.DecodeAll[record.Record](p.path("pages.jsonl"), func(int, string, error) error { return nil })
	if err != nil {
		if isNotExist(err) {
			return Stats{Phase: "pages"}, nil
		}
		return Stats{}, fmt.Errorf("apply: pages: read: %w", err)
	}

	stats := runPool(ctx, recs, p.workers(), func(ctx context.Context, r record.Record) Stats {
		return p.applyOnePage(ctx, r)
	})
	stats.Phase = "pages"
	return stats, nil
}

func (p *Pipeline) applyOnePage(ctx context.Context, r record.Record) Stats {
	var stats Stats
	stats.Total = 1

	payload, err := decodeInto[pageApplyPayload](r.Data)
	if err != nil {
		stats.recordError(fmt.Errorf("page %s: decode: %w", r.NaturalKey, err))
		return stats
	}

	if existingID, exists := p.idx.Page(r.NaturalKey); exists {
		input := map[string]any{"title": payload.Title, "body": payload.Body}
		if _, err := p.doPageMutation(ctx, pageUpdateMutation, "pageUpdate", map[string]any{
			"id":    existingID,
			"input": input,
		}); err != nil {
			stats.recordError(fmt.Errorf("page %s: update: %w", r.NaturalKey, err))
			return stats
		}
		stats.Updated++
		return stats
	}

	input := map[string]any{"title": payload.Title, "body": payload.Body, "handle": r.NaturalKey}
	id, err := p.doPageMutation(ctx, pageCreateMutation, "pageCreate", map[string]any{"input": input})
	if err != nil {
		stats.recordError(fmt.Errorf("page %s: create: %w", r.NaturalKey, err))
		return stats
	}
	p.idx.AddPage(r.NaturalKey, id)
	stats.Created++
	return stats
}

func (p *Pipeline) doPageMutation(ctx context.Context, mutation, field string, vars map[string]any) (string, error) {
	data, err := p.Dest.Do(ctx, mutation, vars)
	if err != nil {
		return "", err
	}
	var parsed map[string]struct {
		Page *struct {
			ID string `json:"id"`
		} `json:"page"`
		UserErrors []struct {
			Code    string   `json:"code"`
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
	if result.Page == nil {
		return "", fmt.Errorf("no page returned")
	}
	return result.Page.ID, nil
}
