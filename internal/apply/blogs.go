package apply

import (
	"context"
	"encoding/json"
	"fmt"

	"duplicator/internal/jsonl"
	"duplicator/internal/record"
)

type blogApplyPayload struct {
	Title string `json:"title"`
}

const blogCreateMutation = `
mutation BlogCreate($input: BlogInput!) {
  blogCreate(input: $input) {
    blog { id }
    userErrors { field message }
  }
}`

const blogUpdateMutation = `
mutation BlogUpdate($input: BlogInput!) {
  blogUpdate(input: $input) {
    blog { id }
    userErrors { field message }
  }
}`

// applyBlogs implements phase 5: upsert every blog by handle. Created ids
// are registered into the index directly, so phase 6 (articles, which runs
// right after with no rebuild in between) can resolve each article's parent
// blog by handle.
func (p *Pipeline) applyBlogs(ctx context.Context) (Stats, error) {
	recs, err := jsonl.DecodeAll[record.Record](p.path("blogs.jsonl"), func(int, string, error) error { return nil })
	if err != nil {
		if isNotExist(err) {
			return Stats{Phase: "blogs"}, nil
		}
		return Stats{}, fmt.Errorf("apply: blogs: read: %w", err)
	}

	stats := runPool(ctx, recs, p.workers(), func(ctx context.Context, r record.Record) Stats {
		return p.applyOneBlog(ctx, r)
	})
	stats.Phase = "blogs"
	return stats, nil
}

func (p *Pipeline) applyOneBlog(ctx context.Context, r record.Record) Stats {
	var stats Stats
	stats.Total = 1

	payload, err := decodeInto[blogApplyPayload](r.Data)
	if err != nil {
		stats.recordError(fmt.Errorf("blog %s: decode: %w", r.NaturalKey, err))
		return stats
	}

	input := map[string]any{"title": payload.Title, "handle": r.NaturalKey}

	if existingID, exists := p.idx.Blog(r.NaturalKey); exists {
		input["id"] = existingID
		if _, err := p.doBlogMutation(ctx, blogUpdateMutation, "blogUpdate", input); err != nil {
			stats.recordError(fmt.Errorf("blog %s: update: %w", r.NaturalKey, err))
			return stats
		}
		stats.Updated++
		return stats
	}

	id, err := p.doBlogMutation(ctx, blogCreateMutation, "blogCreate", input)
	if err != nil {
		stats.recordError(fmt.Errorf("blog %s: create: %w", r.NaturalKey, err))
		return stats
	}
	p.idx.AddBlog(r.NaturalKey, id)
	stats.Created++
	return stats
}

func (p *Pipeline) doBlogMutation(ctx context.Context, mutation, field string, input map[string]any) (string, error) {
	data, err := p.Dest.Do(ctx, mutation, map[string]any{"input": input})
	if err != nil {
		return "", err
	}
	var parsed map[string]struct {
		Blog *struct {
			ID string `json:"id"`
		} `json:"blog"`
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
	if result.Blog == nil {
		return "", fmt.Errorf("no blog returned")
	}
	return result.Blog.ID, nil
}
