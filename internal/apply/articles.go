package apply

import (
	"context"
	"encoding/json"
	"fmt"

	"duplicator/internal/jsonl"
	"duplicator/internal/naturalkey"
	"duplicator/internal/record"
	"duplicator/internal/rewrite"
)

type articleApplyPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

const articleCreateMutation = `
mutation ArticleCreate($input: ArticleCreateInput!) {
  articleCreate(article: $input) {
    article { id }
    userErrors { field message }
  }
}`

const articleUpdateMutation = `
mutation ArticleUpdate($id: ID!, $input: ArticleUpdateInput!) {
  articleUpdate(id: $id, article: $input) {
    article { id }
    userErrors { field message }
  }
}`

// applyArticles implements phase 6: upsert every article, keyed by
// (blogHandle, articleHandle), under the blog phase 5 just created or
// updated.
func (p *Pipeline) applyArticles(ctx context.Context, resolver *rewrite.Resolver) (Stats, error) {
	recs, err := jsonl.DecodeAll[record.Record](p.path("articles.jsonl"), func(int, string, error) error { return nil })
	if err != nil {
		if isNotExist(err) {
			return Stats{Phase: "articles"}, nil
		}
		return Stats{}, fmt.Errorf("apply: articles: read: %w", err)
	}

	stats := runPool(ctx, recs, p.workers(), func(ctx context.Context, r record.Record) Stats {
		return p.applyOneArticle(ctx, r)
	})
	stats.Phase = "articles"
	return stats, nil
}

func (p *Pipeline) applyOneArticle(ctx context.Context, r record.Record) Stats {
	var stats Stats
	stats.Total = 1

	blogHandle, _, ok := naturalkey.SplitArticle(r.NaturalKey)
	if !ok {
		stats.recordError(fmt.Errorf("article %s: malformed natural key", r.NaturalKey))
		return stats
	}
	blogID, blogOK := p.idx.Blog(blogHandle)
	if !blogOK {
		stats.Skipped++
		p.log.Warnw("article: parent blog not found in destination index, skipping", "naturalKey", r.NaturalKey, "blogHandle", blogHandle)
		return stats
	}

	payload, err := decodeInto[articleApplyPayload](r.Data)
	if err != nil {
		stats.recordError(fmt.Errorf("article %s: decode: %w", r.NaturalKey, err))
		return stats
	}

	if existingID, exists := p.idx.Article(r.NaturalKey); exists {
		input := map[string]any{"title": payload.Title, "body": payload.Body}
		if _, err := p.doArticleMutation(ctx, articleUpdateMutation, "articleUpdate", map[string]any{
			"id":    existingID,
			"input": input,
		}); err != nil {
			stats.recordError(fmt.Errorf("article %s: update: %w", r.NaturalKey, err))
			return stats
		}
		stats.Updated++
		return stats
	}

	input := map[string]any{"blogId": blogID, "title": payload.Title, "body": payload.Body, "handle": ""}
	_, articleHandle, _ := naturalkey.SplitArticle(r.NaturalKey)
	input["handle"] = articleHandle

	id, err := p.doArticleMutation(ctx, articleCreateMutation, "articleCreate", map[string]any{"input": input})
	if err != nil {
		stats.recordError(fmt.Errorf("article %s: create: %w", r.NaturalKey, err))
		return stats
	}
	p.idx.AddArticle(r.NaturalKey, id)
	stats.Created++
	return stats
}

func (p *Pipeline) doArticleMutation(ctx context.Context, mutation, field string, vars map[string]any) (string, error) {
	data, err := p.Dest.Do(ctx, mutation, vars)
	if err != nil {
		return "", err
	}
	var parsed map[string]struct {
		Article *struct {
			ID string `json:"id"`
		} `json:"article"`
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
	if result.Article == nil {
		return "", fmt.Errorf("no article returned")
	}
	return result.Article.ID, nil
}
