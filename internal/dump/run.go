package dump

import (
	"context"
	"fmt"
)

// Result summarizes one complete dump run.
type Result struct {
	Stats          []Stats
	MetaobjectTypes []string
}

// Run executes every dump writer in a fixed order: definitions, the
// shop-wide singletons, files, products, collections, pages,
// blogs/articles, shop metafields, and metaobjects (one bulk query per
// discovered type). It does not run the enrichment pass — callers
// invoke internal/enrich separately once every writer has finished, since
// enrichment needs every dump file to exist before it can build the
// opaque-id -> natural-key maps it consults.
func (s *Session) Run(ctx context.Context) (Result, error) {
	var result Result

	if err := s.Definitions(ctx); err != nil {
		return result, err
	}

	for _, filename := range []string{"menus.json", "redirects.json", "policies.json", "discounts.json", "markets.json"} {
		if err := s.Singleton(ctx, filename); err != nil {
			return result, fmt.Errorf("dump: singleton %s: %w", filename, err)
		}
	}

	filesStats, err := s.Files(ctx)
	if err != nil {
		return result, err
	}
	result.Stats = append(result.Stats, filesStats)

	productStats, err := s.Products(ctx)
	if err != nil {
		return result, err
	}
	result.Stats = append(result.Stats, productStats)

	collectionStats, err := s.Collections(ctx)
	if err != nil {
		return result, err
	}
	result.Stats = append(result.Stats, collectionStats)

	pageStats, err := s.Pages(ctx)
	if err != nil {
		return result, err
	}
	result.Stats = append(result.Stats, pageStats)

	blogStats, articleStats, err := s.Blogs(ctx)
	if err != nil {
		return result, err
	}
	result.Stats = append(result.Stats, blogStats, articleStats)

	shopMetafieldStats, err := s.ShopMetafields(ctx)
	if err != nil {
		return result, err
	}
	result.Stats = append(result.Stats, shopMetafieldStats)

	types, err := s.DiscoverMetaobjectTypes(ctx)
	if err != nil {
		return result, err
	}
	result.MetaobjectTypes = types
	for _, typ := range types {
		st, err := s.Metaobjects(ctx, typ)
		if err != nil {
			return result, err
		}
		result.Stats = append(result.Stats, st)
	}

	return result, nil
}
