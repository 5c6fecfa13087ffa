package dump

import (
	"context"

	"duplicator/internal/record"
)

const shopMetafieldsBulkQuery = `
{
  shop {
    id
    metafields {
      edges {
        node {
          key namespace type value
          reference {
            __typename
            ... on Product { handle }
            ... on Collection { handle }
            ... on Metaobject { type handle }
          }
        }
      }
    }
  }
}`

// ShopMetafields dumps the shop singleton's metafields to
// shop-metafields.jsonl — one record per metafield, since the shop itself
// has no natural key of its own.
func (s *Session) ShopMetafields(ctx context.Context) (Stats, error) {
	nodes, err := s.runBulkQuery(ctx, shopMetafieldsBulkQuery)
	if err != nil {
		return Stats{}, err
	}
	if len(nodes) == 0 {
		return s.writeJSONL("shop-metafields.jsonl", nil)
	}

	shop := nodes[0]
	fields, ferr := collectFields(shop.Children)
	if ferr != nil {
		return Stats{}, ferr
	}

	var out []any
	for _, f := range fields {
		data, derr := toDataMap(map[string]any{"field": f})
		if derr != nil {
			return Stats{}, derr
		}
		out = append(out, record.Record{
			NaturalKey: "Shop:" + f.Key,
			SourceID:   shop.ID,
			Data:       data,
		})
	}
	return s.writeJSONL("shop-metafields.jsonl", out)
}
