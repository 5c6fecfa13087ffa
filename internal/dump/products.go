package dump

import (
	"context"
	"encoding/json"

	"duplicator/internal/bulk"
	"duplicator/internal/naturalkey"
	"duplicator/internal/record"
)

const productsBulkQuery = `
{
  products {
    edges {
      node {
        id
        handle
        title
        publishedStatus: publishedAt
        status
        resourcePublicationsV2(onlyPublished: true, first: 25) {
          edges {
            node {
              publication { name }
            }
          }
        }
        variants {
          edges {
            node {
              id
              sku
              position
              metafields {
                edges {
                  node {
                    key
                    namespace
                    type
                    value
                    reference {
                      __typename
                      ... on Product { handle }
                      ... on Collection { handle }
                    }
                  }
                }
              }
            }
          }
        }
        metafields {
          edges {
            node {
              key
              namespace
              type
              value
              reference {
                __typename
                ... on Product { handle }
                ... on Collection { handle }
                ... on Page { handle }
                ... on Blog { handle }
                ... on Article { blogHandle: blog { handle } articleHandle: handle }
                ... on Metaobject { type handle }
              }
            }
          }
        }
      }
    }
  }
}`

// Products dumps every product (with variants and metafields) to
// products.jsonl.
func (s *Session) Products(ctx context.Context) (Stats, error) {
	nodes, err := s.runBulkQuery(ctx, productsBulkQuery)
	if err != nil {
		return Stats{}, err
	}

	var out []any
	for _, n := range nodes {
		rec, err := transformProduct(n)
		if err != nil {
			s.log.Warnw("skipping malformed product node", "error", err)
			continue
		}
		out = append(out, rec)
	}
	return s.writeJSONL("products.jsonl", out)
}

type productData struct {
	Title             string         `json:"title"`
	PublishableStatus string         `json:"publishableStatus,omitempty"`
	Publications      []string       `json:"publications,omitempty"`
	Metafields        []record.Field `json:"metafields,omitempty"`
	Variants          []variantData  `json:"variants,omitempty"`
}

type variantData struct {
	NaturalKey string         `json:"naturalKey"`
	SourceID   string         `json:"sourceId,omitempty"`
	SKU        string         `json:"sku,omitempty"`
	Position   int            `json:"position"`
	Metafields []record.Field `json:"metafields,omitempty"`
}

// publicationName extracts the channel name from one resourcePublicationsV2
// edge child, or "" if c is not such a child (the normal case: most of a
// product node's children are metafields or variants).
func publicationName(c *bulk.Node) string {
	raw, ok := c.Fields["publication"]
	if !ok {
		return ""
	}
	var pub struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &pub); err != nil {
		return ""
	}
	return pub.Name
}

func transformProduct(n *bulk.Node) (record.Record, error) {
	handle := stringField(n, "handle")
	title := stringField(n, "title")
	status := stringField(n, "status")

	var metafieldChildren, variantChildren []*bulk.Node
	var publications []string
	for _, c := range n.Children {
		if name := publicationName(c); name != "" {
			publications = append(publications, name)
			continue
		}
		switch naturalkey.ParseGID(c.ID) {
		case naturalkey.KindProductVariant:
			variantChildren = append(variantChildren, c)
		default:
			metafieldChildren = append(metafieldChildren, c)
		}
	}

	metafields, err := collectFields(metafieldChildren)
	if err != nil {
		return record.Record{}, err
	}

	var variants []variantData
	for _, vc := range variantChildren {
		sku := stringField(vc, "sku")
		position := intField(vc, "position")
		vMetafields, err := collectFields(vc.Children)
		if err != nil {
			return record.Record{}, err
		}
		skuKey, posKey := naturalkey.VariantKeys(handle, sku, position)
		key := posKey
		if skuKey != "" {
			key = skuKey
		}
		variants = append(variants, variantData{
			NaturalKey: key,
			SourceID:   vc.ID,
			SKU:        sku,
			Position:   position,
			Metafields: vMetafields,
		})
	}

	data, err := toDataMap(productData{
		Title:             title,
		PublishableStatus: status,
		Publications:      publications,
		Metafields:        metafields,
		Variants:          variants,
	})
	if err != nil {
		return record.Record{}, err
	}

	return record.Record{
		NaturalKey:        handle,
		SourceID:          n.ID,
		PublishableStatus: status,
		Data:              data,
	}, nil
}

// toDataMap round-trips v through JSON to get a map[string]any for
// Record.Data, keeping every writer's payload shape consistent on disk
// regardless of the Go struct used to build it.
func toDataMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
