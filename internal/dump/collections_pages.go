package dump

import (
	"context"

	"duplicator/internal/bulk"
	"duplicator/internal/record"
)

const collectionsBulkQuery = `
{
  collections {
    edges {
      node {
        id
        handle
        title
        resourcePublicationsV2(onlyPublished: true, first: 25) {
          edges {
            node {
              publication { name }
            }
          }
        }
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
    }
  }
}`

// Collections dumps every collection to collections.jsonl.
func (s *Session) Collections(ctx context.Context) (Stats, error) {
	nodes, err := s.runBulkQuery(ctx, collectionsBulkQuery)
	if err != nil {
		return Stats{}, err
	}
	var out []any
	for _, n := range nodes {
		rec, err := transformCollection(n)
		if err != nil {
			s.log.Warnw("skipping malformed collection node", "error", err)
			continue
		}
		out = append(out, rec)
	}
	return s.writeJSONL("collections.jsonl", out)
}

// transformCollection is transformSimpleEntity plus the sales-channel
// publication set (§4.6 phase 4 "+ publications"), which collections carry
// but pages do not.
func transformCollection(n *bulk.Node) (record.Record, error) {
	handle := stringField(n, "handle")

	var metafieldChildren []*bulk.Node
	var publications []string
	for _, c := range n.Children {
		if name := publicationName(c); name != "" {
			publications = append(publications, name)
			continue
		}
		metafieldChildren = append(metafieldChildren, c)
	}

	metafields, err := collectFields(metafieldChildren)
	if err != nil {
		return record.Record{}, err
	}

	data, err := toDataMap(map[string]any{
		"title":        stringField(n, "title"),
		"publications": publications,
		"metafields":   metafields,
	})
	if err != nil {
		return record.Record{}, err
	}
	return record.Record{NaturalKey: handle, SourceID: n.ID, Data: data}, nil
}

const pagesBulkQuery = `
{
  pages {
    edges {
      node {
        id
        handle
        title
        body
        metafields {
          edges {
            node {
              key namespace type value
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
}`

// Pages dumps every page to pages.jsonl.
func (s *Session) Pages(ctx context.Context) (Stats, error) {
	nodes, err := s.runBulkQuery(ctx, pagesBulkQuery)
	if err != nil {
		return Stats{}, err
	}
	var out []any
	for _, n := range nodes {
		rec, err := transformSimpleEntity(n, "title", "body")
		if err != nil {
			s.log.Warnw("skipping malformed page node", "error", err)
			continue
		}
		out = append(out, rec)
	}
	return s.writeJSONL("pages.jsonl", out)
}

// transformSimpleEntity handles the common shape shared by collections and
// pages: a handle, a small set of scalar attributes, and a metafields
// connection whose children are the node's only children.
func transformSimpleEntity(n *bulk.Node, scalarKeys ...string) (record.Record, error) {
	handle := stringField(n, "handle")

	metafields, err := collectFields(n.Children)
	if err != nil {
		return record.Record{}, err
	}

	payload := map[string]any{"metafields": metafields}
	for _, k := range scalarKeys {
		payload[k] = stringField(n, k)
	}
	data, err := toDataMap(payload)
	if err != nil {
		return record.Record{}, err
	}

	return record.Record{NaturalKey: handle, SourceID: n.ID, Data: data}, nil
}
