package dump

import (
	"context"
	"encoding/json"
	"fmt"

	"duplicator/internal/bulk"
	"duplicator/internal/record"
	"duplicator/internal/rewrite"
)

const metaobjectDefinitionsQuery = `
query MetaobjectTypes {
  metaobjectDefinitions(first: 250) {
    nodes { type }
  }
}`

// DiscoverMetaobjectTypes queries the full set of metaobject types defined
// on the tenant, one paginated (non-bulk) query up front, since the bulk
// API's filter surface requires one bulk query per type (§4.5).
func (s *Session) DiscoverMetaobjectTypes(ctx context.Context) ([]string, error) {
	data, err := s.Client.Do(ctx, metaobjectDefinitionsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("dump: discover metaobject types: %w", err)
	}
	var parsed struct {
		MetaobjectDefinitions struct {
			Nodes []struct {
				Type string `json:"type"`
			} `json:"nodes"`
		} `json:"metaobjectDefinitions"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("dump: discover metaobject types: decode: %w", err)
	}
	types := make([]string, 0, len(parsed.MetaobjectDefinitions.Nodes))
	for _, n := range parsed.MetaobjectDefinitions.Nodes {
		types = append(types, n.Type)
	}
	return types, nil
}

func metaobjectsBulkQuery(metaobjectType string) string {
	return fmt.Sprintf(`
{
  metaobjects(type: %q) {
    edges {
      node {
        id
        handle
        type
        capabilities { publishable { status } }
        fields {
          key
          type
          value
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
}`, metaobjectType)
}

// metaobjectFieldJSON mirrors one entry of the inline (non-connection)
// "fields" list the Metaobject type exposes directly on its node.
type metaobjectFieldJSON struct {
	Key       string              `json:"key"`
	Type      string              `json:"type"`
	Value     string              `json:"value"`
	Reference *referencedNodeHint `json:"reference"`
}

// Metaobjects dumps every instance of metaobjectType to
// metaobjects-{type}.jsonl. Unlike metafields, a metaobject's "fields" is a
// plain inline list (not a paginated connection), so it decodes directly
// off the node rather than through the bulk runtime's child-buffering.
func (s *Session) Metaobjects(ctx context.Context, metaobjectType string) (Stats, error) {
	nodes, err := s.runBulkQuery(ctx, metaobjectsBulkQuery(metaobjectType))
	if err != nil {
		return Stats{}, err
	}

	var out []any
	for _, n := range nodes {
		handle := stringField(n, "handle")
		fields, ferr := transformInlineFields(n)
		if ferr != nil {
			s.log.Warnw("skipping malformed metaobject node", "type", metaobjectType, "error", ferr)
			continue
		}
		data, derr := toDataMap(map[string]any{"fields": fields})
		if derr != nil {
			return Stats{}, derr
		}
		out = append(out, record.Record{
			NaturalKey:        metaobjectType + ":" + handle,
			SourceID:          n.ID,
			PublishableStatus: metaobjectPublishableStatus(n),
			Data:              data,
		})
	}
	return s.writeJSONL(fmt.Sprintf("metaobjects-%s.jsonl", metaobjectType), out)
}

// metaobjectPublishableStatus extracts capabilities.publishable.status, or
// "" if the type has no publishable capability enabled.
func metaobjectPublishableStatus(n *bulk.Node) string {
	raw, ok := n.Fields["capabilities"]
	if !ok {
		return ""
	}
	var capabilities struct {
		Publishable *struct {
			Status string `json:"status"`
		} `json:"publishable"`
	}
	if err := json.Unmarshal(raw, &capabilities); err != nil || capabilities.Publishable == nil {
		return ""
	}
	return capabilities.Publishable.Status
}

// transformInlineFields decodes a metaobject node's inline "fields" list
// (a plain JSON array, not a bulk-reconstructed connection) into
// record.Field values, applying the single-reference rewriter inline.
func transformInlineFields(n *bulk.Node) ([]record.Field, error) {
	raw, ok := n.Fields["fields"]
	if !ok {
		return nil, nil
	}
	var jsonFields []metaobjectFieldJSON
	if err := json.Unmarshal(raw, &jsonFields); err != nil {
		return nil, fmt.Errorf("dump: decode metaobject fields: %w", err)
	}

	fields := make([]record.Field, 0, len(jsonFields))
	for _, jf := range jsonFields {
		f := record.Field{Key: jf.Key, Type: jf.Type, Value: jf.Value}
		if jf.Reference != nil && jf.Reference.Typename != "" && rewrite.IsReferenceType(f.Type) && !rewrite.IsListReferenceType(f.Type) {
			if delta, ok := rewrite.AnnotateSingle(jf.Reference.toResolvedNode()); ok {
				rewrite.MergeAnnotation(&f, delta)
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}
