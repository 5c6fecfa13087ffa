// Package dump implements the Dump Writers (§4.5): one writer per
// exportable entity family, each consuming the Bulk Runtime's reconstructed
// record sequence and appending transformed records to the entity's JSONL
// (or, for shop-wide singletons, JSON) file.
package dump

import (
	"encoding/json"
	"fmt"

	"duplicator/internal/bulk"
	"duplicator/internal/naturalkey"
	"duplicator/internal/record"
	"duplicator/internal/rewrite"
)

// referencedNodeHint is the shape a dump query's inline "reference"
// sub-selection takes for a single-reference typed field: whatever
// natural-key-bearing attributes the referenced node's __typename exposes.
// Only the fields relevant to that typename will be present.
type referencedNodeHint struct {
	Typename      string `json:"__typename"`
	Handle        string `json:"handle"`
	BlogHandle    string `json:"blogHandle"`
	ArticleHandle string `json:"articleHandle"`
	Type          string `json:"type"`
	ProductHandle string `json:"productHandle"`
	SKU           string `json:"sku"`
	Position      int    `json:"position"`
	Filename      string `json:"filename"`
}

func gidKindForTypename(typename string) naturalkey.GIDKind {
	switch typename {
	case "Product":
		return naturalkey.KindProduct
	case "ProductVariant":
		return naturalkey.KindProductVariant
	case "Collection":
		return naturalkey.KindCollection
	case "Page":
		return naturalkey.KindPage
	case "Blog":
		return naturalkey.KindBlog
	case "Article":
		return naturalkey.KindArticle
	case "Metaobject":
		return naturalkey.KindMetaobject
	case "MediaImage":
		return naturalkey.KindMediaImage
	case "GenericFile":
		return naturalkey.KindGenericFile
	case "Video":
		return naturalkey.KindVideo
	default:
		return naturalkey.KindUnknown
	}
}

func (h referencedNodeHint) toResolvedNode() rewrite.ResolvedNode {
	kind := gidKindForTypename(h.Typename)
	fields := make(map[string]any)
	switch kind {
	case naturalkey.KindProduct, naturalkey.KindCollection, naturalkey.KindPage, naturalkey.KindBlog:
		fields["handle"] = h.Handle
	case naturalkey.KindArticle:
		fields["blogHandle"] = h.BlogHandle
		fields["articleHandle"] = h.ArticleHandle
	case naturalkey.KindMetaobject:
		fields["type"] = h.Type
		fields["handle"] = h.Handle
	case naturalkey.KindProductVariant:
		fields["productHandle"] = h.ProductHandle
		if h.SKU != "" {
			fields["sku"] = h.SKU
		}
		fields["position"] = h.Position
	case naturalkey.KindMediaImage, naturalkey.KindGenericFile, naturalkey.KindVideo:
		fields["filename"] = h.Filename
	}
	return rewrite.ResolvedNode{Kind: kind, Fields: fields}
}

// transformField converts one flattened metafield/typed-field child node
// (as reconstructed by the Bulk Runtime) into a record.Field, applying the
// single-reference portion of the rewriter inline.
func transformField(child *bulk.Node) (record.Field, error) {
	f := record.Field{}

	if raw, ok := child.Fields["key"]; ok {
		if err := json.Unmarshal(raw, &f.Key); err != nil {
			return f, fmt.Errorf("dump: decode field key: %w", err)
		}
	}
	if raw, ok := child.Fields["namespace"]; ok {
		if err := json.Unmarshal(raw, &f.Namespace); err != nil {
			return f, fmt.Errorf("dump: decode field namespace: %w", err)
		}
	}
	if raw, ok := child.Fields["type"]; ok {
		if err := json.Unmarshal(raw, &f.Type); err != nil {
			return f, fmt.Errorf("dump: decode field type: %w", err)
		}
	}
	if raw, ok := child.Fields["value"]; ok {
		if err := json.Unmarshal(raw, &f.Value); err != nil {
			return f, fmt.Errorf("dump: decode field value: %w", err)
		}
	}

	if !rewrite.IsReferenceType(f.Type) || rewrite.IsListReferenceType(f.Type) {
		return f, nil
	}

	raw, ok := child.Fields["reference"]
	if !ok {
		return f, nil
	}
	var hint referencedNodeHint
	if err := json.Unmarshal(raw, &hint); err != nil || hint.Typename == "" {
		return f, nil
	}
	if delta, ok := rewrite.AnnotateSingle(hint.toResolvedNode()); ok {
		rewrite.MergeAnnotation(&f, delta)
	}
	return f, nil
}

// collectFields runs transformField over every child of kind "metafield"-
// shaped connection entries (the dump writers pass the relevant children
// slice directly; a node's children mix variants/metafields/etc., so the
// caller filters by whatever discriminates them in its own query shape).
func collectFields(children []*bulk.Node) ([]record.Field, error) {
	fields := make([]record.Field, 0, len(children))
	for _, c := range children {
		f, err := transformField(c)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func stringField(n *bulk.Node, key string) string {
	raw, ok := n.Fields[key]
	if !ok {
		return ""
	}
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}

func intField(n *bulk.Node, key string) int {
	raw, ok := n.Fields[key]
	if !ok {
		return 0
	}
	var i int
	_ = json.Unmarshal(raw, &i)
	return i
}
