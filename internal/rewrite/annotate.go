// Package rewrite implements the Reference Rewriter (§4.4): on export, it
// annotates typed fields whose type contains "reference" with a natural-key
// sibling; on import, it resolves those annotations back to fresh opaque
// ids via the Destination Index.
package rewrite

import (
	"strings"

	"duplicator/internal/naturalkey"
	"duplicator/internal/record"
)

// annotationKeyForKind maps a GID kind to the sibling annotation key the
// rewriter attaches, per §4.4's enumerated list.
func annotationKeyForKind(kind naturalkey.GIDKind) (string, bool) {
	switch kind {
	case naturalkey.KindProduct:
		return "refProduct", true
	case naturalkey.KindProductVariant:
		return "refVariant", true
	case naturalkey.KindCollection:
		return "refCollection", true
	case naturalkey.KindPage:
		return "refPage", true
	case naturalkey.KindBlog:
		return "refBlog", true
	case naturalkey.KindArticle:
		return "refArticle", true
	case naturalkey.KindMetaobject:
		return "refMetaobject", true
	case naturalkey.KindMediaImage, naturalkey.KindGenericFile, naturalkey.KindVideo:
		return "refFile", true
	default:
		return "", false
	}
}

// IsReferenceType reports whether a field's declared type name denotes a
// reference (single or list) per §3.3 invariant 1.
func IsReferenceType(fieldType string) bool {
	return strings.Contains(fieldType, "reference")
}

// IsListReferenceType reports whether a field's declared type is a list
// reference (e.g. "list.product_reference").
func IsListReferenceType(fieldType string) bool {
	return strings.HasPrefix(fieldType, "list.") && IsReferenceType(fieldType)
}

// ResolvedNode is whatever natural-key-bearing fields the source's GraphQL
// response resolved for one referenced child node, keyed by the shape the
// caller's query requested (e.g. {"handle": "awesome-tshirt"} for a
// Product, {"blogHandle": "news", "articleHandle": "launch"} for an
// Article).
type ResolvedNode struct {
	Kind   naturalkey.GIDKind
	Fields map[string]any
}

// AnnotateSingle returns the delta annotation to merge into a single
// reference field, given the server-resolved child node. It returns
// (nil, false) when the kind is not one this tool can remap (e.g. a
// platform taxonomy value) — per the critical correctness contract in
// §4.4, callers must merge this delta additively and never replace the
// field's key/type/value.
func AnnotateSingle(resolved ResolvedNode) (map[string]any, bool) {
	key, ok := annotationKeyForKind(resolved.Kind)
	if !ok {
		return nil, false
	}
	return map[string]any{key: resolved.Fields}, true
}

// MergeAnnotation applies a delta annotation (as returned by AnnotateSingle)
// into a Field's Annotation map without ever touching Key/Type/Value,
// satisfying the "set-not-overwrite" contract from §9.
func MergeAnnotation(f *record.Field, delta map[string]any) {
	if len(delta) == 0 {
		return
	}
	if f.Annotation == nil {
		f.Annotation = make(map[string]any, len(delta))
	}
	for k, v := range delta {
		if k == "key" || k == "type" || k == "value" {
			continue
		}
		f.Annotation[k] = v
	}
}

// BuildListReferenceAnnotation constructs the refList delta for a list
// reference field, given the resolved natural-key fields for each opaque
// id in original order (entries for unresolvable ids are simply omitted by
// the caller before this is invoked — see the enrichment pass).
func BuildListReferenceAnnotation(entries []record.ListReferenceEntry) map[string]any {
	if len(entries) == 0 {
		return nil
	}
	return map[string]any{record.ListReferenceAnnotationKind: entries}
}
