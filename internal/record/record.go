// Package record defines the on-disk shape shared by every dump writer and
// consumed by the apply pipeline: a typed field/metafield envelope carrying
// its raw opaque value alongside the natural-key annotations the rewriter
// attaches on export and resolves on import.
package record

// Field is one typed field or metafield instance as it appears in a dump
// file. Annotation carries whatever reference keys the rewriter attached
// (refProduct, refCollection, refList, ...) and must only ever be merged
// into, never replaced wholesale — see rewrite.MergeAnnotation.
type Field struct {
	Key       string `json:"key"`
	Namespace string `json:"namespace,omitempty"`
	Type      string `json:"type"`
	Value     string `json:"value"`

	Annotation map[string]any `json:"-"`
}

// Record is a single dumped entity: an arbitrary field bag plus the fixed
// set of fields every writer fills in. Data is the JSON representation
// that round-trips to disk; typed child fields (metafields, typed fields)
// live under whatever key the owning writer chooses (e.g. "metafields",
// "fields").
type Record struct {
	// NaturalKey is the entity's portable key (handle, composite key, ...).
	NaturalKey string `json:"naturalKey"`

	// SourceID is the opaque identifier on the source tenant, retained only
	// as a debugging aid — never consulted by the apply pipeline.
	SourceID string `json:"sourceId,omitempty"`

	// PublishableStatus mirrors the source's publishable.status
	// (ACTIVE/DRAFT) so the apply pipeline can set it on upsert instead of
	// silently defaulting destination entries to DRAFT.
	PublishableStatus string `json:"publishableStatus,omitempty"`

	// Data holds the entity-specific payload (title, body, handle, nested
	// typed fields, ...). Each dump writer defines its own shape for this;
	// the envelope above is the only part every writer shares.
	Data map[string]any `json:"data"`
}

// ReferenceAnnotationKinds enumerates the sibling keys the Reference
// Rewriter may attach to a Field for single references.
var ReferenceAnnotationKinds = []string{
	"refProduct",
	"refCollection",
	"refPage",
	"refBlog",
	"refArticle",
	"refMetaobject",
	"refVariant",
	"refFile",
}

// ListReferenceAnnotationKind is the sibling key used for list-reference
// annotations injected by the enrichment pass.
const ListReferenceAnnotationKind = "refList"

// ListReferenceEntry is one element of a refList annotation array.
type ListReferenceEntry struct {
	Type string `json:"type"`
	// HandleFields holds whichever natural-key fields apply to Type, e.g.
	// {"handle": "..."} for a Collection or {"productHandle": "...", "sku":
	// "..."} for a ProductVariant. Kept generic since the field set varies
	// by referenced kind.
	HandleFields map[string]string `json:"handleFields"`
}
