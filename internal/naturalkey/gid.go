// Package naturalkey implements the portable, tenant-independent keys that
// stand in for opaque platform identifiers (GIDs) when an entity crosses
// from one tenant to another, and the parsing needed to recover an
// identifier's entity type from its GID prefix.
package naturalkey

import "strings"

// GIDKind is the entity type recoverable from an opaque identifier's prefix,
// e.g. "Product" from "gid://shopify/Product/123".
type GIDKind string

const (
	KindProduct           GIDKind = "Product"
	KindProductVariant    GIDKind = "ProductVariant"
	KindCollection        GIDKind = "Collection"
	KindPage              GIDKind = "Page"
	KindBlog              GIDKind = "Blog"
	KindArticle           GIDKind = "Article"
	KindMetaobject        GIDKind = "Metaobject"
	KindMediaImage        GIDKind = "MediaImage"
	KindGenericFile       GIDKind = "GenericFile"
	KindVideo             GIDKind = "Video"
	KindTaxonomyValue     GIDKind = "TaxonomyValue"
	KindUnknown           GIDKind = ""
)

// remappableKinds are the entity kinds this tool can resolve cross-tenant by
// natural key. Everything else (notably platform taxonomy values) is passed
// through raw per invariant 1.
var remappableKinds = map[GIDKind]bool{
	KindProduct:        true,
	KindProductVariant: true,
	KindCollection:     true,
	KindPage:           true,
	KindBlog:           true,
	KindArticle:        true,
	KindMetaobject:     true,
	KindMediaImage:     true,
	KindGenericFile:    true,
	KindVideo:          true,
}

// ParseGID recovers the entity kind from an opaque identifier of the form
// "gid://shopify/<Kind>/<numeric-id>". Returns KindUnknown if the value
// doesn't look like a GID at all (e.g. already a natural key, or empty).
func ParseGID(gid string) GIDKind {
	const prefix = "gid://"
	if !strings.HasPrefix(gid, prefix) {
		return KindUnknown
	}
	rest := gid[len(prefix):]
	segments := strings.Split(rest, "/")
	// segments: ["shopify", "<Kind>", "<id>"] (possibly with query suffix on id)
	if len(segments) < 2 {
		return KindUnknown
	}
	kind := segments[1]
	if strings.Contains(kind, "TaxonomyValue") {
		return KindTaxonomyValue
	}
	return GIDKind(kind)
}

// IsRemappable reports whether a GID kind is one this tool can rewrite via
// natural key. Taxonomy values and anything unrecognized are not.
func IsRemappable(kind GIDKind) bool {
	return remappableKinds[kind]
}

// IsRemappableGID is a convenience wrapper combining ParseGID and IsRemappable.
func IsRemappableGID(gid string) bool {
	return IsRemappable(ParseGID(gid))
}
