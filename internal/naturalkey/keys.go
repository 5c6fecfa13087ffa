package naturalkey

import (
	"fmt"
	"strings"
)

// A natural key is a stable, tenant-portable identifier string for one of the entity
// families in the data model (§3.1 of the spec). It is always built through
// one of the constructors below so the composite-key format stays in one
// place.

// Product returns the natural key for a product: its handle.
func Product(handle string) string {
	return handle
}

// Collection returns the natural key for a collection: its handle.
func Collection(handle string) string {
	return handle
}

// Page returns the natural key for a page: its handle.
func Page(handle string) string {
	return handle
}

// Blog returns the natural key for a blog: its handle.
func Blog(handle string) string {
	return handle
}

// Article returns the composite natural key for an article.
func Article(blogHandle, articleHandle string) string {
	return blogHandle + ":" + articleHandle
}

// SplitArticle reverses Article, recovering the blog and article handles
// from a composite article natural key.
func SplitArticle(key string) (blogHandle, articleHandle string, ok bool) {
	return SplitComposite(key)
}

// Metaobject returns the composite natural key for a metaobject instance.
func Metaobject(typ, handle string) string {
	return typ + ":" + handle
}

// SplitMetaobject reverses Metaobject, recovering the type and handle from
// a composite metaobject natural key.
func SplitMetaobject(key string) (typ, handle string, ok bool) {
	return SplitComposite(key)
}

// SplitComposite splits any two-part "a:b" composite key built by this
// package back into its two components.
func SplitComposite(key string) (first, second string, ok bool) {
	return strings.Cut(key, ":")
}

// Market returns the natural key for a market: its handle.
func Market(handle string) string {
	return handle
}

// Menu returns the natural key for a menu: its handle.
func Menu(handle string) string {
	return handle
}

// Redirect returns the natural key for a redirect rule: its path.
func Redirect(path string) string {
	return path
}

// File returns the natural key for a file library entry: its filename.
func File(filename string) string {
	return filename
}

// MetafieldDefinition returns the composite key for a metafield definition.
func MetafieldDefinition(ownerType, namespace, key string) string {
	return ownerType + ":" + namespace + ":" + key
}

// Metafield returns the composite key for a metafield instance attached to
// some owner entity (identified by the owner's own natural key).
func Metafield(ownerNaturalKey, namespace, key string) string {
	return ownerNaturalKey + ":" + namespace + ":" + key
}

// VariantBySKU returns the variant key when a non-empty SKU is available.
// This key wins on collision with VariantByPosition per §4.3.
func VariantBySKU(productHandle, sku string) string {
	return fmt.Sprintf("%s:%s", productHandle, sku)
}

// VariantByPosition returns the fallback variant key used when a variant has
// no SKU.
func VariantByPosition(productHandle string, position int) string {
	return fmt.Sprintf("%s:pos%d", productHandle, position)
}

// VariantKeys returns both candidate keys for a variant — the SKU-based key
// (if sku is non-empty) and the position-based fallback — in the order a
// caller should try them (SKU wins on collision, §4.3).
func VariantKeys(productHandle, sku string, position int) (skuKey, posKey string) {
	posKey = VariantByPosition(productHandle, position)
	if sku == "" {
		return "", posKey
	}
	return VariantBySKU(productHandle, sku), posKey
}
