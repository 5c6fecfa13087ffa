// Package index implements the Destination Index (§4.3): the bundle of
// in-memory natural-key -> destination-id maps consulted by the Reference
// Rewriter on import and rebuilt between apply phases.
package index

import "sync"

// FileEntry is the destination's record for one file-library entry.
type FileEntry struct {
	ID      string
	AltText string
}

// Index is a bundle of natural-key -> destination-id maps. It is monotonic
// within a phase (entries are only added, never mutated or removed, per
// §4.3's invariant) and is re-seeded wholesale between phases by
// discarding an old Index and building a fresh one.
//
// All reads and writes go through the exported methods, which take a single
// RWMutex: the index is written during build/rebuild and by phase workers
// registering the entities they create, and read by phase workers; one lock
// for the whole bundle is sufficient (§5).
type Index struct {
	mu sync.RWMutex

	products     map[string]string
	variants     map[string]string
	collections  map[string]string
	pages        map[string]string
	blogs        map[string]string
	articles     map[string]string
	metaobjects  map[string]string
	filesByURL   map[string]string
	filesByName  map[string]FileEntry
	publications map[string]string
	markets      map[string]string
}

// New returns an empty Index ready for building.
func New() *Index {
	return &Index{
		products:     make(map[string]string),
		variants:     make(map[string]string),
		collections:  make(map[string]string),
		pages:        make(map[string]string),
		blogs:        make(map[string]string),
		articles:     make(map[string]string),
		metaobjects:  make(map[string]string),
		filesByURL:   make(map[string]string),
		filesByName:  make(map[string]FileEntry),
		publications: make(map[string]string),
		markets:      make(map[string]string),
	}
}

func get(mu *sync.RWMutex, m map[string]string, key string) (string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	id, ok := m[key]
	return id, ok
}

func set(mu *sync.RWMutex, m map[string]string, key, id string) {
	mu.Lock()
	defer mu.Unlock()
	m[key] = id
}

func (i *Index) Product(handle string) (string, bool)    { return get(&i.mu, i.products, handle) }
func (i *Index) AddProduct(handle, id string)             { set(&i.mu, i.products, handle, id) }
func (i *Index) Collection(handle string) (string, bool)  { return get(&i.mu, i.collections, handle) }
func (i *Index) AddCollection(handle, id string)          { set(&i.mu, i.collections, handle, id) }
func (i *Index) Page(handle string) (string, bool)        { return get(&i.mu, i.pages, handle) }
func (i *Index) AddPage(handle, id string)                { set(&i.mu, i.pages, handle, id) }
func (i *Index) Blog(handle string) (string, bool)        { return get(&i.mu, i.blogs, handle) }
func (i *Index) AddBlog(handle, id string)                { set(&i.mu, i.blogs, handle, id) }
func (i *Index) Article(key string) (string, bool)        { return get(&i.mu, i.articles, key) }
func (i *Index) AddArticle(key, id string)                { set(&i.mu, i.articles, key, id) }
func (i *Index) Metaobject(key string) (string, bool)     { return get(&i.mu, i.metaobjects, key) }
func (i *Index) AddMetaobject(key, id string)             { set(&i.mu, i.metaobjects, key, id) }
func (i *Index) Publication(name string) (string, bool)   { return get(&i.mu, i.publications, name) }
func (i *Index) AddPublication(name, id string)           { set(&i.mu, i.publications, name, id) }

// AllPublications returns a snapshot copy of every known publication name ->
// destination-id pair, used by the apply pipeline's publication sync to
// unpublish an entity from every destination channel before republishing to
// the source's matching set (§4.6 "Batching").
func (i *Index) AllPublications() map[string]string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[string]string, len(i.publications))
	for k, v := range i.publications {
		out[k] = v
	}
	return out
}
func (i *Index) Market(handle string) (string, bool)      { return get(&i.mu, i.markets, handle) }
func (i *Index) AddMarket(handle, id string)              { set(&i.mu, i.markets, handle, id) }

// Variant looks up a variant by whichever key form the caller has: SKU key
// is tried first by convention at the call site (SKU wins on collision).
func (i *Index) Variant(key string) (string, bool) { return get(&i.mu, i.variants, key) }

// AddVariant registers both candidate keys for a variant. skuKey may be
// empty (no SKU); posKey is always present. If both are non-empty and
// would resolve to different entries, the SKU key is added last so a
// subsequent lookup against the SKU key always wins, per §4.3.
func (i *Index) AddVariant(skuKey, posKey, id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if posKey != "" {
		i.variants[posKey] = id
	}
	if skuKey != "" {
		i.variants[skuKey] = id
	}
}

// FileByURL resolves a file by its source CDN URL (used by the rewriter for
// file references carried over from the source dump).
func (i *Index) FileByURL(url string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	id, ok := i.filesByURL[url]
	return id, ok
}

// AddFileByURL records a source-url -> destination-id mapping, populated as
// the File Library Sync processes each source file.
func (i *Index) AddFileByURL(url, id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.filesByURL[url] = id
}

// FileByName resolves an existing destination file by filename, used for
// the pre-apply idempotency check in §4.7.
func (i *Index) FileByName(filename string) (FileEntry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.filesByName[filename]
	return e, ok
}

// AddFileByName records (or overwrites) the destination's current
// filename -> {id, altText} entry.
func (i *Index) AddFileByName(filename string, entry FileEntry) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.filesByName[filename] = entry
}

// Families returns a snapshot copy of the core natural-key -> destination-id
// maps, keyed by family name, for the read-only diff view (§"diffing
// commands... specified only as read-only views over the same index").
// Variants, files, publications, and markets are left out: diff compares
// the entity families a dump enumerates one natural key per record, and
// those four are either derived sub-keys or shop-wide singletons rather
// than independently dumped entity lists.
func (i *Index) Families() map[string]map[string]string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	snapshot := func(m map[string]string) map[string]string {
		out := make(map[string]string, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	return map[string]map[string]string{
		"products":    snapshot(i.products),
		"collections": snapshot(i.collections),
		"pages":       snapshot(i.pages),
		"blogs":       snapshot(i.blogs),
		"articles":    snapshot(i.articles),
		"metaobjects": snapshot(i.metaobjects),
	}
}

// Snapshot returns point-in-time counts of each map, for logging/stats.
func (i *Index) Snapshot() map[string]int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return map[string]int{
		"products":     len(i.products),
		"variants":     len(i.variants),
		"collections":  len(i.collections),
		"pages":        len(i.pages),
		"blogs":        len(i.blogs),
		"articles":     len(i.articles),
		"metaobjects":  len(i.metaobjects),
		"filesByURL":   len(i.filesByURL),
		"filesByName":  len(i.filesByName),
		"publications": len(i.publications),
		"markets":      len(i.markets),
	}
}
