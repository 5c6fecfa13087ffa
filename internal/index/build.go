package index

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"duplicator/internal/gql"
	"duplicator/internal/logging"
	"duplicator/internal/naturalkey"
)

// Builder constructs a fresh Index against one tenant (the destination, in
// normal operation) by issuing one paginated query per map, fanned out
// across a bounded worker count (§4.3, §5).
type Builder struct {
	client          *gql.Client
	workerCount     int
	log             *zap.SugaredLogger
	metaobjectTypes []string
}

// SetMetaobjectTypes records the metaobject types discovered by the
// definitions pass (the bulk API's filter surface requires querying
// metaobjects one type at a time, per §4.5).
func (b *Builder) SetMetaobjectTypes(types []string) {
	b.metaobjectTypes = types
}

// NewBuilder returns a Builder. workerCount bounds how many of the builder
// queries run concurrently; it does not bound pagination depth within a
// single query (those run sequentially by necessity — cursor N+1 requires
// cursor N's response).
func NewBuilder(client *gql.Client, workerCount int) *Builder {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Builder{client: client, workerCount: workerCount, log: logging.Get(logging.CategoryIndex)}
}

// Build runs every per-entity builder concurrently (bounded by
// workerCount) and returns the assembled Index. A single entity family's
// failure aborts the whole build — an incomplete index would silently
// misresolve references for every later phase.
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	idx := New()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workerCount)

	builders := []func(context.Context, *Index) error{
		b.buildProductsAndVariants,
		b.buildCollections,
		b.buildPages,
		b.buildBlogsAndArticles,
		b.buildMetaobjects,
		b.buildPublications,
		b.buildMarkets,
	}
	for _, fn := range builders {
		fn := fn
		g.Go(func() error { return fn(ctx, idx) })
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("index: build: %w", err)
	}
	b.log.Infow("destination index built", "counts", idx.Snapshot())
	return idx, nil
}

const productsWithVariantsQuery = `
query DestProducts($after: String) {
  products(first: 100, after: $after) {
    nodes {
      id
      handle
      variants(first: 100) {
        nodes { id sku position }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

type productNode struct {
	ID       string `json:"id"`
	Handle   string `json:"handle"`
	Variants struct {
		Nodes []struct {
			ID       string `json:"id"`
			SKU      string `json:"sku"`
			Position int    `json:"position"`
		} `json:"nodes"`
	} `json:"variants"`
}

func (b *Builder) buildProductsAndVariants(ctx context.Context, idx *Index) error {
	extract := func(data json.RawMessage) (gql.Page, error) {
		var parsed struct {
			Products struct {
				Nodes    json.RawMessage `json:"nodes"`
				PageInfo gql.PageInfo    `json:"pageInfo"`
			} `json:"products"`
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return gql.Page{}, err
		}
		return gql.Page{Nodes: parsed.Products.Nodes, PageInfo: parsed.Products.PageInfo}, nil
	}

	return b.client.Paginate(ctx, productsWithVariantsQuery, nil, extract, func(p gql.Page) error {
		var nodes []productNode
		if err := json.Unmarshal(p.Nodes, &nodes); err != nil {
			return err
		}
		for _, n := range nodes {
			idx.AddProduct(n.Handle, n.ID)
			for _, v := range n.Variants.Nodes {
				skuKey, posKey := naturalkey.VariantKeys(n.Handle, v.SKU, v.Position)
				idx.AddVariant(skuKey, posKey, v.ID)
			}
			if len(n.Variants.Nodes) >= 100 {
				b.log.Warnw("product exceeds 100 mapped variants; excess variants are unmapped", "handle", n.Handle)
			}
		}
		return nil
	})
}

const collectionsQuery = `
query DestCollections($after: String) {
  collections(first: 100, after: $after) {
    nodes { id handle }
    pageInfo { hasNextPage endCursor }
  }
}`

func (b *Builder) buildCollections(ctx context.Context, idx *Index) error {
	return paginateHandles(ctx, b.client, collectionsQuery, "collections", idx.AddCollection)
}

const pagesQuery = `
query DestPages($after: String) {
  pages(first: 100, after: $after) {
    nodes { id handle }
    pageInfo { hasNextPage endCursor }
  }
}`

func (b *Builder) buildPages(ctx context.Context, idx *Index) error {
	return paginateHandles(ctx, b.client, pagesQuery, "pages", idx.AddPage)
}

const blogsWithArticlesQuery = `
query DestBlogs($after: String) {
  blogs(first: 50, after: $after) {
    nodes {
      id
      handle
      articles(first: 250) {
        nodes { id handle }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

type blogNode struct {
	ID       string `json:"id"`
	Handle   string `json:"handle"`
	Articles struct {
		Nodes []struct {
			ID     string `json:"id"`
			Handle string `json:"handle"`
		} `json:"nodes"`
	} `json:"articles"`
}

func (b *Builder) buildBlogsAndArticles(ctx context.Context, idx *Index) error {
	extract := func(data json.RawMessage) (gql.Page, error) {
		var parsed struct {
			Blogs struct {
				Nodes    json.RawMessage `json:"nodes"`
				PageInfo gql.PageInfo    `json:"pageInfo"`
			} `json:"blogs"`
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return gql.Page{}, err
		}
		return gql.Page{Nodes: parsed.Blogs.Nodes, PageInfo: parsed.Blogs.PageInfo}, nil
	}

	return b.client.Paginate(ctx, blogsWithArticlesQuery, nil, extract, func(p gql.Page) error {
		var nodes []blogNode
		if err := json.Unmarshal(p.Nodes, &nodes); err != nil {
			return err
		}
		for _, n := range nodes {
			idx.AddBlog(n.Handle, n.ID)
			for _, a := range n.Articles.Nodes {
				idx.AddArticle(naturalkey.Article(n.Handle, a.Handle), a.ID)
			}
		}
		return nil
	})
}

const metaobjectsQuery = `
query DestMetaobjects($type: String!, $after: String) {
  metaobjects(type: $type, first: 100, after: $after) {
    nodes { id handle }
    pageInfo { hasNextPage endCursor }
  }
}`

// buildMetaobjects requires the set of metaobject types known to this
// tenant; the apply pipeline supplies that set via SetMetaobjectTypes
// before calling Build. If none are set (e.g. a first-ever dump), this is
// a no-op — there is nothing to index yet.
func (b *Builder) buildMetaobjects(ctx context.Context, idx *Index) error {
	for _, typ := range b.metaobjectTypes {
		typ := typ
		extract := func(data json.RawMessage) (gql.Page, error) {
			var parsed struct {
				Metaobjects struct {
					Nodes    json.RawMessage `json:"nodes"`
					PageInfo gql.PageInfo    `json:"pageInfo"`
				} `json:"metaobjects"`
			}
			if err := json.Unmarshal(data, &parsed); err != nil {
				return gql.Page{}, err
			}
			return gql.Page{Nodes: parsed.Metaobjects.Nodes, PageInfo: parsed.Metaobjects.PageInfo}, nil
		}
		err := b.client.Paginate(ctx, metaobjectsQuery, map[string]any{"type": typ}, extract, func(p gql.Page) error {
			var nodes []struct {
				ID     string `json:"id"`
				Handle string `json:"handle"`
			}
			if err := json.Unmarshal(p.Nodes, &nodes); err != nil {
				return err
			}
			for _, n := range nodes {
				idx.AddMetaobject(naturalkey.Metaobject(typ, n.Handle), n.ID)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("index: metaobjects(%s): %w", typ, err)
		}
	}
	return nil
}

const publicationsQuery = `
query DestPublications {
  publications(first: 25) {
    nodes { id name }
  }
}`

func (b *Builder) buildPublications(ctx context.Context, idx *Index) error {
	data, err := b.client.Do(ctx, publicationsQuery, nil)
	if err != nil {
		return fmt.Errorf("index: publications: %w", err)
	}
	var parsed struct {
		Publications struct {
			Nodes []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"nodes"`
		} `json:"publications"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("index: publications: decode: %w", err)
	}
	for _, n := range parsed.Publications.Nodes {
		idx.AddPublication(n.Name, n.ID)
	}
	return nil
}

const marketsQuery = `
query DestMarkets($after: String) {
  markets(first: 100, after: $after) {
    nodes { id handle }
    pageInfo { hasNextPage endCursor }
  }
}`

func (b *Builder) buildMarkets(ctx context.Context, idx *Index) error {
	return paginateHandles(ctx, b.client, marketsQuery, "markets", idx.AddMarket)
}

// paginateHandles is shared by the several builders whose shape is just
// "nodes { id handle }" under one top-level connection field.
func paginateHandles(ctx context.Context, client *gql.Client, query, field string, add func(handle, id string)) error {
	extract := func(data json.RawMessage) (gql.Page, error) {
		var parsed map[string]struct {
			Nodes    json.RawMessage `json:"nodes"`
			PageInfo gql.PageInfo    `json:"pageInfo"`
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return gql.Page{}, err
		}
		conn := parsed[field]
		return gql.Page{Nodes: conn.Nodes, PageInfo: conn.PageInfo}, nil
	}
	return client.Paginate(ctx, query, nil, extract, func(p gql.Page) error {
		var nodes []struct {
			ID     string `json:"id"`
			Handle string `json:"handle"`
		}
		if err := json.Unmarshal(p.Nodes, &nodes); err != nil {
			return err
		}
		for _, n := range nodes {
			add(n.Handle, n.ID)
		}
		return nil
	})
}
