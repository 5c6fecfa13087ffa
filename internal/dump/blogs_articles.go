package dump

import (
	"context"

	"duplicator/internal/bulk"
	"duplicator/internal/naturalkey"
	"duplicator/internal/record"
)

const blogsBulkQuery = `
{
  blogs {
    edges {
      node {
        id
        handle
        title
        metafields {
          edges { node { key namespace type value } }
        }
        articles {
          edges {
            node {
              id
              handle
              title
              body: contentHtml
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
      }
    }
  }
}`

// Blogs dumps every blog (metafields only) to blogs.jsonl and every
// article to articles.jsonl, keyed by the composite (blogHandle,
// articleHandle) natural key.
func (s *Session) Blogs(ctx context.Context) (blogStats, articleStats Stats, err error) {
	nodes, err := s.runBulkQuery(ctx, blogsBulkQuery)
	if err != nil {
		return Stats{}, Stats{}, err
	}

	var blogRecords, articleRecords []any
	for _, n := range nodes {
		blogHandle := stringField(n, "handle")

		var metafieldChildren, articleChildren []*bulk.Node
		for _, c := range n.Children {
			if naturalkey.ParseGID(c.ID) == naturalkey.KindArticle {
				articleChildren = append(articleChildren, c)
			} else {
				metafieldChildren = append(metafieldChildren, c)
			}
		}

		metafields, ferr := collectFields(metafieldChildren)
		if ferr != nil {
			s.log.Warnw("skipping malformed blog node", "error", ferr)
			continue
		}
		data, derr := toDataMap(map[string]any{
			"title":      stringField(n, "title"),
			"metafields": metafields,
		})
		if derr != nil {
			return Stats{}, Stats{}, derr
		}
		blogRecords = append(blogRecords, record.Record{NaturalKey: blogHandle, SourceID: n.ID, Data: data})

		for _, a := range articleChildren {
			articleHandle := stringField(a, "handle")
			aMetafields, aerr := collectFields(a.Children)
			if aerr != nil {
				s.log.Warnw("skipping malformed article node", "error", aerr)
				continue
			}
			aData, derr := toDataMap(map[string]any{
				"title":      stringField(a, "title"),
				"body":       stringField(a, "body"),
				"metafields": aMetafields,
			})
			if derr != nil {
				return Stats{}, Stats{}, derr
			}
			articleRecords = append(articleRecords, record.Record{
				NaturalKey: naturalkey.Article(blogHandle, articleHandle),
				SourceID:   a.ID,
				Data:       aData,
			})
		}
	}

	blogStats, err = s.writeJSONL("blogs.jsonl", blogRecords)
	if err != nil {
		return blogStats, Stats{}, err
	}
	articleStats, err = s.writeJSONL("articles.jsonl", articleRecords)
	return blogStats, articleStats, err
}
