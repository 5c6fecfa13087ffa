package dump

import (
	"context"
	"encoding/json"
	"fmt"

	"duplicator/internal/gql"
	"duplicator/internal/naturalkey"
	"duplicator/internal/record"
)

const filesQuery = `
query DumpFiles($after: String) {
  files(first: 100, after: $after) {
    nodes {
      id
      alt
      ... on MediaImage {
        image { url }
      }
      ... on GenericFile {
        url
      }
      ... on Video {
        sources { url }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

type fileNode struct {
	ID    string `json:"id"`
	Alt   string `json:"alt"`
	Image struct {
		URL string `json:"url"`
	} `json:"image"`
	URL     string `json:"url"`
	Sources []struct {
		URL string `json:"url"`
	} `json:"sources"`
}

func (n fileNode) contentURL() string {
	if n.Image.URL != "" {
		return n.Image.URL
	}
	if n.URL != "" {
		return n.URL
	}
	if len(n.Sources) > 0 {
		return n.Sources[0].URL
	}
	return ""
}

// Files dumps the file library to files.jsonl. Files is not a bulk-eligible
// query in the same sense as the other writers (its type-dependent union
// shape is awkward under the bulk API), so it paginates directly through
// the Request Layer instead.
func (s *Session) Files(ctx context.Context) (Stats, error) {
	var out []any

	extract := func(data json.RawMessage) (gql.Page, error) {
		var parsed struct {
			Files struct {
				Nodes    json.RawMessage `json:"nodes"`
				PageInfo gql.PageInfo    `json:"pageInfo"`
			} `json:"files"`
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return gql.Page{}, err
		}
		return gql.Page{Nodes: parsed.Files.Nodes, PageInfo: parsed.Files.PageInfo}, nil
	}

	err := s.Client.Paginate(ctx, filesQuery, nil, extract, func(p gql.Page) error {
		var nodes []fileNode
		if err := json.Unmarshal(p.Nodes, &nodes); err != nil {
			return err
		}
		for _, n := range nodes {
			url := n.contentURL()
			if url == "" {
				continue
			}
			filename := naturalkey.FilenameFromURL(url)
			data, err := toDataMap(map[string]any{
				"url": url,
				"alt": n.Alt,
			})
			if err != nil {
				return err
			}
			out = append(out, record.Record{NaturalKey: filename, SourceID: n.ID, Data: data})
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("dump: files: %w", err)
	}

	return s.writeJSONL("files.jsonl", out)
}
