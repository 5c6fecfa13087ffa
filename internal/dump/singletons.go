package dump

import (
	"context"
	"encoding/json"
	"fmt"
)

// singletonQueries maps each on-disk artifact name (§6.2) to the direct
// GraphQL query that produces its top-level array/object. These entities
// are shop-wide and small enough that a single non-bulk call suffices.
var singletonQueries = map[string]string{
	"menus.json": `
query DumpMenus {
  menus(first: 50) {
    nodes {
      id handle title
      items { id title type url }
    }
  }
}`,
	"redirects.json": `
query DumpRedirects {
  urlRedirects(first: 250) {
    nodes { id path target }
  }
}`,
	"policies.json": `
query DumpPolicies {
  shop {
    shopPolicies {
      type title body url
    }
  }
}`,
	"discounts.json": `
query DumpDiscounts {
  discountNodes(first: 250) {
    nodes {
      id
      discount {
        __typename
      }
    }
  }
}`,
	"markets.json": `
query DumpMarkets($after: String) {
  markets(first: 100, after: $after) {
    nodes { id handle name enabled }
    pageInfo { hasNextPage endCursor }
  }
}`,
}

// Singleton dumps one shop-wide artifact (menus, redirects, policies,
// discounts, or markets) to its fixed filename as a single JSON document.
func (s *Session) Singleton(ctx context.Context, filename string) error {
	query, ok := singletonQueries[filename]
	if !ok {
		return fmt.Errorf("dump: unknown singleton artifact %q", filename)
	}
	data, err := s.Client.Do(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("dump: %s: %w", filename, err)
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("dump: %s: decode: %w", filename, err)
	}
	return writeJSONDocument(s.path(filename), parsed)
}
