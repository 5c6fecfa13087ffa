package gql

import (
	"context"
	"encoding/json"
	"fmt"
)

// PageInfo mirrors the platform's standard Relay-style connection cursor.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// Page is one page of a paginated connection: the raw nodes (left to the
// caller to decode into whatever shape it needs) and the cursor to continue
// from.
type Page struct {
	Nodes    json.RawMessage
	PageInfo PageInfo
}

// PageExtractor pulls the connection's nodes/edges and pageInfo out of one
// response payload. Each component owns the shape of its own query, so it
// supplies this rather than Paginate trying to guess a JSON path.
type PageExtractor func(data json.RawMessage) (Page, error)

// Paginate walks a cursor-based connection to completion, invoking onPage
// once per page in order. variables is reused across calls with an "after"
// key set to the previous page's end cursor (omitted on the first call).
func (c *Client) Paginate(ctx context.Context, document string, variables map[string]any, extract PageExtractor, onPage func(Page) error) error {
	vars := make(map[string]any, len(variables))
	for k, v := range variables {
		vars[k] = v
	}

	for {
		data, err := c.Do(ctx, document, vars)
		if err != nil {
			return fmt.Errorf("gql: paginate: %w", err)
		}
		page, err := extract(data)
		if err != nil {
			return fmt.Errorf("gql: paginate: extract page: %w", err)
		}
		if err := onPage(page); err != nil {
			return err
		}
		if !page.PageInfo.HasNextPage {
			return nil
		}
		vars["after"] = page.PageInfo.EndCursor
	}
}
