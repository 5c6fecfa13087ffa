package filelib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"duplicator/internal/gql"
)

// dropBatchSize is the delete batch size named in §4.8.
const dropBatchSize = 50

// ErrConfirmationRequired is returned when Drop is called without the exact
// literal confirmation string, per §4.8's interactive confirmation gate.
var ErrConfirmationRequired = errors.New("filelib: drop requires the literal confirmation string \"delete\"")

const fileDeleteMutation = `
mutation FileDelete($fileIds: [ID!]!) {
  fileDelete(fileIds: $fileIds) {
    deletedFileIds
    userErrors { field message }
  }
}`

// Drop pages through the destination's entire file library and deletes it
// in batches of dropBatchSize, per §4.8. confirm must equal the literal
// string "delete" or the operation refuses to run. A batch's error does not
// abort the remaining batches.
func (s *Syncer) Drop(ctx context.Context, confirm string) (Stats, error) {
	if confirm != "delete" {
		return Stats{}, ErrConfirmationRequired
	}

	ids, err := s.listAllFileIDs(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("filelib: drop: list: %w", err)
	}

	var stats Stats
	for len(ids) > 0 {
		n := dropBatchSize
		if n > len(ids) {
			n = len(ids)
		}
		batch := ids[:n]
		ids = ids[n:]

		stats.Total += len(batch)
		if err := s.deleteBatch(ctx, batch); err != nil {
			s.log.Warnw("drop files: batch failed, continuing", "error", err, "batchSize", len(batch))
			stats.recordError(err)
			continue
		}
		stats.Deleted += len(batch)
	}
	return stats, nil
}

func (s *Syncer) deleteBatch(ctx context.Context, ids []string) error {
	data, err := s.Dest.Do(ctx, fileDeleteMutation, map[string]any{"fileIds": ids})
	if err != nil {
		return err
	}
	var parsed struct {
		FileDelete struct {
			UserErrors []userErrorJSON `json:"userErrors"`
		} `json:"fileDelete"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if len(parsed.FileDelete.UserErrors) > 0 {
		return fmt.Errorf("%s", parsed.FileDelete.UserErrors[0].Message)
	}
	return nil
}

func (s *Syncer) listAllFileIDs(ctx context.Context) ([]string, error) {
	var ids []string
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
	err := s.Dest.Paginate(ctx, destFilesQuery, nil, extract, func(p gql.Page) error {
		var nodes []struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(p.Nodes, &nodes); err != nil {
			return err
		}
		for _, n := range nodes {
			ids = append(ids, n.ID)
		}
		return nil
	})
	return ids, err
}
