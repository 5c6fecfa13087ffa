package dump

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"duplicator/internal/bulk"
	"duplicator/internal/gql"
	"duplicator/internal/jsonl"
	"duplicator/internal/logging"
)

// Session bundles everything one dump run needs: the bulk runtime and
// request-layer client for the source tenant, and the output directory
// every writer appends into.
type Session struct {
	Client *gql.Client
	Runner *bulk.Runner
	Dir    string

	log *zap.SugaredLogger
}

// NewSession constructs a dump Session for the source tenant.
func NewSession(client *gql.Client, dir string) *Session {
	return &Session{
		Client: client,
		Runner: bulk.New(client),
		Dir:    dir,
		log:    logging.Get(logging.CategoryDump),
	}
}

func (s *Session) path(filename string) string {
	return filepath.Join(s.Dir, filename)
}

// Stats accumulates the record counts for one writer's run.
type Stats struct {
	EntityFile string
	Written    int
	Skipped    int
}

// runBulkQuery submits query and returns every reconstructed root node.
func (s *Session) runBulkQuery(ctx context.Context, query string) ([]*bulk.Node, error) {
	seq, err := s.Runner.Run(ctx, query)
	if err != nil {
		return nil, err
	}
	var nodes []*bulk.Node
	for n := range seq {
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// writeJSONL opens filename fresh and writes one JSON line per record.
func (s *Session) writeJSONL(filename string, records []any) (Stats, error) {
	w, err := jsonl.CreateWriter(s.path(filename))
	if err != nil {
		return Stats{}, err
	}
	defer w.Close()

	stats := Stats{EntityFile: filename}
	for _, r := range records {
		if err := w.Write(r); err != nil {
			return stats, err
		}
		stats.Written++
	}
	return stats, nil
}
