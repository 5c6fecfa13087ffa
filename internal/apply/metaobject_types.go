package apply

import (
	"path/filepath"
	"strings"
)

// discoverDumpedMetaobjectTypes recovers the set of metaobject types present
// in dir by listing its metaobjects-{type}.jsonl files. The destination
// index only needs to know about types that were actually dumped — there is
// nothing to resolve for a type this run never touches.
func discoverDumpedMetaobjectTypes(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "metaobjects-*.jsonl"))
	if err != nil {
		return nil, err
	}
	types := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".jsonl")
		name = strings.TrimPrefix(name, "metaobjects-")
		if name != "" {
			types = append(types, name)
		}
	}
	return types, nil
}
