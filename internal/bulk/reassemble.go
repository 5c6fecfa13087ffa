package bulk

import (
	"encoding/json"
	"fmt"
)

// Node is a reconstructed record from a bulk result stream: its own
// (flattened) fields plus any child nodes that carried a matching
// __parentId, recursively assembled. §4.2 describes the wire contract this
// reverses: each JSONL line is a flattened node with an "id"; children of a
// connection carry "__parentId" pointing at their parent's id.
type Node struct {
	ID       string
	Fields   map[string]json.RawMessage
	Children []*Node
}

const (
	idField       = "id"
	parentIDField = "__parentId"
)

// reassemble decodes every line of a bulk result stream and reconstructs
// the parent/child forest, returning the roots in the order their lines
// first appeared. A malformed line is reported via onParseError (skip and
// continue) rather than aborting the whole reconstruction.
func reassemble(lines [][]byte, onParseError func(lineNumber int, err error)) []*Node {
	nodesByID := make(map[string]*Node)
	childrenOf := make(map[string][]*Node)
	var roots []*Node

	for i, line := range lines {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			if onParseError != nil {
				onParseError(i+1, err)
			}
			continue
		}

		var id string
		if idRaw, ok := raw[idField]; ok {
			if err := json.Unmarshal(idRaw, &id); err != nil {
				if onParseError != nil {
					onParseError(i+1, fmt.Errorf("decode id: %w", err))
				}
				continue
			}
		}
		delete(raw, idField)

		var parentID string
		hasParent := false
		if parentRaw, ok := raw[parentIDField]; ok {
			hasParent = true
			if err := json.Unmarshal(parentRaw, &parentID); err != nil {
				if onParseError != nil {
					onParseError(i+1, fmt.Errorf("decode __parentId: %w", err))
				}
				continue
			}
			delete(raw, parentIDField)
		}

		node := &Node{ID: id, Fields: raw}
		if id != "" {
			nodesByID[id] = node
		}

		if hasParent {
			childrenOf[parentID] = append(childrenOf[parentID], node)
		} else {
			roots = append(roots, node)
		}
	}

	for id, node := range nodesByID {
		if kids, ok := childrenOf[id]; ok {
			node.Children = kids
		}
	}
	// roots that happen to also be keyed (normal case: every node has an id)
	// already share the same *Node pointer via nodesByID, so their Children
	// field is populated by the loop above.

	return roots
}
