package apply

import (
	"go.uber.org/zap"

	"duplicator/internal/record"
	"duplicator/internal/rewrite"
)

// metafieldInput is the wire shape the platform's metafieldsSet mutation
// expects for one metafield instance, after natural-key resolution.
type metafieldInput struct {
	OwnerID   string `json:"ownerId"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

// resolveFields walks fields, resolving every reference annotation through
// resolver and appending the (possibly rewritten) values to a metafieldInput
// batch for ownerID. A reference that fails to resolve is a field-level
// skip with a warning — the owning record is still written with the field
// simply omitted, per §7 "reference unresolved".
func resolveFields(resolver *rewrite.Resolver, ownerID string, fields []record.Field, log *zap.SugaredLogger) []metafieldInput {
	out := make([]metafieldInput, 0, len(fields))
	for i := range fields {
		f := fields[i]
		switch resolver.ResolveField(&f) {
		case rewrite.OutcomeUnresolved:
			log.Warnw("dropping field with unresolved reference", "ownerId", ownerID, "key", f.Key, "type", f.Type)
			continue
		default:
			out = append(out, metafieldInput{
				OwnerID:   ownerID,
				Namespace: f.Namespace,
				Key:       f.Key,
				Type:      f.Type,
				Value:     f.Value,
			})
		}
	}
	return out
}

// metafieldBatchSize is the platform-imposed ceiling on one
// metafieldsSet call, per §4.6 "Batching".
const metafieldBatchSize = 25

// chunkMetafields splits in into batches of at most metafieldBatchSize.
func chunkMetafields(in []metafieldInput) [][]metafieldInput {
	if len(in) == 0 {
		return nil
	}
	var out [][]metafieldInput
	for len(in) > metafieldBatchSize {
		out = append(out, in[:metafieldBatchSize])
		in = in[metafieldBatchSize:]
	}
	return append(out, in)
}
