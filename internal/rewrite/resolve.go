package rewrite

import (
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"duplicator/internal/index"
	"duplicator/internal/logging"
	"duplicator/internal/naturalkey"
	"duplicator/internal/record"
)

// Resolver resolves export-time annotations back to fresh destination
// opaque ids via a Destination Index, per §4.4's import direction.
type Resolver struct {
	idx *index.Index
	log *zap.SugaredLogger
}

// NewResolver wraps a Destination Index for field resolution.
func NewResolver(idx *index.Index) *Resolver {
	return &Resolver{idx: idx, log: logging.Get(logging.CategoryRewrite)}
}

// Outcome reports what happened when resolving one field.
type Outcome int

const (
	// OutcomeUnchanged: not a reference field, or a non-remappable
	// reference (e.g. taxonomy) passed through raw.
	OutcomeUnchanged Outcome = iota
	// OutcomeResolved: value replaced with the destination id(s).
	OutcomeResolved
	// OutcomeUnresolved: a remappable reference had no destination match;
	// value was nulled out (field should be written as null/omitted).
	OutcomeUnresolved
)

// ResolveField resolves one field's reference annotation in place. It never
// touches Key or Type. For an unresolvable remappable single reference the
// Value is set to the empty string, and for a list reference none of whose
// entries resolve it is set to the JSON literal "null"; either way Outcome is
// OutcomeUnresolved — callers in
// the apply pipeline decide whether that means omitting the field or
// writing an explicit null.
func (r *Resolver) ResolveField(f *record.Field) Outcome {
	if !IsReferenceType(f.Type) {
		return OutcomeUnchanged
	}
	if IsListReferenceType(f.Type) {
		return r.resolveList(f)
	}
	return r.resolveSingle(f)
}

func (r *Resolver) resolveSingle(f *record.Field) Outcome {
	for _, key := range record.ReferenceAnnotationKinds {
		raw, ok := f.Annotation[key]
		if !ok {
			continue
		}
		fields, _ := raw.(map[string]any)
		id, resolved := r.resolveByAnnotationKind(key, fields)
		if !resolved {
			r.log.Warnw("unresolved single reference", "key", f.Key, "annotation", key)
			f.Value = ""
			return OutcomeUnresolved
		}
		f.Value = id
		return OutcomeResolved
	}
	// No annotation present: either a non-remappable kind (taxonomy) or
	// the rewriter found nothing to resolve at export time. Either way the
	// raw value is preserved untouched, per §4.4.
	return OutcomeUnchanged
}

func (r *Resolver) resolveByAnnotationKind(key string, fields map[string]any) (string, bool) {
	str := func(k string) string {
		v, _ := fields[k].(string)
		return v
	}
	switch key {
	case "refProduct":
		return r.idx.Product(str("handle"))
	case "refCollection":
		return r.idx.Collection(str("handle"))
	case "refPage":
		return r.idx.Page(str("handle"))
	case "refBlog":
		return r.idx.Blog(str("handle"))
	case "refArticle":
		return r.idx.Article(naturalkey.Article(str("blogHandle"), str("articleHandle")))
	case "refMetaobject":
		return r.idx.Metaobject(naturalkey.Metaobject(str("type"), str("handle")))
	case "refVariant":
		productHandle := str("productHandle")
		if sku := str("sku"); sku != "" {
			if id, ok := r.idx.Variant(naturalkey.VariantBySKU(productHandle, sku)); ok {
				return id, true
			}
		}
		position := 0
		switch p := fields["position"].(type) {
		case float64:
			// Single-reference annotations (internal/dump) carry position as
			// a real JSON number.
			position = int(p)
		case string:
			// refList annotations (internal/enrich) carry it as a decimal
			// string, since record.ListReferenceEntry.HandleFields is
			// map[string]string.
			if n, err := strconv.Atoi(p); err == nil {
				position = n
			}
		}
		return r.idx.Variant(naturalkey.VariantByPosition(productHandle, position))
	case "refFile":
		entry, ok := r.idx.FileByName(str("filename"))
		return entry.ID, ok
	default:
		return "", false
	}
}

func (r *Resolver) resolveList(f *record.Field) Outcome {
	rawEntries, ok := f.Annotation[record.ListReferenceAnnotationKind]
	if !ok {
		// Uniform non-remappable list (e.g. taxonomy values): pass through.
		return OutcomeUnchanged
	}

	entries, err := decodeListEntries(rawEntries)
	if err != nil {
		r.log.Warnw("malformed refList annotation, leaving value unchanged", "key", f.Key, "error", err)
		return OutcomeUnchanged
	}

	var resolvedIDs []string
	unresolvedCount := 0
	for _, e := range entries {
		key, kindOK := annotationKeyForEntryType(e.Type)
		if !kindOK {
			unresolvedCount++
			continue
		}
		id, ok := r.resolveByAnnotationKind(key, stringMap(e.HandleFields))
		if !ok {
			unresolvedCount++
			continue
		}
		resolvedIDs = append(resolvedIDs, id)
	}
	if unresolvedCount > 0 {
		r.log.Warnw("dropped unresolved list reference entries", "key", f.Key, "dropped", unresolvedCount)
	}

	data, err := json.Marshal(resolvedIDs)
	if err != nil {
		r.log.Warnw("failed to marshal resolved list reference", "key", f.Key, "error", err)
		return OutcomeUnresolved
	}
	f.Value = string(data)
	if len(resolvedIDs) == 0 {
		return OutcomeUnresolved
	}
	return OutcomeResolved
}

func annotationKeyForEntryType(typ string) (string, bool) {
	return annotationKeyForKind(naturalkey.GIDKind(typ))
}

func stringMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func decodeListEntries(raw any) ([]record.ListReferenceEntry, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var entries []record.ListReferenceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode refList: %w", err)
	}
	return entries, nil
}
