package record

import "encoding/json"

// MarshalJSON flattens Annotation alongside the fixed key/type/value triple
// so the on-disk shape matches §6.2 (e.g. {"key":"featured",
// "type":"product_reference", "value":"...", "refProduct":{"handle":"..."}})
// without ever letting an annotation key collide with and clobber key/type/
// value.
func (f Field) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Annotation)+4)
	for k, v := range f.Annotation {
		if k == "key" || k == "type" || k == "value" || k == "namespace" {
			continue
		}
		out[k] = v
	}
	out["key"] = f.Key
	out["type"] = f.Type
	out["value"] = f.Value
	if f.Namespace != "" {
		out["namespace"] = f.Namespace
	}
	return json.Marshal(out)
}

// UnmarshalJSON recovers the fixed triple and stashes everything else as
// Annotation, so a Field read back from disk round-trips.
func (f *Field) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["key"]; ok {
		if err := json.Unmarshal(v, &f.Key); err != nil {
			return err
		}
		delete(raw, "key")
	}
	if v, ok := raw["namespace"]; ok {
		if err := json.Unmarshal(v, &f.Namespace); err != nil {
			return err
		}
		delete(raw, "namespace")
	}
	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &f.Type); err != nil {
			return err
		}
		delete(raw, "type")
	}
	if v, ok := raw["value"]; ok {
		if err := json.Unmarshal(v, &f.Value); err != nil {
			return err
		}
		delete(raw, "value")
	}
	if len(raw) == 0 {
		f.Annotation = nil
		return nil
	}
	annotation := make(map[string]any, len(raw))
	for k, v := range raw {
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return err
		}
		annotation[k] = decoded
	}
	f.Annotation = annotation
	return nil
}
