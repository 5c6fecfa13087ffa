package dump

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// definitionOwnerTypes is the set of owner types whose metafield
// definitions are dumped. This mirrors the entity families the rest of
// the dump session covers (§3.1); metaobject-typed owners are covered
// separately via metaobjectDefinitions.
var definitionOwnerTypes = []string{
	"PRODUCT",
	"PRODUCTVARIANT",
	"COLLECTION",
	"PAGE",
	"BLOG",
	"ARTICLE",
	"SHOP",
}

const metaobjectDefinitionsForDumpQuery = `
query MetaobjectDefinitions {
  metaobjectDefinitions(first: 250) {
    nodes {
      id
      type
      name
      fieldDefinitions { key type { name } required }
    }
  }
}`

const metafieldDefinitionsQuery = `
query MetafieldDefinitions($ownerType: MetafieldOwnerType!) {
  metafieldDefinitions(first: 250, ownerType: $ownerType) {
    nodes {
      namespace
      key
      ownerType
      type { name }
      validations { name value }
    }
  }
}`

// MetaobjectFieldDefinition is one field slot in a metaobject type schema.
type MetaobjectFieldDefinition struct {
	Key      string `json:"key"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// MetaobjectDefinition is one metaobject type's schema. ID is the source
// tenant's opaque id for this definition, kept so a metafield definition's
// validation payload (which references a metaobject type by that opaque
// id) can be mapped back to Type and then rewritten to the destination's
// id for the same type name.
type MetaobjectDefinition struct {
	ID               string                      `json:"id"`
	Type             string                      `json:"type"`
	Name             string                      `json:"name"`
	FieldDefinitions []MetaobjectFieldDefinition `json:"fieldDefinitions"`
}

// MetafieldValidation is one name/value validation rule attached to a
// metafield definition (e.g. a metaobject_reference definition's
// "metaobject_definition_id" validation, whose value is an opaque id that
// must be rewritten per tenant).
type MetafieldValidation struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MetafieldDefinition is one metafield definition's schema.
type MetafieldDefinition struct {
	Namespace   string                `json:"namespace"`
	Key         string                `json:"key"`
	OwnerType   string                `json:"ownerType"`
	Type        string                `json:"type"`
	Validations []MetafieldValidation `json:"validations,omitempty"`
}

// DefinitionsDoc is the on-disk shape of definitions.json, read back by
// defs.Apply.
type DefinitionsDoc struct {
	MetaobjectDefinitions []MetaobjectDefinition `json:"metaobjectDefinitions"`
	MetafieldDefinitions  []MetafieldDefinition  `json:"metafieldDefinitions"`
}

// Definitions dumps the combined metaobject/metafield definition schemas to
// definitions.json: every metaobject type's field schema, and every
// metafield definition across definitionOwnerTypes.
func (s *Session) Definitions(ctx context.Context) error {
	moDefs, err := s.dumpMetaobjectDefinitions(ctx)
	if err != nil {
		return err
	}

	var mfDefs []MetafieldDefinition
	for _, ownerType := range definitionOwnerTypes {
		defs, err := s.dumpMetafieldDefinitions(ctx, ownerType)
		if err != nil {
			return err
		}
		mfDefs = append(mfDefs, defs...)
	}

	doc := DefinitionsDoc{
		MetaobjectDefinitions: moDefs,
		MetafieldDefinitions:  mfDefs,
	}
	return writeJSONDocument(s.path("definitions.json"), doc)
}

func (s *Session) dumpMetaobjectDefinitions(ctx context.Context) ([]MetaobjectDefinition, error) {
	data, err := s.Client.Do(ctx, metaobjectDefinitionsForDumpQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("dump: metaobject definitions: %w", err)
	}
	var parsed struct {
		MetaobjectDefinitions struct {
			Nodes []struct {
				ID               string `json:"id"`
				Type             string `json:"type"`
				Name             string `json:"name"`
				FieldDefinitions []struct {
					Key      string `json:"key"`
					Type     struct {
						Name string `json:"name"`
					} `json:"type"`
					Required bool `json:"required"`
				} `json:"fieldDefinitions"`
			} `json:"nodes"`
		} `json:"metaobjectDefinitions"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("dump: metaobject definitions: decode: %w", err)
	}

	out := make([]MetaobjectDefinition, 0, len(parsed.MetaobjectDefinitions.Nodes))
	for _, n := range parsed.MetaobjectDefinitions.Nodes {
		fields := make([]MetaobjectFieldDefinition, 0, len(n.FieldDefinitions))
		for _, f := range n.FieldDefinitions {
			fields = append(fields, MetaobjectFieldDefinition{Key: f.Key, Type: f.Type.Name, Required: f.Required})
		}
		out = append(out, MetaobjectDefinition{ID: n.ID, Type: n.Type, Name: n.Name, FieldDefinitions: fields})
	}
	return out, nil
}

func (s *Session) dumpMetafieldDefinitions(ctx context.Context, ownerType string) ([]MetafieldDefinition, error) {
	data, err := s.Client.Do(ctx, metafieldDefinitionsQuery, map[string]any{"ownerType": ownerType})
	if err != nil {
		return nil, fmt.Errorf("dump: metafield definitions (%s): %w", ownerType, err)
	}
	var parsed struct {
		MetafieldDefinitions struct {
			Nodes []struct {
				Namespace string `json:"namespace"`
				Key       string `json:"key"`
				OwnerType string `json:"ownerType"`
				Type      struct {
					Name string `json:"name"`
				} `json:"type"`
				Validations []MetafieldValidation `json:"validations"`
			} `json:"nodes"`
		} `json:"metafieldDefinitions"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("dump: metafield definitions (%s): decode: %w", ownerType, err)
	}

	out := make([]MetafieldDefinition, 0, len(parsed.MetafieldDefinitions.Nodes))
	for _, n := range parsed.MetafieldDefinitions.Nodes {
		out = append(out, MetafieldDefinition{
			Namespace:   n.Namespace,
			Key:         n.Key,
			OwnerType:   n.OwnerType,
			Type:        n.Type.Name,
			Validations: n.Validations,
		})
	}
	return out, nil
}

func writeJSONDocument(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("dump: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("dump: write %s: %w", path, err)
	}
	return nil
}
