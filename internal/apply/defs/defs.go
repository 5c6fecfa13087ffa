// Package defs implements the Definitions Apply run (§4.6 "Definitions
// apply"): a separate, logically prior pass that creates only the
// metaobject and metafield definitions missing on the destination tenant,
// never destructively updating an existing one, and silently skipping
// reserved vendor-owned namespaces.
package defs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"duplicator/internal/dump"
	"duplicator/internal/gql"
	"duplicator/internal/logging"
)

// Stats accumulates one defs-apply run's outcome counts.
type Stats struct {
	Total   int
	Created int
	Skipped int
	Failed  int
	Errors  []string
}

const maxSampledErrors = 10

func (s *Stats) recordError(err error) {
	s.Failed++
	if len(s.Errors) < maxSampledErrors {
		s.Errors = append(s.Errors, err.Error())
	}
}

// Apply reads dir/definitions.json and creates every metaobject and
// metafield definition missing on dest, in that order (metaobject
// definitions first, since a metafield definition's validations may
// reference one by destination id).
func Apply(ctx context.Context, dest *gql.Client, dir string) (Stats, error) {
	var stats Stats
	log := logging.Get(logging.CategoryApply)

	doc, err := readDefinitionsDoc(dir)
	if err != nil {
		return stats, err
	}

	existingMetaobjectTypes, existingMetaobjectIDs, err := fetchExistingMetaobjectDefinitions(ctx, dest)
	if err != nil {
		return stats, fmt.Errorf("defs: fetch existing metaobject definitions: %w", err)
	}

	for _, def := range doc.MetaobjectDefinitions {
		stats.Total++
		if IsReservedNamespace(def.Type) {
			stats.Skipped++
			continue
		}
		if existingMetaobjectTypes[def.Type] {
			stats.Skipped++
			continue
		}
		id, err := createMetaobjectDefinition(ctx, dest, def)
		if err != nil {
			log.Warnw("defs: metaobject definition create failed", "type", def.Type, "error", err)
			stats.recordError(fmt.Errorf("metaobject definition %s: %w", def.Type, err))
			continue
		}
		existingMetaobjectTypes[def.Type] = true
		existingMetaobjectIDs[def.Type] = id
		stats.Created++
	}

	existingMetafields, err := fetchExistingMetafieldDefinitions(ctx, dest)
	if err != nil {
		return stats, fmt.Errorf("defs: fetch existing metafield definitions: %w", err)
	}

	// sourceMetaobjectIDToType maps a source-tenant metaobject definition's
	// opaque id to its type name, since that is what a metafield
	// definition's validation payload references (§4.6). Combined with
	// existingMetaobjectIDs (type name -> destination id), this lets a
	// validation's source-tenant id be rewritten to the destination's id
	// for the same type.
	sourceMetaobjectIDToType := make(map[string]string, len(doc.MetaobjectDefinitions))
	for _, def := range doc.MetaobjectDefinitions {
		if def.ID != "" {
			sourceMetaobjectIDToType[def.ID] = def.Type
		}
	}

	for _, def := range doc.MetafieldDefinitions {
		stats.Total++
		if IsReservedNamespace(def.Namespace) {
			stats.Skipped++
			continue
		}
		key := metafieldDefinitionKey(def.OwnerType, def.Namespace, def.Key)
		if existingMetafields[key] {
			stats.Skipped++
			continue
		}
		if err := createMetafieldDefinition(ctx, dest, def, sourceMetaobjectIDToType, existingMetaobjectIDs, log); err != nil {
			log.Warnw("defs: metafield definition create failed", "ownerType", def.OwnerType, "namespace", def.Namespace, "key", def.Key, "error", err)
			stats.recordError(fmt.Errorf("metafield definition %s.%s/%s: %w", def.OwnerType, def.Namespace, def.Key, err))
			continue
		}
		existingMetafields[key] = true
		stats.Created++
	}

	return stats, nil
}

func metafieldDefinitionKey(ownerType, namespace, key string) string {
	return ownerType + ":" + namespace + ":" + key
}

func readDefinitionsDoc(dir string) (dump.DefinitionsDoc, error) {
	var doc dump.DefinitionsDoc
	data, err := os.ReadFile(filepath.Join(dir, "definitions.json"))
	if err != nil {
		return doc, fmt.Errorf("defs: read definitions.json: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("defs: decode definitions.json: %w", err)
	}
	return doc, nil
}

const existingMetaobjectDefinitionsQuery = `
query ExistingMetaobjectDefinitions {
  metaobjectDefinitions(first: 250) {
    nodes { id type }
  }
}`

func fetchExistingMetaobjectDefinitions(ctx context.Context, dest *gql.Client) (map[string]bool, map[string]string, error) {
	data, err := dest.Do(ctx, existingMetaobjectDefinitionsQuery, nil)
	if err != nil {
		return nil, nil, err
	}
	var parsed struct {
		MetaobjectDefinitions struct {
			Nodes []struct {
				ID   string `json:"id"`
				Type string `json:"type"`
			} `json:"nodes"`
		} `json:"metaobjectDefinitions"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, nil, fmt.Errorf("decode: %w", err)
	}
	types := make(map[string]bool, len(parsed.MetaobjectDefinitions.Nodes))
	ids := make(map[string]string, len(parsed.MetaobjectDefinitions.Nodes))
	for _, n := range parsed.MetaobjectDefinitions.Nodes {
		types[n.Type] = true
		ids[n.Type] = n.ID
	}
	return types, ids, nil
}

const existingMetafieldDefinitionsQuery = `
query ExistingMetafieldDefinitions($ownerType: MetafieldOwnerType!) {
  metafieldDefinitions(first: 250, ownerType: $ownerType) {
    nodes { namespace key ownerType }
  }
}`

var metafieldOwnerTypes = []string{
	"PRODUCT", "PRODUCTVARIANT", "COLLECTION", "PAGE", "BLOG", "ARTICLE", "SHOP",
}

func fetchExistingMetafieldDefinitions(ctx context.Context, dest *gql.Client) (map[string]bool, error) {
	existing := make(map[string]bool)
	for _, ownerType := range metafieldOwnerTypes {
		data, err := dest.Do(ctx, existingMetafieldDefinitionsQuery, map[string]any{"ownerType": ownerType})
		if err != nil {
			return nil, fmt.Errorf("ownerType %s: %w", ownerType, err)
		}
		var parsed struct {
			MetafieldDefinitions struct {
				Nodes []struct {
					Namespace string `json:"namespace"`
					Key       string `json:"key"`
					OwnerType string `json:"ownerType"`
				} `json:"nodes"`
			} `json:"metafieldDefinitions"`
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("ownerType %s: decode: %w", ownerType, err)
		}
		for _, n := range parsed.MetafieldDefinitions.Nodes {
			existing[metafieldDefinitionKey(n.OwnerType, n.Namespace, n.Key)] = true
		}
	}
	return existing, nil
}

const metaobjectDefinitionCreateMutation = `
mutation MetaobjectDefinitionCreate($definition: MetaobjectDefinitionCreateInput!) {
  metaobjectDefinitionCreate(definition: $definition) {
    metaobjectDefinition { id type }
    userErrors { field message }
  }
}`

func createMetaobjectDefinition(ctx context.Context, dest *gql.Client, def dump.MetaobjectDefinition) (string, error) {
	fieldDefs := make([]map[string]any, 0, len(def.FieldDefinitions))
	for _, f := range def.FieldDefinitions {
		fieldDefs = append(fieldDefs, map[string]any{
			"key":      f.Key,
			"type":     f.Type,
			"required": f.Required,
		})
	}
	input := map[string]any{
		"type":             def.Type,
		"name":             def.Name,
		"fieldDefinitions": fieldDefs,
	}
	data, err := dest.Do(ctx, metaobjectDefinitionCreateMutation, map[string]any{"definition": input})
	if err != nil {
		return "", err
	}
	var parsed struct {
		MetaobjectDefinitionCreate struct {
			MetaobjectDefinition *struct {
				ID   string `json:"id"`
				Type string `json:"type"`
			} `json:"metaobjectDefinition"`
			UserErrors []struct {
				Field   []string `json:"field"`
				Message string   `json:"message"`
			} `json:"userErrors"`
		} `json:"metaobjectDefinitionCreate"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(parsed.MetaobjectDefinitionCreate.UserErrors) > 0 {
		return "", fmt.Errorf("%s", parsed.MetaobjectDefinitionCreate.UserErrors[0].Message)
	}
	if parsed.MetaobjectDefinitionCreate.MetaobjectDefinition == nil {
		return "", fmt.Errorf("no metaobjectDefinition returned")
	}
	return parsed.MetaobjectDefinitionCreate.MetaobjectDefinition.ID, nil
}

const metafieldDefinitionCreateMutation = `
mutation MetafieldDefinitionCreate($definition: MetafieldDefinitionInput!) {
  metafieldDefinitionCreate(definition: $definition) {
    createdDefinition { id }
    userErrors { field message }
  }
}`

// metaobjectValidationNames are the validation keys whose value is a
// metaobject definition's opaque id and must be rewritten to the
// destination's id for the same type name (§4.6 "Definitions apply").
var metaobjectValidationNames = map[string]bool{
	"metaobject_definition_id": true,
}

func createMetafieldDefinition(ctx context.Context, dest *gql.Client, def dump.MetafieldDefinition, sourceMetaobjectIDToType map[string]string, destMetaobjectIDs map[string]string, log *zap.SugaredLogger) error {
	validations := make([]map[string]string, 0, len(def.Validations))
	for _, v := range def.Validations {
		value := v.Value
		if metaobjectValidationNames[v.Name] {
			typ, known := sourceMetaobjectIDToType[v.Value]
			destID, ok := destMetaobjectIDs[typ]
			if known && ok {
				value = destID
			} else {
				log.Warnw("defs: metafield definition validation references unknown metaobject type, leaving raw value", "namespace", def.Namespace, "key", def.Key, "value", v.Value)
			}
		}
		validations = append(validations, map[string]string{"name": v.Name, "value": value})
	}

	input := map[string]any{
		"namespace":   def.Namespace,
		"key":         def.Key,
		"ownerType":   def.OwnerType,
		"type":        def.Type,
		"name":        def.Namespace + "." + def.Key,
		"validations": validations,
	}
	data, err := dest.Do(ctx, metafieldDefinitionCreateMutation, map[string]any{"definition": input})
	if err != nil {
		return err
	}
	var parsed struct {
		MetafieldDefinitionCreate struct {
			CreatedDefinition *struct {
				ID string `json:"id"`
			} `json:"createdDefinition"`
			UserErrors []struct {
				Field   []string `json:"field"`
				Message string   `json:"message"`
			} `json:"userErrors"`
		} `json:"metafieldDefinitionCreate"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if len(parsed.MetafieldDefinitionCreate.UserErrors) > 0 {
		return fmt.Errorf("%s", parsed.MetafieldDefinitionCreate.UserErrors[0].Message)
	}
	if parsed.MetafieldDefinitionCreate.CreatedDefinition == nil {
		return fmt.Errorf("no createdDefinition returned")
	}
	return nil
}
