package apply

import (
	"context"
	"encoding/json"
	"fmt"

	"duplicator/internal/jsonl"
	"duplicator/internal/naturalkey"
	"duplicator/internal/record"
	"duplicator/internal/rewrite"
)

type productApplyPayload struct {
	Title        string   `json:"title"`
	Publications []string `json:"publications,omitempty"`
	Variants     []struct {
		NaturalKey string `json:"naturalKey"`
		SKU        string `json:"sku,omitempty"`
		Position   int    `json:"position"`
	} `json:"variants,omitempty"`
}

const productCreateMutation = `
mutation ProductCreate($input: ProductInput!) {
  productCreate(input: $input) {
    product { id }
    userErrors { field message }
  }
}`

const productUpdateMutation = `
mutation ProductUpdate($input: ProductInput!) {
  productUpdate(input: $input) {
    product { id }
    userErrors { field message }
  }
}`

const productVariantsBulkCreateMutation = `
mutation ProductVariantsBulkCreate($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkCreate(productId: $productId, variants: $variants, strategy: REMOVE_STANDALONE_VARIANT) {
    productVariants { id sku }
    userErrors { field message }
  }
}`

// applyProducts implements phase 3: upsert every product by handle, create
// its variants when the product itself was created in this run (an existing
// product's variants are left as they are), then sync sales-channel
// publications. Newly
// created ids are registered into the index immediately, since no index
// rebuild runs between phases 3-7.
func (p *Pipeline) applyProducts(ctx context.Context, resolver *rewrite.Resolver) (Stats, error) {
	recs, err := jsonl.DecodeAll[record.Record](p.path("products.jsonl"), func(int, string, error) error { return nil })
	if err != nil {
		if isNotExist(err) {
			return Stats{Phase: "products"}, nil
		}
		return Stats{}, fmt.Errorf("apply: products: read: %w", err)
	}

	stats := runPool(ctx, recs, p.workers(), func(ctx context.Context, r record.Record) Stats {
		return p.applyOneProduct(ctx, r)
	})
	stats.Phase = "products"
	return stats, nil
}

func (p *Pipeline) applyOneProduct(ctx context.Context, r record.Record) Stats {
	var stats Stats
	stats.Total = 1

	payload, err := decodeInto[productApplyPayload](r.Data)
	if err != nil {
		stats.recordError(fmt.Errorf("product %s: decode: %w", r.NaturalKey, err))
		return stats
	}

	input := map[string]any{"title": payload.Title, "handle": r.NaturalKey}
	if r.PublishableStatus != "" {
		input["status"] = r.PublishableStatus
	}

	existingID, exists := p.idx.Product(r.NaturalKey)
	var productID string
	if exists {
		input["id"] = existingID
		id, err := p.doProductMutation(ctx, productUpdateMutation, "productUpdate", input)
		if err != nil {
			stats.recordError(fmt.Errorf("product %s: update: %w", r.NaturalKey, err))
			return stats
		}
		productID = id
		stats.Updated++
	} else {
		id, err := p.doProductMutation(ctx, productCreateMutation, "productCreate", input)
		if err != nil {
			stats.recordError(fmt.Errorf("product %s: create: %w", r.NaturalKey, err))
			return stats
		}
		productID = id
		p.idx.AddProduct(r.NaturalKey, productID)
		stats.Created++
	}

	if !exists && len(payload.Variants) > 0 {
		if err := p.createVariants(ctx, r.NaturalKey, productID, payload.Variants); err != nil {
			p.log.Warnw("product variants: partial failure", "naturalKey", r.NaturalKey, "error", err)
			stats.recordError(fmt.Errorf("product %s: variants: %w", r.NaturalKey, err))
		}
	} else if exists && len(payload.Variants) > 0 {
		// Reconciling variants on an already-existing product would require
		// querying the destination's current variant set; the metafields
		// phase still resolves refVariant fields against whichever variants
		// the destination already has for a re-run.
		p.log.Infow("product already exists, skipping variant reconciliation", "naturalKey", r.NaturalKey)
	}

	if err := syncPublications(ctx, p.Dest, p.idx, productID, payload.Publications); err != nil {
		stats.recordError(fmt.Errorf("product %s: publications: %w", r.NaturalKey, err))
	}

	return stats
}

func (p *Pipeline) createVariants(ctx context.Context, productHandle, productID string, variants []struct {
	NaturalKey string `json:"naturalKey"`
	SKU        string `json:"sku,omitempty"`
	Position   int    `json:"position"`
}) error {
	inputs := make([]map[string]any, 0, len(variants))
	for _, v := range variants {
		inputs = append(inputs, map[string]any{"sku": v.SKU})
	}

	data, err := p.Dest.Do(ctx, productVariantsBulkCreateMutation, map[string]any{
		"productId": productID,
		"variants":  inputs,
	})
	if err != nil {
		return err
	}
	var parsed struct {
		ProductVariantsBulkCreate struct {
			ProductVariants []struct {
				ID  string `json:"id"`
				SKU string `json:"sku"`
			} `json:"productVariants"`
			UserErrors []struct {
				Field   []string `json:"field"`
				Message string   `json:"message"`
			} `json:"userErrors"`
		} `json:"productVariantsBulkCreate"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if len(parsed.ProductVariantsBulkCreate.UserErrors) > 0 {
		return fmt.Errorf("%s", parsed.ProductVariantsBulkCreate.UserErrors[0].Message)
	}

	created := parsed.ProductVariantsBulkCreate.ProductVariants
	for i, v := range variants {
		if i >= len(created) {
			break
		}
		skuKey, posKey := naturalkey.VariantKeys(productHandle, v.SKU, v.Position)
		p.idx.AddVariant(skuKey, posKey, created[i].ID)
	}
	return nil
}

func (p *Pipeline) doProductMutation(ctx context.Context, mutation, field string, input map[string]any) (string, error) {
	data, err := p.Dest.Do(ctx, mutation, map[string]any{"input": input})
	if err != nil {
		return "", err
	}
	var parsed map[string]struct {
		Product *struct {
			ID string `json:"id"`
		} `json:"product"`
		UserErrors []struct {
			Field   []string `json:"field"`
			Message string   `json:"message"`
		} `json:"userErrors"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	result, ok := parsed[field]
	if !ok {
		return "", fmt.Errorf("missing %q in response", field)
	}
	if len(result.UserErrors) > 0 {
		return "", fmt.Errorf("%s", result.UserErrors[0].Message)
	}
	if result.Product == nil {
		return "", fmt.Errorf("no product returned")
	}
	return result.Product.ID, nil
}
