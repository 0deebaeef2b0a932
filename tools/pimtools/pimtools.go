// Package pimtools registers the product-catalog tools the model can invoke:
// product details, variant listing, marketplace listings and marketplace
// details. Handlers convert every downstream fault into an error result so a
// broken lookup is a conversation turn, not an aborted exchange.
package pimtools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iwapim/pimbot/llm"
	"github.com/iwapim/pimbot/tools"
)

// CatalogSource is the narrow read API the tools need. catalog.Store
// implements it; tests substitute fakes.
type CatalogSource interface {
	ProductDetails(ctx context.Context, productID string, fields []string) (map[string]any, error)
	VariantProducts(ctx context.Context, productID string) ([]map[string]any, error)
	ProductListings(ctx context.Context, productID string) ([]map[string]any, error)
	MarketplaceDetails(ctx context.Context, marketplaceID string) (map[string]any, error)
}

// Register adds the four PIM tools to the registry.
func Register(reg *tools.Registry, source CatalogSource, logger *slog.Logger) error {
	if reg == nil {
		return fmt.Errorf("registry is required")
	}
	if source == nil {
		return fmt.Errorf("catalog source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &pimTools{source: source, log: logger}

	for _, reg2 := range []struct {
		spec    llm.ToolSpec
		handler tools.Handler
	}{
		{specGetProductDetails, t.getProductDetails},
		{specListVariantProducts, t.listVariantProducts},
		{specGetProductListings, t.getProductListings},
		{specGetMarketplaceDetails, t.getMarketplaceDetails},
	} {
		if err := reg.Register(reg2.spec, reg2.handler); err != nil {
			return err
		}
	}
	return nil
}

type pimTools struct {
	source CatalogSource
	log    *slog.Logger
}

var specGetProductDetails = llm.ToolSpec{
	Name:        "get_product_details",
	Description: "Retrieve detailed information about a product based on its SKU or ID.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"product_id": map[string]any{
				"type":        "string",
				"description": "The ID of the product.",
			},
			"fields": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Optional list of specific fields to retrieve (e.g., name, dimensions, weight).",
			},
		},
		"required": []string{"product_id"},
	},
}

var specListVariantProducts = llm.ToolSpec{
	Name:        "list_variant_products",
	Description: "List all variant products for a given product ID.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"product_id": map[string]any{
				"type":        "string",
				"description": "The ID of the parent product.",
			},
		},
		"required": []string{"product_id"},
	},
}

var specGetProductListings = llm.ToolSpec{
	Name:        "get_product_listings",
	Description: "List the marketplace listings of a product, with price, stock and order counts.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"product_id": map[string]any{
				"type":        "string",
				"description": "The ID of the product.",
			},
		},
		"required": []string{"product_id"},
	},
}

var specGetMarketplaceDetails = llm.ToolSpec{
	Name:        "get_marketplace_details",
	Description: "Retrieve details of a marketplace by its ID or name.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"marketplace_id": map[string]any{
				"type":        "string",
				"description": "The ID or name of the marketplace.",
			},
		},
		"required": []string{"marketplace_id"},
	},
}

func (t *pimTools) getProductDetails(ctx context.Context, args map[string]any) tools.Result {
	productID, ok := stringArg(args, "product_id")
	if !ok {
		return tools.ErrorResult("product_id is required")
	}
	fields := stringSliceArg(args, "fields")

	details, err := t.source.ProductDetails(ctx, productID, fields)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tools.ErrorResult("product %s was not found", productID)
		}
		t.log.Error("pim_product_details_error", "product_id", productID, "error", err.Error())
		return tools.ErrorResult("product details lookup failed")
	}
	return tools.Result{Payload: map[string]any{"details": []map[string]any{details}}}
}

func (t *pimTools) listVariantProducts(ctx context.Context, args map[string]any) tools.Result {
	productID, ok := stringArg(args, "product_id")
	if !ok {
		return tools.ErrorResult("product_id is required")
	}
	variants, err := t.source.VariantProducts(ctx, productID)
	if err != nil {
		t.log.Error("pim_variants_error", "product_id", productID, "error", err.Error())
		return tools.ErrorResult("variant lookup failed")
	}
	if variants == nil {
		variants = []map[string]any{}
	}
	return tools.Result{Payload: map[string]any{"variants": variants}}
}

func (t *pimTools) getProductListings(ctx context.Context, args map[string]any) tools.Result {
	productID, ok := stringArg(args, "product_id")
	if !ok {
		return tools.ErrorResult("product_id is required")
	}
	listings, err := t.source.ProductListings(ctx, productID)
	if err != nil {
		t.log.Error("pim_listings_error", "product_id", productID, "error", err.Error())
		return tools.ErrorResult("listing lookup failed")
	}
	if listings == nil {
		listings = []map[string]any{}
	}
	return tools.Result{Payload: map[string]any{"listings": listings}}
}

func (t *pimTools) getMarketplaceDetails(ctx context.Context, args map[string]any) tools.Result {
	marketplaceID, ok := stringArg(args, "marketplace_id")
	if !ok {
		return tools.ErrorResult("marketplace_id is required")
	}
	details, err := t.source.MarketplaceDetails(ctx, marketplaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tools.ErrorResult("marketplace %s was not found", marketplaceID)
		}
		t.log.Error("pim_marketplace_error", "marketplace_id", marketplaceID, "error", err.Error())
		return tools.ErrorResult("marketplace lookup failed")
	}
	return tools.Result{Payload: map[string]any{"details": details}}
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
