package shopify

import (
	"encoding/json"
	"strings"

	"storefront/internal/models"
)

// DefaultPrice is used when a product carries no variants.
const DefaultPrice models.Price = "0.00"

// Normalize converts a Shopify product into the canonical input record.
// Only the first variant and the first image are considered.
func Normalize(p *Product) models.ProductInput {
	if p == nil {
		return models.ProductInput{}
	}

	in := models.ProductInput{
		Title: strings.TrimSpace(p.Title),
		Price: DefaultPrice,
	}

	if len(p.Variants) > 0 {
		in.Price = p.Variants[0].Price
	}

	switch {
	case len(p.Images) > 0 && p.Images[0].Src != "":
		in.ImageURL = p.Images[0].Src
	case p.Image != nil:
		in.ImageURL = p.Image.Src
	}

	if handle := strings.TrimSpace(p.Handle); handle != "" {
		in.BuyURL = "/products/" + handle
	}

	in.Description = p.BodyHTML
	if in.Description == "" {
		in.Description = p.Description
	}

	return in
}

// NormalizeRaw decodes a single feed item and normalizes it. Items that are
// not Shopify product objects yield an empty record, which the upsert
// service rejects as missing required fields.
func NormalizeRaw(raw json.RawMessage) models.ProductInput {
	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.ProductInput{}
	}
	return Normalize(&p)
}
