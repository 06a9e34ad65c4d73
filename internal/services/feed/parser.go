package feed

import (
	"bytes"
	"encoding/json"
	"strings"

	"storefront/internal/apperrors"
	"storefront/internal/models"
	"storefront/internal/services/shopify"
)

// ParseFeed recognizes a Shopify-style {"products": [...]} document or a
// bare array of generic product objects. At most maxItems entries are
// normalized.
func ParseFeed(body []byte, maxItems int) ([]models.ProductInput, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, &apperrors.ParseError{Message: "Unrecognized feed format"}
	}

	switch body[0] {
	case '{':
		var doc struct {
			Products []json.RawMessage `json:"products"`
		}
		if err := json.Unmarshal(body, &doc); err != nil || doc.Products == nil {
			return nil, &apperrors.ParseError{Message: "Unrecognized feed format"}
		}
		items := capItems(doc.Products, maxItems)
		products := make([]models.ProductInput, len(items))
		for i, raw := range items {
			products[i] = shopify.NormalizeRaw(raw)
		}
		return products, nil

	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, &apperrors.ParseError{Message: "Unrecognized feed format", Err: err}
		}
		items = capItems(items, maxItems)
		products := make([]models.ProductInput, len(items))
		for i, raw := range items {
			products[i] = NormalizeGenericRaw(raw)
		}
		return products, nil
	}

	return nil, &apperrors.ParseError{Message: "Unrecognized feed format"}
}

func capItems[T any](items []T, maxItems int) []T {
	if maxItems > 0 && len(items) > maxItems {
		return items[:maxItems]
	}
	return items
}

// NormalizeGenericRaw decodes one generic feed item. Anything that is not
// a JSON object normalizes to an empty record.
func NormalizeGenericRaw(raw json.RawMessage) models.ProductInput {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var item map[string]any
	if err := dec.Decode(&item); err != nil || item == nil {
		return models.ProductInput{}
	}
	return NormalizeGeneric(item)
}

// NormalizeGeneric maps a loosely-shaped product object onto the canonical
// record, taking the first non-empty value among synonymous keys.
func NormalizeGeneric(item map[string]any) models.ProductInput {
	price := models.Price(firstString(item, "price"))
	if price.IsEmpty() {
		price = shopify.DefaultPrice
	}

	return models.ProductInput{
		Title:       firstString(item, "title", "name"),
		Price:       price,
		ImageURL:    firstString(item, "image_url", "image", "featured_image"),
		BuyURL:      firstString(item, "buy_url", "url", "handle"),
		Description: firstString(item, "description"),
	}
}

func firstString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringValue(item[key]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case map[string]any:
		// Image objects: {"src": "..."}.
		return stringValue(val["src"])
	default:
		return ""
	}
}
