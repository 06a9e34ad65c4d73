package shopify

import "storefront/internal/models"

// Product is the subset of a Shopify storefront product the catalog reads.
// The same shape is served by /products.json feeds and by the per-product
// /products/<handle>.json endpoint.
type Product struct {
	Title       string    `json:"title"`
	BodyHTML    string    `json:"body_html"`
	Description string    `json:"description"`
	Handle      string    `json:"handle"`
	Variants    []Variant `json:"variants"`
	Images      []Image   `json:"images"`
	Image       *Image    `json:"image"`
}

type Variant struct {
	Price models.Price `json:"price"`
}

type Image struct {
	Src string `json:"src"`
}

// ProductEnvelope is the body of a single-product JSON endpoint.
type ProductEnvelope struct {
	Product *Product `json:"product"`
}
