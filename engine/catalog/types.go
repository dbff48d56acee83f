// Package catalog defines the product record, its validation, and the JSON
// catalog file loader. It acts as the validation gate at ingestion entry.
package catalog

import "fmt"

// Product is a single catalog record. One product maps to exactly one vector
// in the store; the product itself rides along as the point payload.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	URL         string  `json:"url"`
	Category    string  `json:"category,omitempty"`
}

// EmbeddingText returns the text that is embedded for this product.
func (p Product) EmbeddingText() string {
	return fmt.Sprintf("%s - %s", p.Name, p.Description)
}
