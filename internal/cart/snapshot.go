// Package cart mirrors the remote shopping-cart resource: a typed
// in-memory snapshot refreshed after every mutation, plus the count
// presenter and toast notifications derived from it.
package cart

import (
	"encoding/json"
	"fmt"
)

// LineItem is one cart line. Key identifies the line for quantity
// changes; ProductTitle is matched against the count-exclusion
// sentinel.
type LineItem struct {
	Key          string `json:"key"`
	ID           int64  `json:"id,omitempty"`
	ProductTitle string `json:"product_title"`
	VariantTitle string `json:"variant_title,omitempty"`
	Quantity     int    `json:"quantity"`
	Price        int64  `json:"price,omitempty"`
	LinePrice    int64  `json:"line_price,omitempty"`
	URL          string `json:"url,omitempty"`
	Image        string `json:"image,omitempty"`
}

// Snapshot is the full authoritative copy of the remote cart. It is
// replaced wholesale on every successful read or mutation; partial
// merges never happen.
type Snapshot struct {
	Token            string            `json:"token,omitempty"`
	Note             string            `json:"note,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	ItemCount        int               `json:"item_count"`
	TotalPrice       int64             `json:"total_price"`
	RequiresShipping bool              `json:"requires_shipping,omitempty"`
	Items            []LineItem        `json:"items"`
}

// SchemaError reports a remote payload that decoded but does not have
// the shape the cart contract promises.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("cart response schema: %s: %s", e.Field, e.Reason)
}

// parseSnapshot validates the remote body at the boundary instead of
// trusting its shape implicitly. Unknown extra fields are remote-owned
// and pass through untouched.
func parseSnapshot(raw []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, &SchemaError{Field: "body", Reason: err.Error()}
	}

	for i, item := range snap.Items {
		if item.Key == "" {
			return Snapshot{}, &SchemaError{
				Field:  fmt.Sprintf("items[%d].key", i),
				Reason: "missing line key",
			}
		}
		if item.Quantity < 0 {
			return Snapshot{}, &SchemaError{
				Field:  fmt.Sprintf("items[%d].quantity", i),
				Reason: "negative quantity",
			}
		}
	}

	return snap, nil
}
