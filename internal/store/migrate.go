package store

import (
	"encoding/json"

	"github.com/condorshop/storefront/internal/domain"
)

// SchemaVersion is the persisted cart schema version. It is baked into the
// storage key so an incompatible layout from an older release is simply never
// read back.
const SchemaVersion = "v2"

// persistedItem mirrors domain.LineItem with pointer fields for the values
// whose absence must be detected during migration. A record written by an
// older client can be missing quantity or price entirely; a plain int would
// silently zero-fill them.
type persistedItem struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	ImageURL      string `json:"image_url,omitempty"`
	UnitPrice     *int64 `json:"unit_price"`
	OriginalPrice int64  `json:"original_price,omitempty"`
	Quantity      *int   `json:"quantity"`
	Stock         int    `json:"stock,omitempty"`
}

// MigrateItems validates raw persisted line-item records and returns the ones
// that survive. Records that fail to decode, lack a server-issued ID, have a
// non-positive quantity, or a missing/negative unit price are dropped without
// error: a corrupted persisted cart is a recoverable data-integrity problem,
// never a user-visible one. The function is pure and never returns nil.
func MigrateItems(raw []json.RawMessage) []domain.LineItem {
	items := make([]domain.LineItem, 0, len(raw))

	for _, rec := range raw {
		var p persistedItem
		if err := json.Unmarshal(rec, &p); err != nil {
			continue
		}
		if p.ID == "" {
			continue
		}
		if p.Quantity == nil || *p.Quantity <= 0 {
			continue
		}
		if p.UnitPrice == nil || *p.UnitPrice < 0 {
			continue
		}

		items = append(items, domain.LineItem{
			ID:            p.ID,
			ProductID:     p.ProductID,
			Name:          p.Name,
			Slug:          p.Slug,
			ImageURL:      p.ImageURL,
			UnitPrice:     *p.UnitPrice,
			OriginalPrice: p.OriginalPrice,
			Quantity:      *p.Quantity,
			Stock:         p.Stock,
		})
	}

	return items
}
