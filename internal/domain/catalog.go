package domain

import "time"

// Product is a catalog entry as served by the backend. The storefront never
// mutates products; it only browses them.
type Product struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Description   string `json:"description,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
	UnitPrice     int64  `json:"unit_price"`
	OriginalPrice int64  `json:"original_price,omitempty"`
	Stock         int    `json:"stock"`
}

// Order is a placed order as reported by the backend order history endpoint.
type Order struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Items     []OrderItem `json:"items"`
	Total     int64       `json:"total"`
	CreatedAt time.Time   `json:"created_at"`
}

// OrderItem is one purchased line within an order.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}
