package domain

// LineItem is one row in a cart. It is uniquely identified by a server-issued
// ID; ProductID is a reference only and must never be used as an identity key,
// since a cart can transiently hold two line items for the same product during
// a guest-to-account merge.
type LineItem struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	ImageURL      string `json:"image_url,omitempty"`
	UnitPrice     int64  `json:"unit_price"`
	OriginalPrice int64  `json:"original_price,omitempty"`
	Quantity      int    `json:"quantity"`
	Stock         int    `json:"stock,omitempty"`
}

// LineTotal returns the charged amount for this line (in cents).
func (li LineItem) LineTotal() int64 {
	if li.Quantity < 0 {
		return 0
	}
	return li.UnitPrice * int64(li.Quantity)
}

// Discount returns the per-line discount against the reference price.
// Zero when no reference price is set or the reference does not exceed
// the charged price.
func (li LineItem) Discount() int64 {
	if li.OriginalPrice <= li.UnitPrice || li.Quantity < 0 {
		return 0
	}
	return (li.OriginalPrice - li.UnitPrice) * int64(li.Quantity)
}

// Totals holds the derived money fields of a cart. They are always a pure
// function of the line items and the shipping policy, recomputed on every
// mutation and never persisted.
type Totals struct {
	Subtotal      int64 `json:"subtotal"`
	TotalDiscount int64 `json:"total_discount"`
	ShippingCost  int64 `json:"shipping_cost"`
	GrandTotal    int64 `json:"grand_total"`
}

// ShippingPolicy defines the flat-rate shipping cost with a free-shipping
// threshold on the subtotal.
type ShippingPolicy struct {
	FreeShippingThreshold int64
	FlatRate              int64
}

// DefaultShippingPolicy is the storefront's standard shipping policy:
// free shipping at or above 500.00, flat 49.00 otherwise.
var DefaultShippingPolicy = ShippingPolicy{
	FreeShippingThreshold: 50_000,
	FlatRate:              4_900,
}

// ComputeTotals derives the cart totals from the given line items. It is pure
// and idempotent: the same items always produce identical totals, whether the
// trigger was an optimistic local edit or a server-confirmed update. An empty
// cart yields all-zero totals (no shipping is charged on nothing).
func ComputeTotals(items []LineItem, policy ShippingPolicy) Totals {
	var t Totals
	if len(items) == 0 {
		return t
	}

	for _, li := range items {
		t.Subtotal += li.LineTotal()
		t.TotalDiscount += li.Discount()
	}

	if t.Subtotal < policy.FreeShippingThreshold {
		t.ShippingCost = policy.FlatRate
	}
	t.GrandTotal = t.Subtotal + t.ShippingCost
	return t
}

// Snapshot is a consistent view of a cart: the line items together with the
// totals derived from exactly those items.
type Snapshot struct {
	Items  []LineItem `json:"items"`
	Totals Totals     `json:"totals"`
}

// ItemCount returns the sum of quantities across the snapshot. Quantities that
// are not positive are counted as zero so a corrupted record can never produce
// a negative badge count.
func (s Snapshot) ItemCount() int {
	var count int
	for _, li := range s.Items {
		if li.Quantity > 0 {
			count += li.Quantity
		}
	}
	return count
}
