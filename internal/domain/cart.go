package domain

// CartLine is one line of a storefront cart. Cart lines are ephemeral: they
// are consumed once by the checkout session builder and never persisted.
// Prices are snapshots in minor units, captured when the cart was built.
type CartLine struct {
	SKU             string   `json:"sku"`
	Quantity        int64    `json:"quantity"`
	Size            string   `json:"size,omitempty"`
	Kind            ItemKind `json:"kind"`
	DailyPriceCents int64    `json:"daily_price_cents"`
	DepositCents    int64    `json:"deposit_cents"`
}
