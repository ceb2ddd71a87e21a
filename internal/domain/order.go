package domain

import "time"

type ItemStatus string

const (
	ItemStatusPending  ItemStatus = "pending"
	ItemStatusShipped  ItemStatus = "shipped"
	ItemStatusFailed   ItemStatus = "failed"
	ItemStatusRefunded ItemStatus = "refunded"
)

type ItemKind string

const (
	ItemKindRental ItemKind = "rental"
	ItemKindSale   ItemKind = "sale"
)

// OrderStatus is the order-level view derived from item states. It is never
// stored; callers recompute it with AggregateStatus on every read.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPartial OrderStatus = "partial"
	OrderStatusShipped OrderStatus = "shipped"
)

// OrderItem is a single line of a (possibly mixed rental/sale) order.
type OrderItem struct {
	ID     string     `json:"id"`
	SKU    string     `json:"sku"`
	Kind   ItemKind   `json:"kind"`
	Status ItemStatus `json:"status"`
}

// RentalOrder is created on checkout completion and mutated by the webhook
// processor and the reconciliation jobs. Orders are never deleted.
// All money fields are minor units (cents).
type RentalOrder struct {
	ID               string      `json:"id"`
	Shop             string      `json:"shop"`
	SessionID        string      `json:"session_id"`
	DepositCents     int64       `json:"deposit_cents"`
	DamageFeeCents   int64       `json:"damage_fee_cents"`
	StartedAt        time.Time   `json:"started_at"`
	ReturnDate       time.Time   `json:"return_date"`
	ReturnedAt       *time.Time  `json:"returned_at,omitempty"`
	RefundedAt       *time.Time  `json:"refunded_at,omitempty"`
	LateFeeChargedAt *time.Time  `json:"late_fee_charged_at,omitempty"`
	RiskLevel        string      `json:"risk_level,omitempty"`
	RiskScore        float64     `json:"risk_score,omitempty"`
	NeedsAttention   bool        `json:"needs_attention,omitempty"`
	// Provider correlation ids, filled in as Stripe events arrive.
	ChargeID             string `json:"charge_id,omitempty"`
	BalanceTransactionID string `json:"balance_transaction_id,omitempty"`
	CustomerID           string `json:"customer_id,omitempty"`
	PaymentIntentID      string `json:"payment_intent_id,omitempty"`

	Items     []OrderItem `json:"items,omitempty"`
	CreatedOn time.Time   `json:"created_on"`
	UpdatedOn time.Time   `json:"updated_on"`
}

// Refunded reports whether the deposit refund has already been issued.
func (o *RentalOrder) Refunded() bool {
	return o.RefundedAt != nil
}

// LateFeeCharged reports whether a late fee was already charged for this order.
func (o *RentalOrder) LateFeeCharged() bool {
	return o.LateFeeChargedAt != nil
}

// Status returns the derived order-level status.
func (o *RentalOrder) Status() OrderStatus {
	return AggregateStatus(o.Items)
}

// AggregateStatus derives the order-level status from item states:
// "shipped" iff every item is shipped or refunded, "partial" iff at least one
// item is shipped or refunded but not all, "pending" otherwise.
func AggregateStatus(items []OrderItem) OrderStatus {
	if len(items) == 0 {
		return OrderStatusPending
	}
	done := 0
	for _, it := range items {
		if it.Status == ItemStatusShipped || it.Status == ItemStatusRefunded {
			done++
		}
	}
	switch done {
	case len(items):
		return OrderStatusShipped
	case 0:
		return OrderStatusPending
	default:
		return OrderStatusPartial
	}
}

// CanTransitionItem reports whether an item may move between the two states.
// Allowed: pending→shipped, pending→failed, failed→refunded, and any state
// may terminate in refunded.
func CanTransitionItem(from, to ItemStatus) bool {
	if to == ItemStatusRefunded {
		return from != ItemStatusRefunded
	}
	switch from {
	case ItemStatusPending:
		return to == ItemStatusShipped || to == ItemStatusFailed
	default:
		return false
	}
}
