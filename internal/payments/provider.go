package payments

import "context"

// LineItem is one priced line of a checkout session, money in minor units of
// the session currency. Deposit and tax travel as pseudo-line-items.
type LineItem struct {
	Name            string
	SKU             string
	Description     string
	Quantity        int64
	UnitAmountCents int64
}

// CheckoutSessionRequest describes the provider session to create for a cart.
type CheckoutSessionRequest struct {
	Shop           string
	Currency       string
	SuccessURL     string
	CancelURL      string
	CustomerID     string
	IdempotencyKey string
	Metadata       map[string]string
	Items          []LineItem
}

// CheckoutSession is the created provider session.
type CheckoutSession struct {
	SessionID       string
	ClientSecret    string
	PaymentIntentID string
}

// SessionDetails is the live view of an existing session, used by the
// deposit-release service to resolve the payment intent to refund against.
type SessionDetails struct {
	SessionID           string
	PaymentIntentID     string
	PaymentIntentStatus string
	CustomerID          string
}

// RefundRequest asks the provider to refund part of a payment intent.
type RefundRequest struct {
	PaymentIntentID string
	AmountCents     int64
	Reason          string
	Metadata        map[string]string
}

// Refund is the provider's record of an issued refund.
type Refund struct {
	RefundID    string
	AmountCents int64
}

// OffSessionChargeRequest charges a saved customer without interaction,
// used for late fees.
type OffSessionChargeRequest struct {
	CustomerID  string
	AmountCents int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// OffSessionCharge is the provider's record of an off-session charge.
type OffSessionCharge struct {
	PaymentIntentID string
	Status          string
}

// Provider is the opaque payment-provider surface this core consumes. Calls
// are blocking with no built-in retry; scheduler callers log failures and
// rely on the next tick.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (SessionDetails, error)
	CreateRefund(ctx context.Context, req RefundRequest) (Refund, error)
	ChargeOffSession(ctx context.Context, req OffSessionChargeRequest) (OffSessionCharge, error)
}
