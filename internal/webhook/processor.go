package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"

	"rentalshop-backend/internal/domain"
	"rentalshop-backend/internal/logger"
	"rentalshop-backend/internal/repository"
)

// ErrMalformedEvent indicates an event payload that cannot be decoded or is
// missing its business key. Rejected before any side effect.
var ErrMalformedEvent = errors.New("webhook: malformed event payload")

// Processor applies provider events to the order store. Every handler
// tolerates redelivery: the provider guarantees at-least-once, so idempotency
// keys are always business keys (session id, payment-intent id), never the
// event id.
type Processor struct {
	orders        repository.OrderRepository
	subscriptions repository.SubscriptionStatusRepository
	now           func() time.Time
}

// NewProcessor wires the webhook processor.
func NewProcessor(orders repository.OrderRepository, subscriptions repository.SubscriptionStatusRepository) *Processor {
	return &Processor{
		orders:        orders,
		subscriptions: subscriptions,
		now:           time.Now,
	}
}

// WithClock overrides the processor's clock, for tests.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// Handle dispatches one verified provider event for a tenant.
func (p *Processor) Handle(ctx context.Context, shop string, event stripe.Event) error {
	kind := ParseEventKind(string(event.Type))
	switch kind {
	case KindCheckoutSessionCompleted:
		return p.handleSessionCompleted(ctx, shop, event)
	case KindChargeRefunded:
		return p.handleChargeRefunded(ctx, shop, event)
	case KindChargeSucceeded:
		return p.handleChargeSucceeded(ctx, shop, event)
	case KindSubscriptionChange:
		return p.handleSubscriptionChange(ctx, shop, event)
	case KindUnknown:
		logger.Debug("ignoring unhandled webhook event", "shop_id", shop, "type", event.Type)
		return nil
	default:
		return nil
	}
}

// handleSessionCompleted creates the order from session metadata. AddOrder is
// idempotent on (shop, sessionID) so redelivered events cannot duplicate it.
func (p *Processor) handleSessionCompleted(ctx context.Context, shop string, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if session.ID == "" {
		return fmt.Errorf("%w: session without id", ErrMalformedEvent)
	}

	deposit, err := metadataInt(session.Metadata, "deposit")
	if err != nil {
		return err
	}
	returnDate, err := metadataTime(session.Metadata, "return_date")
	if err != nil {
		return err
	}

	order := repository.NewOrder{
		SessionID:    session.ID,
		DepositCents: deposit,
		StartedAt:    p.now().UTC(),
		ReturnDate:   returnDate,
		Items:        itemsFromMetadata(session.Metadata),
	}
	if session.Customer != nil {
		order.CustomerID = session.Customer.ID
	}
	if session.PaymentIntent != nil {
		order.PaymentIntentID = session.PaymentIntent.ID
	}

	created, err := p.orders.AddOrder(ctx, shop, order)
	if err != nil {
		return fmt.Errorf("webhook: add order for session %s: %w", session.ID, err)
	}
	logger.Info("order recorded from checkout session", "shop_id", shop, "session_id", session.ID, "order_id", created.ID)
	return nil
}

// handleChargeRefunded resolves the originating order via the charge's
// payment-intent linkage and marks it refunded. Already-refunded orders and
// charges that resolve nowhere in this tenant are no-ops.
func (p *Processor) handleChargeRefunded(ctx context.Context, shop string, event stripe.Event) error {
	charge, err := decodeCharge(event)
	if err != nil {
		return err
	}
	intentID := chargePaymentIntentID(charge)
	if intentID == "" {
		// Invoice-originated charges carry no payment intent and never map
		// to a rental order. Acknowledge so the provider stops redelivering.
		logger.Debug("ignoring refunded charge without payment intent", "shop_id", shop, "charge_id", charge.ID)
		return nil
	}

	order, err := p.orders.GetByPaymentIntentID(ctx, shop, intentID)
	if errors.Is(err, repository.ErrNotFound) {
		// The charge may belong to another tenant; never leak across.
		return nil
	}
	if err != nil {
		return err
	}

	applied, err := p.orders.MarkRefunded(ctx, shop, order.SessionID, p.now().UTC())
	if err != nil {
		return err
	}
	if applied {
		logger.Info("order marked refunded from charge event", "shop_id", shop, "session_id", order.SessionID, "charge_id", charge.ID)
	}
	return nil
}

// handleChargeSucceeded persists risk signals and reconciliation ids onto the
// order matched by payment intent. No match is a silent no-op: the order may
// not exist yet, or the charge belongs elsewhere.
func (p *Processor) handleChargeSucceeded(ctx context.Context, shop string, event stripe.Event) error {
	charge, err := decodeCharge(event)
	if err != nil {
		return err
	}
	intentID := chargePaymentIntentID(charge)
	if intentID == "" {
		return nil
	}

	upd := repository.RiskUpdate{ChargeID: charge.ID}
	if charge.Outcome != nil {
		upd.RiskLevel = string(charge.Outcome.RiskLevel)
		upd.RiskScore = float64(charge.Outcome.RiskScore)
	}
	if charge.BalanceTransaction != nil {
		upd.BalanceTransactionID = charge.BalanceTransaction.ID
	}
	if charge.Customer != nil {
		upd.CustomerID = charge.Customer.ID
	}

	matched, err := p.orders.UpdateRisk(ctx, shop, intentID, upd)
	if err != nil {
		return err
	}
	if matched {
		logger.Debug("risk signals recorded", "shop_id", shop, "charge_id", charge.ID, "risk_level", upd.RiskLevel)
	}
	return nil
}

func (p *Processor) handleSubscriptionChange(ctx context.Context, shop string, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if sub.ID == "" {
		return fmt.Errorf("%w: subscription without id", ErrMalformedEvent)
	}
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	return p.subscriptions.UpsertStatus(ctx, shop, customerID, sub.ID, string(sub.Status))
}

func decodeCharge(event stripe.Event) (*stripe.Charge, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if charge.ID == "" {
		return nil, fmt.Errorf("%w: charge without id", ErrMalformedEvent)
	}
	return &charge, nil
}

func chargePaymentIntentID(charge *stripe.Charge) string {
	if charge.PaymentIntent != nil {
		return charge.PaymentIntent.ID
	}
	return ""
}

// metadataInt reads a required integer metadata key. Checkout always writes
// these keys, so an absent one means the event did not come from our session
// builder and must not create an order.
func metadataInt(metadata map[string]string, key string) (int64, error) {
	raw, ok := metadata[key]
	if !ok || raw == "" {
		return 0, fmt.Errorf("%w: metadata missing %s", ErrMalformedEvent, key)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: metadata %s=%q", ErrMalformedEvent, key, raw)
	}
	return v, nil
}

// metadataTime reads a required RFC3339 metadata key. A zero time would make
// every downstream overdue computation bill from year 1, so it is rejected
// here along with absent and unparseable values.
func metadataTime(metadata map[string]string, key string) (time.Time, error) {
	raw, ok := metadata[key]
	if !ok || raw == "" {
		return time.Time{}, fmt.Errorf("%w: metadata missing %s", ErrMalformedEvent, key)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: metadata %s=%q", ErrMalformedEvent, key, raw)
	}
	if t.IsZero() {
		return time.Time{}, fmt.Errorf("%w: metadata %s is zero", ErrMalformedEvent, key)
	}
	return t, nil
}

// itemsFromMetadata rebuilds order items from the checkout metadata, one
// item per sku entry with the aligned kind.
func itemsFromMetadata(metadata map[string]string) []domain.OrderItem {
	raw := metadata["skus"]
	if raw == "" {
		return nil
	}
	skus := strings.Split(raw, ",")
	kinds := strings.Split(metadata["kinds"], ",")
	items := make([]domain.OrderItem, 0, len(skus))
	for i, sku := range skus {
		kind := domain.ItemKindRental
		if i < len(kinds) && kinds[i] == string(domain.ItemKindSale) {
			kind = domain.ItemKindSale
		}
		items = append(items, domain.OrderItem{
			SKU:    sku,
			Kind:   kind,
			Status: domain.ItemStatusPending,
		})
	}
	return items
}
