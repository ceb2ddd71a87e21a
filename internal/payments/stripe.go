package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"rentalshop-backend/internal/logger"
)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
	intents  stripeIntentAPI
	refunds  stripeRefundAPI
}

// StripeProvider implements Provider over the Stripe API.
type StripeProvider struct {
	api stripeClients
}

// NewStripeProvider constructs the Stripe-backed provider.
func NewStripeProvider(apiKey string) (*StripeProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("stripe: api key is required")
	}
	sc := client.New(apiKey, nil)
	return &StripeProvider{
		api: stripeClients{
			sessions: sc.CheckoutSessions,
			intents:  sc.PaymentIntents,
			refunds:  sc.Refunds,
		},
	}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		Currency:   stripe.String(strings.ToLower(req.Currency)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: make(map[string]string, len(req.Metadata)),
		}
		for k, v := range req.Metadata {
			params.PaymentIntentData.Metadata[k] = v
		}
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		line := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(qty),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(item.UnitAmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		}
		if item.Description != "" {
			line.PriceData.ProductData.Description = stripe.String(item.Description)
		}
		if item.SKU != "" {
			line.PriceData.ProductData.Metadata = map[string]string{"sku": item.SKU}
		}
		lineItems = append(lineItems, line)
	}
	params.LineItems = lineItems

	session, err := p.api.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	intentID := ""
	if session.PaymentIntent != nil {
		intentID = session.PaymentIntent.ID
	}
	logger.Debug("stripe checkout session created", "shop_id", req.Shop, "session_id", session.ID, "payment_intent", intentID)

	return CheckoutSession{
		SessionID:       session.ID,
		ClientSecret:    session.ClientSecret,
		PaymentIntentID: intentID,
	}, nil
}

func (p *StripeProvider) RetrieveSession(ctx context.Context, sessionID string) (SessionDetails, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	session, err := p.api.sessions.Get(sessionID, params)
	if err != nil {
		return SessionDetails{}, fmt.Errorf("stripe: retrieve session %s: %w", sessionID, err)
	}

	details := SessionDetails{SessionID: session.ID}
	if session.PaymentIntent != nil {
		details.PaymentIntentID = session.PaymentIntent.ID
		details.PaymentIntentStatus = string(session.PaymentIntent.Status)
	}
	if session.Customer != nil {
		details.CustomerID = session.Customer.ID
	}
	return details, nil
}

func (p *StripeProvider) CreateRefund(ctx context.Context, req RefundRequest) (Refund, error) {
	if req.PaymentIntentID == "" {
		return Refund{}, errors.New("stripe: refund requires a payment intent")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Amount:        stripe.Int64(req.AmountCents),
	}
	params.Context = ctx
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = req.Metadata
	}

	refund, err := p.api.refunds.New(params)
	if err != nil {
		return Refund{}, fmt.Errorf("stripe: create refund: %w", err)
	}
	return Refund{RefundID: refund.ID, AmountCents: refund.Amount}, nil
}

func (p *StripeProvider) ChargeOffSession(ctx context.Context, req OffSessionChargeRequest) (OffSessionCharge, error) {
	if req.CustomerID == "" {
		return OffSessionCharge{}, errors.New("stripe: off-session charge requires a customer")
	}
	params := &stripe.PaymentIntentParams{
		Amount:     stripe.Int64(req.AmountCents),
		Currency:   stripe.String(strings.ToLower(req.Currency)),
		Customer:   stripe.String(req.CustomerID),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = req.Metadata
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return OffSessionCharge{}, fmt.Errorf("stripe: off-session charge: %w", err)
	}
	return OffSessionCharge{PaymentIntentID: intent.ID, Status: string(intent.Status)}, nil
}
