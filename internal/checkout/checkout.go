package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"rentalshop-backend/internal/analytics"
	"rentalshop-backend/internal/domain"
	"rentalshop-backend/internal/payments"
	"rentalshop-backend/internal/pricing"
	"rentalshop-backend/internal/repository"
)

var (
	// ErrInvalidReturnDate indicates a zero or past return date. Rejected
	// before any side effect.
	ErrInvalidReturnDate = errors.New("checkout: invalid return date")
	// ErrEmptyCart indicates a cart with no lines.
	ErrEmptyCart = errors.New("checkout: empty cart")
)

// Request carries everything needed to build a provider checkout session.
type Request struct {
	Shop       string            `json:"shop"`
	Cart       []domain.CartLine `json:"cart"`
	ReturnDate time.Time         `json:"return_date"`
	Coupon     string            `json:"coupon,omitempty"`
	Currency   string            `json:"currency,omitempty"`
	TaxRegion  string            `json:"tax_region,omitempty"`
	CustomerID string            `json:"customer_id,omitempty"`
	ClientIP   string            `json:"client_ip,omitempty"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
}

// Session is returned to the storefront so it can hand the customer to the
// provider's payment page.
type Session struct {
	SessionID    string `json:"sessionId"`
	ClientSecret string `json:"clientSecret"`
}

// Builder turns a cart plus tenant settings into a provider checkout
// session. It creates no order: orders exist only once the provider confirms
// payment through the webhook, so abandoned sessions leave nothing behind.
type Builder struct {
	settings repository.SettingsRepository
	catalog  *pricing.Catalog
	provider payments.Provider
	sink     analytics.Sink
	now      func() time.Time
}

// NewBuilder wires the checkout session builder.
func NewBuilder(settings repository.SettingsRepository, catalog *pricing.Catalog, provider payments.Provider, sink analytics.Sink) *Builder {
	return &Builder{
		settings: settings,
		catalog:  catalog,
		provider: provider,
		sink:     sink,
		now:      time.Now,
	}
}

// WithClock overrides the builder's clock, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// CreateCheckoutSession prices the cart, builds the provider session and
// emits exactly one analytics event.
func (b *Builder) CreateCheckoutSession(ctx context.Context, req Request) (Session, error) {
	if len(req.Cart) == 0 {
		return Session{}, ErrEmptyCart
	}
	days, err := rentalDays(b.now(), req.ReturnDate)
	if err != nil {
		return Session{}, err
	}

	settings, err := b.settings.GetShopSettings(ctx, req.Shop)
	if err != nil {
		return Session{}, fmt.Errorf("checkout: load settings for %s: %w", req.Shop, err)
	}
	table, err := b.catalog.Table()
	if err != nil {
		return Session{}, err
	}

	currency := req.Currency
	if currency == "" {
		currency = settings.Currency
	}
	convert := func(amount int64) (int64, error) {
		if strings.EqualFold(currency, settings.Currency) {
			return amount, nil
		}
		return pricing.ConvertCurrency(amount, currency, table.Rates)
	}

	// Unknown coupon codes are not an error; checkout proceeds undiscounted.
	couponRate, couponKnown := settings.CouponRate(req.Coupon)

	// The metadata amounts are derived from the exact per-unit amounts the
	// provider will charge, so the line-item sum always equals the metadata
	// total. The coupon discount absorbs any per-unit rounding.
	var subtotalConv, chargedGoods, depositTotal int64
	items := make([]payments.LineItem, 0, len(req.Cart)+2)
	var skus, kinds, sizes []string
	for _, line := range req.Cart {
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		depositTotal += line.DepositCents * qty

		base := pricing.ApplyDurationDiscount(line.DailyPriceCents*int64(days), days, table.DurationDiscounts)
		preUnit, err := convert(base)
		if err != nil {
			return Session{}, err
		}
		unit, err := convert(pricing.RoundCents(float64(base) * (1 - couponRate)))
		if err != nil {
			return Session{}, err
		}
		subtotalConv += preUnit * qty
		chargedGoods += unit * qty
		items = append(items, payments.LineItem{
			Name:            line.SKU,
			SKU:             line.SKU,
			Description:     lineDescription(line, days),
			Quantity:        qty,
			UnitAmountCents: unit,
		})
		kind := line.Kind
		if kind == "" {
			kind = domain.ItemKindRental
		}
		for i := int64(0); i < qty; i++ {
			skus = append(skus, line.SKU)
			kinds = append(kinds, string(kind))
		}
		if line.Size != "" {
			sizes = append(sizes, line.Size)
		}
	}

	discountConv := subtotalConv - chargedGoods
	taxConv := pricing.RoundCents(float64(chargedGoods) * settings.TaxRate(req.TaxRegion))
	depositConv, err := convert(depositTotal)
	if err != nil {
		return Session{}, err
	}
	total := chargedGoods + taxConv + depositConv

	if depositConv > 0 {
		items = append(items, payments.LineItem{
			Name:            "Deposit",
			Description:     "Refundable security deposit",
			Quantity:        1,
			UnitAmountCents: depositConv,
		})
	}
	if taxConv > 0 {
		items = append(items, payments.LineItem{
			Name:            "Tax",
			Quantity:        1,
			UnitAmountCents: taxConv,
		})
	}

	metadata := map[string]string{
		"shop":        req.Shop,
		"days":        strconv.Itoa(days),
		"deposit":     strconv.FormatInt(depositConv, 10),
		"subtotal":    strconv.FormatInt(subtotalConv, 10),
		"discount":    strconv.FormatInt(discountConv, 10),
		"tax":         strconv.FormatInt(taxConv, 10),
		"total":       strconv.FormatInt(total, 10),
		"currency":    currency,
		"return_date": req.ReturnDate.UTC().Format(time.RFC3339),
		"skus":        strings.Join(skus, ","),
		"kinds":       strings.Join(kinds, ","),
	}
	if couponKnown {
		metadata["coupon"] = req.Coupon
	}
	// Optional keys are omitted entirely rather than sent as empty strings.
	if req.ClientIP != "" {
		metadata["client_ip"] = req.ClientIP
	}
	if len(sizes) > 0 {
		metadata["sizes"] = strings.Join(sizes, ",")
	}

	session, err := b.provider.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		Shop:       req.Shop,
		Currency:   currency,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		CustomerID: req.CustomerID,
		Metadata:   metadata,
		Items:      items,
	})
	if err != nil {
		return Session{}, err
	}

	b.sink.TrackEvent(req.Shop, "checkout_session_created", map[string]string{
		"session_id": session.SessionID,
		"total":      strconv.FormatInt(total, 10),
		"currency":   currency,
	})

	return Session{SessionID: session.SessionID, ClientSecret: session.ClientSecret}, nil
}

// rentalDays computes whole rental days from now until the return date,
// rounding partial days up. Zero or past return dates are invalid.
func rentalDays(now, returnDate time.Time) (int, error) {
	if returnDate.IsZero() || !returnDate.After(now) {
		return 0, ErrInvalidReturnDate
	}
	days := int(math.Ceil(returnDate.Sub(now).Hours() / 24))
	if days < 1 {
		days = 1
	}
	return days, nil
}

func lineDescription(line domain.CartLine, days int) string {
	if line.Kind == domain.ItemKindSale {
		return "Purchase"
	}
	desc := fmt.Sprintf("%d-day rental", days)
	if line.Size != "" {
		desc += ", size " + line.Size
	}
	return desc
}
