package domain

type ShopType string

const (
	ShopTypeRental ShopType = "rental"
	ShopTypeSale   ShopType = "sale"
)

// LateFeePolicy configures the late-fee reconciliation service for one shop.
type LateFeePolicy struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	AmountCents int64  `json:"amount_cents" yaml:"amount_cents"` // per overdue day
	Interval    string `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// DepositReleasePolicy configures deposit refunds for one shop.
type DepositReleasePolicy struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// ShopSettings is the per-tenant configuration read by checkout and both
// reconciliation services. Read-mostly; cached per read by callers.
type ShopSettings struct {
	Shop           string               `json:"shop" yaml:"shop"`
	Type           ShopType             `json:"type" yaml:"type"`
	Currency       string               `json:"currency" yaml:"currency"`
	TaxRates       map[string]float64   `json:"tax_rates,omitempty" yaml:"tax_rates,omitempty"` // region -> rate
	Coupons        map[string]float64   `json:"coupons,omitempty" yaml:"coupons,omitempty"`     // code -> fraction off
	LateFee        LateFeePolicy        `json:"late_fee" yaml:"late_fee"`
	DepositRelease DepositReleasePolicy `json:"deposit_release" yaml:"deposit_release"`
	Currencies     []string             `json:"currencies,omitempty" yaml:"currencies,omitempty"`
	Languages      []string             `json:"languages,omitempty" yaml:"languages,omitempty"`
	Features       map[string]bool      `json:"features,omitempty" yaml:"features,omitempty"`
}

// TaxRate returns the tax rate for a region, 0 when the region is unknown.
func (s *ShopSettings) TaxRate(region string) float64 {
	if s.TaxRates == nil {
		return 0
	}
	return s.TaxRates[region]
}

// CouponRate returns the fraction-off for a coupon code and whether the code
// exists. Unknown codes are not an error; checkout proceeds without discount.
func (s *ShopSettings) CouponRate(code string) (float64, bool) {
	if code == "" || s.Coupons == nil {
		return 0, false
	}
	rate, ok := s.Coupons[code]
	return rate, ok
}
