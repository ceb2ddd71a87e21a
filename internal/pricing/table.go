package pricing

// FullDepositForfeiture is the sentinel damage-fee value meaning the whole
// deposit is forfeited for that damage type.
const FullDepositForfeiture int64 = -1

// DiscountTier is one duration-discount step. Tables are sorted ascending by
// MinDays; the tier with the greatest MinDays <= rental days applies.
type DiscountTier struct {
	MinDays int     `json:"min_days" yaml:"min_days"`
	Rate    float64 `json:"rate" yaml:"rate"`
}

// Coverage describes the damage-coverage product: damage types waived outright
// and the reduced waiver fee charged instead of full forfeiture when the
// customer bought coverage.
type Coverage struct {
	WaiverFeeCents int64    `json:"waiver_fee_cents" yaml:"waiver_fee_cents"`
	WaivedTypes    []string `json:"waived_types,omitempty" yaml:"waived_types,omitempty"`
}

// Table is the process-wide pricing table. Loaded once via Catalog and
// immutable thereafter. Money is minor units.
type Table struct {
	BaseDailyRateCents int64              `json:"base_daily_rate_cents" yaml:"base_daily_rate_cents"`
	DurationDiscounts  []DiscountTier     `json:"duration_discounts,omitempty" yaml:"duration_discounts,omitempty"`
	DamageFees         map[string]int64   `json:"damage_fees,omitempty" yaml:"damage_fees,omitempty"`
	Coverage           Coverage           `json:"coverage" yaml:"coverage"`
	Rates              map[string]float64 `json:"rates,omitempty" yaml:"rates,omitempty"` // currency conversion rates
}
