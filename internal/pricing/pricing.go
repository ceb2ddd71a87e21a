package pricing

import (
	"fmt"
	"math"
)

// ErrNoConversionRate is returned when the rate table has no entry for the
// requested currency. Missing rates are a configuration error and are never
// silently defaulted for money math.
var ErrNoConversionRate = fmt.Errorf("pricing: no conversion rate")

// ApplyDurationDiscount applies the duration-discount tier to a base total.
// Tiers are sorted ascending by MinDays; the tier with the greatest
// MinDays <= days wins, and equal MinDays means the last one in the table
// wins. With no matching tier the base total is returned unchanged.
func ApplyDurationDiscount(baseTotalCents int64, days int, tiers []DiscountTier) int64 {
	rate := 1.0
	for _, tier := range tiers {
		if tier.MinDays <= days {
			rate = tier.Rate
		}
	}
	return RoundCents(float64(baseTotalCents) * rate)
}

// ConvertCurrency converts an amount into the target currency using the rate
// table, rounding to whole minor units.
func ConvertCurrency(amountCents int64, target string, rates map[string]float64) (int64, error) {
	rate, ok := rates[target]
	if !ok {
		return 0, fmt.Errorf("%w for %q", ErrNoConversionRate, target)
	}
	return RoundCents(float64(amountCents) * rate), nil
}

// ComputeDamageFee computes the fee deducted from the deposit for a damage
// type. An empty damage type costs nothing. A waived type costs nothing
// regardless of coverage (the waiver takes precedence). A type configured as
// full deposit forfeiture, or absent from the fee table, costs the whole
// deposit unless the customer has coverage, in which case the coverage waiver
// fee applies instead. Any other type costs its fixed configured fee.
func ComputeDamageFee(damageType string, depositCents int64, table *Table, waivedTypes []string, hasCoverage bool) int64 {
	if damageType == "" {
		return 0
	}
	for _, w := range waivedTypes {
		if w == damageType {
			return 0
		}
	}
	fee, ok := table.DamageFees[damageType]
	if !ok {
		fee = FullDepositForfeiture
	}
	if fee == FullDepositForfeiture {
		if hasCoverage {
			return table.Coverage.WaiverFeeCents
		}
		return depositCents
	}
	return fee
}

// RoundCents rounds a fractional minor-unit amount half away from zero.
func RoundCents(v float64) int64 {
	return int64(math.Round(v))
}
