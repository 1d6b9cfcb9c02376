package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const centPrecision int32 = 2 // amounts are kept to the cent

// ErrInvalid is returned when input is not a finite positive amount.
var ErrInvalid = errors.New("amount must be a finite positive number")

// MinIncrement is the fixed amount a new bid must add to the current top bid.
var MinIncrement = decimal.NewFromInt(1)

// Parse converts raw bidder input into a cent-precision amount.
// Empty input, NaN, infinities, values finer than a cent, and values of zero
// or below are rejected. Trailing zeros past the cent are fine.
func Parse(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrInvalid
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	if !d.Equal(d.Round(centPrecision)) {
		return 0, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalid, raw)
	}
	if !d.IsPositive() {
		return 0, ErrInvalid
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, ErrInvalid
	}
	return f, nil
}

// MinimumNextBid returns the smallest amount that beats top under the increment rule.
func MinimumNextBid(top float64) float64 {
	return decimal.NewFromFloat(top).Round(centPrecision).Add(MinIncrement).InexactFloat64()
}

// MeetsIncrement reports whether amount is at least top plus the minimum increment.
// Comparison is done in decimal so 10.1 + 1 == 11.1 holds.
func MeetsIncrement(amount, top float64) bool {
	min := decimal.NewFromFloat(top).Round(centPrecision).Add(MinIncrement)
	return decimal.NewFromFloat(amount).Round(centPrecision).GreaterThanOrEqual(min)
}

// Format renders an amount for display, e.g. "$11.00".
func Format(amount float64) string {
	return "$" + decimal.NewFromFloat(amount).StringFixed(centPrecision)
}
