package intel

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Amount wraps decimal.Decimal for quoted prices.
// JSON marshaling outputs a float64 number so the prompt block stays numeric,
// while comparisons and rounding use decimal arithmetic.
type Amount struct {
	decimal.Decimal
}

// MarshalJSON outputs as a JSON number (not a string).
func (a Amount) MarshalJSON() ([]byte, error) {
	f, _ := a.Round(4).Float64()
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

// NewAmount creates an Amount from a float64.
func NewAmount(f float64) Amount {
	return Amount{decimal.NewFromFloat(f)}
}

// amountPtr converts an optional upstream float into an optional Amount.
// Non-finite values are treated as missing.
func amountPtr(v *float64) *Amount {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	a := NewAmount(*v)
	return &a
}
