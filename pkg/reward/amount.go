// Package reward maps contribution category, impact level, and confidence
// into a reputation-token amount and an optional secondary-currency amount.
//
// All monetary math is exact: decimal strings are parsed into big.Rat,
// scaled, and truncated toward zero exactly once at the smallest-unit step.
// Converting through a float (int(amount * 1e6)) loses precision and is
// deliberately not implemented anywhere in this package.
package reward

import (
	"fmt"
	"math/big"
	"regexp"
)

// decimalPattern matches the accepted decimal string format.
var decimalPattern = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)

// Amount is a secondary-currency value in minor units.
type Amount struct {
	MinorUnits int64  `json:"minor_units"`
	Currency   string `json:"currency"`
	Scale      int    `json:"scale"` // minor units per whole: 10^Scale
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.MinorUnits == 0 }

// Decimal renders the amount as a decimal string at its scale.
func (a Amount) Decimal() string {
	if a.Scale == 0 {
		return fmt.Sprintf("%d", a.MinorUnits)
	}
	sign := ""
	v := a.MinorUnits
	if v < 0 {
		sign = "-"
		v = -v
	}
	digits := fmt.Sprintf("%d", v)
	for len(digits) <= a.Scale {
		digits = "0" + digits
	}
	cut := len(digits) - a.Scale
	return sign + digits[:cut] + "." + digits[cut:]
}

// String renders the amount with its currency code.
func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.Decimal(), a.Currency)
}

// ParseDecimal parses a decimal string into an exact rational.
func ParseDecimal(s string) (*big.Rat, error) {
	if !decimalPattern.MatchString(s) {
		return nil, fmt.Errorf("reward: invalid decimal %q", s)
	}
	rat, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("reward: could not parse decimal %q", s)
	}
	return rat, nil
}

// ScaleToMinor converts an exact rational to minor units at the given scale,
// truncating toward zero. This is the single truncation point of the
// package: "1.356000" at scale 6 is exactly 1356000.
func ScaleToMinor(rat *big.Rat, scale int) int64 {
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(factor))
	// Quo truncates toward zero for big.Int.
	return new(big.Int).Quo(scaled.Num(), scaled.Denom()).Int64()
}

// MinorFromDecimal parses a decimal string and scales it to minor units in
// one exact step.
func MinorFromDecimal(s string, scale int) (int64, error) {
	rat, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	return ScaleToMinor(rat, scale), nil
}
