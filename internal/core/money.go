// Package core provides money parsing and handling utilities.
//
// Amounts are whole units of a single currency (đồng has no minor unit), so
// Money is an integer. Decimal inputs are rounded when they are decoded.
package core

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a non-negative magnitude. The direction of the cash flow comes
// from the transaction Type, never from the sign.
type Money int64

var ErrInvalidAmount = errors.New("invalid amount")

const (
	// MaxAmount bounds a single amount: a quadrillion đồng.
	MaxAmount Money = 1_000_000_000_000_000

	// MaxTotal bounds any sum of amounts. Three saturated totals plus a
	// budget still fit in an int64, so balance arithmetic cannot wrap.
	MaxTotal Money = math.MaxInt64 / 4
)

var maxMoney = decimal.NewFromInt(int64(MaxAmount))

// ParseMoney converts a decimal string to a whole amount with half-up
// rounding. Both dot and comma are accepted as the decimal separator.
//
// Examples:
//
//	ParseMoney("30000")   -> 30000, nil
//	ParseMoney("1500.5")  -> 1501, nil
//	ParseMoney("-1")      -> 0, ErrInvalidAmount
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal rounds d to a whole unit and rejects negative values.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative value %s", ErrInvalidAmount, d.String())
	}
	r := d.Round(0)
	if r.GreaterThan(maxMoney) {
		return 0, fmt.Errorf("%w: out of range %s", ErrInvalidAmount, d.String())
	}
	return Money(r.IntPart()), nil
}

func (m Money) Validate() error {
	if m < 0 || m > MaxAmount {
		return ErrInvalidAmount
	}
	return nil
}

// Plus adds n to m, saturating at MaxTotal.
func (m Money) Plus(n Money) Money {
	if n > MaxTotal-m {
		return MaxTotal
	}
	return m + n
}

// Decimal returns m as a decimal for ratio computations.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m))
}

func (m Money) String() string {
	return decimal.NewFromInt(int64(m)).String()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts any JSON number (or numeric string) and rounds it to
// a whole unit.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		return fmt.Errorf("%w: null", ErrInvalidAmount)
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
