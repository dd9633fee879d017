package domain

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// amountContext bounds precision for every Amount operation. 34 digits is the
// IEEE 754 decimal128 precision and far exceeds any spreadsheet measure.
var amountContext = apd.BaseContext.WithPrecision(34)

// Amount is an exact decimal measure. Sums of Amounts do not depend on the
// order in which they are added.
type Amount struct {
	value apd.Decimal
}

// ZeroAmount returns an Amount equal to zero.
func ZeroAmount() Amount {
	return Amount{}
}

// AmountFromInt64 converts an integer measure.
func AmountFromInt64(i int64) Amount {
	var d apd.Decimal
	d.SetInt64(i)
	return Amount{value: d}
}

// AmountFromFloat64 converts a floating point measure using its shortest
// decimal representation.
func AmountFromFloat64(f float64) (Amount, error) {
	var d apd.Decimal
	if _, err := d.SetFloat64(f); err != nil {
		return Amount{}, fmt.Errorf("invalid amount %v: %w", f, err)
	}
	return Amount{value: d}, nil
}

// ParseAmount parses a decimal string such as "1500000" or "2.5E+3".
func ParseAmount(s string) (Amount, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Amount{}, fmt.Errorf("invalid amount %q: not a finite number", s)
	}
	return Amount{value: d}, nil
}

// Add returns the sum of a and other.
func (a Amount) Add(other Amount) Amount {
	var result apd.Decimal
	amountContext.Add(&result, &a.value, &other.value)
	return Amount{value: result}
}

// DivInt returns a divided by divisor. It is used for unit conversion.
func (a Amount) DivInt(divisor int64) Amount {
	var d, result apd.Decimal
	d.SetInt64(divisor)
	amountContext.Quo(&result, &a.value, &d)
	result.Reduce(&result)
	return Amount{value: result}
}

// Cmp compares a and other and returns -1, 0 or +1.
func (a Amount) Cmp(other Amount) int {
	return a.value.Cmp(&other.value)
}

func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

// Float64 returns the nearest float64. Precision loss only affects display.
func (a Amount) Float64() float64 {
	f, err := a.value.Float64()
	if err != nil {
		return 0
	}
	return f
}

// String renders the amount in plain (non-exponent) notation.
func (a Amount) String() string {
	return a.value.Text('f')
}

// MarshalJSON encodes the amount as a JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
