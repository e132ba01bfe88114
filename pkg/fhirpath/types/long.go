package types

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// TypeNameLong is the FHIRPath type name for 64-bit integer values,
// written as a numeric literal with a trailing L (e.g. 100L).
const TypeNameLong = "Long"

// Long represents a FHIRPath long (64-bit integer) value. It sits between
// Integer and Decimal in the implicit conversion lattice: any Integer
// converts to Long, and any Long converts to Decimal.
type Long struct {
	value int64
}

// NewLong parses a long literal's digits; a trailing "L" is not accepted and
// is stripped by the caller before the call.
func NewLong(s string) (Long, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Long{}, fmt.Errorf("invalid long: %s", s)
	}
	return Long{value: v}, nil
}

// NewLongFromInt64 creates a Long from an int64.
func NewLongFromInt64(v int64) Long {
	return Long{value: v}
}

// Value returns the underlying int64 value.
func (l Long) Value() int64 {
	return l.value
}

// Type returns "Long".
func (l Long) Type() string {
	return TypeNameLong
}

// Equal returns true if other is numerically equal as a Long, Integer or Decimal.
func (l Long) Equal(other Value) bool {
	switch o := other.(type) {
	case Long:
		return l.value == o.value
	case Integer:
		return l.value == o.Value()
	case Decimal:
		return l.ToDecimal().Equal(o)
	}
	return false
}

// Equivalent is the same as Equal for longs.
func (l Long) Equivalent(other Value) bool {
	return l.Equal(other)
}

// String returns the decimal string representation (without the L suffix).
func (l Long) String() string {
	return fmt.Sprintf("%d", l.value)
}

// IsEmpty returns false for long values.
func (l Long) IsEmpty() bool {
	return false
}

// ToDecimal converts the long to a Decimal.
func (l Long) ToDecimal() Decimal {
	return Decimal{value: decimal.NewFromInt(l.value)}
}

// ToInteger converts to Integer if the value fits in the Integer range.
func (l Long) ToInteger() (Integer, bool) {
	const int32Max = int64(1)<<31 - 1
	const int32Min = -(int64(1) << 31)
	if l.value > int32Max || l.value < int32Min {
		return Integer{}, false
	}
	return NewInteger(l.value), true
}

// Compare compares two numeric values.
func (l Long) Compare(other Value) (int, error) {
	switch o := other.(type) {
	case Long:
		switch {
		case l.value < o.value:
			return -1, nil
		case l.value > o.value:
			return 1, nil
		default:
			return 0, nil
		}
	case Integer:
		switch {
		case l.value < o.Value():
			return -1, nil
		case l.value > o.Value():
			return 1, nil
		default:
			return 0, nil
		}
	case Decimal:
		return l.ToDecimal().Compare(o)
	}
	return 0, NewTypeError(TypeNameLong, other.Type(), "comparison")
}

// Add returns the sum of two longs.
func (l Long) Add(other Long) Long {
	return NewLongFromInt64(l.value + other.value)
}

// Subtract returns the difference of two longs.
func (l Long) Subtract(other Long) Long {
	return NewLongFromInt64(l.value - other.value)
}

// Multiply returns the product of two longs.
func (l Long) Multiply(other Long) Long {
	return NewLongFromInt64(l.value * other.value)
}

// Divide returns the result of division as a Decimal.
func (l Long) Divide(other Long) (Decimal, error) {
	if other.value == 0 {
		return Decimal{}, ErrDivideByZero
	}
	return l.ToDecimal().Divide(other.ToDecimal())
}

// Div returns the integer division result.
func (l Long) Div(other Long) (Long, error) {
	if other.value == 0 {
		return Long{}, ErrDivideByZero
	}
	return NewLongFromInt64(l.value / other.value), nil
}

// Mod returns the modulo result.
func (l Long) Mod(other Long) (Long, error) {
	if other.value == 0 {
		return Long{}, ErrDivideByZero
	}
	return NewLongFromInt64(l.value % other.value), nil
}

// Negate returns the negation of the long.
func (l Long) Negate() Long {
	return NewLongFromInt64(-l.value)
}

// Abs returns the absolute value.
func (l Long) Abs() Long {
	if l.value < 0 {
		return NewLongFromInt64(-l.value)
	}
	return l
}
