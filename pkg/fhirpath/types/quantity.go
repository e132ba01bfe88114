package types

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/robertoaraneda/gofhir/pkg/ucum"
)

// Quantity represents a FHIRPath quantity value with a numeric value and unit.
type Quantity struct {
	value decimal.Decimal
	unit  string
}

// Quantity regex pattern: number followed by optional unit
var quantityPattern = regexp.MustCompile(`^([+-]?\d+\.?\d*)\s*(?:'([^']+)'|(\S+))?$`)

// NewQuantity creates a Quantity from a string.
func NewQuantity(s string) (Quantity, error) {
	matches := quantityPattern.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return Quantity{}, fmt.Errorf("invalid quantity format: %s", s)
	}

	val, err := decimal.NewFromString(matches[1])
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity value: %s", matches[1])
	}

	unit := ""
	if matches[2] != "" {
		unit = matches[2] // Quoted unit
	} else if matches[3] != "" {
		unit = matches[3] // Unquoted unit
	}

	return Quantity{value: val, unit: unit}, nil
}

// NewQuantityFromDecimal creates a Quantity from a decimal value and unit.
func NewQuantityFromDecimal(value decimal.Decimal, unit string) Quantity {
	return Quantity{value: value, unit: unit}
}

// Type returns the type name.
func (q Quantity) Type() string {
	return "Quantity"
}

// Equal checks equality with another value, comparing values directly when
// units match and falling back to canonical (base-unit) comparison
// otherwise. It reports false both when the canonical forms differ and when
// they're incomparable (different dimension) — callers needing the
// FHIRPath three-valued distinction between "decidably unequal" and
// "comparison undecidable" should use Compare instead, which signals the
// latter via ErrAmbiguousComparison.
func (q Quantity) Equal(other Value) bool {
	o, ok := other.(Quantity)
	if !ok {
		return false
	}

	if q.unit == o.unit || q.unit == "" || o.unit == "" {
		return q.value.Equal(o.value)
	}

	cmp, err := q.Compare(o)
	if err != nil {
		return false
	}
	return cmp == 0
}

// Equivalent checks equivalence with another value. As with Equal, "~" does
// not distinguish incomparable units from unequal ones: both count as false.
func (q Quantity) Equivalent(other Value) bool {
	o, ok := other.(Quantity)
	if !ok {
		return false
	}

	if q.unit == "" || o.unit == "" {
		return q.value.Equal(o.value)
	}
	if strings.EqualFold(q.unit, o.unit) {
		return q.value.Equal(o.value)
	}

	// For ~ every calendar keyword (year and month included) stands in for
	// its definite-duration UCUM code.
	val1, code1, err1 := ucum.Canonicalize(q.value, ucum.DefiniteDurationUnit(q.unit))
	val2, code2, err2 := ucum.Canonicalize(o.value, ucum.DefiniteDurationUnit(o.unit))
	if err1 != nil || err2 != nil || code1 != code2 {
		return false
	}
	return val1.Equal(val2)
}

// String returns the string representation.
func (q Quantity) String() string {
	if q.unit == "" {
		return q.value.String()
	}
	// Use quotes if unit contains spaces
	if strings.Contains(q.unit, " ") {
		return fmt.Sprintf("%s '%s'", q.value.String(), q.unit)
	}
	return fmt.Sprintf("%s %s", q.value.String(), q.unit)
}

// IsEmpty returns false for Quantity.
func (q Quantity) IsEmpty() bool {
	return false
}

// Value returns the numeric value.
func (q Quantity) Value() decimal.Decimal {
	return q.value
}

// Unit returns the unit string.
func (q Quantity) Unit() string {
	return q.unit
}

// Compare compares two quantities.
// Returns -1, 0, or 1 if units are compatible, or ErrAmbiguousComparison if
// their canonical (base-unit) forms don't match. Implements the Comparable
// interface.
func (q Quantity) Compare(other Value) (int, error) {
	otherQ, ok := other.(Quantity)
	if !ok {
		return 0, fmt.Errorf("cannot compare Quantity with %s", other.Type())
	}

	// If units are the same (or one is empty), compare directly
	if q.unit == otherQ.unit || q.unit == "" || otherQ.unit == "" {
		return q.value.Cmp(otherQ.value), nil
	}

	// Week-and-below calendar keywords stand in for their definite UCUM
	// codes under strict comparison; year and month stay as-is, so a
	// calendar year against 'a' comes out undecidable rather than equal.
	u1, u2 := q.unit, otherQ.unit
	if ucum.CalendarUnitsEqualComparable(u1) {
		u1 = ucum.DefiniteDurationUnit(u1)
	}
	if ucum.CalendarUnitsEqualComparable(u2) {
		u2 = ucum.DefiniteDurationUnit(u2)
	}

	// Different units: reduce both to their compositional base-unit form
	// (kg.m, not a flat lookup) and compare only if the reduced unit
	// multisets match.
	val1, code1, err := ucum.Canonicalize(q.value, u1)
	if err != nil {
		return 0, ErrAmbiguousComparison
	}
	val2, code2, err := ucum.Canonicalize(otherQ.value, u2)
	if err != nil {
		return 0, ErrAmbiguousComparison
	}
	if code1 != code2 {
		return 0, ErrAmbiguousComparison
	}

	return val1.Cmp(val2), nil
}

// Add adds two quantities.
func (q Quantity) Add(other Quantity) (Quantity, error) {
	if q.unit != other.unit && q.unit != "" && other.unit != "" {
		return Quantity{}, fmt.Errorf("incompatible units: %s and %s", q.unit, other.unit)
	}
	unit := q.unit
	if unit == "" {
		unit = other.unit
	}
	return Quantity{value: q.value.Add(other.value), unit: unit}, nil
}

// Subtract subtracts two quantities.
func (q Quantity) Subtract(other Quantity) (Quantity, error) {
	if q.unit != other.unit && q.unit != "" && other.unit != "" {
		return Quantity{}, fmt.Errorf("incompatible units: %s and %s", q.unit, other.unit)
	}
	unit := q.unit
	if unit == "" {
		unit = other.unit
	}
	return Quantity{value: q.value.Sub(other.value), unit: unit}, nil
}

// Multiply multiplies the quantity by a number.
func (q Quantity) Multiply(factor decimal.Decimal) Quantity {
	return Quantity{value: q.value.Mul(factor), unit: q.unit}
}

// Divide divides the quantity by a number.
func (q Quantity) Divide(divisor decimal.Decimal) (Quantity, error) {
	if divisor.IsZero() {
		return Quantity{}, ErrDivideByZero
	}
	return Quantity{value: q.value.Div(divisor), unit: q.unit}, nil
}

// MultiplyQuantity multiplies two quantities: values multiply, units
// combine via UCUM exponent algebra (add exponents).
func (q Quantity) MultiplyQuantity(other Quantity) (Quantity, error) {
	unit, err := combineUnits(q.unit, other.unit, ucum.MultiplyExpr)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{value: q.value.Mul(other.value), unit: unit}, nil
}

// DivideQuantity divides two quantities: values divide, units combine via
// UCUM exponent algebra (subtract exponents).
func (q Quantity) DivideQuantity(other Quantity) (Quantity, error) {
	if other.value.IsZero() {
		return Quantity{}, ErrDivideByZero
	}
	unit, err := combineUnits(q.unit, other.unit, ucum.DivideExpr)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{value: q.value.Div(other.value), unit: unit}, nil
}

func combineUnits(a, b string, combine func(x, y ucum.Expr) ucum.Expr) (string, error) {
	aExpr, err := ucum.ParseUnit(a)
	if err != nil {
		return "", err
	}
	bExpr, err := ucum.ParseUnit(b)
	if err != nil {
		return "", err
	}
	return ucum.Format(combine(aExpr, bExpr)), nil
}
