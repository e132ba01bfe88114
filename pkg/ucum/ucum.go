// Package ucum provides UCUM (Unified Code for Units of Measure) parsing and
// canonicalization for FHIRPath Quantity values.
//
// UCUM is the standard unit system used in FHIR for quantities. This package
// parses compositional unit expressions (e.g. "kg.m/s2") and reduces them to
// a canonical base-unit form so quantities expressed in different but
// dimensionally equivalent units compare correctly (e.g. 10mg = 0.01g).
//
// Reference: https://ucum.org/ucum.html
package ucum

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// UnitConversion defines a conversion from a unit atom to its canonical form.
// An empty CanonicalCode marks a pure scalar atom (the power-of-ten codes
// like 10*9): the factor folds into the value and no base unit remains.
type UnitConversion struct {
	CanonicalCode string  // The canonical unit code (e.g., "g" for mass)
	Factor        float64 // Multiply original value by this to get canonical
}

// canonicalUnits maps UCUM codes to their canonical conversions.
// Organized by dimension (mass, length, volume, time, etc.)
var canonicalUnits = map[string]UnitConversion{
	// === MASS (canonical: g) ===
	"kg":      {CanonicalCode: "g", Factor: 1000},
	"g":       {CanonicalCode: "g", Factor: 1},
	"mg":      {CanonicalCode: "g", Factor: 0.001},
	"ug":      {CanonicalCode: "g", Factor: 0.000001},
	"ng":      {CanonicalCode: "g", Factor: 0.000000001},
	"pg":      {CanonicalCode: "g", Factor: 0.000000000001},
	"lb":      {CanonicalCode: "g", Factor: 453.59237},    // avoirdupois pound
	"oz":      {CanonicalCode: "g", Factor: 28.349523125}, // avoirdupois ounce
	"[lb_av]": {CanonicalCode: "g", Factor: 453.59237},
	"[oz_av]": {CanonicalCode: "g", Factor: 28.349523125},

	// === LENGTH (canonical: m) ===
	"km":     {CanonicalCode: "m", Factor: 1000},
	"m":      {CanonicalCode: "m", Factor: 1},
	"dm":     {CanonicalCode: "m", Factor: 0.1},
	"cm":     {CanonicalCode: "m", Factor: 0.01},
	"mm":     {CanonicalCode: "m", Factor: 0.001},
	"um":     {CanonicalCode: "m", Factor: 0.000001},
	"nm":     {CanonicalCode: "m", Factor: 0.000000001},
	"[in_i]": {CanonicalCode: "m", Factor: 0.0254},   // international inch
	"[ft_i]": {CanonicalCode: "m", Factor: 0.3048},   // international foot
	"[yd_i]": {CanonicalCode: "m", Factor: 0.9144},   // international yard
	"[mi_i]": {CanonicalCode: "m", Factor: 1609.344}, // international mile
	"in":     {CanonicalCode: "m", Factor: 0.0254},
	"ft":     {CanonicalCode: "m", Factor: 0.3048},

	// === VOLUME (canonical: L) ===
	"L":        {CanonicalCode: "L", Factor: 1},
	"l":        {CanonicalCode: "L", Factor: 1},
	"dL":       {CanonicalCode: "L", Factor: 0.1},
	"dl":       {CanonicalCode: "L", Factor: 0.1},
	"cL":       {CanonicalCode: "L", Factor: 0.01},
	"cl":       {CanonicalCode: "L", Factor: 0.01},
	"mL":       {CanonicalCode: "L", Factor: 0.001},
	"ml":       {CanonicalCode: "L", Factor: 0.001},
	"uL":       {CanonicalCode: "L", Factor: 0.000001},
	"ul":       {CanonicalCode: "L", Factor: 0.000001},
	"[gal_us]": {CanonicalCode: "L", Factor: 3.785411784},
	"[qt_us]":  {CanonicalCode: "L", Factor: 0.946352946},
	"[pt_us]":  {CanonicalCode: "L", Factor: 0.473176473},
	"[foz_us]": {CanonicalCode: "L", Factor: 0.0295735295625},

	// === TIME (canonical: s) ===
	"a":   {CanonicalCode: "s", Factor: 31557600},    // Julian year
	"mo":  {CanonicalCode: "s", Factor: 2629800},     // month (30.4375 days)
	"wk":  {CanonicalCode: "s", Factor: 604800},      // week
	"d":   {CanonicalCode: "s", Factor: 86400},       // day
	"h":   {CanonicalCode: "s", Factor: 3600},        // hour
	"min": {CanonicalCode: "s", Factor: 60},          // minute
	"s":   {CanonicalCode: "s", Factor: 1},           // second
	"ms":  {CanonicalCode: "s", Factor: 0.001},       // millisecond
	"us":  {CanonicalCode: "s", Factor: 0.000001},    // microsecond
	"ns":  {CanonicalCode: "s", Factor: 0.000000001}, // nanosecond

	// === TEMPERATURE (canonical: K) ===
	"K":      {CanonicalCode: "K", Factor: 1},   // Kelvin
	"Cel":    {CanonicalCode: "Cel", Factor: 1}, // Celsius (special handling needed)
	"[degF]": {CanonicalCode: "Cel", Factor: 1}, // Fahrenheit (special handling needed)

	// === AMOUNT OF SUBSTANCE (canonical: mol) ===
	"mol":  {CanonicalCode: "mol", Factor: 1},
	"mmol": {CanonicalCode: "mol", Factor: 0.001},
	"umol": {CanonicalCode: "mol", Factor: 0.000001},
	"nmol": {CanonicalCode: "mol", Factor: 0.000000001},
	"pmol": {CanonicalCode: "mol", Factor: 0.000000000001},

	// === PRESSURE (canonical: Pa) ===
	"Pa":     {CanonicalCode: "Pa", Factor: 1},
	"kPa":    {CanonicalCode: "Pa", Factor: 1000},
	"mm[Hg]": {CanonicalCode: "Pa", Factor: 133.322387415},
	"[psi]":  {CanonicalCode: "Pa", Factor: 6894.757293168},

	// === POWER-OF-TEN SCALARS ===
	// Pure numbers: the factor folds into the value and no base unit
	// remains, so 10*9/L and 10*12/L reduce to the same L-1 form (blood
	// cell counts: thousands per microliter, billions/trillions per liter).
	"10*3":  {CanonicalCode: "", Factor: 1000},
	"10*6":  {CanonicalCode: "", Factor: 1000000},
	"10*9":  {CanonicalCode: "", Factor: 1000000000},
	"10*12": {CanonicalCode: "", Factor: 1000000000000},

	// === PERCENTAGE ===
	"%": {CanonicalCode: "%", Factor: 1},

	// === INTERNATIONAL UNITS ===
	"[IU]":   {CanonicalCode: "[IU]", Factor: 1},
	"m[IU]":  {CanonicalCode: "[IU]", Factor: 0.001},
	"u[IU]":  {CanonicalCode: "[IU]", Factor: 0.000001},

	// === ENERGY ===
	"J":     {CanonicalCode: "J", Factor: 1},
	"kJ":    {CanonicalCode: "J", Factor: 1000},
	"cal":   {CanonicalCode: "J", Factor: 4.184},
	"kcal":  {CanonicalCode: "J", Factor: 4184},
	"[Cal]": {CanonicalCode: "J", Factor: 4184},
}

// Expr is a parsed UCUM unit expression: a multiset of atom symbols to
// integer exponents, e.g. "kg.m/s2" parses to {kg:1, m:1, s:-2}.
type Expr map[string]int

// ParseUnit parses a compositional UCUM unit string into an Expr. Terms are
// separated by '.' (multiply) or '/' (divide); once a '/' is seen every
// subsequent term stays in the denominator. Each term may carry a trailing
// signed integer exponent (e.g. "s-2", "m2"); the same atom appearing twice
// is an error. A bare numeric term like "10*9" is treated as an opaque atom,
// matching the count-unit codes already present in canonicalUnits.
func ParseUnit(unit string) (Expr, error) {
	expr := Expr{}
	if unit == "" || unit == "1" {
		return expr, nil
	}

	sign := 1
	i := 0
	first := true
	for i < len(unit) {
		// Consume the '.'/'/' operator, except before the first term.
		if !first {
			switch unit[i] {
			case '.':
				i++
			case '/':
				sign = -1
				i++
			default:
				return nil, fmt.Errorf("ucum: expected '.' or '/' at position %d in %q", i, unit)
			}
		}
		first = false

		start := i
		for i < len(unit) && unit[i] != '.' && unit[i] != '/' {
			i++
		}
		term := unit[start:i]
		if term == "" {
			return nil, fmt.Errorf("ucum: empty term in %q", unit)
		}

		atom, exp := splitExponent(term)
		if _, dup := expr[atom]; dup {
			return nil, fmt.Errorf("ucum: duplicate unit %q in %q", atom, unit)
		}
		e := sign * exp
		if e != 0 {
			expr[atom] = e
		}
	}

	return expr, nil
}

// splitExponent separates a trailing signed integer exponent from a unit
// atom. Bracketed annex atoms like "[lb_av]" and bare numeric atoms like
// "10*9" never carry a trailing exponent digit group of their own.
func splitExponent(term string) (string, int) {
	if strings.HasPrefix(term, "[") || strings.ContainsAny(term, "*") {
		return term, 1
	}

	end := len(term)
	for end > 0 && (term[end-1] == '-' || (term[end-1] >= '0' && term[end-1] <= '9')) {
		end--
		if term[end] == '-' {
			break
		}
	}
	if end == len(term) || end == 0 {
		return term, 1
	}

	expPart := term[end:]
	exp, err := strconv.Atoi(expPart)
	if err != nil || exp == 0 {
		return term, 1
	}
	return term[:end], exp
}

// MultiplyExpr combines two unit expressions by adding exponents, the
// multiset operation backing Quantity * Quantity.
func MultiplyExpr(a, b Expr) Expr {
	return combineExpr(a, b, 1)
}

// DivideExpr combines two unit expressions by subtracting b's exponents
// from a's, the multiset operation backing Quantity / Quantity.
func DivideExpr(a, b Expr) Expr {
	return combineExpr(a, b, -1)
}

func combineExpr(a, b Expr, sign int) Expr {
	result := Expr{}
	for atom, exp := range a {
		result[atom] += exp
	}
	for atom, exp := range b {
		result[atom] += sign * exp
	}
	for atom, exp := range result {
		if exp == 0 {
			delete(result, atom)
		}
	}
	return result
}

// Format renders a unit expression back to UCUM compositional notation:
// unit codes sorted lexicographically, joined with '.', exponent 1 omitted
// and negative exponents rendered inline (e.g. "kg.m.s-2"). The dimensionless
// unit renders as "1".
func Format(expr Expr) string {
	if len(expr) == 0 {
		return "1"
	}

	var atoms []string
	for atom := range expr {
		atoms = append(atoms, atom)
	}
	sort.Strings(atoms)

	parts := make([]string, 0, len(atoms))
	for _, atom := range atoms {
		parts = append(parts, formatAtom(atom, expr[atom]))
	}

	return strings.Join(parts, ".")
}

func formatAtom(atom string, exp int) string {
	if exp == 1 {
		return atom
	}
	return fmt.Sprintf("%s%d", atom, exp)
}

// Canonicalize reduces a quantity's unit to its base-unit multiset and
// adjusts the scalar value accordingly, composing each atom's factor from
// the canonicalUnits dictionary raised to that atom's exponent. Unknown
// atoms pass through unchanged (factor 1, atom kept as its own base). The
// incoming value is carried through in decimal throughout — only the fixed
// per-atom conversion factors (physical constants, not arbitrary-precision
// input) are ever represented as float64.
func Canonicalize(value decimal.Decimal, unit string) (decimal.Decimal, string, error) {
	expr, err := ParseUnit(unit)
	if err != nil {
		return value, unit, err
	}

	canonical := Expr{}
	result := value
	for atom, exp := range expr {
		base := atom
		factor := 1.0
		if conv, ok := lookupCanonical(atom); ok {
			base = conv.CanonicalCode
			factor = conv.Factor
		}
		result = result.Mul(decimalPow(factor, exp))
		if base == "" {
			// Pure scalar atom (10*9 and friends): fully absorbed into the
			// value.
			continue
		}
		canonical[base] += exp
	}
	for atom, exp := range canonical {
		if exp == 0 {
			delete(canonical, atom)
		}
	}

	return result, Format(canonical), nil
}

func lookupCanonical(code string) (UnitConversion, bool) {
	if conv, ok := canonicalUnits[code]; ok {
		return conv, true
	}
	for ucumCode, conv := range canonicalUnits {
		if strings.EqualFold(ucumCode, code) {
			return conv, true
		}
	}
	return UnitConversion{}, false
}

func decimalPow(base float64, exp int) decimal.Decimal {
	b := decimal.NewFromFloat(base)
	n := exp
	neg := n < 0
	if neg {
		n = -n
	}
	result := decimal.NewFromInt(1)
	for i := 0; i < n; i++ {
		result = result.Mul(b)
	}
	if neg {
		return decimal.NewFromInt(1).Div(result)
	}
	return result
}
