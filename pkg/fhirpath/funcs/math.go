package funcs

import (
	"math"

	"github.com/robertoaraneda/gofhir/pkg/fhirpath/eval"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/types"
	"github.com/shopspring/decimal"
)

func init() {
	// Register math functions
	Register(FuncDef{
		Name:    "abs",
		MinArgs: 0,
		MaxArgs: 0,
		Fn:      fnAbs,
	})

	Register(FuncDef{
		Name:    "ceiling",
		MinArgs: 0,
		MaxArgs: 0,
		Fn:      fnCeiling,
	})

	Register(FuncDef{
		Name:    "exp",
		MinArgs: 0,
		MaxArgs: 0,
		Fn:      fnExp,
	})

	Register(FuncDef{
		Name:    "floor",
		MinArgs: 0,
		MaxArgs: 0,
		Fn:      fnFloor,
	})

	Register(FuncDef{
		Name:    "ln",
		MinArgs: 0,
		MaxArgs: 0,
		Fn:      fnLn,
	})

	Register(FuncDef{
		Name:    "log",
		MinArgs: 1,
		MaxArgs: 1,
		Fn:      fnLog,
	})

	Register(FuncDef{
		Name:    "power",
		MinArgs: 1,
		MaxArgs: 1,
		Fn:      fnPower,
	})

	Register(FuncDef{
		Name:    "round",
		MinArgs: 0,
		MaxArgs: 1,
		Fn:      fnRound,
	})

	Register(FuncDef{
		Name:    "sqrt",
		MinArgs: 0,
		MaxArgs: 0,
		Fn:      fnSqrt,
	})

	Register(FuncDef{
		Name:    "truncate",
		MinArgs: 0,
		MaxArgs: 0,
		Fn:      fnTruncate,
	})

	// Aggregate functions
	Register(FuncDef{
		Name:    "sum",
		MinArgs: 0,
		MaxArgs: 0,
		Fn:      fnSum,
	})

	Register(FuncDef{
		Name:    "min",
		MinArgs: 0,
		MaxArgs: 0,
		Fn:      fnMin,
	})

	Register(FuncDef{
		Name:    "max",
		MinArgs: 0,
		MaxArgs: 0,
		Fn:      fnMax,
	})

	Register(FuncDef{
		Name:    "avg",
		MinArgs: 0,
		MaxArgs: 0,
		Fn:      fnAvg,
	})
}

// fnAbs returns the absolute value.
func fnAbs(_ *eval.Context, input types.Collection, _ []interface{}) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}

	switch v := input[0].(type) {
	case types.Integer:
		val := v.Value()
		if val < 0 {
			val = -val
		}
		return types.Collection{types.NewInteger(val)}, nil
	case types.Decimal:
		return types.Collection{v.Abs()}, nil
	case types.Quantity:
		return types.Collection{types.NewQuantityFromDecimal(v.Value().Abs(), v.Unit())}, nil
	default:
		return types.Collection{}, nil
	}
}

// fnCeiling returns the smallest integer >= input.
func fnCeiling(_ *eval.Context, input types.Collection, _ []interface{}) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}

	switch v := input[0].(type) {
	case types.Integer:
		return types.Collection{v}, nil
	case types.Decimal:
		return types.Collection{v.Ceiling()}, nil
	default:
		return types.Collection{}, nil
	}
}

// fnExp returns e raised to the power of input.
func fnExp(_ *eval.Context, input types.Collection, _ []interface{}) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}

	var val float64
	switch v := input[0].(type) {
	case types.Integer:
		val = float64(v.Value())
	case types.Decimal:
		val = v.Value().InexactFloat64()
	default:
		return types.Collection{}, nil
	}

	return types.Collection{types.NewDecimalFromFloat(math.Exp(val))}, nil
}

// fnFloor returns the largest integer <= input.
func fnFloor(_ *eval.Context, input types.Collection, _ []interface{}) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}

	switch v := input[0].(type) {
	case types.Integer:
		return types.Collection{v}, nil
	case types.Decimal:
		return types.Collection{v.Floor()}, nil
	default:
		return types.Collection{}, nil
	}
}

// fnLn returns the natural logarithm.
func fnLn(_ *eval.Context, input types.Collection, _ []interface{}) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}

	var val float64
	switch v := input[0].(type) {
	case types.Integer:
		val = float64(v.Value())
	case types.Decimal:
		val = v.Value().InexactFloat64()
	default:
		return types.Collection{}, nil
	}

	if val <= 0 {
		return types.Collection{}, nil
	}

	return types.Collection{types.NewDecimalFromFloat(math.Log(val))}, nil
}

// fnLog returns the logarithm with the given base.
func fnLog(_ *eval.Context, input types.Collection, args []interface{}) (types.Collection, error) {
	if input.Empty() || len(args) == 0 {
		return types.Collection{}, nil
	}

	var val float64
	switch v := input[0].(type) {
	case types.Integer:
		val = float64(v.Value())
	case types.Decimal:
		val = v.Value().InexactFloat64()
	default:
		return types.Collection{}, nil
	}

	base, err := toFloat(args[0])
	if err != nil {
		return types.Collection{}, nil
	}

	if val <= 0 || base <= 0 || base == 1 {
		return types.Collection{}, nil
	}

	result := math.Log(val) / math.Log(base)
	return types.Collection{types.NewDecimalFromFloat(result)}, nil
}

// fnPower returns input raised to the given power.
func fnPower(_ *eval.Context, input types.Collection, args []interface{}) (types.Collection, error) {
	if input.Empty() || len(args) == 0 {
		return types.Collection{}, nil
	}

	var base float64
	switch v := input[0].(type) {
	case types.Integer:
		base = float64(v.Value())
	case types.Decimal:
		base = v.Value().InexactFloat64()
	default:
		return types.Collection{}, nil
	}

	exp, err := toFloat(args[0])
	if err != nil {
		return types.Collection{}, nil
	}

	result := math.Pow(base, exp)

	// Check for invalid results
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return types.Collection{}, nil
	}

	return types.Collection{types.NewDecimalFromFloat(result)}, nil
}

// fnRound rounds to the specified number of decimal places.
func fnRound(_ *eval.Context, input types.Collection, args []interface{}) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}

	precision := int32(0)
	if len(args) > 0 {
		p, err := toInteger(args[0])
		if err != nil {
			return types.Collection{}, nil
		}
		precision = int32(p)
	}

	switch v := input[0].(type) {
	case types.Integer:
		return types.Collection{v}, nil
	case types.Decimal:
		rounded := v.Value().Round(precision)
		d, _ := types.NewDecimal(rounded.String())
		return types.Collection{d}, nil
	default:
		return types.Collection{}, nil
	}
}

// fnSqrt returns the square root.
func fnSqrt(_ *eval.Context, input types.Collection, _ []interface{}) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}

	var val float64
	switch v := input[0].(type) {
	case types.Integer:
		val = float64(v.Value())
	case types.Decimal:
		val = v.Value().InexactFloat64()
	default:
		return types.Collection{}, nil
	}

	if val < 0 {
		return types.Collection{}, nil
	}

	return types.Collection{types.NewDecimalFromFloat(math.Sqrt(val))}, nil
}

// fnTruncate returns the integer part (truncates toward zero).
func fnTruncate(_ *eval.Context, input types.Collection, _ []interface{}) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}

	switch v := input[0].(type) {
	case types.Integer:
		return types.Collection{v}, nil
	case types.Decimal:
		return types.Collection{v.Truncate()}, nil
	default:
		return types.Collection{}, nil
	}
}

// toFloat converts an argument to float64.
func toFloat(arg interface{}) (float64, error) {
	switch v := arg.(type) {
	case types.Collection:
		if v.Empty() {
			return 0, eval.NewEvalError(eval.ErrType, "expected number, got empty collection")
		}
		return toFloat(v[0])
	case types.Integer:
		return float64(v.Value()), nil
	case types.Decimal:
		return v.Value().InexactFloat64(), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case decimal.Decimal:
		return v.InexactFloat64(), nil
	default:
		return 0, eval.NewEvalError(eval.ErrType, "expected number")
	}
}

// numericFold adds up input's Integer/Decimal values, reporting whether any
// item was a Decimal (so the caller knows whether to keep the sum Integer-
// typed) and whether every item was numeric at all.
func numericFold(input types.Collection) (sum decimal.Decimal, hasDecimal, allNumeric bool) {
	allNumeric = true
	for _, item := range input {
		switch v := item.(type) {
		case types.Integer:
			sum = sum.Add(decimal.NewFromInt(v.Value()))
		case types.Decimal:
			sum = sum.Add(v.Value())
			hasDecimal = true
		default:
			allNumeric = false
			return
		}
	}
	return
}

// numericFoldResult wraps sum back up as Integer (if every input was
// Integer) or Decimal, reusing numericFold's classification for both sum()
// and avg().
func numericFoldResult(sum decimal.Decimal, hasDecimal bool) types.Value {
	if hasDecimal {
		d, _ := types.NewDecimal(sum.String())
		return d
	}
	return types.NewInteger(sum.IntPart())
}

// fnSum returns the sum of all numeric values in the collection.
// Returns empty if the collection contains a non-numeric value.
func fnSum(ctx *eval.Context, input types.Collection, _ []interface{}) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{types.NewInteger(0)}, nil
	}
	if err := ctx.CheckCancellation(); err != nil {
		return nil, err
	}

	sum, hasDecimal, allNumeric := numericFold(input)
	if !allNumeric {
		return types.Collection{}, nil
	}
	return types.Collection{numericFoldResult(sum, hasDecimal)}, nil
}

// fnMin returns the minimum value in the collection, per item Compare.
func fnMin(ctx *eval.Context, input types.Collection, _ []interface{}) (types.Collection, error) {
	return extremum(ctx, input, -1)
}

// fnMax returns the maximum value in the collection, per item Compare.
func fnMax(ctx *eval.Context, input types.Collection, _ []interface{}) (types.Collection, error) {
	return extremum(ctx, input, 1)
}

// extremum walks input keeping the running min (want<0) or max (want>0)
// by each item's own Compare, so every Comparable type (Integer, Long,
// Decimal, String, Date, DateTime, Time, Quantity) is handled uniformly
// instead of a numeric/string/temporal switch duplicated per direction.
// Non-Comparable items, or a Compare error (incompatible/undecidable
// items), make the whole result empty rather than a partial pick.
func extremum(ctx *eval.Context, input types.Collection, want int) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}
	if err := ctx.CheckCancellation(); err != nil {
		return nil, err
	}

	best, ok := input[0].(types.Comparable)
	if !ok {
		return types.Collection{}, nil
	}

	for _, item := range input[1:] {
		cur, ok := item.(types.Comparable)
		if !ok {
			return types.Collection{}, nil
		}
		cmp, err := cur.Compare(best)
		if err != nil {
			return types.Collection{}, nil
		}
		if cmp*want > 0 {
			best = cur
		}
	}

	return types.Collection{best}, nil
}

// fnAvg returns the average of all numeric values in the collection.
// Returns empty if the collection is empty or contains a non-numeric value.
func fnAvg(ctx *eval.Context, input types.Collection, _ []interface{}) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}
	if err := ctx.CheckCancellation(); err != nil {
		return nil, err
	}

	sum, _, allNumeric := numericFold(input)
	if !allNumeric {
		return types.Collection{}, nil
	}
	count := len(input)

	avg := sum.Div(decimal.NewFromInt(int64(count)))
	d, _ := types.NewDecimal(avg.String())
	return types.Collection{d}, nil
}
