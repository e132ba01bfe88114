package eval

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/robertoaraneda/gofhir/pkg/fhirpath/types"
)

// Arithmetic operators

// Add performs addition on two values.
func Add(left, right types.Value) (types.Value, error) {
	switch l := left.(type) {
	case types.Integer:
		switch r := right.(type) {
		case types.Integer:
			return l.Add(r), nil
		case types.Long:
			return types.NewLongFromInt64(l.Value()).Add(r), nil
		case types.Decimal:
			return l.ToDecimal().Add(r), nil
		}
	case types.Long:
		switch r := right.(type) {
		case types.Long:
			return l.Add(r), nil
		case types.Integer:
			return l.Add(types.NewLongFromInt64(r.Value())), nil
		case types.Decimal:
			return l.ToDecimal().Add(r), nil
		}
	case types.Decimal:
		switch r := right.(type) {
		case types.Integer:
			return l.Add(r.ToDecimal()), nil
		case types.Long:
			return l.Add(r.ToDecimal()), nil
		case types.Decimal:
			return l.Add(r), nil
		}
	case types.String:
		if r, ok := right.(types.String); ok {
			return types.NewString(l.Value() + r.Value()), nil
		}
	case types.Date:
		if q, ok := right.(types.Quantity); ok {
			// Date + Quantity (duration)
			value := int(q.Value().IntPart())
			return l.AddDuration(value, q.Unit()), nil
		}
	case types.DateTime:
		if q, ok := right.(types.Quantity); ok {
			// DateTime + Quantity (duration)
			value := int(q.Value().IntPart())
			return l.AddDuration(value, q.Unit()), nil
		}
	case types.Time:
		if q, ok := right.(types.Quantity); ok {
			// Time + Quantity (duration)
			value := int(q.Value().IntPart())
			return l.AddDuration(value, q.Unit()), nil
		}
	case types.Quantity:
		switch r := right.(type) {
		case types.Quantity:
			// Quantity + Quantity
			return l.Add(r)
		}
	}
	return nil, InvalidOperationError("+", left.Type(), right.Type())
}

// Subtract performs subtraction on two values.
func Subtract(left, right types.Value) (types.Value, error) {
	switch l := left.(type) {
	case types.Integer:
		switch r := right.(type) {
		case types.Integer:
			return l.Subtract(r), nil
		case types.Long:
			return types.NewLongFromInt64(l.Value()).Subtract(r), nil
		case types.Decimal:
			return l.ToDecimal().Subtract(r), nil
		}
	case types.Long:
		switch r := right.(type) {
		case types.Long:
			return l.Subtract(r), nil
		case types.Integer:
			return l.Subtract(types.NewLongFromInt64(r.Value())), nil
		case types.Decimal:
			return l.ToDecimal().Subtract(r), nil
		}
	case types.Decimal:
		switch r := right.(type) {
		case types.Integer:
			return l.Subtract(r.ToDecimal()), nil
		case types.Long:
			return l.Subtract(r.ToDecimal()), nil
		case types.Decimal:
			return l.Subtract(r), nil
		}
	case types.Date:
		if q, ok := right.(types.Quantity); ok {
			// Date - Quantity (duration)
			value := int(q.Value().IntPart())
			return l.SubtractDuration(value, q.Unit()), nil
		}
	case types.DateTime:
		if q, ok := right.(types.Quantity); ok {
			// DateTime - Quantity (duration)
			value := int(q.Value().IntPart())
			return l.SubtractDuration(value, q.Unit()), nil
		}
	case types.Time:
		if q, ok := right.(types.Quantity); ok {
			// Time - Quantity (duration)
			value := int(q.Value().IntPart())
			return l.SubtractDuration(value, q.Unit()), nil
		}
	case types.Quantity:
		switch r := right.(type) {
		case types.Quantity:
			// Quantity - Quantity
			return l.Subtract(r)
		}
	}
	return nil, InvalidOperationError("-", left.Type(), right.Type())
}

// Multiply performs multiplication on two values.
func Multiply(left, right types.Value) (types.Value, error) {
	switch l := left.(type) {
	case types.Integer:
		switch r := right.(type) {
		case types.Integer:
			return l.Multiply(r), nil
		case types.Long:
			return types.NewLongFromInt64(l.Value()).Multiply(r), nil
		case types.Decimal:
			return l.ToDecimal().Multiply(r), nil
		}
	case types.Long:
		switch r := right.(type) {
		case types.Long:
			return l.Multiply(r), nil
		case types.Integer:
			return l.Multiply(types.NewLongFromInt64(r.Value())), nil
		case types.Decimal:
			return l.ToDecimal().Multiply(r), nil
		}
	case types.Decimal:
		switch r := right.(type) {
		case types.Integer:
			return l.Multiply(r.ToDecimal()), nil
		case types.Long:
			return l.Multiply(r.ToDecimal()), nil
		case types.Decimal:
			return l.Multiply(r), nil
		}
	case types.Quantity:
		switch r := right.(type) {
		case types.Quantity:
			return l.MultiplyQuantity(r)
		case types.Integer:
			return l.Multiply(r.ToDecimal().Value()), nil
		case types.Decimal:
			return l.Multiply(r.Value()), nil
		}
	}
	return nil, InvalidOperationError("*", left.Type(), right.Type())
}

// Divide performs division on two values.
func Divide(left, right types.Value) (types.Value, error) {
	if lq, ok := left.(types.Quantity); ok {
		switch r := right.(type) {
		case types.Quantity:
			return lq.DivideQuantity(r)
		case types.Integer:
			return lq.Divide(r.ToDecimal().Value())
		case types.Decimal:
			return lq.Divide(r.Value())
		}
		return nil, InvalidOperationError("/", left.Type(), right.Type())
	}

	// Convert both to Decimal for division
	var lDec, rDec types.Decimal
	switch l := left.(type) {
	case types.Integer:
		lDec = l.ToDecimal()
	case types.Long:
		lDec = l.ToDecimal()
	case types.Decimal:
		lDec = l
	default:
		return nil, InvalidOperationError("/", left.Type(), right.Type())
	}

	switch r := right.(type) {
	case types.Integer:
		rDec = r.ToDecimal()
	case types.Long:
		rDec = r.ToDecimal()
	case types.Decimal:
		rDec = r
	default:
		return nil, InvalidOperationError("/", left.Type(), right.Type())
	}

	return lDec.Divide(rDec)
}

// IntegerDivide performs integer division (div operator). Integer and Long
// operands divide exactly; Decimal operands (on either side) truncate the
// quotient toward zero, per the integer-truncating contract.
func IntegerDivide(left, right types.Value) (types.Value, error) {
	if isDecimalOperand(left) || isDecimalOperand(right) {
		lDec, rDec, err := bothAsDecimal(left, right)
		if err != nil {
			return nil, err
		}
		if rDec.Value().IsZero() {
			return nil, types.ErrDivideByZero
		}
		quotient, _ := lDec.Value().QuoRem(rDec.Value(), 0)
		return types.NewInteger(quotient.IntPart()), nil
	}

	if l, ok := left.(types.Long); ok {
		r, ok := right.(types.Long)
		if !ok {
			if ri, ok := right.(types.Integer); ok {
				r = types.NewLongFromInt64(ri.Value())
			} else {
				return nil, InvalidOperationError("div", left.Type(), right.Type())
			}
		}
		return l.Div(r)
	}
	l, ok := left.(types.Integer)
	if !ok {
		return nil, InvalidOperationError("div", left.Type(), right.Type())
	}
	r, ok := right.(types.Integer)
	if !ok {
		return nil, InvalidOperationError("div", left.Type(), right.Type())
	}
	return l.Div(r)
}

// Modulo performs modulo operation (mod operator). As with div, a Decimal
// operand on either side computes the remainder after truncating division.
func Modulo(left, right types.Value) (types.Value, error) {
	if isDecimalOperand(left) || isDecimalOperand(right) {
		lDec, rDec, err := bothAsDecimal(left, right)
		if err != nil {
			return nil, err
		}
		if rDec.Value().IsZero() {
			return nil, types.ErrDivideByZero
		}
		_, remainder := lDec.Value().QuoRem(rDec.Value(), 0)
		result, parseErr := types.NewDecimal(remainder.String())
		if parseErr != nil {
			return nil, parseErr
		}
		return result, nil
	}

	if l, ok := left.(types.Long); ok {
		r, ok := right.(types.Long)
		if !ok {
			if ri, ok := right.(types.Integer); ok {
				r = types.NewLongFromInt64(ri.Value())
			} else {
				return nil, InvalidOperationError("mod", left.Type(), right.Type())
			}
		}
		return l.Mod(r)
	}
	l, ok := left.(types.Integer)
	if !ok {
		return nil, InvalidOperationError("mod", left.Type(), right.Type())
	}
	r, ok := right.(types.Integer)
	if !ok {
		return nil, InvalidOperationError("mod", left.Type(), right.Type())
	}
	return l.Mod(r)
}

func isDecimalOperand(v types.Value) bool {
	_, ok := v.(types.Decimal)
	return ok
}

func bothAsDecimal(left, right types.Value) (types.Decimal, types.Decimal, error) {
	toDecimal := func(v types.Value) (types.Decimal, error) {
		switch n := v.(type) {
		case types.Integer:
			return n.ToDecimal(), nil
		case types.Long:
			return n.ToDecimal(), nil
		case types.Decimal:
			return n, nil
		default:
			return types.Decimal{}, InvalidOperationError("div/mod", v.Type(), v.Type())
		}
	}
	l, err := toDecimal(left)
	if err != nil {
		return types.Decimal{}, types.Decimal{}, err
	}
	r, err := toDecimal(right)
	if err != nil {
		return types.Decimal{}, types.Decimal{}, err
	}
	return l, r, nil
}

// Negate negates a numeric value.
func Negate(value types.Value) (types.Value, error) {
	switch v := value.(type) {
	case types.Integer:
		return v.Negate(), nil
	case types.Long:
		return v.Negate(), nil
	case types.Decimal:
		return v.Negate(), nil
	case types.Quantity:
		return v.Multiply(decimal.NewFromInt(-1)), nil
	}
	return nil, NewEvalError(ErrType, "cannot negate "+value.Type())
}

// Comparison operators

// Compare compares two values and returns -1, 0, or 1.
func Compare(left, right types.Value) (int, error) {
	// Try to convert ObjectValue to Quantity if comparing with Quantity
	if obj, ok := left.(*types.ObjectValue); ok {
		if _, isRightQuantity := right.(types.Quantity); isRightQuantity {
			if q, ok := obj.ToQuantity(); ok {
				return q.Compare(right)
			}
		}
	}
	if obj, ok := right.(*types.ObjectValue); ok {
		if _, isLeftQuantity := left.(types.Quantity); isLeftQuantity {
			if q, ok := obj.ToQuantity(); ok {
				if comp, ok := left.(types.Comparable); ok {
					return comp.Compare(q)
				}
			}
		}
	}

	if comp, ok := left.(types.Comparable); ok {
		return comp.Compare(right)
	}
	return 0, InvalidOperationError("compare", left.Type(), right.Type())
}

// LessThan returns true if left < right.
func LessThan(left, right types.Value) (types.Collection, error) {
	cmp, err := Compare(left, right)
	if err != nil {
		return nil, err
	}
	if cmp < 0 {
		return types.TrueCollection, nil
	}
	return types.FalseCollection, nil
}

// LessOrEqual returns true if left <= right.
func LessOrEqual(left, right types.Value) (types.Collection, error) {
	cmp, err := Compare(left, right)
	if err != nil {
		return nil, err
	}
	if cmp <= 0 {
		return types.TrueCollection, nil
	}
	return types.FalseCollection, nil
}

// GreaterThan returns true if left > right.
func GreaterThan(left, right types.Value) (types.Collection, error) {
	cmp, err := Compare(left, right)
	if err != nil {
		return nil, err
	}
	if cmp > 0 {
		return types.TrueCollection, nil
	}
	return types.FalseCollection, nil
}

// GreaterOrEqual returns true if left >= right.
func GreaterOrEqual(left, right types.Value) (types.Collection, error) {
	cmp, err := Compare(left, right)
	if err != nil {
		return nil, err
	}
	if cmp >= 0 {
		return types.TrueCollection, nil
	}
	return types.FalseCollection, nil
}

// Equality operators

// itemEqual reports whether two single values are equal, and whether the
// comparison is undecidable (mixed-precision temporals, incompatible
// Quantity units) rather than decidably false.
func itemEqual(left, right types.Value) (equal bool, undecidable bool) {
	switch l := left.(type) {
	case types.Date:
		o, ok := right.(types.Date)
		if !ok {
			return false, false
		}
		cmp, err := l.Compare(o)
		if err != nil {
			if errors.Is(err, types.ErrAmbiguousComparison) {
				return false, true
			}
			return false, false
		}
		return cmp == 0, false
	case types.DateTime:
		o, ok := right.(types.DateTime)
		if !ok {
			return false, false
		}
		cmp, err := l.Compare(o)
		if err != nil {
			if errors.Is(err, types.ErrAmbiguousComparison) {
				return false, true
			}
			return false, false
		}
		return cmp == 0, false
	case types.Time:
		o, ok := right.(types.Time)
		if !ok {
			return false, false
		}
		cmp, err := l.Compare(o)
		if err != nil {
			if errors.Is(err, types.ErrAmbiguousComparison) {
				return false, true
			}
			return false, false
		}
		return cmp == 0, false
	case types.Quantity:
		o, ok := right.(types.Quantity)
		if !ok {
			return false, false
		}
		cmp, err := l.Compare(o)
		if err != nil {
			if errors.Is(err, types.ErrAmbiguousComparison) {
				return false, true
			}
			return false, false
		}
		return cmp == 0, false
	default:
		return left.Equal(right), false
	}
}

// Equal returns true if left = right. Collections of equal length are
// compared pairwise; a length mismatch is itself undecidable (empty).
func Equal(left, right types.Collection) types.Collection {
	if left.Empty() || right.Empty() {
		return types.EmptyCollection
	}
	if len(left) != len(right) {
		return types.EmptyCollection
	}

	anyUndecidable := false
	for i := range left {
		eq, undecidable := itemEqual(left[i], right[i])
		if undecidable {
			anyUndecidable = true
			continue
		}
		if !eq {
			return types.FalseCollection
		}
	}
	if anyUndecidable {
		return types.EmptyCollection
	}
	return types.TrueCollection
}

// NotEqual returns true if left != right.
func NotEqual(left, right types.Collection) types.Collection {
	result := Equal(left, right)
	if result.Empty() {
		return result
	}
	if result[0].(types.Boolean).Bool() {
		return types.FalseCollection
	}
	return types.TrueCollection
}

// Equivalent returns true if left ~ right. Equal-length collections match as
// an unordered multiset under item equivalence; never returns empty.
func Equivalent(left, right types.Collection) types.Collection {
	// For equivalence, empty collections are equivalent to each other
	if left.Empty() && right.Empty() {
		return types.TrueCollection
	}
	if left.Empty() || right.Empty() {
		return types.FalseCollection
	}
	if len(left) != len(right) {
		return types.FalseCollection
	}

	used := make([]bool, len(right))
	for _, l := range left {
		matched := false
		for j, r := range right {
			if used[j] {
				continue
			}
			if l.Equivalent(r) {
				used[j] = true
				matched = true
				break
			}
		}
		if !matched {
			return types.FalseCollection
		}
	}
	return types.TrueCollection
}

// NotEquivalent returns true if left !~ right.
func NotEquivalent(left, right types.Collection) types.Collection {
	result := Equivalent(left, right)
	if result[0].(types.Boolean).Bool() {
		return types.FalseCollection
	}
	return types.TrueCollection
}

// Boolean operators (three-valued logic)

// And performs logical AND with three-valued logic.
func And(left, right types.Collection) types.Collection {
	lEmpty := left.Empty()
	rEmpty := right.Empty()

	// If either is false, result is false
	if !lEmpty {
		if b, ok := left[0].(types.Boolean); ok && !b.Bool() {
			return types.FalseCollection
		}
	}
	if !rEmpty {
		if b, ok := right[0].(types.Boolean); ok && !b.Bool() {
			return types.FalseCollection
		}
	}

	// If either is empty, propagate empty
	if lEmpty || rEmpty {
		return types.EmptyCollection
	}

	// Both must be true
	lBool, lOk := left[0].(types.Boolean)
	rBool, rOk := right[0].(types.Boolean)
	if !lOk || !rOk {
		return types.EmptyCollection
	}

	if lBool.Bool() && rBool.Bool() {
		return types.TrueCollection
	}
	return types.FalseCollection
}

// Or performs logical OR with three-valued logic.
func Or(left, right types.Collection) types.Collection {
	lEmpty := left.Empty()
	rEmpty := right.Empty()

	// If either is true, result is true
	if !lEmpty {
		if b, ok := left[0].(types.Boolean); ok && b.Bool() {
			return types.TrueCollection
		}
	}
	if !rEmpty {
		if b, ok := right[0].(types.Boolean); ok && b.Bool() {
			return types.TrueCollection
		}
	}

	// If either is empty, propagate empty
	if lEmpty || rEmpty {
		return types.EmptyCollection
	}

	// Both must be false
	lBool, lOk := left[0].(types.Boolean)
	rBool, rOk := right[0].(types.Boolean)
	if !lOk || !rOk {
		return types.EmptyCollection
	}

	if lBool.Bool() || rBool.Bool() {
		return types.TrueCollection
	}
	return types.FalseCollection
}

// Xor performs logical XOR.
func Xor(left, right types.Collection) types.Collection {
	if left.Empty() || right.Empty() {
		return types.EmptyCollection
	}

	lBool, lOk := left[0].(types.Boolean)
	rBool, rOk := right[0].(types.Boolean)
	if !lOk || !rOk {
		return types.EmptyCollection
	}

	if lBool.Bool() != rBool.Bool() {
		return types.TrueCollection
	}
	return types.FalseCollection
}

// Implies performs logical implication.
func Implies(left, right types.Collection) types.Collection {
	lEmpty := left.Empty()
	rEmpty := right.Empty()

	// If left is false, result is true
	if !lEmpty {
		if b, ok := left[0].(types.Boolean); ok && !b.Bool() {
			return types.TrueCollection
		}
	}

	// If right is true, result is true
	if !rEmpty {
		if b, ok := right[0].(types.Boolean); ok && b.Bool() {
			return types.TrueCollection
		}
	}

	// If either is empty, propagate empty
	if lEmpty || rEmpty {
		return types.EmptyCollection
	}

	// left is true and right is false
	return types.FalseCollection
}

// Not performs logical NOT.
func Not(value types.Collection) types.Collection {
	if value.Empty() {
		return types.EmptyCollection
	}
	if len(value) != 1 {
		return types.EmptyCollection
	}
	if b, ok := value[0].(types.Boolean); ok {
		if b.Bool() {
			return types.FalseCollection
		}
		return types.TrueCollection
	}
	return types.EmptyCollection
}

// String operators

// Concatenate performs string concatenation (& operator).
// Unlike +, & treats empty as empty string.
func Concatenate(left, right types.Collection) types.Collection {
	var lStr, rStr string

	if !left.Empty() {
		if s, ok := left[0].(types.String); ok {
			lStr = s.Value()
		}
	}

	if !right.Empty() {
		if s, ok := right[0].(types.String); ok {
			rStr = s.Value()
		}
	}

	return types.Collection{types.NewString(lStr + rStr)}
}

// Collection operators

// Union returns the union of two collections.
func Union(left, right types.Collection) types.Collection {
	return left.Union(right)
}

// In checks if left is in right collection.
func In(left, right types.Collection) types.Collection {
	if left.Empty() {
		return types.EmptyCollection
	}
	if len(left) != 1 {
		return types.EmptyCollection
	}
	if right.Contains(left[0]) {
		return types.TrueCollection
	}
	return types.FalseCollection
}

// Contains checks if left collection contains right.
func Contains(left, right types.Collection) types.Collection {
	if right.Empty() {
		return types.EmptyCollection
	}
	if len(right) != 1 {
		return types.EmptyCollection
	}
	if left.Contains(right[0]) {
		return types.TrueCollection
	}
	return types.FalseCollection
}
