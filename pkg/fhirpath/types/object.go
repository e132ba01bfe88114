package types

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/shopspring/decimal"
)

// ObjectValue is the model-navigator handle for a single FHIR node carried
// by reference from the input resource graph: it wraps the
// node's raw JSON and exposes lenient property lookup, child enumeration,
// and type introspection without ever materializing a typed struct.
type ObjectValue struct {
	data   []byte
	fields map[string]Value // memoizes Get() lookups against this node
}

// NewObjectValue wraps a JSON object as a navigable FHIR node.
func NewObjectValue(data []byte) *ObjectValue {
	return &ObjectValue{
		data:   data,
		fields: make(map[string]Value),
	}
}

// complexTypeRule names a FHIR complex type together with the structural
// shape that identifies it in the absence of an explicit "resourceType".
// Order matters: rules are tried top to bottom and the first match wins,
// so more specific shapes (CodeableConcept's "coding" array) must precede
// looser ones that could also match a subset of their fields.
type complexTypeRule struct {
	name    string
	matches func(o *ObjectValue) bool
}

var complexTypeRules = []complexTypeRule{
	{typeQuantity, func(o *ObjectValue) bool {
		return o.hasField("value") && (o.hasField("unit") || o.hasField("code") || o.hasField("system"))
	}},
	{typeCoding, func(o *ObjectValue) bool {
		return o.hasField("system") && o.hasField("code") && !o.hasField("value")
	}},
	{typeCodeableConcept, func(o *ObjectValue) bool { return o.hasArrayField("coding") }},
	{typeReference, func(o *ObjectValue) bool { return o.hasField("reference") }},
	{typePeriod, func(o *ObjectValue) bool { return o.hasField("start") || o.hasField("end") }},
	{typeIdentifier, func(o *ObjectValue) bool { return o.hasField("system") && o.hasStringField("value") }},
	{typeRange, func(o *ObjectValue) bool { return o.hasField("low") || o.hasField("high") }},
	{typeRatio, func(o *ObjectValue) bool { return o.hasField("numerator") || o.hasField("denominator") }},
	{typeAttachment, func(o *ObjectValue) bool { return o.hasField("contentType") }},
	{typeHumanName, func(o *ObjectValue) bool { return o.hasField("family") || o.hasArrayField("given") }},
	{typeAddress, func(o *ObjectValue) bool { return o.hasField("city") || o.hasField("postalCode") }},
	{typeContactPoint, func(o *ObjectValue) bool { return o.hasField("system") && o.hasField("use") }},
	{typeAnnotation, func(o *ObjectValue) bool {
		return o.hasField("text") && (o.hasField("time") || o.hasField("authorReference") || o.hasField("authorString"))
	}},
}

// FHIR complex-type names used by the structural inference table above.
const (
	typeQuantity        = "Quantity"
	typeCoding          = "Coding"
	typeCodeableConcept = "CodeableConcept"
	typeReference       = "Reference"
	typePeriod          = "Period"
	typeIdentifier      = "Identifier"
	typeRange           = "Range"
	typeRatio           = "Ratio"
	typeAttachment      = "Attachment"
	typeHumanName       = "HumanName"
	typeAddress         = "Address"
	typeContactPoint    = "ContactPoint"
	typeAnnotation      = "Annotation"
	typeObject          = "Object"
)

// Type implements the navigator's type-of-value lookup. A
// resource carries its type explicitly via "resourceType"; a bare complex
// type (Quantity, HumanName, ...) has none, so its shape is matched against
// complexTypeRules instead. Anything unrecognized reports as a generic
// Object rather than failing — lenient mode extends to type introspection
// too.
func (o *ObjectValue) Type() string {
	if rt, err := jsonparser.GetString(o.data, "resourceType"); err == nil {
		return rt
	}
	for _, rule := range complexTypeRules {
		if rule.matches(o) {
			return rule.name
		}
	}
	return typeObject
}

func (o *ObjectValue) hasField(name string) bool {
	//nolint:dogsled // jsonparser.Get returns 4 values, we only need the error
	_, _, _, err := jsonparser.Get(o.data, name)
	return err == nil
}

func (o *ObjectValue) hasArrayField(name string) bool {
	_, dataType, _, err := jsonparser.Get(o.data, name)
	return err == nil && dataType == jsonparser.Array
}

func (o *ObjectValue) hasStringField(name string) bool {
	_, dataType, _, err := jsonparser.Get(o.data, name)
	return err == nil && dataType == jsonparser.String
}

// Equal reports structural JSON equality between two nodes. FHIR elements
// carry no separate identity beyond their content, so byte-for-byte
// equality of the underlying document is the node-level notion of "=".
func (o *ObjectValue) Equal(other Value) bool {
	ov, ok := other.(*ObjectValue)
	if !ok {
		return false
	}
	return bytes.Equal(o.data, ov.data)
}

// Equivalent has no looser notion of "~" for a structured node than Equal.
func (o *ObjectValue) Equivalent(other Value) bool {
	return o.Equal(other)
}

// String returns the node's JSON form.
func (o *ObjectValue) String() string {
	return string(o.data)
}

// IsEmpty is always false: an ObjectValue only exists to wrap a present node.
func (o *ObjectValue) IsEmpty() bool {
	return false
}

// Data exposes the node's raw JSON, e.g. for re-parsing a resolved reference.
func (o *ObjectValue) Data() []byte {
	return o.data
}

// Get implements property lookup: it returns the
// value at field, or ok=false if the field is absent. This is the lenient
// half of the contract — callers treat a false return as "empty", not an
// error, so that navigating a polymorphic or union-typed field never fails.
func (o *ObjectValue) Get(field string) (Value, bool) {
	if v, cached := o.fields[field]; cached {
		return v, true
	}

	raw, dataType, _, err := jsonparser.Get(o.data, field)
	if err != nil {
		return nil, false
	}

	v := scalarFromJSON(raw, dataType)
	o.fields[field] = v
	return v, true
}

// GetCollection implements property lookup for fields of cardinality >= 1:
// an array field expands to its elements; anything else comes back as a
// singleton (or the empty collection when absent).
func (o *ObjectValue) GetCollection(field string) Collection {
	raw, dataType, _, err := jsonparser.Get(o.data, field)
	if err != nil {
		return Collection{}
	}
	if dataType == jsonparser.Array {
		return collectionFromJSONArray(raw)
	}
	if v := scalarFromJSON(raw, dataType); v != nil {
		return Collection{v}
	}
	return Collection{}
}

// Keys lists the node's field names in declaration order.
func (o *ObjectValue) Keys() []string {
	var keys []string
	//nolint:errcheck // ObjectEach only returns errors for non-objects; o.data is always a valid object
	jsonparser.ObjectEach(o.data, func(key, _ []byte, _ jsonparser.ValueType, _ int) error {
		keys = append(keys, string(key))
		return nil
	})
	return keys
}

// Children implements all_children: every field's value,
// flattening multi-cardinality (array) fields into the result in
// declaration order.
func (o *ObjectValue) Children() Collection {
	var out Collection
	//nolint:errcheck // ObjectEach only returns errors for non-objects; o.data is always a valid object
	jsonparser.ObjectEach(o.data, func(_, value []byte, dataType jsonparser.ValueType, _ int) error {
		if dataType == jsonparser.Array {
			out = append(out, collectionFromJSONArray(value)...)
			return nil
		}
		if v := scalarFromJSON(value, dataType); v != nil {
			out = append(out, v)
		}
		return nil
	})
	return out
}

// scalarFromJSON converts one JSON scalar/object token to a Value. Arrays
// are not handled here — callers expand those via collectionFromJSONArray
// before a per-element call reaches this function.
func scalarFromJSON(raw []byte, dataType jsonparser.ValueType) Value {
	switch dataType {
	case jsonparser.String:
		return NewString(unquoteJSONString(raw))
	case jsonparser.Number:
		return numberFromJSON(raw)
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return nil
		}
		return NewBoolean(b)
	case jsonparser.Object:
		return NewObjectValue(raw)
	default: // Array, Null, NotExist
		return nil
	}
}

func unquoteJSONString(raw []byte) string {
	quoted := make([]byte, 0, len(raw)+2)
	quoted = append(quoted, '"')
	quoted = append(quoted, raw...)
	quoted = append(quoted, '"')
	var s string
	if err := json.Unmarshal(quoted, &s); err != nil {
		return string(raw)
	}
	return s
}

// numberFromJSON parses a JSON number token as Integer when it carries no
// fractional or exponent part, falling back to arbitrary-precision Decimal
// otherwise so FHIR decimals never round-trip through float64.
func numberFromJSON(raw []byte) Value {
	s := string(raw)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := jsonparser.ParseInt(raw); err == nil {
			return NewInteger(i)
		}
	}
	d, err := NewDecimal(s)
	if err != nil {
		return nil
	}
	return d
}

// collectionFromJSONArray expands a JSON array token into a Collection,
// dropping elements that don't convert (nested arrays, null entries).
func collectionFromJSONArray(raw []byte) Collection {
	var out Collection
	//nolint:errcheck // ArrayEach only returns errors for non-arrays; raw is already validated as array
	jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if v := scalarFromJSON(value, dataType); v != nil {
			out = append(out, v)
		}
	})
	return out
}

// JSONToCollection parses a resource document into its root-level
// collection: a singleton for an object, the expanded elements for an
// array, or empty for JSON null.
func JSONToCollection(data []byte) (Collection, error) {
	raw, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, err
	}

	switch dataType {
	case jsonparser.Object:
		return Collection{NewObjectValue(raw)}, nil
	case jsonparser.Array:
		return collectionFromJSONArray(raw), nil
	case jsonparser.Null:
		return Collection{}, nil
	default:
		if v := scalarFromJSON(raw, dataType); v != nil {
			return Collection{v}, nil
		}
		return Collection{}, nil
	}
}

// ToQuantity unwraps a FHIR Quantity-shaped node ("value" plus "unit" or
// "code") into the System.Quantity it implicitly converts to (the
// FHIR-to-System conversion lattice: "FHIR Quantity -> System Quantity"). ok is false for
// any node missing a numeric "value".
func (o *ObjectValue) ToQuantity() (q Quantity, ok bool) {
	raw, dataType, _, err := jsonparser.Get(o.data, "value")
	if err != nil || dataType != jsonparser.Number {
		return Quantity{}, false
	}

	val, err := decimal.NewFromString(string(raw))
	if err != nil {
		return Quantity{}, false
	}

	unit := ""
	if unitBytes, _, _, err := jsonparser.Get(o.data, "unit"); err == nil {
		unit = string(unitBytes)
	} else if codeBytes, _, _, err := jsonparser.Get(o.data, "code"); err == nil {
		unit = string(codeBytes)
	}

	return NewQuantityFromDecimal(val, unit), true
}
