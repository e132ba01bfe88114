package types

// TypeInfo is the value produced by the type() function: a (namespace, name)
// pair identifying a value's FHIRPath type, per the GLOSSARY's "Type tag".
type TypeInfo struct {
	Namespace string
	Name      string
}

// NewTypeInfo creates a TypeInfo in the given namespace ("System" or "FHIR").
func NewTypeInfo(namespace, name string) TypeInfo {
	return TypeInfo{Namespace: namespace, Name: name}
}

// Type returns the fixed type name "TypeInfo" used by reflection on type().
func (t TypeInfo) Type() string {
	return "TypeInfo"
}

// Equal compares namespace and name exactly.
func (t TypeInfo) Equal(other Value) bool {
	o, ok := other.(TypeInfo)
	return ok && t.Namespace == o.Namespace && t.Name == o.Name
}

// Equivalent is the same as Equal for TypeInfo.
func (t TypeInfo) Equivalent(other Value) bool {
	return t.Equal(other)
}

// String renders as "Namespace.Name".
func (t TypeInfo) String() string {
	return t.Namespace + "." + t.Name
}

// IsEmpty is always false for a TypeInfo value.
func (t TypeInfo) IsEmpty() bool {
	return false
}

// systemTypeNames lists the System namespace's primitive type names.
var systemTypeNames = map[string]bool{
	"Boolean": true, "String": true, "Integer": true, "Long": true,
	"Decimal": true, "Date": true, "DateTime": true, "Time": true,
	"Quantity": true,
}

// TypeInfoOf returns the TypeInfo for a value's reflected FHIRPath type name,
// binding it to the System namespace for system primitives and to FHIR for
// everything else (resources, complex types, and ObjectValue nodes carried
// by reference from the model).
func TypeInfoOf(v Value) TypeInfo {
	name := v.Type()
	if systemTypeNames[name] {
		return TypeInfo{Namespace: "System", Name: name}
	}
	return TypeInfo{Namespace: "FHIR", Name: name}
}
