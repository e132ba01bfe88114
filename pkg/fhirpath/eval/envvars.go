package eval

import (
	"strings"

	"github.com/robertoaraneda/gofhir/pkg/fhirpath/types"
)

// wellKnownEnvironmentVariables maps the fixed FHIRPath environment variable
// names to their resolved string value.
var wellKnownEnvironmentVariables = map[string]string{
	"sct":   "http://snomed.info/sct",
	"loinc": "http://loinc.org",
	"ucum":  "http://unitsofmeasure.org",
}

// resolveEnvironmentVariable resolves %sct, %loinc, %ucum, %'vs-<id>' and
// %'ext-<id>' before a lookup falls through to the user-supplied variables
// map. Returns ok=false for anything it doesn't recognize, leaving the
// caller to treat the name as user-supplied (or undefined).
func resolveEnvironmentVariable(name string) (types.Collection, bool) {
	if v, ok := wellKnownEnvironmentVariables[name]; ok {
		return types.Collection{types.NewString(v)}, true
	}
	if id, ok := strings.CutPrefix(name, "vs-"); ok {
		return types.Collection{types.NewString("http://hl7.org/fhir/ValueSet/" + id)}, true
	}
	if id, ok := strings.CutPrefix(name, "ext-"); ok {
		return types.Collection{types.NewString("http://hl7.org/fhir/StructureDefinition/" + id)}, true
	}
	return nil, false
}
