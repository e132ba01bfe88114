package fhirpath

import (
	"fmt"

	"github.com/robertoaraneda/gofhir/pkg/common"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/ast"
)

// compile parses a FHIRPath expression into a compiled Expression. Failures
// wrap common.ErrInvalidExpression so callers can classify them with
// errors.Is without depending on the parser's error types.
func compile(expr string) (*Expression, error) {
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", common.ErrInvalidExpression)
	}

	tree, err := ast.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidExpression, err)
	}

	return &Expression{
		source: expr,
		tree:   tree,
	}, nil
}
