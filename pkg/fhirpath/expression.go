package fhirpath

import (
	"fmt"

	"github.com/robertoaraneda/gofhir/pkg/common"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/ast"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/eval"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/funcs"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/types"
)

// Expression represents a compiled FHIRPath expression.
type Expression struct {
	source string
	tree   ast.Node
}

// Evaluate executes the expression against a JSON resource.
func (e *Expression) Evaluate(resource []byte) (types.Collection, error) {
	ctx := eval.NewContext(resource)
	return e.EvaluateWithContext(ctx)
}

// EvaluateWithContext executes the expression with a custom context.
// Failures wrap common.ErrEvaluationFailed, with the source expression as
// the error's path context.
func (e *Expression) EvaluateWithContext(ctx *eval.Context) (types.Collection, error) {
	evaluator := eval.NewEvaluator(ctx, funcs.GetRegistry())
	result, err := evaluator.Evaluate(e.tree)
	if err != nil {
		return nil, common.WrapPath(e.source, fmt.Errorf("%w: %w", common.ErrEvaluationFailed, err))
	}
	return result, nil
}

// String returns the original expression string.
func (e *Expression) String() string {
	return e.source
}
