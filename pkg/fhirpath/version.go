package fhirpath

import (
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/eval"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/funcs"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/types"
)

// FHIRVersion identifies the FHIR major version an Engine is bound to.
type FHIRVersion string

const (
	R4  FHIRVersion = "R4"
	R4B FHIRVersion = "R4B"
	R5  FHIRVersion = "R5"
)

// Engine pairs the evaluator with a FHIR version tag. The navigator logic
// (property lookup, choice-type unwrap, child enumeration) is shared across
// R4/R4B/R5 because all three versions use the same JSON value[x] choice
// convention and the same lenient-lookup contract; the factories differ only
// in which version tag they bind. The tag is recorded on the evaluation
// context, and no evaluation rule reads it: type matching is the same for
// every version.
type Engine struct {
	version FHIRVersion
}

// NewR4Engine returns an Engine bound to FHIR R4.
func NewR4Engine() *Engine { return &Engine{version: R4} }

// NewR4BEngine returns an Engine bound to FHIR R4B.
func NewR4BEngine() *Engine { return &Engine{version: R4B} }

// NewR5Engine returns an Engine bound to FHIR R5.
func NewR5Engine() *Engine { return &Engine{version: R5} }

// Version returns the FHIR version this engine is bound to.
func (e *Engine) Version() FHIRVersion {
	return e.version
}

// Compile parses expr once so it can be evaluated repeatedly against this
// engine's bound version.
func (e *Engine) Compile(expr string) (*Expression, error) {
	return compile(expr)
}

// Evaluate parses and evaluates expr against resource using this engine's
// FHIR version tag.
func (e *Engine) Evaluate(resource []byte, expr string) (types.Collection, error) {
	compiled, err := e.Compile(expr)
	if err != nil {
		return nil, err
	}
	return e.EvaluateCompiled(compiled, resource)
}

// EvaluateCompiled evaluates a pre-compiled Expression against resource
// using this engine's FHIR version tag.
func (e *Engine) EvaluateCompiled(compiled *Expression, resource []byte) (types.Collection, error) {
	ctx := eval.NewContext(resource)
	ctx.SetFHIRVersion(string(e.version))
	return compiled.EvaluateWithContext(ctx)
}

// EvaluateWithOptions evaluates expr with the given options using this
// engine's FHIR version tag.
func (e *Engine) EvaluateWithOptions(resource []byte, expr string, opts ...EvalOption) (types.Collection, error) {
	compiled, err := e.Compile(expr)
	if err != nil {
		return nil, err
	}

	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	ctx := eval.NewContext(resource)
	ctx.SetFHIRVersion(string(e.version))
	for name, value := range options.Variables {
		ctx.SetVariable(name, value)
	}
	ctx.SetLimit("maxDepth", options.MaxDepth)
	ctx.SetLimit("maxCollectionSize", options.MaxCollectionSize)
	if options.Resolver != nil {
		ctx.SetResolver(newResolverAdapter(options.Resolver))
	}

	evaluator := eval.NewEvaluator(ctx, funcs.GetRegistry())
	return evaluator.Evaluate(compiled.tree)
}
