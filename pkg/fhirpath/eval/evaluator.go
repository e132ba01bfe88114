package eval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robertoaraneda/gofhir/pkg/fhirpath/ast"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/types"
)

// FuncImpl is the signature for function implementations.
type FuncImpl func(ctx *Context, input types.Collection, args []interface{}) (types.Collection, error)

// FuncDef defines a FHIRPath function.
type FuncDef struct {
	Name    string
	MinArgs int
	MaxArgs int
	Fn      FuncImpl
}

// FuncRegistry is an interface for function lookup.
type FuncRegistry interface {
	Get(name string) (FuncDef, bool)
}

// Resolver handles FHIR reference resolution.
type Resolver interface {
	Resolve(ctx context.Context, reference string) ([]byte, error)
}

// Evaluator evaluates FHIRPath expressions by walking an ast.Node tree.
type Evaluator struct {
	ctx   *Context
	funcs FuncRegistry
}

// Context holds the evaluation state.
type Context struct {
	root      types.Collection
	this      types.Collection
	index     int
	total     types.Value
	variables map[string]types.Collection
	limits    map[string]int
	goCtx     context.Context
	resolver  Resolver
	now       time.Time
	version   string
}

// NewContext creates a new evaluation context.
// Automatically sets %resource and %context to the root resource for FHIR constraint evaluation.
// Per FHIRPath spec:
//   - %resource: the root resource being evaluated
//   - %context: the original node passed to the evaluation engine (same as %resource for top-level evaluation)
func NewContext(resource []byte) *Context {
	//nolint:errcheck // Empty collection is acceptable for invalid JSON in context creation
	root, _ := types.JSONToCollection(resource)

	variables := make(map[string]types.Collection)
	variables["resource"] = root
	variables["context"] = root

	return &Context{
		root:      root,
		this:      root,
		variables: variables,
		limits:    make(map[string]int),
		goCtx:     context.Background(),
		now:       time.Now(),
	}
}

// SetFHIRVersion tags the context with the FHIR major version ("R4", "R4B",
// "R5") its bound model navigator targets. The evaluator itself never
// branches on this value; it exists for navigator/type-resolver code and
// for %context-style introspection.
func (c *Context) SetFHIRVersion(version string) {
	c.version = version
}

// FHIRVersion returns the tagged FHIR major version, defaulting to "R4".
func (c *Context) FHIRVersion() string {
	if c.version == "" {
		return "R4"
	}
	return c.version
}

// Now returns the timestamp captured once at the start of this evaluation,
// so now(), today() and timeOfDay() agree within a single evaluate() call.
func (c *Context) Now() time.Time {
	if c.now.IsZero() {
		c.now = time.Now()
	}
	return c.now
}

// SetLimit sets a limit value (e.g., maxDepth, maxCollectionSize).
func (c *Context) SetLimit(name string, value int) {
	if c.limits == nil {
		c.limits = make(map[string]int)
	}
	c.limits[name] = value
}

// GetLimit gets a limit value.
func (c *Context) GetLimit(name string) int {
	if c.limits == nil {
		return 0
	}
	return c.limits[name]
}

// SetContext sets the Go context for cancellation.
func (c *Context) SetContext(ctx context.Context) {
	c.goCtx = ctx
}

// Context returns the Go context.
func (c *Context) Context() context.Context {
	if c.goCtx == nil {
		return context.Background()
	}
	return c.goCtx
}

// SetResolver sets the reference resolver.
func (c *Context) SetResolver(r Resolver) {
	c.resolver = r
}

// GetResolver returns the reference resolver.
func (c *Context) GetResolver() Resolver {
	return c.resolver
}

// CheckCancellation checks if the context has been canceled.
func (c *Context) CheckCancellation() error {
	if c.goCtx == nil {
		return nil
	}
	select {
	case <-c.goCtx.Done():
		return c.goCtx.Err()
	default:
		return nil
	}
}

// CheckCollectionSize validates that a collection doesn't exceed the maximum size.
func (c *Context) CheckCollectionSize(col types.Collection) error {
	maxSize := c.GetLimit("maxCollectionSize")
	if maxSize > 0 && len(col) > maxSize {
		return NewEvalError(ErrInvalidExpression,
			"collection size %d exceeds maximum allowed %d", len(col), maxSize)
	}
	return nil
}

// EnforceCollectionLimit truncates a collection if it exceeds the maximum size.
func (c *Context) EnforceCollectionLimit(col types.Collection) (types.Collection, bool) {
	maxSize := c.GetLimit("maxCollectionSize")
	if maxSize > 0 && len(col) > maxSize {
		return col[:maxSize], true
	}
	return col, false
}

// Root returns the root collection.
func (c *Context) Root() types.Collection {
	return c.root
}

// This returns the current $this value.
func (c *Context) This() types.Collection {
	return c.this
}

// WithThis returns a new context with the given $this value.
func (c *Context) WithThis(this types.Collection) *Context {
	newCtx := *c
	newCtx.this = this
	return &newCtx
}

// WithIndex returns a new context with the given $index value.
func (c *Context) WithIndex(index int) *Context {
	newCtx := *c
	newCtx.index = index
	return &newCtx
}

// SetVariable sets an external variable.
func (c *Context) SetVariable(name string, value types.Collection) {
	c.variables[name] = value
}

// GetVariable resolves the fixed environment variables (%sct, %loinc, %ucum,
// %vs-*, %ext-*) first, then falls back to the external variables map before
// reporting undefined.
func (c *Context) GetVariable(name string) (types.Collection, bool) {
	if v, ok := resolveEnvironmentVariable(name); ok {
		return v, true
	}
	v, ok := c.variables[name]
	return v, ok
}

// NewEvaluator creates a new evaluator with the given context and function registry.
func NewEvaluator(ctx *Context, funcs FuncRegistry) *Evaluator {
	return &Evaluator{ctx: ctx, funcs: funcs}
}

// Evaluate evaluates a parsed AST and returns the result.
func (e *Evaluator) Evaluate(tree ast.Node) (types.Collection, error) {
	result := e.Visit(tree)
	if err, ok := result.(error); ok {
		return nil, err
	}
	if col, ok := result.(types.Collection); ok {
		return col, nil
	}
	return types.Collection{}, nil
}

// Visit dispatches on the concrete node type, mirroring a generated
// visitor's per-rule Accept dispatch.
func (e *Evaluator) Visit(node ast.Node) interface{} {
	if node == nil {
		return types.Collection{}
	}

	switch n := node.(type) {
	case ast.NullLiteral:
		return types.Collection{}
	case ast.BooleanLiteral:
		return types.Collection{types.NewBoolean(n.Value)}
	case ast.StringLiteral:
		return types.Collection{types.NewString(n.Value)}
	case ast.NumberLiteral:
		return e.visitNumberLiteral(n)
	case ast.DateLiteral:
		return e.visitDateLiteral(n)
	case ast.DateTimeLiteral:
		return e.visitDateTimeLiteral(n)
	case ast.TimeLiteral:
		return e.visitTimeLiteral(n)
	case ast.QuantityLiteral:
		return e.visitQuantityLiteral(n)
	case ast.ExternalConstant:
		return e.visitExternalConstant(n)
	case ast.ThisInvocation:
		return e.ctx.This()
	case ast.IndexInvocation:
		return types.Collection{types.NewInteger(int64(e.ctx.index))}
	case ast.TotalInvocation:
		if e.ctx.total != nil {
			return types.Collection{e.ctx.total}
		}
		return types.Collection{}
	case ast.MemberInvocation:
		return e.navigateMember(e.ctx.This(), stripBackticks(n.Name))
	case ast.FunctionInvocation:
		return e.visitFunctionInvocation(n)
	case ast.InvocationExpression:
		return e.visitInvocationExpression(n)
	case ast.IndexerExpression:
		return e.visitIndexerExpression(n)
	case ast.PolarityExpression:
		return e.visitPolarityExpression(n)
	case ast.MultiplicativeExpression:
		return e.visitMultiplicativeExpression(n)
	case ast.AdditiveExpression:
		return e.visitAdditiveExpression(n)
	case ast.TypeExpression:
		return e.visitTypeExpression(n)
	case ast.UnionExpression:
		return e.visitUnionExpression(n)
	case ast.InequalityExpression:
		return e.visitInequalityExpression(n)
	case ast.EqualityExpression:
		return e.visitEqualityExpression(n)
	case ast.MembershipExpression:
		return e.visitMembershipExpression(n)
	case ast.AndExpression:
		return e.visitAndExpression(n)
	case ast.OrExpression:
		return e.visitOrExpression(n)
	case ast.ImpliesExpression:
		return e.visitImpliesExpression(n)
	}

	return ParseError(fmt.Sprintf("unrecognized node: %T", node))
}

// Literal visitors

func (e *Evaluator) visitNumberLiteral(n ast.NumberLiteral) interface{} {
	switch n.Kind {
	case "Long":
		v, err := types.NewLong(strings.TrimSuffix(n.Text, "L"))
		if err != nil {
			return ParseError("invalid long: " + n.Text)
		}
		return types.Collection{v}
	case "Decimal":
		d, err := types.NewDecimal(n.Text)
		if err != nil {
			return ParseError("invalid number: " + n.Text)
		}
		return types.Collection{d}
	default:
		v, err := types.NewLong(n.Text)
		if err != nil {
			return ParseError("invalid number: " + n.Text)
		}
		if i, ok := v.ToInteger(); ok {
			return types.Collection{i}
		}
		return types.Collection{v}
	}
}

func (e *Evaluator) visitDateLiteral(n ast.DateLiteral) interface{} {
	d, err := types.NewDate(n.Text)
	if err != nil {
		return ParseError("invalid date: " + n.Text)
	}
	return types.Collection{d}
}

func (e *Evaluator) visitDateTimeLiteral(n ast.DateTimeLiteral) interface{} {
	dt, err := types.NewDateTime(n.Text)
	if err != nil {
		return ParseError("invalid datetime: " + n.Text)
	}
	return types.Collection{dt}
}

func (e *Evaluator) visitTimeLiteral(n ast.TimeLiteral) interface{} {
	t, err := types.NewTime(n.Text)
	if err != nil {
		return ParseError("invalid time: " + n.Text)
	}
	return types.Collection{t}
}

func (e *Evaluator) visitQuantityLiteral(n ast.QuantityLiteral) interface{} {
	text := n.Value
	if n.Unit != "" {
		text += " '" + n.Unit + "'"
	}
	q, err := types.NewQuantity(text)
	if err != nil {
		return ParseError("invalid quantity: " + text)
	}
	return types.Collection{q}
}

func (e *Evaluator) visitExternalConstant(n ast.ExternalConstant) interface{} {
	name := stripBackticks(n.Name)
	if value, ok := e.ctx.GetVariable(name); ok {
		return value
	}
	return NewEvalError(ErrInvalidPath, "undefined variable: %"+name)
}

// Invocation visitors

func (e *Evaluator) visitFunctionInvocation(n ast.FunctionInvocation) interface{} {
	name := stripBackticks(n.Name)

	fn, ok := e.funcs.Get(name)
	if !ok {
		return FunctionNotFoundError(name)
	}

	argCount := len(n.Args)
	if argCount < fn.MinArgs {
		return InvalidArgumentsError(name, fn.MinArgs, argCount)
	}
	if fn.MaxArgs >= 0 && argCount > fn.MaxArgs {
		return InvalidArgumentsError(name, fn.MaxArgs, argCount)
	}

	input := e.ctx.This()
	switch name {
	case "where":
		if argCount > 0 {
			return e.evaluateWhere(input, n.Args[0])
		}
	case "exists":
		if argCount > 0 {
			return e.evaluateExists(input, n.Args[0])
		}
	case "all":
		if argCount > 0 {
			return e.evaluateAll(input, n.Args[0])
		}
	case "select":
		if argCount > 0 {
			return e.evaluateSelect(input, n.Args[0])
		}
	case "repeat":
		if argCount > 0 {
			return e.evaluateRepeat(input, n.Args[0])
		}
	case "is":
		if argCount > 0 {
			return e.evaluateIsFunction(input, n.Args[0])
		}
	case "as":
		if argCount > 0 {
			return e.evaluateAsFunction(input, n.Args[0])
		}
	case "ofType":
		if argCount > 0 {
			return e.evaluateOfType(input, n.Args[0])
		}
	case "iif":
		if argCount >= 2 {
			return e.evaluateIif(input, n.Args)
		}
	case "aggregate":
		if argCount > 0 {
			var initExpr ast.Node
			if argCount > 1 {
				initExpr = n.Args[1]
			}
			return e.evaluateAggregate(input, n.Args[0], initExpr)
		}
	}

	args := make([]interface{}, argCount)
	for i, argExpr := range n.Args {
		result := e.Visit(argExpr)
		if err, ok := result.(error); ok {
			return err
		}
		args[i] = result
	}

	result, err := fn.Fn(e.ctx, e.ctx.This(), args)
	if err != nil {
		return err
	}
	return result
}

func (e *Evaluator) evaluateWhere(input types.Collection, criteria ast.Node) interface{} {
	result := types.Collection{}

	if err := e.ctx.CheckCollectionSize(input); err != nil {
		return err
	}

	for i, item := range input {
		if i%100 == 0 {
			if err := e.ctx.CheckCancellation(); err != nil {
				return err
			}
		}

		oldThis, oldIndex := e.ctx.this, e.ctx.index
		e.ctx.this = types.Collection{item}
		e.ctx.index = i

		criteriaResult := e.Visit(criteria)

		e.ctx.this, e.ctx.index = oldThis, oldIndex

		if err, ok := criteriaResult.(error); ok {
			return err
		}

		if col, ok := criteriaResult.(types.Collection); ok && !col.Empty() {
			if b, ok := col[0].(types.Boolean); ok && b.Bool() {
				result = append(result, item)
			}
		}
	}

	return result
}

func (e *Evaluator) evaluateExists(input types.Collection, criteria ast.Node) interface{} {
	for i, item := range input {
		if i%100 == 0 {
			if err := e.ctx.CheckCancellation(); err != nil {
				return err
			}
		}

		oldThis, oldIndex := e.ctx.this, e.ctx.index
		e.ctx.this = types.Collection{item}
		e.ctx.index = i

		criteriaResult := e.Visit(criteria)

		e.ctx.this, e.ctx.index = oldThis, oldIndex

		if err, ok := criteriaResult.(error); ok {
			return err
		}

		if col, ok := criteriaResult.(types.Collection); ok && !col.Empty() {
			if b, ok := col[0].(types.Boolean); ok && b.Bool() {
				return types.Collection{types.NewBoolean(true)}
			}
		}
	}

	return types.Collection{types.NewBoolean(false)}
}

func (e *Evaluator) evaluateAll(input types.Collection, criteria ast.Node) interface{} {
	if input.Empty() {
		return types.Collection{types.NewBoolean(true)}
	}

	for i, item := range input {
		if i%100 == 0 {
			if err := e.ctx.CheckCancellation(); err != nil {
				return err
			}
		}

		oldThis, oldIndex := e.ctx.this, e.ctx.index
		e.ctx.this = types.Collection{item}
		e.ctx.index = i

		criteriaResult := e.Visit(criteria)

		e.ctx.this, e.ctx.index = oldThis, oldIndex

		if err, ok := criteriaResult.(error); ok {
			return err
		}

		if col, ok := criteriaResult.(types.Collection); ok {
			if col.Empty() {
				return types.Collection{types.NewBoolean(false)}
			}
			if b, ok := col[0].(types.Boolean); ok && !b.Bool() {
				return types.Collection{types.NewBoolean(false)}
			}
		}
	}

	return types.Collection{types.NewBoolean(true)}
}

func (e *Evaluator) evaluateSelect(input types.Collection, projection ast.Node) interface{} {
	result := types.Collection{}

	if err := e.ctx.CheckCollectionSize(input); err != nil {
		return err
	}

	for i, item := range input {
		if i%100 == 0 {
			if err := e.ctx.CheckCancellation(); err != nil {
				return err
			}
		}

		oldThis, oldIndex := e.ctx.this, e.ctx.index
		e.ctx.this = types.Collection{item}
		e.ctx.index = i

		projResult := e.Visit(projection)

		e.ctx.this, e.ctx.index = oldThis, oldIndex

		if err, ok := projResult.(error); ok {
			return err
		}

		if col, ok := projResult.(types.Collection); ok {
			result = append(result, col...)
			if err := e.ctx.CheckCollectionSize(result); err != nil {
				return err
			}
		}
	}

	return result
}

// evaluateRepeat repeatedly applies projection to the accumulating result
// set until no new items appear, per the closure-computation semantics of
// repeat().
func (e *Evaluator) evaluateRepeat(input types.Collection, projection ast.Node) interface{} {
	seen := map[string]bool{}
	result := types.Collection{}
	frontier := input

	for iteration := 0; len(frontier) > 0; iteration++ {
		maxDepth := e.ctx.GetLimit("maxDepth")
		if maxDepth > 0 && iteration > maxDepth {
			break
		}

		next := types.Collection{}
		for i, item := range frontier {
			if i%100 == 0 {
				if err := e.ctx.CheckCancellation(); err != nil {
					return err
				}
			}

			oldThis, oldIndex := e.ctx.this, e.ctx.index
			e.ctx.this = types.Collection{item}
			e.ctx.index = i

			projResult := e.Visit(projection)

			e.ctx.this, e.ctx.index = oldThis, oldIndex

			if err, ok := projResult.(error); ok {
				return err
			}

			col, ok := projResult.(types.Collection)
			if !ok {
				continue
			}

			for _, v := range col {
				key := v.Type() + ":" + v.String()
				if seen[key] {
					continue
				}
				seen[key] = true
				result = append(result, v)
				next = append(next, v)
			}
		}
		frontier = next
	}

	return result
}

// evaluateAggregate folds the collection through aggregator, exposing the
// running value as $total (empty unless init is given or a previous
// iteration set it) and each element as $this.
func (e *Evaluator) evaluateAggregate(input types.Collection, aggregator ast.Node, init ast.Node) interface{} {
	oldTotal := e.ctx.total

	if init != nil {
		initResult := e.Visit(init)
		if err, ok := initResult.(error); ok {
			return err
		}
		if col, ok := initResult.(types.Collection); ok {
			if v, ok := col.First(); ok {
				e.ctx.total = v
			} else {
				e.ctx.total = nil
			}
		}
	} else {
		e.ctx.total = nil
	}

	for i, item := range input {
		if i%100 == 0 {
			if err := e.ctx.CheckCancellation(); err != nil {
				e.ctx.total = oldTotal
				return err
			}
		}

		oldThis, oldIndex := e.ctx.this, e.ctx.index
		e.ctx.this = types.Collection{item}
		e.ctx.index = i

		result := e.Visit(aggregator)

		e.ctx.this, e.ctx.index = oldThis, oldIndex

		if err, ok := result.(error); ok {
			e.ctx.total = oldTotal
			return err
		}

		if col, ok := result.(types.Collection); ok {
			if v, ok := col.First(); ok {
				e.ctx.total = v
			} else {
				e.ctx.total = nil
			}
		}
	}

	total := e.ctx.total
	e.ctx.total = oldTotal

	if total == nil {
		return types.Collection{}
	}
	return types.Collection{total}
}

func (e *Evaluator) evaluateIsFunction(input types.Collection, typeExpr ast.Node) interface{} {
	if input.Empty() {
		return types.Collection{}
	}
	if len(input) != 1 {
		return SingletonError(len(input))
	}

	typeName := nodeToTypeName(typeExpr)
	if typeName == "" {
		return InvalidArgumentsError("is", 1, 0)
	}

	actualType := input[0].Type()
	matches := TypeMatches(actualType, typeName)
	return types.Collection{types.NewBoolean(matches)}
}

func (e *Evaluator) evaluateAsFunction(input types.Collection, typeExpr ast.Node) interface{} {
	if input.Empty() {
		return types.Collection{}
	}
	if len(input) != 1 {
		return SingletonError(len(input))
	}

	typeName := nodeToTypeName(typeExpr)
	if typeName == "" {
		return InvalidArgumentsError("as", 1, 0)
	}

	actualType := input[0].Type()
	if TypeMatches(actualType, typeName) {
		return input
	}
	return types.Collection{}
}

// nodeToTypeName reconstructs a (possibly qualified) type name from an
// expression AST, e.g. Patient or FHIR.Patient or System.Boolean.
func nodeToTypeName(node ast.Node) string {
	switch n := node.(type) {
	case ast.MemberInvocation:
		return n.Name
	case ast.InvocationExpression:
		base := nodeToTypeName(n.Base)
		inv := nodeToTypeName(n.Invocation)
		if base == "" || inv == "" {
			return ""
		}
		return base + "." + inv
	}
	return ""
}

func (e *Evaluator) evaluateOfType(input types.Collection, typeExpr ast.Node) interface{} {
	if input.Empty() {
		return types.Collection{}
	}

	typeName := nodeToTypeName(typeExpr)
	if typeName == "" {
		return InvalidArgumentsError("ofType", 1, 0)
	}

	result := types.Collection{}
	for _, item := range input {
		actualType := item.Type()
		if obj, ok := item.(*types.ObjectValue); ok {
			actualType = obj.Type()
		}
		if TypeMatches(actualType, typeName) {
			result = append(result, item)
		}
	}

	return result
}

func (e *Evaluator) evaluateIif(_ types.Collection, argExprs []ast.Node) interface{} {
	if len(argExprs) < 2 {
		return InvalidArgumentsError("iif", 2, len(argExprs))
	}

	criterionResult := e.Visit(argExprs[0])
	if err, ok := criterionResult.(error); ok {
		return err
	}

	criterion := false
	if coll, ok := criterionResult.(types.Collection); ok && !coll.Empty() {
		if b, ok := coll[0].(types.Boolean); ok {
			criterion = b.Bool()
		}
	}

	if criterion {
		result := e.Visit(argExprs[1])
		if err, ok := result.(error); ok {
			return err
		}
		if coll, ok := result.(types.Collection); ok {
			return coll
		}
		return types.Collection{}
	}

	if len(argExprs) > 2 {
		result := e.Visit(argExprs[2])
		if err, ok := result.(error); ok {
			return err
		}
		if coll, ok := result.(types.Collection); ok {
			return coll
		}
	}

	return types.Collection{}
}

// Expression visitors

func (e *Evaluator) visitInvocationExpression(n ast.InvocationExpression) interface{} {
	base := e.Visit(n.Base)
	if err, ok := base.(error); ok {
		return err
	}
	baseCol := base.(types.Collection)

	oldThis := e.ctx.this
	e.ctx.this = baseCol
	defer func() { e.ctx.this = oldThis }()

	return e.Visit(n.Invocation)
}

func (e *Evaluator) visitIndexerExpression(n ast.IndexerExpression) interface{} {
	base := e.Visit(n.Base)
	if err, ok := base.(error); ok {
		return err
	}
	baseCol := base.(types.Collection)

	index := e.Visit(n.Index)
	if err, ok := index.(error); ok {
		return err
	}
	indexCol := index.(types.Collection)

	if indexCol.Empty() {
		return types.Collection{}
	}

	idx, ok := indexCol[0].(types.Integer)
	if !ok {
		return TypeError("Integer", indexCol[0].Type(), "indexer")
	}

	i := int(idx.Value())
	if i < 0 || i >= len(baseCol) {
		return types.Collection{}
	}

	return types.Collection{baseCol[i]}
}

func (e *Evaluator) visitPolarityExpression(n ast.PolarityExpression) interface{} {
	result := e.Visit(n.Operand)
	if err, ok := result.(error); ok {
		return err
	}
	col := result.(types.Collection)

	if col.Empty() {
		return col
	}
	if len(col) != 1 {
		return SingletonError(len(col))
	}

	if n.Op == "-" {
		negated, err := Negate(col[0])
		if err != nil {
			return err
		}
		return types.Collection{negated}
	}

	return col
}

func (e *Evaluator) visitMultiplicativeExpression(n ast.MultiplicativeExpression) interface{} {
	left := e.Visit(n.Left)
	if err, ok := left.(error); ok {
		return err
	}
	leftCol := left.(types.Collection)

	right := e.Visit(n.Right)
	if err, ok := right.(error); ok {
		return err
	}
	rightCol := right.(types.Collection)

	if leftCol.Empty() || rightCol.Empty() {
		return types.Collection{}
	}
	if len(leftCol) != 1 || len(rightCol) != 1 {
		return SingletonError(len(leftCol) + len(rightCol))
	}

	var result types.Value
	var err error

	switch n.Op {
	case "*":
		result, err = Multiply(leftCol[0], rightCol[0])
	case "/":
		result, err = Divide(leftCol[0], rightCol[0])
	case "div":
		result, err = IntegerDivide(leftCol[0], rightCol[0])
	case "mod":
		result, err = Modulo(leftCol[0], rightCol[0])
	}

	if err != nil {
		if errors.Is(err, types.ErrDivideByZero) {
			return types.Collection{}
		}
		return err
	}
	return types.Collection{result}
}

func (e *Evaluator) visitAdditiveExpression(n ast.AdditiveExpression) interface{} {
	left := e.Visit(n.Left)
	if err, ok := left.(error); ok {
		return err
	}
	leftCol := left.(types.Collection)

	right := e.Visit(n.Right)
	if err, ok := right.(error); ok {
		return err
	}
	rightCol := right.(types.Collection)

	if n.Op == "&" {
		return Concatenate(leftCol, rightCol)
	}

	if leftCol.Empty() || rightCol.Empty() {
		return types.Collection{}
	}
	if len(leftCol) != 1 || len(rightCol) != 1 {
		return SingletonError(len(leftCol) + len(rightCol))
	}

	var result types.Value
	var err error

	switch n.Op {
	case "+":
		result, err = Add(leftCol[0], rightCol[0])
	case "-":
		result, err = Subtract(leftCol[0], rightCol[0])
	}

	if err != nil {
		return err
	}
	return types.Collection{result}
}

func (e *Evaluator) visitUnionExpression(n ast.UnionExpression) interface{} {
	left := e.Visit(n.Left)
	if err, ok := left.(error); ok {
		return err
	}
	leftCol := left.(types.Collection)

	right := e.Visit(n.Right)
	if err, ok := right.(error); ok {
		return err
	}
	rightCol := right.(types.Collection)

	return Union(leftCol, rightCol)
}

func (e *Evaluator) visitInequalityExpression(n ast.InequalityExpression) interface{} {
	left := e.Visit(n.Left)
	if err, ok := left.(error); ok {
		return err
	}
	leftCol := left.(types.Collection)

	right := e.Visit(n.Right)
	if err, ok := right.(error); ok {
		return err
	}
	rightCol := right.(types.Collection)

	if leftCol.Empty() || rightCol.Empty() {
		return types.Collection{}
	}
	if len(leftCol) != 1 || len(rightCol) != 1 {
		return SingletonError(len(leftCol) + len(rightCol))
	}

	var result types.Collection
	var err error

	switch n.Op {
	case "<":
		result, err = LessThan(leftCol[0], rightCol[0])
	case "<=":
		result, err = LessOrEqual(leftCol[0], rightCol[0])
	case ">":
		result, err = GreaterThan(leftCol[0], rightCol[0])
	case ">=":
		result, err = GreaterOrEqual(leftCol[0], rightCol[0])
	default:
		return types.Collection{}
	}

	if err != nil {
		if errors.Is(err, types.ErrAmbiguousComparison) {
			return types.Collection{}
		}
		return err
	}
	return result
}

func (e *Evaluator) visitEqualityExpression(n ast.EqualityExpression) interface{} {
	left := e.Visit(n.Left)
	if err, ok := left.(error); ok {
		return err
	}
	leftCol := left.(types.Collection)

	right := e.Visit(n.Right)
	if err, ok := right.(error); ok {
		return err
	}
	rightCol := right.(types.Collection)

	switch n.Op {
	case "=":
		return Equal(leftCol, rightCol)
	case "!=":
		return NotEqual(leftCol, rightCol)
	case "~":
		return Equivalent(leftCol, rightCol)
	case "!~":
		return NotEquivalent(leftCol, rightCol)
	}

	return types.Collection{}
}

func (e *Evaluator) visitMembershipExpression(n ast.MembershipExpression) interface{} {
	left := e.Visit(n.Left)
	if err, ok := left.(error); ok {
		return err
	}
	leftCol := left.(types.Collection)

	right := e.Visit(n.Right)
	if err, ok := right.(error); ok {
		return err
	}
	rightCol := right.(types.Collection)

	switch n.Op {
	case "in":
		return In(leftCol, rightCol)
	case "contains":
		return Contains(leftCol, rightCol)
	}

	return types.Collection{}
}

func (e *Evaluator) visitAndExpression(n ast.AndExpression) interface{} {
	left := e.Visit(n.Left)
	if err, ok := left.(error); ok {
		return err
	}
	leftCol := left.(types.Collection)

	right := e.Visit(n.Right)
	if err, ok := right.(error); ok {
		return err
	}
	rightCol := right.(types.Collection)

	return And(leftCol, rightCol)
}

func (e *Evaluator) visitOrExpression(n ast.OrExpression) interface{} {
	left := e.Visit(n.Left)
	if err, ok := left.(error); ok {
		return err
	}
	leftCol := left.(types.Collection)

	right := e.Visit(n.Right)
	if err, ok := right.(error); ok {
		return err
	}
	rightCol := right.(types.Collection)

	switch n.Op {
	case "or":
		return Or(leftCol, rightCol)
	case "xor":
		return Xor(leftCol, rightCol)
	}

	return types.Collection{}
}

func (e *Evaluator) visitImpliesExpression(n ast.ImpliesExpression) interface{} {
	left := e.Visit(n.Left)
	if err, ok := left.(error); ok {
		return err
	}
	leftCol := left.(types.Collection)

	right := e.Visit(n.Right)
	if err, ok := right.(error); ok {
		return err
	}
	rightCol := right.(types.Collection)

	return Implies(leftCol, rightCol)
}

func (e *Evaluator) visitTypeExpression(n ast.TypeExpression) interface{} {
	left := e.Visit(n.Left)
	if err, ok := left.(error); ok {
		return err
	}
	leftCol := left.(types.Collection)

	typeName := n.Type.Name
	if n.Type.Qualifier != "" {
		typeName = n.Type.Qualifier + "." + n.Type.Name
	}

	if leftCol.Empty() {
		return types.Collection{}
	}
	if len(leftCol) != 1 {
		return SingletonError(len(leftCol))
	}

	actualType := leftCol[0].Type()

	switch n.Op {
	case "is":
		return types.Collection{types.NewBoolean(TypeMatches(actualType, typeName))}
	case "as":
		if TypeMatches(actualType, typeName) {
			return leftCol
		}
		return types.Collection{}
	}

	return types.Collection{}
}

// nonDomainResources contains FHIR resources that inherit directly from Resource,
// not from DomainResource. All other resources inherit from DomainResource.
var nonDomainResources = map[string]bool{
	"Bundle":     true,
	"Binary":     true,
	"Parameters": true,
}

// IsDomainResource returns true if the given resource type inherits from DomainResource.
func IsDomainResource(resourceType string) bool {
	return !nonDomainResources[resourceType]
}

// IsSubtypeOf checks if actualType is a subtype of (or equal to) baseType.
func IsSubtypeOf(actualType, baseType string) bool {
	if actualType == baseType {
		return true
	}
	if strings.EqualFold(actualType, baseType) {
		return true
	}

	if baseType == "Resource" || strings.EqualFold(baseType, "resource") {
		return isPossibleResourceType(actualType)
	}

	if baseType == "DomainResource" || strings.EqualFold(baseType, "domainresource") {
		return isPossibleResourceType(actualType) && IsDomainResource(actualType)
	}

	return false
}

// isPossibleResourceType checks if the type looks like a FHIR resource type.
func isPossibleResourceType(typeName string) bool {
	if typeName == "" {
		return false
	}

	primitiveTypes := map[string]bool{
		"Boolean": true, "String": true, "Integer": true, "Long": true, "Decimal": true,
		"Date": true, "DateTime": true, "Time": true, "Quantity": true,
		"Object": true,
	}
	if primitiveTypes[typeName] {
		return false
	}

	return typeName[0] >= 'A' && typeName[0] <= 'Z'
}

// TypeMatches checks if actualType matches the requested typeName.
func TypeMatches(actualType, typeName string) bool {
	if actualType == typeName {
		return true
	}

	actualLower := strings.ToLower(actualType)
	typeNameLower := strings.ToLower(typeName)

	if actualLower == typeNameLower {
		return true
	}

	if IsSubtypeOf(actualType, typeName) {
		return true
	}

	fhirToFHIRPath := map[string]string{
		"boolean":        "Boolean",
		"string":         "String",
		"integer":        "Integer",
		"decimal":        "Decimal",
		"date":           "Date",
		"datetime":       "DateTime",
		"time":           "Time",
		"instant":        "DateTime",
		"uri":            "String",
		"url":            "String",
		"canonical":      "String",
		"base64binary":   "String",
		"code":           "String",
		"id":             "String",
		"markdown":       "String",
		"oid":            "String",
		"uuid":           "String",
		"positiveint":    "Integer",
		"unsignedint":    "Integer",
		"integer64":      "Long",
		"quantity":       "Quantity",
		"simplequantity": "Quantity",
		"age":            "Quantity",
		"count":          "Quantity",
		"distance":       "Quantity",
		"duration":       "Quantity",
		"money":          "Quantity",
	}

	if fhirPathType, ok := fhirToFHIRPath[typeNameLower]; ok {
		if actualType == fhirPathType {
			return true
		}
	}

	if fhirPathType, ok := fhirToFHIRPath[actualLower]; ok {
		if fhirPathType == typeName || strings.EqualFold(fhirPathType, typeName) {
			return true
		}
	}

	if strings.HasPrefix(typeNameLower, "system.") {
		systemType := typeName[7:]
		if strings.EqualFold(actualType, systemType) {
			return true
		}
	}

	if strings.HasPrefix(typeNameLower, "fhir.") {
		fhirType := typeName[5:]
		if strings.EqualFold(actualType, fhirType) {
			return true
		}
	}

	return false
}

// polymorphicTypeSuffixes contains all FHIR type suffixes for polymorphic elements (value[x] pattern).
var polymorphicTypeSuffixes = []string{
	"Boolean", "Integer", "Integer64", "Decimal", "String", "Code", "Id", "Uri", "Url", "Canonical",
	"Base64Binary", "Instant", "Date", "DateTime", "Time", "Oid", "Uuid", "Markdown", "PositiveInt", "UnsignedInt",
	"Quantity", "CodeableConcept", "Coding", "Range", "Period", "Ratio", "RatioRange",
	"Identifier", "Reference", "Attachment", "HumanName", "Address", "ContactPoint",
	"Timing", "Signature", "Annotation", "SampledData", "Age", "Distance", "Duration",
	"Count", "Money", "MoneyQuantity", "SimpleQuantity",
	"Meta", "Dosage", "ContactDetail", "Contributor", "DataRequirement", "Expression",
	"ParameterDefinition", "RelatedArtifact", "TriggerDefinition", "UsageContext",
}

// navigateMember navigates to a member of objects in the collection.
func (e *Evaluator) navigateMember(input types.Collection, name string) types.Collection {
	result := types.Collection{}

	for _, item := range input {
		obj, ok := item.(*types.ObjectValue)
		if !ok {
			continue
		}

		if IsSubtypeOf(obj.Type(), name) {
			result = append(result, obj)
			continue
		}

		children := obj.GetCollection(name)
		if len(children) > 0 {
			result = append(result, children...)
			continue
		}

		polymorphicChildren := e.resolvePolymorphicField(obj, name)
		result = append(result, polymorphicChildren...)
	}

	return result
}

// resolvePolymorphicField attempts to resolve a polymorphic FHIR element.
func (e *Evaluator) resolvePolymorphicField(obj *types.ObjectValue, name string) types.Collection {
	result := types.Collection{}

	for _, suffix := range polymorphicTypeSuffixes {
		fieldName := name + suffix
		children := obj.GetCollection(fieldName)
		if len(children) > 0 {
			result = append(result, children...)
			return result
		}
	}

	return result
}

// stripBackticks removes backtick delimiters from delimited identifiers.
func stripBackticks(s string) string {
	if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' {
		return s[1 : len(s)-1]
	}
	return s
}
