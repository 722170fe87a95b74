package scope

import (
	"fmt"
	"strings"

	celgo "github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELCompilerOption configures the CEL compiler.
type CELCompilerOption func(*celCompiler)

// CELWithProgramCache wires a ProgramCache into the CEL compiler.
func CELWithProgramCache(cache ProgramCache) CELCompilerOption {
	return func(c *celCompiler) {
		c.cache = cache
	}
}

// CELWithFunctionRegistry wires a FunctionRegistry into the CEL compiler.
// Functions are reachable through call("name", args...).
func CELWithFunctionRegistry(registry *FunctionRegistry) CELCompilerOption {
	return func(c *celCompiler) {
		if registry == nil {
			return
		}
		c.registry = registry.Clone()
	}
}

type celProgram struct {
	syntax   Syntax
	pure     bool
	constant bool
	program  celgo.Program
}

type celCompiler struct {
	cache    ProgramCache
	registry *FunctionRegistry
	env      *celgo.Env
	envErr   error
}

// NewCELCompiler constructs a Compiler backed by cel-go. Programs are built
// from the parsed, unchecked AST so identifiers resolve from the node at
// evaluation time.
func NewCELCompiler(opts ...CELCompilerOption) Compiler {
	c := &celCompiler{}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.env, c.envErr = c.buildEnv()
	return c
}

func (c *celCompiler) buildEnv() (*celgo.Env, error) {
	var opts []celgo.EnvOption
	if c.registry != nil {
		binding := celgo.FunctionBinding(c.callBinding())
		opts = append(opts, celgo.Function("call",
			celgo.Overload("call_string", []*celgo.Type{celgo.StringType}, celgo.DynType, binding),
			celgo.Overload("call_string_dyn", []*celgo.Type{celgo.StringType, celgo.DynType}, celgo.DynType, binding),
			celgo.Overload("call_string_dyn_dyn", []*celgo.Type{celgo.StringType, celgo.DynType, celgo.DynType}, celgo.DynType, binding),
		))
	}
	return celgo.NewEnv(opts...)
}

func (c *celCompiler) Compile(source string) (Accessor, error) {
	body, oneTime := trimOneTime(source)
	if body == "" {
		return nil, wrapEvaluatorError("cel", ErrEmptyExpression)
	}
	if lhs, rhs, ok := splitAssignment(body); ok {
		value, err := c.compileBody(rhs, rhs, false)
		if err != nil {
			return nil, err
		}
		return &assignAccessor{
			source:  source,
			target:  splitPath(lhs),
			rhs:     value,
			oneTime: oneTime,
		}, nil
	}
	return c.compileBody(body, source, oneTime)
}

func (c *celCompiler) compileBody(body, source string, oneTime bool) (Accessor, error) {
	program, err := c.loadOrCompile(body)
	if err != nil {
		return nil, err
	}
	if program.pure {
		return newPathAccessor(source, program.syntax, oneTime), nil
	}
	return &celAccessor{
		compiler: c,
		program:  program,
		source:   source,
		oneTime:  oneTime,
	}, nil
}

func (c *celCompiler) loadOrCompile(expression string) (*celProgram, error) {
	if c.envErr != nil {
		return nil, wrapEvaluatorError("cel", c.envErr)
	}
	if c.cache != nil {
		if cached, ok := c.cache.Get(expression); ok {
			if program, ok := cached.(*celProgram); ok {
				return program, nil
			}
		}
	}
	parsed, issues := c.env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEvaluationError("cel", expression, "", issues.Err())
	}
	root := parsed.NativeRep().Expr()
	syntax, pure := classifyCEL(root)
	bundle := &celProgram{
		syntax:   syntax,
		pure:     pure,
		constant: !celReferences(root),
	}
	if !pure {
		prg, err := c.env.Program(parsed)
		if err != nil {
			return nil, wrapEvaluationError("cel", expression, "", err)
		}
		bundle.program = prg
	}
	if c.cache != nil {
		c.cache.Set(expression, bundle)
	}
	return bundle, nil
}

func classifyCEL(e celast.Expr) (Syntax, bool) {
	switch e.Kind() {
	case celast.IdentKind:
		name := e.AsIdent()
		if name == "this" {
			return Syntax{Kind: SyntaxUnsupported}, false
		}
		return Syntax{Kind: SyntaxIdentifier, Key: name, Path: []string{name}}, true
	case celast.SelectKind:
		path, pure := celMemberPath(e)
		if len(path) == 0 {
			return Syntax{Kind: SyntaxUnsupported}, false
		}
		return Syntax{Kind: SyntaxMember, Key: path[len(path)-1], Path: path}, pure
	case celast.CallKind:
		call := e.AsCall()
		name := call.FunctionName()
		switch name {
		case operators.LogicalAnd, operators.LogicalOr, operators.LogicalNot,
			operators.Conditional, operators.Negate:
			return Syntax{Kind: SyntaxUnsupported}, false
		case operators.Index:
			path, pure := celMemberPath(e)
			if len(path) == 0 {
				return Syntax{Kind: SyntaxUnsupported}, false
			}
			return Syntax{Kind: SyntaxMember, Key: path[len(path)-1], Path: path}, pure
		}
		if isCELOperator(name) {
			return referenceSyntax(SyntaxBinary, celFirstReference(e)), false
		}
		if call.IsMemberFunction() {
			if path, _ := celMemberPath(call.Target()); len(path) > 0 {
				return referenceSyntax(SyntaxCall, append(path, name)), false
			}
		}
		return referenceSyntax(SyntaxCall, celFirstReference(call.Args()...)), false
	case celast.MapKind, celast.StructKind:
		return referenceSyntax(SyntaxObject, celFirstReference(e)), false
	case celast.LiteralKind:
		return Syntax{Kind: SyntaxLiteral}, false
	}
	return Syntax{Kind: SyntaxUnsupported}, false
}

func isCELOperator(name string) bool {
	return strings.HasPrefix(name, "_") && strings.HasSuffix(name, "_")
}

func celMemberPath(e celast.Expr) ([]string, bool) {
	switch e.Kind() {
	case celast.IdentKind:
		if e.AsIdent() == "this" {
			return nil, false
		}
		return []string{e.AsIdent()}, true
	case celast.SelectKind:
		sel := e.AsSelect()
		if sel.IsTestOnly() {
			return nil, false
		}
		base, pure := celMemberPath(sel.Operand())
		if len(base) == 0 || !pure {
			return base, false
		}
		return append(base, sel.FieldName()), true
	case celast.CallKind:
		call := e.AsCall()
		if call.FunctionName() != operators.Index || len(call.Args()) != 2 {
			return nil, false
		}
		base, pure := celMemberPath(call.Args()[0])
		if len(base) == 0 || !pure {
			return base, false
		}
		index := call.Args()[1]
		if index.Kind() != celast.LiteralKind {
			return base, false
		}
		return append(base, fmt.Sprint(index.AsLiteral().Value())), true
	}
	return nil, false
}

func celFirstReference(exprs ...celast.Expr) []string {
	for _, e := range exprs {
		switch e.Kind() {
		case celast.IdentKind, celast.SelectKind:
			if path, _ := celMemberPath(e); len(path) > 0 {
				return path
			}
		case celast.CallKind:
			if path, _ := celMemberPath(e); len(path) > 0 {
				return path
			}
		}
		if path := celFirstReference(celChildren(e)...); len(path) > 0 {
			return path
		}
	}
	return nil
}

func celReferences(e celast.Expr) bool {
	switch e.Kind() {
	case celast.IdentKind:
		return true
	case celast.CallKind:
		if !isCELOperator(e.AsCall().FunctionName()) {
			return true
		}
	}
	for _, child := range celChildren(e) {
		if celReferences(child) {
			return true
		}
	}
	return false
}

func celChildren(e celast.Expr) []celast.Expr {
	switch e.Kind() {
	case celast.SelectKind:
		return []celast.Expr{e.AsSelect().Operand()}
	case celast.CallKind:
		call := e.AsCall()
		var out []celast.Expr
		if call.IsMemberFunction() {
			out = append(out, call.Target())
		}
		return append(out, call.Args()...)
	case celast.ListKind:
		return e.AsList().Elements()
	case celast.MapKind:
		var out []celast.Expr
		for _, entry := range e.AsMap().Entries() {
			mapEntry := entry.AsMapEntry()
			out = append(out, mapEntry.Key(), mapEntry.Value())
		}
		return out
	}
	return nil
}

func (c *celCompiler) callBinding() func(...ref.Val) ref.Val {
	return func(values ...ref.Val) ref.Val {
		if c.registry == nil {
			return types.NewErr("scope: function registry not configured")
		}
		if len(values) == 0 {
			return types.NewErr("scope: call requires function name")
		}
		name, ok := values[0].Value().(string)
		if !ok {
			return types.NewErr("scope: call name must be string")
		}
		args := make([]any, 0, len(values)-1)
		for _, val := range values[1:] {
			args = append(args, val.Value())
		}
		result, err := c.registry.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}

type celAccessor struct {
	compiler *celCompiler
	program  *celProgram
	source   string
	oneTime  bool
}

func (a *celAccessor) Eval(target *Node, locals map[string]any) (any, error) {
	activation := map[string]any{}
	if target != nil {
		activation = target.environment(locals)
	} else {
		for key, value := range locals {
			activation[key] = exportValue(value)
		}
	}
	out, _, err := a.program.program.Eval(activation)
	if err != nil {
		return nil, err
	}
	return exportValue(celNative(out)), nil
}

// celNative converts CEL containers to plain Go values.
func celNative(val ref.Val) any {
	if val == nil || val == types.NullValue {
		return nil
	}
	switch v := val.Value().(type) {
	case []ref.Val:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = celNative(item)
		}
		return out
	case map[ref.Val]ref.Val:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key.Value())] = celNative(item)
		}
		return out
	}
	return val.Value()
}

func (a *celAccessor) Constant() bool { return a.program.constant }
func (a *celAccessor) OneTime() bool  { return a.oneTime }
func (a *celAccessor) Syntax() Syntax { return a.program.syntax.clone() }
func (a *celAccessor) Source() string { return a.source }
