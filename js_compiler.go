//go:build js_eval

package scope

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"
)

type jsCompiler struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewJSCompiler constructs a Compiler backed by goja.
func NewJSCompiler(opts ...JSCompilerOption) Compiler {
	cfg := applyJSCompilerOptions(opts)
	return &jsCompiler{
		cache:    cfg.cache,
		registry: cfg.registry,
	}
}

func (c *jsCompiler) Compile(source string) (Accessor, error) {
	body, oneTime := trimOneTime(source)
	if body == "" {
		return nil, wrapEvaluatorError("js", ErrEmptyExpression)
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

func (c *jsCompiler) compileBody(body, source string, oneTime bool) (Accessor, error) {
	parsed, err := parser.ParseFile(nil, "", "("+body+")", 0)
	if err != nil {
		return nil, wrapEvaluationError("js", body, "", err)
	}
	if len(parsed.Body) != 1 {
		return nil, unsupported("compile", body, "expected a single expression")
	}
	stmt, ok := parsed.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil, unsupported("compile", body, "expected an expression")
	}
	syntax, pure := c.classify(stmt.Expression)
	if pure {
		return newPathAccessor(source, syntax, oneTime), nil
	}
	program, err := c.loadOrCompile(body)
	if err != nil {
		return nil, err
	}
	return &jsAccessor{
		compiler: c,
		program:  program,
		source:   source,
		syntax:   syntax,
		constant: !jsReferences(stmt.Expression),
		oneTime:  oneTime,
	}, nil
}

func (c *jsCompiler) loadOrCompile(expression string) (*goja.Program, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(expression); ok {
			if program, ok := cached.(*goja.Program); ok {
				return program, nil
			}
		}
	}
	program, err := goja.Compile("", c.wrapExpression(expression), false)
	if err != nil {
		return nil, wrapEvaluationError("js", expression, "", err)
	}
	if c.cache != nil {
		c.cache.Set(expression, program)
	}
	return program, nil
}

func (c *jsCompiler) wrapExpression(expression string) string {
	return fmt.Sprintf("(function(){ return (%s); })()", expression)
}

func (c *jsCompiler) classify(expr ast.Expression) (Syntax, bool) {
	switch e := expr.(type) {
	case *ast.Identifier:
		name := e.Name.String()
		return Syntax{Kind: SyntaxIdentifier, Key: name, Path: []string{name}}, true
	case *ast.DotExpression, *ast.BracketExpression:
		path, pure := jsMemberPath(e)
		if len(path) == 0 {
			return Syntax{Kind: SyntaxUnsupported}, false
		}
		return Syntax{Kind: SyntaxMember, Key: path[len(path)-1], Path: path}, pure
	case *ast.CallExpression:
		if callee, ok := e.Callee.(*ast.Identifier); ok && c.registry.Has(callee.Name.String()) {
			return referenceSyntax(SyntaxCall, jsFirstReference(e.ArgumentList...)), false
		}
		path, _ := jsMemberPath(e.Callee)
		if len(path) == 0 {
			return Syntax{Kind: SyntaxUnsupported}, false
		}
		return referenceSyntax(SyntaxCall, path), false
	case *ast.BinaryExpression:
		switch e.Operator {
		case token.LOGICAL_AND, token.LOGICAL_OR, token.COALESCE:
			return Syntax{Kind: SyntaxUnsupported}, false
		}
		return referenceSyntax(SyntaxBinary, jsFirstReference(e)), false
	case *ast.ObjectLiteral:
		return referenceSyntax(SyntaxObject, jsFirstReference(e)), false
	case *ast.StringLiteral, *ast.NumberLiteral, *ast.BooleanLiteral, *ast.NullLiteral:
		return Syntax{Kind: SyntaxLiteral}, false
	}
	return Syntax{Kind: SyntaxUnsupported}, false
}

func jsMemberPath(expr ast.Expression) ([]string, bool) {
	switch e := expr.(type) {
	case *ast.Identifier:
		return []string{e.Name.String()}, true
	case *ast.DotExpression:
		base, pure := jsMemberPath(e.Left)
		if len(base) == 0 || !pure {
			return base, false
		}
		return append(base, e.Identifier.Name.String()), true
	case *ast.BracketExpression:
		base, pure := jsMemberPath(e.Left)
		if len(base) == 0 || !pure {
			return base, false
		}
		switch member := e.Member.(type) {
		case *ast.StringLiteral:
			return append(base, member.Value.String()), true
		case *ast.NumberLiteral:
			return append(base, fmt.Sprint(member.Value)), true
		}
		return base, false
	}
	return nil, false
}

func jsFirstReference(exprs ...ast.Expression) []string {
	for _, expr := range exprs {
		switch expr.(type) {
		case *ast.Identifier, *ast.DotExpression, *ast.BracketExpression:
			if path, _ := jsMemberPath(expr); len(path) > 0 {
				return path
			}
		}
		if path := jsFirstReference(jsChildren(expr)...); len(path) > 0 {
			return path
		}
	}
	return nil
}

func jsReferences(expr ast.Expression) bool {
	switch expr.(type) {
	case *ast.Identifier, *ast.CallExpression, *ast.ThisExpression:
		return true
	}
	for _, child := range jsChildren(expr) {
		if jsReferences(child) {
			return true
		}
	}
	return false
}

func jsChildren(expr ast.Expression) []ast.Expression {
	switch e := expr.(type) {
	case *ast.DotExpression:
		return []ast.Expression{e.Left}
	case *ast.BracketExpression:
		return []ast.Expression{e.Left, e.Member}
	case *ast.CallExpression:
		return append([]ast.Expression{e.Callee}, e.ArgumentList...)
	case *ast.BinaryExpression:
		return []ast.Expression{e.Left, e.Right}
	case *ast.UnaryExpression:
		return []ast.Expression{e.Operand}
	case *ast.ConditionalExpression:
		return []ast.Expression{e.Test, e.Consequent, e.Alternate}
	case *ast.ArrayLiteral:
		return e.Value
	case *ast.ObjectLiteral:
		var out []ast.Expression
		for _, property := range e.Value {
			if keyed, ok := property.(*ast.PropertyKeyed); ok {
				out = append(out, keyed.Value)
			}
		}
		return out
	case *ast.SequenceExpression:
		return e.Sequence
	}
	return nil
}

type jsAccessor struct {
	compiler *jsCompiler
	program  *goja.Program
	source   string
	syntax   Syntax
	constant bool
	oneTime  bool
}

func (a *jsAccessor) Eval(target *Node, locals map[string]any) (any, error) {
	vm := goja.New()
	var env map[string]any
	if target != nil {
		env = target.environment(locals)
	} else {
		env = make(map[string]any, len(locals))
		for key, value := range locals {
			env[key] = exportValue(value)
		}
	}
	for key, value := range env {
		if key == "this" {
			continue
		}
		if err := vm.Set(key, value); err != nil {
			return nil, err
		}
	}
	if registry := a.compiler.registry; registry != nil {
		if err := vm.Set("call", func(name string, arguments ...any) (any, error) {
			return registry.Call(name, arguments...)
		}); err != nil {
			return nil, err
		}
		for _, name := range registry.Names() {
			fn := name
			if err := vm.Set(fn, func(arguments ...any) (any, error) {
				return registry.Call(fn, arguments...)
			}); err != nil {
				return nil, err
			}
		}
	}
	value, err := vm.RunProgram(a.program)
	if err != nil {
		return nil, err
	}
	return exportValue(value.Export()), nil
}

func (a *jsAccessor) Constant() bool { return a.constant }
func (a *jsAccessor) OneTime() bool  { return a.oneTime }
func (a *jsAccessor) Syntax() Syntax { return a.syntax.clone() }
func (a *jsAccessor) Source() string { return a.source }

func jsCompilerAvailable() bool {
	return true
}
