package scope

import (
	"fmt"
	"strconv"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprCompilerOption configures an expr compiler instance.
type ExprCompilerOption func(*exprCompiler)

// ExprWithProgramCache wires a ProgramCache into the expr compiler.
func ExprWithProgramCache(cache ProgramCache) ExprCompilerOption {
	return func(c *exprCompiler) {
		c.cache = cache
	}
}

// ExprWithFunctionRegistry wires a FunctionRegistry into the expr compiler.
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprCompilerOption {
	return func(c *exprCompiler) {
		if registry == nil {
			return
		}
		c.registry = registry.Clone()
	}
}

// exprCompiler compiles accessors using github.com/expr-lang/expr.
type exprCompiler struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewExprCompiler constructs a Compiler backed by expr-lang/expr. Plain
// identifier and member paths resolve directly against the node so missing
// intermediate values read as nil instead of failing.
func NewExprCompiler(opts ...ExprCompilerOption) Compiler {
	c := &exprCompiler{}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *exprCompiler) Compile(source string) (Accessor, error) {
	body, oneTime := trimOneTime(source)
	if body == "" {
		return nil, wrapEvaluatorError("expr", ErrEmptyExpression)
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

func (c *exprCompiler) compileBody(body, source string, oneTime bool) (Accessor, error) {
	tree, err := parser.Parse(body)
	if err != nil {
		return nil, wrapEvaluationError("expr", body, "", err)
	}
	syntax, pure := c.classify(tree.Node)
	if pure {
		return newPathAccessor(source, syntax, oneTime), nil
	}
	program, err := c.loadOrCompile(body)
	if err != nil {
		return nil, err
	}
	return &exprAccessor{
		compiler: c,
		program:  program,
		body:     body,
		source:   source,
		syntax:   syntax,
		constant: !c.references(tree.Node),
		oneTime:  oneTime,
	}, nil
}

func (c *exprCompiler) loadOrCompile(expression string) (*exprvm.Program, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(expression); ok {
			if program, ok := cached.(*exprvm.Program); ok {
				return program, nil
			}
		}
	}
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range c.registryNames() {
		options = append(options, exprlang.Function(name, c.registryFunction(name)))
	}
	program, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, wrapEvaluationError("expr", expression, "", err)
	}
	if c.cache != nil {
		c.cache.Set(expression, program)
	}
	return program, nil
}

// classify maps an expr AST onto a Syntax descriptor. pure is true when the
// expression is a static identifier or member path.
func (c *exprCompiler) classify(node ast.Node) (Syntax, bool) {
	switch n := node.(type) {
	case *ast.ChainNode:
		return c.classify(n.Node)
	case *ast.IdentifierNode:
		if n.Value == "this" {
			return Syntax{Kind: SyntaxUnsupported}, false
		}
		return Syntax{Kind: SyntaxIdentifier, Key: n.Value, Path: []string{n.Value}}, true
	case *ast.MemberNode:
		path, pure := exprMemberPath(n)
		if len(path) == 0 {
			return Syntax{Kind: SyntaxUnsupported}, false
		}
		return Syntax{Kind: SyntaxMember, Key: path[len(path)-1], Path: path}, pure
	case *ast.CallNode:
		switch callee := n.Callee.(type) {
		case *ast.IdentifierNode:
			if c.registry.Has(callee.Value) {
				return referenceSyntax(SyntaxCall, c.firstReference(n.Arguments...)), false
			}
			return Syntax{Kind: SyntaxCall, Key: callee.Value, Path: []string{callee.Value}}, false
		case *ast.MemberNode:
			path, _ := exprMemberPath(callee)
			return referenceSyntax(SyntaxCall, path), false
		}
		return Syntax{Kind: SyntaxUnsupported}, false
	case *ast.BuiltinNode:
		return referenceSyntax(SyntaxCall, c.firstReference(n.Arguments...)), false
	case *ast.BinaryNode:
		switch n.Operator {
		case "&&", "||", "and", "or", "??":
			return Syntax{Kind: SyntaxUnsupported}, false
		}
		return referenceSyntax(SyntaxBinary, c.firstReference(n)), false
	case *ast.MapNode:
		return referenceSyntax(SyntaxObject, c.firstReference(n)), false
	case *ast.NilNode, *ast.IntegerNode, *ast.FloatNode, *ast.BoolNode, *ast.StringNode, *ast.ConstantNode:
		return Syntax{Kind: SyntaxLiteral}, false
	}
	return Syntax{Kind: SyntaxUnsupported}, false
}

// referenceSyntax keys a compound expression on its first referenced path.
// Without a reference the expression is not observable.
func referenceSyntax(kind SyntaxKind, path []string) Syntax {
	if len(path) == 0 {
		if kind == SyntaxCall {
			return Syntax{Kind: SyntaxLiteral}
		}
		return Syntax{Kind: kind}
	}
	return Syntax{Kind: kind, Key: path[len(path)-1], Path: path}
}

// exprMemberPath returns the static path of a member chain. A computed
// property truncates the path at the last static segment and marks it impure.
func exprMemberPath(n *ast.MemberNode) ([]string, bool) {
	var base []string
	pure := true
	switch inner := n.Node.(type) {
	case *ast.IdentifierNode:
		if inner.Value == "this" {
			return nil, false
		}
		base = []string{inner.Value}
	case *ast.MemberNode:
		base, pure = exprMemberPath(inner)
	case *ast.ChainNode:
		next, ok := inner.Node.(*ast.MemberNode)
		if !ok {
			return nil, false
		}
		base, pure = exprMemberPath(next)
	default:
		return nil, false
	}
	if len(base) == 0 || !pure {
		return base, false
	}
	switch p := n.Property.(type) {
	case *ast.StringNode:
		return append(base, p.Value), true
	case *ast.IntegerNode:
		return append(base, strconv.Itoa(p.Value)), true
	}
	return base, false
}

// firstReference walks nodes depth first, left to right, and returns the
// first identifier or member path found.
func (c *exprCompiler) firstReference(nodes ...ast.Node) []string {
	for _, node := range nodes {
		switch n := node.(type) {
		case *ast.IdentifierNode:
			if n.Value != "this" {
				return []string{n.Value}
			}
		case *ast.MemberNode:
			if path, _ := exprMemberPath(n); len(path) > 0 {
				return path
			}
		case *ast.CallNode:
			if callee, ok := n.Callee.(*ast.IdentifierNode); ok && !c.registry.Has(callee.Value) {
				return []string{callee.Value}
			}
			if callee, ok := n.Callee.(*ast.MemberNode); ok {
				if path, _ := exprMemberPath(callee); len(path) > 0 {
					return path
				}
			}
		}
		if path := c.firstReference(exprChildren(node)...); len(path) > 0 {
			return path
		}
	}
	return nil
}

// references reports whether node reads any identifier or calls anything.
func (c *exprCompiler) references(node ast.Node) bool {
	switch node.(type) {
	case *ast.IdentifierNode, *ast.CallNode:
		return true
	}
	for _, child := range exprChildren(node) {
		if c.references(child) {
			return true
		}
	}
	return false
}

func exprChildren(node ast.Node) []ast.Node {
	switch n := node.(type) {
	case *ast.ChainNode:
		return []ast.Node{n.Node}
	case *ast.MemberNode:
		return []ast.Node{n.Node, n.Property}
	case *ast.SliceNode:
		return []ast.Node{n.Node, n.From, n.To}
	case *ast.CallNode:
		return append([]ast.Node{n.Callee}, n.Arguments...)
	case *ast.BuiltinNode:
		return n.Arguments
	case *ast.BinaryNode:
		return []ast.Node{n.Left, n.Right}
	case *ast.UnaryNode:
		return []ast.Node{n.Node}
	case *ast.ConditionalNode:
		return []ast.Node{n.Cond, n.Exp1, n.Exp2}
	case *ast.ArrayNode:
		return n.Nodes
	case *ast.MapNode:
		return n.Pairs
	case *ast.PairNode:
		return []ast.Node{n.Key, n.Value}
	}
	return nil
}

func (c *exprCompiler) registryNames() []string {
	if c == nil || c.registry == nil {
		return nil
	}
	return c.registry.Names()
}

func (c *exprCompiler) registryFunction(name string) func(...any) (any, error) {
	return func(arguments ...any) (any, error) {
		return c.registry.Call(name, arguments...)
	}
}

type exprAccessor struct {
	compiler *exprCompiler
	program  *exprvm.Program
	body     string
	source   string
	syntax   Syntax
	constant bool
	oneTime  bool
}

func (a *exprAccessor) Eval(target *Node, locals map[string]any) (any, error) {
	if a.program == nil {
		return nil, wrapEvaluatorError("expr", fmt.Errorf("accessor %q missing program", a.source))
	}
	env := a.environment(target, locals)
	result, err := exprlang.Run(a.program, env)
	if err != nil {
		return nil, err
	}
	return exportValue(result), nil
}

func (a *exprAccessor) environment(target *Node, locals map[string]any) map[string]any {
	var env map[string]any
	if target != nil {
		env = target.environment(locals)
	} else {
		env = make(map[string]any, len(locals))
		for key, value := range locals {
			env[key] = exportValue(value)
		}
	}
	if registry := a.compiler.registry; registry != nil {
		env["call"] = func(name string, arguments ...any) (any, error) {
			return registry.Call(name, arguments...)
		}
	}
	return env
}

func (a *exprAccessor) Constant() bool { return a.constant }
func (a *exprAccessor) OneTime() bool  { return a.oneTime }
func (a *exprAccessor) Syntax() Syntax { return a.syntax.clone() }
func (a *exprAccessor) Source() string { return a.source }
