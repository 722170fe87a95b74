package scope

import (
	"fmt"
	"time"
)

// Evaluate compiles source and evaluates it synchronously against n. Locals
// shadow node keys. `this` resolves to the node's own keys.
func (n *Node) Evaluate(source string, locals map[string]any) (any, error) {
	if source == "" {
		return nil, ErrEmptyExpression
	}
	acc, err := n.rt.compile(source)
	if err != nil {
		return nil, err
	}
	return n.evaluateAccessor(acc, locals)
}

// Apply evaluates source and forwards any failure to the exception handler
// instead of returning it.
func (n *Node) Apply(source string) any {
	var result any
	n.rt.guard(DeliveryApply, n.homeNode().id, source, func() error {
		value, err := n.Evaluate(source, nil)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result
}

func (n *Node) evaluateAccessor(acc Accessor, locals map[string]any) (any, error) {
	engine := compilerEngineName(n.rt.compiler)
	start := time.Now()
	value, err := acc.Eval(n, locals)
	duration := time.Since(start)
	err = wrapEvaluationError(engine, acc.Source(), n.label(), err)
	n.rt.evalLogger.LogEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Expr:     acc.Source(),
		Scope:    n.label(),
		Duration: duration,
		Err:      err,
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// environment is the variable set visible to compiled programs: every
// visible key exported, `this` bound to the node's own keys, then locals.
func (n *Node) environment(locals map[string]any) map[string]any {
	env := n.Export()
	env["this"] = n.ownView()
	for key, value := range locals {
		env[key] = exportValue(value)
	}
	return env
}

func compilerEngineName(c Compiler) string {
	if c == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", c) {
	case "*scope.exprCompiler":
		return "expr"
	case "*scope.celCompiler":
		return "cel"
	case "*scope.jsCompiler":
		return "js"
	default:
		return "custom"
	}
}
