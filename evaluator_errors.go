package scope

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedExpression reports an expression shape that cannot be keyed
	// on a single observable property.
	ErrUnsupportedExpression = errors.New("scope: unsupported expression")
	// ErrNoCompiler reports a runtime without an expression compiler.
	ErrNoCompiler = errors.New("scope: compiler not configured")
	// ErrFlushLimit reports a flush that kept producing work past the turn limit.
	ErrFlushLimit = errors.New("scope: flush turn limit exceeded")
	// ErrDestroyed reports an operation on a destroyed node.
	ErrDestroyed = errors.New("scope: node destroyed")
	// ErrEmptyExpression reports an empty expression source.
	ErrEmptyExpression = errors.New("scope: expression must not be empty")
)

// EvaluationError captures evaluator metadata alongside the originating error.
type EvaluationError struct {
	Engine string
	Expr   string
	Scope  string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("scope: %s evaluator %s scope=%s: %v", e.Engine, describeExpression(e.Expr), e.Scope, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ConfigError is raised synchronously by the call that registered an invalid
// watch.
type ConfigError struct {
	Op   string
	Expr string
	Err  error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("scope: %s %s: %v", e.Op, describeExpression(e.Expr), e.Err)
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DeliveryKind identifies the boundary a DeliveryError was caught at.
type DeliveryKind string

const (
	DeliveryWatch      DeliveryKind = "watch"
	DeliveryEvent      DeliveryKind = "event"
	DeliveryApply      DeliveryKind = "apply"
	DeliveryPostUpdate DeliveryKind = "post_update"
	DeliveryAsync      DeliveryKind = "async"
)

// DeliveryError wraps a failure caught at a delivery boundary. Panic is set
// when the failure was a recovered panic.
type DeliveryError struct {
	Kind   DeliveryKind
	NodeID int64
	Source string
	Panic  any
	Stack  string
	Err    error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "scope: %s delivery node=%d", e.Kind, e.NodeID)
	if e.Source != "" {
		fmt.Fprintf(&b, " source=%q", e.Source)
	}
	if e.Panic != nil {
		fmt.Fprintf(&b, ": panic: %v", e.Panic)
		return b.String()
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "scope:") {
		return err
	}
	return fmt.Errorf("scope: %s evaluator: %w", engine, err)
}

func wrapEvaluationError(engine, expr, scope string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Scope == "" {
			evalErr.Scope = scope
		}
		return evalErr
	}

	return &EvaluationError{
		Engine: engine,
		Expr:   expr,
		Scope:  scope,
		Err:    err,
	}
}

func unsupported(op, expr string, reason string) error {
	return &ConfigError{
		Op:   op,
		Expr: expr,
		Err:  fmt.Errorf("%w: %s", ErrUnsupportedExpression, reason),
	}
}
