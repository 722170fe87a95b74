package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	scope "github.com/goliatone/go-scope"
)

// Trace entry kinds.
const (
	KindWatch = "watch"
	KindGroup = "group"
	KindEvent = "event"
	KindEval  = "eval"
	KindError = "error"
)

// TraceEvent is one observable outcome of a scenario, numbered in the order
// the runtime produced it.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Scope   string `json:"scope,omitempty"`
	Name    string `json:"name,omitempty"`
	Target  string `json:"target,omitempty"`
	Expr    string `json:"expr,omitempty"`
	Value   any    `json:"value,omitempty"`
	Old     any    `json:"old,omitempty"`
	Args    []any  `json:"args,omitempty"`
	Message string `json:"message,omitempty"`
}

// Result is the outcome of one scenario run.
type Result struct {
	Name   string                  `json:"scenario"`
	Trace  []TraceEvent            `json:"trace"`
	Final  map[string]any          `json:"final"`
	Fields []scope.FieldDescriptor `json:"fields,omitempty"`
}

// Runner executes scenarios on fresh runtimes.
type Runner struct {
	// Compiler overrides the scenario's compiler when set.
	Compiler   string
	FlushLimit int
	// Describe adds the root's leaf paths to the result.
	Describe bool
	Logger   *slog.Logger
}

// NewCompiler returns the compiler registered under name. An empty name
// selects expr.
func NewCompiler(name string) (scope.Compiler, error) {
	switch name {
	case "", "expr":
		return scope.NewExprCompiler(), nil
	case "cel":
		return scope.NewCELCompiler(), nil
	case "js":
		if c := scope.NewJSCompiler(); c != nil {
			return c, nil
		}
		return nil, errors.New("js compiler not available: build with -tags js_eval")
	default:
		return nil, fmt.Errorf("unknown compiler %q", name)
	}
}

type execution struct {
	rt       *scope.Runtime
	scopes   map[string]*scope.Node
	names    map[*scope.Node]string
	deregs   map[string]scope.Deregister
	result   *Result
	sequence int
}

// Run executes every step of s and a final flush, collecting the trace.
func (r Runner) Run(s *Scenario) (*Result, error) {
	compilerName := s.Compiler
	if r.Compiler != "" {
		compilerName = r.Compiler
	}
	compiler, err := NewCompiler(compilerName)
	if err != nil {
		return nil, err
	}

	x := &execution{
		scopes: map[string]*scope.Node{},
		names:  map[*scope.Node]string{},
		deregs: map[string]scope.Deregister{},
		result: &Result{Name: s.Name, Trace: []TraceEvent{}},
	}
	opts := []scope.Option{
		scope.WithCompiler(compiler),
		scope.WithExceptionHandler(scope.ExceptionHandlerFunc(x.recordError)),
	}
	if r.Logger != nil {
		opts = append(opts, scope.WithLogger(r.Logger))
	}
	if r.FlushLimit > 0 {
		opts = append(opts, scope.WithFlushLimit(r.FlushLimit))
	}
	if s.State != nil {
		opts = append(opts, scope.WithInitialState(s.State))
	}
	x.rt = scope.New(opts...)
	x.bind(RootScope, x.rt.Root())

	for i, step := range s.Steps {
		if err := x.apply(step); err != nil {
			return x.result, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	if err := x.rt.Flush(); err != nil {
		return x.result, err
	}
	x.result.Final = x.rt.Root().Export()
	if r.Describe {
		x.result.Fields = x.rt.Root().Describe()
	}
	return x.result, nil
}

func (x *execution) bind(name string, n *scope.Node) {
	x.scopes[name] = n
	x.names[n] = name
}

func (x *execution) record(event TraceEvent) {
	x.sequence++
	event.Seq = x.sequence
	x.result.Trace = append(x.result.Trace, event)
}

func (x *execution) recordError(err *scope.DeliveryError) {
	message := ""
	if err.Err != nil {
		message = err.Err.Error()
	} else if err.Panic != nil {
		message = fmt.Sprint(err.Panic)
	}
	x.record(TraceEvent{
		Type:    KindError,
		Name:    string(err.Kind),
		Expr:    err.Source,
		Message: message,
	})
}

func (x *execution) apply(step Step) error {
	name := step.scopeName()
	node, ok := x.scopes[name]
	if !ok {
		return fmt.Errorf("unknown scope %q", name)
	}

	switch {
	case len(step.Set) > 0:
		keys := make([]string, 0, len(step.Set))
		for key := range step.Set {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if !node.SetPath(key, step.Set[key]) {
				return fmt.Errorf("cannot set %q", key)
			}
		}
	case step.Delete != "":
		target, key := resolve(node, step.Delete)
		if target == nil || !target.Delete(key) {
			return fmt.Errorf("cannot delete %q", step.Delete)
		}
	case step.Append != nil:
		target, key := resolve(node, step.Append.Key)
		if target == nil || !target.Append(key, step.Append.Values...) {
			return fmt.Errorf("cannot append to %q", step.Append.Key)
		}
	case step.Watch != nil:
		id := step.Watch.ID
		dereg, err := node.Watch(step.Watch.Expr, func(newValue, oldValue any) {
			x.record(TraceEvent{Type: KindWatch, ID: id, Scope: name, Value: newValue, Old: oldValue})
		})
		if err != nil {
			return err
		}
		x.deregs[id] = dereg
	case step.WatchGroup != nil:
		id := step.WatchGroup.ID
		dereg, err := node.WatchGroup(step.WatchGroup.Exprs, func(newValues, oldValues []any) {
			x.record(TraceEvent{Type: KindGroup, ID: id, Scope: name, Value: newValues, Old: oldValues})
		})
		if err != nil {
			return err
		}
		x.deregs[id] = dereg
	case step.Unwatch != "":
		if dereg, ok := x.deregs[step.Unwatch]; ok {
			dereg()
		}
	case step.On != nil:
		id := step.On.ID
		x.deregs[id] = node.On(step.On.Name, func(e *scope.Event, args ...any) {
			x.record(TraceEvent{
				Type:   KindEvent,
				ID:     id,
				Scope:  name,
				Name:   e.Name,
				Target: x.names[e.Target],
				Args:   append([]any{}, args...),
			})
		})
	case step.Emit != nil:
		node.Emit(step.Emit.Name, step.Emit.Args...)
	case step.Broadcast != nil:
		node.Broadcast(step.Broadcast.Name, step.Broadcast.Args...)
	case step.Child != nil:
		var child *scope.Node
		if step.Child.Isolated {
			child = node.NewIsolated()
		} else {
			child = node.New()
		}
		x.bind(step.Child.Name, child)
	case step.Destroy != "":
		target, ok := x.scopes[step.Destroy]
		if !ok {
			return fmt.Errorf("unknown scope %q", step.Destroy)
		}
		target.Destroy()
	case step.Eval != "":
		value, err := node.Evaluate(step.Eval, nil)
		if err != nil {
			return err
		}
		x.record(TraceEvent{Type: KindEval, Scope: name, Expr: step.Eval, Value: value})
	case step.Flush:
		return x.rt.Flush()
	}
	return nil
}

// resolve walks the object nodes named by all but the last segment of path
// and returns the node holding the final key.
func resolve(node *scope.Node, path string) (*scope.Node, string) {
	segments := strings.Split(path, ".")
	for _, segment := range segments[:len(segments)-1] {
		node = node.Child(segment)
		if node == nil {
			return nil, ""
		}
	}
	return node, segments[len(segments)-1]
}
