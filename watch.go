package scope

import (
	"github.com/google/uuid"
)

// Watch compiles source and registers cb to receive its value. The first
// delivery happens on a later turn with the initial value; after that cb runs
// whenever the watched key is written and the recomputed value differs from
// the last delivered one.
//
// Constant expressions deliver once and register nothing. An assignment
// without a callback is evaluated once; with a callback it is evaluated once
// and its target is watched. Shapes that cannot be keyed on a property
// return a *ConfigError wrapping ErrUnsupportedExpression.
func (n *Node) Watch(source string, cb WatchFunc) (Deregister, error) {
	acc, err := n.rt.compile(source)
	if err != nil {
		return noopDeregister, &ConfigError{Op: "watch", Expr: source, Err: err}
	}
	return n.WatchAccessor(acc, cb)
}

// WatchFunc watches the value returned by fn. path names the member path fn
// reads and decides which writes re-run it.
func (n *Node) WatchFunc(path string, fn func(*Node) any, cb WatchFunc) (Deregister, error) {
	return n.WatchAccessor(Func(path, fn), cb)
}

// WatchAccessor registers cb against a compiled accessor.
func (n *Node) WatchAccessor(acc Accessor, cb WatchFunc) (Deregister, error) {
	if acc == nil {
		return noopDeregister, &ConfigError{Op: "watch", Err: ErrNoCompiler}
	}
	if n.Destroyed() {
		return noopDeregister, &ConfigError{Op: "watch", Expr: acc.Source(), Err: ErrDestroyed}
	}

	if acc.Constant() {
		if cb != nil {
			n.rt.queue.enqueue(func() {
				n.rt.guard(DeliveryWatch, n.homeNode().id, acc.Source(), func() error {
					value, err := n.evaluateAccessor(acc, nil)
					if err != nil {
						return err
					}
					cb(value, nil)
					return nil
				})
			})
		}
		return noopDeregister, nil
	}

	syntax := acc.Syntax()
	if syntax.Kind == SyntaxAssign {
		if _, err := n.evaluateAccessor(acc, nil); err != nil {
			return noopDeregister, &ConfigError{Op: "watch", Expr: acc.Source(), Err: err}
		}
		if cb == nil {
			return noopDeregister, nil
		}
		target := Syntax{Kind: SyntaxMember, Key: syntax.Key, Path: syntax.Path}
		if len(syntax.Path) == 1 {
			target.Kind = SyntaxIdentifier
		}
		acc = newPathAccessor(syntax.Target, target, acc.OneTime())
		syntax = target
	}
	if !syntax.Observable() {
		return noopDeregister, unsupported("watch", acc.Source(), syntax.Kind.String()+" expression")
	}
	l := n.register(acc, syntax, cb)
	return l.Deregister, nil
}

func (n *Node) register(acc Accessor, syntax Syntax, cb WatchFunc) *Listener {
	scope := n.homeNode()
	rel := syntax.Path
	if len(rel) == 0 {
		rel = []string{syntax.Key}
	}
	path := append(append([]string(nil), n.path...), rel...)

	l := &Listener{
		ID:       uuid.NewString(),
		OwnerID:  scope.id,
		Key:      path[len(path)-1],
		Path:     acc.Source(),
		rt:       n.rt,
		anchor:   n,
		scope:    scope,
		accessor: acc,
		callback: cb,
		oneTime:  acc.OneTime(),
		path:     path,
		registry: n.tree,
	}
	if delegate := scope.foreignDelegate(path); delegate != nil {
		l.delegate = delegate
		l.registry = delegate.tree
	}
	l.registry.add(l)
	scope.owned = append(scope.owned, l)
	n.rt.track(l)

	n.rt.queue.enqueue(func() {
		n.rt.deliver(l)
	})
	n.rt.logger.Debug("scope watch registered",
		"node", n.id,
		"listener", l.ID,
		"key", l.Key,
		"source", l.Path,
		"foreign", l.delegate != nil,
	)
	return l
}

// foreignDelegate returns the node owning the leaf of a member path when the
// path crosses into a node of another tree.
func (n *Node) foreignDelegate(path []string) *Node {
	if len(path) < 2 {
		return nil
	}
	value, ok := n.lookupPath(path[:len(path)-1])
	if !ok {
		return nil
	}
	owner, _ := value.(*Node)
	if owner == nil || owner.tree == n.tree {
		return nil
	}
	return owner
}

// WatchGroup watches every source and coalesces the deliveries of one turn
// into a single cb call on a later turn.
func (n *Node) WatchGroup(sources []string, cb GroupFunc) (Deregister, error) {
	if cb == nil {
		return noopDeregister, &ConfigError{Op: "watch_group", Err: ErrEmptyExpression}
	}
	newValues := make([]any, len(sources))
	oldValues := make([]any, len(sources))
	removed := false
	pending := false

	fire := func(*Node) {
		pending = false
		if removed {
			return
		}
		current := append([]any(nil), newValues...)
		previous := append([]any(nil), oldValues...)
		copy(oldValues, newValues)
		cb(current, previous)
	}

	if len(sources) == 0 {
		n.EvalAsync(fire)
		return noopDeregister, nil
	}

	deregs := make([]Deregister, 0, len(sources))
	for i, source := range sources {
		idx := i
		dereg, err := n.Watch(source, func(value, _ any) {
			newValues[idx] = value
			if pending {
				return
			}
			pending = true
			n.EvalAsync(fire)
		})
		if err != nil {
			for _, d := range deregs {
				d()
			}
			return noopDeregister, err
		}
		deregs = append(deregs, dereg)
	}
	return func() {
		if removed {
			return
		}
		removed = true
		for _, d := range deregs {
			d()
		}
	}, nil
}

// WatcherCount returns the number of listeners owned by this scope and its
// descendants.
func (n *Node) WatcherCount() int {
	scope := n.homeNode()
	count := len(scope.owned)
	for _, child := range scope.children {
		count += child.WatcherCount()
	}
	return count
}

// Listeners returns the listeners owned by this scope in registration order.
func (n *Node) Listeners() []*Listener {
	return append([]*Listener(nil), n.homeNode().owned...)
}
