package scope

// EventFunc handles a named event.
type EventFunc func(e *Event, args ...any)

// Event is created per Emit or Broadcast call.
type Event struct {
	Name string
	// Target is the node the event was emitted from.
	Target *Node
	// Current is the node being dispatched on; nil once the pass completes.
	Current *Node

	stopped          bool
	defaultPrevented bool
}

// StopPropagation stops an emitted event from climbing further. Broadcasts
// ignore it.
func (e *Event) StopPropagation() { e.stopped = true }

// PreventDefault flags the event for callers inspecting the returned event.
func (e *Event) PreventDefault() { e.defaultPrevented = true }

// DefaultPrevented reports whether a handler called PreventDefault.
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// Stopped reports whether a handler called StopPropagation.
func (e *Event) Stopped() bool { return e.stopped }

type eventListener struct {
	fn      EventFunc
	removed bool
}

// On registers fn for name. The returned function removes exactly this
// registration and is safe to call from inside a dispatch.
func (n *Node) On(name string, fn EventFunc) Deregister {
	scope := n.homeNode()
	if fn == nil || scope.destroyed {
		return noopDeregister
	}
	if scope.events == nil {
		scope.events = make(map[string][]*eventListener)
	}
	entry := &eventListener{fn: fn}
	scope.events[name] = append(scope.events[name], entry)
	return func() {
		if entry.removed {
			return
		}
		entry.removed = true
		list := scope.events[name]
		for i, candidate := range list {
			if candidate == entry {
				scope.events[name] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
}

// Emit dispatches name on n and then on each ancestor until a handler stops
// propagation or the root is reached.
func (n *Node) Emit(name string, args ...any) *Event {
	event := &Event{Name: name, Target: n.homeNode()}
	for cur := event.Target; cur != nil; cur = cur.parent {
		cur.dispatch(event, args)
		if event.stopped {
			break
		}
	}
	event.Current = nil
	return event
}

// Broadcast dispatches name on n and every descendant, depth first in child
// registration order. Stopping propagation has no effect.
func (n *Node) Broadcast(name string, args ...any) *Event {
	event := &Event{Name: name, Target: n.homeNode()}
	event.Target.broadcast(event, args)
	event.Current = nil
	return event
}

func (n *Node) broadcast(event *Event, args []any) {
	n.dispatch(event, args)
	for _, child := range n.Children() {
		child.broadcast(event, args)
	}
}

func (n *Node) dispatch(event *Event, args []any) {
	listeners := n.events[event.Name]
	if len(listeners) == 0 {
		return
	}
	event.Current = n
	for _, entry := range listeners {
		if entry.removed {
			continue
		}
		fn := entry.fn
		n.rt.guard(DeliveryEvent, n.id, event.Name, func() error {
			fn(event, args...)
			return nil
		})
		event.Current = n
	}
}
