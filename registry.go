package scope

import "fmt"

// tree is the listener registry shared by every node wrapped into the same
// root. Own listeners are keyed by their leaf segment and, for member paths,
// indexed again under each intermediate segment so a write that replaces an
// intermediate object reaches them. Foreign listeners are keyed by leaf and
// bound to the delegate node that owns the leaf.
type tree struct {
	root           *Node
	watchers       map[string][]*Listener
	paths          map[string][]*Listener
	foreign        map[string][]*Listener
	foreignProxies map[*Node]struct{}
}

func newTree() *tree {
	return &tree{
		watchers:       make(map[string][]*Listener),
		paths:          make(map[string][]*Listener),
		foreign:        make(map[string][]*Listener),
		foreignProxies: make(map[*Node]struct{}),
	}
}

// Listener is a registered accessor and callback pair.
type Listener struct {
	// ID is unique per listener.
	ID string
	// OwnerID is the scope node that owns the listener for cleanup.
	OwnerID int64
	// Key is the property name the listener is keyed under.
	Key string
	// Path is the original expression source.
	Path string

	rt       *Runtime
	anchor   *Node
	scope    *Node
	delegate *Node
	registry *tree
	accessor Accessor
	callback WatchFunc
	oneTime  bool
	path     []string
	ref      *Node

	last        any
	initialized bool
	removed     bool
}

// Foreign reports whether the listener is registered on a node of another
// tree.
func (l *Listener) Foreign() bool { return l.delegate != nil }

// Removed reports whether the listener has been deregistered.
func (l *Listener) Removed() bool { return l.removed }

// Deregister removes the listener from every registry it appears in.
// Repeated calls are no-ops.
func (l *Listener) Deregister() {
	if l == nil || l.removed {
		return
	}
	l.removed = true
	l.registry.remove(l)
	l.scope.dropOwned(l)
	l.rt.untrack(l)
}

type writeSite struct {
	node *Node
	home *Node
	key  string
	path []string
}

// match returns the listeners affected by a write, in registration order.
func (t *tree) match(site writeSite) []*Listener {
	var out []*Listener
	head := site.path[0]
	for _, l := range t.watchers[site.key] {
		if l.removed || !pathEqual(l.path, site.path) {
			continue
		}
		if l.scope.sees(head, site.home) {
			out = append(out, l)
		}
	}
	for _, l := range t.paths[site.key] {
		if l.removed || len(l.path) <= len(site.path) || !pathHasPrefix(l.path, site.path) {
			continue
		}
		if l.scope.sees(head, site.home) {
			out = append(out, l)
		}
	}
	for _, l := range t.foreign[site.key] {
		if !l.removed && l.delegate == site.node {
			out = append(out, l)
		}
	}
	return out
}

func (t *tree) add(l *Listener) {
	if l.delegate != nil {
		t.foreign[l.Key] = append(t.foreign[l.Key], l)
		return
	}
	t.watchers[l.Key] = append(t.watchers[l.Key], l)
	for _, segment := range intermediateSegments(l.path) {
		t.paths[segment] = append(t.paths[segment], l)
	}
}

// remove drops l from the lists it was added to. A listener missing from a
// list it must be in means the registry is corrupt.
func (t *tree) remove(l *Listener) {
	if l.delegate != nil {
		t.foreign[l.Key] = t.mustRemove(t.foreign[l.Key], l, l.Key)
		return
	}
	t.watchers[l.Key] = t.mustRemove(t.watchers[l.Key], l, l.Key)
	for _, segment := range intermediateSegments(l.path) {
		t.paths[segment] = t.mustRemove(t.paths[segment], l, segment)
	}
}

func (t *tree) mustRemove(list []*Listener, l *Listener, key string) []*Listener {
	for i, candidate := range list {
		if candidate == l {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	panic(fmt.Sprintf("scope: registry corruption: listener %s (%s) missing from %q", l.ID, describePath(l.path), key))
}

func (n *Node) dropOwned(l *Listener) {
	for i, candidate := range n.owned {
		if candidate == l {
			n.owned = append(n.owned[:i:i], n.owned[i+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("scope: registry corruption: listener %s missing from owner %d", l.ID, n.id))
}

// track records the object node a listener's path currently resolves to so
// that writes inside that object re-trigger the listener.
func (rt *Runtime) track(l *Listener) {
	if l.removed {
		return
	}
	value, _ := l.scope.lookupPath(l.path)
	ref, _ := value.(*Node)
	if ref == l.ref {
		return
	}
	rt.untrack(l)
	if ref != nil {
		l.ref = ref
		rt.refs[ref] = append(rt.refs[ref], l)
	}
}

func (rt *Runtime) untrack(l *Listener) {
	if l.ref == nil {
		return
	}
	list := rt.refs[l.ref]
	for i, candidate := range list {
		if candidate == l {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(rt.refs, l.ref)
	} else {
		rt.refs[l.ref] = list
	}
	l.ref = nil
}

// referencing returns the live listeners tracking ref, preceded by captured
// listeners that tracked it when the write happened.
func (rt *Runtime) referencing(ref *Node, captured []*Listener) []*Listener {
	var out []*Listener
	seen := make(map[*Listener]struct{}, len(captured))
	for _, list := range [][]*Listener{captured, rt.refs[ref]} {
		for _, l := range list {
			if _, dup := seen[l]; dup || l.removed {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

// intermediateSegments returns the distinct non-leaf segments of path.
func intermediateSegments(path []string) []string {
	if len(path) < 2 {
		return nil
	}
	seen := make(map[string]struct{}, len(path)-1)
	out := make([]string, 0, len(path)-1)
	for _, segment := range path[:len(path)-1] {
		if _, ok := seen[segment]; ok {
			continue
		}
		seen[segment] = struct{}{}
		out = append(out, segment)
	}
	return out
}

func pathEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func pathHasPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}
