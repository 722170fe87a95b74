package scope

import (
	"strings"

	"github.com/goliatone/go-scope/layering"
)

// Set writes key on the node itself, never on a prototype. Map values are
// wrapped recursively into object nodes; writing a map over an existing
// object node merges in place so watchers on the nested node survive.
// Listeners are notified on a later turn when the stored reference changes.
// Writes to reserved keys return false.
func (n *Node) Set(key string, value any) bool {
	if key == "" || isReserved(key) {
		return false
	}
	if node, ok := value.(*Node); ok && node != nil {
		if current, stored := n.props[key]; stored && current == any(node) {
			return true
		}
	}
	value = normalizeInput(value)
	old, exists := n.props[key]

	if sub := n.subNode(old); sub != nil {
		switch v := value.(type) {
		case []any:
			sub.detach()
			n.props[key] = v
			n.notify(key)
		case map[string]any:
			sub.merge(v)
		case nil:
			nested := sub.teardown()
			sub.detach()
			n.props[key] = nil
			if !nested {
				n.notify(key)
			}
		default:
			sub.detach()
			n.put(key, v)
			n.notify(key)
		}
		return true
	}

	stored := n.put(key, value)
	if !exists && stored == nil {
		return true
	}
	if !sameValue(old, stored) {
		n.notify(key)
	}
	return true
}

// Delete removes key from the node. Listeners are notified whether or not the
// removed value was a nested object.
func (n *Node) Delete(key string) bool {
	if key == "" || isReserved(key) {
		return false
	}
	old, exists := n.props[key]
	if !exists {
		return true
	}
	delete(n.props, key)
	n.order = removeKey(n.order, key)
	if sub := n.subNode(old); sub != nil {
		sub.detach()
	}
	n.notify(key)
	return true
}

// SetPath writes a dotted path, creating intermediate objects when they are
// missing. It returns false when an intermediate value is not an object.
func (n *Node) SetPath(path string, value any) bool {
	segments := splitPath(path)
	if len(segments) == 0 {
		return false
	}
	cur := n
	for _, segment := range segments[:len(segments)-1] {
		switch v := cur.Get(segment).(type) {
		case *Node:
			if v == nil {
				return false
			}
			cur = v
		case nil:
			if !cur.Set(segment, map[string]any{}) {
				return false
			}
			cur = cur.Child(segment)
		default:
			return false
		}
	}
	return cur.Set(segments[len(segments)-1], value)
}

// Assign writes every key of values in sorted order.
func (n *Node) Assign(values map[string]any) {
	for _, key := range sortedKeys(values) {
		n.Set(key, values[key])
	}
}

// Append pushes values onto the array stored under key, on whichever node in
// the prototype chain holds it. Elements are stored raw. It returns false
// when the existing value is not an array.
func (n *Node) Append(key string, values ...any) bool {
	if key == "" || isReserved(key) {
		return false
	}
	target := n.owner(key)
	if target == nil {
		target = n
	}
	current := target.props[key]
	arr, ok := current.([]any)
	if current != nil && !ok {
		return false
	}
	for _, value := range values {
		arr = append(arr, layering.Normalize(value))
	}
	if _, exists := target.props[key]; !exists {
		target.order = append(target.order, key)
	}
	target.props[key] = arr
	target.notify(key)
	return true
}

// put stores value without notifying, wrapping maps and tracking nodes that
// belong to another tree.
func (n *Node) put(key string, value any) any {
	switch v := value.(type) {
	case map[string]any:
		value = n.wrapObject(key, v)
	case *Node:
		if v.tree != n.tree {
			n.tree.foreignProxies[v] = struct{}{}
		}
	}
	if _, ok := n.props[key]; !ok {
		n.order = append(n.order, key)
	}
	n.props[key] = value
	return value
}

func (n *Node) wrapObject(key string, values map[string]any) *Node {
	child := n.rt.newNode(objectNode, n.tree)
	child.home = n.homeNode()
	child.outer = n
	child.root = n.root
	child.path = append(append([]string(nil), n.path...), key)
	for _, k := range sortedKeys(values) {
		child.put(k, values[k])
	}
	return child
}

// subNode returns old when it is a nested object node of this tree.
func (n *Node) subNode(old any) *Node {
	sub, ok := old.(*Node)
	if !ok || sub == nil || sub.kind != objectNode || sub.tree != n.tree || sub.outer != n {
		return nil
	}
	return sub
}

// merge deletes keys missing from values, then assigns each key.
func (n *Node) merge(values map[string]any) {
	for _, key := range n.Keys() {
		if _, ok := values[key]; !ok {
			n.Delete(key)
		}
	}
	n.Assign(values)
}

// teardown clears every key and reports whether any of them held a nested
// object, in which case the nested teardown already notified.
func (n *Node) teardown() bool {
	nested := false
	for _, key := range n.Keys() {
		if n.subNode(n.props[key]) != nil {
			nested = true
		}
		n.Set(key, nil)
	}
	return nested
}

func (n *Node) detach() {
	n.detached = true
	n.outer = nil
	delete(n.rt.refs, n)
	for _, value := range n.props {
		if sub, ok := value.(*Node); ok && sub != nil && sub.kind == objectNode && sub.tree == n.tree && !sub.detached {
			sub.detach()
		}
	}
}

// notify schedules listeners watching key at this node's position, foreign
// listeners delegated to this node, and listeners whose value is this node
// or one of the objects containing it.
func (n *Node) notify(key string) {
	if n.Destroyed() || n.detached {
		return
	}
	site := writeSite{node: n, home: n.homeNode(), key: key}
	site.path = append(append([]string(nil), n.path...), key)
	registry := n.tree
	n.rt.scheduleDelivery(func() []*Listener {
		return registry.match(site)
	})
	for cur := n; cur != nil; cur = cur.outer {
		if len(n.rt.refs[cur]) == 0 {
			continue
		}
		// Captured now: detaching ref drops its entry before the task runs.
		ref, captured := cur, append([]*Listener(nil), n.rt.refs[cur]...)
		n.rt.scheduleDelivery(func() []*Listener {
			return n.rt.referencing(ref, captured)
		})
	}
}

func normalizeInput(value any) any {
	if node, ok := value.(*Node); ok && node == nil {
		return nil
	}
	return layering.Normalize(value)
}

func removeKey(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i:i], keys[i+1:]...)
		}
	}
	return keys
}

// describePath joins a member path for diagnostics.
func describePath(path []string) string {
	return strings.Join(path, ".")
}
