package scope

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// Reserved keys are resolved on the node itself regardless of its data.
const (
	KeyID     = "$id"
	KeyParent = "$parent"
	KeyRoot   = "$root"
	KeyIsNode = "$isNode"
)

func isReserved(key string) bool {
	switch key {
	case KeyID, KeyParent, KeyRoot, KeyIsNode:
		return true
	}
	return false
}

type nodeKind uint8

const (
	scopeNode nodeKind = iota
	objectNode
)

// Node is a reactive state container. Scope nodes form the hierarchy and
// inherit unset keys from their prototype; object nodes wrap nested
// map values stored under a key of a scope or another object node.
//
// Nodes are not safe for concurrent use. Work from other goroutines must go
// through Runtime.Dispatch.
type Node struct {
	id   int64
	rt   *Runtime
	tree *tree
	kind nodeKind

	parent   *Node
	proto    *Node
	root     *Node
	children []*Node

	// object nodes only
	home     *Node
	outer    *Node
	path     []string
	detached bool

	props map[string]any
	order []string

	destroyed bool
	events    map[string][]*eventListener
	owned     []*Listener

	async          []func(*Node)
	asyncScheduled bool
}

// IsNode reports whether v is a wrapped node.
func IsNode(v any) bool {
	n, ok := v.(*Node)
	return ok && n != nil
}

// ID returns the node identifier. Identifiers increase monotonically per
// runtime so a child's id is always greater than its parent's.
func (n *Node) ID() int64 { return n.id }

// Runtime returns the application instance owning the node.
func (n *Node) Runtime() *Runtime { return n.rt }

// Parent returns the logical parent used for event propagation.
func (n *Node) Parent() *Node { return n.parent }

// RootNode returns the root of the node's tree.
func (n *Node) RootNode() *Node { return n.root }

// IsScope reports whether n is a scope node rather than a nested object.
func (n *Node) IsScope() bool { return n.kind == scopeNode }

// Children returns a copy of the child scope list in registration order.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// Destroyed reports whether the node, or for nested objects the owning
// scope, has been destroyed.
func (n *Node) Destroyed() bool {
	if n.kind == objectNode {
		return n.home == nil || n.home.destroyed
	}
	return n.destroyed
}

func (n *Node) homeNode() *Node {
	if n.kind == objectNode {
		return n.home
	}
	return n
}

func (n *Node) label() string {
	if n.kind == objectNode {
		return fmt.Sprintf("object:%d", n.id)
	}
	return fmt.Sprintf("scope:%d", n.id)
}

// Get returns the value visible under key, or nil.
func (n *Node) Get(key string) any {
	value, _ := n.Lookup(key)
	return value
}

// Lookup returns the value visible under key: reserved names first, then own
// keys, then the prototype chain.
func (n *Node) Lookup(key string) (any, bool) {
	switch key {
	case KeyID:
		return n.id, true
	case KeyParent:
		if n.parent == nil {
			return nil, true
		}
		return n.parent, true
	case KeyRoot:
		return n.root, true
	case KeyIsNode:
		return true, true
	}
	for cur := n; cur != nil; cur = cur.proto {
		if value, ok := cur.props[key]; ok {
			return value, true
		}
	}
	return nil, false
}

// Has reports whether key is visible on the node.
func (n *Node) Has(key string) bool {
	_, ok := n.Lookup(key)
	return ok
}

// HasOwn reports whether key is set on the node itself.
func (n *Node) HasOwn(key string) bool {
	_, ok := n.props[key]
	return ok
}

// Keys returns the node's own keys in insertion order.
func (n *Node) Keys() []string {
	return append([]string(nil), n.order...)
}

// Child returns the nested object node stored under key, or nil.
func (n *Node) Child(key string) *Node {
	value, _ := n.Lookup(key)
	child, _ := value.(*Node)
	return child
}

// Export returns a deep plain snapshot of every visible key. Nested nodes
// become map[string]any and slices are copied.
func (n *Node) Export() map[string]any {
	out := make(map[string]any)
	chain := n.protoChain()
	for i := len(chain) - 1; i >= 0; i-- {
		for key, value := range chain[i].props {
			out[key] = exportValue(value)
		}
	}
	return out
}

// ownView exports only the node's own keys.
func (n *Node) ownView() map[string]any {
	out := make(map[string]any, len(n.props))
	for key, value := range n.props {
		out[key] = exportValue(value)
	}
	return out
}

func (n *Node) protoChain() []*Node {
	var chain []*Node
	for cur := n; cur != nil; cur = cur.proto {
		chain = append(chain, cur)
	}
	return chain
}

// owner returns the node in the prototype chain holding key, or nil.
func (n *Node) owner(key string) *Node {
	for cur := n; cur != nil; cur = cur.proto {
		if _, ok := cur.props[key]; ok {
			return cur
		}
	}
	return nil
}

// sees reports whether a read of key on n resolves to home.
func (n *Node) sees(key string, home *Node) bool {
	for cur := n; cur != nil; cur = cur.proto {
		if cur == home {
			return true
		}
		if _, ok := cur.props[key]; ok {
			return false
		}
	}
	return false
}

func (n *Node) lookupPath(path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	value, ok := n.Lookup(path[0])
	if !ok {
		return nil, false
	}
	for _, segment := range path[1:] {
		if value, ok = member(value, segment); !ok {
			return nil, false
		}
	}
	return value, true
}

func member(value any, segment string) (any, bool) {
	switch v := value.(type) {
	case *Node:
		if v == nil {
			return nil, false
		}
		return v.Lookup(segment)
	case map[string]any:
		out, ok := v[segment]
		return out, ok
	case []any:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, false
		}
		return v[idx], true
	}
	return nil, false
}

func walkValue(value any, path []string) any {
	for _, segment := range path {
		var ok bool
		if value, ok = member(value, segment); !ok {
			return nil
		}
	}
	return value
}

func exportValue(value any) any {
	switch v := value.(type) {
	case *Node:
		if v == nil {
			return nil
		}
		return v.Export()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = exportValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = exportValue(item)
		}
		return out
	}
	return value
}

// sameValue compares by identity as a write would observe it. Containers,
// functions and nodes compare by reference; NaN equals NaN.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := a.(float64); ok {
		fb, ok := b.(float64)
		return ok && (fa == fb || (math.IsNaN(fa) && math.IsNaN(fb)))
	}
	if fa, ok := a.(float32); ok {
		fb, ok := b.(float32)
		return ok && (fa == fb || (math.IsNaN(float64(fa)) && math.IsNaN(float64(fb))))
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Func, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Struct, reflect.Array, reflect.Interface:
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

// equalValue compares delivered snapshots structurally. Numbers compare by
// value across Go numeric types and NaN equals NaN.
func equalValue(a, b any) bool {
	if equal, ok := numericEqual(a, b); ok {
		return equal
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equalValue(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for key, value := range x {
			other, ok := y[key]
			if !ok || !equalValue(value, other) {
				return false
			}
		}
		return true
	}
	if b == nil {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Func || vb.Kind() == reflect.Func {
		return va.Kind() == vb.Kind() && va.Pointer() == vb.Pointer()
	}
	return reflect.DeepEqual(a, b)
}

// numericEqual reports whether a and b hold the same number. ok is false
// unless both are numbers.
func numericEqual(a, b any) (equal, ok bool) {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	ka, kb := numberClass(va), numberClass(vb)
	if ka == notNumber || kb == notNumber {
		return false, false
	}
	switch {
	case ka == floatNumber || kb == floatNumber:
		x, y := asFloat(va, ka), asFloat(vb, kb)
		return x == y || (math.IsNaN(x) && math.IsNaN(y)), true
	case ka == kb && ka == signedNumber:
		return va.Int() == vb.Int(), true
	case ka == kb:
		return va.Uint() == vb.Uint(), true
	case ka == signedNumber:
		return va.Int() >= 0 && uint64(va.Int()) == vb.Uint(), true
	default:
		return vb.Int() >= 0 && uint64(vb.Int()) == va.Uint(), true
	}
}

type numberKind int

const (
	notNumber numberKind = iota
	signedNumber
	unsignedNumber
	floatNumber
)

func numberClass(v reflect.Value) numberKind {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return signedNumber
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return unsignedNumber
	case reflect.Float32, reflect.Float64:
		return floatNumber
	}
	return notNumber
}

func asFloat(v reflect.Value, kind numberKind) float64 {
	switch kind {
	case signedNumber:
		return float64(v.Int())
	case unsignedNumber:
		return float64(v.Uint())
	}
	return v.Float()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
