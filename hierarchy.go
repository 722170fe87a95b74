package scope

import "github.com/goliatone/go-scope/pkg/activity"

// EventDestroy is broadcast to a scope's subtree when it is destroyed.
const EventDestroy = "$destroy"

// New derives a child scope that reads unset keys through to n. Writes on
// the child never reach n.
func (n *Node) New() *Node {
	scope := n.homeNode()
	return scope.derive(scope, scope)
}

// NewIsolated derives a child scope that inherits nothing from n but shares
// its root and receives its broadcasts.
func (n *Node) NewIsolated() *Node {
	scope := n.homeNode()
	return scope.derive(scope, nil)
}

// NewTranscluded derives a child that inherits from n while emitting events
// through logicalParent. A nil logicalParent behaves like New.
func (n *Node) NewTranscluded(logicalParent *Node) *Node {
	scope := n.homeNode()
	if logicalParent == nil {
		return scope.derive(scope, scope)
	}
	return scope.derive(logicalParent.homeNode(), scope)
}

func (n *Node) derive(parent, proto *Node) *Node {
	child := n.rt.newNode(scopeNode, n.tree)
	child.parent = parent
	child.proto = proto
	child.root = n.root
	parent.children = append(parent.children, child)
	n.rt.arena[child.id] = child
	n.rt.emitScopeActivity(activity.VerbScopeCreated, child)
	return child
}

// Destroy tears down the reactive wiring of n and its descendants. It
// broadcasts EventDestroy to the subtree, deregisters every listener the
// subtree owns, detaches n from its parent and drops the subtree from the
// arena. Data stays readable and writable. Repeated calls are no-ops.
func (n *Node) Destroy() {
	if n.kind != scopeNode || n.destroyed {
		return
	}
	watchers := n.WatcherCount()
	n.Broadcast(EventDestroy)
	n.teardownSubtree()
	if n.parent != nil {
		n.parent.children = removeNode(n.parent.children, n)
	}
	if n == n.rt.root {
		n.rt.postUpdate = nil
	}
	n.rt.logger.Debug("scope destroyed", "node", n.id, "watchers", watchers)
	n.rt.emitScopeActivity(activity.VerbScopeDestroyed, n)
}

func (n *Node) teardownSubtree() {
	for _, child := range n.children {
		if !child.destroyed {
			child.teardownSubtree()
		}
	}
	for len(n.owned) > 0 {
		n.owned[len(n.owned)-1].Deregister()
	}
	n.destroyed = true
	n.events = nil
	n.async = nil
	delete(n.rt.arena, n.id)
}

func removeNode(nodes []*Node, target *Node) []*Node {
	for i, candidate := range nodes {
		if candidate == target {
			return append(nodes[:i:i], nodes[i+1:]...)
		}
	}
	return nodes
}
