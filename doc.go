// Package scope implements a hierarchical reactive state tree.
//
// A Runtime owns a root Node. Child scopes created with New read unset keys
// through to their parent; isolated children inherit nothing. Map values are
// wrapped into nested object nodes so writes anywhere in the tree can be
// observed.
//
// Watchers never run synchronously. A write schedules delivery on the
// runtime's task queue and callbacks run on a later turn, driven by Tick,
// Flush or Run:
//
//	rt := scope.New()
//	root := rt.Root()
//	root.Watch("user.name", func(newValue, oldValue any) { ... })
//	root.Set("user", map[string]any{"name": "ada"})
//	_ = rt.Flush()
//
// Expressions compile with expr-lang by default. NewCELCompiler and, with the
// js_eval build tag, NewJSCompiler provide alternative dialects. Each
// compiled expression is keyed on a single observable property: the path
// itself for member reads and the first referenced path for compound
// expressions.
//
// Events propagate upwards with Emit and downwards with Broadcast. Failures
// inside callbacks are routed to the configured ExceptionHandler and never
// reach the writer.
//
// Nodes are not safe for concurrent use. Other goroutines hand work to the
// runtime through Dispatch.
package scope
