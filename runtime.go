package scope

import (
	"io"
	"log/slog"

	"github.com/goliatone/go-scope/layering"
	"github.com/goliatone/go-scope/pkg/activity"
)

// Runtime is one application instance. It owns the node arena, the task
// queue that defers notifications, the post-update queue, and the
// collaborators configured through options.
type Runtime struct {
	cfg        runtimeConfig
	logger     *slog.Logger
	compiler   Compiler
	evalLogger EvaluatorLogger
	emitter    *activity.Emitter

	nextID int64
	arena  map[int64]*Node
	root   *Node
	refs   map[*Node][]*Listener

	queue      *taskQueue
	postUpdate []func()
}

// New constructs a runtime. Without WithCompiler, expressions compile with the
// expr-lang backed compiler using the configured cache and functions.
func New(opts ...Option) *Runtime {
	cfg := applyOptions(opts)
	rt := &Runtime{
		cfg:    cfg,
		logger: cfg.logger,
		arena:  make(map[int64]*Node),
		refs:   make(map[*Node][]*Listener),
		queue:  newTaskQueue(),
	}
	if rt.logger == nil {
		rt.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	rt.evalLogger = cfg.evalLogger
	if rt.evalLogger == nil {
		rt.evalLogger = noopEvaluatorLogger{}
	}
	rt.compiler = cfg.compiler
	if rt.compiler == nil {
		var exprOpts []ExprCompilerOption
		if cfg.programCache != nil {
			exprOpts = append(exprOpts, ExprWithProgramCache(cfg.programCache))
		}
		if cfg.functions != nil {
			exprOpts = append(exprOpts, ExprWithFunctionRegistry(cfg.functions))
		}
		rt.compiler = NewExprCompiler(exprOpts...)
	}
	rt.emitter = activity.NewEmitter(cfg.activityHooks, activity.Config{
		Enabled: true,
		Channel: cfg.activityChannel,
	})
	return rt
}

// Root returns the distinguished root node, creating it on first use. Initial
// state layers are merged into it.
func (rt *Runtime) Root() *Node {
	if rt.root == nil {
		rt.root = rt.wrap(layering.Merge(rt.cfg.initialState...))
	}
	return rt.root
}

// Wrap creates the root of a new, independent tree. Storing a node of one tree
// in another records it as a foreign proxy reference.
func (rt *Runtime) Wrap(target map[string]any) *Node {
	return rt.wrap(target)
}

func (rt *Runtime) wrap(target map[string]any) *Node {
	t := newTree()
	root := rt.newNode(scopeNode, t)
	root.root = root
	t.root = root
	values, _ := normalizeInput(target).(map[string]any)
	for _, key := range sortedKeys(values) {
		root.put(key, values[key])
	}
	rt.arena[root.id] = root
	rt.emitScopeActivity(activity.VerbScopeCreated, root)
	return root
}

// Lookup resolves a live scope node by id.
func (rt *Runtime) Lookup(id int64) (*Node, bool) {
	n, ok := rt.arena[id]
	return n, ok
}

// Logger returns the runtime's structured logger.
func (rt *Runtime) Logger() *slog.Logger {
	return rt.logger
}

// Compiler returns the expression compiler in use.
func (rt *Runtime) Compiler() Compiler {
	return rt.compiler
}

func (rt *Runtime) newNode(kind nodeKind, t *tree) *Node {
	rt.nextID++
	return &Node{
		id:    rt.nextID,
		rt:    rt,
		tree:  t,
		kind:  kind,
		props: make(map[string]any),
	}
}

func (rt *Runtime) compile(source string) (Accessor, error) {
	if rt.compiler == nil {
		return nil, ErrNoCompiler
	}
	return rt.compiler.Compile(source)
}
