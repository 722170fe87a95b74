package scope

import (
	"log/slog"

	"github.com/goliatone/go-scope/pkg/activity"
)

// DefaultFlushLimit bounds the number of turns Flush drains before giving up.
const DefaultFlushLimit = 100

// WatchFunc receives the recomputed value of a watched expression together
// with the previously delivered value.
type WatchFunc func(newValue, oldValue any)

// GroupFunc receives the values of every expression in a watch group.
type GroupFunc func(newValues, oldValues []any)

// Deregister removes a registration. Calling it more than once is a no-op.
type Deregister func()

func noopDeregister() {}

type Option func(*runtimeConfig)

type runtimeConfig struct {
	compiler         Compiler
	programCache     ProgramCache
	functions        *FunctionRegistry
	evalLogger       EvaluatorLogger
	logger           *slog.Logger
	exceptionHandler ExceptionHandler
	activityHooks    activity.Hooks
	activityChannel  string
	initialState     []map[string]any
	flushLimit       int
}

func applyOptions(opts []Option) runtimeConfig {
	cfg := runtimeConfig{
		flushLimit: DefaultFlushLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithCompiler configures the expression compiler used by Watch and Evaluate.
func WithCompiler(c Compiler) Option {
	return func(cfg *runtimeConfig) {
		cfg.compiler = c
	}
}

// WithExceptionHandler configures the handler receiving delivery failures.
func WithExceptionHandler(h ExceptionHandler) Option {
	return func(cfg *runtimeConfig) {
		cfg.exceptionHandler = h
	}
}

// WithLogger configures the structured logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *runtimeConfig) {
		cfg.logger = logger
	}
}

// WithInitialState seeds the root node. Layers are ordered strongest first
// and deep merged.
func WithInitialState(layers ...map[string]any) Option {
	return func(cfg *runtimeConfig) {
		cfg.initialState = append(cfg.initialState, layers...)
	}
}

// WithFlushLimit bounds the turns Flush drains. Non-positive values keep the
// default.
func WithFlushLimit(turns int) Option {
	return func(cfg *runtimeConfig) {
		if turns > 0 {
			cfg.flushLimit = turns
		}
	}
}
