package scope

type jsCompilerConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// JSCompilerOption configures the JS compiler.
type JSCompilerOption func(*jsCompilerConfig)

// JSWithProgramCache applies a ProgramCache to the JS compiler.
func JSWithProgramCache(cache ProgramCache) JSCompilerOption {
	return func(cfg *jsCompilerConfig) {
		cfg.cache = cache
	}
}

// JSWithFunctionRegistry applies a FunctionRegistry to the JS compiler.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSCompilerOption {
	return func(cfg *jsCompilerConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

func applyJSCompilerOptions(opts []JSCompilerOption) jsCompilerConfig {
	cfg := jsCompilerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
