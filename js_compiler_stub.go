//go:build !js_eval

package scope

// NewJSCompiler is unavailable without the js_eval build tag.
func NewJSCompiler(opts ...JSCompilerOption) Compiler {
	_ = applyJSCompilerOptions(opts)
	return nil
}

func jsCompilerAvailable() bool {
	return false
}
