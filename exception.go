package scope

import (
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
)

// ExceptionHandler receives failures caught at delivery boundaries. Errors
// never propagate to the code that triggered the write or emit.
type ExceptionHandler interface {
	HandleException(err *DeliveryError)
}

// ExceptionHandlerFunc adapts a function to ExceptionHandler.
type ExceptionHandlerFunc func(err *DeliveryError)

// HandleException implements ExceptionHandler.
func (f ExceptionHandlerFunc) HandleException(err *DeliveryError) {
	if f != nil {
		f(err)
	}
}

// LogExceptionHandler logs delivery failures through slog.
type LogExceptionHandler struct {
	Logger *slog.Logger
	// Verbose includes captured stacks for recovered panics.
	Verbose bool
}

// HandleException implements ExceptionHandler.
func (h *LogExceptionHandler) HandleException(err *DeliveryError) {
	if h == nil || err == nil {
		return
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"kind", string(err.Kind),
		"node", err.NodeID,
	}
	if err.Source != "" {
		attrs = append(attrs, "source", err.Source)
	}
	if err.Panic != nil {
		attrs = append(attrs, "panic", fmt.Sprint(err.Panic))
		if h.Verbose && err.Stack != "" {
			attrs = append(attrs, "stack", err.Stack)
		}
		logger.Error("scope delivery panic", attrs...)
		return
	}
	attrs = append(attrs, "error", err.Err)
	logger.Error("scope delivery failed", attrs...)
}

// guard runs fn and converts a returned error or a panic into a
// DeliveryError forwarded to the runtime's exception handler.
func (rt *Runtime) guard(kind DeliveryKind, nodeID int64, source string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := r.(error)
			if err == nil {
				err = fmt.Errorf("%v", r)
			}
			rt.report(&DeliveryError{
				Kind:   kind,
				NodeID: nodeID,
				Source: source,
				Panic:  r,
				Stack:  captureStack(),
				Err:    err,
			})
		}
	}()
	if err := fn(); err != nil {
		rt.report(&DeliveryError{
			Kind:   kind,
			NodeID: nodeID,
			Source: source,
			Err:    err,
		})
	}
}

func (rt *Runtime) report(err *DeliveryError) {
	if err == nil {
		return
	}
	handler := rt.cfg.exceptionHandler
	if handler == nil {
		handler = &LogExceptionHandler{Logger: rt.logger}
	}
	// a handler that panics would otherwise abort sibling deliveries
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error("scope exception handler panicked", "panic", fmt.Sprint(r))
		}
	}()
	handler.HandleException(err)
}

// captureStack returns the caller stack, skipping the recover machinery.
func captureStack() string {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(4, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		sb.WriteString(frame.Function)
		sb.WriteString("\n\t")
		sb.WriteString(frame.File)
		sb.WriteString(":")
		sb.WriteString(strconv.Itoa(frame.Line))
		sb.WriteString("\n")
		if !more {
			break
		}
	}
	return sb.String()
}
