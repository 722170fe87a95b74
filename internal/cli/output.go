package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario failed or did not validate
	ExitCommandError = 2 // Command error (unreadable file, bad flags)
)

// ExitError carries the process exit code for a command failure.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// WriteText renders a result as one line per trace entry followed by the
// exported root state. Values are JSON encoded so the output is stable.
func WriteText(w io.Writer, result *Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s\n", result.Name)
	for _, event := range result.Trace {
		b.WriteString(formatEvent(event))
		b.WriteByte('\n')
	}
	for _, field := range result.Fields {
		fmt.Fprintf(&b, "field %s %s watchers=%d\n", field.Path, field.Type, field.Watchers)
	}
	fmt.Fprintf(&b, "final %s\n", encode(result.Final))
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON renders results as an indented JSON document.
func WriteJSON(w io.Writer, results []*Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func formatEvent(e TraceEvent) string {
	switch e.Type {
	case KindWatch, KindGroup:
		return fmt.Sprintf("%d %s %s scope=%s value=%s old=%s", e.Seq, e.Type, e.ID, e.Scope, encode(e.Value), encode(e.Old))
	case KindEvent:
		return fmt.Sprintf("%d event %s scope=%s name=%s target=%s args=%s", e.Seq, e.ID, e.Scope, e.Name, e.Target, encode(e.Args))
	case KindEval:
		return fmt.Sprintf("%d eval scope=%s expr=%q value=%s", e.Seq, e.Scope, e.Expr, encode(e.Value))
	case KindError:
		return fmt.Sprintf("%d error kind=%s source=%q message=%q", e.Seq, e.Name, e.Expr, e.Message)
	default:
		return fmt.Sprintf("%d %s %s", e.Seq, e.Type, e.ID)
	}
}

func encode(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(value))
	}
	return string(raw)
}
