package scope

import (
	"fmt"

	"github.com/goliatone/go-scope/internal/hydrate"
)

// DecodeOption configures Decode.
type DecodeOption[T any] = hydrate.DecoderOption[T]

// DecodeContext identifies the node and path a payload was exported from.
type DecodeContext = hydrate.Context

// DecodeError reports which decoding stage failed.
type DecodeError = hydrate.DecodeError

// DecodeUseNumber decodes numbers into json.Number.
func DecodeUseNumber[T any]() DecodeOption[T] {
	return hydrate.WithUseNumber[T]()
}

// DecodePreHook rewrites the exported payload before decoding.
func DecodePreHook[T any](hook func(DecodeContext, map[string]any) (map[string]any, error)) DecodeOption[T] {
	return hydrate.WithPreHook[T](hook)
}

// DecodePostHook adjusts or validates the decoded value.
func DecodePostHook[T any](hook func(DecodeContext, *T) error) DecodeOption[T] {
	return hydrate.WithPostHook[T](hook)
}

// DecodeWith replaces JSON decoding with fn.
func DecodeWith[T any](fn func(DecodeContext, map[string]any) (T, error)) DecodeOption[T] {
	return hydrate.WithCustomDecoder[T](fn)
}

// Decode exports the keys visible from n and decodes them into T. Decoding
// goes through JSON so struct tags apply.
func Decode[T any](n *Node, opts ...DecodeOption[T]) (T, error) {
	var zero T
	if n == nil {
		return zero, ErrDestroyed
	}
	decoder := hydrate.NewDecoder[T](opts...)
	return decoder.Decode(hydrate.Context{NodeID: n.ID(), Scope: n.label()}, n.Export())
}

// DecodeStrict behaves like Decode but rejects keys T does not declare.
func DecodeStrict[T any](n *Node, opts ...DecodeOption[T]) (T, error) {
	opts = append([]DecodeOption[T]{hydrate.WithDisallowUnknownFields[T]()}, opts...)
	return Decode[T](n, opts...)
}

// DecodePath decodes the object stored at a dotted path below n.
func DecodePath[T any](n *Node, path string, opts ...DecodeOption[T]) (T, error) {
	var zero T
	if n == nil {
		return zero, ErrDestroyed
	}
	ctx := hydrate.Context{NodeID: n.ID(), Scope: n.label(), Path: path}
	value, ok := n.lookupPath(splitPath(path))
	if !ok {
		return zero, &DecodeError{Stage: hydrate.StagePayload, Context: ctx, Err: fmt.Errorf("path not found")}
	}
	payload, ok := exportValue(value).(map[string]any)
	if !ok {
		return zero, &DecodeError{Stage: hydrate.StagePayload, Context: ctx, Err: fmt.Errorf("value is %T, not an object", value)}
	}
	return hydrate.NewDecoder[T](opts...).Decode(ctx, payload)
}
