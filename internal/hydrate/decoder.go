// Package hydrate decodes exported node payloads into typed structs.
package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-scope/layering"
)

// Context identifies where a payload was exported from. Path is empty when
// the payload is the whole node.
type Context struct {
	NodeID int64
	Scope  string
	Path   string
}

func (c Context) String() string {
	if c.Path == "" {
		return fmt.Sprintf("node %d", c.NodeID)
	}
	return fmt.Sprintf("node %d path %q", c.NodeID, c.Path)
}

// Stage names the decoding step that failed.
type Stage string

const (
	StagePayload  Stage = "payload"
	StagePreHook  Stage = "pre-hook"
	StageCustom   Stage = "custom decoder"
	StageDecode   Stage = "decode"
	StagePostHook Stage = "post-hook"
)

// DecodeError reports the stage and origin of a decoding failure.
type DecodeError struct {
	Stage   Stage
	Context Context
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("hydrate: %s for %s: %v", e.Stage, e.Context, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PreHook rewrites the payload before decoding. Returning nil keeps the
// current payload.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook adjusts or validates the decoded value.
type PostHook[T any] func(Context, *T) error

// CustomDecoder replaces JSON decoding.
type CustomDecoder[T any] func(Context, map[string]any) (T, error)

// DecoderOption configures a Decoder.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts payloads into T. Payloads are cloned before the first
// pre-hook so hooks may mutate them freely.
type Decoder[T any] struct {
	preHooks  []PreHook
	postHooks []PostHook[T]
	configure []func(*json.Decoder)
	custom    CustomDecoder[T]
}

// WithPreHook appends a pre-hook.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.preHooks = append(d.preHooks, hook)
		}
	}
}

// WithPostHook appends a post-hook.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.postHooks = append(d.postHooks, hook)
		}
	}
}

// WithUseNumber decodes numbers into json.Number.
func WithUseNumber[T any]() DecoderOption[T] {
	return WithDecoderConfig[T](func(dec *json.Decoder) { dec.UseNumber() })
}

// WithDisallowUnknownFields rejects payload keys T does not declare.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return WithDecoderConfig[T](func(dec *json.Decoder) { dec.DisallowUnknownFields() })
}

// WithDecoderConfig configures the json.Decoder directly.
func WithDecoderConfig[T any](configure func(*json.Decoder)) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if configure != nil {
			d.configure = append(d.configure, configure)
		}
	}
}

// WithCustomDecoder replaces JSON decoding. Post-hooks still run.
func WithCustomDecoder[T any](decoder CustomDecoder[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.custom = decoder
	}
}

// NewDecoder constructs a Decoder applying opts in order.
func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode runs the pre-hooks, the decoder and the post-hooks in that order.
func (d *Decoder[T]) Decode(ctx Context, payload map[string]any) (T, error) {
	var zero T
	if payload == nil {
		return zero, &DecodeError{Stage: StagePayload, Context: ctx, Err: fmt.Errorf("payload is nil")}
	}
	current, _ := layering.Clone(payload).(map[string]any)

	for _, hook := range d.preHooks {
		next, err := hook(ctx, current)
		if err != nil {
			return zero, &DecodeError{Stage: StagePreHook, Context: ctx, Err: err}
		}
		if next != nil {
			current = next
		}
	}

	result, err := d.decode(ctx, current)
	if err != nil {
		return zero, err
	}

	for _, hook := range d.postHooks {
		if err := hook(ctx, &result); err != nil {
			return zero, &DecodeError{Stage: StagePostHook, Context: ctx, Err: err}
		}
	}
	return result, nil
}

func (d *Decoder[T]) decode(ctx Context, payload map[string]any) (T, error) {
	var result T
	if d.custom != nil {
		out, err := d.custom(ctx, payload)
		if err != nil {
			return result, &DecodeError{Stage: StageCustom, Context: ctx, Err: err}
		}
		return out, nil
	}
	buffer, err := json.Marshal(payload)
	if err != nil {
		return result, &DecodeError{Stage: StagePayload, Context: ctx, Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(buffer))
	for _, configure := range d.configure {
		configure(dec)
	}
	if err := dec.Decode(&result); err != nil {
		return result, &DecodeError{Stage: StageDecode, Context: ctx, Err: err}
	}
	return result, nil
}
