package scope

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateReadsVisibleKeysAndLocals(t *testing.T) {
	rt := New()
	root := rt.Root()
	root.Set("a", 2)
	child := root.New()
	child.Set("b", 5)

	value, err := child.Evaluate("a * b", nil)
	require.NoError(t, err)
	assert.Equal(t, 10, value)

	value, err = child.Evaluate("a + n", map[string]any{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, 3, value)

	value, err = child.Evaluate("a", map[string]any{"a": "local"})
	require.NoError(t, err)
	assert.Equal(t, "local", value, "locals shadow node keys")
}

func TestEvaluateThisSeesOwnKeysOnly(t *testing.T) {
	rt := New()
	root := rt.Root()
	root.Set("a", 1)
	child := root.New()
	child.Set("b", 2)

	value, err := child.Evaluate("this.b", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, value)

	value, err = child.Evaluate("this.a == nil", nil)
	require.NoError(t, err)
	assert.Equal(t, true, value)
}

func TestEvaluateMissingPathIsNil(t *testing.T) {
	rt := New()
	value, err := rt.Root().Evaluate("user.profile.name", nil)
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestEvaluateEmptySource(t *testing.T) {
	rt := New()
	_, err := rt.Root().Evaluate("", nil)
	assert.ErrorIs(t, err, ErrEmptyExpression)
}

func TestEvaluateLogsThroughEvaluatorLogger(t *testing.T) {
	var events []EvaluatorLogEvent
	rt := New(
		WithEvaluatorLogger(EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
			events = append(events, event)
		})),
		WithCustomFunction("fail", func(...any) (any, error) {
			return nil, errors.New("refused")
		}),
	)
	root := rt.Root()
	root.Set("a", 1)

	_, err := root.Evaluate("a + 1", nil)
	require.NoError(t, err)
	_, err = root.Evaluate("fail(a)", nil)
	require.Error(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "expr", events[0].Engine)
	assert.Equal(t, "a + 1", events[0].Expr)
	assert.Equal(t, "scope:1", events[0].Scope)
	assert.NoError(t, events[0].Err)
	assert.Error(t, events[1].Err)

	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "scope:1", evalErr.Scope)
	assert.Contains(t, err.Error(), "refused")
}

func TestApplyForwardsFailures(t *testing.T) {
	var reported []*DeliveryError
	rt := New(WithExceptionHandler(ExceptionHandlerFunc(func(err *DeliveryError) {
		reported = append(reported, err)
	})))
	root := rt.Root()
	root.Set("a", 4)

	assert.Equal(t, 8, root.Apply("a * 2"))
	assert.Empty(t, reported)

	assert.Nil(t, root.Apply("a +"))
	require.Len(t, reported, 1)
	assert.Equal(t, DeliveryApply, reported[0].Kind)
	assert.Equal(t, "a +", reported[0].Source)
}

func TestApplyAssignmentNotifies(t *testing.T) {
	rt := New()
	root := rt.Root()
	root.Set("a", 1)
	rec := &recorder{}
	_, err := root.Watch("total", rec.watch)
	require.NoError(t, err)
	flush(t, rt)

	assert.Equal(t, 11, root.Apply("total = a + 10"))
	flush(t, rt)
	assert.Equal(t, delivery{New: 11, Old: nil}, rec.last())
}

func TestCustomFunctionsReachExpressions(t *testing.T) {
	rt := New(WithCustomFunction("double", func(args ...any) (any, error) {
		n, _ := args[0].(int)
		return n * 2, nil
	}))
	root := rt.Root()
	root.Set("a", 21)

	value, err := root.Evaluate("double(a)", nil)
	require.NoError(t, err)
	assert.Equal(t, 42, value)

	rec := &recorder{}
	_, err = root.Watch("double(a)", rec.watch)
	require.NoError(t, err)
	flush(t, rt)
	root.Set("a", 1)
	flush(t, rt)
	require.Len(t, rec.calls, 2)
	assert.Equal(t, delivery{New: 2, Old: 42}, rec.calls[1])
}

func TestProgramCacheIsShared(t *testing.T) {
	cache := NewMapProgramCache()
	rt := New(WithProgramCache(cache))
	root := rt.Root()
	root.Set("a", 1)

	_, err := root.Evaluate("a + 1", nil)
	require.NoError(t, err)
	cached, ok := cache.Get("a + 1")
	require.True(t, ok)
	assert.NotNil(t, cached)

	value, err := root.Evaluate("a + 1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, value)
}

func TestCELCompilerRuntime(t *testing.T) {
	rt := New(WithCompiler(NewCELCompiler()))
	root := rt.Root()
	root.Assign(map[string]any{"a": 5, "b": 10})

	value, err := root.Evaluate("a * b", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 50, value)

	rec := &recorder{}
	_, err = root.Watch("a + b", rec.watch)
	require.NoError(t, err)
	flush(t, rt)
	require.Len(t, rec.calls, 1)
	assert.EqualValues(t, 15, rec.calls[0].New)

	root.Set("a", 1)
	flush(t, rt)
	require.Len(t, rec.calls, 2)
	assert.EqualValues(t, 11, rec.calls[1].New)
}
