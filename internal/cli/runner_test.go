package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runYAML(t *testing.T, src string) *Result {
	t.Helper()
	scenario, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	result, err := Runner{}.Run(scenario)
	require.NoError(t, err)
	return result
}

func TestRunnerRecordsEval(t *testing.T) {
	result := runYAML(t, `
name: eval
steps:
  - eval: "1"
`)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, KindEval, result.Trace[0].Type)
	assert.Equal(t, 1, result.Trace[0].Value)
}

func TestRunnerRecordsDeliveryErrors(t *testing.T) {
	result := runYAML(t, `
name: errors
compiler: cel
state: {a: 1, b: 0}
steps:
  - watch: {id: w, expr: a / b}
  - watch: {id: ok, expr: b}
`)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, KindError, result.Trace[0].Type)
	assert.Equal(t, "watch", result.Trace[0].Name)
	assert.Equal(t, "a / b", result.Trace[0].Expr)
	assert.Contains(t, result.Trace[0].Message, "division by zero")
	assert.Equal(t, KindWatch, result.Trace[1].Type)
	assert.Equal(t, "ok", result.Trace[1].ID)
}

func TestRunnerUnwatchStopsDeliveries(t *testing.T) {
	result := runYAML(t, `
name: unwatch
state: {a: 1}
steps:
  - watch: {id: w, expr: a}
  - flush: true
  - unwatch: w
  - set: {a: 2}
`)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, 1, result.Trace[0].Value)
	assert.Equal(t, map[string]any{"a": 2}, result.Final)
}

func TestRunnerIsolatedChildDoesNotInherit(t *testing.T) {
	result := runYAML(t, `
name: isolated
state: {title: hello}
steps:
  - child: {name: iso, isolated: true}
  - scope: iso
    eval: title
  - child: {name: kid}
  - scope: kid
    eval: title
`)
	require.Len(t, result.Trace, 2)
	assert.Nil(t, result.Trace[0].Value)
	assert.Equal(t, "hello", result.Trace[1].Value)
}

func TestRunnerStepFailure(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad-append
state: {label: x}
steps:
  - append: {key: label, values: [y]}
`))
	require.NoError(t, err)
	_, err = Runner{}.Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1")
}

func TestRunnerUnknownCompiler(t *testing.T) {
	scenario, err := ParseScenario([]byte("name: x\nsteps:\n  - flush: true\n"))
	require.NoError(t, err)
	_, err = Runner{Compiler: "lua"}.Run(scenario)
	require.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	result := runYAML(t, `
name: json
state: {a: 1}
steps:
  - watch: {id: w, expr: a}
`)
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []*Result{result}))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "json", decoded[0]["scenario"])
	trace := decoded[0]["trace"].([]any)
	require.Len(t, trace, 1)
	entry := trace[0].(map[string]any)
	assert.Equal(t, "watch", entry["type"])
	assert.Equal(t, "w", entry["id"])
	assert.Equal(t, float64(1), entry["value"])
}

func TestRunCommandJSONFormat(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--format", "json", filepath.Join("testdata", "scenarios", "basic-watch.yaml")})
	require.NoError(t, cmd.Execute())

	var decoded []Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "basic-watch", decoded[0].Name)
	assert.Len(t, decoded[0].Trace, 4)
}

func TestCheckCommand(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"check", filepath.Join("testdata", "scenarios")})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "ok   "+filepath.Join("testdata", "scenarios", "basic-watch.yaml"))
}

func TestCheckScenarioReportsCompileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, writeFile(path, "name: broken\nsteps:\n  - watch: {id: w, expr: 'a +'}\n"))

	result := CheckScenario(path, "")
	assert.False(t, result.OK)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 1")

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"check", path})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRunCommandMissingFile(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", filepath.Join(t.TempDir(), "missing.yaml")})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunnerDescribesFinalState(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: describe
state: {user: {name: ada}}
steps:
  - watch: {id: w, expr: user.name}
`))
	require.NoError(t, err)
	result, err := Runner{Describe: true}.Run(scenario)
	require.NoError(t, err)

	require.Len(t, result.Fields, 1)
	assert.Equal(t, "user.name", result.Fields[0].Path)
	assert.Equal(t, "string", result.Fields[0].Type)
	assert.Equal(t, 1, result.Fields[0].Watchers)

	var out bytes.Buffer
	require.NoError(t, WriteText(&out, result))
	assert.Contains(t, out.String(), "field user.name string watchers=1\n")
}
