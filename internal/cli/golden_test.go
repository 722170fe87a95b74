package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// To regenerate golden files run: go test ./internal/cli -update
func TestScenarioTracesMatchGolden(t *testing.T) {
	files, err := FindScenarioFiles(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Runner{}.Run(scenario)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, WriteText(&buf, result))
			g.Assert(t, name, buf.Bytes())
		})
	}
}

func TestRunCommandMatchesGolden(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", filepath.Join("testdata", "scenarios", "collections.yaml")})
	require.NoError(t, cmd.Execute())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "collections", out.Bytes())
}
