package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"flowkit/internal/orchestrator"
)

const testFlows = `
flows:
  - name: test-flow
    description: smoke
    steps:
      - id: analyze
        prompt: "Analyze this: {{language}}"
  - name: strict
    steps:
      - id: check
        prompt: "anything"
        validation:
          type: contains
          rule: "not-there"
          halt_on_failure: true
`

func writeConfig(t *testing.T) string {
	t.Helper()
	for _, env := range []string{"LLM_PROVIDER", "DATABASE_URL", "FLOWS_FILE", "FLOWS_BUCKET"} {
		t.Setenv(env, "")
	}

	dir := t.TempDir()
	flowsPath := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(flowsPath, []byte(testFlows), 0o644))

	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "log:\n  level: error\nflows:\n  file: " + flowsPath + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"language=go", "expr=a=b", " spaced =x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"language": "go", "expr": "a=b", "spaced": "x"}, vars)

	vars, err = parseVars(nil)
	require.NoError(t, err)
	assert.Nil(t, vars)

	_, err = parseVars([]string{"novalue"})
	assert.Error(t, err)

	_, err = parseVars([]string{"=x"})
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, "run", "test-flow", "--config", cfgPath, "--var", "language=go")
	require.NoError(t, err)
	assert.True(t, gjson.Get(out, "success").Bool())
	assert.Equal(t, "dummy", gjson.Get(out, "target_model").String())
	assert.Equal(t, "ECHO: Analyze this: go", gjson.Get(out, "final_output").String())
	assert.NotEmpty(t, gjson.Get(out, "run_id").String())
}

func TestRunCommandHalted(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, "run", "strict", "--config", cfgPath)
	assert.ErrorIs(t, err, errRunFailed)
	assert.False(t, gjson.Get(out, "success").Bool())
	assert.False(t, gjson.Get(out, "final_output").Exists())
}

func TestRunCommandUnknownFlow(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, "run", "missing", "--config", cfgPath)
	assert.ErrorIs(t, err, orchestrator.ErrFlowNotFound)
	assert.Empty(t, out)
}

func TestFlowsCommand(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, "flows", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gjson.Get(out, "#").Int())
	assert.Equal(t, "test-flow", gjson.Get(out, "0.name").String())
	assert.Equal(t, int64(1), gjson.Get(out, "0.steps").Int())
}

func TestMigrateRequiresDatabase(t *testing.T) {
	cfgPath := writeConfig(t)

	_, err := execute(t, "migrate", "--config", cfgPath)
	assert.ErrorContains(t, err, "db.url")
}

func TestInvalidConfig(t *testing.T) {
	_, err := execute(t, "flows", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
