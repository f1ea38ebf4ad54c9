package toolcall

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeScript drops a tiny shell script standing in for the "sandboxed
// evaluator" of spec §4.4: it answers "describe" with one tool's schema
// and "call lookup_order" with a fixed result list.
func writeFakeScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.sh")
	script := `#!/bin/sh
case "$1" in
  describe)
    echo '[{"name":"lookup_order","description":"look up an order","args":[{"name":"order_id","type":"string"}],"required":["order_id"]}]'
    ;;
  call)
    cat >/dev/null
    echo '{"status":"success","result":[{"bot":"found it"},{"arg":"status","value":"shipped"}],"stdout":"","stderr":""}'
    ;;
esac
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestScriptExecutor_Descriptors(t *testing.T) {
	exec := NewScriptExecutor(ScriptConfig{
		Interpreter:      "sh",
		Path:             writeFakeScript(t),
		MaxExecutionTime: 5 * time.Second,
	})

	descs, err := exec.Descriptors(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "lookup_order", descs[0].Name)
	assert.Equal(t, []string{"order_id"}, descs[0].Required)
}

func TestScriptExecutor_ExecuteFunction(t *testing.T) {
	exec := NewScriptExecutor(ScriptConfig{
		Interpreter:      "sh",
		Path:             writeFakeScript(t),
		MaxExecutionTime: 5 * time.Second,
	})

	res, err := exec.ExecuteFunction(context.Background(), "lookup_order", map[string]any{"order_id": "42"})
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	require.Len(t, res.Result, 2)
	assert.Equal(t, "found it", res.Result[0]["bot"])
}

func TestScriptExecutor_DefaultsApplied(t *testing.T) {
	exec := NewScriptExecutor(ScriptConfig{Path: "/tmp/whatever.py"})
	assert.Equal(t, "python3", exec.cfg.Interpreter)
	assert.Equal(t, "./", exec.cfg.WorkingDirectory)
	assert.Equal(t, 30*time.Second, exec.cfg.MaxExecutionTime)
}
