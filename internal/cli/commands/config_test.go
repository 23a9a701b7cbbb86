package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clitest "github.com/nexgen-logistics/shipmerge/internal/cli/testutil"
)

func TestConfigCommand(t *testing.T) {
	dir := clitest.SetupTestProject(t)

	stdout, _, err := execute(t, dir, NewConfigCommand())
	require.NoError(t, err)
	assert.Contains(t, stdout, "# Configuration")
	assert.Contains(t, stdout, "- **Config file**: "+filepath.Join(dir, "shipmerge.yaml"))
	assert.Contains(t, stdout, "| backend | memory |")
	assert.Contains(t, stdout, "| log_level | error |")
	assert.NotContains(t, stdout, "publish.")
}

func TestConfigCommand_YAML(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	t.Setenv("SHIPMERGE_BACKEND", "duckdb")

	stdout, _, err := execute(t, dir, NewConfigCommand(), "--yaml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "backend: duckdb")
	assert.Contains(t, stdout, "serve:\n  port: 8501")
}

func TestConfigCommand_MasksPassword(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	f, err := os.OpenFile(filepath.Join(dir, "shipmerge.yaml"), os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("publish:\n  host: db.internal\n  database: logistics\n  user: shipmerge\n  password: ${SHIPMERGE_TEST_PW}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	t.Setenv("SHIPMERGE_TEST_PW", "hunter2")

	jsonOutput(t)
	stdout, _, err := execute(t, dir, NewConfigCommand())
	require.NoError(t, err)
	assert.NotContains(t, stdout, "hunter2")

	var out struct {
		Publish map[string]any `json:"publish"`
	}
	decodeJSON(t, stdout, &out)
	assert.Equal(t, maskedPassword, out.Publish["password"])
	assert.Equal(t, "postgres", out.Publish["type"])
	assert.Equal(t, "public.merged_master_dataset", out.Publish["table"])
}
