package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clitest "github.com/nexgen-logistics/shipmerge/internal/cli/testutil"
	"github.com/nexgen-logistics/shipmerge/internal/dataset"
)

func TestFeaturesCommand_Stdout(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	mergeProject(t, dir)

	stdout, _, err := execute(t, dir, NewFeaturesCommand())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4, "header plus three complete rows")
	assert.Equal(t, "Order_ID,"+strings.Join(dataset.FeatureColumns, ",")+",Is_Delayed", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "ORD000001,"))
	assert.True(t, strings.HasSuffix(lines[1], ",1"))
}

func TestFeaturesCommand_File(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	mergeProject(t, dir)

	stdout, _, err := execute(t, dir, NewFeaturesCommand(), "--file", "out/features.csv")
	require.NoError(t, err)
	assert.Contains(t, stdout, "- **Rows**: 3")
	assert.Contains(t, stdout, "- **Delayed**: 2")
	assert.Contains(t, stdout, "- **Dropped**: 1")

	data, err := os.ReadFile(filepath.Join(dir, "out", "features.csv"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 4)
}

func TestFeaturesCommand_JSON(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	mergeProject(t, dir)
	jsonOutput(t)

	stdout, _, err := execute(t, dir, NewFeaturesCommand(), "--priority", "Express")
	require.NoError(t, err)

	var fs dataset.FeatureSet
	decodeJSON(t, stdout, &fs)
	assert.Equal(t, dataset.FeatureColumns, fs.Columns)
	require.Len(t, fs.Rows, 2)
	assert.Equal(t, 2, fs.DelayedCount())
}
