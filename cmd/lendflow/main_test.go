package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI runs the root command against an isolated settings file and database.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.Writer = &out
	base := []string{"lendflow",
		"--config", filepath.Join(dir, "settings.json"),
		"--db", filepath.Join(dir, "cli.db"),
		"--log-level", "error",
	}
	err := root.Run(context.Background(), append(base, args...))
	return out.String(), err
}

func TestCLI_Version(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestCLI_MigrateAndSweep(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "migrate")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, `"processed": 0`)
}

func TestCLI_Secrets(t *testing.T) {
	dir := t.TempDir()

	_, err := runCLI(t, dir, "secrets", "list")
	assert.ErrorIs(t, err, errVaultDisabled)

	_, err = runCLI(t, dir, "--vault-passphrase", "pw", "secrets", "set", "--value", "sk-1", "crm_token")
	require.NoError(t, err)
	_, err = runCLI(t, dir, "--vault-passphrase", "pw", "secrets", "set", "--value", "acme", "tenant")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "--vault-passphrase", "pw", "secrets", "list")
	require.NoError(t, err)
	assert.Equal(t, []string{"crm_token", "tenant"}, strings.Fields(out))

	_, err = runCLI(t, dir, "--vault-passphrase", "pw", "secrets", "delete", "tenant")
	require.NoError(t, err)
	out, err = runCLI(t, dir, "--vault-passphrase", "pw", "secrets", "list")
	require.NoError(t, err)
	assert.Equal(t, "crm_token\n", out)

	_, err = runCLI(t, dir, "--vault-passphrase", "pw", "secrets", "set", "--value", "x")
	assert.Error(t, err)
}

func TestCLI_ImportWorkflows(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "defs.yaml")
	require.NoError(t, os.WriteFile(file, []byte(workflowsYAML), 0o600))

	out, err := runCLI(t, dir, "workflows", "import", "--file", file)
	require.NoError(t, err)
	lines := strings.Fields(out)
	require.Len(t, lines, 2)
	assert.Equal(t, "term-sheet-alert", lines[0])

	_, err = runCLI(t, dir, "workflows", "import", "--file", file)
	assert.Error(t, err, "existing ids need --replace")

	out, err = runCLI(t, dir, "workflows", "import", "--replace", "--file", file)
	require.NoError(t, err)
	assert.Equal(t, "term-sheet-alert", strings.Fields(out)[0])
}
