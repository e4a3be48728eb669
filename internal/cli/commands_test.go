package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and captures both streams.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const invoicesJSON = `[
  {"id": "inv-1", "name": "Coffee", "userIdentifier": "u-1", "merchantReference": "m-1"},
  {"id": "inv-2", "name": "Fuel", "userIdentifier": "u-2", "merchantReference": "m-1"}
]`

// seedInvoices imports two invoices into a fresh database and returns its
// path.
func seedInvoices(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "vault.db")
	file := writeFile(t, dir, "invoices.json", invoicesJSON)

	out, _, err := execute(t, "--db", db, "import", "invoices", file)
	require.NoError(t, err)
	assert.Equal(t, "imported 2 invoices (2 remaining)\n", out)
	return db
}

func TestImportAndDump(t *testing.T) {
	db := seedInvoices(t)

	out, _, err := execute(t, "--db", db, "dump", "invoices")
	require.NoError(t, err)
	assert.Equal(t,
		`{"id":"inv-1","merchantReference":"m-1","name":"Coffee","userIdentifier":"u-1"}`+"\n"+
			`{"id":"inv-2","merchantReference":"m-1","name":"Fuel","userIdentifier":"u-2"}`+"\n",
		out)
}

func TestDumpWhere(t *testing.T) {
	db := seedInvoices(t)

	out, _, err := execute(t, "--db", db, "dump", "invoices", "--where", `userIdentifier == "u-2"`)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"inv-2","merchantReference":"m-1","name":"Fuel","userIdentifier":"u-2"}`+"\n", out)
}

func TestDumpIndex(t *testing.T) {
	db := seedInvoices(t)

	out, _, err := execute(t, "--db", db, "dump", "invoices", "--index", "userIdentifier=u-1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"inv-1","merchantReference":"m-1","name":"Coffee","userIdentifier":"u-1"}`+"\n", out)

	_, _, err = execute(t, "--db", db, "dump", "invoices", "--index", "name=Coffee")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "--db", db, "dump", "invoices", "--index", "userIdentifier")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field=value")
}

func TestDumpJSON(t *testing.T) {
	db := seedInvoices(t)

	out, _, err := execute(t, "--db", db, "--format", "json", "dump", "invoices")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "inv-1", resp.Data[0]["id"])
}

func TestDumpErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "vault.db")

	_, _, err := execute(t, "--db", db, "dump", "receipts")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "--db", db, "dump", "shared", "--where", "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only apply to entity tables")

	_, _, err = execute(t, "--db", db, "dump", "scans", "--where", "status ==")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTables(t *testing.T) {
	db := seedInvoices(t)

	out, _, err := execute(t, "--db", db, "--format", "json", "tables")
	require.NoError(t, err)

	var resp struct {
		Data []TableInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	rows := make(map[string]int)
	for _, info := range resp.Data {
		rows[info.Name] = info.Rows
	}
	assert.Equal(t, 2, rows["invoices"])
	assert.Equal(t, 0, rows["scans"])
	assert.Contains(t, rows, "shared")

	out, _, err = execute(t, "--db", db, "tables")
	require.NoError(t, err)
	assert.Contains(t, out, "TABLE")
	assert.Contains(t, out, "key-value")
}

func TestRemoveAndClear(t *testing.T) {
	db := seedInvoices(t)

	out, _, err := execute(t, "--db", db, "remove", "invoices", "inv-1", "ghost")
	require.NoError(t, err)
	assert.Equal(t, "removed 1 invoices (1 remaining)\n", out)

	out, _, err = execute(t, "--db", db, "clear", "invoices")
	require.NoError(t, err)
	assert.Equal(t, "cleared 1 invoices (0 remaining)\n", out)

	out, _, err = execute(t, "--db", db, "dump", "invoices")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestImportErrors(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "vault.db")

	_, _, err := execute(t, "--db", db, "import", "shared", writeFile(t, dir, "a.json", "[]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not hold entities")

	_, _, err = execute(t, "--db", db, "import", "scans", writeFile(t, dir, "b.json", `[{"name":"x"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no string id")

	_, _, err = execute(t, "--db", db, "import", "scans", writeFile(t, dir, "c.json", `{"id":"s-1"}`))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "--db", db, "import", "scans", filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPrefs(t *testing.T) {
	db := filepath.Join(t.TempDir(), "vault.db")

	out, _, err := execute(t, "--db", db, "prefs", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "theme: system\n")
	assert.Contains(t, out, "gradient: #06b6d4 -> #8b5cf6 -> #ec4899\n")

	out, _, err = execute(t, "--db", db, "prefs", "set", "theme", "dark")
	require.NoError(t, err)
	assert.Contains(t, out, "theme: dark\n")

	out, _, err = execute(t, "--db", db, "prefs", "set", "tertiaryColor", "")
	require.NoError(t, err)
	assert.Contains(t, out, "gradient: #06b6d4 -> #ec4899\n")

	out, _, err = execute(t, "--db", db, "dump", "shared")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "persist:account-preferences\t"), out)
	assert.Contains(t, out, `"theme":"dark"`)
	assert.Contains(t, out, `"tertiaryColor":null`)

	out, _, err = execute(t, "--db", db, "--format", "json", "prefs", "reset")
	require.NoError(t, err)
	var resp struct {
		Data PrefsView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "system", string(resp.Data.Preferences.Theme))
	assert.Equal(t, "persist:account-preferences", resp.Data.StorageKey)
	assert.Equal(t, "#8b5cf6", resp.Data.Gradient.Via)

	_, _, err = execute(t, "--db", db, "prefs", "set", "theme", "neon")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "--db", db, "prefs", "set", "fontSize", "12")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown preference")
}

func TestScenarioCommand(t *testing.T) {
	out, _, err := execute(t, "scenario",
		"--golden-dir", filepath.Join("..", "harness", "testdata", "golden"),
		filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "\u2713 reload_round_trip")
	assert.Contains(t, out, "All scenarios passed")
}

func TestScenarioCommandUpdate(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "scenarios", "diff_sync.yaml"))
	require.NoError(t, err)
	dir := t.TempDir()
	file := writeFile(t, dir, "diff_sync.yaml", string(src))

	out, _, err := execute(t, "scenario", "--update", file)
	require.NoError(t, err, out)
	assert.Contains(t, out, "golden updated")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "diff_sync.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "golden", "diff_sync.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(golden))

	_, _, err = execute(t, "scenario", file)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "diff_sync.golden"), []byte("{}"), 0o644))
	out, _, err = execute(t, "scenario", file)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestScenarioCommandFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", `
name: bad
description: expects the wrong entities
table: scans
flow:
  - action: UpsertEntity
    args:
      entity: {id: s-1}
assertions:
  - type: final_state
    entities: [s-2]
`)

	out, _, err := execute(t, "--format", "json", "scenario", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string          `json:"status"`
		Data   ScenarioSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	assert.False(t, resp.Data.Scenarios[0].Pass)
}

func TestScenarioCommandMissingPath(t *testing.T) {
	_, _, err := execute(t, "scenario", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "from-config.db")
	cfg := writeFile(t, dir, "config.yaml", "database:\n  path: "+db+"\nmetrics:\n  enabled: true\n")
	file := writeFile(t, dir, "scans.json", `[{"id":"s-1","status":"ready"}]`)

	_, stderr, err := execute(t, "--config", cfg, "-v", "import", "scans", file)
	require.NoError(t, err)
	assert.Contains(t, stderr, "receiptvault_store_actions_total")

	_, err = os.Stat(db)
	require.NoError(t, err)

	bad := writeFile(t, dir, "bad.yaml", "logging:\n  level: loud\n")
	_, _, err = execute(t, "--config", bad, "tables")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
