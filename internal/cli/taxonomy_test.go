package cli

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eamsync/internal/taxonomy"
)

func TestTaxonomyPullCommand_EndToEnd(t *testing.T) {
	bsdd := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Dictionary/v1/Classes", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"classes": [
				{"code": "Pmp", "name": "Pump"},
				{"code": "Vlv", "name": "Valve"}
			],
			"classesCount": 2,
			"classesTotalCount": 2
		}`)
	}))
	defer bsdd.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "eamsync.yaml")
	cfg := fmt.Sprintf("stateDir: %s\ntaxonomy:\n  url: %s\n", dir, bsdd.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	buf := &strings.Builder{}
	cmd := NewTaxonomyCommand(&RootOptions{Format: "text", ConfigFile: cfgPath})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"pull", "--dictionary", "https://identifier.buildingsmart.org/uri/test/test/1.0"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "✓ pulled 2 classes")

	cache := filepath.Join(dir, "taxonomy.db")
	taxStore, err := taxonomy.Open(cache)
	require.NoError(t, err)
	defer taxStore.Close()

	count, err := taxStore.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	name, ok := taxStore.ClassName("Pmp")
	assert.True(t, ok)
	assert.Equal(t, "Pump", name)
}

func TestTaxonomyPullCommand_NoDictionaryConfigured(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "eamsync.yaml")
	rulesPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte("root: BUILDINGS\nsite: MAIN\norg: ACME\n"), 0o644))
	cfg := fmt.Sprintf("stateDir: %s\nrules: %s\n", dir, rulesPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	buf := &strings.Builder{}
	cmd := NewTaxonomyCommand(&RootOptions{Format: "text", ConfigFile: cfgPath})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"pull"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no dictionary configured")
}
