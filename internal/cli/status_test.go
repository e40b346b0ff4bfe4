package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eamsync/internal/store"
)

func writeStateConfig(t *testing.T, dir string) string {
	t.Helper()
	cfgPath := filepath.Join(dir, "eamsync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("stateDir: %s\n", dir)), 0o644))
	return cfgPath
}

func TestStatusCommand_EmptyState(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeStateConfig(t, dir)

	buf := &strings.Builder{}
	cmd := NewStatusCommand(&RootOptions{Format: "text", ConfigFile: cfgPath})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "snapshot: 0 locations, 0 assets")
	assert.Contains(t, out, "journal:  empty, state is committed")
	assert.Contains(t, out, "taxonomy: cache empty")
}

func TestStatusCommand_PendingJournal(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeStateConfig(t, dir)

	// Leave uncommitted records behind, as a crashed run would.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	journal := store.NewJournal(filepath.Join(dir, "journal.jsonl"), logger)
	require.NoError(t, journal.Append(store.CreateLocation(store.NewLocationEdge("site-a", "BUILDINGS"))))
	require.NoError(t, journal.Append(store.CreateAsset(store.NewAssetLink("pump-1", "pump-1"))))
	require.NoError(t, journal.Close())

	buf := &strings.Builder{}
	cmd := NewStatusCommand(&RootOptions{Format: "text", ConfigFile: cfgPath})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "journal:  2 pending records (1 locations, 1 assets)")
}

func TestStatusCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeStateConfig(t, dir)

	buf := &strings.Builder{}
	cmd := NewStatusCommand(&RootOptions{Format: "json", ConfigFile: cfgPath})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(0), data["snapshotLocations"])
	assert.Equal(t, float64(0), data["journalRecords"])

	tax, ok := data["taxonomy"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(0), tax["classes"])
}
