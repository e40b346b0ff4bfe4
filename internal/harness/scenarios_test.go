package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios against the
// real orchestrator and pins each trace with its golden file.
//
// Regenerate golden files after an intentional behavior change with:
//
//	go test ./internal/harness -update
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths, "no scenario files found")

	for _, path := range paths {
		name := filepath.Base(path)
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err, "failed to load scenario %s", path)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err, "scenario execution failed")

			assert.True(t, result.Pass, "scenario failed: %v", result.Errors)
			assert.NotEmpty(t, result.Trace, "scenario produced no target operations")
		})
	}
}
