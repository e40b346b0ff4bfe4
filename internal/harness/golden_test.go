package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceSnapshotJSON(t *testing.T) {
	snapshot := TraceSnapshot{
		Scenario: "format_check",
		Trace:    []string{"upsert_location site-a", "upsert_asset pump-1"},
		Reports: []StepReport{
			{
				Workflow:         "sync",
				RunToken:         "format_check-001",
				LocationsCreated: 1,
				AssetsCreated:    1,
			},
		},
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	require.NoError(t, err)

	want := `{
  "scenario": "format_check",
  "trace": [
    "upsert_location site-a",
    "upsert_asset pump-1"
  ],
  "reports": [
    {
      "workflow": "sync",
      "runToken": "format_check-001",
      "locationsCreated": 1,
      "locationsDeleted": 0,
      "assetsCreated": 1,
      "assetsDeleted": 0,
      "assetsSkipped": 0
    }
  ]
}`
	assert.Equal(t, want, string(data))
}

func TestTraceSnapshotJSON_FailuresListed(t *testing.T) {
	snapshot := TraceSnapshot{
		Scenario: "with_failures",
		Trace:    []string{},
		Reports: []StepReport{
			{
				Workflow: "sync",
				RunToken: "with_failures-001",
				Failures: []string{"asset pump-1: store offline"},
			},
		},
	}

	data, err := json.Marshal(snapshot)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"failures":["asset pump-1: store offline"]`)
}

func TestTraceSnapshotJSON_CleanReportOmitsFailures(t *testing.T) {
	snapshot := TraceSnapshot{
		Scenario: "clean",
		Trace:    []string{},
		Reports:  []StepReport{{Workflow: "sync", RunToken: "clean-001"}},
	}

	data, err := json.Marshal(snapshot)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "failures")
}

func TestTraceSnapshotDeterminism(t *testing.T) {
	scenario := &Scenario{
		Name:        "snapshot_determinism",
		Description: "identical runs marshal to identical bytes",
		Source: SourceDoc{
			Locations: []LocationDoc{{ID: "site-a", Name: "Site A"}},
			Entities:  []EntityDoc{{ID: "pump-1", Name: "Pump 1", Location: "site-a"}},
		},
		Steps: []Step{{Run: StepSync}},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Op: OpUpsertAsset},
		},
	}

	marshal := func() []byte {
		result, err := Run(scenario)
		require.NoError(t, err)
		require.True(t, result.Pass, "errors: %v", result.Errors)

		data, err := json.MarshalIndent(TraceSnapshot{
			Scenario: scenario.Name,
			Trace:    result.Trace,
			Reports:  result.Reports,
		}, "", "  ")
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, marshal(), marshal())
}
