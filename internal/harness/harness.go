package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/eamsync/internal/engine"
	"github.com/roach88/eamsync/internal/mapping"
	"github.com/roach88/eamsync/internal/store"
	"github.com/roach88/eamsync/internal/testutil"
)

// Run executes a scenario and returns its result.
//
// Each scenario gets a fresh temporary state directory, an in-memory
// source and target, and fixed run tokens, so two executions of the same
// scenario produce identical traces and reports.
//
// A non-nil error means the scenario could not run at all: a run aborted
// fatally or the setup failed. Assertion failures and step expectation
// mismatches do not error; they mark the result as failed.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "eamsync-scenario-")
	if err != nil {
		return nil, fmt.Errorf("creating scenario state directory: %w", err)
	}
	defer os.RemoveAll(dir)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rules, err := scenario.effectiveRules()
	if err != nil {
		return nil, fmt.Errorf("parsing scenario rules: %w", err)
	}

	source := &testutil.FakeSource{
		Locations: scenario.Source.nodes(),
		Entities:  scenario.Source.entities(),
	}
	target := testutil.NewFakeTarget()
	seedTarget(target, scenario.Target)
	injectFailures(target, scenario.Failures)

	journal := store.NewJournal(filepath.Join(dir, "journal.jsonl"), logger)
	defer journal.Close()
	snapshot := store.NewSnapshotStore(filepath.Join(dir, "snapshot.json"), logger)

	// Snapshot first: committing it resets the journal file.
	if err := seedSnapshot(snapshot, journal, scenario.Snapshot); err != nil {
		return nil, err
	}
	if err := seedJournal(journal, scenario.Journal); err != nil {
		return nil, err
	}

	orch := engine.New(engine.SyncContext{
		Journal:   journal,
		Snapshot:  snapshot,
		Source:    source,
		Target:    target,
		Mapper:    mapping.NewMapper(rules, nil, logger),
		Tokens:    testutil.NewFixedRunTokens(scenario.tokenPrefix()),
		Logger:    logger,
		ProjectID: "scenario-project",
		ModelID:   "scenario-model",
	})

	result := NewResult()
	ctx := context.Background()
	for i, step := range scenario.Steps {
		var report *engine.Report
		switch step.Run {
		case StepSync:
			report, err = orch.FullSync(ctx)
		case StepCleanup:
			report, err = orch.Cleanup(ctx)
		default:
			err = fmt.Errorf("unknown workflow %q", step.Run)
		}
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Run, err)
		}

		result.addReport(step.Run, report)
		if got := len(report.Failures); got != step.ExpectFailures {
			result.AddError(fmt.Sprintf("step %d (%s): %d entity failures, want %d",
				i, step.Run, got, step.ExpectFailures))
		}
	}

	result.Trace = append(result.Trace, target.Ops...)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, target) {
		result.AddError(msg)
	}
	return result, nil
}

// seedTarget places the scenario's pre-existing target state.
func seedTarget(target *testutil.FakeTarget, doc TargetDoc) {
	for _, loc := range doc.Locations {
		target.SeedLocation(loc.ID, loc.Parent)
	}
	for _, asset := range doc.Assets {
		target.SeedAsset(asset.ID, asset.Location)
	}
}

// injectFailures arms the target's one-shot error injection.
func injectFailures(target *testutil.FakeTarget, failures []FailureDoc) {
	for _, f := range failures {
		msg := f.Message
		if msg == "" {
			msg = "injected failure"
		}
		err := errors.New(msg)
		switch f.Op {
		case OpUpsertLocation:
			if target.FailUpsertLocation == nil {
				target.FailUpsertLocation = make(map[string]error)
			}
			target.FailUpsertLocation[f.ID] = err
		case OpDeleteLocation:
			if target.FailDeleteLocation == nil {
				target.FailDeleteLocation = make(map[string]error)
			}
			target.FailDeleteLocation[f.ID] = err
		case OpUpsertAsset:
			if target.FailUpsertAsset == nil {
				target.FailUpsertAsset = make(map[string]error)
			}
			target.FailUpsertAsset[f.ID] = err
		case OpDeleteAsset:
			if target.FailDeleteAsset == nil {
				target.FailDeleteAsset = make(map[string]error)
			}
			target.FailDeleteAsset[f.ID] = err
		}
	}
}

// seedSnapshot commits the scenario's committed state. The journal is
// untouched at this point, so the commit's reset is a no-op.
func seedSnapshot(snapshot *store.SnapshotStore, journal *store.Journal, doc SnapshotDoc) error {
	if len(doc.Locations) == 0 && len(doc.Assets) == 0 {
		return nil
	}
	state := store.NewState()
	for _, loc := range doc.Locations {
		state.Locations.Add(store.NewLocationEdge(loc.ID, loc.Parent))
	}
	for _, asset := range doc.Assets {
		state.Assets.Add(store.NewAssetLink(asset.Source, asset.Target))
	}
	if err := snapshot.Commit(state, journal); err != nil {
		return fmt.Errorf("seeding snapshot: %w", err)
	}
	return nil
}

// seedJournal appends the scenario's uncommitted records.
func seedJournal(journal *store.Journal, docs []JournalDoc) error {
	for i, doc := range docs {
		rec, err := doc.record()
		if err != nil {
			return fmt.Errorf("journal[%d]: %w", i, err)
		}
		if err := journal.Append(rec); err != nil {
			return fmt.Errorf("seeding journal record %d: %w", i, err)
		}
	}
	return nil
}
