package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_MissingFileYieldsEmptySnapshot(t *testing.T) {
	s := NewSnapshotStore(filepath.Join(t.TempDir(), "snapshot.json"), testLogger())

	snap, err := s.Load()
	if err != nil {
		t.Fatalf("Load() on missing file failed: %v", err)
	}
	if snap.Locations.Len() != 0 || snap.Assets.Len() != 0 {
		t.Error("snapshot from missing file should be empty")
	}
}

func TestLoad_CorruptFileIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	s := NewSnapshotStore(path, testLogger())
	if _, err := s.Load(); err == nil {
		t.Fatal("expected error for corrupt snapshot, got nil")
	}
}

func TestLoad_RoundTripsCommit(t *testing.T) {
	dir := t.TempDir()
	s := NewSnapshotStore(filepath.Join(dir, "snapshot.json"), testLogger())
	j := NewJournal(filepath.Join(dir, "journal.jsonl"), testLogger())

	state := NewState()
	state.Apply(CreateLocation(NewLocationEdge("L1", "ROOT")))
	state.Apply(CreateAsset(NewAssetLink("g1", "a1")))

	if err := s.Commit(state, j); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	snap, err := s.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !snap.Locations.Has(NewLocationEdge("L1", "ROOT")) {
		t.Error("committed location missing after reload")
	}
	if !snap.Assets.Has(NewAssetLink("g1", "a1")) {
		t.Error("committed asset missing after reload")
	}
}

func TestCommit_MergePreservesUntouchedEntries(t *testing.T) {
	dir := t.TempDir()
	s := NewSnapshotStore(filepath.Join(dir, "snapshot.json"), testLogger())
	j := NewJournal(filepath.Join(dir, "journal.jsonl"), testLogger())

	// First run commits L1 and an asset.
	first := NewState()
	first.Apply(CreateLocation(NewLocationEdge("L1", "ROOT")))
	first.Apply(CreateAsset(NewAssetLink("g1", "a1")))
	if err := s.Commit(first, j); err != nil {
		t.Fatalf("first Commit() failed: %v", err)
	}

	// Second run touches only L2; L1 and the asset must survive.
	second := NewState()
	second.Apply(CreateLocation(NewLocationEdge("L2", "ROOT")))
	if err := s.Commit(second, j); err != nil {
		t.Fatalf("second Commit() failed: %v", err)
	}

	snap, err := s.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	for _, edge := range []LocationEdge{NewLocationEdge("L1", "ROOT"), NewLocationEdge("L2", "ROOT")} {
		if !snap.Locations.Has(edge) {
			t.Errorf("location %v missing after merge", edge)
		}
	}
	if !snap.Assets.Has(NewAssetLink("g1", "a1")) {
		t.Error("untouched asset dropped by merge")
	}
}

func TestCommit_DeleteRemovesPriorEntry(t *testing.T) {
	// Existing snapshot {(L1,Root)}; run journal [create L2, delete L1]
	// must commit exactly {(L2,Root)}.
	dir := t.TempDir()
	s := NewSnapshotStore(filepath.Join(dir, "snapshot.json"), testLogger())
	j := NewJournal(filepath.Join(dir, "journal.jsonl"), testLogger())

	prior := NewState()
	prior.Apply(CreateLocation(NewLocationEdge("L1", "Root")))
	if err := s.Commit(prior, j); err != nil {
		t.Fatalf("seed Commit() failed: %v", err)
	}

	run := NewState()
	run.Apply(CreateLocation(NewLocationEdge("L2", "Root")))
	run.Apply(DeleteLocation(NewLocationEdge("L1", "Root")))
	if err := s.Commit(run, j); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	snap, err := s.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if snap.Locations.Has(NewLocationEdge("L1", "Root")) {
		t.Error("deleted L1 should not survive the merge")
	}
	if !snap.Locations.Has(NewLocationEdge("L2", "Root")) {
		t.Error("created L2 missing from the merge")
	}
	if snap.Locations.Len() != 1 {
		t.Errorf("snapshot has %d locations, want exactly 1", snap.Locations.Len())
	}
}

func TestCommit_ResetsJournal(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "journal.jsonl")
	s := NewSnapshotStore(filepath.Join(dir, "snapshot.json"), testLogger())
	j := NewJournal(journalPath, testLogger())

	if err := j.Append(CreateLocation(NewLocationEdge("L1", "ROOT"))); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	state, err := j.Replay()
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}

	if err := s.Commit(state, j); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if _, err := os.Stat(journalPath); !os.IsNotExist(err) {
		t.Error("journal should be reset after a successful commit")
	}
}

func TestCommit_WritesDeterministicSortedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	s := NewSnapshotStore(path, testLogger())
	j := NewJournal(filepath.Join(dir, "journal.jsonl"), testLogger())

	state := NewState()
	state.Apply(CreateLocation(NewLocationEdge("B", "ROOT")))
	state.Apply(CreateLocation(NewLocationEdge("A", "ROOT")))
	state.Apply(CreateAsset(NewAssetLink("g2", "a2")))
	state.Apply(CreateAsset(NewAssetLink("g1", "a1")))
	if err := s.Commit(state, j); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	var file struct {
		SyncedAssets    [][2]string `json:"syncedAssets"`
		SyncedLocations [][2]string `json:"syncedLocations"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if file.SyncedLocations[0][0] != "A" || file.SyncedLocations[1][0] != "B" {
		t.Errorf("locations not sorted by child: %v", file.SyncedLocations)
	}
	if file.SyncedAssets[0][0] != "g1" || file.SyncedAssets[1][0] != "g2" {
		t.Errorf("assets not sorted by source id: %v", file.SyncedAssets)
	}

	// No temp files may linger after a successful commit.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Errorf("stray temp file after commit: %s", e.Name())
		}
	}
}

func TestMerge_CreateThenDeleteNetsToAbsence(t *testing.T) {
	existing := NewSnapshot()

	run := NewState()
	run.Apply(CreateLocation(NewLocationEdge("L9", "ROOT")))
	run.Apply(DeleteLocation(NewLocationEdge("L9", "ROOT")))

	merged := Merge(existing, run)
	if merged.Locations.Len() != 0 {
		t.Error("create-then-delete within one run must net to absence")
	}
}

func TestMerge_DeleteThenRecreateNetsToPresence(t *testing.T) {
	existing := NewSnapshot()
	existing.Locations.Add(NewLocationEdge("L1", "ROOT"))

	run := NewState()
	run.Apply(DeleteLocation(NewLocationEdge("L1", "ROOT")))
	run.Apply(CreateLocation(NewLocationEdge("L1", "ROOT")))

	merged := Merge(existing, run)
	if !merged.Locations.Has(NewLocationEdge("L1", "ROOT")) {
		t.Error("delete-then-recreate within one run must net to presence")
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	existing := NewSnapshot()
	existing.Locations.Add(NewLocationEdge("L1", "ROOT"))

	run := NewState()
	run.Apply(DeleteLocation(NewLocationEdge("L1", "ROOT")))

	_ = Merge(existing, run)
	if !existing.Locations.Has(NewLocationEdge("L1", "ROOT")) {
		t.Error("Merge must not mutate the existing snapshot")
	}
}
