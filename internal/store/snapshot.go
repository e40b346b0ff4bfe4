package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Snapshot is the durable cross-run record of everything currently synced:
// every location edge and asset link committed by completed runs and not
// since deleted.
type Snapshot struct {
	Locations *EdgeSet
	Assets    *LinkSet
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Locations: NewEdgeSet(), Assets: NewLinkSet()}
}

// snapshotFile is the on-disk layout: pairs sorted on write so the file is
// byte-identical for identical state.
type snapshotFile struct {
	SyncedAssets    [][2]string `json:"syncedAssets"`
	SyncedLocations [][2]string `json:"syncedLocations"`
}

// SnapshotStore reads and atomically rewrites the snapshot file.
type SnapshotStore struct {
	path   string
	logger *slog.Logger
}

// NewSnapshotStore creates a store backed by the file at path.
func NewSnapshotStore(path string, logger *slog.Logger) *SnapshotStore {
	return &SnapshotStore{path: path, logger: logger}
}

// Path returns the snapshot file path.
func (s *SnapshotStore) Path() string { return s.path }

// Load reads the snapshot. A missing file yields an empty snapshot; a
// present but unreadable or unparsable file is an error, because silently
// discarding last-known-good state would make the next cleanup leak every
// previously synced entity.
func (s *SnapshotStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewSnapshot(), nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("snapshot %s is not valid JSON: %w", s.path, err)
	}

	snap := NewSnapshot()
	for _, pair := range file.SyncedLocations {
		snap.Locations.Add(NewLocationEdge(pair[0], pair[1]))
	}
	for _, pair := range file.SyncedAssets {
		snap.Assets.Add(NewAssetLink(pair[0], pair[1]))
	}
	return snap, nil
}

// Commit merges the run's net effect into the existing snapshot, writes the
// result atomically, then resets the journal.
//
// The merge is (existing − deleted) ∪ created per kind: tombstones from the
// run remove prior entries, net creates add new ones, and entries the run
// never touched survive unchanged.
//
// Write order matters for crash safety: the new snapshot must be durable
// before the journal is removed. A crash before the rename leaves the old
// snapshot and the journal intact; a crash after the rename but before the
// reset leaves a journal whose replay is a no-op against the new snapshot.
func (s *SnapshotStore) Commit(state *State, journal *Journal) error {
	existing, err := s.Load()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	merged := Merge(existing, state)
	if err := s.write(merged); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if err := journal.Reset(); err != nil {
		// The snapshot is already committed. A stale journal replays
		// harmlessly, but flag it so the operator can remove it.
		s.logger.Warn("snapshot committed but journal reset failed",
			"journal", journal.Path(),
			"error", err,
		)
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("snapshot committed",
		"path", s.path,
		"locations", merged.Locations.Len(),
		"assets", merged.Assets.Len(),
	)
	return nil
}

// Merge computes the committed snapshot for a run: existing entries minus
// the run's tombstones, plus the run's net creates.
func Merge(existing *Snapshot, state *State) *Snapshot {
	merged := &Snapshot{
		Locations: existing.Locations.Clone(),
		Assets:    existing.Assets.Clone(),
	}
	for _, edge := range state.DeletedLocations.Sorted() {
		merged.Locations.Remove(edge)
	}
	for _, edge := range state.Locations.Sorted() {
		merged.Locations.Add(edge)
	}
	for _, link := range state.DeletedAssets.Sorted() {
		merged.Assets.Remove(link)
	}
	for _, link := range state.Assets.Sorted() {
		merged.Assets.Add(link)
	}
	return merged
}

// write persists the snapshot via temp-file-then-rename in the snapshot's
// directory, so a crash at any point leaves either the old file or the new
// one, never a partial write.
func (s *SnapshotStore) write(snap *Snapshot) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	file := snapshotFile{
		SyncedAssets:    make([][2]string, 0, snap.Assets.Len()),
		SyncedLocations: make([][2]string, 0, snap.Locations.Len()),
	}
	for _, link := range snap.Assets.Sorted() {
		file.SyncedAssets = append(file.SyncedAssets, [2]string{link.SourceID, link.TargetID})
	}
	for _, edge := range snap.Locations.Sorted() {
		file.SyncedLocations = append(file.SyncedLocations, [2]string{edge.Child, edge.Parent})
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
