// Package store provides the durable state layer for eamsync runs: the
// append-only synchronization journal and the last-known-good snapshot.
//
// The two files play different roles:
//
//   - Journal: one JSON record per line, appended the moment an operation
//     succeeds against the target system. It holds only the current run's
//     deltas and is the sole source of truth for "what happened this run".
//     A crashed run leaves the journal behind; the next run replays it
//     before doing any new work.
//
//   - Snapshot: a single JSON document holding the merged set of everything
//     successfully committed across all completed runs. It is read once at
//     run start and rewritten atomically (temp file, then rename) at commit.
//
// # Replay Semantics
//
// Replay folds records in order into set operations: a create adds to the
// run's live set, a delete removes from it. Deletes are additionally kept
// as tombstones so that commit can subtract them from the prior snapshot.
// Folding is idempotent: replaying the same journal twice produces the same
// sets as replaying it once.
//
// Replay never fails on record content. A torn final line from a crash
// mid-write, or any otherwise unparsable line, is skipped with a warning.
// Only I/O errors abort replay.
//
// # Commit Semantics
//
// Commit computes merged = (existing − deleted) ∪ created per record kind,
// writes the merged snapshot atomically, then resets the journal. A crash
// before the rename leaves the old snapshot intact; a crash between rename
// and reset leaves a stale journal whose replay onto the new snapshot is a
// no-op by set algebra.
//
// # Identity
//
// All identifiers and names are normalized to Unicode NFC before they are
// used as set members or written to disk. The two remote systems do not
// agree on normalization forms, and set membership must not depend on the
// byte encoding a particular API returned.
package store
