// Package engine reconciles the source hierarchy into the target
// asset-management system.
//
// ARCHITECTURE:
//
// Journal-first recovery:
// Every run replays the journal before touching the target. The folded
// journal state seeds the creation memo and widens the cleanup scope, so a
// crashed run resumes exactly where it stopped. The journal is the only
// record of what this tool did; the engine never re-queries the target to
// reconstruct its own history.
//
// Creation flow:
// 1. Pull the nested location payload from the source and flatten it.
// 2. Walk every node; syncWithParents recurses to the parent first, so a
//    location is never upserted before its parent exists in the target.
// 3. Each successful upsert is journaled before the next operation starts.
// 4. Entities are placed as assets at their synced locations.
// 5. Assigned target identifiers are written back to the source model.
// 6. The journal is merged into the snapshot and reset.
//
// Cleanup flow:
// The merged snapshot + journal state yields a parent/child graph. Assets
// go first, then locations in depth-first post-order, children before
// parents. A delete the target refuses because of live dependents it knows
// about and we do not triggers a cascade: fetch the live dependents, remove
// them, retry.
//
// The engine is single-writer: one run at a time per journal and snapshot
// pair, no locking. Per-entity failures are logged and reported,
// never fatal; journal persistence failures and malformed hierarchies abort
// the run.
package engine
