package engine

import (
	"context"
	"fmt"

	"github.com/roach88/eamsync/internal/eam"
	"github.com/roach88/eamsync/internal/hierarchy"
	"github.com/roach88/eamsync/internal/mapping"
	"github.com/roach88/eamsync/internal/store"
)

// creator is the hierarchy-aware creation engine for one run.
//
// synced memoizes every location known to exist in the target: entries
// replayed from a crashed run's journal plus entries created this run. The
// memo guarantees at most one upsert per node and terminates the parent
// recursion even on a cycle that slipped past index construction.
type creator struct {
	index   *hierarchy.Index
	target  TargetClient
	mapper  *mapping.Mapper
	journal *store.Journal
	run     *run

	rootID        string
	defaultParent string

	synced  map[string]eam.LocationRef // node id -> target ref
	created map[string]bool            // created this run, as opposed to replayed
	parents map[string]string          // node id -> effective parent at create time
}

// newCreator builds a creator seeded from the replayed journal state.
// Locations are upserted with the node id as the target key, so a replayed
// entry's ref is reconstructible without asking the target.
func newCreator(sc SyncContext, index *hierarchy.Index, state *store.State, run *run) *creator {
	rules := sc.Mapper.Rules()
	c := &creator{
		index:         index,
		target:        sc.Target,
		mapper:        sc.Mapper,
		journal:       sc.Journal,
		run:           run,
		rootID:        rules.Root,
		defaultParent: rules.Location.DefaultParentName,
		synced:        make(map[string]eam.LocationRef),
		created:       make(map[string]bool),
		parents:       make(map[string]string),
	}
	for _, edge := range state.Locations.Sorted() {
		c.synced[edge.Child] = eam.LocationRef{ID: edge.Child, Parent: edge.Parent}
		c.parents[edge.Child] = edge.Parent
	}
	return c
}

// syncWithParents ensures the location for id exists in the target,
// creating its ancestors first so a child is never upserted before its
// parent. Returns nil with no error when the id cannot be synced for
// structural reasons (unknown node, placeholder name); those are logged and
// skipped, not failed.
func (c *creator) syncWithParents(ctx context.Context, id string) (*eam.LocationRef, error) {
	id = store.Canonical(id)
	if ref, ok := c.synced[id]; ok {
		return &ref, nil
	}

	node, ok := c.index.Get(id)
	if !ok {
		c.run.logger.Warn("location not in source hierarchy, skipping", "location", id)
		return nil, nil
	}
	if node.Name == c.defaultParent {
		// Placeholder container; its children hang off the root instead.
		c.run.logger.Debug("skipping placeholder location", "location", id)
		return nil, nil
	}

	effectiveParent := c.rootID
	if pid := node.ParentID; pid != "" {
		parent, ok := c.index.Get(pid)
		switch {
		case !ok:
			c.run.logger.Warn("parent missing from source hierarchy, attaching to root",
				"location", id, "parent", pid)
		case parent.Name == c.defaultParent:
			// Flattening rule: the placeholder itself is never materialized.
		default:
			ref, err := c.syncWithParents(ctx, pid)
			if err != nil {
				return nil, err
			}
			if ref != nil {
				effectiveParent = ref.ID
			}
		}
	}

	payload := c.mapper.LocationPayload(node, effectiveParent)
	ref, err := c.target.UpsertLocation(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("sync location %s: %w", id, err)
	}

	edge := store.NewLocationEdge(id, effectiveParent)
	if err := c.journal.Append(store.CreateLocation(edge)); err != nil {
		return nil, &journalError{err}
	}

	c.synced[id] = ref
	c.created[id] = true
	c.parents[id] = effectiveParent
	c.run.report.LocationsCreated++
	c.run.logger.Info("location synced", "location", id, "parent", effectiveParent)
	return &ref, nil
}

// isSynced reports whether id is already in the memo, replayed or created.
func (c *creator) isSynced(id string) bool {
	_, ok := c.synced[store.Canonical(id)]
	return ok
}

// dropIfJustCreated removes a location this run created for an entity that
// turned out not to sync. Locations replayed from a previous run are left
// alone, and so is anything the target refuses to drop because live
// dependents reference it.
func (c *creator) dropIfJustCreated(ctx context.Context, id string) error {
	id = store.Canonical(id)
	if !c.created[id] {
		return nil
	}
	if err := c.target.DeleteLocation(ctx, id); err != nil {
		c.run.logger.Warn("keeping location created for unsynced entity",
			"location", id, "error", err)
		return nil
	}

	edge := store.NewLocationEdge(id, c.parents[id])
	if err := c.journal.Append(store.DeleteLocation(edge)); err != nil {
		return &journalError{err}
	}

	delete(c.synced, id)
	delete(c.created, id)
	delete(c.parents, id)
	c.run.report.LocationsDeleted++
	c.run.logger.Info("removed location created for unsynced entity", "location", id)
	return nil
}
