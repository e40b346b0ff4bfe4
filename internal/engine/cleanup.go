package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/eamsync/internal/eam"
	"github.com/roach88/eamsync/internal/store"
)

// deleteAttempts bounds the delete-cascade-retry loop per location. A
// refusal can legitimately happen twice in a row (live children, then
// referencing assets); more than that means the target keeps growing
// dependents under us.
const deleteAttempts = 3

// cleaner is the deletion engine for one run. It consumes the merged
// snapshot + journal state and removes everything recorded there from the
// target, assets first, then locations children-before-parents.
//
// The recorded edges only cover what this tool created. When the target
// refuses a delete because of dependents it knows about and we do not, the
// refusal is the signal to fetch the live dependents and widen the scope.
type cleaner struct {
	target  TargetClient
	journal *store.Journal
	run     *run

	rootID string

	nodes      map[string]bool
	childrenOf map[string][]string
	parentOf   map[string]string
	assets     []store.AssetLink
	sourceOf   map[string]string // target asset id -> source entity id
	deleted    map[string]bool
}

func newCleaner(sc SyncContext, merged *store.Snapshot, run *run) *cleaner {
	c := &cleaner{
		target:     sc.Target,
		journal:    sc.Journal,
		run:        run,
		rootID:     store.Canonical(sc.Mapper.Rules().Root),
		nodes:      make(map[string]bool),
		childrenOf: make(map[string][]string),
		parentOf:   make(map[string]string),
		sourceOf:   make(map[string]string),
		deleted:    make(map[string]bool),
	}
	// Edges arrive sorted by child, so each children list is already in
	// lexicographic order.
	for _, edge := range merged.Locations.Sorted() {
		c.nodes[edge.Child] = true
		c.nodes[edge.Parent] = true
		c.parentOf[edge.Child] = edge.Parent
		c.childrenOf[edge.Parent] = append(c.childrenOf[edge.Parent], edge.Child)
	}
	c.assets = merged.Assets.Sorted()
	for _, link := range c.assets {
		c.sourceOf[link.TargetID] = link.SourceID
	}
	return c
}

// roots picks the traversal roots. The configured root wins when it
// appears in the recorded graph; otherwise every node that was only ever a
// parent becomes a root, which tolerates partial or legacy data spanning
// disconnected trees.
func (c *cleaner) roots() []string {
	if c.nodes[c.rootID] {
		return []string{c.rootID}
	}
	var roots []string
	for n := range c.nodes {
		if _, isChild := c.parentOf[n]; !isChild {
			roots = append(roots, n)
		}
	}
	sort.Strings(roots)
	if len(roots) > 1 {
		c.run.logger.Warn("recorded locations span disconnected trees", "roots", roots)
	}
	return roots
}

// order returns recorded locations in depth-first post-order: every node
// after all of its descendants, children visited lexicographically. The
// configured root is excluded; it is never deleted.
func (c *cleaner) order() []string {
	visited := make(map[string]bool)
	var out []string

	var dfs func(n string)
	dfs = func(n string) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, child := range c.childrenOf[n] {
			dfs(child)
		}
		if n != c.rootID {
			out = append(out, n)
		}
	}
	for _, r := range c.roots() {
		dfs(r)
	}
	return out
}

// deleteAssets removes every recorded asset. Assets reference locations,
// never each other, so order among them does not matter. A failed delete
// keeps the asset recorded for a future run.
func (c *cleaner) deleteAssets(ctx context.Context) error {
	for _, link := range c.assets {
		if err := c.target.DeleteAsset(ctx, link.TargetID); err != nil {
			c.run.fail("asset", link.SourceID, link.TargetID, err)
			continue
		}
		if err := c.journal.Append(store.DeleteAsset(link)); err != nil {
			return &journalError{err}
		}
		c.run.report.AssetsDeleted++
		c.run.logger.Info("asset deleted", "source_id", link.SourceID, "asset", link.TargetID)
	}
	return nil
}

// deleteLocations walks the post-order sequence. Only journal failures
// abort the walk.
func (c *cleaner) deleteLocations(ctx context.Context) error {
	for _, id := range c.order() {
		if err := c.deleteLocation(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// deleteLocation removes one location, cascading into live dependents when
// the target refuses. Returns an error only when the journal cannot be
// written; target-side failures are recorded per item and the location
// stays synced for a future run.
func (c *cleaner) deleteLocation(ctx context.Context, id string) error {
	id = store.Canonical(id)
	if c.deleted[id] || id == c.rootID {
		return nil
	}

	for attempt := 0; attempt < deleteAttempts; attempt++ {
		err := c.target.DeleteLocation(ctx, id)
		if err == nil {
			return c.recordLocationDeleted(id)
		}

		conflict, ok := eam.AsConflict(err)
		if !ok {
			c.run.fail("location", id, "", err)
			return nil
		}
		switch conflict.Kind {
		case eam.ConflictHasChildren:
			ok, jerr := c.cascadeChildren(ctx, id)
			if jerr != nil {
				return jerr
			}
			if !ok {
				return nil
			}
		case eam.ConflictAssetReference:
			ok, jerr := c.cascadeAssets(ctx, id)
			if jerr != nil {
				return jerr
			}
			if !ok {
				return nil
			}
		default:
			c.run.fail("location", id, "", err)
			return nil
		}
	}

	c.run.fail("location", id, "", fmt.Errorf("delete still refused after cascading dependents"))
	return nil
}

// cascadeChildren deletes the target's live children of id, recorded or
// not, so the parent's retry can succeed. The bool is false when the
// cascade could not run; the error is a journal failure.
func (c *cleaner) cascadeChildren(ctx context.Context, id string) (bool, error) {
	children, err := c.target.ListChildren(ctx, id)
	if err != nil {
		c.run.fail("location", id, "", fmt.Errorf("listing live children: %w", err))
		return false, nil
	}
	c.run.logger.Info("cascading into live children", "location", id, "children", len(children))
	for _, child := range children {
		if err := c.deleteLocation(ctx, child.ID); err != nil {
			return false, err
		}
	}
	return true, nil
}

// cascadeAssets deletes the target's live assets still referencing id.
// Assets we have a record for are journaled; out-of-band assets have
// nothing recorded to remove.
func (c *cleaner) cascadeAssets(ctx context.Context, id string) (bool, error) {
	assets, err := c.target.ListAssetsAt(ctx, id)
	if err != nil {
		c.run.fail("location", id, "", fmt.Errorf("listing live assets: %w", err))
		return false, nil
	}
	c.run.logger.Info("cascading into live assets", "location", id, "assets", len(assets))
	for _, asset := range assets {
		if err := c.target.DeleteAsset(ctx, asset.ID); err != nil {
			c.run.fail("asset", c.sourceOf[asset.ID], asset.ID, err)
			continue
		}
		if src, recorded := c.sourceOf[asset.ID]; recorded {
			if err := c.journal.Append(store.DeleteAsset(store.NewAssetLink(src, asset.ID))); err != nil {
				return false, &journalError{err}
			}
		}
		c.run.report.AssetsDeleted++
		c.run.logger.Info("asset deleted", "asset", asset.ID, "location", id)
	}
	return true, nil
}

// recordLocationDeleted journals a successful location delete. Locations
// discovered through the cascade have no recorded edge, so there is
// nothing to journal for them.
func (c *cleaner) recordLocationDeleted(id string) error {
	c.deleted[id] = true
	c.run.report.LocationsDeleted++
	c.run.logger.Info("location deleted", "location", id)

	parent, recorded := c.parentOf[id]
	if !recorded {
		return nil
	}
	if err := c.journal.Append(store.DeleteLocation(store.NewLocationEdge(id, parent))); err != nil {
		return &journalError{err}
	}
	return nil
}
