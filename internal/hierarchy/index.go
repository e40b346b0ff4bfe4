// Package hierarchy flattens the source model's nested location tree into
// the per-run index the creation engine walks.
//
// The index is rebuilt fresh every run from current source data and
// discarded at run end; it is never persisted.
package hierarchy

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/eamsync/internal/bim"
	"github.com/roach88/eamsync/internal/store"
)

// ErrCycle marks a hierarchy whose nodes form a cycle. A cyclic tree is a
// modeling error and a fatal precondition violation: the run must stop
// rather than produce a partial sync.
var ErrCycle = errors.New("cyclic hierarchy")

// Node is one location in the flattened index.
//
// ParentID is empty for top-level locations and for children of skipped
// identity-less nodes; the creation engine parents both at the configured
// root.
type Node struct {
	ID          string
	ParentID    string
	Name        string
	ChildrenIDs []string
}

// Index maps location ids to their flattened hierarchy entries.
type Index struct {
	nodes map[string]*Node
	order []string
}

// Build flattens the nested payload in a single traversal, assigning each
// node's parent from its traversal context.
//
// Nodes without an identity are logged and skipped: absent from the index,
// unreachable as parents, their own children indexed as if top-level. A
// top-level node without an identity is fatal, since nothing beneath it
// could ever be parented. Duplicate ids keep their first occurrence; a
// duplicate that is its own ancestor is a cycle and fatal.
func Build(roots []bim.LocationNode, logger *slog.Logger) (*Index, error) {
	idx := &Index{nodes: make(map[string]*Node)}

	// Ancestor chain of the current walk, for cycle detection.
	onPath := make(map[string]bool)
	var trail []string

	var walk func(n bim.LocationNode, parentID string, top bool) error
	walk = func(n bim.LocationNode, parentID string, top bool) error {
		id := store.Canonical(n.ID)

		if id == "" {
			if top {
				return fmt.Errorf("top-level location %q has no identity", n.Name)
			}
			logger.Warn("skipping location without identity",
				"name", n.Name,
				"parent", parentID,
			)
			// Children are indexed without a parent and will fall back
			// to the configured root.
			for _, child := range n.Children {
				if err := walk(child, "", false); err != nil {
					return err
				}
			}
			return nil
		}

		if onPath[id] {
			cycle := append(append([]string{}, trail...), id)
			return fmt.Errorf("location %s is its own ancestor (%s): %w",
				id, strings.Join(cycle, " → "), ErrCycle)
		}
		if _, dup := idx.nodes[id]; dup {
			logger.Warn("duplicate location id, keeping first occurrence",
				"id", id,
				"name", n.Name,
			)
			return nil
		}

		idx.nodes[id] = &Node{
			ID:       id,
			ParentID: parentID,
			Name:     store.Canonical(n.Name),
		}
		idx.order = append(idx.order, id)
		if parent, ok := idx.nodes[parentID]; ok {
			parent.ChildrenIDs = append(parent.ChildrenIDs, id)
		}

		onPath[id] = true
		trail = append(trail, id)
		for _, child := range n.Children {
			if err := walk(child, id, false); err != nil {
				return err
			}
		}
		trail = trail[:len(trail)-1]
		delete(onPath, id)

		return nil
	}

	for _, root := range roots {
		if err := walk(root, "", true); err != nil {
			return nil, err
		}
	}

	return idx, nil
}

// Get returns the node for id, normalizing the lookup key first.
func (x *Index) Get(id string) (*Node, bool) {
	n, ok := x.nodes[store.Canonical(id)]
	return n, ok
}

// Has reports whether id is indexed.
func (x *Index) Has(id string) bool {
	_, ok := x.nodes[store.Canonical(id)]
	return ok
}

// IDs returns all indexed ids in document order: the order nodes appear in
// the source payload, parents before their children. Walking this order
// keeps runs deterministic.
func (x *Index) IDs() []string {
	out := make([]string, len(x.order))
	copy(out, x.order)
	return out
}

// Len returns the number of indexed nodes.
func (x *Index) Len() int { return len(x.nodes) }
