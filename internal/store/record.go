package store

import (
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// RecordType identifies the four kinds of journal records.
type RecordType string

const (
	RecordCreateLocation RecordType = "create_location"
	RecordDeleteLocation RecordType = "delete_location"
	RecordCreateAsset    RecordType = "create_asset"
	RecordDeleteAsset    RecordType = "delete_asset"
)

// Record is a single journal entry. Immutable once written; ordering within
// the journal is significant as a log of what happened, but replay folds
// records into sets, so order does not affect the final state.
//
// Location records carry Location/Parent; asset records carry
// SourceID/TargetID. The unused pair is omitted from the JSON line.
type Record struct {
	Type     RecordType `json:"type"`
	Location string     `json:"location,omitempty"`
	Parent   string     `json:"parent,omitempty"`
	SourceID string     `json:"sourceId,omitempty"`
	TargetID string     `json:"targetId,omitempty"`
}

// CreateLocation builds the journal record for a successful location upsert.
func CreateLocation(edge LocationEdge) Record {
	return Record{Type: RecordCreateLocation, Location: edge.Child, Parent: edge.Parent}
}

// DeleteLocation builds the journal record for a successful location delete.
func DeleteLocation(edge LocationEdge) Record {
	return Record{Type: RecordDeleteLocation, Location: edge.Child, Parent: edge.Parent}
}

// CreateAsset builds the journal record for a successful asset upsert.
func CreateAsset(link AssetLink) Record {
	return Record{Type: RecordCreateAsset, SourceID: link.SourceID, TargetID: link.TargetID}
}

// DeleteAsset builds the journal record for a successful asset delete.
func DeleteAsset(link AssetLink) Record {
	return Record{Type: RecordDeleteAsset, SourceID: link.SourceID, TargetID: link.TargetID}
}

// Validate reports whether the record is well-formed: a known type with the
// identity fields that type requires. Replay skips records that fail this;
// Append refuses to write them.
func (r Record) Validate() error {
	switch r.Type {
	case RecordCreateLocation, RecordDeleteLocation:
		if r.Location == "" {
			return fmt.Errorf("%s record missing location", r.Type)
		}
	case RecordCreateAsset, RecordDeleteAsset:
		if r.SourceID == "" {
			return fmt.Errorf("%s record missing sourceId", r.Type)
		}
	default:
		return fmt.Errorf("unknown record type %q", r.Type)
	}
	return nil
}

// Edge returns the location edge carried by a location record.
// The second return is false for asset records.
func (r Record) Edge() (LocationEdge, bool) {
	if r.Type != RecordCreateLocation && r.Type != RecordDeleteLocation {
		return LocationEdge{}, false
	}
	return NewLocationEdge(r.Location, r.Parent), true
}

// Link returns the asset link carried by an asset record.
// The second return is false for location records.
func (r Record) Link() (AssetLink, bool) {
	if r.Type != RecordCreateAsset && r.Type != RecordDeleteAsset {
		return AssetLink{}, false
	}
	return NewAssetLink(r.SourceID, r.TargetID), true
}

// LocationEdge records a synced location and its direct parent at creation
// time. Child uniquely identifies the location; a location appears as the
// child of at most one edge (tree invariant).
type LocationEdge struct {
	Child  string
	Parent string
}

// AssetLink ties a source-model entity to the asset created for it in the
// target system.
type AssetLink struct {
	SourceID string
	TargetID string
}

// NewLocationEdge builds an edge with both identifiers NFC-normalized.
func NewLocationEdge(child, parent string) LocationEdge {
	return LocationEdge{Child: Canonical(child), Parent: Canonical(parent)}
}

// NewAssetLink builds a link with both identifiers NFC-normalized.
func NewAssetLink(sourceID, targetID string) AssetLink {
	return AssetLink{SourceID: Canonical(sourceID), TargetID: Canonical(targetID)}
}

// Canonical normalizes identity material to NFC. Set membership and on-disk
// state must not depend on which normalization form a remote API returned;
// everything that keys on an identifier goes through this first.
func Canonical(s string) string {
	return norm.NFC.String(s)
}

// EdgeSet is a set of location edges with deterministic iteration order.
type EdgeSet struct {
	m map[LocationEdge]struct{}
}

// NewEdgeSet creates a set containing the given edges.
func NewEdgeSet(edges ...LocationEdge) *EdgeSet {
	s := &EdgeSet{m: make(map[LocationEdge]struct{}, len(edges))}
	for _, e := range edges {
		s.Add(e)
	}
	return s
}

// Add inserts the edge. Adding an existing edge is a no-op.
func (s *EdgeSet) Add(e LocationEdge) { s.m[e] = struct{}{} }

// Remove deletes the edge. Removing a missing edge is a no-op.
func (s *EdgeSet) Remove(e LocationEdge) { delete(s.m, e) }

// Has reports whether the exact edge is present.
func (s *EdgeSet) Has(e LocationEdge) bool {
	_, ok := s.m[e]
	return ok
}

// HasChild reports whether any edge has the given child location.
func (s *EdgeSet) HasChild(child string) bool {
	child = Canonical(child)
	for e := range s.m {
		if e.Child == child {
			return true
		}
	}
	return false
}

// Len returns the number of edges.
func (s *EdgeSet) Len() int { return len(s.m) }

// Sorted returns the edges ordered by child, then parent.
func (s *EdgeSet) Sorted() []LocationEdge {
	out := make([]LocationEdge, 0, len(s.m))
	for e := range s.m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Child != out[j].Child {
			return out[i].Child < out[j].Child
		}
		return out[i].Parent < out[j].Parent
	})
	return out
}

// Clone returns an independent copy of the set.
func (s *EdgeSet) Clone() *EdgeSet {
	c := &EdgeSet{m: make(map[LocationEdge]struct{}, len(s.m))}
	for e := range s.m {
		c.m[e] = struct{}{}
	}
	return c
}

// LinkSet is a set of asset links with deterministic iteration order.
type LinkSet struct {
	m map[AssetLink]struct{}
}

// NewLinkSet creates a set containing the given links.
func NewLinkSet(links ...AssetLink) *LinkSet {
	s := &LinkSet{m: make(map[AssetLink]struct{}, len(links))}
	for _, l := range links {
		s.Add(l)
	}
	return s
}

// Add inserts the link. Adding an existing link is a no-op.
func (s *LinkSet) Add(l AssetLink) { s.m[l] = struct{}{} }

// Remove deletes the link. Removing a missing link is a no-op.
func (s *LinkSet) Remove(l AssetLink) { delete(s.m, l) }

// Has reports whether the exact link is present.
func (s *LinkSet) Has(l AssetLink) bool {
	_, ok := s.m[l]
	return ok
}

// HasSource reports whether any link has the given source entity.
func (s *LinkSet) HasSource(sourceID string) bool {
	sourceID = Canonical(sourceID)
	for l := range s.m {
		if l.SourceID == sourceID {
			return true
		}
	}
	return false
}

// Len returns the number of links.
func (s *LinkSet) Len() int { return len(s.m) }

// Sorted returns the links ordered by source id, then target id.
func (s *LinkSet) Sorted() []AssetLink {
	out := make([]AssetLink, 0, len(s.m))
	for l := range s.m {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out
}

// Clone returns an independent copy of the set.
func (s *LinkSet) Clone() *LinkSet {
	c := &LinkSet{m: make(map[AssetLink]struct{}, len(s.m))}
	for l := range s.m {
		c.m[l] = struct{}{}
	}
	return c
}
