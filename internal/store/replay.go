package store

// State is the folded, in-memory view of one run's journal.
//
// Locations and Assets hold the run's net creates: everything created this
// run and not subsequently deleted. DeletedLocations and DeletedAssets hold
// the net deletes as tombstones so commit can subtract them from the prior
// snapshot. A create followed by a delete of the same key within one run
// therefore nets to absence, and a delete followed by a re-create nets to
// presence.
type State struct {
	Locations        *EdgeSet
	Assets           *LinkSet
	DeletedLocations *EdgeSet
	DeletedAssets    *LinkSet
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Locations:        NewEdgeSet(),
		Assets:           NewLinkSet(),
		DeletedLocations: NewEdgeSet(),
		DeletedAssets:    NewLinkSet(),
	}
}

// Apply folds one record into the state. Creates add to the live set and
// clear any tombstone; deletes remove from the live set and add a tombstone.
// Applying the same record twice is idempotent.
//
// Records that fail Validate are the caller's responsibility to filter;
// Apply assumes well-formed input.
func (s *State) Apply(rec Record) {
	switch rec.Type {
	case RecordCreateLocation:
		edge, _ := rec.Edge()
		s.Locations.Add(edge)
		s.DeletedLocations.Remove(edge)
	case RecordDeleteLocation:
		edge, _ := rec.Edge()
		s.Locations.Remove(edge)
		s.DeletedLocations.Add(edge)
	case RecordCreateAsset:
		link, _ := rec.Link()
		s.Assets.Add(link)
		s.DeletedAssets.Remove(link)
	case RecordDeleteAsset:
		link, _ := rec.Link()
		s.Assets.Remove(link)
		s.DeletedAssets.Add(link)
	}
}

// Empty reports whether the state carries no net effect at all.
func (s *State) Empty() bool {
	return s.Locations.Len() == 0 &&
		s.Assets.Len() == 0 &&
		s.DeletedLocations.Len() == 0 &&
		s.DeletedAssets.Len() == 0
}
