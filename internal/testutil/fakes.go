// Package testutil provides in-memory collaborator fakes for engine and
// harness tests. The fakes enforce the same structural semantics as the
// real systems, so tests exercise cascade and idempotency behavior rather
// than scripted responses.
package testutil

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/eamsync/internal/bim"
	"github.com/roach88/eamsync/internal/eam"
)

// FakeSource serves a fixed hierarchy and entity list.
//
// Implements engine.SourceClient.
type FakeSource struct {
	Locations []bim.LocationNode
	Entities  []bim.Entity

	// Applied collects every write-back push in call order.
	Applied [][]bim.PropertyWrite

	// ChangeErrors is returned from ApplyModelChanges to simulate partial
	// write-back failure.
	ChangeErrors []bim.ChangeError

	ListLocationsErr error
	QueryProductsErr error
	ApplyErr         error
}

func (s *FakeSource) ListLocations(ctx context.Context, projectID string) ([]bim.LocationNode, error) {
	if s.ListLocationsErr != nil {
		return nil, s.ListLocationsErr
	}
	return s.Locations, nil
}

func (s *FakeSource) QueryProducts(ctx context.Context, projectID, modelID string) ([]bim.Entity, error) {
	if s.QueryProductsErr != nil {
		return nil, s.QueryProductsErr
	}
	return s.Entities, nil
}

func (s *FakeSource) ApplyModelChanges(ctx context.Context, projectID, modelID string, writes []bim.PropertyWrite) ([]bim.ChangeError, error) {
	if s.ApplyErr != nil {
		return nil, s.ApplyErr
	}
	s.Applied = append(s.Applied, writes)
	return s.ChangeErrors, nil
}

// FakeTarget is an in-memory stand-in for the target asset-management
// system. Upserts are keyed and idempotent; deletes are refused with a
// typed conflict while live children or referencing assets exist, exactly
// like the real system. Deleting something absent succeeds, mirroring the
// client's treatment of 404s.
//
// Implements engine.TargetClient. Not safe for concurrent use; the engine
// is single-writer.
type FakeTarget struct {
	Locations map[string]eam.LocationPayload // live locations by id
	Assets    map[string]eam.AssetPayload    // live assets by id

	// Ops logs every successful mutating call in order,
	// e.g. "upsert_location bldg-1".
	Ops []string

	// UpsertLocationCalls counts upsert calls per location id.
	UpsertLocationCalls map[string]int

	// Error injection. A non-nil entry fails the matching call once, then
	// clears, so retries on a later run succeed.
	FailUpsertLocation map[string]error
	FailDeleteLocation map[string]error
	FailUpsertAsset    map[string]error
	FailDeleteAsset    map[string]error
}

func NewFakeTarget() *FakeTarget {
	return &FakeTarget{
		Locations:           make(map[string]eam.LocationPayload),
		Assets:              make(map[string]eam.AssetPayload),
		UpsertLocationCalls: make(map[string]int),
	}
}

// SeedLocation places a live location without logging an op, as if it had
// been created before the run or out of band.
func (t *FakeTarget) SeedLocation(id, parent string) {
	t.Locations[id] = eam.LocationPayload{LocationID: id, Parent: parent}
}

// SeedAsset places a live asset without logging an op.
func (t *FakeTarget) SeedAsset(id, locationID string) {
	t.Assets[id] = eam.AssetPayload{AssetNum: id, LocationID: locationID}
}

func (t *FakeTarget) UpsertLocation(ctx context.Context, p eam.LocationPayload) (eam.LocationRef, error) {
	if err := takeErr(t.FailUpsertLocation, p.LocationID); err != nil {
		return eam.LocationRef{}, err
	}
	t.Locations[p.LocationID] = p
	t.UpsertLocationCalls[p.LocationID]++
	t.op("upsert_location", p.LocationID)
	return eam.LocationRef{ID: p.LocationID, Parent: p.Parent}, nil
}

func (t *FakeTarget) DeleteLocation(ctx context.Context, id string) error {
	if err := takeErr(t.FailDeleteLocation, id); err != nil {
		return err
	}
	if children := t.childrenOf(id); len(children) > 0 {
		return &eam.ConflictError{
			Kind:       eam.ConflictHasChildren,
			LocationID: id,
			Message:    fmt.Sprintf("location has %d child locations", len(children)),
		}
	}
	if assets := t.assetsAt(id); len(assets) > 0 {
		return &eam.ConflictError{
			Kind:       eam.ConflictAssetReference,
			LocationID: id,
			Message:    "location is referenced in the asset table",
		}
	}
	delete(t.Locations, id)
	t.op("delete_location", id)
	return nil
}

func (t *FakeTarget) ListChildren(ctx context.Context, id string) ([]eam.LocationRef, error) {
	var refs []eam.LocationRef
	for _, child := range t.childrenOf(id) {
		refs = append(refs, eam.LocationRef{ID: child, Parent: id})
	}
	return refs, nil
}

func (t *FakeTarget) ListAssetsAt(ctx context.Context, id string) ([]eam.AssetRef, error) {
	var refs []eam.AssetRef
	for _, asset := range t.assetsAt(id) {
		refs = append(refs, eam.AssetRef{ID: asset})
	}
	return refs, nil
}

func (t *FakeTarget) UpsertAsset(ctx context.Context, p eam.AssetPayload) (eam.AssetRef, error) {
	if err := takeErr(t.FailUpsertAsset, p.AssetNum); err != nil {
		return eam.AssetRef{}, err
	}
	t.Assets[p.AssetNum] = p
	t.op("upsert_asset", p.AssetNum)
	return eam.AssetRef{ID: p.AssetNum}, nil
}

func (t *FakeTarget) DeleteAsset(ctx context.Context, id string) error {
	if err := takeErr(t.FailDeleteAsset, id); err != nil {
		return err
	}
	delete(t.Assets, id)
	t.op("delete_asset", id)
	return nil
}

// HasLocation reports whether a location is live.
func (t *FakeTarget) HasLocation(id string) bool {
	_, ok := t.Locations[id]
	return ok
}

// HasAsset reports whether an asset is live.
func (t *FakeTarget) HasAsset(id string) bool {
	_, ok := t.Assets[id]
	return ok
}

func (t *FakeTarget) op(kind, id string) {
	t.Ops = append(t.Ops, kind+" "+id)
}

func (t *FakeTarget) childrenOf(id string) []string {
	var children []string
	for child, p := range t.Locations {
		if p.Parent == id {
			children = append(children, child)
		}
	}
	sort.Strings(children)
	return children
}

func (t *FakeTarget) assetsAt(id string) []string {
	var assets []string
	for asset, p := range t.Assets {
		if p.LocationID == id {
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)
	return assets
}

func takeErr(m map[string]error, key string) error {
	err := m[key]
	if err != nil {
		delete(m, key)
	}
	return err
}
