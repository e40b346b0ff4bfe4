package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/eamsync/internal/bim"
	"github.com/roach88/eamsync/internal/hierarchy"
	"github.com/roach88/eamsync/internal/store"
)

// Orchestrator composes the creation and deletion engines into full-sync
// and cleanup-only workflows over one journal/snapshot pair.
//
// One run at a time: nothing here is safe for concurrent use, and two
// processes sharing a journal file will corrupt each other's recovery
// state. There is no locking; the deployment model is a scheduled or
// operator-invoked batch tool.
type Orchestrator struct {
	sc SyncContext
}

// New wires an orchestrator. Logger and Tokens fall back to defaults;
// everything else must be provided by the caller.
func New(sc SyncContext) *Orchestrator {
	if sc.Logger == nil {
		sc.Logger = slog.Default()
	}
	if sc.Tokens == nil {
		sc.Tokens = UUIDv7Generator{}
	}
	return &Orchestrator{sc: sc}
}

func (o *Orchestrator) newRun(workflow string) *run {
	token := o.sc.Tokens.Generate()
	return &run{
		token:  token,
		logger: o.sc.Logger.With("run", token, "workflow", workflow),
		report: &Report{RunToken: token},
	}
}

// FullSync pulls the source hierarchy and entities, mirrors them into the
// target with parents created before children, writes assigned target
// identifiers back into the source model, and commits the journal into the
// snapshot.
//
// A non-nil error means the run aborted with the journal preserved; the
// next run replays it and resumes. Entity-level failures never abort the
// run; they are collected in the report.
func (o *Orchestrator) FullSync(ctx context.Context) (*Report, error) {
	run := o.newRun("full-sync")
	run.logger.Info("full sync starting", "project", o.sc.ProjectID, "model", o.sc.ModelID)

	state, err := o.sc.Journal.Replay()
	if err != nil {
		return nil, fmt.Errorf("replaying journal: %w", err)
	}
	if !state.Empty() {
		run.logger.Info("resuming state left by an earlier run",
			"locations", state.Locations.Len(), "assets", state.Assets.Len())
	}

	locations, err := o.sc.Source.ListLocations(ctx, o.sc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("listing source locations: %w", err)
	}
	index, err := hierarchy.Build(locations, run.logger)
	if err != nil {
		return nil, err
	}
	entities, err := o.sc.Source.QueryProducts(ctx, o.sc.ProjectID, o.sc.ModelID)
	if err != nil {
		return nil, fmt.Errorf("querying source entities: %w", err)
	}

	cr := newCreator(o.sc, index, state, run)

	// Only locations hosting at least one entity are mirrored; their
	// ancestors are pulled in by the parent recursion.
	for _, id := range referencedLocations(entities) {
		if _, err := cr.syncWithParents(ctx, id); err != nil {
			if isFatal(err) {
				return nil, err
			}
			run.fail("location", id, "", err)
		}
	}

	for _, entity := range entities {
		if err := o.syncAsset(ctx, cr, run, entity); err != nil {
			return nil, err
		}
	}

	o.pushWriteBack(ctx, run)

	if err := o.commit(run); err != nil {
		return nil, err
	}

	run.logger.Info("full sync finished",
		"locations_created", run.report.LocationsCreated,
		"assets_created", run.report.AssetsCreated,
		"assets_skipped", run.report.AssetsSkipped,
		"failures", len(run.report.Failures),
	)
	return run.report, nil
}

// Cleanup removes everything previously recorded as synced, assets first,
// then locations children-before-parents, and commits the emptied state.
// The scope is the merged snapshot + journal, so a crashed sync's work is
// cleaned up too.
func (o *Orchestrator) Cleanup(ctx context.Context) (*Report, error) {
	run := o.newRun("cleanup")

	state, err := o.sc.Journal.Replay()
	if err != nil {
		return nil, fmt.Errorf("replaying journal: %w", err)
	}
	snap, err := o.sc.Snapshot.Load()
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	merged := store.Merge(snap, state)
	run.logger.Info("cleanup starting",
		"locations", merged.Locations.Len(), "assets", merged.Assets.Len())

	cl := newCleaner(o.sc, merged, run)
	if err := cl.deleteAssets(ctx); err != nil {
		return nil, err
	}
	if err := cl.deleteLocations(ctx); err != nil {
		return nil, err
	}

	if err := o.commit(run); err != nil {
		return nil, err
	}

	run.logger.Info("cleanup finished",
		"assets_deleted", run.report.AssetsDeleted,
		"locations_deleted", run.report.LocationsDeleted,
		"failures", len(run.report.Failures),
	)
	return run.report, nil
}

// Status reports the persisted state without touching either remote
// system. Non-zero journal numbers mean a previous run did not commit and
// the next run will resume from its records.
type Status struct {
	SnapshotLocations int `json:"snapshotLocations"`
	SnapshotAssets    int `json:"snapshotAssets"`
	JournalRecords    int `json:"journalRecords"`
	PendingLocations  int `json:"pendingLocations"`
	PendingAssets     int `json:"pendingAssets"`
}

func (o *Orchestrator) Status() (*Status, error) {
	snap, err := o.sc.Snapshot.Load()
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	state, err := o.sc.Journal.Replay()
	if err != nil {
		return nil, fmt.Errorf("replaying journal: %w", err)
	}
	records, err := o.sc.Journal.Len()
	if err != nil {
		return nil, fmt.Errorf("sizing journal: %w", err)
	}
	return &Status{
		SnapshotLocations: snap.Locations.Len(),
		SnapshotAssets:    snap.Assets.Len(),
		JournalRecords:    records,
		PendingLocations:  state.Locations.Len(),
		PendingAssets:     state.Assets.Len(),
	}, nil
}

// syncAsset places one entity as an asset at its synced location. Returns
// an error only for journal failures; everything else is recorded in the
// report and skipped.
func (o *Orchestrator) syncAsset(ctx context.Context, cr *creator, run *run, entity bim.Entity) error {
	if entity.LocationID == "" {
		run.logger.Warn("entity has no location, skipping", "entity", entity.ID)
		run.report.AssetsSkipped++
		return nil
	}

	locRef, err := cr.syncWithParents(ctx, entity.LocationID)
	if err != nil {
		if isFatal(err) {
			return err
		}
		run.fail("asset", entity.ID, "", err)
		return nil
	}
	if locRef == nil {
		run.logger.Warn("entity location cannot be synced, skipping",
			"entity", entity.ID, "location", entity.LocationID)
		run.report.AssetsSkipped++
		return nil
	}

	payload := o.sc.Mapper.AssetPayload(entity, locRef.ID)
	if payload == nil {
		run.logger.Warn("entity does not map to an asset, skipping", "entity", entity.ID)
		run.report.AssetsSkipped++
		return cr.dropIfJustCreated(ctx, entity.LocationID)
	}

	ref, err := o.sc.Target.UpsertAsset(ctx, *payload)
	if err != nil {
		run.fail("asset", entity.ID, "", err)
		return nil
	}
	link := store.NewAssetLink(entity.ID, ref.ID)
	if err := o.sc.Journal.Append(store.CreateAsset(link)); err != nil {
		return &journalError{err}
	}
	run.report.AssetsCreated++

	wb := o.sc.Mapper.Rules().WriteBack
	run.writes = append(run.writes,
		bim.PropertyWrite{EntityID: entity.ID, PropertySet: wb.PropertySet, Property: wb.LocationProperty, Value: locRef.ID},
		bim.PropertyWrite{EntityID: entity.ID, PropertySet: wb.PropertySet, Property: wb.AssetProperty, Value: ref.ID},
	)
	run.logger.Info("asset synced", "entity", entity.ID, "asset", ref.ID, "location", locRef.ID)
	return nil
}

// pushWriteBack sends assigned target identifiers back to the source
// model. Failures are logged and reported, never retried; the identifiers
// can be pushed again by the next run.
func (o *Orchestrator) pushWriteBack(ctx context.Context, run *run) {
	if len(run.writes) == 0 {
		return
	}
	changeErrs, err := o.sc.Source.ApplyModelChanges(ctx, o.sc.ProjectID, o.sc.ModelID, run.writes)
	if err != nil {
		run.fail("write-back", "", "", err)
		return
	}
	for _, ce := range changeErrs {
		run.fail("write-back", ce.EntityID, "", errors.New(ce.Message))
	}
	if len(changeErrs) == 0 {
		run.logger.Info("write-back pushed", "writes", len(run.writes))
	}
}

// commit folds the journal into the snapshot and resets it. The journal is
// re-replayed rather than trusting in-memory counters; it is the only
// record of what actually happened this run.
func (o *Orchestrator) commit(run *run) error {
	state, err := o.sc.Journal.Replay()
	if err != nil {
		return fmt.Errorf("replaying journal for commit: %w", err)
	}
	if err := o.sc.Snapshot.Commit(state, o.sc.Journal); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// referencedLocations returns the sorted set of location ids the entities
// sit at.
func referencedLocations(entities []bim.Entity) []string {
	seen := make(map[string]bool)
	for _, e := range entities {
		if e.LocationID != "" {
			seen[store.Canonical(e.LocationID)] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
