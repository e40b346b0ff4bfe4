package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/eamsync/internal/bim"
	"github.com/roach88/eamsync/internal/eam"
	"github.com/roach88/eamsync/internal/mapping"
	"github.com/roach88/eamsync/internal/store"
)

// SourceClient is the slice of the source-model API the engine consumes.
// Implemented by bim.Client (production) and testutil.FakeSource (tests).
type SourceClient interface {
	ListLocations(ctx context.Context, projectID string) ([]bim.LocationNode, error)
	QueryProducts(ctx context.Context, projectID, modelID string) ([]bim.Entity, error)
	ApplyModelChanges(ctx context.Context, projectID, modelID string, writes []bim.PropertyWrite) ([]bim.ChangeError, error)
}

// TargetClient is the slice of the asset-management API the engine consumes.
// Implemented by eam.Client (production) and testutil.FakeTarget (tests).
//
// Upserts must be idempotent under retry; deletes must refuse with a
// *eam.ConflictError when live dependents block them.
type TargetClient interface {
	UpsertLocation(ctx context.Context, payload eam.LocationPayload) (eam.LocationRef, error)
	DeleteLocation(ctx context.Context, id string) error
	ListChildren(ctx context.Context, id string) ([]eam.LocationRef, error)
	ListAssetsAt(ctx context.Context, id string) ([]eam.AssetRef, error)
	UpsertAsset(ctx context.Context, payload eam.AssetPayload) (eam.AssetRef, error)
	DeleteAsset(ctx context.Context, id string) error
}

// RunTokenGenerator mints run tokens for log correlation.
// Implemented by UUIDv7Generator (production) and testutil fakes.
type RunTokenGenerator interface {
	Generate() string
}

// SyncContext bundles every collaborator a run needs. Dependencies are
// threaded explicitly through the orchestrator; nothing lives in package
// state.
type SyncContext struct {
	Journal  *store.Journal
	Snapshot *store.SnapshotStore
	Source   SourceClient
	Target   TargetClient
	Mapper   *mapping.Mapper
	Tokens   RunTokenGenerator
	Logger   *slog.Logger

	// Source coordinates the run operates on.
	ProjectID string
	ModelID   string
}
