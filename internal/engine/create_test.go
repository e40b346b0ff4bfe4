package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eamsync/internal/bim"
	"github.com/roach88/eamsync/internal/store"
	"github.com/roach88/eamsync/internal/testutil"
)

func TestFullSync_PlaceholderParentFlattened(t *testing.T) {
	source := &testutil.FakeSource{
		Locations: []bim.LocationNode{{
			ID:   "def-0",
			Name: "Default",
			Children: []bim.LocationNode{{
				ID:   "room-1",
				Name: "Room 1",
			}},
		}},
		Entities: []bim.Entity{{ID: "pump-1", Name: "Pump 1", LocationID: "room-1"}},
	}
	env := setupSync(t, source, testutil.NewFakeTarget())

	report, err := env.orch.FullSync(context.Background())
	require.NoError(t, err)

	// The placeholder container is never materialized; its children hang
	// off the configured root instead.
	assert.NotContains(t, env.target.UpsertLocationCalls, "def-0")
	require.True(t, env.target.HasLocation("room-1"))
	assert.Equal(t, "BUILDINGS", env.target.Locations["room-1"].Parent)
	assert.Equal(t, 1, report.LocationsCreated)

	snap := loadSnapshot(t, env)
	assert.True(t, snap.Locations.Has(store.NewLocationEdge("room-1", "BUILDINGS")))
	assert.False(t, snap.Locations.HasChild("def-0"))
}

func TestFullSync_EntityAtPlaceholderSkipped(t *testing.T) {
	source := &testutil.FakeSource{
		Locations: []bim.LocationNode{{ID: "def-0", Name: "Default"}},
		Entities:  []bim.Entity{{ID: "pump-1", Name: "Pump 1", LocationID: "def-0"}},
	}
	env := setupSync(t, source, testutil.NewFakeTarget())

	report, err := env.orch.FullSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.AssetsSkipped)
	assert.Equal(t, 0, report.LocationsCreated)
	assert.True(t, report.Clean())
	assert.Empty(t, env.target.Ops)
}

func TestFullSync_UnknownLocationSkipsEntity(t *testing.T) {
	source := &testutil.FakeSource{
		Locations: campus(),
		Entities:  []bim.Entity{{ID: "pump-1", Name: "Pump 1", LocationID: "mystery"}},
	}
	env := setupSync(t, source, testutil.NewFakeTarget())

	report, err := env.orch.FullSync(context.Background())
	require.NoError(t, err)

	// An unresolvable location is a skip, not a failure.
	assert.Equal(t, 1, report.AssetsSkipped)
	assert.True(t, report.Clean())
	assert.Empty(t, env.target.Ops)
}

func TestFullSync_NormalizesLocationIdentity(t *testing.T) {
	// Source hierarchy uses the composed form, the entity the decomposed
	// form of the same id.
	source := &testutil.FakeSource{
		Locations: []bim.LocationNode{{ID: "café", Name: "Café"}},
		Entities:  []bim.Entity{{ID: "pump-1", Name: "Pump 1", LocationID: "café"}},
	}
	env := setupSync(t, source, testutil.NewFakeTarget())

	report, err := env.orch.FullSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, env.target.UpsertLocationCalls["café"])
	assert.Equal(t, 1, report.AssetsCreated)
	assert.True(t, report.Clean())
}

func TestFullSync_DropsLocationForUnmappableEntity(t *testing.T) {
	source := &testutil.FakeSource{
		Locations: campus(),
		// No name and no description property, so the entity maps to nil.
		Entities: []bim.Entity{{ID: "ghost-1", LocationID: "floor-1"}},
	}
	env := setupSync(t, source, testutil.NewFakeTarget())

	report, err := env.orch.FullSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.AssetsSkipped)
	assert.Equal(t, 3, report.LocationsCreated)
	assert.Equal(t, 1, report.LocationsDeleted)

	// The location created for the entity is rolled back; its ancestors
	// stay.
	assert.False(t, env.target.HasLocation("floor-1"))
	assert.True(t, env.target.HasLocation("bldg-1"))

	snap := loadSnapshot(t, env)
	assert.False(t, snap.Locations.HasChild("floor-1"))
	assert.True(t, snap.Locations.Has(store.NewLocationEdge("bldg-1", "site-a")))
}

func TestFullSync_KeepsSharedLocationWithLiveAsset(t *testing.T) {
	source := &testutil.FakeSource{
		Locations: campus(),
		Entities: []bim.Entity{
			{ID: "pump-1", Name: "Pump 1", LocationID: "floor-1"},
			{ID: "ghost-1", LocationID: "floor-1"},
		},
	}
	env := setupSync(t, source, testutil.NewFakeTarget())

	report, err := env.orch.FullSync(context.Background())
	require.NoError(t, err)

	// The rollback is refused because pump-1 lives at floor-1; the
	// location survives for the entity that needs it.
	assert.True(t, env.target.HasLocation("floor-1"))
	assert.True(t, env.target.HasAsset("pump-1"))
	assert.Equal(t, 0, report.LocationsDeleted)
	assert.Equal(t, 1, report.AssetsSkipped)

	snap := loadSnapshot(t, env)
	assert.True(t, snap.Locations.Has(store.NewLocationEdge("floor-1", "bldg-1")))
	assert.True(t, snap.Assets.Has(store.NewAssetLink("pump-1", "pump-1")))
}

func TestFullSync_SharedLocationConvergesRegardlessOfOrder(t *testing.T) {
	// Same pair as above but the unmappable entity comes first, so the
	// location is dropped and then recreated for the mappable one.
	source := &testutil.FakeSource{
		Locations: campus(),
		Entities: []bim.Entity{
			{ID: "ghost-1", LocationID: "floor-1"},
			{ID: "pump-1", Name: "Pump 1", LocationID: "floor-1"},
		},
	}
	env := setupSync(t, source, testutil.NewFakeTarget())

	report, err := env.orch.FullSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, env.target.UpsertLocationCalls["floor-1"])
	assert.True(t, env.target.HasLocation("floor-1"))
	assert.True(t, env.target.HasAsset("pump-1"))
	assert.Equal(t, 1, report.AssetsCreated)
	assert.Equal(t, 1, report.AssetsSkipped)

	// Net journal effect is the same as the other processing order.
	snap := loadSnapshot(t, env)
	assert.True(t, snap.Locations.Has(store.NewLocationEdge("floor-1", "bldg-1")))
	assert.True(t, snap.Assets.Has(store.NewAssetLink("pump-1", "pump-1")))
}

func TestFullSync_ReplayedLocationNeverDropped(t *testing.T) {
	source := &testutil.FakeSource{
		Locations: campus(),
		Entities:  []bim.Entity{{ID: "ghost-1", LocationID: "floor-1"}},
	}
	target := testutil.NewFakeTarget()
	env := setupSync(t, source, target)

	// floor-1 was created by an earlier crashed run, not this one.
	require.NoError(t, env.journal.Append(store.CreateLocation(store.NewLocationEdge("site-a", "BUILDINGS"))))
	require.NoError(t, env.journal.Append(store.CreateLocation(store.NewLocationEdge("bldg-1", "site-a"))))
	require.NoError(t, env.journal.Append(store.CreateLocation(store.NewLocationEdge("floor-1", "bldg-1"))))
	target.SeedLocation("site-a", "BUILDINGS")
	target.SeedLocation("bldg-1", "site-a")
	target.SeedLocation("floor-1", "bldg-1")

	report, err := env.orch.FullSync(context.Background())
	require.NoError(t, err)

	// Rollback only applies to locations created within the same run.
	assert.True(t, env.target.HasLocation("floor-1"))
	assert.Equal(t, 0, report.LocationsDeleted)
	assert.Equal(t, 1, report.AssetsSkipped)

	snap := loadSnapshot(t, env)
	assert.True(t, snap.Locations.Has(store.NewLocationEdge("floor-1", "bldg-1")))
}
