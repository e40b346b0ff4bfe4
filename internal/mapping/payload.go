package mapping

import (
	"log/slog"

	"github.com/roach88/eamsync/internal/bim"
	"github.com/roach88/eamsync/internal/eam"
	"github.com/roach88/eamsync/internal/hierarchy"
)

// ClassResolver resolves a classification code to its display name.
// Typically backed by the taxonomy cache; nil disables enrichment.
type ClassResolver interface {
	ClassName(code string) (string, bool)
}

// Mapper builds target payloads from source nodes and entities under a
// fixed set of rules.
type Mapper struct {
	rules   Rules
	classes ClassResolver
	logger  *slog.Logger
}

func NewMapper(rules Rules, classes ClassResolver, logger *slog.Logger) *Mapper {
	return &Mapper{rules: rules, classes: classes, logger: logger}
}

// Rules returns the rules the mapper was built with.
func (m *Mapper) Rules() Rules {
	return m.rules
}

// LocationPayload builds the upsert body for a hierarchy node whose parent
// has already been resolved to a target location id.
func (m *Mapper) LocationPayload(node *hierarchy.Node, parentID string) eam.LocationPayload {
	desc := node.Name
	if desc == "" {
		desc = node.ID
	}
	return eam.LocationPayload{
		LocationID:  node.ID,
		Description: desc,
		Parent:      parentID,
		Site:        m.rules.Site,
		Org:         m.rules.Org,
		Type:        m.rules.Location.Type,
	}
}

// AssetPayload builds the upsert body for a source entity placed at the
// given target location. A nil return means the entity should not be synced
// as an asset; callers treat that as "remove if just created".
func (m *Mapper) AssetPayload(entity bim.Entity, locationID string) *eam.AssetPayload {
	desc := entity.Name
	if desc == "" {
		desc = entity.Properties[m.rules.Asset.DescriptionProperty]
	}
	if desc == "" {
		if m.logger != nil {
			m.logger.Debug("entity has no usable description, not syncing",
				"entity", entity.ID)
		}
		return nil
	}
	if m.rules.Asset.RequireClass && entity.Class == "" {
		if m.logger != nil {
			m.logger.Debug("entity has no classification, not syncing",
				"entity", entity.ID)
		}
		return nil
	}

	payload := &eam.AssetPayload{
		AssetNum:       entity.ID,
		Description:    desc,
		LocationID:     locationID,
		Site:           m.rules.Site,
		Org:            m.rules.Org,
		Classification: entity.Class,
	}
	if entity.Class != "" && m.classes != nil {
		if name, ok := m.classes.ClassName(entity.Class); ok {
			payload.Attributes = map[string]string{"classificationName": name}
		}
	}
	return payload
}
