package engine

import (
	"log/slog"

	"github.com/roach88/eamsync/internal/bim"
)

// Report summarizes one run: what was created, deleted, and skipped, plus
// one entry per entity-level failure with enough context to follow up by
// hand.
type Report struct {
	RunToken string `json:"runToken"`

	LocationsCreated int `json:"locationsCreated"`
	LocationsDeleted int `json:"locationsDeleted"`
	AssetsCreated    int `json:"assetsCreated"`
	AssetsDeleted    int `json:"assetsDeleted"`
	AssetsSkipped    int `json:"assetsSkipped"`

	Failures []Failure `json:"failures,omitempty"`
}

// Failure records one entity-level failure. The entity stays in whatever
// state it was in; a future run retries it.
type Failure struct {
	Kind     string `json:"kind"` // "location", "asset" or "write-back"
	SourceID string `json:"sourceId,omitempty"`
	TargetID string `json:"targetId,omitempty"`
	Reason   string `json:"reason"`
}

// Clean reports whether the run finished without entity-level failures.
func (r *Report) Clean() bool {
	return len(r.Failures) == 0
}

// run carries the per-run state shared by the creation and cleanup passes:
// the correlation token, a token-scoped logger, the report under
// construction, and the write-back queue.
type run struct {
	token  string
	logger *slog.Logger
	report *Report
	writes []bim.PropertyWrite
}

func (r *run) fail(kind, sourceID, targetID string, err error) {
	r.logger.Error("sync failure",
		"kind", kind,
		"source_id", sourceID,
		"target_id", targetID,
		"error", err,
	)
	r.report.Failures = append(r.report.Failures, Failure{
		Kind:     kind,
		SourceID: sourceID,
		TargetID: targetID,
		Reason:   err.Error(),
	})
}
