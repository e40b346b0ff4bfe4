package harness

import (
	"fmt"

	"github.com/roach88/eamsync/internal/engine"
)

// Result is the outcome of running one scenario.
type Result struct {
	// Pass is true when every step and assertion held.
	Pass bool `json:"pass"`

	// Trace is the target's op log across all steps, in call order, e.g.
	// "upsert_location site-a".
	Trace []string `json:"trace"`

	// Reports summarizes each step's run report.
	Reports []StepReport `json:"reports"`

	// Errors lists every step expectation and assertion that failed.
	Errors []string `json:"errors,omitempty"`
}

// StepReport is the golden-stable summary of one run's report.
type StepReport struct {
	Workflow string `json:"workflow"`
	RunToken string `json:"runToken"`

	LocationsCreated int `json:"locationsCreated"`
	LocationsDeleted int `json:"locationsDeleted"`
	AssetsCreated    int `json:"assetsCreated"`
	AssetsDeleted    int `json:"assetsDeleted"`
	AssetsSkipped    int `json:"assetsSkipped"`

	Failures []string `json:"failures,omitempty"`
}

// NewResult creates an empty passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []string{},
		Reports: []StepReport{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// addReport folds one run report into the result.
func (r *Result) addReport(workflow string, report *engine.Report) {
	s := StepReport{
		Workflow:         workflow,
		RunToken:         report.RunToken,
		LocationsCreated: report.LocationsCreated,
		LocationsDeleted: report.LocationsDeleted,
		AssetsCreated:    report.AssetsCreated,
		AssetsDeleted:    report.AssetsDeleted,
		AssetsSkipped:    report.AssetsSkipped,
	}
	for _, f := range report.Failures {
		id := f.SourceID
		if id == "" {
			id = f.TargetID
		}
		s.Failures = append(s.Failures, fmt.Sprintf("%s %s: %s", f.Kind, id, f.Reason))
	}
	r.Reports = append(r.Reports, s)
}
