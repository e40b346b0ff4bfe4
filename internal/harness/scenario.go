package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/eamsync/internal/bim"
	"github.com/roach88/eamsync/internal/mapping"
	"github.com/roach88/eamsync/internal/store"
)

// Scenario is one reconciliation test case: a source model, optional
// pre-existing state, a sequence of runs, and assertions on the outcome.
type Scenario struct {
	// Name identifies the scenario. Used as the golden file name.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// RunToken is the prefix for the fixed run tokens handed to the
	// orchestrator, so reports stay stable across runs. Defaults to the
	// scenario name.
	RunToken string `yaml:"run_token,omitempty"`

	// Rules is an inline mapping rules document. Empty means the default
	// rules (root BUILDINGS, site MAIN, org ACME).
	Rules string `yaml:"rules,omitempty"`

	// Source is the model the fake source serves.
	Source SourceDoc `yaml:"source"`

	// Target seeds locations and assets that exist in the target before
	// the first step, as if created by an earlier run or out of band.
	Target TargetDoc `yaml:"target,omitempty"`

	// Journal seeds uncommitted journal records, as left by a crashed run.
	Journal []JournalDoc `yaml:"journal,omitempty"`

	// Snapshot seeds the committed snapshot, as left by completed runs.
	Snapshot SnapshotDoc `yaml:"snapshot,omitempty"`

	// Failures are one-shot target errors: the first matching call fails,
	// a later retry succeeds.
	Failures []FailureDoc `yaml:"failures,omitempty"`

	// Steps are the runs to execute, in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the target op log and final target state.
	Assertions []Assertion `yaml:"assertions"`
}

// SourceDoc is the source model served to the engine.
type SourceDoc struct {
	Locations []LocationDoc `yaml:"locations,omitempty"`
	Entities  []EntityDoc   `yaml:"entities,omitempty"`
}

// LocationDoc is one node of the source location tree.
type LocationDoc struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Children []LocationDoc `yaml:"children,omitempty"`
}

// EntityDoc is one asset-bearing source entity.
type EntityDoc struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name,omitempty"`
	Class      string            `yaml:"class,omitempty"`
	Location   string            `yaml:"location,omitempty"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// TargetDoc seeds pre-existing target state.
type TargetDoc struct {
	Locations []TargetLocationDoc `yaml:"locations,omitempty"`
	Assets    []TargetAssetDoc    `yaml:"assets,omitempty"`
}

// TargetLocationDoc is one seeded target location.
type TargetLocationDoc struct {
	ID     string `yaml:"id"`
	Parent string `yaml:"parent,omitempty"`
}

// TargetAssetDoc is one seeded target asset.
type TargetAssetDoc struct {
	ID       string `yaml:"id"`
	Location string `yaml:"location,omitempty"`
}

// JournalDoc is one seeded journal record.
type JournalDoc struct {
	// Type is one of create_location, delete_location, create_asset,
	// delete_asset.
	Type string `yaml:"type"`

	// ID and Parent describe a location edge (location records).
	ID     string `yaml:"id,omitempty"`
	Parent string `yaml:"parent,omitempty"`

	// Source and Target describe an asset link (asset records).
	Source string `yaml:"source,omitempty"`
	Target string `yaml:"target,omitempty"`
}

// SnapshotDoc seeds the committed snapshot.
type SnapshotDoc struct {
	Locations []TargetLocationDoc `yaml:"locations,omitempty"`
	Assets    []SnapshotAssetDoc  `yaml:"assets,omitempty"`
}

// SnapshotAssetDoc is one committed asset link.
type SnapshotAssetDoc struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// FailureDoc injects one target error.
type FailureDoc struct {
	// Op is one of upsert_location, delete_location, upsert_asset,
	// delete_asset.
	Op string `yaml:"op"`

	// ID is the location or asset the failing call addresses.
	ID string `yaml:"id"`

	// Message is the error the call returns. Defaults to "injected
	// failure".
	Message string `yaml:"message,omitempty"`
}

// Step is one orchestrator run.
type Step struct {
	// Run is "sync" or "cleanup".
	Run string `yaml:"run"`

	// ExpectFailures is the exact number of entity-level failures the
	// run's report must carry.
	ExpectFailures int `yaml:"expect_failures,omitempty"`
}

// Assertion validates the op log or the final target state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count,
	// final_state.
	Type string `yaml:"type"`

	// Op is the operation kind, e.g. "upsert_location". Used by
	// trace_contains and trace_count.
	Op string `yaml:"op,omitempty"`

	// ID names the location or asset the assertion is about. Optional for
	// trace assertions (any id matches), required for final_state.
	ID string `yaml:"id,omitempty"`

	// Ops is the expected relative order of full op log entries, e.g.
	// "upsert_location site-a". Used by trace_order.
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of occurrences. Used by trace_count.
	Count int `yaml:"count,omitempty"`

	// Entity is "location" or "asset". Used by final_state.
	Entity string `yaml:"entity,omitempty"`

	// Parent is the expected recorded parent of a location. Used by
	// final_state.
	Parent string `yaml:"parent,omitempty"`

	// Location is the expected location of an asset. Used by final_state.
	Location string `yaml:"location,omitempty"`

	// Absent asserts the entity does not exist in the target.
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Step workflow constants.
const (
	StepSync    = "sync"
	StepCleanup = "cleanup"
)

// Trace op kinds, matching the fake target's op log.
const (
	OpUpsertLocation = "upsert_location"
	OpDeleteLocation = "delete_location"
	OpUpsertAsset    = "upsert_asset"
	OpDeleteAsset    = "delete_asset"
)

// defaultRules is the mapping rules document scenarios get when they do
// not carry their own.
const defaultRules = "root: BUILDINGS\nsite: MAIN\norg: ACME\n"

// LoadScenario reads and parses a scenario YAML file. Unknown fields,
// malformed YAML, and structurally invalid scenarios are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// effectiveRules parses the scenario's inline rules, or the defaults.
func (s *Scenario) effectiveRules() (mapping.Rules, error) {
	doc := s.Rules
	if doc == "" {
		doc = defaultRules
	}
	return mapping.Parse(s.Name+" rules", []byte(doc))
}

// tokenPrefix returns the run token prefix, defaulting to the scenario
// name.
func (s *Scenario) tokenPrefix() string {
	if s.RunToken != "" {
		return s.RunToken
	}
	return s.Name
}

// nodes converts the source location docs to the client's wire shape.
func (d SourceDoc) nodes() []bim.LocationNode {
	out := make([]bim.LocationNode, 0, len(d.Locations))
	for _, loc := range d.Locations {
		out = append(out, loc.node())
	}
	return out
}

func (d LocationDoc) node() bim.LocationNode {
	n := bim.LocationNode{ID: d.ID, Name: d.Name}
	for _, child := range d.Children {
		n.Children = append(n.Children, child.node())
	}
	return n
}

// entities converts the source entity docs to the client's wire shape.
func (d SourceDoc) entities() []bim.Entity {
	out := make([]bim.Entity, 0, len(d.Entities))
	for _, e := range d.Entities {
		out = append(out, bim.Entity{
			ID:         e.ID,
			Name:       e.Name,
			Class:      e.Class,
			LocationID: e.Location,
			Properties: e.Properties,
		})
	}
	return out
}

// record converts a journal doc to a store record.
func (d JournalDoc) record() (store.Record, error) {
	switch d.Type {
	case "create_location":
		return store.CreateLocation(store.NewLocationEdge(d.ID, d.Parent)), nil
	case "delete_location":
		return store.DeleteLocation(store.NewLocationEdge(d.ID, d.Parent)), nil
	case "create_asset":
		return store.CreateAsset(store.NewAssetLink(d.Source, d.Target)), nil
	case "delete_asset":
		return store.DeleteAsset(store.NewAssetLink(d.Source, d.Target)), nil
	default:
		return store.Record{}, fmt.Errorf("unknown journal record type %q", d.Type)
	}
}

// validateScenario checks required fields and cross-field constraints.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Run != StepSync && step.Run != StepCleanup {
			return fmt.Errorf("steps[%d]: run must be %q or %q, got %q",
				i, StepSync, StepCleanup, step.Run)
		}
		if step.ExpectFailures < 0 {
			return fmt.Errorf("steps[%d]: expect_failures must be non-negative", i)
		}
	}

	for i, rec := range s.Journal {
		if err := validateJournalDoc(i, rec); err != nil {
			return err
		}
	}

	for i, f := range s.Failures {
		if err := validateFailureDoc(i, f); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateJournalDoc(index int, d JournalDoc) error {
	switch d.Type {
	case "create_location", "delete_location":
		if d.ID == "" || d.Parent == "" {
			return fmt.Errorf("journal[%d]: %s needs id and parent", index, d.Type)
		}
	case "create_asset", "delete_asset":
		if d.Source == "" || d.Target == "" {
			return fmt.Errorf("journal[%d]: %s needs source and target", index, d.Type)
		}
	default:
		return fmt.Errorf("journal[%d]: unknown record type %q", index, d.Type)
	}
	return nil
}

func validateFailureDoc(index int, f FailureDoc) error {
	switch f.Op {
	case OpUpsertLocation, OpDeleteLocation, OpUpsertAsset, OpDeleteAsset:
	default:
		return fmt.Errorf("failures[%d]: unknown op %q", index, f.Op)
	}
	if f.ID == "" {
		return fmt.Errorf("failures[%d]: id is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Entity != "location" && a.Entity != "asset" {
			return fmt.Errorf("assertions[%d]: entity must be \"location\" or \"asset\" for final_state", index)
		}
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for final_state", index)
		}
		if a.Absent && (a.Parent != "" || a.Location != "") {
			return fmt.Errorf("assertions[%d]: absent cannot be combined with parent or location", index)
		}
		if a.Entity == "location" && a.Location != "" {
			return fmt.Errorf("assertions[%d]: location expectation only applies to assets", index)
		}
		if a.Entity == "asset" && a.Parent != "" {
			return fmt.Errorf("assertions[%d]: parent expectation only applies to locations", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
