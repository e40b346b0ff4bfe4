// Package harness runs reconciliation scenarios end to end against the
// real orchestrator, with the source and target systems replaced by the
// in-memory fakes from testutil.
//
// A scenario is a YAML file describing a source model, optional
// pre-existing target and journal/snapshot state, injected target
// failures, and a sequence of sync and cleanup runs. After the runs, the
// target's operation log is checked against the scenario's assertions and
// optionally against a golden trace file.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario demonstrates"
//	run_token: scenario_name
//	source:
//	  locations:
//	    - id: site-a
//	      name: Site A
//	      children:
//	        - id: bldg-1
//	          name: Building 1
//	  entities:
//	    - id: pump-1
//	      name: Pump 1
//	      class: Pmp
//	      location: bldg-1
//	target:
//	  locations:
//	    - id: stale-1
//	      parent: BUILDINGS
//	journal:
//	  - type: create_location
//	    id: site-a
//	    parent: BUILDINGS
//	failures:
//	  - op: upsert_asset
//	    id: pump-1
//	    message: store offline
//	steps:
//	  - run: sync
//	    expect_failures: 1
//	  - run: sync
//	assertions:
//	  - type: trace_order
//	    ops:
//	      - upsert_location site-a
//	      - upsert_location bldg-1
//	      - upsert_asset pump-1
//	  - type: final_state
//	    entity: asset
//	    id: pump-1
//	    location: bldg-1
//
// # Assertion Types
//
//   - trace_contains: an operation appears in the target's op log
//   - trace_order: operations appear in the given relative order
//   - trace_count: an operation appears exactly N times
//   - final_state: a location or asset is present (with the expected
//     parent or location) or absent in the target after all steps
//
// # Determinism
//
// Each scenario runs in a fresh temporary state directory with fixed run
// tokens, so the op log and the per-step reports are identical across
// runs and can be pinned with golden files.
package harness
