package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/eamsync/internal/testutil"
)

// AssertionError reports one failed assertion with the full trace for
// context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s\n", e.Actual)
	fmt.Fprintf(&buf, "\ntarget op log:\n")
	for i, op := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, op)
	}
	return buf.String()
}

// opMatches reports whether a trace entry matches the assertion's op and
// optional id. An empty id matches any entry of the op kind.
func opMatches(entry, op, id string) bool {
	if id == "" {
		return strings.HasPrefix(entry, op+" ")
	}
	return entry == op+" "+id
}

func describeOp(op, id string) string {
	if id == "" {
		return fmt.Sprintf("any %s", op)
	}
	return op + " " + id
}

// assertTraceContains checks that the op log has at least one matching
// entry.
func assertTraceContains(trace []string, a Assertion) error {
	for _, entry := range trace {
		if opMatches(entry, a.Op, a.ID) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeOp(a.Op, a.ID),
		Actual:   "not found in op log",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the listed entries appear in the given
// relative order. Entries need not be consecutive.
func assertTraceOrder(trace []string, a Assertion) error {
	positions := make(map[string]int)
	for i, entry := range trace {
		for _, want := range a.Ops {
			if entry == want && positions[want] == 0 {
				positions[want] = i + 1
			}
		}
	}

	for _, want := range a.Ops {
		if positions[want] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", want),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the exact number of matching entries.
func assertTraceCount(trace []string, a Assertion) error {
	count := 0
	for _, entry := range trace {
		if opMatches(entry, a.Op, a.ID) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describeOp(a.Op, a.ID)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks presence, absence, and placement of one entity
// in the target after all steps ran.
func assertFinalState(trace []string, target *testutil.FakeTarget, a Assertion) error {
	switch a.Entity {
	case "location":
		payload, live := target.Locations[a.ID]
		if a.Absent {
			if live {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("location %s absent", a.ID),
					Actual:   fmt.Sprintf("location %s is live under %s", a.ID, payload.Parent),
					Trace:    trace,
				}
			}
			return nil
		}
		if !live {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("location %s present", a.ID),
				Actual:   "not in target",
				Trace:    trace,
			}
		}
		if a.Parent != "" && payload.Parent != a.Parent {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("location %s under %s", a.ID, a.Parent),
				Actual:   fmt.Sprintf("under %s", payload.Parent),
				Trace:    trace,
			}
		}
	case "asset":
		payload, live := target.Assets[a.ID]
		if a.Absent {
			if live {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("asset %s absent", a.ID),
					Actual:   fmt.Sprintf("asset %s is live at %s", a.ID, payload.LocationID),
					Trace:    trace,
				}
			}
			return nil
		}
		if !live {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("asset %s present", a.ID),
				Actual:   "not in target",
				Trace:    trace,
			}
		}
		if a.Location != "" && payload.LocationID != a.Location {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("asset %s at %s", a.ID, a.Location),
				Actual:   fmt.Sprintf("at %s", payload.LocationID),
				Trace:    trace,
			}
		}
	default:
		return fmt.Errorf("final_state: unknown entity kind %q", a.Entity)
	}
	return nil
}

// EvaluateAssertions runs every assertion against the result's trace and
// the target's final state, returning one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, target *testutil.FakeTarget) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result.Trace, target, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
