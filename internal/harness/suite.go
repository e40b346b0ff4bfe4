package harness

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult aggregates a directory of scenario files.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that failed to load, aborted, or did
// not pass.
type ScenarioFailure struct {
	Scenario string `json:"scenario,omitempty"`
	Path     string `json:"path"`
	Error    string `json:"error"`
}

func (r *SuiteResult) fail(path, name, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{
		Scenario: name,
		Path:     path,
		Error:    msg,
	})
}

// RunSuite loads and runs every *.yaml scenario under dir, in name order.
// An empty directory is an error; a misconfigured suite should not pass
// silently.
func RunSuite(dir string) (*SuiteResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("listing scenarios: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files under %s", dir)
	}
	sort.Strings(paths)

	suite := &SuiteResult{}
	for _, path := range paths {
		suite.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			suite.fail(path, "", fmt.Sprintf("loading scenario: %v", err))
			continue
		}

		result, err := Run(scenario)
		if err != nil {
			suite.fail(path, scenario.Name, fmt.Sprintf("scenario aborted: %v", err))
			continue
		}
		if !result.Pass {
			suite.fail(path, scenario.Name, strings.Join(result.Errors, "; "))
			continue
		}
		suite.Passed++
	}
	return suite, nil
}
