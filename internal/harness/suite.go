package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// SuiteResult summarises a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Results        []ScenarioOutcome `json:"results"`
}

// ScenarioOutcome is one scenario's line in a suite report.
type ScenarioOutcome struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`

	// Result is the full run, nil when the scenario failed to load or run.
	Result *Result `json:"-"`
}

// Failures returns only the failed scenarios.
func (r *SuiteResult) Failures() []ScenarioOutcome {
	var out []ScenarioOutcome
	for _, o := range r.Results {
		if !o.Pass {
			out = append(out, o)
		}
	}
	return out
}

// RunSuite loads and runs every scenario under dir in path order.
// A scenario that fails to load or run counts as failed; only a missing
// or empty directory is an error.
func RunSuite(ctx context.Context, dir string) (*SuiteResult, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, fmt.Errorf("scan scenarios: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}

	suite := &SuiteResult{Results: []ScenarioOutcome{}}
	for _, path := range paths {
		outcome := runOne(ctx, path)
		suite.TotalScenarios++
		if outcome.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
		suite.Results = append(suite.Results, outcome)
	}
	return suite, nil
}

func runOne(ctx context.Context, path string) ScenarioOutcome {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outcome := ScenarioOutcome{Name: name, Path: path}

	scenario, err := LoadScenario(path)
	if err != nil {
		outcome.Errors = []string{err.Error()}
		return outcome
	}
	outcome.Name = scenario.Name

	result, err := RunContext(ctx, scenario)
	if err != nil {
		outcome.Errors = []string{err.Error()}
		return outcome
	}
	outcome.Pass = result.Pass
	outcome.Errors = result.Errors
	outcome.Result = result
	return outcome
}
