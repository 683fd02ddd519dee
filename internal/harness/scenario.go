package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/reentry/internal/ir"
)

// Scenario is one conformance test: a script, engine settings, a list of
// host events in arrival order, and assertions over the result.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Script is the inline CUE routine table.
	Script string `yaml:"script"`

	// Settings configure the dispatcher.
	Settings Settings `yaml:"settings,omitempty"`

	// Events are delivered to the dispatcher one at a time, in order.
	Events []Step `yaml:"events"`

	// Assertions validate the final trace and engine state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Settings mirror the dispatcher options a scenario may change.
type Settings struct {
	// MaxDepth is the global nesting ceiling. 0 uses the default.
	MaxDepth int `yaml:"max_depth,omitempty"`

	// BackupBudget caps saved variable slots across all live backups.
	// 0 means unlimited.
	BackupBudget int `yaml:"backup_budget,omitempty"`
}

// Step is either a host event or a host toggle of the interruptible flag.
type Step struct {
	// Routine names the target routine of a host event.
	Routine string `yaml:"routine,omitempty"`

	// Params are up to two scalar event parameters.
	Params []any `yaml:"params,omitempty"`

	// Interruptible, when set, changes the host's interruptible flag
	// instead of posting an event.
	Interruptible *bool `yaml:"interruptible,omitempty"`

	// Expect checks the event's outcome. Nil means unchecked.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of one host event.
type Expect struct {
	// Outcome is "invoked" or "dropped".
	Outcome string `yaml:"outcome"`

	// Reason is the drop reason. Only valid with outcome dropped.
	Reason string `yaml:"reason,omitempty"`

	// Return is the expected return value. Nil means unchecked.
	Return any `yaml:"return,omitempty"`

	// Error is a substring of the expected routine-body failure.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace or the engine state after the run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Routine is used by active_after.
	Routine string `yaml:"routine,omitempty"`

	// Where is a trace filter expression (trace_count).
	Where string `yaml:"where,omitempty"`

	// Value is the expected peak depth (depth_max) or error level
	// (error_level).
	Value any `yaml:"value,omitempty"`

	// Count is the expected number of rows or active instances.
	Count int `yaml:"count,omitempty"`

	// Routines is the expected routine order (trace_order).
	Routines []string `yaml:"routines,omitempty"`
}

// Assertion type constants.
const (
	AssertDepthMax    = "depth_max"
	AssertActiveAfter = "active_after"
	AssertTraceCount  = "trace_count"
	AssertTraceOrder  = "trace_order"
	AssertBalanced    = "balanced"
	AssertErrorLevel  = "error_level"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the sorted .yaml and .yml files under dir.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(s.Script) == "" {
		return fmt.Errorf("script is required")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events must contain at least one step")
	}
	if s.Settings.MaxDepth < 0 {
		return fmt.Errorf("settings.max_depth must be non-negative")
	}
	if s.Settings.BackupBudget < 0 {
		return fmt.Errorf("settings.backup_budget must be non-negative")
	}

	for i, step := range s.Events {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	isToggle := step.Interruptible != nil
	if isToggle == (step.Routine != "") {
		return fmt.Errorf("events[%d]: exactly one of routine or interruptible is required", index)
	}
	if isToggle && (step.Expect != nil || len(step.Params) > 0) {
		return fmt.Errorf("events[%d]: an interruptible toggle takes no params or expect", index)
	}
	if len(step.Params) > 2 {
		return fmt.Errorf("events[%d]: at most two params, got %d", index, len(step.Params))
	}
	for j, p := range step.Params {
		if _, err := ir.FromAny(p); err != nil {
			return fmt.Errorf("events[%d].params[%d]: %w", index, j, err)
		}
	}

	if e := step.Expect; e != nil {
		switch ir.Outcome(e.Outcome) {
		case ir.OutcomeInvoked:
			if e.Reason != "" {
				return fmt.Errorf("events[%d]: reason is only valid for dropped events", index)
			}
		case ir.OutcomeDropped:
			if e.Return != nil || e.Error != "" {
				return fmt.Errorf("events[%d]: dropped events have no return or error", index)
			}
		default:
			return fmt.Errorf("events[%d]: expect.outcome must be invoked or dropped, got %q", index, e.Outcome)
		}
		if e.Return != nil {
			if _, err := ir.FromAny(e.Return); err != nil {
				return fmt.Errorf("events[%d].expect.return: %w", index, err)
			}
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertDepthMax:
		if _, ok := a.Value.(int); !ok {
			return fmt.Errorf("assertions[%d]: integer value is required for depth_max", index)
		}
	case AssertActiveAfter:
		if a.Routine == "" {
			return fmt.Errorf("assertions[%d]: routine is required for active_after", index)
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Routines) == 0 {
			return fmt.Errorf("assertions[%d]: routines list is required for trace_order", index)
		}
	case AssertBalanced:
	case AssertErrorLevel:
		if _, ok := a.Value.(string); !ok && a.Value != nil {
			return fmt.Errorf("assertions[%d]: string value is required for error_level", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
