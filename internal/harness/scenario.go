package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Workflow is an inline workflow definition. Exactly one of Workflow
	// and Definitions must be set.
	Workflow *WorkflowSpec `yaml:"workflow,omitempty"`

	// Definitions is a directory of CUE workflow definitions, relative to
	// the scenario file. Definition picks the workflow by name.
	Definitions string `yaml:"definitions,omitempty"`
	Definition  string `yaml:"definition,omitempty"`

	// Failures injects a failure reason per task id.
	Failures map[string]string `yaml:"failures,omitempty"`

	// Journal also writes the run to an in-memory store and replays it.
	Journal bool `yaml:"journal,omitempty"`

	// WorkflowID is used when the definition has no id, so traces stay
	// deterministic. Defaults to "wf-test".
	WorkflowID string `yaml:"workflow_id,omitempty"`

	// Assertions validate the final state and the trace.
	// Supported types: task_status, overall_progress, update_count, terminal_count
	Assertions []Assertion `yaml:"assertions"`
}

// WorkflowSpec is an inline workflow definition. It is checked against the
// same schema as CUE definition files.
type WorkflowSpec struct {
	ID    string     `yaml:"id,omitempty" json:"id,omitempty"`
	Title string     `yaml:"title" json:"title"`
	Tasks []TaskSpec `yaml:"tasks" json:"tasks"`
}

// TaskSpec is one task of an inline workflow.
type TaskSpec struct {
	ID      string `yaml:"id" json:"id"`
	Title   string `yaml:"title" json:"title"`
	Trivial bool   `yaml:"trivial,omitempty" json:"trivial,omitempty"`
	Fail    string `yaml:"fail,omitempty" json:"fail,omitempty"`
}

// Assertion validates the final state or the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "task_status": task Task ends in Status
	// - "overall_progress": final overall progress equals Value
	// - "update_count": the run emitted exactly Count updates
	// - "terminal_count": exactly Count updates moved a task to a terminal status
	Type string `yaml:"type"`

	// Task is a task id (used by task_status).
	Task string `yaml:"task,omitempty"`

	// Status is the expected task status (used by task_status).
	Status string `yaml:"status,omitempty"`

	// Value is the expected overall progress (used by overall_progress).
	Value *int64 `yaml:"value,omitempty"`

	// Count is the expected number of updates (update_count, terminal_count).
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTaskStatus      = "task_status"
	AssertOverallProgress = "overall_progress"
	AssertUpdateCount     = "update_count"
	AssertTerminalCount   = "terminal_count"
)

// LoadScenario reads and parses a scenario YAML file. A relative
// definitions directory is resolved against the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the definitions directory relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Definitions != "" && !filepath.IsAbs(scenario.Definitions) && basePath != "" {
		scenario.Definitions = filepath.Join(basePath, scenario.Definitions)
	}
	if scenario.Definitions != "" {
		if _, err := os.Stat(scenario.Definitions); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: definitions directory not found: %s", scenario.Definitions)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Workflow == nil && s.Definitions == "":
		return fmt.Errorf("one of workflow or definitions is required")
	case s.Workflow != nil && s.Definitions != "":
		return fmt.Errorf("workflow and definitions are mutually exclusive")
	case s.Definitions != "" && s.Definition == "":
		return fmt.Errorf("definition is required with definitions")
	case s.Workflow == nil && s.Definition != "" && s.Definitions == "":
		return fmt.Errorf("definition requires definitions")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}

	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTaskStatus:
		if a.Task == "" || a.Status == "" {
			return fmt.Errorf("%s requires task and status", a.Type)
		}
	case AssertOverallProgress:
		if a.Value == nil {
			return fmt.Errorf("%s requires value", a.Type)
		}
	case AssertUpdateCount, AssertTerminalCount:
		if a.Count == nil {
			return fmt.Errorf("%s requires count", a.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
