package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a storefront contract test.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// User is the signed-in user the session belongs to.
	User string `yaml:"user"`

	// StoreID prefixes order numbers. Defaults to "SF".
	StoreID string `yaml:"store_id,omitempty"`

	// Flow contains the operations to run, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and stored state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// FlowStep is one operation of the flow.
type FlowStep struct {
	// Invoke names the operation, e.g. "cart.add".
	Invoke string `yaml:"invoke"`

	// Ref labels the address or order this step creates.
	Ref string `yaml:"ref,omitempty"`

	// Target is the ref (or raw id) of the address or order to act on.
	Target string `yaml:"target,omitempty"`

	// Args are the operation arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect specifies the expected outcome. Nil means the step must
	// succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Case is "ok" or an error kind such as "not_found".
	Case string `yaml:"case"`

	// Result contains expected result values. Subset match.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or the stored documents.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Action is the operation name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are the expected step arguments (trace_contains). Subset match.
	Args map[string]any `yaml:"args,omitempty"`

	// Count is the expected number of steps (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected operation order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Family is the document family to inspect (final_state): addresses,
	// cart, orders or checkout_sessions.
	Family string `yaml:"family,omitempty"`

	// Where selects exactly one document (final_state). The key "ref"
	// matches the document id bound to that ref.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts that no document matches Where (final_state).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
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
	if s.User == "" {
		return fmt.Errorf("user is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if _, ok := operations[step.Invoke]; !ok {
			return fmt.Errorf("flow[%d]: unknown operation %q", i, step.Invoke)
		}
		if step.Expect != nil && step.Expect.Case != "" && !knownCase(step.Expect.Case) {
			return fmt.Errorf("flow[%d]: unknown expected case %q", i, step.Expect.Case)
		}
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
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("trace_contains requires action")
		}
	case AssertTraceOrder:
		if len(a.Actions) < 2 {
			return fmt.Errorf("trace_order requires at least two actions")
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("trace_count requires action")
		}
		if a.Count < 0 {
			return fmt.Errorf("trace_count requires a non-negative count")
		}
	case AssertFinalState:
		if _, ok := families[a.Family]; !ok {
			return fmt.Errorf("final_state: unknown family %q", a.Family)
		}
		if len(a.Where) == 0 {
			return fmt.Errorf("final_state requires where")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
