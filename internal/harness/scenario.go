package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a declarative CRUD conformance test: collections to
// declare, records to seed, a sequence of gated operations, and
// assertions over the final state. The executed trace is compared
// against a golden snapshot.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Collections lists CUE definition files, resolved relative to
	// the scenario file.
	Collections []string `yaml:"collections"`

	// Setup seeds records as admin before the steps run.
	Setup []SetupStep `yaml:"setup,omitempty"`

	// Steps are the operations under test, in order.
	Steps []Step `yaml:"steps"`

	// Assertions check the final state after all steps.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SetupStep creates one record as admin. Ref names the record so
// later steps and actors can point at it.
type SetupStep struct {
	Collection string         `yaml:"collection"`
	Data       map[string]any `yaml:"data"`
	Ref        string         `yaml:"ref,omitempty"`
}

// Step is a single gated operation.
type Step struct {
	// Op is one of create, update, delete, get, list.
	Op         string `yaml:"op"`
	Collection string `yaml:"collection"`

	// Record is a setup ref naming the target (update/delete/get).
	Record string `yaml:"record,omitempty"`

	// Data is the payload (create) or patch (update).
	Data map[string]any `yaml:"data,omitempty"`

	// As names the actor: "admin", "anon" (default), or a setup ref
	// whose record becomes the authenticated identity.
	As string `yaml:"as,omitempty"`

	// List controls.
	Filter string `yaml:"filter,omitempty"`
	Sort   string `yaml:"sort,omitempty"`

	// Expand names relation fields to resolve.
	Expand []string `yaml:"expand,omitempty"`

	// Ref names a created record for later steps.
	Ref string `yaml:"ref,omitempty"`

	// Expect describes the outcome; absent means success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes a step's required outcome.
type Expect struct {
	// Error is the expected error class: "forbidden", "validation",
	// "unique", "not_found", "integrity". Empty means success.
	Error string `yaml:"error,omitempty"`

	// Count is the expected item count for list steps.
	Count *int `yaml:"count,omitempty"`
}

// Assertion checks the final state of one record.
type Assertion struct {
	// Type is "record" (fields subset-match) or "absent" (the record
	// no longer exists).
	Type string `yaml:"type"`

	// Record is the setup/step ref of the target.
	Record string `yaml:"record"`

	// Fields are expected values; subset match.
	Fields map[string]any `yaml:"fields,omitempty"`
}

const (
	AssertRecord = "record"
	AssertAbsent = "absent"
)

// Step op names.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpGet    = "get"
	OpList   = "list"
)

// LoadScenario reads and validates a scenario YAML file. Unknown
// fields are rejected so typos fail loudly instead of silently
// skipping an assertion.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	refs := make(map[string]bool)
	for i, st := range s.Setup {
		if st.Collection == "" {
			return fmt.Errorf("setup[%d]: collection is required", i)
		}
		if st.Ref != "" {
			if refs[st.Ref] {
				return fmt.Errorf("setup[%d]: duplicate ref %q", i, st.Ref)
			}
			refs[st.Ref] = true
		}
	}

	for i, st := range s.Steps {
		switch st.Op {
		case OpCreate:
			if st.Data == nil {
				return fmt.Errorf("steps[%d]: create requires data", i)
			}
		case OpUpdate:
			if st.Record == "" || st.Data == nil {
				return fmt.Errorf("steps[%d]: update requires record and data", i)
			}
		case OpDelete, OpGet:
			if st.Record == "" {
				return fmt.Errorf("steps[%d]: %s requires record", i, st.Op)
			}
		case OpList:
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, st.Op)
		}
		if st.Collection == "" {
			return fmt.Errorf("steps[%d]: collection is required", i)
		}
		if st.Ref != "" {
			if refs[st.Ref] {
				return fmt.Errorf("steps[%d]: duplicate ref %q", i, st.Ref)
			}
			refs[st.Ref] = true
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertRecord:
			if a.Record == "" || len(a.Fields) == 0 {
				return fmt.Errorf("assertions[%d]: record assertion requires record and fields", i)
			}
		case AssertAbsent:
			if a.Record == "" {
				return fmt.Errorf("assertions[%d]: absent assertion requires record", i)
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
	}
	return nil
}
