// Package correct applies the fixed correction rule catalog to a claim and
// reports, rule by rule, what was changed, skipped or not applicable.
package correct

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// ActionType names one of the fixed correction effects
type ActionType string

const (
	ActionAddModifier        ActionType = "add_modifier"
	ActionSetPlaceOfService  ActionType = "set_place_of_service"
	ActionSetDiagnosisPtr    ActionType = "set_diagnosis_pointer"
	ActionSetUnits           ActionType = "set_units"
	ActionAddRepeatModifier  ActionType = "add_repeat_modifier"
	ActionUppercaseModifiers ActionType = "uppercase_modifiers"
	ActionFlag               ActionType = "flag"
)

// Line fields a line_missing condition can name
const (
	LinePlaceOfService   = "place_of_service"
	LineDiagnosisPointer = "diagnosis_pointer"
	LineUnits            = "units"
	LineServiceDate      = "service_date"
)

// Catalog is the versioned, read-only rule set
type Catalog struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// Rule pairs an applicability predicate with an effect
type Rule struct {
	ID          string    `yaml:"id"`
	Description string    `yaml:"description"`
	When        Condition `yaml:"when"`
	Action      Action    `yaml:"action"`
}

// Condition is a conjunction; every set field must hold
type Condition struct {
	ClaimTypes          []string `yaml:"claim_types,omitempty"`
	Field               string   `yaml:"field,omitempty"` // remark | error_description | name
	Contains            string   `yaml:"contains,omitempty"`
	ProcedureCodes      []string `yaml:"procedure_codes,omitempty"` // restricts line conditions to these codes
	LineMissingModifier string   `yaml:"line_missing_modifier,omitempty"`
	LineMissing         string   `yaml:"line_missing,omitempty"`
	DuplicateProcedure  bool     `yaml:"duplicate_procedure,omitempty"`
	MalformedModifiers  bool     `yaml:"malformed_modifiers,omitempty"`
	NoServiceLines      bool     `yaml:"no_service_lines,omitempty"`
}

func (c Condition) empty() bool {
	return len(c.ClaimTypes) == 0 && c.Field == "" && c.Contains == "" && len(c.ProcedureCodes) == 0 &&
		c.LineMissingModifier == "" && c.LineMissing == "" && !c.DuplicateProcedure &&
		!c.MalformedModifiers && !c.NoServiceLines
}

// Action is the effect of a rule
type Action struct {
	Type  ActionType `yaml:"type"`
	Value string     `yaml:"value,omitempty"`
}

// DefaultCatalog returns the embedded catalog
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultRules)
}

// LoadCatalog reads a catalog file; an empty path selects the embedded catalog
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule catalog: %w", err)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// ParseCatalog decodes and validates a YAML catalog. Unknown keys are rejected.
func ParseCatalog(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cat Catalog
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("failed to parse rule catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate checks the catalog is well formed
func (c *Catalog) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return errors.New("rule catalog has no version")
	}
	seen := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule %d has no id", i+1)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %s", r.ID)
		}
		seen[r.ID] = true

		if r.When.empty() {
			return fmt.Errorf("rule %s has no condition", r.ID)
		}
		if (r.When.Field == "") != (r.When.Contains == "") {
			return fmt.Errorf("rule %s: field and contains go together", r.ID)
		}
		switch r.When.Field {
		case "", "remark", "error_description", "name":
		default:
			return fmt.Errorf("rule %s: unsupported field %q", r.ID, r.When.Field)
		}
		switch r.When.LineMissing {
		case "", LinePlaceOfService, LineDiagnosisPointer, LineUnits, LineServiceDate:
		default:
			return fmt.Errorf("rule %s: unsupported line_missing %q", r.ID, r.When.LineMissing)
		}
		if err := r.Action.validate(); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	return nil
}

func (a Action) validate() error {
	switch a.Type {
	case ActionAddModifier, ActionAddRepeatModifier:
		if len(strings.TrimSpace(a.Value)) != 2 {
			return fmt.Errorf("%s needs a two-character modifier, got %q", a.Type, a.Value)
		}
	case ActionSetPlaceOfService:
		if a.Value != "" {
			if _, err := strconv.Atoi(a.Value); err != nil {
				return fmt.Errorf("%s value must be a numeric code", a.Type)
			}
		}
	case ActionSetUnits:
		if a.Value != "" {
			if v, err := strconv.ParseFloat(a.Value, 64); err != nil || v <= 0 {
				return fmt.Errorf("%s value must be a positive number", a.Type)
			}
		}
	case ActionSetDiagnosisPtr, ActionUppercaseModifiers:
	case ActionFlag:
		if a.Value == "" {
			return errors.New("flag needs a message")
		}
	default:
		return fmt.Errorf("unknown action %q", a.Type)
	}
	return nil
}
