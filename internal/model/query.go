package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Op is a predicate operator understood by every gateway transport
type Op string

const (
	OpAnd      Op = "and"
	OpOr       Op = "or"
	OpNot      Op = "not"
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
)

// IsLogical reports whether the operator combines child predicates
func (o Op) IsLogical() bool {
	return o == OpAnd || o == OpOr || o == OpNot
}

// Valid reports whether the operator is known
func (o Op) Valid() bool {
	switch o {
	case OpAnd, OpOr, OpNot, OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpContains:
		return true
	}
	return false
}

// Predicate is a node of the structured query tree.
// Logical nodes use Args, comparison nodes use Field and Value.
type Predicate struct {
	Op    Op          `json:"op"`
	Field string      `json:"field,omitempty"`
	Value interface{} `json:"value,omitempty"`
	Args  []Predicate `json:"args,omitempty"`
}

// Fields returns every field referenced in the tree, depth-first
func (p Predicate) Fields() []string {
	var out []string
	if p.Field != "" {
		out = append(out, p.Field)
	}
	for _, a := range p.Args {
		out = append(out, a.Fields()...)
	}
	return out
}

func (p Predicate) String() string {
	switch {
	case p.Op == OpNot && len(p.Args) == 1:
		return "not (" + p.Args[0].String() + ")"
	case p.Op.IsLogical():
		parts := make([]string, len(p.Args))
		for i, a := range p.Args {
			parts[i] = a.String()
		}
		return "(" + strings.Join(parts, " "+string(p.Op)+" ") + ")"
	default:
		return fmt.Sprintf("%s %s %v", p.Field, p.Op, p.Value)
	}
}

// TimeWindow bounds the created timestamp of comparison claims
type TimeWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// IsZero reports whether no bound is set
func (w TimeWindow) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

// Contains reports whether t falls within the window (inclusive)
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

// WindowLastDays returns the window ending at now and spanning the given days
func WindowLastDays(now time.Time, days int) TimeWindow {
	return TimeWindow{From: now.AddDate(0, 0, -days), To: now}
}

// StructuredQuery is the validated retrieval query handed to the gateway
type StructuredQuery struct {
	Where   Predicate  `json:"where"`
	Window  TimeWindow `json:"window"`
	Exclude []string   `json:"exclude,omitempty"` // Claim ids never returned
	Raw     string     `json:"raw,omitempty"`     // Reasoning output the query was parsed from
}

// FieldKind is the value type of a catalog field
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindTime   FieldKind = "time"
	KindCode   FieldKind = "code" // Option-set integer
)

// Field maps a logical query field to repository columns
type Field struct {
	Name   string
	Column string
	Kind   FieldKind
	Line   bool // Lives on the service line table
}

// Fields is the catalog of queryable fields. Queries referencing anything else are rejected.
var Fields = map[string]Field{
	"status":            {Name: "status", Column: "smvs_claimstatus", Kind: KindCode},
	"claim_type":        {Name: "claim_type", Column: "smvs_claim_type", Kind: KindCode},
	"claimed_amount":    {Name: "claimed_amount", Column: "smvs_claimed_amount", Kind: KindNumber},
	"received_amount":   {Name: "received_amount", Column: "smvs_recieved_amount", Kind: KindNumber},
	"insurer":           {Name: "insurer", Column: "_smvs_insuranceorganization_value", Kind: KindString},
	"patient":           {Name: "patient", Column: "_smvs_patientid_value", Kind: KindString},
	"created_at":        {Name: "created_at", Column: "createdon", Kind: KindTime},
	"remark":            {Name: "remark", Column: "smvs_remark", Kind: KindString},
	"error_description": {Name: "error_description", Column: "smvs_error_description", Kind: KindString},
	"procedure_code":    {Name: "procedure_code", Column: "smvs_proceduresservicesorsupplies", Kind: KindString, Line: true},
	"modifier":          {Name: "modifier", Column: "smvs_modifiers", Kind: KindString, Line: true},
	"charge":            {Name: "charge", Column: "smvs_charges", Kind: KindNumber, Line: true},
	"place_of_service":  {Name: "place_of_service", Column: "smvs_placeofservice", Kind: KindCode, Line: true},
	"units":             {Name: "units", Column: "smvs_dayorunitvalue", Kind: KindNumber, Line: true},
	"service_date":      {Name: "service_date", Column: "smvs_datesofservice", Kind: KindTime, Line: true},
	"diagnosis_pointer": {Name: "diagnosis_pointer", Column: "smvs_diagnosispointer", Kind: KindString, Line: true},
}

// LookupField resolves a field name, tolerating case and spaces
func LookupField(name string) (Field, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	f, ok := Fields[key]
	return f, ok
}

// Validate checks operators, arity and that every field is in the catalog.
// It does not require a field to be present; callers decide that.
func (p Predicate) Validate() error {
	if !p.Op.Valid() {
		return fmt.Errorf("unknown operator %q", p.Op)
	}
	if p.Op.IsLogical() {
		if p.Field != "" {
			return fmt.Errorf("%s node must not name a field", p.Op)
		}
		if p.Op == OpNot && len(p.Args) != 1 {
			return fmt.Errorf("not takes exactly one argument, got %d", len(p.Args))
		}
		if len(p.Args) == 0 {
			return fmt.Errorf("%s node has no arguments", p.Op)
		}
		for _, a := range p.Args {
			if err := a.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	if len(p.Args) > 0 {
		return fmt.Errorf("%s node must not have arguments", p.Op)
	}
	f, ok := LookupField(p.Field)
	if !ok {
		return fmt.Errorf("unknown field %q", p.Field)
	}
	if _, err := NormalizeValue(f, p.Op, p.Value); err != nil {
		return fmt.Errorf("field %s: %w", f.Name, err)
	}
	return nil
}

// NormalizeValue converts a decoded JSON value into the Go type matching the field kind:
// string, float64, int or time.Time. For OpIn the result is a []interface{} of those.
func NormalizeValue(f Field, op Op, v interface{}) (interface{}, error) {
	if op == OpIn {
		list, ok := v.([]interface{})
		if !ok {
			if strs, isStrs := v.([]string); isStrs {
				for _, s := range strs {
					list = append(list, s)
				}
				ok = true
			}
		}
		if !ok || len(list) == 0 {
			return nil, fmt.Errorf("in requires a non-empty list")
		}
		out := make([]interface{}, len(list))
		for i, item := range list {
			n, err := normalizeScalar(f, item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	if op == OpContains && f.Kind != KindString {
		return nil, fmt.Errorf("contains only applies to text fields")
	}
	return normalizeScalar(f, v)
}

func normalizeScalar(f Field, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, fmt.Errorf("missing value")
	}
	switch f.Kind {
	case KindString:
		switch x := v.(type) {
		case string:
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(x), nil
		}
	case KindNumber:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int:
			return float64(x), nil
		case string:
			n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err == nil {
				return n, nil
			}
		}
	case KindCode:
		switch x := v.(type) {
		case float64:
			return int(x), nil
		case int:
			return x, nil
		case string:
			if code, ok := codeFromName(f, x); ok {
				return code, nil
			}
		}
	case KindTime:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			if t, ok := ParseTime(x); ok {
				return t, nil
			}
		}
	}
	return nil, fmt.Errorf("value %v is not a valid %s", v, f.Kind)
}

func codeFromName(f Field, s string) (int, bool) {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n, true
	}
	switch f.Name {
	case "status":
		st, ok := ParseStatus(s)
		return int(st), ok
	case "claim_type":
		code := ClaimType(strings.ToLower(strings.TrimSpace(s))).Code()
		return code, code != 0
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ParseTime accepts the timestamp formats seen in repository rows and reasoning output
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
