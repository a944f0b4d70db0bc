package gateway

import (
	"testing"

	"github.com/ppiankov/claimguard/internal/model"
)

func TestSQLBuilder_Modifier(t *testing.T) {
	b := sqlBuilder{claimTable: "smvs_claim", lineTable: "smvs_serviceline"}
	sub := func(cond string) string {
		return "smvs_claimid IN (SELECT _smvs_claimid_value FROM smvs_serviceline WHERE " + cond + ")"
	}
	tests := []struct {
		name string
		p    model.Predicate
		want string
	}{
		{"eq", model.Predicate{Op: model.OpEq, Field: "modifier", Value: "GW"},
			sub("(smvs_modifiers LIKE '%GW%' OR smvs_additional_modifiers LIKE '%GW%')")},
		{"ne", model.Predicate{Op: model.OpNe, Field: "modifier", Value: "GW"},
			sub("NOT (smvs_modifiers LIKE '%GW%' OR smvs_additional_modifiers LIKE '%GW%')")},
		{"contains", model.Predicate{Op: model.OpContains, Field: "modifier", Value: "KX"},
			sub("(smvs_modifiers LIKE '%KX%' OR smvs_additional_modifiers LIKE '%KX%')")},
		{"in", model.Predicate{Op: model.OpIn, Field: "modifier", Value: []interface{}{"GW", "KX"}},
			sub("(smvs_modifiers LIKE '%GW%' OR smvs_additional_modifiers LIKE '%GW%' OR smvs_modifiers LIKE '%KX%' OR smvs_additional_modifiers LIKE '%KX%')")},
		{"in other field", model.Predicate{Op: model.OpIn, Field: "procedure_code", Value: []interface{}{"T2042", "G0299"}},
			sub("smvs_proceduresservicesorsupplies IN ('T2042', 'G0299')")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.predicate(tt.p)
			if err != nil {
				t.Fatalf("predicate: %v", err)
			}
			if got != tt.want {
				t.Errorf("predicate =\n  %s\nwant\n  %s", got, tt.want)
			}
		})
	}
}

func TestODataBuilder_Modifier(t *testing.T) {
	b := odataBuilder{lineNavigation: "smvs_claim_smvs_serviceline"}
	lines := func(cond string) string {
		return "smvs_claim_smvs_serviceline/any(l:" + cond + ")"
	}
	tests := []struct {
		name string
		p    model.Predicate
		want string
	}{
		{"eq", model.Predicate{Op: model.OpEq, Field: "modifier", Value: "GW"},
			lines("(contains(l/smvs_modifiers,'GW') or contains(l/smvs_additional_modifiers,'GW'))")},
		{"contains", model.Predicate{Op: model.OpContains, Field: "modifier", Value: "KX"},
			lines("(contains(l/smvs_modifiers,'KX') or contains(l/smvs_additional_modifiers,'KX'))")},
		{"in", model.Predicate{Op: model.OpIn, Field: "modifier", Value: []interface{}{"GW", "KX"}},
			lines("(contains(l/smvs_modifiers,'GW') or contains(l/smvs_additional_modifiers,'GW') or contains(l/smvs_modifiers,'KX') or contains(l/smvs_additional_modifiers,'KX'))")},
		{"in other field", model.Predicate{Op: model.OpIn, Field: "procedure_code", Value: []interface{}{"T2042"}},
			lines("(l/smvs_proceduresservicesorsupplies eq 'T2042')")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.predicate(tt.p)
			if err != nil {
				t.Fatalf("predicate: %v", err)
			}
			if got != tt.want {
				t.Errorf("predicate =\n  %s\nwant\n  %s", got, tt.want)
			}
		})
	}
}
