package gateway

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/claimguard/internal/model"
)

// Repository column names shared by both live transports
const (
	colClaimID        = "smvs_claimid"
	colClaimName      = "smvs_name"
	colClaimStatus    = "smvs_claimstatus"
	colInternalState  = "smvs_internal_state"
	colClaimType      = "smvs_claim_type"
	colClaimedAmount  = "smvs_claimed_amount"
	colReceivedAmount = "smvs_recieved_amount"
	colInsurer        = "_smvs_insuranceorganization_value"
	colPatient        = "_smvs_patientid_value"
	colCreatedOn      = "createdon"
	colRemark         = "smvs_remark"
	colErrorDesc      = "smvs_error_description"
	colDiagnosisCodes = "smvs_diagnosiscodes"

	colLineID         = "smvs_servicelineid"
	colLineName       = "smvs_name"
	colLineClaim      = "_smvs_claimid_value"
	colProcedure      = "smvs_proceduresservicesorsupplies"
	colLineDesc       = "smvs_additional_service_line_information"
	colModifiers      = "smvs_modifiers"
	colAddlModifiers  = "smvs_additional_modifiers"
	colCharges        = "smvs_charges"
	colServiceFrom    = "smvs_datesofservice"
	colServiceTo      = "smvs_dateofserviceto"
	colPlaceOfService = "smvs_placeofservice"
	colUnits          = "smvs_dayorunitvalue"
	colUnitKind       = "smvs_daysorunits"
	colDiagPointer    = "smvs_diagnosispointer"
)

// row is one decoded record. Values arrive as JSON scalars; numeric columns are sometimes strings.
type row map[string]interface{}

func (r row) str(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func (r row) num(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		s := strings.TrimPrefix(strings.TrimSpace(v), "$")
		s = strings.ReplaceAll(s, ",", "")
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	return 0
}

func (r row) integer(key string) int {
	return int(r.num(key))
}

func (r row) time(key string) time.Time {
	t, _ := model.ParseTime(r.str(key))
	return t
}

func claimFromRow(r row) model.Claim {
	return model.Claim{
		ID:               r.str(colClaimID),
		Name:             r.str(colClaimName),
		Status:           model.ClaimStatus(r.integer(colClaimStatus)),
		InternalState:    r.integer(colInternalState),
		Type:             model.ClaimTypeFromCode(r.integer(colClaimType)),
		ClaimedAmount:    r.num(colClaimedAmount),
		ReceivedAmount:   r.num(colReceivedAmount),
		InsurerRef:       r.str(colInsurer),
		PatientRef:       r.str(colPatient),
		CreatedAt:        r.time(colCreatedOn),
		Remark:           r.str(colRemark),
		ErrorDescription: r.str(colErrorDesc),
		DiagnosisCodes:   splitList(r.str(colDiagnosisCodes)),
	}
}

func lineFromRow(r row) model.ServiceLine {
	var pointers []int
	for _, p := range splitList(r.str(colDiagPointer)) {
		if n, err := strconv.Atoi(p); err == nil {
			pointers = append(pointers, n)
		}
	}
	return model.ServiceLine{
		ID:                r.str(colLineID),
		ClaimID:           r.str(colLineClaim),
		ProcedureCode:     r.str(colProcedure),
		Description:       r.str(colLineDesc),
		Modifiers:         model.ParseModifiers(r.str(colModifiers), r.str(colAddlModifiers)),
		Charge:            r.num(colCharges),
		ServiceDate:       r.time(colServiceFrom),
		ServiceDateTo:     r.time(colServiceTo),
		PlaceOfService:    r.integer(colPlaceOfService),
		Units:             r.num(colUnits),
		UnitKind:          model.UnitKindFromCode(r.integer(colUnitKind)),
		DiagnosisPointers: pointers,
	}
}

// linesFromRows orders lines by service date and numbers them from 1
func linesFromRows(rows []row) []model.ServiceLine {
	lines := make([]model.ServiceLine, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, lineFromRow(r))
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].ServiceDate.Before(lines[j].ServiceDate)
	})
	for i := range lines {
		lines[i].Number = i + 1
	}
	return lines
}

// splitList splits "A:B", "A,B" or "A; B" into trimmed items
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == ',' || r == ';'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// decodeRows accepts a bare list or an object wrapping the list under value, results or items
func decodeRows(data []byte) ([]row, error) {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var rows []row
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("decode rows: %w", err)
		}
		return rows, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	for _, key := range []string{"value", "results", "items"} {
		raw, ok := wrapped[key]
		if !ok {
			continue
		}
		var rows []row
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("decode rows: no value, results or items list in response")
}
