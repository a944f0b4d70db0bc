package model

import (
	"fmt"
	"strings"
	"time"
)

// Claim is a snapshot of a single billing submission as returned by the repository.
// Callers never mutate a fetched Claim; a fresh copy is fetched instead.
type Claim struct {
	ID               string        `json:"id"`
	Name             string        `json:"name,omitempty"`
	Status           ClaimStatus   `json:"status"`
	InternalState    int           `json:"internal_state,omitempty"`
	Type             ClaimType     `json:"claim_type"`
	ClaimedAmount    float64       `json:"claimed_amount"`
	ReceivedAmount   float64       `json:"received_amount"`
	InsurerRef       string        `json:"insurer_ref,omitempty"`
	PatientRef       string        `json:"patient_ref,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	DiagnosisCodes   []string      `json:"diagnosis_codes,omitempty"`
	Remark           string        `json:"remark,omitempty"`            // Free-text remark, often the failure reason
	ErrorDescription string        `json:"error_description,omitempty"` // Set by the clearinghouse on rejection
	Lines            []ServiceLine `json:"service_lines"`
}

// ServiceLine is one billed procedure within a claim
type ServiceLine struct {
	ID                string    `json:"id,omitempty"`
	ClaimID           string    `json:"claim_id,omitempty"` // Back-reference only
	Number            int       `json:"number"`             // 1-based display order
	ProcedureCode     string    `json:"procedure_code"`
	Description       string    `json:"description,omitempty"`
	Modifiers         []string  `json:"modifiers,omitempty"` // Order preserved for display, ignored for matching
	Charge            float64   `json:"charge"`
	ServiceDate       time.Time `json:"service_date"`
	ServiceDateTo     time.Time `json:"service_date_to,omitempty"`
	PlaceOfService    int       `json:"place_of_service,omitempty"`
	Units             float64   `json:"units,omitempty"`
	UnitKind          UnitKind  `json:"unit_kind,omitempty"`
	DiagnosisPointers []int     `json:"diagnosis_pointers,omitempty"`
}

// ClaimStatus is the repository status code of a claim
type ClaimStatus int

const (
	StatusDraft      ClaimStatus = 153940000
	StatusSubmitted  ClaimStatus = 153940001
	StatusProcessing ClaimStatus = 153940002
	StatusApproved   ClaimStatus = 153940003
	StatusRejected   ClaimStatus = 153940004
	StatusPaid       ClaimStatus = 153940005
	StatusFailed     ClaimStatus = 153940006
	StatusPending    ClaimStatus = 153940007
	StatusOnHold     ClaimStatus = 153940008
)

// InternalStateError marks a claim the clearinghouse pipeline errored on
const InternalStateError = 153940008

var statusNames = map[ClaimStatus]string{
	StatusDraft:      "Draft",
	StatusSubmitted:  "Submitted",
	StatusProcessing: "Processing",
	StatusApproved:   "Approved",
	StatusRejected:   "Rejected",
	StatusPaid:       "Paid",
	StatusFailed:     "Failed",
	StatusPending:    "Pending",
	StatusOnHold:     "On Hold",
}

func (s ClaimStatus) String() string {
	if s == 0 {
		return "Unknown"
	}
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status %d", int(s))
}

// ParseStatus accepts either a status name ("Paid") or its numeric code
func ParseStatus(v string) (ClaimStatus, bool) {
	v = strings.TrimSpace(v)
	for code, name := range statusNames {
		if strings.EqualFold(name, v) {
			return code, true
		}
	}
	var code int
	if _, err := fmt.Sscanf(v, "%d", &code); err == nil {
		if _, ok := statusNames[ClaimStatus(code)]; ok {
			return ClaimStatus(code), true
		}
	}
	return 0, false
}

// ClaimType classifies the billing form / benefit of a claim
type ClaimType string

const (
	ClaimTypeProfessional  ClaimType = "professional"
	ClaimTypeInstitutional ClaimType = "institutional"
	ClaimTypePharmacy      ClaimType = "pharmacy" // NCPDP
	ClaimTypeHospice       ClaimType = "hospice"
	ClaimTypeDME           ClaimType = "dme"
	ClaimTypeUnknown       ClaimType = ""
)

// Repository option-set codes for claim types
var claimTypeCodes = map[int]ClaimType{
	916310000: ClaimTypeProfessional,
	916310001: ClaimTypeInstitutional,
	916310002: ClaimTypePharmacy,
	916310003: ClaimTypeHospice,
	916310004: ClaimTypeDME,
}

// ClaimTypeFromCode maps a repository option-set code to a ClaimType
func ClaimTypeFromCode(code int) ClaimType {
	return claimTypeCodes[code]
}

// Code returns the repository option-set code, or 0 if unknown
func (t ClaimType) Code() int {
	for code, ct := range claimTypeCodes {
		if ct == t {
			return code
		}
	}
	return 0
}

// UnitKind says whether ServiceLine.Units counts days or units
type UnitKind string

const (
	UnitKindDays  UnitKind = "days"
	UnitKindUnits UnitKind = "units"
)

var unitKindCodes = map[int]UnitKind{
	153940000: UnitKindDays,
	153940001: UnitKindUnits,
}

// UnitKindFromCode maps a repository days-or-units code
func UnitKindFromCode(code int) UnitKind {
	return unitKindCodes[code]
}

var placeOfServiceNames = map[int]string{
	11: "Office",
	12: "Home",
	21: "Inpatient Hospital",
	22: "On Campus-Outpatient Hospital",
	23: "Emergency Room - Hospital",
	24: "Ambulatory Surgical Center",
	31: "Skilled Nursing Facility",
	32: "Nursing Facility",
	33: "Custodial Care Facility",
	41: "Ambulance - Land",
	42: "Ambulance - Air or Water",
	49: "Independent Clinic",
	50: "Federally Qualified Health Center",
	51: "Inpatient Psychiatric Facility",
	52: "Psychiatric Facility-Partial Hospitalization",
	53: "Community Mental Health Center",
	54: "Intermediate Care Facility/Individuals with Intellectual Disabilities",
	55: "Residential Substance Abuse Treatment Facility",
	56: "Psychiatric Residential Treatment Center",
	57: "Non-residential Substance Abuse Treatment Facility",
	60: "Mass Immunization Center",
	61: "Comprehensive Inpatient Rehabilitation Facility",
	62: "Comprehensive Outpatient Rehabilitation Facility",
	65: "End-Stage Renal Disease Treatment Facility",
	71: "Public Health Clinic",
	72: "Rural Health Clinic",
	81: "Independent Laboratory",
	99: "Other Place of Service",
}

// PlaceOfServiceName returns a human-readable place of service
func PlaceOfServiceName(code int) string {
	if code == 0 {
		return "Unknown"
	}
	if name, ok := placeOfServiceNames[code]; ok {
		return name
	}
	return fmt.Sprintf("POS %d", code)
}

// ParseModifiers merges colon-separated modifier fields ("GW:59", "KX") in order
func ParseModifiers(fields ...string) []string {
	var mods []string
	for _, f := range fields {
		for _, m := range strings.Split(f, ":") {
			if m = strings.TrimSpace(m); m != "" {
				mods = append(mods, m)
			}
		}
	}
	return mods
}

// HasModifier reports whether the line carries the modifier (case-insensitive)
func (l ServiceLine) HasModifier(mod string) bool {
	for _, m := range l.Modifiers {
		if strings.EqualFold(m, mod) {
			return true
		}
	}
	return false
}

// Outcome derives the adjudication outcome of a historical claim
func (c Claim) Outcome() Outcome {
	switch {
	case c.Status == StatusFailed || c.Status == StatusRejected:
		return OutcomeFail
	case c.InternalState == InternalStateError:
		return OutcomeFail
	case c.ErrorDescription != "":
		return OutcomeFail
	case strings.Contains(strings.ToLower(c.Remark), "fail"):
		return OutcomeFail
	case c.Status == StatusApproved || c.Status == StatusPaid:
		return OutcomePass
	default:
		return OutcomeUnknown
	}
}

// ProcedureCodes returns the distinct procedure codes in line order
func (c Claim) ProcedureCodes() []string {
	seen := make(map[string]bool)
	var codes []string
	for _, l := range c.Lines {
		code := strings.ToUpper(strings.TrimSpace(l.ProcedureCode))
		if code != "" && !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes
}

// Modifiers returns the distinct modifiers across all lines, upper-cased
func (c Claim) Modifiers() []string {
	seen := make(map[string]bool)
	var mods []string
	for _, l := range c.Lines {
		for _, m := range l.Modifiers {
			m = strings.ToUpper(m)
			if !seen[m] {
				seen[m] = true
				mods = append(mods, m)
			}
		}
	}
	return mods
}

// TotalUnits sums units over all lines
func (c Claim) TotalUnits() float64 {
	var total float64
	for _, l := range c.Lines {
		total += l.Units
	}
	return total
}

// ServicePeriod returns the earliest and latest service dates on the claim
func (c Claim) ServicePeriod() (from, to time.Time) {
	for _, l := range c.Lines {
		if l.ServiceDate.IsZero() {
			continue
		}
		if from.IsZero() || l.ServiceDate.Before(from) {
			from = l.ServiceDate
		}
		end := l.ServiceDate
		if l.ServiceDateTo.After(end) {
			end = l.ServiceDateTo
		}
		if end.After(to) {
			to = end
		}
	}
	return from, to
}

// Clone returns a deep copy so the caller can work on it without touching the snapshot
func (c Claim) Clone() Claim {
	out := c
	out.DiagnosisCodes = append([]string(nil), c.DiagnosisCodes...)
	if c.Lines != nil {
		out.Lines = make([]ServiceLine, len(c.Lines))
		for i, l := range c.Lines {
			l.Modifiers = append([]string(nil), l.Modifiers...)
			l.DiagnosisPointers = append([]int(nil), l.DiagnosisPointers...)
			out.Lines[i] = l
		}
	}
	return out
}
