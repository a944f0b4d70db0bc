package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/claimguard/internal/errs"
	"github.com/ppiankov/claimguard/internal/model"
)

// MemoryTransport serves claims from memory. It backs mock mode and tests.
type MemoryTransport struct {
	mu     sync.RWMutex
	claims []model.Claim
}

// NewMemoryTransport copies the given claims
func NewMemoryTransport(claims ...model.Claim) *MemoryTransport {
	t := &MemoryTransport{}
	for _, c := range claims {
		t.claims = append(t.claims, c.Clone())
	}
	return t
}

// LoadFixtures reads a JSON file holding either a list of claims or
// {"as_of": ..., "claims": [...]}. When as_of is set, every timestamp is shifted
// so the fixtures look as recent today as they did on that date.
func LoadFixtures(path string) (*MemoryTransport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var wrapped struct {
		AsOf   time.Time     `json:"as_of"`
		Claims []model.Claim `json:"claims"`
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(data, &wrapped.Claims)
	} else {
		err = json.Unmarshal(data, &wrapped)
	}
	if err != nil {
		return nil, fmt.Errorf("decode fixtures %s: %w", path, err)
	}

	var shift time.Duration
	if !wrapped.AsOf.IsZero() {
		shift = time.Since(wrapped.AsOf).Truncate(24 * time.Hour)
	}
	claims := wrapped.Claims
	for i := range claims {
		claims[i].CreatedAt = shiftTime(claims[i].CreatedAt, shift)
		for j := range claims[i].Lines {
			line := &claims[i].Lines[j]
			if line.Number == 0 {
				line.Number = j + 1
			}
			line.ClaimID = claims[i].ID
			line.ServiceDate = shiftTime(line.ServiceDate, shift)
			line.ServiceDateTo = shiftTime(line.ServiceDateTo, shift)
		}
	}
	return NewMemoryTransport(claims...), nil
}

func shiftTime(t time.Time, d time.Duration) time.Time {
	if t.IsZero() || d == 0 {
		return t
	}
	return t.Add(d)
}

// Name returns the transport name
func (t *MemoryTransport) Name() string {
	return "memory"
}

// Add stores or replaces a claim
func (t *MemoryTransport) Add(c model.Claim) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.claims {
		if t.claims[i].ID == c.ID {
			t.claims[i] = c.Clone()
			return
		}
	}
	t.claims = append(t.claims, c.Clone())
}

// Fetch matches on id or name, case-insensitively
func (t *MemoryTransport) Fetch(ctx context.Context, claimID string) (model.Claim, error) {
	if err := ctx.Err(); err != nil {
		return model.Claim{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.claims {
		if strings.EqualFold(c.ID, claimID) || (c.Name != "" && strings.EqualFold(c.Name, claimID)) {
			return c.Clone(), nil
		}
	}
	return model.Claim{}, errs.E(errs.KindNotFound, "gateway.fetch", fmt.Errorf("no claim matches %q", claimID)).WithClaim(claimID)
}

// Query evaluates the predicate tree directly against stored claims, newest first
func (t *MemoryTransport) Query(ctx context.Context, q model.StructuredQuery, limit int) ([]model.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	skip := make(map[string]bool, len(q.Exclude))
	for _, id := range q.Exclude {
		skip[strings.ToLower(id)] = true
	}

	t.mu.RLock()
	var out []model.Claim
	for _, c := range t.claims {
		if skip[strings.ToLower(c.ID)] || !q.Window.Contains(c.CreatedAt) {
			continue
		}
		if q.Where.Op != "" {
			ok, err := Match(q.Where, c)
			if err != nil {
				t.mu.RUnlock()
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, c.Clone())
	}
	t.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Match evaluates a predicate against a claim. Line fields match when any line matches.
func Match(p model.Predicate, c model.Claim) (bool, error) {
	switch p.Op {
	case model.OpAnd:
		for _, a := range p.Args {
			ok, err := Match(a, c)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case model.OpOr:
		for _, a := range p.Args {
			ok, err := Match(a, c)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case model.OpNot:
		if len(p.Args) != 1 {
			return false, fmt.Errorf("not takes one argument")
		}
		ok, err := Match(p.Args[0], c)
		return !ok, err
	}

	f, ok := model.LookupField(p.Field)
	if !ok {
		return false, fmt.Errorf("unknown field %q", p.Field)
	}
	want, err := model.NormalizeValue(f, p.Op, p.Value)
	if err != nil {
		return false, err
	}
	for _, have := range fieldValues(f, c) {
		if compare(p.Op, have, want) {
			return true, nil
		}
	}
	return false, nil
}

func fieldValues(f model.Field, c model.Claim) []interface{} {
	switch f.Name {
	case "status":
		return []interface{}{int(c.Status)}
	case "claim_type":
		return []interface{}{c.Type.Code()}
	case "claimed_amount":
		return []interface{}{c.ClaimedAmount}
	case "received_amount":
		return []interface{}{c.ReceivedAmount}
	case "insurer":
		return []interface{}{c.InsurerRef}
	case "patient":
		return []interface{}{c.PatientRef}
	case "created_at":
		return []interface{}{c.CreatedAt}
	case "remark":
		return []interface{}{c.Remark}
	case "error_description":
		return []interface{}{c.ErrorDescription}
	}

	var out []interface{}
	for _, l := range c.Lines {
		switch f.Name {
		case "procedure_code":
			out = append(out, l.ProcedureCode)
		case "modifier":
			for _, m := range l.Modifiers {
				out = append(out, m)
			}
		case "charge":
			out = append(out, l.Charge)
		case "place_of_service":
			out = append(out, l.PlaceOfService)
		case "units":
			out = append(out, l.Units)
		case "service_date":
			out = append(out, l.ServiceDate)
		case "diagnosis_pointer":
			for _, p := range l.DiagnosisPointers {
				out = append(out, fmt.Sprint(p))
			}
		}
	}
	return out
}

func compare(op model.Op, have, want interface{}) bool {
	switch op {
	case model.OpIn:
		for _, w := range want.([]interface{}) {
			if compare(model.OpEq, have, w) {
				return true
			}
		}
		return false
	case model.OpContains:
		h, _ := have.(string)
		w, _ := want.(string)
		return strings.Contains(strings.ToLower(h), strings.ToLower(w))
	}

	c, ok := order(have, want)
	if !ok {
		return false
	}
	switch op {
	case model.OpEq:
		return c == 0
	case model.OpNe:
		return c != 0
	case model.OpGt:
		return c > 0
	case model.OpGte:
		return c >= 0
	case model.OpLt:
		return c < 0
	case model.OpLte:
		return c <= 0
	}
	return false
}

// order returns -1, 0 or 1 comparing a to b of the same kind
func order(a, b interface{}) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(strings.ToLower(x), strings.ToLower(y)), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		return cmpFloat(x, y), true
	case int:
		y, ok := b.(int)
		if !ok {
			return 0, false
		}
		return cmpFloat(float64(x), float64(y)), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
