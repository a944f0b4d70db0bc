package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/claimguard/internal/correct"
	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/errs"
	"github.com/ppiankov/claimguard/internal/gateway"
	"github.com/ppiankov/claimguard/internal/model"
	"github.com/ppiankov/claimguard/internal/reasoning"
)

const hospiceQuery = `{"where": {"op": "and", "args": [
	{"op": "eq", "field": "claim_type", "value": "hospice"},
	{"op": "eq", "field": "procedure_code", "value": "T2042"}
]}, "window_days": 30}`

func hospiceClaim(id string, status model.ClaimStatus, daysAgo int, mods ...string) model.Claim {
	created := time.Now().AddDate(0, 0, -daysAgo)
	return model.Claim{
		ID:             id,
		Name:           strings.ToUpper(id),
		Status:         status,
		Type:           model.ClaimTypeHospice,
		ClaimedAmount:  400,
		CreatedAt:      created,
		DiagnosisCodes: []string{"C34.90"},
		Lines: []model.ServiceLine{
			{Number: 1, ProcedureCode: "T2042", Modifiers: mods, Charge: 250, ServiceDate: created, PlaceOfService: 12, Units: 1, DiagnosisPointers: []int{1}},
			{Number: 2, ProcedureCode: "G0299", Modifiers: mods, Charge: 150, ServiceDate: created, PlaceOfService: 12, Units: 1, DiagnosisPointers: []int{1}},
		},
	}
}

func withRemark(c model.Claim, remark string) model.Claim {
	c.Remark = remark
	return c
}

// scenario is a target hospice claim without GW plus five comparison claims, three failed for it
func scenario() *gateway.MemoryTransport {
	return gateway.NewMemoryTransport(
		hospiceClaim("target", model.StatusSubmitted, 1),
		withRemark(hospiceClaim("c-1", model.StatusFailed, 3), "Missing modifier GW"),
		hospiceClaim("c-2", model.StatusPaid, 4, "GW"),
		withRemark(hospiceClaim("c-3", model.StatusFailed, 5), "Missing modifier GW"),
		hospiceClaim("c-4", model.StatusPaid, 6, "GW"),
		withRemark(hospiceClaim("c-5", model.StatusFailed, 7), "Missing modifier GW"),
		hospiceClaim("old", model.StatusFailed, 90),
	)
}

// countingReasoner answers every query prompt with reply
func countingReasoner(reply string, calls *int32) reasoning.Service {
	return reasoning.ServiceFunc(func(_ context.Context, req reasoning.Request) (*reasoning.Response, error) {
		atomic.AddInt32(calls, 1)
		return reasoning.Parse(req.Shape, reply), nil
	})
}

// brokenTransport fails every call
type brokenTransport struct {
	name  string
	calls int32
}

func (b *brokenTransport) Name() string { return b.name }

func (b *brokenTransport) Fetch(context.Context, string) (model.Claim, error) {
	atomic.AddInt32(&b.calls, 1)
	return model.Claim{}, errors.New("connection refused")
}

func (b *brokenTransport) Query(context.Context, model.StructuredQuery, int) ([]model.Claim, error) {
	atomic.AddInt32(&b.calls, 1)
	return nil, errors.New("connection refused")
}

func newEngine(t *testing.T, repo gateway.Repository, reasoner reasoning.Service) *Engine {
	t.Helper()
	cat, err := correct.DefaultCatalog()
	if err != nil {
		t.Fatal(err)
	}
	e, err := New(Options{
		Repository: repo,
		Reasoner:   reasoner,
		Catalog:    cat,
		Engine:     model.DefaultConfig().Engine,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestEngine_Predict_MissingModifierScenario(t *testing.T) {
	var calls int32
	e := newEngine(t, gateway.New(time.Second, nil, scenario()), countingReasoner(hospiceQuery, &calls))

	result, err := e.Predict(context.Background(), "target", criteria.Request{})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	if result.Outcome != model.OutcomeFail {
		t.Errorf("outcome = %s, want FAIL", result.Outcome)
	}
	if result.Confidence < 0.6 {
		t.Errorf("confidence = %v, want >= 0.6", result.Confidence)
	}
	if len(result.Reasons) == 0 || !strings.Contains(result.Reasons[0], "Missing Modifier GW") {
		t.Errorf("top reason = %v", result.Reasons)
	}
	if len(result.SimilarClaims) != 5 {
		t.Fatalf("similar claims = %d, want 5", len(result.SimilarClaims))
	}
	for _, s := range result.SimilarClaims {
		if s.ClaimID == "target" || s.ClaimID == "old" {
			t.Errorf("%s must not be in the comparison set", s.ClaimID)
		}
	}
	if result.CriteriaApplied.Preset != criteria.DefaultPreset {
		t.Errorf("criteria applied = %+v", result.CriteriaApplied)
	}
	if result.Query == "" {
		t.Error("query should be echoed")
	}
	if calls != 1 {
		t.Errorf("reasoning calls = %d, want 1 without narration", calls)
	}
}

func TestEngine_Predict_AlreadyPaid(t *testing.T) {
	var calls int32
	repo := gateway.New(time.Second, nil, gateway.NewMemoryTransport(hospiceClaim("paid", model.StatusPaid, 1, "GW")))
	e := newEngine(t, repo, countingReasoner(hospiceQuery, &calls))

	result, err := e.Predict(context.Background(), "paid", criteria.Request{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != model.OutcomePass || result.Confidence != 1.0 || result.Reasons[0] != "Claim is already fully paid." {
		t.Errorf("result = %+v", result)
	}
	if calls != 0 {
		t.Error("paid claims must not reach the reasoning service")
	}
}

func TestEngine_Predict_InvalidCriteriaBeforeNetwork(t *testing.T) {
	broken := &brokenTransport{name: "broken"}
	e := newEngine(t, gateway.New(time.Second, nil, broken), countingReasoner(hospiceQuery, new(int32)))

	_, err := e.Predict(context.Background(), "target", criteria.Request{Preset: "reckless"})
	if !errors.Is(err, errs.InvalidCriteria) {
		t.Fatalf("expected InvalidCriteria, got %v", err)
	}
	if broken.calls != 0 {
		t.Error("invalid criteria must be rejected before any transport call")
	}
}

func TestEngine_Predict_BothTransportsDown(t *testing.T) {
	var calls int32
	primary := &brokenTransport{name: "mcp"}
	secondary := &brokenTransport{name: "rest"}
	e := newEngine(t, gateway.New(time.Second, nil, primary, secondary), countingReasoner(hospiceQuery, &calls))

	_, err := e.Predict(context.Background(), "target", criteria.Request{})
	if !errors.Is(err, errs.RepositoryUnavailable) {
		t.Fatalf("expected RepositoryUnavailable, got %v", err)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("each transport should be tried once: %d, %d", primary.calls, secondary.calls)
	}
	if calls != 0 {
		t.Error("reasoning service must not be called without a claim")
	}
	if d := errs.Diagnostics(err); len(d) != 2 {
		t.Errorf("diagnostics = %v", d)
	}
}

func TestEngine_Predict_FallbackTransport(t *testing.T) {
	primary := &brokenTransport{name: "mcp"}
	e := newEngine(t, gateway.New(time.Second, nil, primary, scenario()), countingReasoner(hospiceQuery, new(int32)))

	result, err := e.Predict(context.Background(), "target", criteria.Request{})
	if err != nil {
		t.Fatalf("secondary transport should serve the prediction: %v", err)
	}
	if result.Outcome != model.OutcomeFail {
		t.Errorf("outcome = %s", result.Outcome)
	}
}

func TestEngine_Predict_NotFound(t *testing.T) {
	e := newEngine(t, gateway.New(time.Second, nil, scenario()), countingReasoner(hospiceQuery, new(int32)))

	_, err := e.Predict(context.Background(), "nope", criteria.Request{})
	if !errors.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	var e2 *errs.Error
	if !errors.As(err, &e2) || e2.ClaimID != "nope" {
		t.Errorf("claim id should be attached: %+v", e2)
	}
}

func TestEngine_Predict_QueryConstructionError(t *testing.T) {
	e := newEngine(t, gateway.New(time.Second, nil, scenario()), countingReasoner(`{"where": {"op": "eq", "field": "shoe_size", "value": 9}}`, new(int32)))

	_, err := e.Predict(context.Background(), "target", criteria.Request{})
	if !errors.Is(err, errs.QueryConstructionError) {
		t.Fatalf("expected QueryConstructionError, got %v", err)
	}
}

func TestEngine_Predict_ReasoningUnavailable(t *testing.T) {
	reasoner := reasoning.ServiceFunc(func(context.Context, reasoning.Request) (*reasoning.Response, error) {
		return nil, errs.E(errs.KindReasoningUnavailable, "reasoning.ask", errors.New("timeout"))
	})
	e := newEngine(t, gateway.New(time.Second, nil, scenario()), reasoner)

	_, err := e.Predict(context.Background(), "target", criteria.Request{})
	if !errors.Is(err, errs.ReasoningUnavailable) {
		t.Fatalf("expected ReasoningUnavailable, got %v", err)
	}
}

func TestEngine_Predict_NoComparisonClaims(t *testing.T) {
	repo := gateway.New(time.Second, nil, gateway.NewMemoryTransport(hospiceClaim("lonely", model.StatusSubmitted, 1, "GW")))
	e := newEngine(t, repo, countingReasoner(hospiceQuery, new(int32)))

	result, err := e.Predict(context.Background(), "lonely", criteria.Request{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != model.OutcomePass || result.Confidence < 0.5 {
		t.Errorf("got %s at %v", result.Outcome, result.Confidence)
	}
	for _, f := range result.Findings {
		if !f.Insufficient {
			t.Errorf("finding %s should be insufficient", f.FocusArea)
		}
	}
}

func TestEngine_Predict_Narration(t *testing.T) {
	var shapes []reasoning.Shape
	reasoner := reasoning.ServiceFunc(func(_ context.Context, req reasoning.Request) (*reasoning.Response, error) {
		shapes = append(shapes, req.Shape)
		if req.Shape == reasoning.ShapeAnalysis {
			return reasoning.Parse(req.Shape, `{"similarity_explanation": "Same hospice codes, GW is the difference."}`), nil
		}
		return reasoning.Parse(req.Shape, hospiceQuery), nil
	})
	cat, _ := correct.DefaultCatalog()
	cfg := model.DefaultConfig().Engine
	cfg.Narrate = true
	e, err := New(Options{Repository: gateway.New(time.Second, nil, scenario()), Reasoner: reasoner, Catalog: cat, Engine: cfg})
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Predict(context.Background(), "target", criteria.Request{})
	if err != nil {
		t.Fatal(err)
	}
	if len(shapes) != 2 || shapes[1] != reasoning.ShapeAnalysis {
		t.Errorf("shapes = %v", shapes)
	}
	if result.SimilarityExplanation != "Same hospice codes, GW is the difference." {
		t.Errorf("explanation = %q", result.SimilarityExplanation)
	}
}

func TestEngine_Predict_Cancelled(t *testing.T) {
	e := newEngine(t, gateway.New(time.Second, nil, scenario()), countingReasoner(hospiceQuery, new(int32)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Predict(ctx, "target", criteria.Request{}); err == nil {
		t.Fatal("cancelled context should abort the prediction")
	}
}

func TestEngine_Correct(t *testing.T) {
	e := newEngine(t, gateway.New(time.Second, nil, scenario()), countingReasoner(hospiceQuery, new(int32)))

	report, err := e.Correct(context.Background(), "target")
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if len(report.Entries) != len(e.corrector.Catalog().Rules) {
		t.Errorf("entries = %d", len(report.Entries))
	}
	if report.Entries[0].RuleID != "HOSPICE-GW" || report.Entries[0].Status != model.CorrectionApplied {
		t.Errorf("first entry = %+v", report.Entries[0])
	}
	if report.CatalogVersion != e.CatalogVersion() {
		t.Errorf("catalog version = %q", report.CatalogVersion)
	}

	if _, err := e.Correct(context.Background(), "missing"); !errors.Is(err, errs.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("empty options should fail")
	}
}
