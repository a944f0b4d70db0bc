package reasoning

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ppiankov/claimguard/internal/errs"
	"github.com/ppiankov/claimguard/internal/llm"
	"github.com/ppiankov/claimguard/internal/model"
	"github.com/ppiankov/claimguard/internal/worker"
)

type fakeProvider struct {
	text  string
	err   error
	delay time.Duration
	last  llm.CompletionRequest
	calls int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	f.last = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Text: f.text}, nil
}

func TestLLMService_AskQuery(t *testing.T) {
	p := &fakeProvider{text: "Here you go:\n```json\n" +
		`{"where": {"op": "and", "args": [{"op": "eq", "field": "claim_type", "value": "hospice"}, {"op": "gte", "field": "claimed_amount", "value": 250}]}, "window_days": 90}` +
		"\n```"}
	svc := NewLLMService(p, worker.NewLimiter(100, 1), time.Second)

	resp, err := svc.Ask(context.Background(), Request{Prompt: "claim", Shape: ShapeQuery})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Query == nil {
		t.Fatal("expected decoded query")
	}
	want := model.Predicate{Op: model.OpAnd, Args: []model.Predicate{
		{Op: model.OpEq, Field: "claim_type", Value: "hospice"},
		{Op: model.OpGte, Field: "claimed_amount", Value: 250.0},
	}}
	if diff := cmp.Diff(want, resp.Query.Where); diff != "" {
		t.Errorf("predicate mismatch (-want +got):\n%s", diff)
	}
	if resp.Query.WindowDays != 90 {
		t.Errorf("WindowDays = %d", resp.Query.WindowDays)
	}
	if !p.last.JSON || !strings.Contains(p.last.System, "claimed_amount") {
		t.Error("query system prompt should request JSON and list the field catalog")
	}
}

func TestLLMService_ProviderErrorIsReasoningUnavailable(t *testing.T) {
	p := &fakeProvider{err: errors.New("HTTP 500")}
	svc := NewLLMService(p, nil, time.Second)

	_, err := svc.Ask(context.Background(), Request{Prompt: "x", Shape: ShapeQuery, ClaimID: "c-1"})
	if !errors.Is(err, errs.ReasoningUnavailable) {
		t.Fatalf("expected ReasoningUnavailable, got %v", err)
	}
	var e *errs.Error
	if errors.As(err, &e) && e.ClaimID != "c-1" {
		t.Errorf("claim id = %q", e.ClaimID)
	}
	if p.calls != 1 {
		t.Errorf("expected exactly one call (no retry), got %d", p.calls)
	}
}

func TestLLMService_Timeout(t *testing.T) {
	p := &fakeProvider{delay: time.Second, text: "{}"}
	svc := NewLLMService(p, nil, 20*time.Millisecond)

	_, err := svc.Ask(context.Background(), Request{Prompt: "x", Shape: ShapeAnalysis})
	if !errors.Is(err, errs.ReasoningUnavailable) {
		t.Fatalf("expected ReasoningUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("deadline should stay in the chain: %v", err)
	}
}

func TestLLMService_NoProvider(t *testing.T) {
	svc := NewLLMService(nil, nil, 0)
	if _, err := svc.Ask(context.Background(), Request{Prompt: "x"}); !errors.Is(err, errs.ReasoningUnavailable) {
		t.Fatalf("expected ReasoningUnavailable, got %v", err)
	}
}

func TestParse_Analysis(t *testing.T) {
	resp := Parse(ShapeAnalysis, `{"similarity_explanation": "Same hospice code", "claim_reasons": {"c-2": "missing GW"}}`)
	if resp.Analysis.SimilarityExplanation != "Same hospice code" || resp.Analysis.ClaimReasons["c-2"] != "missing GW" {
		t.Errorf("unexpected analysis: %+v", resp.Analysis)
	}

	free := Parse(ShapeAnalysis, "The claims share procedure T2042.")
	if free.Analysis.SimilarityExplanation != "The claims share procedure T2042." {
		t.Errorf("free text should become the explanation, got %+v", free.Analysis)
	}
}

func TestParse_QueryUndecodable(t *testing.T) {
	resp := Parse(ShapeQuery, "I cannot help with that.")
	if resp.Query != nil {
		t.Errorf("expected nil query, got %+v", resp.Query)
	}
	if resp.Raw != "I cannot help with that." {
		t.Errorf("raw text lost: %q", resp.Raw)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{"prefix {\"a\": {\"b\": 2}} suffix", `{"a": {"b": 2}}`},
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"no json here", ""},
		{"} backwards {", ""},
	}
	for _, tt := range tests {
		if got := ExtractJSON(tt.in); got != tt.want {
			t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
