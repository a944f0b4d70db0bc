package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/model"
)

// mockPredictor fails claims whose id starts with "bad", predicts FAIL for "fail-*"
type mockPredictor struct {
	corrections atomic.Int32
	lastPreset  atomic.Value
}

func (m *mockPredictor) Predict(ctx context.Context, claimID string, req criteria.Request) (*model.PredictionResult, error) {
	time.Sleep(5 * time.Millisecond)
	m.lastPreset.Store(req.Preset)
	if strings.HasPrefix(claimID, "bad") {
		return nil, errors.New("repository unavailable")
	}
	outcome := model.OutcomePass
	if strings.HasPrefix(claimID, "fail") {
		outcome = model.OutcomeFail
	}
	return &model.PredictionResult{ClaimID: claimID, Outcome: outcome, Confidence: 0.7}, nil
}

func (m *mockPredictor) Correct(ctx context.Context, claimID string) (*model.CorrectionReport, error) {
	m.corrections.Add(1)
	return &model.CorrectionReport{ClaimID: claimID}, nil
}

func TestBatchProcessor_ProcessIDs(t *testing.T) {
	p := &mockPredictor{}
	processor := NewBatchProcessor(p, 2).WithCriteria(criteria.Request{Preset: "strict"})

	ids := []string{"c-1", "c-2", "bad-3", "c-4"}
	results := processor.ProcessIDs(context.Background(), ids)

	if len(results) != len(ids) {
		t.Fatalf("expected %d results, got %d", len(ids), len(results))
	}
	for i, res := range results {
		if res.ClaimID != ids[i] {
			t.Errorf("result %d is %s, want input order", i, res.ClaimID)
		}
	}
	if results[2].Error == nil {
		t.Error("expected error for bad-3")
	}
	if results[0].Prediction == nil || results[0].Prediction.Outcome != model.OutcomePass {
		t.Errorf("unexpected prediction: %+v", results[0].Prediction)
	}
	if got := p.lastPreset.Load(); got != "strict" {
		t.Errorf("criteria not forwarded, preset = %v", got)
	}
	if p.corrections.Load() != 0 {
		t.Error("no corrections expected without auto-correct")
	}
}

func TestBatchProcessor_AutoCorrect(t *testing.T) {
	p := &mockPredictor{}
	processor := NewBatchProcessor(p, 3).WithAutoCorrect(true)

	results := processor.ProcessIDs(context.Background(), []string{"fail-1", "c-2", "fail-3"})

	if p.corrections.Load() != 2 {
		t.Errorf("expected 2 corrections, got %d", p.corrections.Load())
	}
	if results[0].Correction == nil || results[1].Correction != nil {
		t.Error("correction attached to the wrong claims")
	}
}

func TestBatchProcessor_ProcessIDs_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockPredictor{}, 2)
	results := processor.ProcessIDs(context.Background(), nil)
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty non-nil results, got %v", results)
	}
}

func TestBatchProcessor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ids := []string{"c-1", "c-2", "c-3", "c-4", "c-5", "c-6", "c-7", "c-8"}
	results := NewBatchProcessor(&mockPredictor{}, 1).ProcessIDs(ctx, ids)
	if len(results) != len(ids) {
		t.Fatalf("every claim needs a row, got %d", len(results))
	}
	for i, res := range results {
		if res.ClaimID != ids[i] {
			t.Errorf("result %d out of order", i)
		}
	}
}

func TestReadIDsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	content := `# claims to review
CLM-001

41807965-3611-f011-9988-000d3a30044f
CLM-001
  CLM-002
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := ReadIDsFromFile(path)
	if err != nil {
		t.Fatalf("ReadIDsFromFile: %v", err)
	}
	want := []string{"CLM-001", "41807965-3611-f011-9988-000d3a30044f", "CLM-002"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", ids, want)
	}
}

func TestBatchProcessor_ProcessFile_NonExistent(t *testing.T) {
	processor := NewBatchProcessor(&mockPredictor{}, 2)
	if _, err := processor.ProcessFile(context.Background(), "/nonexistent/ids.txt"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	if err := os.WriteFile(path, []byte("c-1\nc-2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	results, err := NewBatchProcessor(&mockPredictor{}, 2).ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}
