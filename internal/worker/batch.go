package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/model"
)

// Predictor is the caller-facing surface of the engine
type Predictor interface {
	Predict(ctx context.Context, claimID string, req criteria.Request) (*model.PredictionResult, error)
	Correct(ctx context.Context, claimID string) (*model.CorrectionReport, error)
}

// ClaimJob predicts one claim and, when asked, corrects it if the prediction is FAIL
type ClaimJob struct {
	Index       int
	ClaimID     string
	Criteria    criteria.Request
	AutoCorrect bool
	Predictor   Predictor
}

// Execute executes the claim job
func (j *ClaimJob) Execute(ctx context.Context) Result {
	out := &ClaimResult{Index: j.Index, ClaimID: j.ClaimID}

	out.Prediction, out.Error = j.Predictor.Predict(ctx, j.ClaimID, j.Criteria)
	if out.Error != nil || !j.AutoCorrect || out.Prediction.Outcome != model.OutcomeFail {
		return out
	}

	out.Correction, out.Error = j.Predictor.Correct(ctx, j.ClaimID)
	return out
}

// ClaimResult represents the result of a claim job
type ClaimResult struct {
	Index      int
	ClaimID    string
	Prediction *model.PredictionResult
	Correction *model.CorrectionReport
	Error      error
}

// GetError returns the error from the claim result
func (r *ClaimResult) GetError() error {
	return r.Error
}

// BatchProcessor processes multiple claims concurrently
type BatchProcessor struct {
	predictor   Predictor
	concurrency int
	criteria    criteria.Request
	autoCorrect bool
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(predictor Predictor, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		predictor:   predictor,
		concurrency: concurrency,
	}
}

// WithCriteria applies the same criteria request to every claim in the batch
func (b *BatchProcessor) WithCriteria(req criteria.Request) *BatchProcessor {
	b.criteria = req
	return b
}

// WithAutoCorrect runs the correction catalog on claims predicted to fail
func (b *BatchProcessor) WithAutoCorrect(on bool) *BatchProcessor {
	b.autoCorrect = on
	return b
}

// ProcessIDs processes claims concurrently. Results are returned in input order.
func (b *BatchProcessor) ProcessIDs(ctx context.Context, ids []string) []*ClaimResult {
	if len(ids) == 0 {
		return []*ClaimResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for i, id := range ids {
		ok := pool.Submit(&ClaimJob{
			Index:       i,
			ClaimID:     id,
			Criteria:    b.criteria,
			AutoCorrect: b.autoCorrect,
			Predictor:   b.predictor,
		})
		if !ok {
			break
		}
	}

	results := pool.Wait()

	claimResults := make([]*ClaimResult, 0, len(ids))
	seen := make(map[int]bool, len(results))
	for _, result := range results {
		r := result.(*ClaimResult)
		seen[r.Index] = true
		claimResults = append(claimResults, r)
	}

	// claims never run because the batch was cancelled still get a row
	for i, id := range ids {
		if !seen[i] {
			err := ctx.Err()
			if err == nil {
				err = fmt.Errorf("not processed")
			}
			claimResults = append(claimResults, &ClaimResult{Index: i, ClaimID: id, Error: err})
		}
	}

	sort.Slice(claimResults, func(i, j int) bool {
		return claimResults[i].Index < claimResults[j].Index
	})
	return claimResults
}

// ProcessFile reads claim ids from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*ClaimResult, error) {
	ids, err := ReadIDsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claim ids: %w", err)
	}

	return b.ProcessIDs(ctx, ids), nil
}

// ReadIDsFromFile reads claim ids from a file (one per line, # comments allowed)
func ReadIDsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var ids []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Deduplicate ids
		if !seen[line] {
			seen[line] = true
			ids = append(ids, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return ids, nil
}
