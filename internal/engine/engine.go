// Package engine is the caller-facing prediction and correction pipeline.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/claimguard/internal/analyze"
	"github.com/ppiankov/claimguard/internal/correct"
	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/errs"
	"github.com/ppiankov/claimguard/internal/gateway"
	"github.com/ppiankov/claimguard/internal/logging"
	"github.com/ppiankov/claimguard/internal/model"
	"github.com/ppiankov/claimguard/internal/predict"
	"github.com/ppiankov/claimguard/internal/reasoning"
	"github.com/ppiankov/claimguard/internal/similarity"
)

// Options assembles an engine. Repository, Reasoner and Catalog are required.
type Options struct {
	Repository gateway.Repository
	Reasoner   reasoning.Service
	Catalog    *correct.Catalog
	Engine     model.EngineConfig
	Rubric     analyze.Rubric
	Logger     logrus.FieldLogger
}

// Engine holds only read-only collaborators; concurrent calls share nothing mutable
type Engine struct {
	repo      gateway.Repository
	builder   *similarity.Builder
	analyzer  *analyze.Analyzer
	assembler *predict.Assembler
	corrector *correct.Engine
	limit     int
	log       logrus.FieldLogger
}

// New creates an engine
func New(opts Options) (*Engine, error) {
	if opts.Repository == nil {
		return nil, errors.New("engine: repository is required")
	}
	if opts.Reasoner == nil {
		return nil, errors.New("engine: reasoning service is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("engine: rule catalog is required")
	}

	cfg := opts.Engine
	if cfg.ComparisonLimit <= 0 {
		cfg.ComparisonLimit = model.DefaultConfig().Engine.ComparisonLimit
	}
	rubric := opts.Rubric
	if rubric.RequiredModifiers == nil {
		rubric = analyze.DefaultRubric()
	}
	var narrator reasoning.Service
	if cfg.Narrate {
		narrator = opts.Reasoner
	}
	log := logging.OrDiscard(opts.Logger)

	return &Engine{
		repo:      opts.Repository,
		builder:   similarity.NewBuilder(opts.Reasoner, cfg.DefaultWindowDays),
		analyzer:  analyze.NewAnalyzer(rubric, narrator).WithTopReasons(cfg.TopReasons),
		assembler: predict.NewAssembler(predict.ConfigFromModel(cfg)),
		corrector: correct.NewEngine(opts.Catalog).WithLogger(log),
		limit:     cfg.ComparisonLimit,
		log:       log,
	}, nil
}

// Predict runs the full pipeline for one claim. The criteria request is
// validated before any network call.
func (e *Engine) Predict(ctx context.Context, claimID string, req criteria.Request) (*model.PredictionResult, error) {
	start := time.Now()
	log := e.log.WithField("claim_id", claimID)

	// 1. Resolve criteria
	profile, err := criteria.Resolve(req)
	if err != nil {
		return nil, withClaim(err, claimID)
	}

	// 2. Fetch the target claim
	claim, err := e.repo.Fetch(ctx, claimID)
	if err != nil {
		return nil, err
	}

	// 3. Paid claims need no prediction
	if claim.Status == model.StatusPaid {
		log.Info("Claim already paid, skipping analysis")
		return e.assembler.AlreadyPaid(claim.ID, profile), nil
	}

	// 4. Build the similarity query
	query, err := e.builder.Build(ctx, claim, profile)
	if err != nil {
		return nil, err
	}

	// 5. Retrieve the comparison set
	comparison, err := e.repo.Query(ctx, query, e.limit, query.Window)
	if err != nil {
		return nil, withClaim(err, claim.ID)
	}
	comparison = withoutTarget(comparison, claim)

	// 6. Compare
	analysis, err := e.analyzer.Analyze(ctx, claim, comparison, profile)
	if err != nil {
		return nil, err
	}

	// 7. Assemble
	result := e.assembler.Assemble(claim.ID, analysis, profile)
	result.Query = query.Where.String()

	log.WithFields(logrus.Fields{
		"outcome":     result.Outcome,
		"confidence":  result.Confidence,
		"comparisons": len(comparison),
		"elapsed":     time.Since(start).String(),
	}).Info("Prediction complete")
	return result, nil
}

// Correct fetches a fresh snapshot and runs the rule catalog against it
func (e *Engine) Correct(ctx context.Context, claimID string) (*model.CorrectionReport, error) {
	start := time.Now()
	claim, err := e.repo.Fetch(ctx, claimID)
	if err != nil {
		return nil, err
	}
	report := e.corrector.Correct(claim)

	e.log.WithFields(logrus.Fields{
		"claim_id": claim.ID,
		"applied":  report.Count(model.CorrectionApplied),
		"skipped":  report.Count(model.CorrectionSkipped),
		"elapsed":  time.Since(start).String(),
	}).Info("Correction complete")
	return &report, nil
}

// CatalogVersion reports the version of the loaded rule catalog
func (e *Engine) CatalogVersion() string {
	return e.corrector.Catalog().Version
}

func withoutTarget(claims []model.Claim, target model.Claim) []model.Claim {
	out := make([]model.Claim, 0, len(claims))
	for _, c := range claims {
		if strings.EqualFold(c.ID, target.ID) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func withClaim(err error, claimID string) error {
	var e *errs.Error
	if errors.As(err, &e) && e.ClaimID == "" {
		e.ClaimID = claimID
	}
	return err
}
