// Package reasoning asks a language model for structured answers.
// Every failure, whatever the cause, surfaces as errs.ReasoningUnavailable.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/claimguard/internal/errs"
	"github.com/ppiankov/claimguard/internal/llm"
	"github.com/ppiankov/claimguard/internal/logging"
	"github.com/ppiankov/claimguard/internal/model"
	"github.com/ppiankov/claimguard/internal/worker"
	"github.com/sirupsen/logrus"
)

// Shape hints what kind of answer the caller expects
type Shape string

const (
	ShapeQuery    Shape = "query"    // predicate tree + time bound
	ShapeAnalysis Shape = "analysis" // free-text comparative findings
)

// Request is one question for the reasoning service
type Request struct {
	Prompt  string
	Shape   Shape
	ClaimID string // for error context only
}

// QueryDraft is the query as the model proposed it, before validation
type QueryDraft struct {
	Where       model.Predicate `json:"where"`
	WindowDays  int             `json:"window_days,omitempty"`
	From        string          `json:"from,omitempty"`
	To          string          `json:"to,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
}

// AnalysisNotes is the model's narration of a comparison
type AnalysisNotes struct {
	SimilarityExplanation string            `json:"similarity_explanation"`
	ClaimReasons          map[string]string `json:"claim_reasons,omitempty"` // comparison claim id -> reason
	Findings              []string          `json:"findings,omitempty"`
}

// Response carries the raw text and whatever structure could be decoded from it.
// Query is nil when the text held no decodable query object.
type Response struct {
	Raw      string
	Query    *QueryDraft
	Analysis *AnalysisNotes
}

// Service is the opaque reasoning capability
type Service interface {
	Ask(ctx context.Context, req Request) (*Response, error)
}

// ServiceFunc adapts a function to Service
type ServiceFunc func(ctx context.Context, req Request) (*Response, error)

// Ask calls f
func (f ServiceFunc) Ask(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// LLMService answers through an llm.Provider, rate limited per provider
type LLMService struct {
	provider llm.Provider
	limiter  *worker.Limiter
	timeout  time.Duration
	log      logrus.FieldLogger
}

// NewLLMService wires a provider. provider may be nil, in which case every Ask fails.
func NewLLMService(provider llm.Provider, limiter *worker.Limiter, timeout time.Duration) *LLMService {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMService{
		provider: provider,
		limiter:  limiter,
		timeout:  timeout,
		log:      logging.Discard(),
	}
}

// WithLogger sets the logger
func (s *LLMService) WithLogger(log logrus.FieldLogger) *LLMService {
	s.log = logging.OrDiscard(log)
	return s
}

// Ask sends the prompt once. No retry.
func (s *LLMService) Ask(ctx context.Context, req Request) (*Response, error) {
	const op = "reasoning.ask"
	fail := func(err error) error {
		return errs.E(errs.KindReasoningUnavailable, op, err).WithClaim(req.ClaimID)
	}

	if s.provider == nil {
		return nil, fail(fmt.Errorf("no reasoning provider configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, s.provider.Name()); err != nil {
			return nil, fail(fmt.Errorf("rate limiter: %w", err))
		}
	}

	start := time.Now()
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		System: systemPrompt(req.Shape),
		Prompt: req.Prompt,
		JSON:   true,
	})
	log := s.log.WithFields(logrus.Fields{
		"op":       op,
		"provider": s.provider.Name(),
		"shape":    req.Shape,
		"claim_id": req.ClaimID,
		"elapsed":  time.Since(start).String(),
	})
	if err != nil {
		log.WithError(err).Debug("reasoning call failed")
		return nil, fail(err)
	}
	log.WithField("tokens", resp.TokensUsed).Debug("reasoning call complete")

	return Parse(req.Shape, resp.Text), nil
}

// Parse decodes model output for the given shape. It never fails; undecodable
// text is kept in Raw and, for analysis, used as the explanation.
func Parse(shape Shape, text string) *Response {
	out := &Response{Raw: text}
	body := ExtractJSON(text)

	switch shape {
	case ShapeQuery:
		var draft QueryDraft
		if body != "" && json.Unmarshal([]byte(body), &draft) == nil {
			out.Query = &draft
		}
	default:
		var notes AnalysisNotes
		if body == "" || json.Unmarshal([]byte(body), &notes) != nil {
			notes = AnalysisNotes{SimilarityExplanation: strings.TrimSpace(text)}
		}
		out.Analysis = &notes
	}
	return out
}

// ExtractJSON returns the JSON object in text: a fenced ```json block if present,
// otherwise the span from the first '{' to the last '}'. Empty if none.
func ExtractJSON(text string) string {
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			if fenced := strings.TrimSpace(rest[:j]); strings.HasPrefix(fenced, "{") {
				return fenced
			}
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func systemPrompt(shape Shape) string {
	if shape == ShapeQuery {
		return queryPrompt
	}
	return analysisPrompt
}

var queryPrompt = func() string {
	names := make([]string, 0, len(model.Fields))
	for name := range model.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("You translate a description of a healthcare claim and a similarity rule into a query for historical claims.\n")
	b.WriteString("Respond with one JSON object: {\"where\": <predicate>, \"window_days\": <int>, \"explanation\": <string>}.\n")
	b.WriteString("A predicate is either {\"op\": \"and\"|\"or\"|\"not\", \"args\": [<predicate>...]} or ")
	b.WriteString("{\"op\": \"eq\"|\"ne\"|\"gt\"|\"gte\"|\"lt\"|\"lte\"|\"in\"|\"contains\", \"field\": <field>, \"value\": <value>}.\n")
	b.WriteString("Use only these fields: ")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(".\nLine fields match when any service line matches. Amount ranges use gte and lte on claimed_amount. ")
	b.WriteString("Derive window_days from the comparison context. Do not filter on status; both passed and failed claims are needed.")
	return b.String()
}()

const analysisPrompt = `You compare a healthcare claim against similar historical claims.
Respond with one JSON object: {"similarity_explanation": <string>, "claim_reasons": {<claim id>: <short reason>}, "findings": [<string>...]}.
Only describe what the data shows. Do not invent claims or codes that are not in the input.`
