// Package similarity turns a target claim and an analysis profile into a
// validated retrieval query for the claims gateway.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/errs"
	"github.com/ppiankov/claimguard/internal/model"
	"github.com/ppiankov/claimguard/internal/reasoning"
)

const op = "similarity.build"

// Builder asks the reasoning service for a query and validates what comes back
type Builder struct {
	reasoner      reasoning.Service
	defaultWindow int // days
	now           func() time.Time
}

// NewBuilder creates a builder. defaultWindowDays bounds the query when neither
// the reasoning output nor the comparison context names a timeframe.
func NewBuilder(reasoner reasoning.Service, defaultWindowDays int) *Builder {
	if defaultWindowDays <= 0 {
		defaultWindowDays = 30
	}
	return &Builder{
		reasoner:      reasoner,
		defaultWindow: defaultWindowDays,
		now:           time.Now,
	}
}

// Build submits one prompt and returns a query the gateway can run.
// Reasoning failures propagate as ReasoningUnavailable; anything the reasoning
// service returns that does not validate is a QueryConstructionError.
func (b *Builder) Build(ctx context.Context, claim model.Claim, profile criteria.Profile) (model.StructuredQuery, error) {
	resp, err := b.reasoner.Ask(ctx, reasoning.Request{
		Prompt:  Prompt(claim, profile),
		Shape:   reasoning.ShapeQuery,
		ClaimID: claim.ID,
	})
	if err != nil {
		if errs.KindOf(err) == "" {
			err = errs.E(errs.KindReasoningUnavailable, op, err).WithClaim(claim.ID)
		}
		return model.StructuredQuery{}, err
	}

	reject := func(format string, args ...interface{}) error {
		e := errs.E(errs.KindQueryConstructionError, op, fmt.Errorf(format, args...)).WithClaim(claim.ID)
		e.Query = resp.Raw
		return e
	}

	draft := resp.Query
	if draft == nil {
		return model.StructuredQuery{}, reject("response holds no query object")
	}
	if draft.Where.Op == "" || len(draft.Where.Fields()) == 0 {
		return model.StructuredQuery{}, reject("query references no claim field")
	}
	if err := draft.Where.Validate(); err != nil {
		return model.StructuredQuery{}, reject("%v", err)
	}

	window, err := b.window(draft, profile.ComparisonContext)
	if err != nil {
		return model.StructuredQuery{}, reject("%v", err)
	}

	exclude := []string{claim.ID}
	if claim.Name != "" && claim.Name != claim.ID {
		exclude = append(exclude, claim.Name)
	}

	return model.StructuredQuery{
		Where:   draft.Where,
		Window:  window,
		Exclude: exclude,
		Raw:     resp.Raw,
	}, nil
}

// window prefers explicit bounds, then window_days, then the comparison context, then the default
func (b *Builder) window(draft *reasoning.QueryDraft, comparisonContext string) (model.TimeWindow, error) {
	now := b.now()

	if draft.From != "" || draft.To != "" {
		var w model.TimeWindow
		if draft.From != "" {
			t, ok := model.ParseTime(draft.From)
			if !ok {
				return w, fmt.Errorf("unparseable window start %q", draft.From)
			}
			w.From = t
		}
		if draft.To != "" {
			t, ok := model.ParseTime(draft.To)
			if !ok {
				return w, fmt.Errorf("unparseable window end %q", draft.To)
			}
			w.To = t
		} else {
			w.To = now
		}
		if !w.From.IsZero() && w.From.After(w.To) {
			return w, errors.New("window start is after window end")
		}
		if w.From.IsZero() {
			w.From = w.To.AddDate(0, 0, -b.defaultWindow)
		}
		return w, nil
	}

	if draft.WindowDays < 0 {
		return model.TimeWindow{}, fmt.Errorf("negative window_days %d", draft.WindowDays)
	}
	if draft.WindowDays > 0 {
		return model.WindowLastDays(now, draft.WindowDays), nil
	}
	if days, ok := WindowDays(comparisonContext); ok {
		return model.WindowLastDays(now, days), nil
	}
	return model.WindowLastDays(now, b.defaultWindow), nil
}

var timeframe = regexp.MustCompile(`(?i)(\d+)\s*(day|week|month|year)s?`)

// WindowDays reads a timeframe such as "last 90 days" or "past 6 months" from free text
func WindowDays(text string) (int, bool) {
	if m := timeframe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return 0, false
		}
		switch strings.ToLower(m[2]) {
		case "week":
			return n * 7, true
		case "month":
			return n * 30, true
		case "year":
			return n * 365, true
		}
		return n, true
	}
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "last year"), strings.Contains(lower, "past year"):
		return 365, true
	case strings.Contains(lower, "last month"), strings.Contains(lower, "past month"):
		return 30, true
	case strings.Contains(lower, "last week"), strings.Contains(lower, "past week"):
		return 7, true
	}
	return 0, false
}
