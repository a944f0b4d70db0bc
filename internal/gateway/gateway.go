// Package gateway gives transport-agnostic access to claim records.
//
// Transports are tried in registration order; the first one to fully succeed wins.
// A miss (NotFound) is authoritative and is never retried on another transport.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ppiankov/claimguard/internal/errs"
	"github.com/ppiankov/claimguard/internal/logging"
	"github.com/ppiankov/claimguard/internal/model"
	"github.com/sirupsen/logrus"
)

// Transport is one way of reaching the claims repository
type Transport interface {
	// Name identifies the transport in logs and diagnostics
	Name() string

	// Fetch returns the claim with its service lines, or an errs.NotFound error
	Fetch(ctx context.Context, claimID string) (model.Claim, error)

	// Query returns up to limit claims matching q, newest first
	Query(ctx context.Context, q model.StructuredQuery, limit int) ([]model.Claim, error)
}

// Repository is what the engine needs from the gateway
type Repository interface {
	Fetch(ctx context.Context, claimID string) (model.Claim, error)
	Query(ctx context.Context, q model.StructuredQuery, limit int, window model.TimeWindow) ([]model.Claim, error)
}

// Gateway dispatches to an ordered list of transports with fallback
type Gateway struct {
	transports []Transport
	timeout    time.Duration
	log        logrus.FieldLogger
}

// New creates a gateway. timeout bounds each transport call; zero means 30s.
func New(timeout time.Duration, log logrus.FieldLogger, transports ...Transport) *Gateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		transports: transports,
		timeout:    timeout,
		log:        logging.OrDiscard(log),
	}
}

// Transports returns the registered transport names in order
func (g *Gateway) Transports() []string {
	names := make([]string, len(g.transports))
	for i, t := range g.transports {
		names[i] = t.Name()
	}
	return names
}

// Fetch returns a fresh snapshot of the claim
func (g *Gateway) Fetch(ctx context.Context, claimID string) (model.Claim, error) {
	const op = "gateway.fetch"
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return model.Claim{}, errs.E(errs.KindNotFound, op, fmt.Errorf("empty claim id"))
	}

	var claim model.Claim
	err := g.each(ctx, op, claimID, func(ctx context.Context, t Transport) error {
		c, err := t.Fetch(ctx, claimID)
		if err != nil {
			return err
		}
		claim = c
		return nil
	})
	if err != nil {
		return model.Claim{}, err
	}
	return claim, nil
}

// Query returns at most limit claims matching q within window.
// A non-positive limit returns an empty result without touching any transport.
func (g *Gateway) Query(ctx context.Context, q model.StructuredQuery, limit int, window model.TimeWindow) ([]model.Claim, error) {
	const op = "gateway.query"
	if limit <= 0 {
		return []model.Claim{}, nil
	}
	if q.Where.Op != "" {
		if err := q.Where.Validate(); err != nil {
			return nil, &errs.Error{Kind: errs.KindQueryConstructionError, Op: op, Query: q.Where.String(), Err: err}
		}
	}
	if !window.IsZero() {
		q.Window = window
	}

	var claims []model.Claim
	err := g.each(ctx, op, "", func(ctx context.Context, t Transport) error {
		got, err := t.Query(ctx, q, limit)
		if err != nil {
			return err
		}
		claims = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trim(claims, q.Exclude, limit), nil
}

// each runs call against every transport until one succeeds
func (g *Gateway) each(ctx context.Context, op, claimID string, call func(context.Context, Transport) error) error {
	if len(g.transports) == 0 {
		return &errs.Error{Kind: errs.KindRepositoryUnavailable, Op: op, ClaimID: claimID, Err: fmt.Errorf("no transports configured")}
	}

	var diagnostics []string
	var lastErr error
	for i, t := range g.transports {
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		err := call(callCtx, t)
		cancel()

		entry := g.log.WithFields(logrus.Fields{
			"op":        op,
			"transport": t.Name(),
			"elapsed":   time.Since(start).String(),
		})
		if claimID != "" {
			entry = entry.WithField("claim_id", claimID)
		}

		if err == nil {
			entry.Debug("transport call succeeded")
			return nil
		}
		if errors.Is(err, errs.NotFound) {
			var e *errs.Error
			if errors.As(err, &e) && e.ClaimID == "" {
				e.ClaimID = claimID
			}
			return err
		}
		// The caller gave up; the next transport would see the same cancelled context.
		if ctx.Err() != nil {
			return &errs.Error{Kind: errs.KindRepositoryUnavailable, Op: op, ClaimID: claimID, Diagnostics: append(diagnostics, t.Name()+": "+err.Error()), Err: ctx.Err()}
		}

		lastErr = err
		diagnostics = append(diagnostics, t.Name()+": "+err.Error())
		if i < len(g.transports)-1 {
			entry.WithError(err).Warnf("transport failed, falling back to %s", g.transports[i+1].Name())
		}
	}

	return &errs.Error{
		Kind:        errs.KindRepositoryUnavailable,
		Op:          op,
		ClaimID:     claimID,
		Diagnostics: diagnostics,
		Err:         lastErr,
	}
}

func trim(claims []model.Claim, exclude []string, limit int) []model.Claim {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[strings.ToLower(id)] = true
	}
	out := make([]model.Claim, 0, len(claims))
	for _, c := range claims {
		if skip[strings.ToLower(c.ID)] || (c.Name != "" && skip[strings.ToLower(c.Name)]) {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Close releases transports that hold connections
func (g *Gateway) Close() error {
	var firstErr error
	for _, t := range g.transports {
		if c, ok := t.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
