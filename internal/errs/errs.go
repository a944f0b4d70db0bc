// Package errs defines the error taxonomy surfaced by the prediction and correction engine.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an engine error
type Kind string

const (
	KindNotFound               Kind = "NotFound"
	KindRepositoryUnavailable  Kind = "RepositoryUnavailable"
	KindQueryConstructionError Kind = "QueryConstructionError"
	KindReasoningUnavailable   Kind = "ReasoningUnavailable"
	KindInvalidCriteria        Kind = "InvalidCriteria"
)

// Sentinels for errors.Is matching by kind
var (
	NotFound               = &Error{Kind: KindNotFound}
	RepositoryUnavailable  = &Error{Kind: KindRepositoryUnavailable}
	QueryConstructionError = &Error{Kind: KindQueryConstructionError}
	ReasoningUnavailable   = &Error{Kind: KindReasoningUnavailable}
	InvalidCriteria        = &Error{Kind: KindInvalidCriteria}
)

// Error carries the operation context a caller needs to decide on messaging or manual retry
type Error struct {
	Kind        Kind
	Op          string   // Operation name, e.g. "gateway.fetch"
	ClaimID     string   // Claim under analysis, if any
	Query       string   // Rejected query text (QueryConstructionError)
	Diagnostics []string // One line per failed transport (RepositoryUnavailable)
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.ClaimID != "" {
		fmt.Fprintf(&b, " (claim %s)", e.ClaimID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Diagnostics) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Diagnostics, "; "))
		b.WriteString("]")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, errs.NotFound) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E builds an *Error
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithClaim sets the claim id and returns the error
func (e *Error) WithClaim(id string) *Error {
	e.ClaimID = id
	return e
}

// KindOf returns the kind of the first *Error in the chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Diagnostics returns transport diagnostics attached anywhere in the chain
func Diagnostics(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Diagnostics
	}
	return nil
}
