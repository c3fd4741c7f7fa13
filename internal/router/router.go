// Package router maps a validation record and retry count to a final
// disposition decision. Pure computation, no external calls.
package router

import (
	"fmt"

	"github.com/fyrsmithlabs/pensiond/internal/validator"
)

// Decision is the outcome-routing verdict for one validated draft.
type Decision string

const (
	// DecisionApprove delivers the answer to the member.
	DecisionApprove Decision = "APPROVE"
	// DecisionApproveFlagged delivers the answer and marks it for
	// asynchronous human spot-check.
	DecisionApproveFlagged Decision = "APPROVE_FLAGGED"
	// DecisionRetry re-invokes synthesis with the validator's feedback.
	DecisionRetry Decision = "RETRY"
	// DecisionEscalate withholds the answer: the member gets the safe
	// fallback message and the query is queued for manual review.
	DecisionEscalate Decision = "ESCALATE"
)

// Router holds the configured confidence thresholds.
type Router struct {
	approveThreshold float64
	flagThreshold    float64
	maxRetries       int
}

// New creates a router. Thresholds must satisfy 0 < flag < approve <= 1.
func New(approveThreshold, flagThreshold float64, maxRetries int) (*Router, error) {
	if approveThreshold <= 0 || approveThreshold > 1 || flagThreshold <= 0 || flagThreshold >= approveThreshold {
		return nil, fmt.Errorf("invalid thresholds: approve %f, flag %f", approveThreshold, flagThreshold)
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("max retries must be non-negative, got %d", maxRetries)
	}
	return &Router{
		approveThreshold: approveThreshold,
		flagThreshold:    flagThreshold,
		maxRetries:       maxRetries,
	}, nil
}

// Route decides the disposition for a validation record given how many
// retries the query has already consumed.
func (r *Router) Route(rec validator.Record, retryCount int) Decision {
	switch {
	case rec.Confidence >= r.approveThreshold:
		return DecisionApprove
	case rec.Confidence >= r.flagThreshold:
		return DecisionApproveFlagged
	case retryCount < r.maxRetries:
		return DecisionRetry
	default:
		return DecisionEscalate
	}
}

// MaxRetries returns the configured retry budget.
func (r *Router) MaxRetries() int {
	return r.maxRetries
}
