// Package orchestrator drives one member query end to end: profile fetch,
// topic classification, the data-gathering loop, validation, and outcome
// routing. It is the only package that decides what text a member sees.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pensiond/internal/agent"
	"github.com/fyrsmithlabs/pensiond/internal/audit"
	"github.com/fyrsmithlabs/pensiond/internal/classifier"
	"github.com/fyrsmithlabs/pensiond/internal/costs"
	"github.com/fyrsmithlabs/pensiond/internal/logging"
	"github.com/fyrsmithlabs/pensiond/internal/profile"
	"github.com/fyrsmithlabs/pensiond/internal/router"
	"github.com/fyrsmithlabs/pensiond/internal/tools"
	"github.com/fyrsmithlabs/pensiond/internal/validator"
)

var pipelineTracer = otel.Tracer("pensiond.orchestrator")

// Query is one inbound member question.
type Query struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	MemberID  string    `json:"member_id"`
	SessionID string    `json:"session_id,omitempty"`
	ArrivedAt time.Time `json:"arrived_at"`
}

// Disposition is the terminal state of a processed query.
type Disposition string

const (
	// DispositionDelivered means the answer went out as approved.
	DispositionDelivered Disposition = "DELIVERED"
	// DispositionDeliveredFlagged means the answer went out but is queued
	// for human review.
	DispositionDeliveredFlagged Disposition = "DELIVERED_FLAGGED"
	// DispositionEscalated means the member received the fallback message
	// and the query moved to a human queue.
	DispositionEscalated Disposition = "ESCALATED"
)

// Outcome is everything the pipeline produced for one query. Validation
// records and the tool trace are retained in full for audit.
type Outcome struct {
	QueryID        string             `json:"query_id"`
	Answer         string             `json:"answer"`
	Citations      []string           `json:"citations,omitempty"`
	Disposition    Disposition        `json:"disposition"`
	Classification classifier.Result  `json:"classification"`
	Validations    []validator.Record `json:"validations"`
	Trace          tools.Trace        `json:"trace"`
	Retries        int                `json:"retries"`
	Costs          costs.Accumulator  `json:"costs"`
	Elapsed        time.Duration      `json:"elapsed_ns"`
}

// Pipeline wires the processing stages together. Safe for concurrent use;
// per-query state lives on the stack of Process.
type Pipeline struct {
	profiles  profile.Store
	cascade   *classifier.Cascade
	engine    *agent.Engine
	validator *validator.Validator
	router    *router.Router
	sink      audit.Sink
	logger    *logging.Logger
	fallback  string
}

// NewPipeline validates and assembles the pipeline.
func NewPipeline(
	profiles profile.Store,
	cascade *classifier.Cascade,
	engine *agent.Engine,
	v *validator.Validator,
	r *router.Router,
	sink audit.Sink,
	logger *logging.Logger,
	fallbackMessage string,
) (*Pipeline, error) {
	if profiles == nil || cascade == nil || engine == nil || v == nil || r == nil {
		return nil, fmt.Errorf("all pipeline stages are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if fallbackMessage == "" {
		return nil, fmt.Errorf("fallback message is required")
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Pipeline{
		profiles:  profiles,
		cascade:   cascade,
		engine:    engine,
		validator: v,
		router:    r,
		sink:      sink,
		logger:    logger,
		fallback:  fallbackMessage,
	}, nil
}

// Process runs one query to a terminal disposition. It returns an error
// only for caller-side problems (empty query, unknown member, cancelled
// context); every answer-side failure resolves to an escalated Outcome
// carrying the fallback message, never a raw error.
func (p *Pipeline) Process(ctx context.Context, q Query) (*Outcome, error) {
	if q.Text == "" {
		return nil, fmt.Errorf("query text is required")
	}
	if q.MemberID == "" {
		return nil, fmt.Errorf("member id is required")
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.ArrivedAt.IsZero() {
		q.ArrivedAt = time.Now()
	}

	ctx = logging.WithQueryID(ctx, q.ID)
	if q.SessionID != "" {
		ctx = logging.WithSessionID(ctx, q.SessionID)
	}

	ctx, span := pipelineTracer.Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(attribute.String("query.id", q.ID))

	start := time.Now()

	member, err := p.profiles.Fetch(ctx, q.MemberID)
	if err != nil {
		span.SetStatus(codes.Error, "profile fetch failed")
		p.logger.Warn(ctx, "profile fetch failed",
			logging.MemberHash("member", q.MemberID),
			zap.Error(err))
		if errors.Is(err, profile.ErrNotFound) {
			return nil, fmt.Errorf("fetching member %s: %w", q.MemberID, err)
		}
		return nil, fmt.Errorf("fetching member profile: %w", err)
	}

	out := &Outcome{QueryID: q.ID}

	out.Classification = p.cascade.Classify(ctx, q.Text, member)
	p.emit(ctx, audit.Event{
		Kind:      audit.KindClassification,
		QueryID:   q.ID,
		SessionID: q.SessionID,
		Payload:   out.Classification,
	})
	switch out.Classification.Tier {
	case classifier.TierSemantic:
		out.Costs.AddEmbedding(out.Classification.CostUSD, out.Classification.Latency)
	case classifier.TierLLM:
		out.Costs.AddLLM(out.Classification.CostUSD, out.Classification.Latency)
	}

	st, err := p.engine.Run(ctx, q.Text, member, out.Classification)
	if st != nil {
		out.Trace = st.Trace
		out.Costs.Merge(st.Costs)
	}
	if err != nil {
		return p.resolveLoopError(ctx, span, q, out, err, start)
	}

	retryCount := 0
	for {
		rec := p.validator.Validate(ctx, q.Text, st.DraftAnswer, &st.Trace, member)
		out.Validations = append(out.Validations, rec)
		out.Costs.AddLLM(rec.CostUSD, 0)
		p.emit(ctx, audit.Event{
			Kind:      audit.KindValidation,
			QueryID:   q.ID,
			SessionID: q.SessionID,
			Payload:   rec,
		})

		decision := p.router.Route(rec, retryCount)
		p.logger.Debug(ctx, "outcome routed",
			zap.String("decision", string(decision)),
			zap.Float64("confidence", rec.Confidence),
			zap.Int("retry_count", retryCount))

		switch decision {
		case router.DecisionApprove:
			return p.deliver(ctx, span, q, out, st, DispositionDelivered, retryCount, start)

		case router.DecisionApproveFlagged:
			return p.deliver(ctx, span, q, out, st, DispositionDeliveredFlagged, retryCount, start)

		case router.DecisionRetry:
			retryCount++
			feedback := retryFeedback(rec)
			if rec.MissingData() {
				err = p.engine.Resume(ctx, st, feedback)
			} else {
				err = p.engine.Synthesize(ctx, st, feedback)
			}
			out.Trace = st.Trace
			out.Costs = costs.Accumulator{}
			out.Costs.Merge(st.Costs)
			p.addStageCosts(out)
			if err != nil {
				return p.resolveLoopError(ctx, span, q, out, err, start)
			}

		case router.DecisionEscalate:
			return p.escalate(ctx, span, q, out, retryCount, "validation confidence below retry threshold", start)
		}
	}
}

// retryFeedback builds the correction prompt for a rejected draft: the
// judge's reasoning plus the checks it failed, so the retry targets the
// specific shortfalls.
func retryFeedback(rec validator.Record) string {
	if len(rec.ViolatedChecks) == 0 {
		return rec.Reasoning
	}
	return fmt.Sprintf("%s (failed checks: %s)", rec.Reasoning, strings.Join(rec.ViolatedChecks, ", "))
}

// addStageCosts re-applies classification and validation spend after the
// agent accumulator was re-merged.
func (p *Pipeline) addStageCosts(out *Outcome) {
	switch out.Classification.Tier {
	case classifier.TierSemantic:
		out.Costs.AddEmbedding(out.Classification.CostUSD, out.Classification.Latency)
	case classifier.TierLLM:
		out.Costs.AddLLM(out.Classification.CostUSD, out.Classification.Latency)
	}
	for _, rec := range out.Validations {
		out.Costs.AddLLM(rec.CostUSD, 0)
	}
}

// resolveLoopError maps a gathering or synthesis failure to a terminal
// state. Cancellation propagates to the caller; synthesis failure means
// the member gets the fallback message.
func (p *Pipeline) resolveLoopError(ctx context.Context, span oteltrace.Span, q Query, out *Outcome, err error, start time.Time) (*Outcome, error) {
	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "cancelled")
		return nil, ctx.Err()
	}

	var synthErr *agent.SynthesisError
	if errors.As(err, &synthErr) {
		p.logger.Error(ctx, "synthesis failed, escalating", zap.Error(err))
		return p.escalate(ctx, span, q, out, len(out.Validations), "synthesis failure", start)
	}

	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

func (p *Pipeline) deliver(ctx context.Context, span oteltrace.Span, q Query, out *Outcome, st *agent.State, d Disposition, retries int, start time.Time) (*Outcome, error) {
	out.Answer = st.DraftAnswer
	out.Citations = st.Citations
	out.Disposition = d
	out.Retries = retries
	out.Elapsed = time.Since(start)

	p.finish(ctx, span, q, out)
	return out, nil
}

func (p *Pipeline) escalate(ctx context.Context, span oteltrace.Span, q Query, out *Outcome, retries int, reason string, start time.Time) (*Outcome, error) {
	out.Answer = p.fallback
	out.Citations = nil
	out.Disposition = DispositionEscalated
	out.Retries = retries
	out.Elapsed = time.Since(start)

	p.emit(ctx, audit.Event{
		Kind:      audit.KindEscalation,
		QueryID:   q.ID,
		SessionID: q.SessionID,
		Payload:   map[string]string{"reason": reason},
	})
	p.logger.Warn(ctx, "query escalated",
		zap.String("reason", reason),
		zap.Int("retries", retries))

	p.finish(ctx, span, q, out)
	return out, nil
}

func (p *Pipeline) finish(ctx context.Context, span oteltrace.Span, q Query, out *Outcome) {
	span.SetAttributes(
		attribute.String("query.disposition", string(out.Disposition)),
		attribute.String("query.topic", string(out.Classification.Topic)),
		attribute.Int("query.retries", out.Retries),
		attribute.Float64("query.cost_usd", out.Costs.CostUSD),
	)

	p.emit(ctx, audit.Event{
		Kind:      audit.KindOutcome,
		QueryID:   q.ID,
		SessionID: q.SessionID,
		Payload:   out,
	})

	p.logger.Info(ctx, "query processed",
		logging.MemberHash("member", q.MemberID),
		zap.String("disposition", string(out.Disposition)),
		zap.String("topic", string(out.Classification.Topic)),
		zap.String("tier", out.Classification.Tier.String()),
		zap.Int("retries", out.Retries),
		zap.Int("tool_calls", out.Costs.ToolCalls),
		zap.Float64("cost_usd", out.Costs.CostUSD),
		zap.Duration("elapsed", out.Elapsed))
}

// emit sends an audit event. Audit failures are logged and absorbed; they
// never change a query's outcome.
func (p *Pipeline) emit(ctx context.Context, ev audit.Event) {
	if err := p.sink.Emit(ctx, ev); err != nil {
		p.logger.Warn(ctx, "audit emit failed",
			zap.String("kind", ev.Kind),
			zap.Error(err))
	}
}
