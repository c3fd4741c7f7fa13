// Package validator gates synthesized answers before delivery. An LLM
// judge scores each draft; any malfunction of the judge itself fails
// closed to a rejected, undeliverable record.
package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pensiond/internal/llm"
	"github.com/fyrsmithlabs/pensiond/internal/logging"
	"github.com/fyrsmithlabs/pensiond/internal/profile"
	"github.com/fyrsmithlabs/pensiond/internal/tools"
)

var validatorTracer = otel.Tracer("pensiond.validator")

// Verdict of a validation pass.
type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictFlagged  Verdict = "FLAGGED"
	VerdictRejected Verdict = "REJECTED"
)

// Check identifiers evaluated by the judge.
const (
	CheckRegulatoryAccuracy = "regulatory_accuracy"
	CheckSafety             = "safety"
	CheckCompleteness       = "completeness"
	CheckScopeAdherence     = "scope_adherence"

	// CheckValidatorError marks records produced when the judge itself
	// failed to run.
	CheckValidatorError = "validator_error"
)

// Record is the result of validating one synthesis attempt. One query may
// accumulate several records across retries; all are retained for audit.
type Record struct {
	Confidence     float64  `json:"confidence"`
	Verdict        Verdict  `json:"verdict"`
	ViolatedChecks []string `json:"violated_checks,omitempty"`
	Reasoning      string   `json:"reasoning,omitempty"`
	// CostUSD is the judge-call spend for this record.
	CostUSD float64 `json:"cost_usd"`
}

// MissingData reports whether the record indicates the draft lacked
// gathered data, which routes a retry back through the tool loop instead
// of synthesis alone.
func (r Record) MissingData() bool {
	for _, c := range r.ViolatedChecks {
		if c == CheckCompleteness {
			return true
		}
	}
	return false
}

const judgePrompt = `You are the compliance reviewer for a retirement account question-answering system.

Review the draft answer against these checks:
- regulatory_accuracy: citations present and plausible for the member's country and topic
- safety: no harmful or out-of-scope financial directives
- completeness: addresses all sub-questions implied by the member's question
- scope_adherence: stays within retirement-account topics

Respond with a JSON object containing:
- "confidence": your overall confidence that the answer is correct and deliverable (0.0 to 1.0)
- "failed_checks": array of check identifiers that failed (empty if all passed)
- "reasoning": one or two sentences explaining the score

The confidence is your holistic judgement, not an average of the checks. Respond ONLY with the JSON object, no additional text.`

// Validator runs the confidence-gated review of draft answers.
type Validator struct {
	client           llm.Client
	logger           *logging.Logger
	approveThreshold float64
	flagThreshold    float64
}

// New creates a validator. Thresholds outside (0,1] or inverted are
// rejected.
func New(client llm.Client, logger *logging.Logger, approveThreshold, flagThreshold float64) (*Validator, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if approveThreshold <= 0 || approveThreshold > 1 || flagThreshold <= 0 || flagThreshold >= approveThreshold {
		return nil, fmt.Errorf("invalid thresholds: approve %f, flag %f", approveThreshold, flagThreshold)
	}
	return &Validator{
		client:           client,
		logger:           logger,
		approveThreshold: approveThreshold,
		flagThreshold:    flagThreshold,
	}, nil
}

// Validate reviews one draft answer. It never returns an error: any judge
// malfunction yields a rejected record with confidence 0, because failing
// open is unacceptable for regulated advice.
func (v *Validator) Validate(ctx context.Context, query, draft string, trace *tools.Trace, member profile.MemberContext) Record {
	ctx, span := validatorTracer.Start(ctx, "validator.Validate")
	defer span.End()

	if strings.TrimSpace(draft) == "" {
		rec := Record{
			Verdict:        VerdictRejected,
			ViolatedChecks: []string{CheckCompleteness},
			Reasoning:      "empty draft answer",
		}
		v.finish(ctx, span, rec)
		return rec
	}

	prompt := fmt.Sprintf("Member country: %s\nMember question: %s\n\nData the answer is based on:\n%s\n\nDraft answer:\n%s",
		member.CountryCode, query, trace.Render(), draft)

	completion, err := v.client.Complete(ctx, llm.Request{
		System:    judgePrompt,
		Prompt:    prompt,
		MaxTokens: 512,
	})
	if err != nil {
		return v.failClosed(ctx, span, fmt.Errorf("judge call: %w", err))
	}

	rec, err := parseJudgeJSON(completion.Text)
	if err != nil {
		rec = v.failClosed(ctx, span, err)
		rec.CostUSD = completion.CostUSD
		return rec
	}

	rec.CostUSD = completion.CostUSD
	rec.Verdict = v.verdictFor(rec.Confidence)
	v.finish(ctx, span, rec)
	return rec
}

func (v *Validator) verdictFor(confidence float64) Verdict {
	switch {
	case confidence >= v.approveThreshold:
		return VerdictApproved
	case confidence >= v.flagThreshold:
		return VerdictFlagged
	default:
		return VerdictRejected
	}
}

func (v *Validator) failClosed(ctx context.Context, span oteltrace.Span, err error) Record {
	v.logger.Warn(ctx, "validator malfunction, rejecting draft", zap.Error(err))
	rec := Record{
		Confidence:     0,
		Verdict:        VerdictRejected,
		ViolatedChecks: []string{CheckValidatorError},
		Reasoning:      err.Error(),
	}
	v.finish(ctx, span, rec)
	return rec
}

func (v *Validator) finish(ctx context.Context, span oteltrace.Span, rec Record) {
	span.SetAttributes(
		attribute.Float64("confidence", rec.Confidence),
		attribute.String("verdict", string(rec.Verdict)),
		attribute.StringSlice("violated_checks", rec.ViolatedChecks),
	)
	v.logger.Debug(ctx, "draft validated",
		zap.Float64("confidence", rec.Confidence),
		zap.String("verdict", string(rec.Verdict)),
		zap.Strings("violated_checks", rec.ViolatedChecks),
	)
}

// judgeResponse is the expected LLM output shape.
type judgeResponse struct {
	Confidence   float64  `json:"confidence"`
	FailedChecks []string `json:"failed_checks"`
	Reasoning    string   `json:"reasoning"`
}

// parseJudgeJSON parses the judge response into a Record without verdict.
func parseJudgeJSON(content string) (Record, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var resp judgeResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return Record{}, fmt.Errorf("malformed judge output: %w", err)
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return Record{}, fmt.Errorf("judge confidence %f out of range", resp.Confidence)
	}

	return Record{
		Confidence:     resp.Confidence,
		ViolatedChecks: resp.FailedChecks,
		Reasoning:      resp.Reasoning,
	}, nil
}
