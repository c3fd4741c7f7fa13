package classifier

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pensiond/internal/logging"
	"github.com/fyrsmithlabs/pensiond/internal/profile"
)

var cascadeTracer = otel.Tracer("pensiond.classifier")

// Cascade runs the three classification tiers in cost order and stops at
// the first tier that resolves a topic.
type Cascade struct {
	pattern  *PatternMatcher
	semantic *SemanticMatcher
	llm      *LLMClassifier
	logger   *logging.Logger
}

// NewCascade assembles the cascade. The semantic and LLM tiers are
// optional: a nil tier is skipped, degrading to the next one.
func NewCascade(pattern *PatternMatcher, semantic *SemanticMatcher, llmc *LLMClassifier, logger *logging.Logger) *Cascade {
	return &Cascade{
		pattern:  pattern,
		semantic: semantic,
		llm:      llmc,
		logger:   logger,
	}
}

// Classify resolves the topic for a query. It never returns an error: a
// Tier-3 failure yields the unclassified sentinel with the failure
// recorded so the caller can apply a conservative default.
func (c *Cascade) Classify(ctx context.Context, query string, member profile.MemberContext) Result {
	ctx, span := cascadeTracer.Start(ctx, "classifier.Classify")
	defer span.End()

	start := time.Now()

	// Tier 1: pattern rules, first match wins, cost 0.
	if topic, rule, ok := c.pattern.Match(query); ok {
		res := Result{
			Topic:      topic,
			Tier:       TierPattern,
			Confidence: 1.0,
			CostUSD:    0,
			Latency:    time.Since(start),
			RuleName:   rule,
		}
		c.finish(ctx, span, res)
		return res
	}

	// Tier 2: embedding similarity against the reference set.
	var accumulated float64
	if c.semantic != nil {
		match, ok, err := c.semantic.Match(ctx, query)
		accumulated += match.CostUSD
		if err != nil {
			// Reference-set lookup trouble is not fatal: fall through
			// to Tier 3 the same as a below-threshold miss.
			c.logger.Warn(ctx, "semantic match failed, falling through",
				zap.Error(err))
		} else if ok {
			res := Result{
				Topic:      match.Topic,
				Tier:       TierSemantic,
				Confidence: match.Similarity,
				CostUSD:    accumulated,
				Latency:    time.Since(start),
				Similarity: match.Similarity,
			}
			c.finish(ctx, span, res)
			return res
		}
	}

	// Tier 3: LLM classification. Failure is absorbed here, not raised.
	if c.llm != nil {
		cls, err := c.llm.Classify(ctx, query, member)
		accumulated += cls.CostUSD
		if err == nil {
			res := Result{
				Topic:      cls.Topic,
				Tier:       TierLLM,
				Confidence: cls.Confidence,
				CostUSD:    accumulated,
				Latency:    time.Since(start),
			}
			c.finish(ctx, span, res)
			return res
		}

		c.logger.Warn(ctx, "llm classification failed, returning unclassified",
			zap.Error(err))
		res := Result{
			Topic:   TopicUnclassified,
			Tier:    TierLLM,
			CostUSD: accumulated,
			Latency: time.Since(start),
			Failure: err.Error(),
		}
		c.finish(ctx, span, res)
		return res
	}

	res := Result{
		Topic:   TopicUnclassified,
		Tier:    TierLLM,
		CostUSD: accumulated,
		Latency: time.Since(start),
		Failure: "no llm classifier configured",
	}
	c.finish(ctx, span, res)
	return res
}

func (c *Cascade) finish(ctx context.Context, span trace.Span, res Result) {
	span.SetAttributes(
		attribute.String("topic", string(res.Topic)),
		attribute.String("tier", res.Tier.String()),
		attribute.Float64("confidence", res.Confidence),
		attribute.Float64("cost_usd", res.CostUSD),
	)
	c.logger.Debug(ctx, "query classified",
		zap.String("topic", string(res.Topic)),
		zap.String("tier", res.Tier.String()),
		zap.Float64("confidence", res.Confidence),
		zap.Float64("cost_usd", res.CostUSD),
		zap.Duration("latency", res.Latency),
	)
}
