// Package classifier decides the topic of a member query through a tiered
// cascade: zero-cost pattern rules first, embedding similarity against a
// labeled reference set second, and an LLM classifier last.
package classifier

import (
	"time"
)

// Topic is the subject a query is classified under.
type Topic string

const (
	TopicBalance              Topic = "balance"
	TopicContributions        Topic = "contributions"
	TopicTax                  Topic = "tax"
	TopicEarlyWithdrawal      Topic = "early_withdrawal"
	TopicRetirementProjection Topic = "retirement_projection"
	TopicEligibility          Topic = "eligibility"

	// TopicUnclassified is the sentinel assigned when every tier fails to
	// resolve a topic. Downstream logic applies a conservative default
	// tool set for it.
	TopicUnclassified Topic = "unclassified"
)

// AllTopics lists the classifiable topics, excluding the sentinel.
func AllTopics() []Topic {
	return []Topic{
		TopicBalance,
		TopicContributions,
		TopicTax,
		TopicEarlyWithdrawal,
		TopicRetirementProjection,
		TopicEligibility,
	}
}

// ValidTopic reports whether t is a known classifiable topic.
func ValidTopic(t Topic) bool {
	for _, known := range AllTopics() {
		if t == known {
			return true
		}
	}
	return false
}

// Tier identifies which cascade stage produced the final topic,
// in increasing cost order.
type Tier int

const (
	TierPattern Tier = iota + 1
	TierSemantic
	TierLLM
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierPattern:
		return "PATTERN"
	case TierSemantic:
		return "SEMANTIC"
	case TierLLM:
		return "LLM"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome of classifying one query. Tier strictly reflects
// the stage that produced the final topic.
type Result struct {
	Topic      Topic
	Tier       Tier
	Confidence float64
	// CostUSD is the external-call spend of the resolving tier. Exactly 0
	// for pattern matches.
	CostUSD float64
	Latency time.Duration
	// RuleName is set for pattern matches.
	RuleName string
	// Similarity is set for semantic matches.
	Similarity float64
	// Failure records a Tier-3 provider or parse error. Non-empty only
	// when Topic is TopicUnclassified.
	Failure string
}
