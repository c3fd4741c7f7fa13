package tools

import (
	"github.com/fyrsmithlabs/pensiond/internal/classifier"
)

// PlanFor returns the pre-registered tool sequence for a topic. The loop
// invokes these directly on high-confidence classifications, skipping LLM
// reasoning on the first iteration. The unclassified sentinel maps to a
// conservative single read.
func PlanFor(topic classifier.Topic) []string {
	switch topic {
	case classifier.TopicBalance:
		return []string{"balance_lookup"}
	case classifier.TopicContributions:
		return []string{"contribution_history"}
	case classifier.TopicTax:
		return []string{"tax_estimate"}
	case classifier.TopicEarlyWithdrawal:
		return []string{"withdrawal_rules", "tax_estimate", "balance_lookup"}
	case classifier.TopicRetirementProjection:
		return []string{"balance_lookup", "benefit_projection"}
	case classifier.TopicEligibility:
		return []string{"withdrawal_rules"}
	default:
		return []string{"balance_lookup"}
	}
}
