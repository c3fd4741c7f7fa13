package classifier

import (
	"fmt"
	"regexp"
)

// Rule is a single pattern rule mapping a regular expression to a topic.
type Rule struct {
	Name  string `json:"name"`
	Regex string `json:"regex"`
	Topic Topic  `json:"topic"`
}

// compiledRule holds a pre-compiled rule.
type compiledRule struct {
	Rule
	regex *regexp.Regexp
}

// PatternMatcher is the zero-cost first tier. Rules are tested in
// registration order and the first match wins.
type PatternMatcher struct {
	rules []*compiledRule
}

// NewPatternMatcher compiles the given rules, preserving order. An empty
// rule set falls back to DefaultRules.
func NewPatternMatcher(rules []Rule) (*PatternMatcher, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	compiled := make([]*compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Name == "" || !ValidTopic(r.Topic) {
			return nil, fmt.Errorf("rule %q: missing name or invalid topic %q", r.Name, r.Topic)
		}
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			return nil, fmt.Errorf("rule %q: compiling regex: %w", r.Name, err)
		}
		compiled = append(compiled, &compiledRule{Rule: r, regex: re})
	}

	return &PatternMatcher{rules: compiled}, nil
}

// Match tests the query text against the rules in registration order.
// Returns the topic and rule name of the first match.
func (m *PatternMatcher) Match(text string) (Topic, string, bool) {
	for _, r := range m.rules {
		if r.regex.MatchString(text) {
			return r.Topic, r.Name, true
		}
	}
	return "", "", false
}

// DefaultRules returns the built-in pattern rules. Order matters: more
// specific rules come first so first-match-wins resolves overlaps
// deterministically.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:  "early_withdrawal",
			Regex: `(?i)\b(early\s+withdraw\w*|withdraw\w*\s+(early|before)|hardship|cash\s+out|access\s+my\s+(money|funds|savings)\s+(now|early|before))\b`,
			Topic: TopicEarlyWithdrawal,
		},
		{
			Name:  "balance",
			Regex: `(?i)\b((current|account|total)\s+balance|balance\s+(of|in)\s+my|how\s+much\s+(money\s+)?(do\s+i|is\s+in|have\s+i\s+(got|saved)))\b`,
			Topic: TopicBalance,
		},
		{
			Name:  "contributions",
			Regex: `(?i)\b(contribut\w+|employer\s+match\w*|salary\s+sacrifice|top\s+up\s+my\s+(pension|super|account))\b`,
			Topic: TopicContributions,
		},
		{
			Name:  "tax",
			Regex: `(?i)\b(tax\w*|deduct\w+|taxable|after[- ]tax|pre[- ]tax)\b`,
			Topic: TopicTax,
		},
		{
			Name:  "retirement_projection",
			Regex: `(?i)\b(project\w*|forecast\w*|on\s+track|how\s+much\s+will\s+i\s+have|retirement\s+income|income\s+(at|in)\s+retirement)\b`,
			Topic: TopicRetirementProjection,
		},
		{
			Name:  "eligibility",
			Regex: `(?i)\b(eligib\w+|qualify\w*|when\s+can\s+i\s+(retire|start|claim|take)|preservation\s+age|retirement\s+age)\b`,
			Topic: TopicEligibility,
		},
	}
}
