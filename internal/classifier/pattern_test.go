package classifier

import (
	"testing"
)

func TestPatternMatcherDefaults(t *testing.T) {
	m, err := NewPatternMatcher(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		query     string
		wantTopic Topic
		wantMatch bool
	}{
		{"What's my current balance?", TopicBalance, true},
		{"how much money do I have in my account", TopicBalance, true},
		{"Can I withdraw early without penalty?", TopicEarlyWithdrawal, true},
		{"I need a hardship withdrawal", TopicEarlyWithdrawal, true},
		{"does my employer match contributions", TopicContributions, true},
		{"is my pension taxable", TopicTax, true},
		{"am I on track to retire comfortably", TopicRetirementProjection, true},
		{"when can I retire", TopicEligibility, true},
		{"tell me about the weather", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			topic, rule, ok := m.Match(tt.query)
			if ok != tt.wantMatch {
				t.Fatalf("match = %v, want %v", ok, tt.wantMatch)
			}
			if !ok {
				return
			}
			if topic != tt.wantTopic {
				t.Errorf("topic = %q (rule %q), want %q", topic, rule, tt.wantTopic)
			}
			if rule == "" {
				t.Error("expected rule name on match")
			}
		})
	}
}

func TestPatternMatcherFirstMatchWins(t *testing.T) {
	m, err := NewPatternMatcher([]Rule{
		{Name: "first", Regex: `(?i)balance`, Topic: TopicBalance},
		{Name: "second", Regex: `(?i)balance`, Topic: TopicTax},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	topic, rule, ok := m.Match("what is my balance")
	if !ok {
		t.Fatal("expected match")
	}
	if topic != TopicBalance || rule != "first" {
		t.Errorf("got topic=%q rule=%q, want registration-order winner", topic, rule)
	}
}

func TestPatternMatcherInvalidRules(t *testing.T) {
	if _, err := NewPatternMatcher([]Rule{{Name: "bad", Regex: `[`, Topic: TopicBalance}}); err == nil {
		t.Error("expected error for invalid regex")
	}
	if _, err := NewPatternMatcher([]Rule{{Name: "bad", Regex: `x`, Topic: "nonsense"}}); err == nil {
		t.Error("expected error for unknown topic")
	}
	if _, err := NewPatternMatcher([]Rule{{Regex: `x`, Topic: TopicBalance}}); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestEarlyWithdrawalBeatsBalanceRule(t *testing.T) {
	m, err := NewPatternMatcher(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mentions money access but the early-withdrawal rule is registered
	// first and must win.
	topic, _, ok := m.Match("can I access my savings early, I know my current balance")
	if !ok || topic != TopicEarlyWithdrawal {
		t.Errorf("topic = %q, want early_withdrawal", topic)
	}
}
