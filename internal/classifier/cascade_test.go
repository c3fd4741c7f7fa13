package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pensiond/internal/config"
	"github.com/fyrsmithlabs/pensiond/internal/llm"
	"github.com/fyrsmithlabs/pensiond/internal/logging"
	"github.com/fyrsmithlabs/pensiond/internal/profile"
	"github.com/fyrsmithlabs/pensiond/internal/refset"
	"github.com/fyrsmithlabs/pensiond/internal/telemetry"
)

// axisEmbedder produces deterministic axis-aligned vectors keyed on
// keywords, so tests control similarity outcomes exactly.
type axisEmbedder struct{}

var axes = []string{"nest egg", "penalty", "forecast"}

func (axisEmbedder) embed(text string) []float32 {
	v := make([]float32, len(axes)+1)
	hit := false
	for i, kw := range axes {
		if strings.Contains(strings.ToLower(text), kw) {
			v[i] = 1
			hit = true
		}
	}
	if !hit {
		v[len(axes)] = 1
	}
	return v
}

func (e axisEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e axisEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (axisEmbedder) Dimension() int { return len(axes) + 1 }
func (axisEmbedder) Close() error   { return nil }

// stubLLM returns a fixed completion or error.
type stubLLM struct {
	text string
	cost float64
	err  error
}

func (s *stubLLM) Complete(_ context.Context, _ llm.Request) (llm.Completion, error) {
	if s.err != nil {
		return llm.Completion{}, s.err
	}
	return llm.Completion{Text: s.text, CostUSD: s.cost, Latency: time.Millisecond}, nil
}

func (s *stubLLM) Model() string { return "stub" }

func newTestSemantic(t *testing.T, threshold float64) *SemanticMatcher {
	t.Helper()
	store, err := refset.New(config.RefSetConfig{Collection: "cascade_refs"}, axisEmbedder{}, zap.NewNop())
	if err != nil {
		t.Fatalf("creating refset: %v", err)
	}
	if err := store.Add(context.Background(), []refset.Example{
		{Topic: "balance", Text: "how big is my nest egg"},
		{Topic: "early_withdrawal", Text: "what penalty applies"},
		{Topic: "retirement_projection", Text: "forecast my savings"},
	}); err != nil {
		t.Fatalf("seeding refset: %v", err)
	}
	sm, err := NewSemanticMatcher(store, threshold, 0)
	if err != nil {
		t.Fatalf("creating semantic matcher: %v", err)
	}
	return sm
}

func newTestCascade(t *testing.T, llmClient llm.Client) *Cascade {
	t.Helper()
	pm, err := NewPatternMatcher(nil)
	if err != nil {
		t.Fatalf("creating pattern matcher: %v", err)
	}
	var lc *LLMClassifier
	if llmClient != nil {
		lc, err = NewLLMClassifier(llmClient)
		if err != nil {
			t.Fatalf("creating llm classifier: %v", err)
		}
	}
	return NewCascade(pm, newTestSemantic(t, 0.85), lc, logging.NewTestLogger().Logger)
}

func TestCascadePatternTier(t *testing.T) {
	c := newTestCascade(t, &stubLLM{text: `{"topic":"tax","confidence":0.9}`})

	res := c.Classify(context.Background(), "What's my current balance?", profile.MemberContext{})
	if res.Topic != TopicBalance {
		t.Errorf("topic = %q, want balance", res.Topic)
	}
	if res.Tier != TierPattern {
		t.Errorf("tier = %v, want PATTERN", res.Tier)
	}
	if res.CostUSD != 0 {
		t.Errorf("cost = %f, want exactly 0 for pattern matches", res.CostUSD)
	}
	if res.Confidence != 1.0 {
		t.Errorf("confidence = %f, want 1.0", res.Confidence)
	}
	if res.RuleName == "" {
		t.Error("expected rule name")
	}
}

func TestCascadeSemanticTier(t *testing.T) {
	c := newTestCascade(t, &stubLLM{err: errors.New("should not be called")})

	// No pattern rule matches "nest egg"; the reference set does, exactly.
	res := c.Classify(context.Background(), "how big is my nest egg", profile.MemberContext{})
	if res.Topic != TopicBalance {
		t.Errorf("topic = %q, want balance", res.Topic)
	}
	if res.Tier != TierSemantic {
		t.Errorf("tier = %v, want SEMANTIC", res.Tier)
	}
	if res.Similarity < 0.85 {
		t.Errorf("similarity = %f, want >= threshold", res.Similarity)
	}
}

func TestCascadeLLMTier(t *testing.T) {
	c := newTestCascade(t, &stubLLM{text: `{"topic":"early_withdrawal","confidence":0.88}`, cost: 0.002})

	// Neither pattern nor reference set knows this phrasing.
	res := c.Classify(context.Background(), "my cousin said I can get the money somehow?", profile.MemberContext{CountryCode: "US"})
	if res.Topic != TopicEarlyWithdrawal {
		t.Errorf("topic = %q, want early_withdrawal", res.Topic)
	}
	if res.Tier != TierLLM {
		t.Errorf("tier = %v, want LLM", res.Tier)
	}
	if res.Confidence != 0.88 {
		t.Errorf("confidence = %f, want 0.88", res.Confidence)
	}
	if res.CostUSD < 0.002 {
		t.Errorf("cost = %f, want at least the LLM call cost", res.CostUSD)
	}
}

func TestCascadeUnclassifiedOnLLMFailure(t *testing.T) {
	c := newTestCascade(t, &stubLLM{err: errors.New("provider down")})

	res := c.Classify(context.Background(), "my cousin said I can get the money somehow?", profile.MemberContext{})
	if res.Topic != TopicUnclassified {
		t.Errorf("topic = %q, want unclassified sentinel", res.Topic)
	}
	if res.Tier != TierLLM {
		t.Errorf("tier = %v, want LLM", res.Tier)
	}
	if res.Failure == "" {
		t.Error("expected failure detail to be recorded")
	}
	if res.Confidence != 0 {
		t.Errorf("confidence = %f, want 0", res.Confidence)
	}
}

func TestCascadeUnclassifiedOnMalformedOutput(t *testing.T) {
	c := newTestCascade(t, &stubLLM{text: "definitely a tax question"})

	res := c.Classify(context.Background(), "my cousin said I can get the money somehow?", profile.MemberContext{})
	if res.Topic != TopicUnclassified {
		t.Errorf("topic = %q, want unclassified sentinel", res.Topic)
	}
	if res.Failure == "" {
		t.Error("expected failure detail to be recorded")
	}
}

func TestClassifyRecordsSpan(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	tt.Install()

	c := newTestCascade(t, &stubLLM{text: `{"topic":"tax","confidence":0.9}`})
	c.Classify(context.Background(), "What's my current balance?", profile.MemberContext{})

	tt.RequireSpanAttr(t, "classifier.Classify", "topic", "balance")
	tt.RequireSpanAttr(t, "classifier.Classify", "tier", "PATTERN")
	tt.RequireSpanAttr(t, "classifier.Classify", "confidence", 1.0)
}

func TestSemanticTieBreaksLexicographically(t *testing.T) {
	store, err := refset.New(config.RefSetConfig{Collection: "tie_refs"}, axisEmbedder{}, zap.NewNop())
	if err != nil {
		t.Fatalf("creating refset: %v", err)
	}
	// Two reference examples with identical embeddings but different topics.
	if err := store.Add(context.Background(), []refset.Example{
		{Topic: "tax", Text: "what penalty is due"},
		{Topic: "early_withdrawal", Text: "is there a penalty"},
	}); err != nil {
		t.Fatalf("seeding refset: %v", err)
	}
	sm, err := NewSemanticMatcher(store, 0.85, 0)
	if err != nil {
		t.Fatalf("creating semantic matcher: %v", err)
	}

	match, ok, err := sm.Match(context.Background(), "penalty question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a match at similarity 1.0")
	}
	if match.Topic != TopicEarlyWithdrawal {
		t.Errorf("topic = %q, want lexicographically-first early_withdrawal", match.Topic)
	}
}

// brokenQueryEmbedder embeds documents fine but fails query embedding,
// so store seeding works while searches error.
type brokenQueryEmbedder struct{ axisEmbedder }

func (brokenQueryEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding backend down")
}

func TestSemanticSearchErrorKeepsEmbeddingCost(t *testing.T) {
	store, err := refset.New(config.RefSetConfig{Collection: "err_refs"}, brokenQueryEmbedder{}, zap.NewNop())
	if err != nil {
		t.Fatalf("creating refset: %v", err)
	}
	if err := store.Add(context.Background(), []refset.Example{
		{Topic: "balance", Text: "how big is my nest egg"},
	}); err != nil {
		t.Fatalf("seeding refset: %v", err)
	}
	sm, err := NewSemanticMatcher(store, 0.85, 0.02)
	if err != nil {
		t.Fatalf("creating semantic matcher: %v", err)
	}

	match, ok, err := sm.Match(context.Background(), strings.Repeat("a", 40))
	if err == nil {
		t.Fatal("expected search error")
	}
	if ok {
		t.Error("failed search must not report a match")
	}
	// The query embedding was attempted before the failure surfaced; its
	// estimated cost still has to reach the caller.
	want := 10.0 / 1_000_000 * 0.02
	if match.CostUSD != want {
		t.Errorf("cost = %g, want %g", match.CostUSD, want)
	}
}

func TestSemanticEmbeddingCost(t *testing.T) {
	store, err := refset.New(config.RefSetConfig{Collection: "cost_refs"}, axisEmbedder{}, zap.NewNop())
	if err != nil {
		t.Fatalf("creating refset: %v", err)
	}
	sm, err := NewSemanticMatcher(store, 0.85, 0.02)
	if err != nil {
		t.Fatalf("creating semantic matcher: %v", err)
	}

	// 40 chars ~= 10 tokens at 4 chars/token.
	cost := sm.embeddingCost(strings.Repeat("a", 40))
	want := 10.0 / 1_000_000 * 0.02
	if cost != want {
		t.Errorf("cost = %g, want %g", cost, want)
	}
}
