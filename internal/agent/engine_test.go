package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/pensiond/internal/classifier"
	"github.com/fyrsmithlabs/pensiond/internal/llm"
	"github.com/fyrsmithlabs/pensiond/internal/logging"
	"github.com/fyrsmithlabs/pensiond/internal/profile"
	"github.com/fyrsmithlabs/pensiond/internal/tools"
)

// scriptedLLM replays canned completions in order, recording requests.
type scriptedLLM struct {
	mu       sync.Mutex
	script   []func(llm.Request) (llm.Completion, error)
	requests []llm.Request
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.script) == 0 {
		return llm.Completion{}, fmt.Errorf("unexpected llm call: %s", req.Prompt)
	}
	step := s.script[0]
	s.script = s.script[1:]
	return step(req)
}

func (s *scriptedLLM) Model() string { return "scripted" }

func reply(text string, cost float64) func(llm.Request) (llm.Completion, error) {
	return func(llm.Request) (llm.Completion, error) {
		return llm.Completion{Text: text, CostUSD: cost}, nil
	}
}

func fail(err error) func(llm.Request) (llm.Completion, error) {
	return func(llm.Request) (llm.Completion, error) {
		return llm.Completion{}, err
	}
}

func newTestEngine(t *testing.T, client llm.Client, maxIterations int) *Engine {
	t.Helper()
	registry, err := tools.NewBuiltinRegistry()
	require.NoError(t, err)
	e, err := NewEngine(registry, client, logging.NewTestLogger().Logger, maxIterations)
	require.NoError(t, err)
	return e
}

func usMember() profile.MemberContext {
	return profile.MemberContext{
		MemberID:         "m-42",
		Age:              52,
		RetirementAge:    67,
		CountryCode:      "US",
		EmploymentStatus: "employed",
		AnnualSalary:     100000,
		ContributionRate: 0.10,
		Accounts: []profile.Account{
			{ID: "a1", Type: "401k", Balance: 450000, Currency: "USD"},
		},
	}
}

func TestRunDirectPlanFastPath(t *testing.T) {
	client := &scriptedLLM{script: []func(llm.Request) (llm.Completion, error){
		// Only the single synthesis call; no reasoning calls.
		reply(`{"answer": "Your balance is $450,000.00.", "citations": ["balance_lookup"]}`, 0.003),
	}}
	e := newTestEngine(t, client, 5)

	st, err := e.Run(context.Background(), "What's my balance?", usMember(), classifier.Result{
		Topic: classifier.TopicBalance,
		Tier:  classifier.TierPattern,
	})
	require.NoError(t, err)

	assert.Equal(t, TerminationSynthesisReady, st.Termination)
	assert.Equal(t, 1, st.Trace.Len())
	assert.True(t, st.Trace.Succeeded("balance_lookup"))
	assert.Contains(t, st.DraftAnswer, "450,000")
	assert.Equal(t, []string{"balance_lookup"}, st.Citations)
	assert.Equal(t, 1, st.Costs.LLMCalls)
	assert.Equal(t, 1, st.Costs.ToolCalls)
	require.Len(t, client.requests, 1)
	assert.Contains(t, client.requests[0].Prompt, "balance_lookup")
}

func TestRunLLMTierUsesReasoning(t *testing.T) {
	client := &scriptedLLM{script: []func(llm.Request) (llm.Completion, error){
		reply(`{"action": "call_tool", "tool": "withdrawal_rules"}`, 0.001),
		reply(`{"action": "synthesize"}`, 0.001),
		reply(`{"answer": "You can access your funds at 59 and a half.", "citations": ["withdrawal_rules"]}`, 0.003),
	}}
	e := newTestEngine(t, client, 5)

	st, err := e.Run(context.Background(), "my cousin said I can get the money somehow?", usMember(), classifier.Result{
		Topic: classifier.TopicEarlyWithdrawal,
		Tier:  classifier.TierLLM,
	})
	require.NoError(t, err)

	assert.Equal(t, TerminationSynthesisReady, st.Termination)
	assert.Equal(t, 2, st.Iterations)
	assert.Equal(t, 1, st.Trace.Len())
	assert.True(t, st.Trace.Succeeded("withdrawal_rules"))
	assert.Equal(t, 3, st.Costs.LLMCalls)
}

func TestRunPlannedToolFailureFallsBackToReasoning(t *testing.T) {
	client := &scriptedLLM{script: []func(llm.Request) (llm.Completion, error){
		reply(`{"action": "synthesize"}`, 0.001),
		reply(`{"answer": "I could not retrieve your balance.", "citations": []}`, 0.002),
	}}
	e := newTestEngine(t, client, 5)

	// No accounts: balance_lookup fails, the loop re-reasons over the
	// failure instead of aborting.
	member := usMember()
	member.Accounts = nil

	st, err := e.Run(context.Background(), "What's my balance?", member, classifier.Result{
		Topic: classifier.TopicBalance,
		Tier:  classifier.TierPattern,
	})
	require.NoError(t, err)

	assert.Equal(t, TerminationSynthesisReady, st.Termination)
	require.Equal(t, 1, st.Trace.Len())
	assert.Equal(t, tools.StatusFailure, st.Trace.Steps[0].Result.Status)
	// The reasoning prompt must show the failure.
	assert.Contains(t, client.requests[0].Prompt, "failed:")
}

func TestRunMaxIterations(t *testing.T) {
	keepCalling := reply(`{"action": "call_tool", "tool": "balance_lookup"}`, 0.001)
	client := &scriptedLLM{script: []func(llm.Request) (llm.Completion, error){
		keepCalling, keepCalling, keepCalling,
		reply(`{"answer": "partial", "citations": []}`, 0.002),
	}}
	e := newTestEngine(t, client, 3)

	st, err := e.Run(context.Background(), "something odd", usMember(), classifier.Result{
		Topic: classifier.TopicTax,
		Tier:  classifier.TierLLM,
	})
	require.NoError(t, err)

	assert.Equal(t, TerminationMaxIterations, st.Termination)
	assert.Equal(t, 3, st.Iterations)
	assert.Equal(t, 3, st.Trace.Len())
	// Synthesis still ran exactly once, told about the early end.
	last := client.requests[len(client.requests)-1]
	assert.Contains(t, last.Prompt, "MAX_ITERATIONS")
}

func TestRunMalformedDecisionFailsClosed(t *testing.T) {
	client := &scriptedLLM{script: []func(llm.Request) (llm.Completion, error){
		reply(`let me think about which tool to use...`, 0.001),
		reply(`{"answer": "best effort", "citations": []}`, 0.002),
	}}
	e := newTestEngine(t, client, 5)

	st, err := e.Run(context.Background(), "something odd", usMember(), classifier.Result{
		Topic: classifier.TopicTax,
		Tier:  classifier.TierLLM,
	})
	require.NoError(t, err)

	assert.Equal(t, TerminationExhausted, st.Termination)
	assert.Equal(t, 0, st.Trace.Len())
	assert.Equal(t, "best effort", st.DraftAnswer)
}

func TestRunSynthesisFailureIsFatal(t *testing.T) {
	client := &scriptedLLM{script: []func(llm.Request) (llm.Completion, error){
		fail(errors.New("provider down")),
	}}
	e := newTestEngine(t, client, 5)

	st, err := e.Run(context.Background(), "What's my balance?", usMember(), classifier.Result{
		Topic: classifier.TopicBalance,
		Tier:  classifier.TierPattern,
	})
	require.Error(t, err)

	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
	assert.Empty(t, st.DraftAnswer)
}

func TestRunCancellation(t *testing.T) {
	client := &scriptedLLM{}
	e := newTestEngine(t, client, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st, err := e.Run(ctx, "What's my balance?", usMember(), classifier.Result{
		Topic: classifier.TopicBalance,
		Tier:  classifier.TierPattern,
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, TerminationCancelled, st.Termination)
}

func TestResumePreservesTraceAndCarriesFeedback(t *testing.T) {
	client := &scriptedLLM{script: []func(llm.Request) (llm.Completion, error){
		reply(`{"answer": "first draft", "citations": ["balance_lookup"]}`, 0.002),
	}}
	e := newTestEngine(t, client, 5)

	st, err := e.Run(context.Background(), "What's my balance?", usMember(), classifier.Result{
		Topic: classifier.TopicBalance,
		Tier:  classifier.TierPattern,
	})
	require.NoError(t, err)
	priorSteps := st.Trace.Len()
	priorIterations := st.Iterations

	client.mu.Lock()
	client.script = []func(llm.Request) (llm.Completion, error){
		reply(`{"action": "synthesize"}`, 0.001),
		reply(`{"answer": "second draft with citations", "citations": ["balance_lookup"]}`, 0.002),
	}
	client.mu.Unlock()

	require.NoError(t, e.Resume(context.Background(), st, "completeness: missing citation detail"))

	assert.Equal(t, "second draft with citations", st.DraftAnswer)
	assert.Equal(t, priorSteps, st.Trace.Len(), "tools already called must not be re-called")
	assert.Greater(t, st.Iterations, priorIterations)

	// Both the re-entered reasoning call and the synthesis call carry the
	// validator feedback.
	n := len(client.requests)
	assert.Contains(t, client.requests[n-2].Prompt, "completeness: missing citation detail")
	assert.Contains(t, client.requests[n-1].Prompt, "completeness: missing citation detail")
}

func TestSynthesizeOnlyForTextRetry(t *testing.T) {
	client := &scriptedLLM{script: []func(llm.Request) (llm.Completion, error){
		reply(`{"answer": "draft one", "citations": []}`, 0.002),
		reply(`{"answer": "draft two", "citations": []}`, 0.002),
	}}
	e := newTestEngine(t, client, 5)

	st, err := e.Run(context.Background(), "What's my balance?", usMember(), classifier.Result{
		Topic: classifier.TopicBalance,
		Tier:  classifier.TierPattern,
	})
	require.NoError(t, err)
	require.Equal(t, "draft one", st.DraftAnswer)

	require.NoError(t, e.Synthesize(context.Background(), st, "safety: soften the directive"))
	assert.Equal(t, "draft two", st.DraftAnswer)
	assert.Contains(t, client.requests[len(client.requests)-1].Prompt, "safety: soften the directive")
}

func TestParseDecisionJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    decision
		wantErr bool
	}{
		{
			name:    "call tool",
			content: `{"action": "call_tool", "tool": "tax_estimate", "parameters": {"amount": "1000"}}`,
			want:    decision{Action: actionCallTool, Tool: "tax_estimate", Parameters: map[string]string{"amount": "1000"}},
		},
		{
			name:    "synthesize fenced",
			content: "```json\n{\"action\": \"synthesize\"}\n```",
			want:    decision{Action: actionSynthesize},
		},
		{name: "missing tool", content: `{"action": "call_tool"}`, wantErr: true},
		{name: "unknown action", content: `{"action": "ponder"}`, wantErr: true},
		{name: "prose", content: "I shall now call a tool.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := parseDecisionJSON(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestParseSynthesisJSONFallback(t *testing.T) {
	answer, citations := parseSynthesisJSON(`{"answer": "hello", "citations": ["a"]}`)
	assert.Equal(t, "hello", answer)
	assert.Equal(t, []string{"a"}, citations)

	answer, citations = parseSynthesisJSON("Just plain prose answer.")
	assert.Equal(t, "Just plain prose answer.", answer)
	assert.Nil(t, citations)

	answer, _ = parseSynthesisJSON(strings.TrimSpace("```json\n{\"answer\": \"fenced\"}\n```"))
	assert.Equal(t, "fenced", answer)
}
