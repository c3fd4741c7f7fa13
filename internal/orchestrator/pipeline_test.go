package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/pensiond/internal/agent"
	"github.com/fyrsmithlabs/pensiond/internal/audit"
	"github.com/fyrsmithlabs/pensiond/internal/classifier"
	"github.com/fyrsmithlabs/pensiond/internal/llm"
	"github.com/fyrsmithlabs/pensiond/internal/logging"
	"github.com/fyrsmithlabs/pensiond/internal/profile"
	"github.com/fyrsmithlabs/pensiond/internal/router"
	"github.com/fyrsmithlabs/pensiond/internal/telemetry"
	"github.com/fyrsmithlabs/pensiond/internal/tools"
	"github.com/fyrsmithlabs/pensiond/internal/validator"
)

const testFallback = "We couldn't confidently answer your question automatically. " +
	"Our member services team will be in touch."

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

func synthesisReply(answer string, citations ...string) func(llm.Request) (llm.Completion, error) {
	quoted := make([]string, len(citations))
	for i, c := range citations {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	text := fmt.Sprintf(`{"answer": %q, "citations": [%s]}`, answer, strings.Join(quoted, ", "))
	return reply(text, 0.002)
}

func judgeReply(confidence float64, failedChecks ...string) func(llm.Request) (llm.Completion, error) {
	quoted := make([]string, len(failedChecks))
	for i, c := range failedChecks {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	text := fmt.Sprintf(`{"confidence": %.2f, "failed_checks": [%s], "reasoning": "review"}`,
		confidence, strings.Join(quoted, ", "))
	return reply(text, 0.001)
}

// memorySink records emitted audit events for assertions.
type memorySink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *memorySink) Emit(_ context.Context, ev audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

type pipelineFixture struct {
	pipeline *Pipeline
	engine   *scriptedLLM
	judge    *scriptedLLM
	sink     *memorySink
	logs     *logging.TestLogger
}

// newFixture assembles a pipeline with scripted engine and judge clients.
// The classifier resolves through pattern rules only, so queries with
// topic keywords never consume a script step.
func newFixture(t *testing.T, engineScript, judgeScript []func(llm.Request) (llm.Completion, error), maxRetries int) *pipelineFixture {
	t.Helper()

	testLogger := logging.NewTestLogger()
	logger := testLogger.Logger

	store := profile.NewStaticStore()
	store.Put(profile.MemberContext{
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
	})

	pattern, err := classifier.NewPatternMatcher(nil)
	require.NoError(t, err)
	cascade := classifier.NewCascade(pattern, nil, nil, logger)

	registry, err := tools.NewBuiltinRegistry()
	require.NoError(t, err)

	engineClient := &scriptedLLM{script: engineScript}
	engine, err := agent.NewEngine(registry, engineClient, logger, 5)
	require.NoError(t, err)

	judgeClient := &scriptedLLM{script: judgeScript}
	v, err := validator.New(judgeClient, logger, 0.90, 0.70)
	require.NoError(t, err)

	r, err := router.New(0.90, 0.70, maxRetries)
	require.NoError(t, err)

	sink := &memorySink{}
	p, err := NewPipeline(store, cascade, engine, v, r, sink, logger, testFallback)
	require.NoError(t, err)

	return &pipelineFixture{pipeline: p, engine: engineClient, judge: judgeClient, sink: sink, logs: testLogger}
}

func TestProcessDeliversApprovedAnswer(t *testing.T) {
	fx := newFixture(t,
		[]func(llm.Request) (llm.Completion, error){
			synthesisReply("Your total balance is $450,000.00.", "balance_lookup"),
		},
		[]func(llm.Request) (llm.Completion, error){
			judgeReply(0.95),
		},
		2,
	)

	out, err := fx.pipeline.Process(context.Background(), Query{
		Text:     "What is my account balance?",
		MemberID: "m-42",
	})
	require.NoError(t, err)

	assert.Equal(t, DispositionDelivered, out.Disposition)
	assert.Equal(t, "Your total balance is $450,000.00.", out.Answer)
	assert.Equal(t, []string{"balance_lookup"}, out.Citations)
	assert.Equal(t, classifier.TopicBalance, out.Classification.Topic)
	assert.Equal(t, classifier.TierPattern, out.Classification.Tier)
	assert.Equal(t, 0, out.Retries)
	assert.Len(t, out.Validations, 1)
	assert.NotEmpty(t, out.QueryID)

	// Pattern tier spends nothing on classification; the rest is one
	// synthesis call, one judge call, one tool call.
	assert.Equal(t, 2, out.Costs.LLMCalls)
	assert.Equal(t, 1, out.Costs.ToolCalls)
	assert.InDelta(t, 0.003, out.Costs.CostUSD, 1e-9)

	assert.Equal(t, []string{audit.KindClassification, audit.KindValidation, audit.KindOutcome}, fx.sink.kinds())

	cls, ok := fx.sink.events[0].Payload.(classifier.Result)
	require.True(t, ok)
	assert.Equal(t, classifier.TopicBalance, cls.Topic)
	assert.Equal(t, classifier.TierPattern, cls.Tier)
}

func TestProcessRecordsPipelineSpan(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	tt.Install()

	fx := newFixture(t,
		[]func(llm.Request) (llm.Completion, error){
			synthesisReply("Your total balance is $450,000.00.", "balance_lookup"),
		},
		[]func(llm.Request) (llm.Completion, error){
			judgeReply(0.95),
		},
		2,
	)

	out, err := fx.pipeline.Process(context.Background(), Query{
		Text:     "What is my account balance?",
		MemberID: "m-42",
	})
	require.NoError(t, err)

	tt.RequireSpanAttr(t, "pipeline.process", "query.id", out.QueryID)
	tt.RequireSpanAttr(t, "pipeline.process", "query.disposition", "DELIVERED")
	tt.RequireSpanAttr(t, "pipeline.process", "query.topic", "balance")
	tt.RequireSpanAttr(t, "pipeline.process", "query.retries", int64(0))
}

func TestProcessRetriesSynthesisThenDeliversFlagged(t *testing.T) {
	fx := newFixture(t,
		[]func(llm.Request) (llm.Completion, error){
			synthesisReply("First draft."),
			synthesisReply("Second, more careful draft."),
		},
		[]func(llm.Request) (llm.Completion, error){
			judgeReply(0.55, validator.CheckRegulatoryAccuracy),
			judgeReply(0.80),
		},
		2,
	)

	out, err := fx.pipeline.Process(context.Background(), Query{
		Text:     "What is my account balance?",
		MemberID: "m-42",
	})
	require.NoError(t, err)

	assert.Equal(t, DispositionDeliveredFlagged, out.Disposition)
	assert.Equal(t, "Second, more careful draft.", out.Answer)
	assert.Equal(t, 1, out.Retries)
	require.Len(t, out.Validations, 2)
	assert.Equal(t, validator.VerdictRejected, out.Validations[0].Verdict)
	assert.Equal(t, validator.VerdictFlagged, out.Validations[1].Verdict)

	// The retry synthesis carries the judge's reasoning and the checks
	// the draft failed as feedback.
	last := fx.engine.requests[len(fx.engine.requests)-1]
	assert.Contains(t, last.Prompt, "review")
	assert.Contains(t, last.Prompt, validator.CheckRegulatoryAccuracy)
}

func TestProcessMissingDataRetryGoesBackThroughTools(t *testing.T) {
	fx := newFixture(t,
		[]func(llm.Request) (llm.Completion, error){
			synthesisReply("Draft without contribution data."),
			// Resume re-enters the reasoning loop: one decision, then
			// the second synthesis.
			reply(`{"action": "call_tool", "tool": "contribution_history", "parameters": {}}`, 0.001),
			reply(`{"action": "synthesize"}`, 0.001),
			synthesisReply("Draft with contribution data.", "contribution_history"),
		},
		[]func(llm.Request) (llm.Completion, error){
			judgeReply(0.50, validator.CheckCompleteness),
			judgeReply(0.93),
		},
		2,
	)

	out, err := fx.pipeline.Process(context.Background(), Query{
		Text:     "What is my account balance?",
		MemberID: "m-42",
	})
	require.NoError(t, err)

	assert.Equal(t, DispositionDelivered, out.Disposition)
	assert.Equal(t, "Draft with contribution data.", out.Answer)
	assert.Equal(t, 1, out.Retries)

	// The first pass called balance_lookup, the resumed pass added
	// contribution_history on top of the preserved trace.
	assert.True(t, out.Trace.Called("balance_lookup"))
	assert.True(t, out.Trace.Called("contribution_history"))
}

func TestProcessAmbiguousQueryReasonsThroughFailure(t *testing.T) {
	logger := logging.NewTestLogger().Logger

	store := profile.NewStaticStore()
	store.Put(profile.MemberContext{
		MemberID:         "m-77",
		Age:              48,
		RetirementAge:    67,
		CountryCode:      "AU",
		EmploymentStatus: "employed",
		AnnualSalary:     90000,
		ContributionRate: 0.11,
	})

	// No pattern rule matches the query, so classification falls through
	// to the LLM tier.
	classifyClient := &scriptedLLM{script: []func(llm.Request) (llm.Completion, error){
		reply(`{"topic": "tax", "confidence": 0.72}`, 0.001),
	}}
	pattern, err := classifier.NewPatternMatcher(nil)
	require.NoError(t, err)
	llmc, err := classifier.NewLLMClassifier(classifyClient)
	require.NoError(t, err)
	cascade := classifier.NewCascade(pattern, nil, llmc, logger)

	engineClient := &scriptedLLM{script: []func(llm.Request) (llm.Completion, error){
		// The member has no accounts, so the lookup fails and reasoning
		// moves on to synthesis over the partial trace.
		reply(`{"action": "call_tool", "tool": "balance_lookup", "parameters": {}}`, 0.001),
		reply(`{"action": "synthesize"}`, 0.001),
		synthesisReply("Partial answer from incomplete data."),
		synthesisReply("Careful answer acknowledging missing balance data."),
	}}
	registry, err := tools.NewBuiltinRegistry()
	require.NoError(t, err)
	engine, err := agent.NewEngine(registry, engineClient, logger, 5)
	require.NoError(t, err)

	judgeClient := &scriptedLLM{script: []func(llm.Request) (llm.Completion, error){
		judgeReply(0.55, validator.CheckRegulatoryAccuracy),
		judgeReply(0.80),
	}}
	v, err := validator.New(judgeClient, logger, 0.90, 0.70)
	require.NoError(t, err)

	r, err := router.New(0.90, 0.70, 2)
	require.NoError(t, err)

	sink := &memorySink{}
	p, err := NewPipeline(store, cascade, engine, v, r, sink, logger, testFallback)
	require.NoError(t, err)

	out, err := p.Process(context.Background(), Query{
		Text:     "Can you help me understand my situation?",
		MemberID: "m-77",
	})
	require.NoError(t, err)

	assert.Equal(t, classifier.TierLLM, out.Classification.Tier)
	assert.Equal(t, classifier.TopicTax, out.Classification.Topic)
	assert.Equal(t, DispositionDeliveredFlagged, out.Disposition)
	assert.Equal(t, "Careful answer acknowledging missing balance data.", out.Answer)
	assert.Equal(t, 1, out.Retries)
	assert.True(t, out.Trace.Called("balance_lookup"))
	assert.False(t, out.Trace.Succeeded("balance_lookup"))

	// One classification, two reasoning, two synthesis, two judge calls.
	assert.Equal(t, 7, out.Costs.LLMCalls)
}

func TestProcessEscalatesWhenRetriesExhausted(t *testing.T) {
	fx := newFixture(t,
		[]func(llm.Request) (llm.Completion, error){
			synthesisReply("Draft one."),
			synthesisReply("Draft two."),
		},
		[]func(llm.Request) (llm.Completion, error){
			judgeReply(0.40),
			judgeReply(0.45),
		},
		1,
	)

	out, err := fx.pipeline.Process(context.Background(), Query{
		Text:     "What is my account balance?",
		MemberID: "m-42",
	})
	require.NoError(t, err)

	assert.Equal(t, DispositionEscalated, out.Disposition)
	assert.Equal(t, testFallback, out.Answer)
	assert.Nil(t, out.Citations)
	assert.Equal(t, 1, out.Retries)
	assert.Len(t, out.Validations, 2)

	kinds := fx.sink.kinds()
	assert.Equal(t, audit.KindClassification, kinds[0])
	assert.Contains(t, kinds, audit.KindEscalation)
	assert.Equal(t, audit.KindOutcome, kinds[len(kinds)-1])
}

func TestProcessEscalatesOnSynthesisFailure(t *testing.T) {
	fx := newFixture(t,
		[]func(llm.Request) (llm.Completion, error){
			fail(errors.New("provider unavailable")),
		},
		nil,
		2,
	)

	out, err := fx.pipeline.Process(context.Background(), Query{
		Text:     "What is my account balance?",
		MemberID: "m-42",
	})
	require.NoError(t, err)

	assert.Equal(t, DispositionEscalated, out.Disposition)
	assert.Equal(t, testFallback, out.Answer)
	assert.Empty(t, out.Validations)
	assert.Contains(t, fx.sink.kinds(), audit.KindEscalation)
}

func TestProcessUnknownMember(t *testing.T) {
	fx := newFixture(t, nil, nil, 2)

	_, err := fx.pipeline.Process(context.Background(), Query{
		Text:     "What is my account balance?",
		MemberID: "nobody",
	})
	assert.ErrorIs(t, err, profile.ErrNotFound)

	// The failure is logged with a hashed member field; the raw member
	// identifier never reaches the log.
	entries := fx.logs.FilterMessage("profile fetch failed").All()
	require.Len(t, entries, 1)
	var hashed string
	for _, f := range entries[0].Context {
		if f.Key == "member" {
			hashed = f.String
		}
	}
	assert.NotEmpty(t, hashed)
	assert.NotEqual(t, "nobody", hashed)
}

func TestProcessRejectsEmptyInput(t *testing.T) {
	fx := newFixture(t, nil, nil, 2)

	_, err := fx.pipeline.Process(context.Background(), Query{MemberID: "m-42"})
	assert.ErrorContains(t, err, "query text")

	_, err = fx.pipeline.Process(context.Background(), Query{Text: "hello"})
	assert.ErrorContains(t, err, "member id")
}

func TestProcessCancelledContext(t *testing.T) {
	fx := newFixture(t, nil, nil, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.pipeline.Process(ctx, Query{
		Text:     "What is my account balance?",
		MemberID: "m-42",
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPipelineValidation(t *testing.T) {
	logger := logging.NewTestLogger().Logger

	_, err := NewPipeline(nil, nil, nil, nil, nil, nil, logger, testFallback)
	assert.ErrorContains(t, err, "required")

	pattern, err := classifier.NewPatternMatcher(nil)
	require.NoError(t, err)
	cascade := classifier.NewCascade(pattern, nil, nil, logger)
	registry, err := tools.NewBuiltinRegistry()
	require.NoError(t, err)
	engine, err := agent.NewEngine(registry, &scriptedLLM{}, logger, 5)
	require.NoError(t, err)
	v, err := validator.New(&scriptedLLM{}, logger, 0.90, 0.70)
	require.NoError(t, err)
	r, err := router.New(0.90, 0.70, 2)
	require.NoError(t, err)

	_, err = NewPipeline(profile.NewStaticStore(), cascade, engine, v, r, nil, logger, "")
	assert.ErrorContains(t, err, "fallback")
}
