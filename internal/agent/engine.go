package agent

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pensiond/internal/classifier"
	"github.com/fyrsmithlabs/pensiond/internal/llm"
	"github.com/fyrsmithlabs/pensiond/internal/logging"
	"github.com/fyrsmithlabs/pensiond/internal/profile"
	"github.com/fyrsmithlabs/pensiond/internal/tools"
)

var agentTracer = otel.Tracer("pensiond.agent")

// defaultMaxIterations bounds REASON/ACT/OBSERVE cycles per loop entry.
const defaultMaxIterations = 5

const reasonPrompt = `You are the planning step of a retirement account question-answering system.

Given the member's question, the classified topic, and the results of tools called so far, decide the single next action.

Available tools:
%s
Respond with a JSON object, one of:
- {"action": "call_tool", "tool": "<tool name>", "parameters": {"<key>": "<value>"}}
- {"action": "synthesize"}

Choose "synthesize" once the gathered data is sufficient to answer, or when no remaining tool can help. Do not call a tool that already succeeded. Respond ONLY with the JSON object, no additional text.`

const synthesisPrompt = `You are the answer-writing step of a retirement account question-answering system.

Write a clear, factual answer to the member's question using ONLY the data gathered by the tools. Do not invent figures. Cite the tools whose data you used.

Respond with a JSON object containing:
- "answer": the answer text for the member
- "citations": array of tool names whose data the answer relies on

Respond ONLY with the JSON object, no additional text.`

// Engine drives the bounded tool-orchestration loop for one query at a
// time. Engines are stateless across queries and safe for concurrent use.
type Engine struct {
	registry      *tools.Registry
	client        llm.Client
	logger        *logging.Logger
	maxIterations int
}

// NewEngine creates a loop engine. maxIterations <= 0 selects the default.
func NewEngine(registry *tools.Registry, client llm.Client, logger *logging.Logger, maxIterations int) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &Engine{
		registry:      registry,
		client:        client,
		logger:        logger,
		maxIterations: maxIterations,
	}, nil
}

// Run executes the full loop for a query: gather data, then synthesize
// exactly once. The returned error is either a context cancellation or a
// *SynthesisError; tool and reasoning failures are absorbed into the
// state instead.
func (e *Engine) Run(ctx context.Context, query string, member profile.MemberContext, cls classifier.Result) (*State, error) {
	ctx, span := agentTracer.Start(ctx, "agent.Run")
	defer span.End()

	st := &State{
		Query:          query,
		Member:         member,
		Classification: cls,
	}

	if err := e.gather(ctx, st, ""); err != nil {
		return st, err
	}
	if err := e.Synthesize(ctx, st, ""); err != nil {
		return st, err
	}

	span.SetAttributes(
		attribute.String("termination", string(st.Termination)),
		attribute.Int("iterations", st.Iterations),
		attribute.Int("tool_calls", st.Trace.Len()),
	)
	return st, nil
}

// Resume re-enters the loop for a routed RETRY that indicated missing
// data. The prior trace is preserved; tools already called are not
// re-called unless reasoning explicitly asks. A fresh iteration budget
// applies to the re-entry. It ends with one new synthesis call carrying
// the validator feedback.
func (e *Engine) Resume(ctx context.Context, st *State, feedback string) error {
	ctx, span := agentTracer.Start(ctx, "agent.Resume")
	defer span.End()

	if err := e.gather(ctx, st, feedback); err != nil {
		return err
	}
	return e.Synthesize(ctx, st, feedback)
}

// gather runs REASON/ACT/OBSERVE until a termination condition is met.
// The only error it returns is context cancellation.
func (e *Engine) gather(ctx context.Context, st *State, feedback string) error {
	loopStart := st.Iterations

	// Direct-plan fast path: high-confidence cheap-tier classifications
	// (and the conservative unclassified default) execute their
	// pre-registered tool plan without LLM reasoning. This only applies
	// to a fresh trace; re-entries reason over what exists.
	tier := st.Classification.Tier
	directPlan := st.Trace.Len() == 0 &&
		(tier == classifier.TierPattern || tier == classifier.TierSemantic ||
			st.Classification.Topic == classifier.TopicUnclassified)

	if directPlan {
		allOK := true
		for _, toolName := range tools.PlanFor(st.Classification.Topic) {
			if err := ctxErr(ctx); err != nil {
				st.Termination = TerminationCancelled
				return err
			}
			if st.Iterations-loopStart >= e.maxIterations {
				st.Termination = TerminationMaxIterations
				return nil
			}
			st.Iterations++
			call := tools.NewCall(toolName, nil)
			result := e.registry.Execute(ctx, st.Member, call)
			st.Trace.Append(call, result)
			st.Costs.AddTool(result.CostUSD, result.Latency)
			if result.Status != tools.StatusSuccess {
				allOK = false
				e.logger.Debug(ctx, "planned tool failed, falling back to reasoning",
					zap.String("tool", toolName),
					zap.String("error", result.Error))
			}
		}
		if allOK {
			// Deterministic OBSERVE: every tool mapped to the topic
			// has returned.
			st.Termination = TerminationSynthesisReady
			return nil
		}
	}

	for st.Iterations-loopStart < e.maxIterations {
		if err := ctxErr(ctx); err != nil {
			st.Termination = TerminationCancelled
			return err
		}

		st.Iterations++

		completion, err := e.client.Complete(ctx, llm.Request{
			System:    fmt.Sprintf(reasonPrompt, e.registry.Describe()),
			Prompt:    e.renderReasonInput(st, feedback),
			MaxTokens: 512,
		})
		if err != nil {
			if cerr := ctxErr(ctx); cerr != nil {
				st.Termination = TerminationCancelled
				return cerr
			}
			// Reasoning trouble is absorbed: synthesize from whatever
			// the trace holds.
			e.logger.Warn(ctx, "reasoning call failed, terminating loop",
				zap.Error(err))
			st.Termination = TerminationExhausted
			return nil
		}
		st.Costs.AddLLM(completion.CostUSD, completion.Latency)

		d, err := parseDecisionJSON(completion.Text)
		if err != nil {
			e.logger.Warn(ctx, "unparseable reasoning decision, terminating loop",
				zap.Error(err))
			st.Termination = TerminationExhausted
			return nil
		}

		if d.Action == actionSynthesize {
			st.Termination = TerminationSynthesisReady
			return nil
		}

		call := tools.NewCall(d.Tool, d.Parameters)
		result := e.registry.Execute(ctx, st.Member, call)
		st.Trace.Append(call, result)
		st.Costs.AddTool(result.CostUSD, result.Latency)
	}

	st.Termination = TerminationMaxIterations
	return nil
}

// Synthesize performs exactly one synthesis call over the current state.
// A provider failure is fatal and returns *SynthesisError.
func (e *Engine) Synthesize(ctx context.Context, st *State, feedback string) error {
	ctx, span := agentTracer.Start(ctx, "agent.Synthesize")
	defer span.End()

	completion, err := e.client.Complete(ctx, llm.Request{
		System:    synthesisPrompt,
		Prompt:    e.renderSynthesisInput(st, feedback),
		MaxTokens: 1024,
	})
	if err != nil {
		span.RecordError(err)
		if cerr := ctxErr(ctx); cerr != nil {
			st.Termination = TerminationCancelled
			return cerr
		}
		return &SynthesisError{Err: err}
	}
	st.Costs.AddLLM(completion.CostUSD, completion.Latency)

	answer, citations := parseSynthesisJSON(completion.Text)
	st.DraftAnswer = answer
	st.Citations = citations

	e.logger.Debug(ctx, "draft answer synthesized",
		zap.Int("citations", len(citations)),
		zap.String("termination", string(st.Termination)))
	return nil
}

func (e *Engine) renderReasonInput(st *State, feedback string) string {
	input := fmt.Sprintf("Member question: %s\nClassified topic: %s\nMember profile: %s\n\nTools called so far:\n%s",
		st.Query, st.Classification.Topic, renderMember(st.Member), st.Trace.Render())
	if feedback != "" {
		input += "\n\nValidator feedback on the previous answer:\n" + feedback
	}
	return input
}

func (e *Engine) renderSynthesisInput(st *State, feedback string) string {
	input := fmt.Sprintf("Member question: %s\nClassified topic: %s\nMember profile: %s\n\nGathered data:\n%s",
		st.Query, st.Classification.Topic, renderMember(st.Member), st.Trace.Render())
	if st.Termination != TerminationSynthesisReady {
		input += fmt.Sprintf("\n\nNote: data gathering ended early (%s); answer from the available data and say what could not be determined.", st.Termination)
	}
	if feedback != "" {
		input += "\n\nA previous draft failed validation. Address this feedback:\n" + feedback
	}
	return input
}

func renderMember(m profile.MemberContext) string {
	return fmt.Sprintf("age %d, country %s, employment %s, total balance %.2f",
		m.Age, m.CountryCode, m.EmploymentStatus, m.TotalBalance())
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
