// Package costs tracks spend and latency per query.
//
// Every component that makes a billable external call (LLM completion,
// embedding, warehouse tool) records into its own Accumulator and returns
// it to the caller, which merges it upward. There is no process-wide
// counter; a query's total cost is the merge of everything beneath it.
package costs

import (
	"time"
)

// Accumulator aggregates USD cost and call counts for one unit of work.
// The zero value is ready to use. Not safe for concurrent use; each
// worker owns its own and merges results sequentially.
type Accumulator struct {
	LLMCalls       int           `json:"llm_calls"`
	EmbeddingCalls int           `json:"embedding_calls"`
	ToolCalls      int           `json:"tool_calls"`
	CostUSD        float64       `json:"cost_usd"`
	Latency        time.Duration `json:"latency_ns"`
}

// AddLLM records one completion call.
func (a *Accumulator) AddLLM(costUSD float64, latency time.Duration) {
	a.LLMCalls++
	a.CostUSD += costUSD
	a.Latency += latency
}

// AddEmbedding records one embedding call.
func (a *Accumulator) AddEmbedding(costUSD float64, latency time.Duration) {
	a.EmbeddingCalls++
	a.CostUSD += costUSD
	a.Latency += latency
}

// AddTool records one tool invocation.
func (a *Accumulator) AddTool(costUSD float64, latency time.Duration) {
	a.ToolCalls++
	a.CostUSD += costUSD
	a.Latency += latency
}

// Merge folds another accumulator into this one.
func (a *Accumulator) Merge(other Accumulator) {
	a.LLMCalls += other.LLMCalls
	a.EmbeddingCalls += other.EmbeddingCalls
	a.ToolCalls += other.ToolCalls
	a.CostUSD += other.CostUSD
	a.Latency += other.Latency
}

// Pricing defines USD cost per million tokens for a completion model.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing holds hardcoded USD pricing per million text tokens.
var defaultPricing = map[string]Pricing{
	"claude-3-5-sonnet-20241022": {InputPerM: 3.00, OutputPerM: 15.00},
	"claude-3-5-haiku-20241022":  {InputPerM: 0.80, OutputPerM: 4.00},
	"gpt-4o-mini":                {InputPerM: 0.15, OutputPerM: 0.60},
	"gpt-4o":                     {InputPerM: 2.50, OutputPerM: 10.00},
	"text-embedding-3-small":     {InputPerM: 0.02},
}

// ResolvePricing returns pricing for a model, zero pricing if unknown.
func ResolvePricing(model string) Pricing {
	p, ok := defaultPricing[model]
	if !ok {
		return Pricing{}
	}
	return p
}

// CompletionCost converts token usage to USD using per-million pricing.
func CompletionCost(inputTokens, outputTokens int, p Pricing) float64 {
	return p.InputPerM*float64(inputTokens)/1_000_000.0 +
		p.OutputPerM*float64(outputTokens)/1_000_000.0
}
