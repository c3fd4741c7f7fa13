package costs

import (
	"testing"
	"time"
)

func TestAccumulatorMerge(t *testing.T) {
	var total Accumulator

	var classify Accumulator
	classify.AddEmbedding(0.000002, 20*time.Millisecond)

	var agent Accumulator
	agent.AddLLM(0.0045, 800*time.Millisecond)
	agent.AddTool(0, 15*time.Millisecond)
	agent.AddTool(0, 12*time.Millisecond)

	total.Merge(classify)
	total.Merge(agent)

	if total.LLMCalls != 1 {
		t.Errorf("LLMCalls = %d, want 1", total.LLMCalls)
	}
	if total.EmbeddingCalls != 1 {
		t.Errorf("EmbeddingCalls = %d, want 1", total.EmbeddingCalls)
	}
	if total.ToolCalls != 2 {
		t.Errorf("ToolCalls = %d, want 2", total.ToolCalls)
	}
	wantCost := 0.000002 + 0.0045
	if diff := total.CostUSD - wantCost; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("CostUSD = %v, want %v", total.CostUSD, wantCost)
	}
	if total.Latency != 847*time.Millisecond {
		t.Errorf("Latency = %v, want 847ms", total.Latency)
	}
}

func TestCompletionCost(t *testing.T) {
	p := ResolvePricing("claude-3-5-sonnet-20241022")
	got := CompletionCost(1000, 500, p)
	want := 3.00*0.001 + 15.00*0.0005
	if diff := got - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("CompletionCost = %v, want %v", got, want)
	}
}

func TestResolvePricingUnknownModel(t *testing.T) {
	p := ResolvePricing("some-future-model")
	if p.InputPerM != 0 || p.OutputPerM != 0 {
		t.Errorf("unknown model pricing = %+v, want zero", p)
	}
	if got := CompletionCost(10000, 10000, p); got != 0 {
		t.Errorf("cost for unknown model = %v, want 0", got)
	}
}
