// Package tools defines the data-retrieval operations available to the
// agentic loop and the closed registry that executes them.
package tools

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status of a tool invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Call records one tool invocation request.
type Call struct {
	ToolName   string            `json:"tool_name"`
	Parameters map[string]string `json:"parameters,omitempty"`
	IssuedAt   time.Time         `json:"issued_at"`
}

// Result is the outcome paired 1:1 with a Call.
type Result struct {
	ToolName string                 `json:"tool_name"`
	Status   Status                 `json:"status"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
	Error    string                 `json:"error,omitempty"`
	CostUSD  float64                `json:"cost_usd"`
	Latency  time.Duration          `json:"latency"`
}

// Step is one (Call, Result) pair in the execution trace.
type Step struct {
	Call   Call   `json:"call"`
	Result Result `json:"result"`
}

// Trace is the append-only, causally-ordered record of tool activity for
// one query. Insertion order is the order reasoning steps occurred in.
type Trace struct {
	Steps []Step `json:"steps"`
}

// Append records a completed step.
func (t *Trace) Append(call Call, result Result) {
	t.Steps = append(t.Steps, Step{Call: call, Result: result})
}

// Len returns the number of recorded steps.
func (t *Trace) Len() int {
	return len(t.Steps)
}

// TotalCostUSD sums the cost of all recorded tool invocations.
func (t *Trace) TotalCostUSD() float64 {
	var total float64
	for _, s := range t.Steps {
		total += s.Result.CostUSD
	}
	return total
}

// Called reports whether the named tool has an entry in the trace.
func (t *Trace) Called(toolName string) bool {
	for _, s := range t.Steps {
		if s.Call.ToolName == toolName {
			return true
		}
	}
	return false
}

// Succeeded reports whether the named tool has a successful entry.
func (t *Trace) Succeeded(toolName string) bool {
	for _, s := range t.Steps {
		if s.Call.ToolName == toolName && s.Result.Status == StatusSuccess {
			return true
		}
	}
	return false
}

// Render produces a compact plain-text view of the trace for inclusion in
// reasoning and synthesis prompts.
func (t *Trace) Render() string {
	if len(t.Steps) == 0 {
		return "(no tools called)"
	}

	var b strings.Builder
	for i, s := range t.Steps {
		fmt.Fprintf(&b, "%d. %s", i+1, s.Call.ToolName)
		if len(s.Call.Parameters) > 0 {
			keys := make([]string, 0, len(s.Call.Parameters))
			for k := range s.Call.Parameters {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, len(keys))
			for j, k := range keys {
				parts[j] = k + "=" + s.Call.Parameters[k]
			}
			fmt.Fprintf(&b, "(%s)", strings.Join(parts, ", "))
		}
		if s.Result.Status == StatusSuccess {
			fmt.Fprintf(&b, " -> ok: %s", renderPayload(s.Result.Payload))
		} else {
			fmt.Fprintf(&b, " -> failed: %s", s.Result.Error)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderPayload(payload map[string]interface{}) string {
	if len(payload) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, payload[k])
	}
	return strings.Join(parts, ", ")
}
