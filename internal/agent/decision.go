package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decision action identifiers emitted by the reasoning LLM.
const (
	actionCallTool   = "call_tool"
	actionSynthesize = "synthesize"
)

// decision is the structured output of one REASON step.
type decision struct {
	Action     string            `json:"action"`
	Tool       string            `json:"tool,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// parseDecisionJSON parses the reasoning output. It is strict: anything
// that is not a well-formed decision is an error, and the loop treats
// that as exhaustion rather than guessing at intent.
func parseDecisionJSON(content string) (decision, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var d decision
	if err := json.Unmarshal([]byte(content), &d); err != nil {
		return decision{}, fmt.Errorf("malformed reasoning output: %w", err)
	}

	switch d.Action {
	case actionSynthesize:
		return d, nil
	case actionCallTool:
		if d.Tool == "" {
			return decision{}, fmt.Errorf("call_tool decision missing tool name")
		}
		return d, nil
	default:
		return decision{}, fmt.Errorf("unknown action %q in reasoning output", d.Action)
	}
}

// synthesisOutput is the expected shape of the synthesis response.
type synthesisOutput struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations,omitempty"`
}

// parseSynthesisJSON parses the synthesis response. Unlike reasoning
// decisions, a non-JSON response degrades to treating the whole text as
// the answer: the validator judges it either way.
func parseSynthesisJSON(content string) (string, []string) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var out synthesisOutput
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil || out.Answer == "" {
		return strings.TrimSpace(content), nil
	}
	return out.Answer, out.Citations
}
