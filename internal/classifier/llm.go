package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/pensiond/internal/llm"
	"github.com/fyrsmithlabs/pensiond/internal/profile"
)

// classifyPrompt is the system prompt for third-tier classification.
const classifyPrompt = `You are a topic classifier for a retirement account member-support system.

Classify the member's question into exactly one of these topics:
- balance: current account value or holdings
- contributions: deposits, employer match, contribution limits
- tax: tax treatment of contributions, gains, or withdrawals
- early_withdrawal: accessing funds before retirement age, penalties, hardship
- retirement_projection: future balance or income forecasts
- eligibility: age or membership requirements for benefits

Respond with a JSON object containing:
- "topic": one of the topic identifiers above
- "confidence": your confidence in the classification (0.0 to 1.0)

Respond ONLY with the JSON object, no additional text.`

// LLMClassifier is the third tier, invoked only when pattern and semantic
// matching both fail to resolve a topic.
type LLMClassifier struct {
	client llm.Client
}

// LLMClassification is a successful third-tier resolution.
type LLMClassification struct {
	Topic      Topic
	Confidence float64
	CostUSD    float64
}

// NewLLMClassifier creates the third-tier classifier.
func NewLLMClassifier(client llm.Client) (*LLMClassifier, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	return &LLMClassifier{client: client}, nil
}

// Classify asks the LLM for the query's topic. Malformed output or an
// unknown topic is an error; the cascade converts it to the unclassified
// sentinel rather than raising.
func (c *LLMClassifier) Classify(ctx context.Context, query string, member profile.MemberContext) (LLMClassification, error) {
	prompt := fmt.Sprintf("Member country: %s\n\nQuestion: %s", member.CountryCode, query)

	completion, err := c.client.Complete(ctx, llm.Request{
		System:    classifyPrompt,
		Prompt:    prompt,
		MaxTokens: 256,
	})
	if err != nil {
		return LLMClassification{}, fmt.Errorf("classification call: %w", err)
	}

	topic, confidence, err := parseClassificationJSON(completion.Text)
	if err != nil {
		return LLMClassification{CostUSD: completion.CostUSD}, err
	}

	return LLMClassification{
		Topic:      topic,
		Confidence: confidence,
		CostUSD:    completion.CostUSD,
	}, nil
}

// classificationResponse is the expected LLM output shape.
type classificationResponse struct {
	Topic      string  `json:"topic"`
	Confidence float64 `json:"confidence"`
}

// parseClassificationJSON parses the LLM response into a topic.
func parseClassificationJSON(content string) (Topic, float64, error) {
	// Clean up the response - sometimes LLMs wrap JSON in markdown code blocks
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var resp classificationResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return "", 0, fmt.Errorf("malformed classification output: %w", err)
	}

	topic := Topic(resp.Topic)
	if !ValidTopic(topic) {
		return "", 0, fmt.Errorf("unknown topic %q in classification output", resp.Topic)
	}

	confidence := resp.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.5
	}

	return topic, confidence, nil
}
