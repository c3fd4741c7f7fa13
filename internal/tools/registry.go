package tools

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/pensiond/internal/profile"
)

var toolsTracer = otel.Tracer("pensiond.tools")

// toolNamePattern constrains tool names to lowercase snake_case.
var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Tool is a single idempotent data-retrieval operation.
type Tool interface {
	// Name is the unique snake_case identifier.
	Name() string
	// Description is shown to the reasoning LLM when choosing tools.
	Description() string
	// Invoke runs the retrieval. Implementations must be read-only.
	Invoke(ctx context.Context, member profile.MemberContext, params map[string]string) (map[string]interface{}, error)
}

// Registry is the closed set of tools available to the agentic loop.
// Membership is fixed at construction; tools cannot be added or removed
// afterwards.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry validates and registers the given tools. Duplicate or
// malformed names fail construction.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		if t == nil {
			return nil, fmt.Errorf("nil tool")
		}
		name := t.Name()
		if !toolNamePattern.MatchString(name) {
			return nil, fmt.Errorf("invalid tool name %q", name)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		if t.Description() == "" {
			return nil, fmt.Errorf("tool %q missing description", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// Names lists registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Has reports whether the named tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Describe renders the tool catalog for reasoning prompts.
func (r *Registry) Describe() string {
	names := r.Names()
	sort.Strings(names)
	var out string
	for _, n := range names {
		out += fmt.Sprintf("- %s: %s\n", n, r.tools[n].Description())
	}
	return out
}

// Execute runs one tool call and captures the paired Result. Failures are
// recorded in the Result, never raised: the loop re-reasons over them.
func (r *Registry) Execute(ctx context.Context, member profile.MemberContext, call Call) Result {
	ctx, span := toolsTracer.Start(ctx, "tools.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("tool", call.ToolName))

	start := time.Now()

	tool, ok := r.tools[call.ToolName]
	if !ok {
		span.SetAttributes(attribute.Bool("unknown_tool", true))
		return Result{
			ToolName: call.ToolName,
			Status:   StatusFailure,
			Error:    fmt.Sprintf("unknown tool %q", call.ToolName),
			Latency:  time.Since(start),
		}
	}

	payload, err := tool.Invoke(ctx, member, call.Parameters)
	latency := time.Since(start)
	if err != nil {
		span.RecordError(err)
		return Result{
			ToolName: call.ToolName,
			Status:   StatusFailure,
			Error:    err.Error(),
			Latency:  latency,
		}
	}

	return Result{
		ToolName: call.ToolName,
		Status:   StatusSuccess,
		Payload:  payload,
		Latency:  latency,
	}
}
