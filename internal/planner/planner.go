package planner

import (
	"context"
	"encoding/json"
	"fmt"

	outingerrors "outing/internal/errors"
	"outing/internal/llm"
	"outing/internal/logging"
	"outing/internal/metrics"
	"outing/internal/orchestrator"
	"outing/internal/schema"
)

const normalizeSystem = "Normalize a local-lifestyle request into NormalizedIntent JSON.\n" +
	"- Extract the activity_type from the user query (e.g., 'afternoon_tea', 'brunch', 'dinner', 'coffee').\n" +
	"- Do NOT invent specific venues.\n" +
	"- Provide explicit defaults: time_window, max_travel_minutes, budget_level.\n" +
	"- If origin lat/lng is not provided, leave origin_latlng null.\n"

const planSystem = "You are a domain planner for a local venue recommendation orchestrator.\n" +
	"Output a tool plan JSON with tool_calls.\n" +
	"Constraints:\n" +
	"- Keep tool_calls <= runtime_context.max_tool_calls\n" +
	"- Prefer the search tool, plus optional details lookups\n" +
	"- Avoid venue ids in runtime_context.rejected_options\n"

// Planner turns free text into a normalized intent and intents into
// executable tool plans, both via structured LLM output.
type Planner struct {
	llm     llm.Client
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// New builds a Planner over an LLM client.
func New(client llm.Client, logger *logging.Logger, m *metrics.Metrics) *Planner {
	return &Planner{
		llm:     client,
		logger:  logging.OrNop(logger),
		metrics: m,
	}
}

// Normalize sanitizes the prompt, asks the LLM for a NormalizedIntent and
// validates the result. Oversized or empty prompts fail before any LLM
// call.
func (p *Planner) Normalize(ctx context.Context, userPrompt string) (*schema.NormalizedIntent, error) {
	if len(userPrompt) > schema.MaxPromptLength {
		return nil, outingerrors.NewErrorResponse(
			outingerrors.CodeInvalidInput, "user prompt is too long", "").
			WithDetails(map[string]any{
				"length":     len(userPrompt),
				"max_length": schema.MaxPromptLength,
			})
	}

	sanitized := schema.SanitizePrompt(userPrompt)
	if sanitized == "" {
		return nil, outingerrors.NewErrorResponse(
			outingerrors.CodeInvalidInput, "user prompt is empty", "")
	}

	p.logger.Debug("normalizing intent", "prompt_length", len(sanitized))

	out, err := p.llm.JSONSchema(ctx, llm.SchemaRequest{
		System:     normalizeSystem,
		User:       fmt.Sprintf("User prompt:\n%s\n\nReturn ONLY NormalizedIntent JSON.", sanitized),
		SchemaName: "normalized_intent",
		Schema:     IntentSchema(),
		Strict:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("normalize intent: %w", err)
	}

	var intent schema.NormalizedIntent
	if err := json.Unmarshal(out, &intent); err != nil {
		return nil, fmt.Errorf("decode normalized intent: %w", err)
	}

	if errs := schema.ValidateIntent(&intent); len(errs) > 0 {
		p.logger.Error("intent validation failed", "errors", errs)
		p.metrics.RecordError(string(outingerrors.CodeValidation))
		return nil, outingerrors.NewErrorResponse(
			outingerrors.CodeValidation, "failed to normalize user intent", "").
			WithDetails(map[string]any{"errors": errs})
	}

	p.logger.Info("intent normalized", "city", intent.City, "activity_type", intent.ActivityType)
	return &intent, nil
}

// Plan asks the LLM for a tool plan bounded by the runtime context and
// validates it against the tool-call budget.
func (p *Planner) Plan(ctx context.Context, intent *schema.NormalizedIntent, rtc *orchestrator.RuntimeContext) (*schema.ExecutableToolPlan, error) {
	payload, err := json.Marshal(map[string]any{
		"intent": intent,
		"runtime_context": map[string]any{
			"iteration":          rtc.Iteration,
			"max_tool_calls":     rtc.MaxToolCalls,
			"rejected_options":   rtc.RejectedOptions,
			"preference_signals": rtc.PreferenceSignals,
			"last_eval":          rtc.LastEval,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal plan payload: %w", err)
	}

	p.logger.Debug("generating plan",
		"iteration", rtc.Iteration, "max_tool_calls", rtc.MaxToolCalls)

	out, err := p.llm.JSONSchema(ctx, llm.SchemaRequest{
		System:     planSystem,
		User:       string(payload),
		SchemaName: "executable_tool_plan",
		Schema:     PlanSchema(),
		Strict:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	var plan schema.ExecutableToolPlan
	if err := json.Unmarshal(out, &plan); err != nil {
		return nil, fmt.Errorf("decode tool plan: %w", err)
	}

	if errs := schema.ValidatePlan(&plan, rtc.MaxToolCalls); len(errs) > 0 {
		p.logger.Error("plan validation failed", "errors", errs)
		p.metrics.RecordError(string(outingerrors.CodeValidation))
		return nil, outingerrors.NewErrorResponse(
			outingerrors.CodeValidation, "failed to generate execution plan", "").
			WithDetails(map[string]any{"errors": errs})
	}

	p.logger.Info("plan generated", "tool_calls", len(plan.ToolCalls))
	return &plan, nil
}

// LLMUsage reports the cumulative token spend for cost accounting.
func (p *Planner) LLMUsage() orchestrator.LLMUsage {
	usage := p.llm.Usage()
	return orchestrator.LLMUsage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		CostUSD:          usage.EstimatedCostUSD,
	}
}
