package scenario

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	outingerrors "outing/internal/errors"
	"outing/internal/orchestrator"
	"outing/internal/schema"
)

// Planner returns a fixture planner producing this scenario's intent.
func (s *Scenario) Planner() *Planner {
	return &Planner{scenario: s}
}

// Executor returns a fixture executor producing this scenario's candidates.
func (s *Scenario) Executor() *Executor {
	return &Executor{scenario: s}
}

// Planner satisfies orchestrator.Planner from fixture data. Normalize
// ignores the prompt's content beyond basic sanitation; the fixture decides
// the intent.
type Planner struct {
	scenario *Scenario

	planCalls atomic.Int64
}

func (p *Planner) Normalize(_ context.Context, userPrompt string) (*schema.NormalizedIntent, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return nil, outingerrors.NewErrorResponse(
			outingerrors.CodeInvalidInput, "prompt must not be empty", "")
	}
	return p.scenario.Intent.Clone(), nil
}

func (p *Planner) Plan(_ context.Context, intent *schema.NormalizedIntent, _ *orchestrator.RuntimeContext) (*schema.ExecutableToolPlan, error) {
	p.planCalls.Add(1)
	return &schema.ExecutableToolPlan{
		ToolCalls: []schema.ToolCall{
			schema.NewSearchCall(schema.TextSearchArgs{
				Query:      fmt.Sprintf("%s in %s", intent.ActivityType, intent.City),
				MaxResults: len(p.scenario.Candidates),
			}),
		},
		SelectionPolicy: map[string]any{"strategy": "scenario"},
		Notes:           "Offline scenario plan",
	}, nil
}

// PlanCalls reports how many plans were produced, for tests.
func (p *Planner) PlanCalls() int { return int(p.planCalls.Load()) }

// Executor satisfies orchestrator.Executor from fixture data.
type Executor struct {
	scenario *Scenario
}

func (e *Executor) Execute(_ context.Context, plan *schema.ExecutableToolPlan, _ *schema.NormalizedIntent) (*schema.Execution, error) {
	results := make([]schema.ToolResult, 0, len(plan.ToolCalls))
	for _, call := range plan.ToolCalls {
		results = append(results, schema.ToolResult{
			Tool: call.Tool,
			OK:   true,
			Data: map[string]any{"results_count": len(e.scenario.Candidates)},
		})
	}
	return &schema.Execution{
		ToolResults: results,
		Candidates:  e.scenario.cloneCandidates(),
	}, nil
}
