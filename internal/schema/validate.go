package schema

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	minTravelMinutes = 5
	maxTravelMinutes = 120
	maxPartySize     = 12

	// MaxPromptLength bounds raw user input before it reaches the LLM.
	MaxPromptLength = 2000
)

var timeRe = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// ValidateIntent checks a normalized intent for the field and range
// constraints the planner's schema promises. It returns every violation so
// the caller can report them all at once.
func ValidateIntent(n *NormalizedIntent) []string {
	var errs []string
	if n == nil {
		return []string{"intent is nil"}
	}
	if strings.TrimSpace(n.ActivityType) == "" {
		errs = append(errs, "activity_type is required")
	}
	if strings.TrimSpace(n.City) == "" {
		errs = append(errs, "city is required")
	}
	if n.MaxTravelMinutes < minTravelMinutes || n.MaxTravelMinutes > maxTravelMinutes {
		errs = append(errs, fmt.Sprintf("max_travel_minutes must be in [%d, %d], got %d",
			minTravelMinutes, maxTravelMinutes, n.MaxTravelMinutes))
	}
	if n.PartySize < 1 || n.PartySize > maxPartySize {
		errs = append(errs, fmt.Sprintf("party_size must be in [1, %d], got %d", maxPartySize, n.PartySize))
	}
	switch n.BudgetLevel {
	case BudgetLow, BudgetMedium, BudgetHigh:
	default:
		errs = append(errs, fmt.Sprintf("budget_level must be low/medium/high, got %q", n.BudgetLevel))
	}
	for _, t := range []struct{ name, value string }{
		{"time_window.start_local", n.TimeWindow.StartLocal},
		{"time_window.end_local", n.TimeWindow.EndLocal},
	} {
		if t.value != "" && !timeRe.MatchString(t.value) {
			errs = append(errs, fmt.Sprintf("%s must be HH:MM, got %q", t.name, t.value))
		}
	}
	return errs
}

// ValidatePlan checks that a tool plan is well formed and within the
// caller's tool-call budget.
func ValidatePlan(p *ExecutableToolPlan, maxToolCalls int) []string {
	var errs []string
	if p == nil {
		return []string{"plan is nil"}
	}
	if len(p.ToolCalls) == 0 {
		errs = append(errs, "plan has no tool calls")
	}
	if maxToolCalls > 0 && len(p.ToolCalls) > maxToolCalls {
		errs = append(errs, fmt.Sprintf("plan has %d tool calls, budget is %d", len(p.ToolCalls), maxToolCalls))
	}
	for i, call := range p.ToolCalls {
		switch call.Tool {
		case ToolSearch:
			if call.Search == nil || strings.TrimSpace(call.Search.Query) == "" {
				errs = append(errs, fmt.Sprintf("tool_calls[%d]: search requires a query", i))
			}
		case ToolDetails:
			if call.Details == nil || strings.TrimSpace(call.Details.PlaceID) == "" {
				errs = append(errs, fmt.Sprintf("tool_calls[%d]: details requires a place_id", i))
			}
		}
	}
	return errs
}

// SanitizePrompt strips control characters and collapses whitespace in raw
// user input. Length enforcement is separate so the caller can surface a
// dedicated error for oversized prompts.
func SanitizePrompt(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(' ')
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
