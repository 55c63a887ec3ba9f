package orchestrator

import "math"

// Text search pricing per request, in USD.
const placesCostPerCall = 0.017

// LLMUsage is the token spend reported by an LLM-backed planner.
type LLMUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// PlacesUsage is the outbound venue-API spend for a session.
type PlacesUsage struct {
	APICalls int     `json:"api_calls"`
	CostUSD  float64 `json:"cost_usd"`
}

// CostSummary aggregates LLM and venue-API spend for a run. It is attached
// to every result so callers can surface cumulative session cost.
type CostSummary struct {
	LLM          LLMUsage    `json:"llm"`
	Places       PlacesUsage `json:"places"`
	TotalCostUSD float64     `json:"total_cost_usd"`
}

// LLMUsageReporter is implemented by planners that track token usage.
type LLMUsageReporter interface {
	LLMUsage() LLMUsage
}

// APICallCounter is implemented by executors that count outbound API calls.
type APICallCounter interface {
	APICallCount() int
}

// costSummary collects spend from whichever collaborators report it.
func (o *Orchestrator) costSummary() *CostSummary {
	var summary CostSummary
	if reporter, ok := o.planner.(LLMUsageReporter); ok {
		summary.LLM = reporter.LLMUsage()
	}
	if counter, ok := o.executor.(APICallCounter); ok {
		summary.Places.APICalls = counter.APICallCount()
		summary.Places.CostUSD = round6(float64(summary.Places.APICalls) * placesCostPerCall)
	}
	summary.TotalCostUSD = round6(summary.LLM.CostUSD + summary.Places.CostUSD)
	return &summary
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
