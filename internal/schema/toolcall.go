package schema

import (
	"encoding/json"
	"fmt"
)

// Tool names the planner may emit. Anything else is preserved as an
// unknown-tool call so a newer planner cannot break parsing; the executor
// reports unknown tools as failed tool results.
const (
	ToolSearch  = "search"
	ToolDetails = "details"
)

// TextSearchArgs are the arguments for the venue text-search tool.
type TextSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	RadiusM    int    `json:"radius_m,omitempty"`
}

// DetailsArgs are the arguments for the venue details tool.
type DetailsArgs struct {
	PlaceID string `json:"place_id"`
}

// ToolCall is a tagged union over the known tool argument shapes. The wire
// shape is always {"tool": ..., "args": {...}}; exactly one of Search,
// Details or RawArgs is set after unmarshalling.
type ToolCall struct {
	Tool    string
	Search  *TextSearchArgs
	Details *DetailsArgs
	// RawArgs holds the untouched args payload for unknown tools.
	RawArgs json.RawMessage
}

// NewSearchCall builds a text-search tool call.
func NewSearchCall(args TextSearchArgs) ToolCall {
	return ToolCall{Tool: ToolSearch, Search: &args}
}

// NewDetailsCall builds a details tool call.
func NewDetailsCall(placeID string) ToolCall {
	return ToolCall{Tool: ToolDetails, Details: &DetailsArgs{PlaceID: placeID}}
}

type toolCallWire struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// UnmarshalJSON decodes the {tool, args} wire shape into the typed variant
// for known tools and keeps the raw args for unknown ones.
func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var wire toolCallWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Tool == "" {
		return fmt.Errorf("tool call missing tool name")
	}
	*tc = ToolCall{Tool: wire.Tool}
	args := wire.Args
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch wire.Tool {
	case ToolSearch:
		var parsed TextSearchArgs
		if err := json.Unmarshal(args, &parsed); err != nil {
			return fmt.Errorf("parse %s args: %w", wire.Tool, err)
		}
		tc.Search = &parsed
	case ToolDetails:
		var parsed DetailsArgs
		if err := json.Unmarshal(args, &parsed); err != nil {
			return fmt.Errorf("parse %s args: %w", wire.Tool, err)
		}
		tc.Details = &parsed
	default:
		tc.RawArgs = append(json.RawMessage(nil), args...)
	}
	return nil
}

// MarshalJSON re-emits the {tool, args} wire shape.
func (tc ToolCall) MarshalJSON() ([]byte, error) {
	var args any
	switch {
	case tc.Search != nil:
		args = tc.Search
	case tc.Details != nil:
		args = tc.Details
	case len(tc.RawArgs) > 0:
		args = tc.RawArgs
	default:
		args = struct{}{}
	}
	return json.Marshal(struct {
		Tool string `json:"tool"`
		Args any    `json:"args"`
	}{Tool: tc.Tool, Args: args})
}

// ExecutableToolPlan is a bounded list of tool calls plus the policy used
// to select them. SelectionPolicy carries {"strategy": "fallback"} when the
// plan came from the rule-based fallback instead of the LLM planner.
type ExecutableToolPlan struct {
	ToolCalls       []ToolCall     `json:"tool_calls"`
	SelectionPolicy map[string]any `json:"selection_policy"`
	Notes           string         `json:"notes,omitempty"`
}

// IsFallback reports whether the plan was produced by the rule-based
// fallback planner.
func (p *ExecutableToolPlan) IsFallback() bool {
	if p == nil {
		return false
	}
	strategy, _ := p.SelectionPolicy["strategy"].(string)
	return strategy == "fallback"
}
