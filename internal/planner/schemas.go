package planner

import "outing/internal/schema"

// IntentSchema is the structured-output schema for NormalizedIntent.
func IntentSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"activity_type": map[string]any{"type": "string"},
			"city":          map[string]any{"type": "string"},
			"time_window": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"day":         map[string]any{"type": "string"},
					"start_local": map[string]any{"type": "string"},
					"end_local":   map[string]any{"type": "string"},
				},
				"required": []any{"day", "start_local", "end_local"},
			},
			"origin_latlng":      map[string]any{"type": []any{"string", "null"}},
			"max_travel_minutes": map[string]any{"type": "integer", "minimum": 5, "maximum": 120},
			"party_size":         map[string]any{"type": "integer", "minimum": 1, "maximum": 12},
			"budget_level":       map[string]any{"type": "string", "enum": []any{"low", "medium", "high"}},
			"preferences":        map[string]any{"type": "object", "additionalProperties": true},
			"hard_constraints":   map[string]any{"type": "object", "additionalProperties": true},
			"output_requirements": map[string]any{
				"type":                 "object",
				"additionalProperties": true,
			},
		},
		"required": []any{
			"activity_type",
			"city",
			"time_window",
			"origin_latlng",
			"max_travel_minutes",
			"party_size",
			"budget_level",
			"preferences",
			"hard_constraints",
			"output_requirements",
		},
	}
}

// PlanSchema is the structured-output schema for ExecutableToolPlan. Each
// tool call is one branch of a union keyed by the tool name.
func PlanSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"tool_calls": map[string]any{
				"type": "array",
				"items": map[string]any{
					"anyOf": []any{
						searchCallSchema(),
						detailsCallSchema(),
					},
				},
			},
			"selection_policy": map[string]any{"type": "object", "additionalProperties": true},
			"notes":            map[string]any{"type": []any{"string", "null"}},
		},
		"required": []any{"tool_calls", "selection_policy", "notes"},
	}
}

func searchCallSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"tool": map[string]any{"type": "string", "const": schema.ToolSearch},
			"args": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"query":       map[string]any{"type": "string"},
					"max_results": map[string]any{"type": "integer", "minimum": 1, "maximum": 20},
				},
				"required": []any{"query"},
			},
		},
		"required": []any{"tool", "args"},
	}
}

func detailsCallSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"tool": map[string]any{"type": "string", "const": schema.ToolDetails},
			"args": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"place_id": map[string]any{"type": "string"},
				},
				"required": []any{"place_id"},
			},
		},
		"required": []any{"tool", "args"},
	}
}
