package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Client is the structured-output LLM surface the planner depends on. Every
// call supplies a JSON schema; the response is guaranteed to be valid JSON
// matching that schema or an error.
type Client interface {
	JSONSchema(ctx context.Context, req SchemaRequest) (json.RawMessage, error)
	Usage() Usage
}

// SchemaRequest is one structured-output completion request.
type SchemaRequest struct {
	System     string
	User       string
	SchemaName string
	Schema     map[string]any
	Strict     bool
}

// Usage is the cumulative token spend of a client instance.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// Config configures the OpenAI-compatible client.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Timeout      time.Duration
	CacheEnabled bool
	CacheMaxSize int
	CacheTTL     time.Duration
}

// Defaults applied by NewOpenAIClient when Config fields are zero.
const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultModel        = "gpt-4o-mini"
	DefaultTimeout      = 60 * time.Second
	DefaultCacheMaxSize = 500
	DefaultCacheTTL     = time.Hour
)

// gpt-4o-mini pricing, USD per million tokens.
const (
	inputCostPerMTok  = 0.150
	outputCostPerMTok = 0.600
)
