package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"outing/internal/cache"
	outingerrors "outing/internal/errors"
	"outing/internal/logging"
	"outing/internal/metrics"
)

// Responses larger than this are considered malformed.
const maxResponseBytes = 10 << 20

const llmCacheName = "llm"

// openAIClient speaks the OpenAI-compatible chat completions API with
// structured outputs. Identical requests are served from a bounded TTL
// cache; outbound calls are retried per the configured policy.
type openAIClient struct {
	model   string
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *logging.Logger
	policy  outingerrors.RetryPolicy
	cache   *cache.Cache[json.RawMessage]
	metrics *metrics.Metrics

	mu    sync.Mutex
	usage Usage
}

// NewOpenAIClient constructs the production LLM client.
func NewOpenAIClient(cfg Config, policy outingerrors.RetryPolicy, logger *logging.Logger, m *metrics.Metrics) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	var responseCache *cache.Cache[json.RawMessage]
	if cfg.CacheEnabled {
		maxSize := cfg.CacheMaxSize
		if maxSize <= 0 {
			maxSize = DefaultCacheMaxSize
		}
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		responseCache = cache.New[json.RawMessage](maxSize, ttl)
	}

	return &openAIClient{
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logging.OrNop(logger),
		policy:  policy,
		cache:   responseCache,
		metrics: m,
	}
}

// JSONSchema performs one structured-output completion. The returned bytes
// are always valid JSON; responses wrapped in markdown fences or with minor
// syntax damage are cleaned and repaired before being rejected.
func (c *openAIClient) JSONSchema(ctx context.Context, req SchemaRequest) (json.RawMessage, error) {
	req.Schema = EnforceNoAdditionalProperties(req.Schema)

	key := cacheKey(c.model, req)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			c.logger.Debug("llm cache hit", "schema", req.SchemaName, "key", key[:16])
			c.metrics.RecordCacheHit(llmCacheName)
			return cached, nil
		}
		c.metrics.RecordCacheMiss(llmCacheName)
	}

	result, err := outingerrors.CallWithRetry(ctx, c.policy, c.logger, "llm completion",
		func(ctx context.Context) (json.RawMessage, error) {
			return c.complete(ctx, req)
		})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(key, result)
	}
	return result, nil
}

// Usage returns the cumulative token spend with the estimated cost.
func (c *openAIClient) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	usage := c.usage
	inputCost := float64(usage.PromptTokens) / 1e6 * inputCostPerMTok
	outputCost := float64(usage.CompletionTokens) / 1e6 * outputCostPerMTok
	usage.EstimatedCostUSD = math.Round((inputCost+outputCost)*1e6) / 1e6
	return usage
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *openAIClient) complete(ctx context.Context, req SchemaRequest) (json.RawMessage, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: 0,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   req.SchemaName,
				Schema: req.Schema,
				Strict: req.Strict,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("llm request", "model", c.model, "schema", req.SchemaName)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordAPICall("openai", 0, time.Since(start))
		return nil, outingerrors.NewTransientError(err, "llm connection failed")
	}
	defer func() { _ = resp.Body.Close() }()

	c.metrics.RecordAPICall("openai", resp.StatusCode, time.Since(start))

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, outingerrors.NewTransientError(err, "read llm response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, payload)
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode llm response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("llm response has no content")
	}

	c.mu.Lock()
	c.usage.PromptTokens += parsed.Usage.PromptTokens
	c.usage.CompletionTokens += parsed.Usage.CompletionTokens
	c.usage.TotalTokens += parsed.Usage.TotalTokens
	c.mu.Unlock()

	text := cleanResponseText(parsed.Choices[0].Message.Content)
	if !json.Valid([]byte(text)) {
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil || !json.Valid([]byte(repaired)) {
			return nil, fmt.Errorf("llm returned unparseable JSON for schema %s", req.SchemaName)
		}
		c.logger.Warn("repaired malformed llm JSON", "schema", req.SchemaName)
		text = repaired
	}
	return json.RawMessage(text), nil
}

// statusError maps an HTTP failure onto the retry taxonomy: auth failures
// are permanent, rate limits and server errors are transient.
func statusError(status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	base := fmt.Errorf("llm api status %d: %s", status, snippet)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return outingerrors.NewPermanentError(base, "llm authentication failed")
	case status == http.StatusTooManyRequests || status >= 500:
		return outingerrors.NewTransientError(base, fmt.Sprintf("llm api returned %d", status))
	default:
		return base
	}
}
