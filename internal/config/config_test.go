package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	outingerrors "outing/internal/errors"
	"outing/internal/llm"
)

func TestLoadDefaults(t *testing.T) {
	// An explicitly named file must exist.
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	cfg, err := loadInDir(t, "")
	require.NoError(t, err)

	require.Equal(t, llm.DefaultBaseURL, cfg.OpenAI.BaseURL)
	require.Equal(t, llm.DefaultModel, cfg.OpenAI.Model)
	require.True(t, cfg.OpenAI.CacheEnabled)
	require.Equal(t, 3, cfg.Engine.MaxIterations)
	require.Equal(t, 6, cfg.Engine.MaxToolCalls)
	require.InDelta(t, 4.0, cfg.Engine.MinRating, 1e-9)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	raw := `
openai:
  model: gpt-4o
  timeout: 30s
engine:
  max_iterations: 5
  min_rating: 3.5
server:
  addr: ":9999"
`
	cfg, err := loadInDir(t, raw)
	require.NoError(t, err)

	require.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	require.Equal(t, 30*time.Second, cfg.OpenAI.Timeout)
	require.Equal(t, 5, cfg.Engine.MaxIterations)
	require.InDelta(t, 3.5, cfg.Engine.MinRating, 1e-9)
	require.Equal(t, ":9999", cfg.Server.Addr)
	// Untouched keys keep their defaults.
	require.Equal(t, llm.DefaultBaseURL, cfg.OpenAI.BaseURL)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("PLACES_API_KEY", "places-env")
	t.Setenv("OUTING_OPENAI_MODEL", "gpt-4o-mini-2024")

	cfg, err := loadInDir(t, "openai:\n  model: gpt-4o\n")
	require.NoError(t, err)

	require.Equal(t, "sk-env", cfg.OpenAI.APIKey)
	require.Equal(t, "places-env", cfg.Places.APIKey)
	require.Equal(t, "gpt-4o-mini-2024", cfg.OpenAI.Model)
}

func TestValidateRequiresKeysOnline(t *testing.T) {
	cfg, err := loadInDir(t, "")
	require.NoError(t, err)

	err = cfg.Validate(false)
	require.ErrorContains(t, err, "OPENAI_API_KEY")
	resp, ok := outingerrors.AsErrorResponse(err)
	require.True(t, ok)
	require.Equal(t, outingerrors.CodeConfiguration, resp.Code)
	require.NoError(t, cfg.Validate(true))

	cfg.OpenAI.APIKey = "sk-test"
	require.ErrorContains(t, cfg.Validate(false), "PLACES_API_KEY")

	cfg.Places.APIKey = "places-test"
	require.NoError(t, cfg.Validate(false))
}

func TestValidateBounds(t *testing.T) {
	cfg, err := loadInDir(t, "")
	require.NoError(t, err)

	cfg.Engine.MaxIterations = 0
	require.ErrorContains(t, cfg.Validate(true), "max_iterations")

	cfg.Engine.MaxIterations = 3
	cfg.Engine.MinRating = 6
	require.ErrorContains(t, cfg.Validate(true), "min_rating")
}

func TestConversions(t *testing.T) {
	cfg, err := loadInDir(t, "")
	require.NoError(t, err)
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Places.APIKey = "places-test"

	policy := cfg.RetryPolicy()
	require.Equal(t, 3, policy.MaxRetries)
	require.InDelta(t, 1.0, policy.BaseDelay, 1e-9)

	llmCfg := cfg.LLMConfig()
	require.Equal(t, "sk-test", llmCfg.APIKey)
	require.Equal(t, llm.DefaultModel, llmCfg.Model)

	placesCfg := cfg.PlacesClientConfig()
	require.Equal(t, "places-test", placesCfg.APIKey)
	require.Equal(t, "en", placesCfg.Language)
}

// loadInDir writes an optional config file into a temp working directory
// and loads from there, so tests never pick up a developer's real config.
func loadInDir(t *testing.T, fileContents string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	path := ""
	if fileContents != "" {
		path = filepath.Join(dir, "outing-config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(fileContents), 0o644))
	}
	if path == "" {
		// Point at the empty temp dir via an explicit minimal file.
		path = filepath.Join(dir, "outing-config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	}
	return Load(path)
}
