package config

import (
	"errors"
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, 500, cfg.Assistant.MaxQuestionLength)
	assert.Equal(t, 50, cfg.Assistant.DailyLimit)
	assert.Equal(t, 4.0, cfg.Assistant.CharsPerToken)
	assert.Equal(t, 0.6, cfg.Assistant.MinRouteConfidence)
	assert.Equal(t, "sqlite", cfg.Assistant.CounterBackend)
	assert.Equal(t, 600, cfg.LLM.MaxTokens)
	assert.Equal(t, int64(72), int64(cfg.Assistant.ConversationTTL().Hours()))
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := defaultConfig(t)

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMisconfigured))
}

func TestValidate_RedisBackendNeedsRedis(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.LLM.APIKey = "sk-test"
	cfg.Assistant.CounterBackend = "redis"

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrMisconfigured)

	cfg.Redis.Enabled = true
	require.NoError(t, cfg.Validate())
}

func TestValidate_BadTimezone(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.LLM.APIKey = "sk-test"
	cfg.Assistant.Timezone = "Mars/Olympus"

	require.ErrorIs(t, cfg.Validate(), ErrMisconfigured)
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("STOCKDESK_LLM_APIKEY", "sk-from-env")
	t.Setenv("STOCKDESK_LLM_BASEURL", "http://llm.internal/v1")
	t.Setenv("STOCKDESK_REDIS_PASSWORD", "hunter2")
	t.Setenv("STOCKDESK_ASSISTANT_DAILYLIMIT", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	assert.Equal(t, "http://llm.internal/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, 7, cfg.Assistant.DailyLimit)
	require.NoError(t, cfg.Validate())
}
