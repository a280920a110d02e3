package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

var ErrMisconfigured = errors.New("assistant is misconfigured")

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Assistant AssistantConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	Development  bool
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
	MaxAttempts int
}

// AssistantConfig holds the knobs of the question-answering pipeline.
type AssistantConfig struct {
	MaxQuestionLength     int
	MonthlyBudget         float64
	InputPricePerMillion  float64
	OutputPricePerMillion float64
	CharsPerToken         float64
	DailyLimit            int
	ConversationTTLHours  int
	HistoryWindow         int
	MinRouteConfidence    float64
	Timezone              string
	SweepIntervalMin      int
	CounterBackend        string
	RouteCacheTTLMin      int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func (a AssistantConfig) ConversationTTL() time.Duration {
	return time.Duration(a.ConversationTTLHours) * time.Hour
}

func (a AssistantConfig) SweepInterval() time.Duration {
	return time.Duration(a.SweepIntervalMin) * time.Minute
}

func (a AssistantConfig) RouteCacheTTL() time.Duration {
	return time.Duration(a.RouteCacheTTLMin) * time.Minute
}

// Location resolves the business time zone used for daily and monthly keys.
func (a AssistantConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid assistant timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSec) * time.Second
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/stockdesk")

	v.SetEnvPrefix("STOCKDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows, so every field
	// that may come from the environment needs a default.
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Validate reports settings the pipeline cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.Model) == "" {
		return fmt.Errorf("%w: llm.model is empty", ErrMisconfigured)
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("%w: llm.apiKey is empty", ErrMisconfigured)
	}
	if c.Assistant.CharsPerToken <= 0 {
		return fmt.Errorf("%w: assistant.charsPerToken must be positive", ErrMisconfigured)
	}
	switch c.Assistant.CounterBackend {
	case "sqlite":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("%w: redis counter backend requires redis.enabled", ErrMisconfigured)
		}
	default:
		return fmt.Errorf("%w: unknown counter backend %q", ErrMisconfigured, c.Assistant.CounterBackend)
	}
	if _, err := c.Assistant.Location(); err != nil {
		return fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	return nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./data/stockdesk.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 600)
	v.SetDefault("llm.timeoutSec", 30)
	v.SetDefault("llm.maxAttempts", 2)

	v.SetDefault("assistant.maxQuestionLength", 500)
	v.SetDefault("assistant.monthlyBudget", 20.0)
	v.SetDefault("assistant.inputPricePerMillion", 0.15)
	v.SetDefault("assistant.outputPricePerMillion", 0.6)
	v.SetDefault("assistant.charsPerToken", 4.0)
	v.SetDefault("assistant.dailyLimit", 50)
	v.SetDefault("assistant.conversationTTLHours", 72)
	v.SetDefault("assistant.historyWindow", 10)
	v.SetDefault("assistant.minRouteConfidence", 0.6)
	v.SetDefault("assistant.timezone", "Asia/Ho_Chi_Minh")
	v.SetDefault("assistant.sweepIntervalMin", 15)
	v.SetDefault("assistant.counterBackend", "sqlite")
	v.SetDefault("assistant.routeCacheTTLMin", 60)

	v.SetDefault("rateLimit.requestsPerMinute", 60)
	v.SetDefault("rateLimit.burst", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
