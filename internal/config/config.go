package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the trainboard server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Inference InferenceConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	CORSOrigins       []string
	RequestsPerMinute int
}

type DatabaseConfig struct {
	URL               string
	MaxOpenConns      int
	MaxIdleConns      int
	ConnMaxLifetime   time.Duration
	ConnMaxIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	URL      string
	StatsTTL time.Duration
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type InferenceConfig struct {
	Provider string
	Timeout  time.Duration
	// TrainingDelay is how long a model stays in "training" before the
	// training service finishes it.
	TrainingDelay time.Duration
	Ollama        OllamaConfig
	VLLM          VLLMConfig
	OpenAI        OpenAIConfig
	Anthropic     AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

var validProviders = map[string]bool{
	"mock":      true,
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

const minJWTSecretLen = 32

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("TRAINBOARD_PORT", 8080),
			Env:               envString("TRAINBOARD_ENV", "development"),
			CORSOrigins:       envList("CORS_ORIGINS", []string{"*"}),
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:               os.Getenv("DATABASE_URL"),
			MaxOpenConns:      envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:      envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:   envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime:   envDuration("DATABASE_CONN_MAX_IDLE_TIME", 30*time.Minute),
			HealthCheckPeriod: envDuration("DATABASE_HEALTH_CHECK_PERIOD", time.Minute),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			StatsTTL: envDuration("STATS_CACHE_TTL", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  envDuration("JWT_TOKEN_TTL", 7*24*time.Hour),
		},
		Inference: InferenceConfig{
			Provider:      envString("INFERENCE_PROVIDER", "mock"),
			Timeout:       envDurationSecs("INFERENCE_TIMEOUT_SECS", 60*time.Second),
			TrainingDelay: envDuration("TRAINING_DELAY", 2*time.Second),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				APIKey: os.Getenv("OPENAI_API_KEY"),
				Model:  envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("DATABASE_MAX_OPEN_CONNS must be positive, got %d", c.Database.MaxOpenConns)
	}
	if c.Database.MaxIdleConns < 0 || c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("DATABASE_MAX_IDLE_CONNS must be between 0 and %d, got %d",
			c.Database.MaxOpenConns, c.Database.MaxIdleConns)
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TOKEN_TTL must be positive, got %s", c.Auth.TokenTTL)
	}

	if !validProviders[c.Inference.Provider] {
		return fmt.Errorf("INFERENCE_PROVIDER must be one of mock, ollama, vllm, openai, anthropic; got %q", c.Inference.Provider)
	}
	if c.Inference.Provider == "openai" && c.Inference.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when INFERENCE_PROVIDER is openai")
	}
	if c.Inference.Provider == "anthropic" && c.Inference.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when INFERENCE_PROVIDER is anthropic")
	}
	if c.Inference.Provider == "vllm" && c.Inference.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when INFERENCE_PROVIDER is vllm")
	}
	if c.Inference.TrainingDelay < 0 {
		return fmt.Errorf("TRAINING_DELAY must not be negative, got %s", c.Inference.TrainingDelay)
	}

	return nil
}

// ClientConfig holds the settings for trainctl and any other API client.
type ClientConfig struct {
	APIURL  string
	Token   string
	Timeout time.Duration
}

// LoadClient reads client configuration from the environment. Flags may
// override the result before use.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		APIURL:  envString("TRAINBOARD_API_URL", "http://localhost:8080/api"),
		Token:   os.Getenv("TRAINBOARD_TOKEN"),
		Timeout: envDuration("TRAINBOARD_TIMEOUT", 30*time.Second),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks a client configuration, including flag overrides.
func (c *ClientConfig) Validate() error {
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("TRAINBOARD_API_URL must start with http:// or https://, got %q", c.APIURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("TRAINBOARD_TIMEOUT must not be negative, got %s", c.Timeout)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
