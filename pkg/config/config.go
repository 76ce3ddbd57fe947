// Package config provides configuration loading, validation, and access for the research copilot.
//
// Configuration comes from three layers, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. A YAML file, copilot.yaml unless overridden
//  3. Environment variables, optionally seeded from a .env file
//
// A single global Config is kept in memory behind a mutex. Get returns it BY VALUE
// so callers cannot mutate shared state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"researchcopilot/pkg/logx"
)

// DefaultConfigFile is read when no --config flag is given.
const DefaultConfigFile = "copilot.yaml"

// Supported reasoning-engine providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Environment variable names.
const (
	EnvOllamaModel         = "OLLAMA_MODEL"
	EnvOllamaBaseURL       = "OLLAMA_BASE_URL"
	EnvOllamaTemperature   = "OLLAMA_TEMPERATURE"
	EnvOllamaNumCtx        = "OLLAMA_NUM_CTX"
	EnvOllamaNumPredict    = "OLLAMA_NUM_PREDICT"
	EnvOllamaTopP          = "OLLAMA_TOP_P"
	EnvOllamaTopK          = "OLLAMA_TOP_K"
	EnvOllamaRepeatPenalty = "OLLAMA_REPEAT_PENALTY"
	EnvOllamaSeed          = "OLLAMA_SEED"
	EnvLLMProvider         = "LLM_PROVIDER"
	EnvLLMModel            = "LLM_MODEL"
	EnvOpenAIAPIKey        = "OPENAI_API_KEY"
	EnvAnthropicAPIKey     = "ANTHROPIC_API_KEY"
	EnvGeminiAPIKey        = "GEMINI_API_KEY"
	EnvWebSearchBackend    = "WEB_SEARCH_BACKEND"
	EnvTavilyAPIKey        = "TAVILY_API_KEY"
	EnvTavilyMCPURL        = "TAVILY_MCP_URL"
	EnvRAGEmbedModel       = "RAG_EMBED_MODEL"
	EnvRAGEmbedProvider    = "RAG_EMBED_PROVIDER"
	EnvRedisURL            = "REDIS_URL"
)

//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config *Config
	mu     sync.RWMutex
	logger = logx.NewLogger("config")
)

// AgentConfig controls the control loop.
type AgentConfig struct {
	MaxSteps   int    `yaml:"max_steps"`
	PromptFile string `yaml:"prompt_file"`
	// RequestTimeout bounds each reasoning-engine call; zero disables it.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LLMConfig selects and tunes the reasoning engine.
type LLMConfig struct {
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"-"`
	Temperature   float32 `yaml:"temperature"`
	NumCtx        int     `yaml:"num_ctx"`
	MaxTokens     int     `yaml:"max_tokens"`
	TopP          float64 `yaml:"top_p"`
	TopK          int     `yaml:"top_k"`
	RepeatPenalty float64 `yaml:"repeat_penalty"`
	Seed          *int    `yaml:"seed,omitempty"`
}

// SearchConfig configures the web search backends.
type SearchConfig struct {
	// Backend forces "rest" or "mcp"; empty selects automatically.
	Backend       string        `yaml:"backend"`
	RESTEndpoints []string      `yaml:"rest_endpoints"`
	TavilyAPIKey  string        `yaml:"-"`
	MCPURL        string        `yaml:"mcp_url"`
	Timeout       time.Duration `yaml:"timeout"`
}

// SourcesConfig holds the base URLs of the public research sources.
type SourcesConfig struct {
	NTRSBaseURL string `yaml:"ntrs_base_url"`
	// WikipediaAPIURL contains one %s for the language code.
	WikipediaAPIURL string `yaml:"wikipedia_api_url"`
	UserAgent       string `yaml:"user_agent"`
}

// RetryConfig controls adapter and reasoning-engine retries.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

// RetrievalConfig configures query embeddings for rag_retrieve.
type RetrievalConfig struct {
	EmbedProvider string `yaml:"embed_provider"`
	EmbedModel    string `yaml:"embed_model"`
	EmbedBaseURL  string `yaml:"embed_base_url"`
	EmbedAPIKey   string `yaml:"-"`
}

// CacheConfig configures the optional Redis fetch cache.
type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the complete runtime configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	Sources   SourcesConfig   `yaml:"sources"`
	Retry     RetryConfig     `yaml:"retry"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Cache     CacheConfig     `yaml:"cache"`
	Server    ServerConfig    `yaml:"server"`
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// Get returns the current global config BY VALUE.
func Get() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call Load first")
	}
	return *config, nil
}

// SetConfigForTesting sets the global config for testing purposes. Pass nil to reset.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists), a .env file in the working directory (if it exists) and the
// environment, then validates it and installs it as the global config.
// An empty path means DefaultConfigFile.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("⚠️ Ignoring unreadable .env: %v", err)
	}

	cfg, err := loadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := applyEnv(cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	mu.Lock()
	config = cfg
	mu.Unlock()
	return *cfg, nil
}

func loadFile(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("No config file at %s, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML %s: %w", path, err)
	}
	logger.Info("📝 Loaded config from %s", path)
	return cfg, nil
}

// WriteDefault writes the built-in configuration to path, creating parent directories.
// It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	cfg := Default()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) error {
	setString := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}

	setString(EnvLLMProvider, &cfg.LLM.Provider)
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	if cfg.LLM.Provider == "" || cfg.LLM.Provider == ProviderOllama {
		setString(EnvOllamaModel, &cfg.LLM.Model)
		setString(EnvOllamaBaseURL, &cfg.LLM.BaseURL)
	}
	setString(EnvLLMModel, &cfg.LLM.Model)

	switch cfg.LLM.Provider {
	case ProviderOpenAI:
		setString(EnvOpenAIAPIKey, &cfg.LLM.APIKey)
	case ProviderAnthropic:
		setString(EnvAnthropicAPIKey, &cfg.LLM.APIKey)
	case ProviderGoogle:
		setString(EnvGeminiAPIKey, &cfg.LLM.APIKey)
	}

	var errs []error
	if v, ok, err := envFloat(EnvOllamaTemperature); err != nil {
		errs = append(errs, err)
	} else if ok {
		cfg.LLM.Temperature = float32(v)
	}
	for name, dst := range map[string]*int{
		EnvOllamaNumCtx:     &cfg.LLM.NumCtx,
		EnvOllamaNumPredict: &cfg.LLM.MaxTokens,
		EnvOllamaTopK:       &cfg.LLM.TopK,
	} {
		if v, ok, err := envInt(name); err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = v
		}
	}
	for name, dst := range map[string]*float64{
		EnvOllamaTopP:          &cfg.LLM.TopP,
		EnvOllamaRepeatPenalty: &cfg.LLM.RepeatPenalty,
	} {
		if v, ok, err := envFloat(name); err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = v
		}
	}
	if v, ok, err := envInt(EnvOllamaSeed); err != nil {
		errs = append(errs, err)
	} else if ok {
		cfg.LLM.Seed = &v
	}

	setString(EnvWebSearchBackend, &cfg.Search.Backend)
	cfg.Search.Backend = strings.ToLower(cfg.Search.Backend)
	setString(EnvTavilyAPIKey, &cfg.Search.TavilyAPIKey)
	setString(EnvTavilyMCPURL, &cfg.Search.MCPURL)
	setString(EnvRAGEmbedModel, &cfg.Retrieval.EmbedModel)
	setString(EnvRAGEmbedProvider, &cfg.Retrieval.EmbedProvider)
	cfg.Retrieval.EmbedProvider = strings.ToLower(cfg.Retrieval.EmbedProvider)
	if strings.EqualFold(cfg.Retrieval.EmbedProvider, ProviderOpenAI) {
		setString(EnvOpenAIAPIKey, &cfg.Retrieval.EmbedAPIKey)
	}
	setString(EnvRedisURL, &cfg.Cache.RedisURL)

	return errors.Join(errs...)
}

func envInt(name string) (int, bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: invalid integer %q", name, raw)
	}
	return v, true, nil
}

func envFloat(name string) (float64, bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s: invalid number %q", name, raw)
	}
	return v, true, nil
}

// applyDefaults fills every zero-valued setting.
func applyDefaults(cfg *Config) {
	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = 6
	}
	if cfg.Agent.PromptFile == "" {
		cfg.Agent.PromptFile = filepath.Join("prompts", "system_react.txt")
	}
	if cfg.Agent.RequestTimeout == 0 {
		cfg.Agent.RequestTimeout = 120 * time.Second
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOllama
	}
	if cfg.LLM.Model == "" && cfg.LLM.Provider == ProviderOllama {
		cfg.LLM.Model = "mistral"
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider == ProviderOllama {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.NumCtx == 0 {
		cfg.LLM.NumCtx = 4096
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 512
	}
	if cfg.LLM.TopP == 0 {
		cfg.LLM.TopP = 0.9
	}
	if cfg.LLM.TopK == 0 {
		cfg.LLM.TopK = 40
	}
	if cfg.LLM.RepeatPenalty == 0 {
		cfg.LLM.RepeatPenalty = 1.1
	}

	if len(cfg.Search.RESTEndpoints) == 0 {
		cfg.Search.RESTEndpoints = []string{"https://api.tavily.com/search", "https://api.tavily.com/query"}
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = 10 * time.Second
	}

	if cfg.Sources.NTRSBaseURL == "" {
		cfg.Sources.NTRSBaseURL = "https://ntrs.nasa.gov"
	}
	if cfg.Sources.WikipediaAPIURL == "" {
		cfg.Sources.WikipediaAPIURL = "https://%s.wikipedia.org/w/api.php"
	}
	if cfg.Sources.UserAgent == "" {
		cfg.Sources.UserAgent = "research-copilot/1.0"
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 2
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = 500 * time.Millisecond
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 2 * time.Second
	}
	if cfg.Retry.BackoffFactor == 0 {
		cfg.Retry.BackoffFactor = 2.0
	}

	if cfg.Retrieval.EmbedProvider == "" {
		cfg.Retrieval.EmbedProvider = ProviderOllama
	}
	if cfg.Retrieval.EmbedModel == "" {
		cfg.Retrieval.EmbedModel = "nomic-embed-text"
		if cfg.Retrieval.EmbedProvider == ProviderOpenAI {
			cfg.Retrieval.EmbedModel = "text-embedding-3-small"
		}
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
}

// validate rejects configurations the runtime cannot honor.
func validate(cfg *Config) error {
	if cfg.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", cfg.Agent.MaxSteps)
	}

	switch cfg.LLM.Provider {
	case ProviderOllama:
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("llm.provider %q requires %s", cfg.LLM.Provider, apiKeyEnv(cfg.LLM.Provider))
		}
	default:
		return fmt.Errorf("unknown llm.provider %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if cfg.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}

	switch cfg.Search.Backend {
	case "", SearchBackendREST, "tavily", SearchBackendMCP:
	default:
		return fmt.Errorf("unknown search.backend %q (want rest or mcp)", cfg.Search.Backend)
	}

	switch cfg.Retrieval.EmbedProvider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown retrieval.embed_provider %q", cfg.Retrieval.EmbedProvider)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	return nil
}

// apiKeyEnv names the environment variable holding the key for provider.
func apiKeyEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return EnvOpenAIAPIKey
	case ProviderAnthropic:
		return EnvAnthropicAPIKey
	case ProviderGoogle:
		return EnvGeminiAPIKey
	default:
		return ""
	}
}
