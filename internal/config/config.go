package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/musegraph/artsearch/internal/domain"
)

// Config holds the artsearch API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Hybrid    HybridConfig    `yaml:"hybrid"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds search-index backend connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	TTLHours            int `yaml:"ttl_hours"`             // durable + local tier TTL (default 168 = 7d)
	RefreshAfterMinutes int `yaml:"refresh_after_minutes"` // amortized refresh threshold (default 60)
	LocalCapacity       int `yaml:"local_capacity"`        // in-process LRU entries (default 1000)
}

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	Providers ProvidersConfig            `yaml:"providers"`
	Models    map[string]ModelAssignment `yaml:"models"`
}

// ProvidersConfig holds per-backend transport settings.
type ProvidersConfig struct {
	Modal  ModalProviderConfig  `yaml:"modal"`
	OpenAI OpenAIProviderConfig `yaml:"openai"`
}

// ModalProviderConfig configures the GPU embedding service client.
type ModalProviderConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"` // generous: the backend may cold start
}

// OpenAIProviderConfig configures an OpenAI-compatible embeddings API.
type OpenAIProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ModelAssignment binds a registry model to a provider.
type ModelAssignment struct {
	Provider string `yaml:"provider"`
	// APIModel is the upstream model identifier for OpenAI-style providers.
	APIModel string `yaml:"api_model"`
}

// SearchConfig holds retrieval tuning settings.
type SearchConfig struct {
	IndexName       string `yaml:"index_name"`
	OverfetchFactor int    `yaml:"overfetch_factor"` // KNN candidates = max(factor*size, min_candidates)
	MinCandidates   int    `yaml:"min_candidates"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// HybridConfig pins the model pairing used by hybrid fusion modes.
type HybridConfig struct {
	TextModel  string `yaml:"text_model"`
	ImageModel string `yaml:"image_model"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Fan-out waits on embedding backends that may cold start.
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = 7 * 24
	}
	if c.Cache.RefreshAfterMinutes <= 0 {
		c.Cache.RefreshAfterMinutes = 60
	}
	if c.Cache.LocalCapacity <= 0 {
		c.Cache.LocalCapacity = 1000
	}
	if c.Embedding.Providers.Modal.TimeoutSec <= 0 {
		c.Embedding.Providers.Modal.TimeoutSec = 45
	}
	if c.Embedding.Models == nil {
		c.Embedding.Models = map[string]ModelAssignment{}
	}
	for _, key := range domain.AllModelKeys() {
		if _, ok := c.Embedding.Models[string(key)]; !ok {
			c.Embedding.Models[string(key)] = ModelAssignment{Provider: "modal"}
		}
	}
	if c.Search.IndexName == "" {
		c.Search.IndexName = "artworks"
	}
	if c.Search.OverfetchFactor <= 0 {
		c.Search.OverfetchFactor = 3
	}
	if c.Search.MinCandidates <= 0 {
		c.Search.MinCandidates = 50
	}
	if c.Search.HNSWM <= 0 {
		c.Search.HNSWM = 32
	}
	if c.Search.HNSWEFConstruct <= 0 {
		c.Search.HNSWEFConstruct = 400
	}
	if c.Hybrid.TextModel == "" {
		c.Hybrid.TextModel = string(domain.ModelJinaV3)
	}
	if c.Hybrid.ImageModel == "" {
		c.Hybrid.ImageModel = string(domain.ModelSigLIP2)
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	for raw, assignment := range c.Embedding.Models {
		if _, err := domain.ParseModelKey(raw); err != nil {
			return fmt.Errorf("embedding.models: %w", err)
		}
		switch assignment.Provider {
		case "modal":
			if c.Embedding.Providers.Modal.BaseURL == "" {
				return fmt.Errorf("embedding.models.%s: modal provider requires embedding.providers.modal.base_url", raw)
			}
		case "openai":
			if c.Embedding.Providers.OpenAI.APIKey == "" {
				return fmt.Errorf("embedding.models.%s: openai provider requires embedding.providers.openai.api_key", raw)
			}
			if assignment.APIModel == "" {
				return fmt.Errorf("embedding.models.%s: openai provider requires api_model", raw)
			}
		default:
			return fmt.Errorf("embedding.models.%s: unknown provider %q", raw, assignment.Provider)
		}
	}
	textKey, err := domain.ParseModelKey(c.Hybrid.TextModel)
	if err != nil {
		return fmt.Errorf("hybrid.text_model: %w", err)
	}
	imageKey, err := domain.ParseModelKey(c.Hybrid.ImageModel)
	if err != nil {
		return fmt.Errorf("hybrid.image_model: %w", err)
	}
	if info, _ := domain.Model(imageKey); !info.SupportsImage {
		return fmt.Errorf("hybrid.image_model: model %q does not support image input", imageKey)
	}
	if textKey == imageKey {
		return fmt.Errorf("hybrid: text_model and image_model must differ")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
