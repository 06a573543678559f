package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the relay service configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Contentstack ContentstackConfig `yaml:"contentstack"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Expander     ExpanderConfig     `yaml:"expander"`
	Search       SearchConfig       `yaml:"search"`
	Index        IndexConfig        `yaml:"index"`
	Auth         AuthConfig         `yaml:"auth"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings for admin routes.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds vector index connection settings.
// Empty addrs leave the index unconfigured rather than failing startup.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Configured reports whether index connection settings are present.
func (c DatabaseConfig) Configured() bool {
	return len(c.Addrs) > 0
}

// ContentstackConfig holds CMS delivery API settings.
type ContentstackConfig struct {
	APIKey        string `yaml:"api_key"`
	DeliveryToken string `yaml:"delivery_token"`
	Environment   string `yaml:"environment"`
	Region        string `yaml:"region"` // eu or us
	BaseURL       string `yaml:"base_url"`
	ContentType   string `yaml:"content_type"`
	TimeoutSec    int    `yaml:"timeout_sec"`
}

// Configured reports whether CMS credentials are present.
func (c ContentstackConfig) Configured() bool {
	return c.APIKey != "" && c.DeliveryToken != ""
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// Configured reports whether embedding credentials are present.
func (c EmbeddingConfig) Configured() bool {
	return c.APIKey != ""
}

// ExpanderConfig holds query expansion settings.
type ExpanderConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	MaxExpansions int    `yaml:"max_expansions"`
}

// Configured reports whether expander credentials are present.
func (c ExpanderConfig) Configured() bool {
	return c.APIKey != ""
}

// SearchConfig holds server-side search caps.
type SearchConfig struct {
	DefaultTopK   int  `yaml:"default_top_k"`
	MaxTopK       int  `yaml:"max_top_k"`
	IndexQueryCap int  `yaml:"index_query_cap"`
	DemoFallback  bool `yaml:"demo_fallback"`
}

// IndexConfig holds the FT index settings.
type IndexConfig struct {
	Name            string `yaml:"name"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Contentstack.Environment == "" {
		c.Contentstack.Environment = "development"
	}
	if c.Contentstack.Region == "" {
		c.Contentstack.Region = "eu"
	}
	if c.Contentstack.BaseURL == "" {
		c.Contentstack.BaseURL = fmt.Sprintf("https://%s-cdn.contentstack.com/v3", c.Contentstack.Region)
	}
	if c.Contentstack.ContentType == "" {
		c.Contentstack.ContentType = "product"
	}
	if c.Contentstack.TimeoutSec <= 0 {
		c.Contentstack.TimeoutSec = 15
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Expander.Model == "" {
		c.Expander.Model = "gpt-4o-mini"
	}
	if c.Expander.MaxExpansions <= 0 {
		c.Expander.MaxExpansions = 3
	}
	if c.Search.DefaultTopK <= 0 {
		c.Search.DefaultTopK = 5
	}
	if c.Search.MaxTopK <= 0 {
		c.Search.MaxTopK = 20
	}
	if c.Search.IndexQueryCap <= 0 {
		c.Search.IndexQueryCap = 10
	}
	if c.Index.Name == "" {
		c.Index.Name = "relay-entries"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
}

// Validate checks the configuration for correctness. Missing collaborator
// credentials are deliberately not errors: each collaborator degrades to
// "unconfigured" instead of blocking startup.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.DefaultTopK > c.Search.MaxTopK {
		return fmt.Errorf("search.default_top_k (%d) must not exceed search.max_top_k (%d)",
			c.Search.DefaultTopK, c.Search.MaxTopK)
	}
	switch c.Contentstack.Region {
	case "", "eu", "us":
		// ok
	default:
		return fmt.Errorf("contentstack.region must be \"eu\" or \"us\", got %q", c.Contentstack.Region)
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
