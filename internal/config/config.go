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

// Config holds the transferguard service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Auth       AuthConfig       `yaml:"auth"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Compliance ComplianceConfig `yaml:"compliance"`
	Logging    LoggingConfig    `yaml:"logging"`
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

// Database drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverValkey = "valkey"
)

// DatabaseConfig holds the KV store settings (documents, chunks, rules, snapshots).
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis, valkey (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// LedgerConfig holds the SQLite ledger settings.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// Embedding providers.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
)

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // hash, openai (default: hash)
	Dimensions int    `yaml:"dimensions"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Cache      bool   `yaml:"cache"`
}

// IndexConfig holds vector index snapshot settings.
type IndexConfig struct {
	SnapshotKey    string `yaml:"snapshot_key"` // relative to the service key prefix
	PersistOnWrite *bool  `yaml:"persist_on_write"`
}

// ShouldPersistOnWrite reports the effective persist_on_write value (default true).
func (c IndexConfig) ShouldPersistOnWrite() bool {
	return c.PersistOnWrite == nil || *c.PersistOnWrite
}

// ChunkingConfig holds chunker settings.
type ChunkingConfig struct {
	MaxChars int `yaml:"max_chars"`
	Overlap  int `yaml:"overlap"`
	// StatementMaxChars bounds segments of rules and sanctions documents,
	// which are split one statement per segment.
	StatementMaxChars int `yaml:"statement_max_chars"`
}

// ComplianceConfig holds retrieval and transfer limit settings.
type ComplianceConfig struct {
	TopK                       int      `yaml:"top_k"`
	SimilarityThreshold        float64  `yaml:"similarity_threshold"`
	DefaultPerTransactionLimit float64  `yaml:"default_per_transaction_limit"`
	DefaultDailyLimit          float64  `yaml:"default_daily_limit"`
	Currency                   string   `yaml:"currency"`
	BlacklistedCountries       []string `yaml:"blacklisted_countries"`
	MatchBeneficiaryName       bool     `yaml:"match_beneficiary_name"`
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
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMemory
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "./data/ledger.db"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderHash
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Index.SnapshotKey == "" {
		c.Index.SnapshotKey = "index:snapshot"
	}
	if c.Chunking.MaxChars <= 0 {
		c.Chunking.MaxChars = 1000
	}
	if c.Chunking.StatementMaxChars <= 0 {
		c.Chunking.StatementMaxChars = 400
	}
	if c.Compliance.TopK <= 0 {
		c.Compliance.TopK = 3
	}
	if c.Compliance.SimilarityThreshold == 0 {
		c.Compliance.SimilarityThreshold = 0.35
	}
	if c.Compliance.DefaultPerTransactionLimit == 0 {
		c.Compliance.DefaultPerTransactionLimit = 500
	}
	if c.Compliance.DefaultDailyLimit == 0 {
		c.Compliance.DefaultDailyLimit = 1000
	}
	if c.Compliance.Currency == "" {
		c.Compliance.Currency = "BHD"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver must be memory, redis or valkey, got %q", c.Database.Driver)
	}
	switch c.Embedding.Provider {
	case ProviderHash:
	case ProviderOpenAI:
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for provider %q", c.Embedding.Provider)
		}
	default:
		return fmt.Errorf("embedding.provider must be hash or openai, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxChars {
		return fmt.Errorf("chunking.overlap must be in [0, max_chars), got %d", c.Chunking.Overlap)
	}
	if c.Compliance.SimilarityThreshold <= 0 || c.Compliance.SimilarityThreshold > 1 {
		return fmt.Errorf("compliance.similarity_threshold must be in (0, 1], got %v", c.Compliance.SimilarityThreshold)
	}
	if c.Compliance.TopK < 1 {
		return fmt.Errorf("compliance.top_k must be at least 1, got %d", c.Compliance.TopK)
	}
	if c.Compliance.DefaultPerTransactionLimit <= 0 || c.Compliance.DefaultDailyLimit <= 0 {
		return fmt.Errorf("compliance default limits must be positive")
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
