package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{HTTP: HTTPConfig{Port: 8080}}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mongo" }, "database.driver"},
		{"redis without addrs", func(c *Config) { c.Database.Driver = DriverRedis }, "database.addrs"},
		{"valkey without addrs", func(c *Config) { c.Database.Driver = DriverValkey }, "database.addrs"},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"openai without model", func(c *Config) { c.Embedding.Provider = ProviderOpenAI }, "embedding.model"},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = c.Chunking.MaxChars }, "chunking.overlap"},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }, "chunking.overlap"},
		{"threshold above one", func(c *Config) { c.Compliance.SimilarityThreshold = 1.5 }, "similarity_threshold"},
		{"negative threshold", func(c *Config) { c.Compliance.SimilarityThreshold = -0.1 }, "similarity_threshold"},
		{"negative limit", func(c *Config) { c.Compliance.DefaultDailyLimit = -1 }, "default limits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_RedisWithAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = DriverRedis
	cfg.Database.Addrs = []string{"localhost:6379"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Errorf("expected driver %q, got %q", DriverMemory, cfg.Database.Driver)
	}
	if cfg.Ledger.Path != "./data/ledger.db" {
		t.Errorf("expected ledger path ./data/ledger.db, got %q", cfg.Ledger.Path)
	}
	if cfg.Embedding.Provider != ProviderHash || cfg.Embedding.Dimensions != 384 {
		t.Errorf("expected hash/384, got %s/%d", cfg.Embedding.Provider, cfg.Embedding.Dimensions)
	}
	if cfg.Index.SnapshotKey != "index:snapshot" || !cfg.Index.ShouldPersistOnWrite() {
		t.Errorf("unexpected index defaults: %+v", cfg.Index)
	}
	if cfg.Chunking.MaxChars != 1000 || cfg.Chunking.Overlap != 0 || cfg.Chunking.StatementMaxChars != 400 {
		t.Errorf("unexpected chunking defaults: %+v", cfg.Chunking)
	}
	c := cfg.Compliance
	if c.TopK != 3 || c.SimilarityThreshold != 0.35 || c.DefaultPerTransactionLimit != 500 ||
		c.DefaultDailyLimit != 1000 || c.Currency != "BHD" {
		t.Errorf("unexpected compliance defaults: %+v", c)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	off := false
	cfg := Config{
		HTTP:       HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database:   DatabaseConfig{Driver: DriverValkey, ReadinessTimeout: 15},
		Index:      IndexConfig{SnapshotKey: "custom", PersistOnWrite: &off},
		Compliance: ComplianceConfig{TopK: 5, SimilarityThreshold: 0.5},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Database.Driver != DriverValkey {
		t.Errorf("expected driver valkey, got %q", cfg.Database.Driver)
	}
	if cfg.Index.SnapshotKey != "custom" || cfg.Index.ShouldPersistOnWrite() {
		t.Errorf("index overrides lost: %+v", cfg.Index)
	}
	if cfg.Compliance.TopK != 5 || cfg.Compliance.SimilarityThreshold != 0.5 {
		t.Errorf("compliance overrides lost: %+v", cfg.Compliance)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TG_TEST_KEY", "secret")
	in := []byte("a: ${TG_TEST_KEY}\nb: ${TG_TEST_UNSET:-fallback}\nc: ${TG_TEST_UNSET}")
	got := string(expandEnvVars(in))
	want := "a: secret\nb: fallback\nc: "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoad_FromConfigDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := `
http:
  port: ${TG_TEST_PORT:-9090}
compliance:
  blacklisted_countries: ["Country X", "Country Y"]
  match_beneficiary_name: true
`
	if err := os.WriteFile(filepath.Join(dir, "config", "unit.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load("unit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
	if len(cfg.Compliance.BlacklistedCountries) != 2 || !cfg.Compliance.MatchBeneficiaryName {
		t.Errorf("compliance = %+v", cfg.Compliance)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Errorf("defaults not applied: %q", cfg.Database.Driver)
	}
}
