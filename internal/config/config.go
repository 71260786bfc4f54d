// Package config loads the pipeline's YAML configuration surface:
// provider priority lists, cache endpoints, retriever boost rules and
// assistant-persona defaults. Loading follows the teacher's pattern
// (gopkg.in/yaml.v3 unmarshal, then os.ExpandEnv substitution of
// ${VAR}-style placeholders for secrets and endpoints).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment selects provider-priority and embedding-dimension defaults,
// per spec §6 and the original source's create_ohada_query_api factory.
type Environment string

const (
	EnvTest       Environment = "test"
	EnvProduction Environment = "production"
)

// Config is the root configuration document.
type Config struct {
	Environment Environment               `yaml:"environment"`
	Providers   ProvidersConfig           `yaml:"providers"`
	Cache       CacheConfig               `yaml:"cache"`
	Retriever   RetrieverConfig           `yaml:"retriever"`
	Persona     AssistantPersonality      `yaml:"assistant_personality"`
	Metadata    MetadataStoreConfig       `yaml:"metadata_store"`
	VectorIndex VectorIndexConfig         `yaml:"vector_index"`
	Lexical     LexicalIndexConfig        `yaml:"lexical_index"`
	Rerank      RerankConfig              `yaml:"rerank"`
}

// ProvidersConfig enumerates named LLM/embedding backends and the priority
// order in which each capability is attempted. First success wins.
type ProvidersConfig struct {
	Priority          []string                  `yaml:"priority"`
	EmbeddingPriority []string                  `yaml:"embedding_priority"`
	Providers         map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig configures one named backend.
type ProviderConfig struct {
	Type       string            `yaml:"type"` // "openai", "anthropic", "generic"
	APIKeyEnv  string            `yaml:"api_key_env"`
	APIKey     string            `yaml:"-"` // resolved from APIKeyEnv at load time
	BaseURL    string            `yaml:"base_url"`
	Models     ProviderModels    `yaml:"models"`
	Parameters ProviderParams    `yaml:"parameters"`
	Timeout    time.Duration     `yaml:"timeout"`
}

type ProviderModels struct {
	Response  string `yaml:"response"`
	Embedding string `yaml:"embedding"`
	Default   string `yaml:"default"`
}

type ProviderParams struct {
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
	Dimensions  int     `yaml:"dimensions"`
}

// CacheConfig configures the three CacheTier tiers.
type CacheConfig struct {
	RedisURL       string        `yaml:"redis_url"` // empty disables the shared tier
	DiskPath       string        `yaml:"disk_path"` // empty disables the disk tier
	L1Capacity     int           `yaml:"l1_capacity"`
	EmbeddingTTL   time.Duration `yaml:"embedding_ttl_s"`
	AnswerTTL      time.Duration `yaml:"answer_ttl_s"`
}

// BoostRule multiplies a candidate's combined score when the query
// contains a keyword from Keywords and the candidate's DocumentType
// matches DocumentType.
type BoostRule struct {
	Keywords     []string `yaml:"keywords"`
	DocumentType string   `yaml:"document_type"`
	Multiplier   float64  `yaml:"multiplier"`
}

// RetrieverConfig configures HybridRetriever's boost rules.
type RetrieverConfig struct {
	BoostRules []BoostRule `yaml:"boost_rules"`
}

// AssistantPersonality shapes IntentClassifier's direct-reply generation.
type AssistantPersonality struct {
	Name      string  `yaml:"name"`
	Expertise string  `yaml:"expertise"`
	Region    string  `yaml:"region"`
	Language  string  `yaml:"language"`
	Tone      string  `yaml:"tone"`
	MaxTokens int     `yaml:"max_tokens"`
	Temp      float64 `yaml:"temperature"`
}

// DefaultAssistantPersonality matches the original source's
// intent_classifier.py generate_response defaults.
func DefaultAssistantPersonality() AssistantPersonality {
	return AssistantPersonality{
		Name:      "Expert OHADA",
		Expertise: "comptabilité et normes SYSCOHADA",
		Region:    "zone OHADA (Afrique)",
		Language:  "fr",
		Tone:      "professional",
		MaxTokens: 600,
		Temp:      0.7,
	}
}

// MetadataStoreConfig configures the C7 relational store connection.
type MetadataStoreConfig struct {
	DSN string `yaml:"dsn"`
}

// VectorIndexConfig configures the C5 qdrant connection.
type VectorIndexConfig struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"-"`
	APIKeyEnv  string `yaml:"api_key_env"`
}

// LexicalIndexConfig configures the C4 bleve index location.
type LexicalIndexConfig struct {
	IndexDir string `yaml:"index_dir"`
}

// RerankConfig configures the C6 cross-encoder backend. Endpoint empty
// forces the token-overlap fallback, per rerank.Config.
type RerankConfig struct {
	Model     string        `yaml:"model"`
	Endpoint  string        `yaml:"endpoint"`
	APIKeyEnv string        `yaml:"api_key_env"`
	APIKey    string        `yaml:"-"`
	Timeout   time.Duration `yaml:"timeout"`
	BatchSize int           `yaml:"batch_size"`
}

// Load reads, parses and env-expands a YAML configuration file, mirroring
// the teacher's LoadMultiProviderConfig/substituteEnvVars two-step.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	substituteEnvVars(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

func substituteEnvVars(cfg *Config) {
	for name, p := range cfg.Providers.Providers {
		if p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
		}
		p.BaseURL = os.ExpandEnv(p.BaseURL)
		cfg.Providers.Providers[name] = p
	}

	if cfg.VectorIndex.APIKeyEnv != "" {
		cfg.VectorIndex.APIKey = os.Getenv(cfg.VectorIndex.APIKeyEnv)
	}
	if cfg.Rerank.APIKeyEnv != "" {
		cfg.Rerank.APIKey = os.Getenv(cfg.Rerank.APIKeyEnv)
	}
	cfg.Rerank.Endpoint = os.ExpandEnv(cfg.Rerank.Endpoint)
	cfg.Metadata.DSN = os.ExpandEnv(cfg.Metadata.DSN)
	cfg.Cache.RedisURL = os.ExpandEnv(cfg.Cache.RedisURL)
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = EnvProduction
	}
	if cfg.Cache.L1Capacity == 0 {
		cfg.Cache.L1Capacity = 100
	}
	if cfg.Cache.EmbeddingTTL == 0 {
		cfg.Cache.EmbeddingTTL = 24 * time.Hour
	}
	if cfg.Cache.AnswerTTL == 0 {
		cfg.Cache.AnswerTTL = time.Hour
	}
	if cfg.Persona == (AssistantPersonality{}) {
		cfg.Persona = DefaultAssistantPersonality()
	}
	if cfg.Rerank.Timeout == 0 {
		cfg.Rerank.Timeout = 30 * time.Second
	}
	if cfg.Rerank.BatchSize == 0 {
		cfg.Rerank.BatchSize = 32
	}
}
