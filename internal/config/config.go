package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"github.com/cpretzinger/idudesRAG/internal/domain"
	"github.com/cpretzinger/idudesRAG/internal/embedding/openai"
	"github.com/cpretzinger/idudesRAG/internal/enrich"
	"github.com/cpretzinger/idudesRAG/internal/ingest"
	"github.com/cpretzinger/idudesRAG/internal/logger"
	"github.com/cpretzinger/idudesRAG/internal/pipeline"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore/chromemstore"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore/postgres"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore/qdrant"
)

// EnvPrefix namespaces every environment override, e.g. RAG_PIPELINE_TARGET_SIZE.
const EnvPrefix = "RAG_"

type LogConfig struct {
	Level logger.LogLevel `yaml:"level" env:"LEVEL"`
	JSON  bool            `yaml:"json" env:"JSON"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string        `yaml:"type" env:"TYPE"`
	Cache     string        `yaml:"cache" env:"CACHE"`
	CacheSize int           `yaml:"cache_size" env:"CACHE_SIZE"`
	OpenAI    openai.Config `yaml:"openai" envPrefix:"OPENAI_"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string              `yaml:"type" env:"TYPE"`
	Qdrant   qdrant.Config       `yaml:"qdrant" envPrefix:"QDRANT_"`
	Postgres postgres.Config     `yaml:"postgres" envPrefix:"POSTGRES_"`
	Chromem  chromemstore.Config `yaml:"chromem" envPrefix:"CHROMEM_"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"-" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// ChangeDetectConfig chooses where document content hashes are remembered.
type ChangeDetectConfig struct {
	Type    string `yaml:"type" env:"TYPE"`
	HashKey string `yaml:"hash_key" env:"HASH_KEY"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type" env:"TYPE"`
	MaxSentences int    `yaml:"max_sentences" env:"MAX_SENTENCES"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log          LogConfig          `yaml:"log" envPrefix:"LOG_"`
	Pipeline     pipeline.Config    `yaml:"pipeline" envPrefix:"PIPELINE_"`
	Embedder     EmbedderConfig     `yaml:"embedder" envPrefix:"EMBEDDER_"`
	Ingest       ingest.Config      `yaml:"ingest" envPrefix:"INGEST_"`
	VectorStore  VectorStoreConfig  `yaml:"vector_store" envPrefix:"STORE_"`
	Redis        RedisConfig        `yaml:"redis" envPrefix:"REDIS_"`
	ChangeDetect ChangeDetectConfig `yaml:"change_detect" envPrefix:"CHANGE_DETECT_"`
	Summarizer   SummarizerConfig   `yaml:"summarizer" envPrefix:"SUMMARIZER_"`
	Server       ServerConfig       `yaml:"server" envPrefix:"SERVER_"`
}

// Load reads a config from a specified path and applies RAG_* overrides.
// A missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfig, path, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays RAG_* environment variables on cfg.
func ApplyEnv(cfg *AppConfig) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("%w: environment: %v", domain.ErrConfig, err)
	}
	return nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/idudesrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/idudesrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, Default()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "idudesrag", "config.yaml"), nil
}

func Default() *AppConfig {
	return &AppConfig{
		Log:      LogConfig{Level: logger.InfoLevel},
		Pipeline: defaultPipeline(),
		Embedder: EmbedderConfig{
			Type:      "tfidf",
			Cache:     "lru",
			CacheSize: 4096,
			OpenAI: openai.Config{
				BaseURL:   openai.DefaultBaseURL,
				APIKeyEnv: "OPENAI_API_KEY",
				Model:     openai.DefaultModel,
			},
		},
		Ingest:       ingest.DefaultConfig(),
		VectorStore:  VectorStoreConfig{Type: "memory"},
		Redis:        RedisConfig{Addr: "localhost:6379"},
		ChangeDetect: ChangeDetectConfig{Type: "memory"},
		Summarizer:   SummarizerConfig{Type: "frequency", MaxSentences: 5},
		Server:       ServerConfig{Addr: ":8080"},
	}
}

func defaultPipeline() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.TokenEncoding = enrich.DefaultEncoding
	return cfg
}

// Validate checks every section and the backend selections.
func (c *AppConfig) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if err := c.Ingest.Validate(); err != nil {
		return err
	}
	if err := oneOf("embedder.type", c.Embedder.Type, "tfidf", "openai"); err != nil {
		return err
	}
	if err := oneOf("embedder.cache", c.Embedder.Cache, "none", "lru", "redis"); err != nil {
		return err
	}
	if err := oneOf("vector_store.type", c.VectorStore.Type, "memory", "qdrant", "postgres", "chromem"); err != nil {
		return err
	}
	if err := oneOf("change_detect.type", c.ChangeDetect.Type, "none", "memory", "redis"); err != nil {
		return err
	}
	switch {
	case c.Embedder.Cache == "lru" && c.Embedder.CacheSize <= 0:
		return fmt.Errorf("%w: embedder.cache_size must be positive for the lru cache", domain.ErrConfig)
	case (c.Embedder.Cache == "redis" || c.ChangeDetect.Type == "redis") && c.Redis.Addr == "":
		return fmt.Errorf("%w: redis.addr is required", domain.ErrConfig)
	case c.VectorStore.Type == "qdrant" && c.VectorStore.Qdrant.URL == "":
		return fmt.Errorf("%w: vector_store.qdrant.url is required", domain.ErrConfig)
	case c.VectorStore.Type == "postgres" && c.VectorStore.Postgres.DSN == "":
		return fmt.Errorf("%w: vector_store.postgres.dsn is required", domain.ErrConfig)
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %v, got %q", domain.ErrConfig, field, allowed, value)
}
