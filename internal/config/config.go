package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Chat      ChatConfig      `toml:"chat"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Database  DatabaseConfig  `toml:"database"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Observer  ObserverConfig  `toml:"observer"`
}

// ChatConfig selects the LLM used for summaries and graph extraction.
type ChatConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
}

type EmbeddingConfig struct {
	BaseURL     string `toml:"base_url"`
	Model       string `toml:"model"`
	APIKey      string `toml:"api_key"`
	Dimensions  int    `toml:"dimensions"`
	BatchSize   int    `toml:"batch_size"`
	Concurrency int    `toml:"concurrency"`
}

// DatabaseConfig selects the backend: driver "sqlite" uses Path, driver
// "postgres" uses URL.
type DatabaseConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	URL    string `toml:"url"`
}

type ChunkingConfig struct {
	TargetTokens int `toml:"target_tokens"`
	MinTokens    int `toml:"min_tokens"`
	MaxTokens    int `toml:"max_tokens"`
}

type RetrievalConfig struct {
	TopK           int `toml:"top_k"`
	NeighborFanOut int `toml:"neighbor_fan_out"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Chat: ChatConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Embedding: EmbeddingConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "text-embedding-3-small",
			Dimensions:  1536,
			BatchSize:   16,
			Concurrency: 2,
		},
		Database:  DatabaseConfig{Driver: "sqlite", Path: "lore.db"},
		Chunking:  ChunkingConfig{TargetTokens: 320, MinTokens: 64, MaxTokens: 512},
		Retrieval: RetrievalConfig{TopK: 10, NeighborFanOut: 3},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "lore.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("LORE_CHAT_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("LORE_CHAT_BASE_URL"); v != "" {
		cfg.Chat.BaseURL = v
	}
	if v := os.Getenv("LORE_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("LORE_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("LORE_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("LORE_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("LORE_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("LORE_DATABASE_URL"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.URL = v
	}
	if v := os.Getenv("LORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if os.Getenv("LORE_OBSERVER_ENABLED") == "true" || os.Getenv("LORE_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.Chat.APIKey
	}

	return cfg
}
