// Package config loads the engine configuration from a yaml file with
// sensible defaults when the file is absent. Secrets (API keys) stay in the
// environment, never in the file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// QdrantConfig holds vector store connection details.
type QdrantConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Dimension uint64 `yaml:"dimension"`
}

// EmbeddingConfig configures the embedding service client.
type EmbeddingConfig struct {
	BatchSize   int `yaml:"batch_size"`
	TimeoutSecs int `yaml:"timeout_secs"`
}

// RerankConfig configures the cross-encoder endpoint.
type RerankConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// ChunkerConfig holds the sliding-window parameters.
type ChunkerConfig struct {
	MaxTokens         int `yaml:"max_tokens"`
	OverlapTokens     int `yaml:"overlap_tokens"`
	BoundaryTolerance int `yaml:"boundary_tolerance"`
}

// FunnelConfig holds the retrieval funnel parameters.
type FunnelConfig struct {
	TopK                int `yaml:"top_k"`
	CandidateMultiplier int `yaml:"candidate_multiplier"`
	MinTopicMatches     int `yaml:"min_topic_matches"`
}

// Config is the root configuration.
type Config struct {
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Funnel    FunnelConfig    `yaml:"funnel"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Qdrant:    QdrantConfig{Host: "localhost", Port: 6334, Dimension: 1536},
		Embedding: EmbeddingConfig{BatchSize: 500, TimeoutSecs: 60},
		Rerank:    RerankConfig{BaseURL: "http://localhost:8090", TimeoutSecs: 30},
		Chunker:   ChunkerConfig{MaxTokens: 200, OverlapTokens: 50, BoundaryTolerance: 30},
		Funnel:    FunnelConfig{TopK: 5, CandidateMultiplier: 5, MinTopicMatches: 3},
	}
}

// Load reads the config at path, merging over defaults. A missing file
// returns defaults; a malformed file is an error. Environment variables
// QDRANT_HOST, QDRANT_PORT and RERANK_URL override their file counterparts.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("QDRANT_HOST"); v != "" {
		cfg.Qdrant.Host = v
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Qdrant.Port = port
		}
	}
	if v := os.Getenv("RERANK_URL"); v != "" {
		cfg.Rerank.BaseURL = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Chunker.OverlapTokens >= c.Chunker.MaxTokens {
		return fmt.Errorf("chunker overlap (%d) must be smaller than max tokens (%d)",
			c.Chunker.OverlapTokens, c.Chunker.MaxTokens)
	}
	if c.Funnel.TopK <= 0 {
		return fmt.Errorf("funnel top_k must be positive, got %d", c.Funnel.TopK)
	}
	return nil
}
