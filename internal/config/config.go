// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// QdrantConfig contains connection details for the Qdrant vector store.
type QdrantConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	SnippetCollection  string `yaml:"snippet_collection"`
	QuestionCollection string `yaml:"question_collection"`
}

// EmbeddingConfig configures the OpenAI embedding client.
type EmbeddingConfig struct {
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// ChunkingConfig configures how snippet text is split into windows.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// TranslationConfig configures cross-language snippet indexing.
type TranslationConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Languages []string `yaml:"languages"`
}

// RetrievalConfig configures the hybrid retrieval engine.
type RetrievalConfig struct {
	// QuestionWeight is the example-question share of the combined
	// confidence for snippets found by both search paths, in [0,1].
	QuestionWeight float64 `yaml:"question_weight"`
	// ExampleQuestions enables the second search path over generated
	// example questions.
	ExampleQuestions bool `yaml:"example_questions"`
}

// LLMConfig configures the chat-completion provider.
type LLMConfig struct {
	ChatModel string `yaml:"chat_model"`
}

// Config is the root application configuration.
type Config struct {
	Qdrant      QdrantConfig      `yaml:"qdrant"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Translation TranslationConfig `yaml:"translation"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	LLM         LLMConfig         `yaml:"llm"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Qdrant: QdrantConfig{
			Host:               "localhost",
			Port:               6334,
			SnippetCollection:  "snippets",
			QuestionCollection: "example_questions",
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			BatchSize: 500,
		},
		Chunking: ChunkingConfig{
			Size:    1500,
			Overlap: 200,
		},
		Translation: TranslationConfig{
			Enabled:   true,
			Languages: []string{"de", "en", "fr", "it"},
		},
		Retrieval: RetrievalConfig{
			QuestionWeight:   0.3,
			ExampleQuestions: true,
		},
		LLM: LLMConfig{
			ChatModel: "gpt-4o-mini",
		},
	}
}

// Load reads configuration from path (optional), applies environment
// overrides, and validates the result. An empty path uses defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the loaded values.
func (c *Config) applyEnv() {
	c.Qdrant.Host = getEnv("QDRANT_HOST", c.Qdrant.Host)
	c.Qdrant.Port = getEnvInt("QDRANT_PORT", c.Qdrant.Port)
	c.Embedding.Model = getEnv("EMBEDDING_MODEL", c.Embedding.Model)
	c.LLM.ChatModel = getEnv("CHAT_MODEL", c.LLM.ChatModel)
	if v := os.Getenv("ENABLE_TRANSLATION_INDEXING"); v != "" {
		c.Translation.Enabled = v == "true" || v == "1"
	}
}

// Validate rejects configurations the pipeline cannot run with.
// In particular chunk overlap must be smaller than the chunk size, since
// the chunker's behavior is undefined otherwise.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return errors.New("chunking.size must be positive")
	}
	if c.Chunking.Overlap < 0 {
		return errors.New("chunking.overlap must not be negative")
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.size (%d)",
			c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Retrieval.QuestionWeight < 0 || c.Retrieval.QuestionWeight > 1 {
		return fmt.Errorf("retrieval.question_weight (%g) must be in [0,1]", c.Retrieval.QuestionWeight)
	}
	if c.Embedding.Dimension <= 0 {
		return errors.New("embedding.dimension must be positive")
	}
	if c.Qdrant.SnippetCollection == "" || c.Qdrant.QuestionCollection == "" {
		return errors.New("qdrant collection names must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
