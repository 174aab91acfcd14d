// Package config loads and validates working-memory configuration.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration.
type Config struct {
	Log           LogConfig           `mapstructure:"log"`
	Store         StoreConfig         `mapstructure:"store"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Vector        VectorConfig        `mapstructure:"vector"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Scoring       ScoringConfig       `mapstructure:"scoring"`
	ACB           ACBConfig           `mapstructure:"acb"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
	Output string `mapstructure:"output"`
}

// StoreConfig configures the SQLite event store.
type StoreConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider" validate:"oneof=none hash openai ollama"`
	Model     string `mapstructure:"model"`
	URL       string `mapstructure:"url"`
	APIKeyEnv string `mapstructure:"api_key_env"`
	Dims      int    `mapstructure:"dims" validate:"gte=0"`
	CacheSize int    `mapstructure:"cache_size" validate:"gte=0"`
	Workers   int    `mapstructure:"workers" validate:"min=1"`
}

// VectorConfig selects the embedding index backend.
type VectorConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=none chromem pgvector"`
	DSN     string `mapstructure:"dsn" validate:"required_if=Backend pgvector"`
}

// LLMConfig selects the completion provider used during consolidation.
type LLMConfig struct {
	Provider  string        `mapstructure:"provider" validate:"oneof=none openai anthropic"`
	Model     string        `mapstructure:"model"`
	URL       string        `mapstructure:"url"`
	APIKeyEnv string        `mapstructure:"api_key_env"`
	MaxTokens int           `mapstructure:"max_tokens" validate:"min=1"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Weights are the relevance-scoring coefficients.
type Weights struct {
	Rank       float64 `mapstructure:"rank" validate:"gte=0"`
	Recency    float64 `mapstructure:"recency" validate:"gte=0"`
	Importance float64 `mapstructure:"importance" validate:"gte=0"`
	Strength   float64 `mapstructure:"strength" validate:"gte=0"`
}

// ScoringConfig configures fusion and relevance scoring.
type ScoringConfig struct {
	RRFK            int                `mapstructure:"rrf_k" validate:"min=1"`
	RecencyHalfLife time.Duration      `mapstructure:"recency_half_life" validate:"gt=0"`
	Weights         Weights            `mapstructure:"weights"`
	Profiles        map[string]Weights `mapstructure:"profiles" validate:"dive"`
}

// ACBConfig configures context bundle assembly.
type ACBConfig struct {
	RecentWindow   int     `mapstructure:"recent_window" validate:"gte=0"`
	RetrievalLimit int     `mapstructure:"retrieval_limit" validate:"min=1"`
	DecisionsLimit int     `mapstructure:"decisions_limit" validate:"gte=0"`
	Boost          float64 `mapstructure:"boost" validate:"gte=0,lte=1"`
}

// ConsolidationConfig configures the consolidation engine.
type ConsolidationConfig struct {
	ShortWindow          time.Duration `mapstructure:"short_window" validate:"gt=0"`
	MediumWindow         time.Duration `mapstructure:"medium_window" validate:"gt=0"`
	LongWindow           time.Duration `mapstructure:"long_window" validate:"gt=0"`
	MaxEpisodes          int           `mapstructure:"max_episodes" validate:"min=1"`
	DecayBase            float64       `mapstructure:"decay_base" validate:"gt=0,lte=1"`
	PrincipleDecayFactor float64       `mapstructure:"principle_decay_factor" validate:"gt=0,lte=1"`
	InitialConfidence    float64       `mapstructure:"initial_confidence" validate:"gte=0,lte=1"`
	ReinforceRate        float64       `mapstructure:"reinforce_rate" validate:"gte=0,lte=1"`
	SimilarityThreshold  float64       `mapstructure:"similarity_threshold" validate:"gt=0,lte=1"`
	MinSupport           int           `mapstructure:"min_support" validate:"min=1"`
}

// MetricsConfig toggles Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Store: StoreConfig{
			Path: defaultDBPath(),
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Dims:      256,
			CacheSize: 1024,
			Workers:   4,
		},
		Vector: VectorConfig{
			Backend: "chromem",
		},
		LLM: LLMConfig{
			Provider:  "none",
			MaxTokens: 1024,
			Timeout:   30 * time.Second,
		},
		Scoring: ScoringConfig{
			RRFK:            60,
			RecencyHalfLife: 72 * time.Hour,
			Weights: Weights{
				Rank:       0.4,
				Recency:    0.2,
				Importance: 0.2,
				Strength:   0.2,
			},
			Profiles: map[string]Weights{
				"debug":    {Rank: 0.5, Recency: 0.3, Importance: 0.15, Strength: 0.05},
				"planning": {Rank: 0.3, Recency: 0.1, Importance: 0.4, Strength: 0.2},
			},
		},
		ACB: ACBConfig{
			RecentWindow:   10,
			RetrievalLimit: 20,
			DecisionsLimit: 10,
			Boost:          0.1,
		},
		Consolidation: ConsolidationConfig{
			ShortWindow:          24 * time.Hour,
			MediumWindow:         7 * 24 * time.Hour,
			LongWindow:           30 * 24 * time.Hour,
			MaxEpisodes:          200,
			DecayBase:            0.95,
			PrincipleDecayFactor: 0.98,
			InitialConfidence:    0.3,
			ReinforceRate:        0.25,
			SimilarityThreshold:  0.6,
			MinSupport:           1,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// WeightsFor returns the weights profile for an intent, falling back to the
// default weights.
func (c ScoringConfig) WeightsFor(intent string) Weights {
	if w, ok := c.Profiles[intent]; ok {
		return w
	}
	return c.Weights
}

// ProfileFor names the weights profile WeightsFor selects for an intent.
func (c ScoringConfig) ProfileFor(intent string) string {
	if _, ok := c.Profiles[intent]; ok {
		return intent
	}
	return "default"
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "working-memory.db"
	}
	return filepath.Join(home, ".working-memory", "memory.db")
}
