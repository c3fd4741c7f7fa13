// Package config provides configuration loading for pensiond.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. Every threshold that gates query routing (semantic match,
// approval confidence, retry budget) lives here so deployments can tune
// them without a rebuild.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete pensiond configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Cascade   CascadeConfig   `koanf:"cascade"`
	Agent     AgentConfig     `koanf:"agent"`
	Validator ValidatorConfig `koanf:"validator"`
	Router    RouterConfig    `koanf:"router"`
	LLM       LLMConfig       `koanf:"llm"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	RefSet    RefSetConfig    `koanf:"refset"`
	Profile   ProfileConfig   `koanf:"profile"`
	Audit     AuditConfig     `koanf:"audit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// CascadeConfig holds classification cascade configuration.
type CascadeConfig struct {
	// SemanticThreshold is the minimum cosine similarity for a Tier-2
	// match to resolve the query without an LLM call.
	SemanticThreshold float64 `koanf:"semantic_threshold"`
}

// AgentConfig holds ReAct loop configuration.
type AgentConfig struct {
	// MaxIterations bounds REASON/ACT/OBSERVE cycles per query.
	MaxIterations int `koanf:"max_iterations"`
}

// ValidatorConfig holds response validator configuration.
type ValidatorConfig struct {
	// FallbackMessage is the only text delivered to a user when a query
	// escalates or synthesis fails. Pre-approved wording, never raw errors.
	FallbackMessage string `koanf:"fallback_message"`
}

// RouterConfig holds outcome-routing thresholds.
type RouterConfig struct {
	ApproveThreshold float64 `koanf:"approve_threshold"`
	FlagThreshold    float64 `koanf:"flag_threshold"`
	MaxRetries       int     `koanf:"max_retries"`
}

// LLMConfig holds completion provider configuration.
type LLMConfig struct {
	// Provider is "anthropic" or "openai".
	Provider string   `koanf:"provider"`
	Model    string   `koanf:"model"`
	APIKey   Secret   `koanf:"api_key"`
	BaseURL  string   `koanf:"base_url"`
	Timeout  Duration `koanf:"timeout"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	// Provider is "fastembed" (local ONNX) or "tei" (HTTP service).
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
	// CostPerMTokens is the USD cost charged per million embedded tokens.
	// Zero for local providers.
	CostPerMTokens float64 `koanf:"cost_per_m_tokens"`
}

// RefSetConfig holds semantic reference-set storage configuration.
type RefSetConfig struct {
	// Path is the chromem persistence directory.
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// ProfileConfig holds member profile store configuration.
type ProfileConfig struct {
	// BaseURL of the profile service. Empty selects the static in-process
	// store (local development and tests).
	BaseURL string   `koanf:"base_url"`
	Timeout Duration `koanf:"timeout"`
}

// AuditConfig holds audit sink configuration.
type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	NATSURL string `koanf:"nats_url"`
	Subject string `koanf:"subject_prefix"`
}

// NewDefaultConfig returns a configuration with reference defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8087,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Cascade: CascadeConfig{
			SemanticThreshold: 0.85,
		},
		Agent: AgentConfig{
			MaxIterations: 5,
		},
		Validator: ValidatorConfig{
			FallbackMessage: "We couldn't confidently answer your question automatically. " +
				"It has been passed to our member services team, who will be in touch.",
		},
		Router: RouterConfig{
			ApproveThreshold: 0.90,
			FlagThreshold:    0.70,
			MaxRetries:       2,
		},
		LLM: LLMConfig{
			Provider: "anthropic",
			Timeout:  Duration(60 * time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider: "fastembed",
			Model:    "BAAI/bge-small-en-v1.5",
		},
		RefSet: RefSetConfig{
			Path:       "~/.config/pensiond/refset",
			Collection: "pensiond_reference",
			VectorSize: 384,
		},
		Profile: ProfileConfig{
			Timeout: Duration(10 * time.Second),
		},
		Audit: AuditConfig{
			Enabled: false,
			NATSURL: "nats://localhost:4222",
			Subject: "pensiond.audit",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Cascade.SemanticThreshold < 0 || c.Cascade.SemanticThreshold > 1 {
		return fmt.Errorf("semantic threshold must be in [0,1], got %f", c.Cascade.SemanticThreshold)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent max iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Router.ApproveThreshold < c.Router.FlagThreshold {
		return fmt.Errorf("approve threshold %.2f must be >= flag threshold %.2f",
			c.Router.ApproveThreshold, c.Router.FlagThreshold)
	}
	if c.Router.FlagThreshold < 0 || c.Router.ApproveThreshold > 1 {
		return fmt.Errorf("router thresholds must be in [0,1]")
	}
	if c.Router.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got %d", c.Router.MaxRetries)
	}
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm provider must be anthropic or openai, got %q", c.LLM.Provider)
	}
	switch c.Embedding.Provider {
	case "fastembed", "tei", "openai":
	default:
		return fmt.Errorf("embedding provider must be fastembed, tei or openai, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "tei" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding base_url required for tei provider")
	}
	if c.Validator.FallbackMessage == "" {
		return fmt.Errorf("validator fallback message cannot be empty")
	}
	if c.Audit.Enabled && c.Audit.NATSURL == "" {
		return fmt.Errorf("audit nats_url required when audit enabled")
	}
	return nil
}
