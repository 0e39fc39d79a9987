// Package config loads the service configuration from defaults, an
// optional YAML file and environment variables, in that order of
// precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Dial       DialConfig       `mapstructure:"dial"`
	Model      ModelConfig      `mapstructure:"model"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Agent      AgentConfig      `mapstructure:"agent"`
	RAG        RAGConfig        `mapstructure:"rag"`
	Tools      ToolsConfig      `mapstructure:"tools"`
}

// ServerConfig configures the HTTP surface of the service.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// DeploymentName is the deployment route this service answers on.
	DeploymentName  string        `mapstructure:"deployment_name"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DialConfig locates the upstream DIAL core.
type DialConfig struct {
	URL        string `mapstructure:"url"`
	APIVersion string `mapstructure:"api_version"`
}

// ModelConfig selects the reasoning model.
type ModelConfig struct {
	Deployment string `mapstructure:"deployment"`
	// Temperature below zero leaves the deployment default in place.
	Temperature float64 `mapstructure:"temperature"`
}

// EmbeddingsConfig selects the embedding model used for retrieval.
type EmbeddingsConfig struct {
	Deployment string `mapstructure:"deployment"`
}

// AgentConfig tunes the conversation loop.
type AgentConfig struct {
	MaxRounds        int           `mapstructure:"max_rounds"`
	ToolConcurrency  int           `mapstructure:"tool_concurrency"`
	ToolTimeout      time.Duration `mapstructure:"tool_timeout"`
	SystemPromptPath string        `mapstructure:"system_prompt_path"`
	EnableTracing    bool          `mapstructure:"enable_tracing"`
}

// RAGConfig tunes document retrieval.
type RAGConfig struct {
	ChunkSize     int           `mapstructure:"chunk_size"`
	ChunkOverlap  int           `mapstructure:"chunk_overlap"`
	TopK          int           `mapstructure:"top_k"`
	CacheCapacity int           `mapstructure:"cache_capacity"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// ToolsConfig switches individual tools on and off and locates their
// backends.
type ToolsConfig struct {
	FileExtraction      bool     `mapstructure:"file_extraction"`
	RAG                 bool     `mapstructure:"rag"`
	ImageGeneration     bool     `mapstructure:"image_generation"`
	ImageDeployment     string   `mapstructure:"image_deployment"`
	CodeInterpreter     bool     `mapstructure:"code_interpreter"`
	CodeInterpreterURL  string   `mapstructure:"code_interpreter_url"`
	CodeInterpreterTool string   `mapstructure:"code_interpreter_tool"`
	MCPServers          []string `mapstructure:"mcp_servers"`
}

// AppConfig is the loaded application configuration.
var AppConfig Config

// LoadConfig reads the configuration. With an explicit path the file
// must exist; otherwise config.yaml is searched in the working directory
// and ./config, and a missing file leaves defaults and environment in
// charge.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := AppConfig.Validate(); err != nil {
		return nil, err
	}
	return &AppConfig, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5030)
	v.SetDefault("server.deployment_name", "general-purpose-agent")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("dial.url", "http://localhost:8080")
	v.SetDefault("dial.api_version", "2025-01-01-preview")

	v.SetDefault("model.deployment", "gpt-4o")
	v.SetDefault("model.temperature", -1.0)

	v.SetDefault("embeddings.deployment", "text-embedding-3-small")

	v.SetDefault("agent.max_rounds", 8)
	v.SetDefault("agent.tool_concurrency", 4)
	v.SetDefault("agent.tool_timeout", "90s")
	v.SetDefault("agent.system_prompt_path", "")
	v.SetDefault("agent.enable_tracing", true)

	v.SetDefault("rag.chunk_size", 500)
	v.SetDefault("rag.chunk_overlap", 50)
	v.SetDefault("rag.top_k", 3)
	v.SetDefault("rag.cache_capacity", 64)
	v.SetDefault("rag.cache_ttl", "15m")

	v.SetDefault("tools.file_extraction", true)
	v.SetDefault("tools.rag", true)
	v.SetDefault("tools.image_generation", true)
	v.SetDefault("tools.image_deployment", "dall-e-3")
	v.SetDefault("tools.code_interpreter", true)
	v.SetDefault("tools.code_interpreter_url", "http://localhost:8050/mcp")
	v.SetDefault("tools.code_interpreter_tool", "execute_code")
	v.SetDefault("tools.mcp_servers", []string{"http://localhost:8051/mcp"})
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.DeploymentName == "" {
		return fmt.Errorf("config: server.deployment_name is required")
	}
	if c.Dial.URL == "" {
		return fmt.Errorf("config: dial.url is required")
	}
	if c.Model.Deployment == "" {
		return fmt.Errorf("config: model.deployment is required")
	}
	if c.Agent.MaxRounds < 1 {
		return fmt.Errorf("config: agent.max_rounds must be positive, got %d", c.Agent.MaxRounds)
	}
	if c.Agent.ToolConcurrency < 1 {
		return fmt.Errorf("config: agent.tool_concurrency must be positive, got %d", c.Agent.ToolConcurrency)
	}
	if c.RAG.ChunkSize < 1 {
		return fmt.Errorf("config: rag.chunk_size must be positive")
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("config: rag.chunk_overlap %d must be non-negative and below rag.chunk_size %d",
			c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.Tools.RAG && c.Embeddings.Deployment == "" {
		return fmt.Errorf("config: embeddings.deployment is required when tools.rag is enabled")
	}
	if c.Tools.ImageGeneration && c.Tools.ImageDeployment == "" {
		return fmt.Errorf("config: tools.image_deployment is required when tools.image_generation is enabled")
	}
	if c.Tools.CodeInterpreter && c.Tools.CodeInterpreterURL == "" {
		return fmt.Errorf("config: tools.code_interpreter_url is required when tools.code_interpreter is enabled")
	}
	return nil
}

// Address returns the host:port the server listens on.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
