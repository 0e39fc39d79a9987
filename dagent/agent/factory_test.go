package agent

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/dialagent/dagent/config"
)

// testFactoryConfig enables only the tools with no remote backend so
// assembly stays network-free.
func testFactoryConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           5030,
			DeploymentName: "general-purpose-agent",
		},
		Dial:       config.DialConfig{URL: "http://dial.local", APIVersion: "2025-01-01-preview"},
		Model:      config.ModelConfig{Deployment: "gpt-4o", Temperature: -1},
		Embeddings: config.EmbeddingsConfig{Deployment: "text-embedding-3-small"},
		Agent: config.AgentConfig{
			MaxRounds:       4,
			ToolConcurrency: 2,
			ToolTimeout:     time.Second,
		},
		RAG: config.RAGConfig{
			ChunkSize:     100,
			ChunkOverlap:  10,
			TopK:          2,
			CacheCapacity: 4,
			CacheTTL:      time.Minute,
		},
		Tools: config.ToolsConfig{
			FileExtraction:  true,
			RAG:             true,
			ImageGeneration: true,
			ImageDeployment: "dall-e-3",
		},
	}
}

func TestFactoryCreateTools(t *testing.T) {
	factory := NewFactory(testFactoryConfig(), zerolog.Nop())
	t.Cleanup(func() { _ = factory.Close() })

	list := factory.CreateTools(context.Background())
	names := make([]string, 0, len(list))
	for _, tool := range list {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{
		"file_content_extraction_tool",
		"rag_tool",
		"image_generation_tool",
	}, names)
}

func TestFactoryCreateToolsRespectsSwitches(t *testing.T) {
	cfg := testFactoryConfig()
	cfg.Tools.FileExtraction = false
	cfg.Tools.RAG = false
	cfg.Tools.ImageGeneration = false

	factory := NewFactory(cfg, zerolog.Nop())
	t.Cleanup(func() { _ = factory.Close() })

	assert.Empty(t, factory.CreateTools(context.Background()))
}

func TestFactoryCreateTracer(t *testing.T) {
	cfg := testFactoryConfig()

	cfg.Agent.EnableTracing = false
	factory := NewFactory(cfg, zerolog.Nop())
	assert.IsType(t, noOpTracer{}, factory.CreateTracer())

	cfg.Agent.EnableTracing = true
	factory = NewFactory(cfg, zerolog.Nop())
	assert.NotEqual(t, noOpTracer{}, factory.CreateTracer())
}

func TestFactoryCreateOrchestrator(t *testing.T) {
	factory := NewFactory(testFactoryConfig(), zerolog.Nop())
	t.Cleanup(func() { _ = factory.Close() })

	orch, err := factory.CreateOrchestrator(context.Background())
	require.NoError(t, err)
	require.NotNil(t, orch)
	assert.Equal(t, 3, orch.coordinator.Registry().Len())
}

func TestFactoryCloseIsIdempotent(t *testing.T) {
	factory := NewFactory(testFactoryConfig(), zerolog.Nop())

	_, err := factory.CreateOrchestrator(context.Background())
	require.NoError(t, err)

	assert.NoError(t, factory.Close())
	assert.NoError(t, factory.Close())
}
