package agent

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/dialagent/dagent/agent/adapters"
	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/agent/tools"
	"github.com/ZanzyTHEbar/dialagent/dagent/config"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
	"github.com/ZanzyTHEbar/dialagent/dagent/mcp"
	"github.com/ZanzyTHEbar/dialagent/dagent/rag"
)

// noOpTracer keeps the tracing seams in place when tracing is disabled.
type noOpTracer struct{}

func (noOpTracer) StartSpan(ctx context.Context, _ string, _ map[string]any) (context.Context, func(error)) {
	return ctx, func(error) {}
}

func (noOpTracer) Event(context.Context, string, map[string]any) {}

var _ agentports.Tracer = noOpTracer{}

// Factory assembles the agent from configuration. Optional tool backends
// that cannot be reached at startup are skipped with a warning instead of
// failing the whole service; the model simply does not see those tools.
type Factory struct {
	cfg    *config.Config
	logger zerolog.Logger
	client *dial.Client

	closers []func() error
}

// NewFactory creates a factory over the loaded configuration.
func NewFactory(cfg *config.Config, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
		client: dial.NewClient(cfg.Dial.URL,
			dial.WithAPIVersion(cfg.Dial.APIVersion),
			dial.WithLogger(logger),
		),
	}
}

// DialClient returns the shared DIAL client.
func (f *Factory) DialClient() *dial.Client {
	return f.client
}

// CreateTracer returns the span tracer, or a no-op when tracing is off.
func (f *Factory) CreateTracer() agentports.Tracer {
	if f.cfg.Agent.EnableTracing {
		return adapters.NewZerologTracer(f.logger)
	}
	return noOpTracer{}
}

// CreateProvider builds the model provider for the configured deployment.
func (f *Factory) CreateProvider() agentports.Provider {
	var temperature *float64
	if f.cfg.Model.Temperature >= 0 {
		t := f.cfg.Model.Temperature
		temperature = &t
	}
	return adapters.NewDialProvider(f.client, f.cfg.Model.Deployment, temperature)
}

// CreatePromptSource builds the system prompt source and registers its
// watcher for shutdown.
func (f *Factory) CreatePromptSource() (*PromptSource, error) {
	source, err := NewPromptSource(f.cfg.Agent.SystemPromptPath, f.logger)
	if err != nil {
		return nil, err
	}
	f.closers = append(f.closers, source.Close)
	return source, nil
}

// CreateTools instantiates every enabled tool. Remote backends are probed
// here; an unreachable one is logged and left out.
func (f *Factory) CreateTools(ctx context.Context) []agentports.Tool {
	cfg := f.cfg
	var list []agentports.Tool

	if cfg.Tools.FileExtraction {
		list = append(list, tools.NewFileContentExtractionTool(f.client))
	}
	if cfg.Tools.RAG {
		documents := rag.NewDocumentCache(adapters.NewLRUCache(cfg.RAG.CacheCapacity), cfg.RAG.CacheTTL)
		list = append(list, tools.NewRagTool(
			f.client,
			cfg.Model.Deployment,
			tools.NewDialEmbedder(f.client, cfg.Embeddings.Deployment),
			rag.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
			documents,
			cfg.RAG.TopK,
		))
	}
	if cfg.Tools.ImageGeneration {
		list = append(list, tools.NewImageGenerationTool(f.client, cfg.Tools.ImageDeployment))
	}
	if cfg.Tools.CodeInterpreter {
		client := mcp.NewClient(cfg.Tools.CodeInterpreterURL)
		tool, err := tools.NewPythonCodeInterpreterTool(ctx, f.client, client, cfg.Tools.CodeInterpreterTool)
		if err != nil {
			f.logger.Warn().Err(err).Str("endpoint", cfg.Tools.CodeInterpreterURL).
				Msg("code interpreter unavailable, skipping")
			_ = client.Close()
		} else {
			f.closers = append(f.closers, client.Close)
			list = append(list, tool)
		}
	}
	for _, endpoint := range cfg.Tools.MCPServers {
		client := mcp.NewClient(endpoint)
		wrapped, err := tools.NewMCPTools(ctx, client)
		if err != nil {
			f.logger.Warn().Err(err).Str("endpoint", endpoint).
				Msg("mcp server unavailable, skipping")
			_ = client.Close()
			continue
		}
		f.closers = append(f.closers, client.Close)
		list = append(list, wrapped...)
	}

	names := make([]string, 0, len(list))
	for _, tool := range list {
		names = append(names, tool.Name())
	}
	f.logger.Info().Strs("tools", names).Msg("tool set assembled")
	return list
}

// CreateOrchestrator assembles the full conversation loop.
func (f *Factory) CreateOrchestrator(ctx context.Context) (*Orchestrator, error) {
	tracer := f.CreateTracer()
	registry := NewRegistry(f.CreateTools(ctx)...)
	coordinator := NewCoordinator(registry, tracer, f.cfg.Agent.ToolConcurrency, f.cfg.Agent.ToolTimeout)
	prompt, err := f.CreatePromptSource()
	if err != nil {
		return nil, err
	}
	return NewOrchestrator(f.CreateProvider(), coordinator, prompt, tracer, f.cfg.Agent.MaxRounds, f.logger), nil
}

// Close releases everything the factory wired up, in reverse order.
func (f *Factory) Close() error {
	var errs []error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	f.closers = nil
	return errors.Join(errs...)
}
