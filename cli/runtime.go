// Runtime assembly for CLI commands.
//
// Information Hiding:
// - Provider, storage, tool source and speech backend construction
// - System prompt composition
// - Agent creation per session

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/richinex/murmur/agent"
	"github.com/richinex/murmur/compaction"
	"github.com/richinex/murmur/config"
	"github.com/richinex/murmur/llm"
	"github.com/richinex/murmur/mcp"
	"github.com/richinex/murmur/speech"
	"github.com/richinex/murmur/storage"
	"github.com/richinex/murmur/tools"
)

// Runtime holds what every session shares: provider, storage, tools and speech.
type Runtime struct {
	Settings config.Settings
	Logger   *slog.Logger

	providerOnce sync.Once
	provider     llm.Provider
	providerErr  error

	store        storage.Store
	manager      *mcp.Manager
	gateway      *tools.Gateway
	definitions  []llm.ToolDefinition
	systemPrompt string
	synth        speech.Synthesizer
	transcriber  speech.Transcriber
}

// NewRuntime builds the shared runtime. Close releases it.
func NewRuntime(ctx context.Context, settings config.Settings, logger *slog.Logger) (*Runtime, error) {
	store, err := OpenStore(settings)
	if err != nil {
		return nil, err
	}
	r := &Runtime{Settings: settings, Logger: logger, store: store}

	if err := r.setupTools(ctx); err != nil {
		r.Close()
		return nil, err
	}

	prompt, err := systemPrompt(settings.Agent, r.definitions)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.systemPrompt = prompt

	if err := r.setupSpeech(ctx); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

// OpenStore opens the configured session store: sqlite when a database path
// is set, memory otherwise.
func OpenStore(settings config.Settings) (storage.Store, error) {
	if settings.Storage.DBPath == "" {
		return storage.NewInMemoryStorage(), nil
	}
	s, err := storage.OpenSqlite(settings.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

// Provider builds the LLM provider on first use, so commands that only list
// tools work without an API key.
func (r *Runtime) Provider() (llm.Provider, error) {
	r.providerOnce.Do(func() {
		r.provider, r.providerErr = r.Settings.Provider()
	})
	return r.provider, r.providerErr
}

func (r *Runtime) setupTools(ctx context.Context) error {
	var sources []tools.Source

	if r.Settings.Tools.Builtin {
		registry, err := tools.WithBuiltins()
		if err != nil {
			return err
		}
		registry.WithExecutor(tools.NewExecutor(r.Settings.ToolConfig()))
		sources = append(sources, registry)
	}

	if len(r.Settings.MCPServers) > 0 {
		manager, err := mcp.StartServers(ctx, r.Settings.MCPServers, r.Logger)
		if err != nil {
			return err
		}
		r.manager = manager
		sources = append(sources, manager)
	}

	if len(sources) == 0 {
		return nil
	}

	whitelist, err := tools.LoadWhitelist(r.Settings.Tools.WhitelistPath)
	if err != nil {
		return err
	}

	r.gateway = tools.NewGateway(tools.Combine(sources...), whitelist).
		WithTimeout(r.Settings.Tools.Timeout).
		WithLogger(r.Logger)

	definitions, err := r.gateway.PrepareTools(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare tools: %w", err)
	}
	r.definitions = definitions
	r.Logger.Info("tools ready", "count", len(definitions))
	return nil
}

func (r *Runtime) setupSpeech(ctx context.Context) error {
	switch r.Settings.TTS.Provider {
	case "openai":
		r.synth = speech.NewOpenAISynthesizer(r.Settings.TTS.OpenAI)
	case "sovits":
		sovits := speech.NewSoVITSSynthesizer(r.Settings.TTS.SoVITS)
		if err := sovits.Init(ctx); err != nil {
			return err
		}
		r.synth = sovits
	}

	if r.Settings.STT.Provider == "openai" {
		r.transcriber = speech.NewOpenAITranscriber(r.Settings.STT.OpenAI)
	}
	return nil
}

// systemPrompt composes the persona from the prompts file, or falls back to
// the default persona. Tool names are listed when tools are available.
func systemPrompt(cfg config.AgentConfig, definitions []llm.ToolDefinition) (string, error) {
	if cfg.PromptsPath == "" {
		prompt := agent.DefaultConfig().SystemPrompt
		if len(definitions) > 0 {
			prompt += "\n" + toolsSection(definitions)
		}
		return prompt, nil
	}

	prompts, err := agent.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return "", err
	}
	return prompts.Compose(cfg.SystemRole, cfg.Format)
}

func toolsSection(definitions []llm.ToolDefinition) string {
	section := "You can call these tools when they help:"
	for _, d := range definitions {
		section += fmt.Sprintf("\n- %s: %s", d.Name, d.Description)
	}
	return section
}

// NewAgent creates the agent of one session. With resume set the session
// must already exist; otherwise a saved history is picked up when present.
func (r *Runtime) NewAgent(ctx context.Context, sessionID string, resume bool) (*agent.Agent, error) {
	provider, err := r.Provider()
	if err != nil {
		return nil, err
	}

	var history []llm.ChatMessage
	if resume {
		history, err = storage.Resume(ctx, r.store, sessionID)
	} else {
		history, err = r.store.Load(ctx, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	builder := agent.NewBuilder(provider).
		Config(agent.Config{
			SystemPrompt:  r.systemPrompt,
			MaxToolRounds: r.Settings.Agent.MaxToolRounds,
			Stream:        r.Settings.Agent.Stream,
		}).
		Compactor(compaction.New(r.Settings.Compaction(), provider).WithLogger(r.Logger)).
		Storage(r.store, sessionID).
		Resume(history).
		Logger(r.Logger.With("session", sessionID))
	if r.gateway != nil {
		builder = builder.Gateway(r.gateway, r.definitions)
	}
	return builder.Build(), nil
}

// Store returns the session store.
func (r *Runtime) Store() storage.Store { return r.store }

// Synthesizer returns the configured synthesizer, or nil.
func (r *Runtime) Synthesizer() speech.Synthesizer { return r.synth }

// Transcriber returns the configured transcriber, or nil.
func (r *Runtime) Transcriber() speech.Transcriber { return r.transcriber }

// Tools returns the tool definitions offered to the model.
func (r *Runtime) Tools() []llm.ToolDefinition { return r.definitions }

// Close stops MCP servers and closes storage.
func (r *Runtime) Close() {
	if r.manager != nil {
		_ = r.manager.Close() // Intentionally ignore - cleanup
	}
	if r.store != nil {
		_ = r.store.Close() // Intentionally ignore - cleanup
	}
}
