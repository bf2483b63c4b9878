// Agent builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Default value application hidden

package agent

import (
	"log/slog"

	"github.com/richinex/murmur/compaction"
	"github.com/richinex/murmur/llm"
	"github.com/richinex/murmur/storage"
	"github.com/richinex/murmur/tools"
)

// Builder provides fluent configuration for creating agents.
// Usage: agent.NewBuilder(provider) - no stutter.
type Builder struct {
	provider  llm.Provider
	config    Config
	gateway   *tools.Gateway
	tools     []llm.ToolDefinition
	compactor *compaction.Compactor
	store     storage.ConversationStorage
	sessionID string
	history   []llm.ChatMessage
	logger    *slog.Logger
}

// NewBuilder creates a new agent builder for the given provider, starting
// from DefaultConfig.
func NewBuilder(provider llm.Provider) *Builder {
	return &Builder{
		provider: provider,
		config:   DefaultConfig(),
	}
}

// Config replaces the whole configuration.
func (b *Builder) Config(config Config) *Builder {
	b.config = config
	return b
}

// SystemPrompt sets the agent's system prompt.
func (b *Builder) SystemPrompt(prompt string) *Builder {
	b.config.SystemPrompt = prompt
	return b
}

// MaxToolRounds caps the tool rounds per turn; zero or negative means unlimited.
func (b *Builder) MaxToolRounds(rounds int) *Builder {
	b.config.MaxToolRounds = rounds
	return b
}

// Stream toggles streaming model calls.
func (b *Builder) Stream(enabled bool) *Builder {
	b.config.Stream = enabled
	return b
}

// Gateway sets the tool gateway and the prepared tool definitions.
func (b *Builder) Gateway(gateway *tools.Gateway, definitions []llm.ToolDefinition) *Builder {
	b.gateway = gateway
	b.tools = definitions
	return b
}

// Compactor enables context compaction.
func (b *Builder) Compactor(compactor *compaction.Compactor) *Builder {
	b.compactor = compactor
	return b
}

// Storage enables persistence under sessionID.
func (b *Builder) Storage(store storage.ConversationStorage, sessionID string) *Builder {
	b.store = store
	b.sessionID = sessionID
	return b
}

// Resume starts from a previously saved history instead of the system prompt.
// An empty history keeps the fresh start.
func (b *Builder) Resume(history []llm.ChatMessage) *Builder {
	b.history = history
	return b
}

// Logger sets the logger.
func (b *Builder) Logger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build creates the agent.
func (b *Builder) Build() *Agent {
	a := New(b.config, b.provider)
	if b.gateway != nil {
		a.WithGateway(b.gateway, b.tools)
	}
	if b.compactor != nil {
		a.WithCompactor(b.compactor)
	}
	if b.store != nil {
		a.WithStorage(b.store, b.sessionID)
	}
	if len(b.history) > 0 {
		a.WithHistory(b.history)
	}
	if b.logger != nil {
		a.WithLogger(b.logger)
	}
	return a
}
