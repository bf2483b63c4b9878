// Turn orchestration: one user input through to one final answer.
//
// Every model interaction goes through Turn. A turn is a small state
// machine: the model either answers (final) or asks for tools, in which
// case the calls are dispatched through the gateway and the model is asked
// again.
//
// Information Hiding:
// - Tool loop internals hidden
// - LLM communication (streaming or not) hidden
// - History rollback on failure hidden
// - Session persistence and summary logging hidden

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/richinex/murmur/compaction"
	"github.com/richinex/murmur/conversation"
	"github.com/richinex/murmur/llm"
	"github.com/richinex/murmur/model"
	"github.com/richinex/murmur/storage"
	"github.com/richinex/murmur/tools"
)

// ErrNoGateway is returned when the model requests tools but the agent has none.
var ErrNoGateway = errors.New("model requested tools but no tool gateway is configured")

// Agent drives turns over a single conversation. It is not safe for
// concurrent use; one goroutine owns it.
type Agent struct {
	config    Config
	llmClient *llm.Client
	gateway   *tools.Gateway
	tools     []llm.ToolDefinition
	compactor *compaction.Compactor
	state     *conversation.State
	storage   storage.ConversationStorage
	sessionID string
	logger    *slog.Logger
}

// New creates an agent. The conversation starts with the configured system
// prompt, if any.
func New(config Config, provider llm.Provider) *Agent {
	state := conversation.NewState()
	if config.SystemPrompt != "" {
		state.History.Append(llm.SystemMessage(config.SystemPrompt))
	}

	return &Agent{
		config:    config,
		llmClient: llm.NewClient(provider),
		state:     state,
		logger:    slog.New(slog.DiscardHandler),
	}
}

// WithGateway sets the tool gateway and the tool definitions offered to the
// model, usually the result of gateway.PrepareTools.
func (a *Agent) WithGateway(gateway *tools.Gateway, definitions []llm.ToolDefinition) *Agent {
	a.gateway = gateway
	a.tools = definitions
	return a
}

// WithCompactor enables context compaction after each turn.
func (a *Agent) WithCompactor(compactor *compaction.Compactor) *Agent {
	a.compactor = compactor
	return a
}

// WithStorage enables persistence. The history is saved after every turn
// and compaction. When the store also implements storage.MemoryStorage,
// every summary is logged there.
func (a *Agent) WithStorage(store storage.ConversationStorage, sessionID string) *Agent {
	a.storage = store
	a.sessionID = sessionID
	return a
}

// WithHistory replaces the conversation, as when resuming a session.
func (a *Agent) WithHistory(messages []llm.ChatMessage) *Agent {
	a.state.History.Replace(messages)
	return a
}

// WithLogger sets the logger.
func (a *Agent) WithLogger(logger *slog.Logger) *Agent {
	a.logger = logger
	return a
}

// SessionID returns the persistence session, empty when storage is off.
func (a *Agent) SessionID() string {
	return a.sessionID
}

// State exposes the conversation state for reporting.
func (a *Agent) State() *conversation.State {
	return a.state
}

// History returns a copy of the conversation.
func (a *Agent) History() []llm.ChatMessage {
	return a.state.History.Messages()
}

// Tools returns the tool definitions offered to the model.
func (a *Agent) Tools() []llm.ToolDefinition {
	return a.tools
}

// Chat runs one turn and then compacts the conversation.
func (a *Agent) Chat(ctx context.Context, input string, onDelta func(string)) (TurnResult, error) {
	result, err := a.Turn(ctx, input, onDelta)
	if err != nil {
		return result, err
	}
	if _, err := a.Compact(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// Turn appends the user input and runs the model/tool loop until the model
// answers or the tool round cap is hit. onDelta, if non-nil, receives the
// content of each model step as it arrives.
//
// On error the history is rolled back to where it was before the turn, so
// a failed turn never leaves a dangling tool call behind.
func (a *Agent) Turn(ctx context.Context, input string, onDelta func(string)) (TurnResult, error) {
	startTime := time.Now()
	mark := a.state.History.Len()
	a.state.History.Append(llm.UserMessage(input))

	var toolCalls []model.ToolCall
	modelCalls := 0
	rounds := 0

	fail := func(err error) (TurnResult, error) {
		a.state.History.Truncate(mark)
		a.logger.Warn("turn failed", "error", err, "rounds", rounds)
		return TurnResult{}, err
	}

	for {
		if ctx.Err() != nil {
			return fail(fmt.Errorf("turn cancelled: %w", ctx.Err()))
		}

		response, err := a.step(ctx, onDelta)
		if err != nil {
			return fail(fmt.Errorf("model call failed: %w", err))
		}
		modelCalls++
		a.state.RecordUsage(response.Usage)

		result := TurnResult{
			Content:    response.Content,
			Rounds:     rounds,
			ToolCalls:  toolCalls,
			ModelCalls: modelCalls,
		}

		if !response.WantsTools() {
			a.state.History.Append(llm.AssistantMessage(response.Content))
			result.Outcome = TurnFinal
			return a.finish(ctx, result, startTime), nil
		}

		if !a.config.unlimitedRounds() && rounds >= a.config.MaxToolRounds {
			a.logger.Warn("tool round cap reached", "max_tool_rounds", a.config.MaxToolRounds)
			result.Outcome = TurnToolLoopExceeded
			return a.finish(ctx, result, startTime), nil
		}

		if a.gateway == nil {
			return fail(ErrNoGateway)
		}
		// Policy first: a rejected batch must not reach the history.
		if err := a.gateway.Check(response.ToolCalls); err != nil {
			return fail(err)
		}

		a.state.History.Append(llm.ToolCallsMessage(response.Content, response.ToolCalls))
		for _, call := range response.ToolCalls {
			invocation, err := a.gateway.Execute(ctx, call)
			if err != nil {
				return fail(err)
			}
			a.state.History.Append(invocation.Message)
			toolCalls = append(toolCalls, invocation.Stats)
		}
		rounds++
		a.logger.Debug("tool round complete", "round", rounds, "calls", len(response.ToolCalls))
	}
}

// step performs one model call.
func (a *Agent) step(ctx context.Context, onDelta func(string)) (llm.LLMResponse, error) {
	messages := a.state.History.Messages()

	if a.config.Stream {
		return a.llmClient.Stream(ctx, messages, a.tools, onDelta)
	}

	response, err := a.llmClient.Complete(ctx, messages, a.tools)
	if err != nil {
		return llm.LLMResponse{}, err
	}
	if onDelta != nil && response.Content != "" {
		onDelta(response.Content)
	}
	return response, nil
}

func (a *Agent) finish(ctx context.Context, result TurnResult, startTime time.Time) TurnResult {
	result.ExecutionTimeMs = uint64(time.Since(startTime).Milliseconds())
	result.Usage = a.state.Usage

	a.logger.Info("turn complete",
		"outcome", result.Outcome.String(),
		"rounds", result.Rounds,
		"model_calls", result.ModelCalls,
		"prompt_tokens", a.state.LatestPromptTokens,
		"duration_ms", result.ExecutionTimeMs,
	)

	a.persist(ctx)
	return result
}

// Compact runs the compactor over the current history and installs the
// replacement when it changed anything. Summarizer failures leave the
// history untouched.
func (a *Agent) Compact(ctx context.Context) (compaction.Result, error) {
	if a.compactor == nil {
		return compaction.Result{Messages: a.state.History.Messages()}, nil
	}

	result, err := a.compactor.ManageContext(ctx, a.state.History.Messages(), a.state.LatestPromptTokens)
	if err != nil {
		return compaction.Result{}, fmt.Errorf("compaction failed: %w", err)
	}
	if !result.Compacted {
		return result, nil
	}

	a.state.History.Replace(result.Messages)
	a.logSummaries(ctx, result)
	a.persist(ctx)
	return result, nil
}

// persist saves the history. Best-effort: a storage failure is logged and
// the conversation goes on.
func (a *Agent) persist(ctx context.Context) {
	if a.storage == nil || a.sessionID == "" {
		return
	}
	if err := a.storage.Save(ctx, a.sessionID, a.state.History.Messages()); err != nil {
		a.logger.Error("failed to save session", "session", a.sessionID, "error", err)
	}
}

func (a *Agent) logSummaries(ctx context.Context, result compaction.Result) {
	memories, ok := a.storage.(storage.MemoryStorage)
	if !ok || a.sessionID == "" {
		return
	}

	metadata := fmt.Sprintf(`{"messages":%d,"prompt_tokens":%d}`, len(result.Messages), a.state.LatestPromptTokens)

	entries := []storage.MemoryEntry{
		storage.NewMemoryEntry(a.sessionID, storage.MemorySummary, result.Summary).
			WithMetadata(metadata),
	}
	if result.Merged {
		merged := storage.NewMemoryEntry(a.sessionID, storage.MemoryMergedSummary, result.MergedSummary).
			WithMetadata(metadata)
		// Keep the merge ordered after the summary it absorbed.
		merged.CreatedAt = entries[0].CreatedAt + 1
		entries = append(entries, merged)
	}

	for _, entry := range entries {
		if err := memories.StoreMemory(ctx, entry); err != nil {
			a.logger.Error("failed to log summary", "session", a.sessionID, "error", err)
		}
	}
}
