// Package compaction keeps a conversation inside the model's context budget
// by folding older rounds into system-level summaries.
//
// Information Hiding:
// - Trigger threshold arithmetic
// - Round counting and the recent/old split
// - Summary prompts and the second pass that merges accumulated summaries
package compaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/richinex/murmur/llm"
)

// Defaults applied by DefaultConfig.
const (
	DefaultMaxContextTokens   = 64000
	DefaultSummarizeThreshold = 0.5
	DefaultKeepChatRounds     = 5
	DefaultSystemPromptMaxNum = 10
)

// Summarizer turns a message list ending in an instruction into prose.
// llm.Provider satisfies it.
type Summarizer interface {
	Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error)
}

// Config controls when and how much history is compacted.
type Config struct {
	// MaxContextTokens is the model's usable prompt budget.
	MaxContextTokens int
	// SummarizeThreshold is the fraction of MaxContextTokens that triggers compaction.
	SummarizeThreshold float64
	// KeepChatRounds is how many trailing user-initiated rounds stay verbatim.
	KeepChatRounds int
	// SystemPromptMaxNum bounds system-level entries before they are merged.
	SystemPromptMaxNum int
}

// DefaultConfig returns the standard compaction settings.
func DefaultConfig() Config {
	return Config{
		MaxContextTokens:   DefaultMaxContextTokens,
		SummarizeThreshold: DefaultSummarizeThreshold,
		KeepChatRounds:     DefaultKeepChatRounds,
		SystemPromptMaxNum: DefaultSystemPromptMaxNum,
	}
}

// Result is the outcome of ManageContext.
type Result struct {
	// Messages is the history to continue with. It is the input slice
	// itself when nothing was compacted.
	Messages []llm.ChatMessage
	// Compacted reports whether old rounds were summarized.
	Compacted bool
	// Merged reports whether accumulated system summaries were folded into one.
	Merged bool
	// Summary is the new round summary; MergedSummary the second-pass text.
	Summary       string
	MergedSummary string
}

// Compactor implements rolling summarization.
type Compactor struct {
	config     Config
	summarizer Summarizer
	logger     *slog.Logger
}

// New creates a compactor. Zero config fields fall back to defaults.
func New(config Config, summarizer Summarizer) *Compactor {
	defaults := DefaultConfig()
	if config.MaxContextTokens <= 0 {
		config.MaxContextTokens = defaults.MaxContextTokens
	}
	if config.SummarizeThreshold <= 0 {
		config.SummarizeThreshold = defaults.SummarizeThreshold
	}
	if config.KeepChatRounds <= 0 {
		config.KeepChatRounds = defaults.KeepChatRounds
	}
	if config.SystemPromptMaxNum <= 0 {
		config.SystemPromptMaxNum = defaults.SystemPromptMaxNum
	}
	return &Compactor{
		config:     config,
		summarizer: summarizer,
		logger:     slog.New(slog.DiscardHandler),
	}
}

// WithLogger sets the logger.
func (c *Compactor) WithLogger(logger *slog.Logger) *Compactor {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Config returns the effective configuration.
func (c *Compactor) Config() Config {
	return c.config
}

// ShouldCompact reports whether the prompt size crossed the trigger.
func (c *Compactor) ShouldCompact(latestPromptTokens int) bool {
	return float64(latestPromptTokens) > float64(c.config.MaxContextTokens)*c.config.SummarizeThreshold
}

// ManageContext returns history unchanged below the trigger. Above it, rounds
// older than the last KeepChatRounds are summarized into one system message.
// Summarizer failures are returned and the caller keeps its history.
func (c *Compactor) ManageContext(ctx context.Context, history []llm.ChatMessage, latestPromptTokens int) (Result, error) {
	if !c.ShouldCompact(latestPromptTokens) {
		return Result{Messages: history}, nil
	}

	var systemPrompts, nonSystem []llm.ChatMessage
	for _, msg := range history {
		if msg.Role == llm.RoleSystem {
			systemPrompts = append(systemPrompts, msg)
		} else {
			nonSystem = append(nonSystem, msg)
		}
	}

	keep := KeepCount(nonSystem, c.config.KeepChatRounds)
	split := len(nonSystem) - keep
	old, recent := nonSystem[:split], nonSystem[split:]

	if len(old) == 0 {
		c.logger.Debug("compaction triggered with nothing to summarize",
			"prompt_tokens", latestPromptTokens, "messages", len(history))
		return Result{Messages: history}, nil
	}

	summary, err := c.summarize(ctx, old, roundSummaryInstruction)
	if err != nil {
		return Result{}, fmt.Errorf("summarize conversation: %w", err)
	}

	newHistory := make([]llm.ChatMessage, 0, len(systemPrompts)+1+len(recent))
	newHistory = append(newHistory, systemPrompts...)
	newHistory = append(newHistory, llm.SystemMessage(SummaryPrefix+summary))
	newHistory = append(newHistory, recent...)

	result := Result{
		Messages:  newHistory,
		Compacted: true,
		Summary:   summary,
	}

	if len(systemPrompts) >= c.config.SystemPromptMaxNum {
		// Everything between the first system prompt and recent, including
		// the summary just added.
		block := newHistory[1 : len(systemPrompts)+1]
		merged, err := c.summarize(ctx, block, systemSummaryInstruction)
		if err != nil {
			return Result{}, fmt.Errorf("summarize system prompts: %w", err)
		}

		rebuilt := make([]llm.ChatMessage, 0, 2+len(recent))
		rebuilt = append(rebuilt, newHistory[0], llm.SystemMessage(SummaryPrefix+merged))
		rebuilt = append(rebuilt, recent...)

		result.Messages = rebuilt
		result.Merged = true
		result.MergedSummary = merged
	}

	c.logger.Info("context compacted",
		"prompt_tokens", latestPromptTokens,
		"summarized_messages", len(old),
		"kept_messages", len(recent),
		"merged_system_prompts", result.Merged,
		"messages_before", len(history),
		"messages_after", len(result.Messages))

	return result, nil
}

func (c *Compactor) summarize(ctx context.Context, messages []llm.ChatMessage, instruction string) (string, error) {
	req := make([]llm.ChatMessage, 0, len(messages)+1)
	req = append(req, messages...)
	req = append(req, llm.UserMessage(instruction))

	resp, err := c.summarizer.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// KeepCount returns how many trailing messages make up the last rounds
// user-initiated rounds. Walking backward, every message is counted and
// every user message closes one round.
func KeepCount(messages []llm.ChatMessage, rounds int) int {
	count := 0
	for i := len(messages) - 1; i >= 0 && rounds > 0; i-- {
		count++
		if messages[i].Role == llm.RoleUser {
			rounds--
		}
	}
	return count
}
