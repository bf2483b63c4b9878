// Package config provides application settings loaded from a YAML file and
// environment variables.
//
// Settings are created via Load() which handles:
// - YAML parsing with ${VAR} expansion
// - Default value application
// - Environment variable overrides with validation
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/richinex/murmur/agent"
	"github.com/richinex/murmur/compaction"
	"github.com/richinex/murmur/llm"
	"github.com/richinex/murmur/mcp"
	"github.com/richinex/murmur/pipeline"
	"github.com/richinex/murmur/speech"
	"github.com/richinex/murmur/tools"
)

// Settings holds all application configuration.
type Settings struct {
	LLM        LLMConfig                   `yaml:"llm"`
	Context    ContextConfig               `yaml:"context"`
	Agent      AgentConfig                 `yaml:"agent"`
	Tools      ToolsConfig                 `yaml:"tools"`
	MCPServers map[string]mcp.ServerConfig `yaml:"mcp_servers"`
	TTS        TTSConfig                   `yaml:"tts"`
	STT        STTConfig                   `yaml:"stt"`
	Audio      AudioConfig                 `yaml:"audio"`
	Pipeline   pipeline.Config             `yaml:"pipeline"`
	Server     ServerConfig                `yaml:"server"`
	Storage    StorageConfig               `yaml:"storage"`
	Logging    LoggingConfig               `yaml:"logging"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	MaxTokens   uint32  `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// ContextConfig holds context compaction configuration.
type ContextConfig struct {
	MaxContextTokens   int     `yaml:"max_context_tokens"`
	SummarizeThreshold float64 `yaml:"summarize_threshold"`
	KeepChatRounds     int     `yaml:"keep_chat_rounds"`
	SystemPromptMaxNum int     `yaml:"system_prompt_max_num"`
}

// AgentConfig holds agent execution configuration.
type AgentConfig struct {
	MaxToolRounds int    `yaml:"max_tool_rounds"` // <= 0 means unlimited
	Stream        bool   `yaml:"stream"`
	SystemRole    string `yaml:"system_role"`
	PromptsPath   string `yaml:"prompts_path"`
	Format        string `yaml:"format"`
}

// ToolsConfig holds tool gateway configuration.
type ToolsConfig struct {
	WhitelistPath string        `yaml:"whitelist_path"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxAttempts   uint32        `yaml:"max_attempts"`
	Builtin       bool          `yaml:"builtin"`
}

// TTSConfig selects and configures the speech synthesizer.
type TTSConfig struct {
	Provider string              `yaml:"provider"` // openai, sovits or none
	OpenAI   speech.OpenAIConfig `yaml:"openai"`
	SoVITS   speech.SoVITSConfig `yaml:"sovits"`
}

// STTConfig selects and configures the transcriber.
type STTConfig struct {
	Provider string              `yaml:"provider"` // openai or none
	OpenAI   speech.OpenAIConfig `yaml:"openai"`
}

// AudioConfig holds local device formats.
type AudioConfig struct {
	PlaybackSampleRate int `yaml:"playback_sample_rate"`
	RecordSampleRate   int `yaml:"record_sample_rate"`
	Channels           int `yaml:"channels"`
}

// ServerConfig holds the websocket server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig holds session persistence configuration.
type StorageConfig struct {
	DBPath string `yaml:"db_path"` // empty keeps sessions in memory
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude":      "anthropic",
	"google":      "gemini",
	"gpt":         "openai",
	"siliconflow": "openai",
}

// Default returns the settings used when neither file nor environment say otherwise.
func Default() Settings {
	cc := compaction.DefaultConfig()
	return Settings{
		LLM: LLMConfig{
			Provider:    "openai",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Context: ContextConfig{
			MaxContextTokens:   cc.MaxContextTokens,
			SummarizeThreshold: cc.SummarizeThreshold,
			KeepChatRounds:     cc.KeepChatRounds,
			SystemPromptMaxNum: cc.SystemPromptMaxNum,
		},
		Agent: AgentConfig{
			MaxToolRounds: agent.DefaultMaxToolRounds,
			Stream:        true,
			SystemRole:    "assistant",
		},
		Tools: ToolsConfig{
			Timeout:     tools.DefaultToolTimeout,
			MaxAttempts: tools.DefaultMaxAttempts,
			Builtin:     true,
		},
		TTS: TTSConfig{Provider: "none"},
		STT: STTConfig{Provider: "none"},
		Audio: AudioConfig{
			PlaybackSampleRate: 32000,
			RecordSampleRate:   16000,
			Channels:           1,
		},
		Pipeline: pipeline.DefaultConfig(),
		Server:   ServerConfig{Addr: ":8765"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads settings from a YAML file on top of the defaults, applies
// environment overrides and validates the result. An empty path skips the file.
func Load(path string) (Settings, error) {
	settings := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &settings); err != nil {
			return Settings{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := settings.applyEnv(); err != nil {
		return Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// MustLoad loads settings from path.
// Panics if the file or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustLoad(path string) Settings {
	settings, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

func (s *Settings) applyEnv() error {
	if v := os.Getenv("MURMUR_LLM_PROVIDER"); v != "" {
		s.LLM.Provider = v
	}
	s.LLM.Provider = normalizeProvider(s.LLM.Provider)

	if v := os.Getenv("MURMUR_LLM_MODEL"); v != "" {
		s.LLM.Model = v
	}
	if s.LLM.Model == "" {
		if model, err := ModelFor(s.LLM.Provider); err == nil {
			s.LLM.Model = model
		}
	}

	var err error
	if s.LLM.MaxTokens, err = getEnvUint32("LLM_MAX_TOKENS", s.LLM.MaxTokens); err != nil {
		return err
	}
	if s.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", s.LLM.Temperature); err != nil {
		return err
	}
	if s.Agent.MaxToolRounds, err = getEnvInt("AGENT_MAX_TOOL_ROUNDS", s.Agent.MaxToolRounds); err != nil {
		return err
	}
	if v := os.Getenv("MURMUR_DB_PATH"); v != "" {
		s.Storage.DBPath = v
	}
	if v := os.Getenv("MURMUR_LOG_LEVEL"); v != "" {
		s.Logging.Level = v
	}
	return nil
}

// Validate rejects settings that would fail later at runtime.
func (s Settings) Validate() error {
	if _, err := getProviderInfo(s.LLM.Provider); err != nil {
		return err
	}
	if s.LLM.MaxTokens == 0 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}
	if s.LLM.Temperature < 0 || s.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %v", s.LLM.Temperature)
	}

	if s.Context.MaxContextTokens <= 0 {
		return fmt.Errorf("context.max_context_tokens must be positive")
	}
	if s.Context.SummarizeThreshold <= 0 || s.Context.SummarizeThreshold > 1 {
		return fmt.Errorf("context.summarize_threshold must be within (0, 1], got %v", s.Context.SummarizeThreshold)
	}
	if s.Context.KeepChatRounds < 0 {
		return fmt.Errorf("context.keep_chat_rounds must not be negative")
	}
	if s.Context.SystemPromptMaxNum < 1 {
		return fmt.Errorf("context.system_prompt_max_num must be at least 1")
	}

	if s.Tools.Timeout < 0 {
		return fmt.Errorf("tools.timeout must not be negative")
	}
	for name, server := range s.MCPServers {
		if err := mcp.ValidateServer(name, server); err != nil {
			return err
		}
	}

	switch s.TTS.Provider {
	case "none", "openai", "sovits":
	default:
		return fmt.Errorf("unknown tts provider %q (want openai, sovits or none)", s.TTS.Provider)
	}
	switch s.STT.Provider {
	case "none", "openai":
	default:
		return fmt.Errorf("unknown stt provider %q (want openai or none)", s.STT.Provider)
	}

	if s.Audio.PlaybackSampleRate <= 0 || s.Audio.RecordSampleRate <= 0 {
		return fmt.Errorf("audio sample rates must be positive")
	}
	if s.Audio.Channels != 1 && s.Audio.Channels != 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got %d", s.Audio.Channels)
	}

	if _, err := parseLevel(s.Logging.Level); err != nil {
		return err
	}
	switch s.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging format %q (want text or json)", s.Logging.Format)
	}
	return nil
}

// Compaction returns the compactor settings.
func (s Settings) Compaction() compaction.Config {
	return compaction.Config{
		MaxContextTokens:   s.Context.MaxContextTokens,
		SummarizeThreshold: s.Context.SummarizeThreshold,
		KeepChatRounds:     s.Context.KeepChatRounds,
		SystemPromptMaxNum: s.Context.SystemPromptMaxNum,
	}
}

// ToolConfig returns the executor settings for builtin tools.
func (s Settings) ToolConfig() tools.ToolConfig {
	return tools.ToolConfig{
		AttemptTimeout: s.Tools.Timeout,
		MaxAttempts:    s.Tools.MaxAttempts,
	}
}

// Provider builds the configured LLM provider. The model falls back to the
// provider's default and the API key to its environment variable.
func (s Settings) Provider() (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(s.LLM.Provider)
	if err != nil {
		return nil, err
	}

	model := s.LLM.Model
	if model == "" {
		if model, err = ModelFor(s.LLM.Provider); err != nil {
			return nil, err
		}
	}

	builder := llm.NewProviderBuilder(providerType).
		Model(model).
		BaseURL(s.LLM.BaseURL).
		MaxTokens(s.LLM.MaxTokens).
		Temperature(float32(s.LLM.Temperature))

	if s.LLM.APIKey != "" {
		return builder.Build(s.LLM.APIKey)
	}
	key, err := APIKeyFor(s.LLM.Provider)
	if err != nil {
		return nil, err
	}
	return builder.Build(key)
}

// Logger builds a slog logger writing to w in the configured format.
func (s Settings) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(s.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if s.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("unknown logging level %q", level)
	}
	return l, nil
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
