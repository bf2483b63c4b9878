// Provider construction from settings.
//
// config.Settings.Provider resolves the provider name, model and API key,
// then builds through ProviderBuilder:
//
//	provider, err := llm.NewProviderBuilder(llm.ProviderOpenAI).
//	    BaseURL("https://api.siliconflow.cn/v1").
//	    Model("Qwen/Qwen2.5-7B-Instruct").
//	    MaxTokens(1024).
//	    Build(key)
//
// Information Hiding:
// - Which constructor serves which provider type
// - Defaults for token budget and temperature

package llm

import (
	"fmt"
	"strings"
)

// Builder defaults.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.7
)

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	// ProviderOpenAI covers OpenAI and any OpenAI-compatible endpoint.
	ProviderOpenAI ProviderType = iota
	ProviderAnthropic
	ProviderDeepSeek
	ProviderGemini
)

func (p ProviderType) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderDeepSeek:
		return "deepseek"
	case ProviderGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// ParseProviderType parses a provider name or alias (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "gpt", "siliconflow", "openai-compatible":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	case "gemini", "google":
		return ProviderGemini, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// ProviderBuilder collects provider settings before Build.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	baseURL      string
	maxTokens    uint32
	temperature  float32
}

// NewProviderBuilder starts a builder with the default token budget and
// temperature.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{
		providerType: providerType,
		maxTokens:    DefaultMaxTokens,
		temperature:  DefaultTemperature,
	}
}

// Model sets the model identifier. Required.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// BaseURL points an OpenAI-compatible provider at a different endpoint.
// Ignored by the Anthropic and Gemini providers.
func (b *ProviderBuilder) BaseURL(url string) *ProviderBuilder {
	b.baseURL = url
	return b
}

// MaxTokens caps the reply length. Zero keeps the default.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	if tokens > 0 {
		b.maxTokens = tokens
	}
	return b
}

// Temperature sets the sampling temperature.
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = temp
	return b
}

// Build creates the provider with apiKey.
func (b *ProviderBuilder) Build(apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s: API key is required", b.providerType)
	}
	if b.model == "" {
		return nil, fmt.Errorf("%s: model is required", b.providerType)
	}

	switch b.providerType {
	case ProviderOpenAI:
		return NewOpenAICompatibleProvider("openai", b.baseURL, apiKey, b.model, b.maxTokens, b.temperature), nil
	case ProviderDeepSeek:
		if b.baseURL != "" {
			return NewOpenAICompatibleProvider("deepseek", b.baseURL, apiKey, b.model, b.maxTokens, b.temperature), nil
		}
		return NewDeepSeekProvider(apiKey, b.model, b.maxTokens, b.temperature), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey, b.model, b.maxTokens, b.temperature), nil
	case ProviderGemini:
		return NewGeminiProvider(apiKey, b.model, b.maxTokens, b.temperature), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %v", b.providerType)
	}
}
