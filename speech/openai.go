// OpenAI-compatible speech endpoints using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication (any OpenAI-compatible base URL)
// - Request format for /audio/speech and /audio/transcriptions

package speech

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible audio endpoint.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // empty keeps the OpenAI default
	Model   string `yaml:"model"`
	// Voice, Format and Speed apply to synthesis.
	Voice  string  `yaml:"voice"`
	Format string  `yaml:"format"`
	Speed  float64 `yaml:"speed"`
	// Language applies to transcription; empty lets the service detect it.
	Language string `yaml:"language"`
}

func newOpenAIClient(config OpenAIConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// OpenAISynthesizer synthesizes speech through /audio/speech.
// Works with OpenAI TTS and compatible services such as CosyVoice on SiliconFlow.
type OpenAISynthesizer struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAISynthesizer creates a synthesizer. The format defaults to wav.
func NewOpenAISynthesizer(config OpenAIConfig) *OpenAISynthesizer {
	if config.Format == "" {
		config.Format = string(openai.SpeechResponseFormatWav)
	}
	return &OpenAISynthesizer{client: newOpenAIClient(config), config: config}
}

// Synthesize returns the encoded audio for text.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.config.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.config.Voice),
		ResponseFormat: openai.SpeechResponseFormat(s.config.Format),
		Speed:          s.config.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	return audio, nil
}

// OpenAITranscriber transcribes audio through /audio/transcriptions.
// Works with Whisper and compatible services such as SenseVoice on SiliconFlow.
type OpenAITranscriber struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAITranscriber creates a transcriber.
func NewOpenAITranscriber(config OpenAIConfig) *OpenAITranscriber {
	return &OpenAITranscriber{client: newOpenAIClient(config), config: config}
}

// Transcribe uploads audio and returns the recognized text.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.config.Model,
		FilePath: filename,
		Reader:   audio,
		Language: t.config.Language,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, nil
}

// Verify interface compliance
var (
	_ Synthesizer = (*OpenAISynthesizer)(nil)
	_ Transcriber = (*OpenAITranscriber)(nil)
)
