// GPT-SoVITS HTTP synthesis.
//
// Information Hiding:
// - api_v2 request format (/tts, /set_gpt_weights, /set_sovits_weights)
// - Reference audio selection per emotion

package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEmotion selects the reference audio used when no other applies.
const DefaultEmotion = "normal"

// RefAudio is a reference clip and its transcript.
type RefAudio struct {
	Path       string `yaml:"ref_audio_path"`
	PromptText string `yaml:"prompt_text"`
}

// SoVITSConfig configures a GPT-SoVITS server and voice.
type SoVITSConfig struct {
	BaseURL string `yaml:"base_url"`
	// Model weights loaded by Init; both empty skips switching.
	GPTWeights    string `yaml:"gpt_model_path"`
	SoVITSWeights string `yaml:"sovits_model_path"`

	TextLang    string              `yaml:"text_lang"`
	PromptLang  string              `yaml:"prompt_lang"`
	SampleSteps int                 `yaml:"sample_steps"`
	RefAudio    map[string]RefAudio `yaml:"ref_audio_emotion"`
	Timeout     time.Duration       `yaml:"timeout"`
}

// SoVITSSynthesizer talks to a GPT-SoVITS api_v2 server.
type SoVITSSynthesizer struct {
	config SoVITSConfig
	client *http.Client
}

type sovitsRequest struct {
	Text         string `json:"text"`
	TextLang     string `json:"text_lang"`
	RefAudioPath string `json:"ref_audio_path"`
	PromptText   string `json:"prompt_text"`
	PromptLang   string `json:"prompt_lang"`
	SampleSteps  int    `json:"sample_steps"`
}

// NewSoVITSSynthesizer creates a synthesizer with defaults applied.
func NewSoVITSSynthesizer(config SoVITSConfig) *SoVITSSynthesizer {
	if config.TextLang == "" {
		config.TextLang = "auto"
	}
	if config.SampleSteps == 0 {
		config.SampleSteps = 16
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &SoVITSSynthesizer{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Init loads the configured model weights on the server.
func (s *SoVITSSynthesizer) Init(ctx context.Context) error {
	if s.config.GPTWeights == "" && s.config.SoVITSWeights == "" {
		return nil
	}
	if s.config.GPTWeights == "" || s.config.SoVITSWeights == "" {
		return fmt.Errorf("both GPT and SoVITS weights are required to switch models")
	}
	if err := s.setWeights(ctx, "/set_gpt_weights", s.config.GPTWeights); err != nil {
		return err
	}
	return s.setWeights(ctx, "/set_sovits_weights", s.config.SoVITSWeights)
}

func (s *SoVITSSynthesizer) setWeights(ctx context.Context, endpoint, path string) error {
	reqURL := s.config.BaseURL + endpoint + "?" + url.Values{"weights_path": {path}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s failed: HTTP %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Synthesize renders text with the default emotion.
func (s *SoVITSSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return s.SynthesizeEmotion(ctx, text, DefaultEmotion)
}

// SynthesizeEmotion renders text using the reference audio of emotion,
// falling back to the default emotion.
func (s *SoVITSSynthesizer) SynthesizeEmotion(ctx context.Context, text, emotion string) ([]byte, error) {
	ref, ok := s.config.RefAudio[emotion]
	if !ok {
		ref = s.config.RefAudio[DefaultEmotion]
	}

	payload, err := json.Marshal(sovitsRequest{
		Text:         text,
		TextLang:     s.config.TextLang,
		RefAudioPath: ref.Path,
		PromptText:   ref.PromptText,
		PromptLang:   s.config.PromptLang,
		SampleSteps:  s.config.SampleSteps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/tts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GPT-SoVITS request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GPT-SoVITS returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// Verify interface compliance
var _ Synthesizer = (*SoVITSSynthesizer)(nil)
