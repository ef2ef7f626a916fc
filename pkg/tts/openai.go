package tts

import (
	"context"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, for compatible gateways
	Model   string // e.g. "tts-1"
	Voice   string // e.g. "alloy"
	Format  string // e.g. "mp3"
}

// OpenAISynthesizer calls the OpenAI speech endpoint (or any
// API-compatible gateway via BaseURL).
type OpenAISynthesizer struct {
	cfg    OpenAIConfig
	client *openai.Client
}

func NewOpenAISynthesizer(cfg OpenAIConfig) *OpenAISynthesizer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAISynthesizer{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (*Result, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormat(s.cfg.Format),
	})
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	return &Result{Audio: audio, Format: s.cfg.Format}, nil
}
