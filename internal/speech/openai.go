package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Speed   float64
}

// OpenAISynthesizer renders sentences through the audio speech endpoint.
type OpenAISynthesizer struct {
	cfg    OpenAIConfig
	client *http.Client
}

func NewOpenAISynthesizer(cfg OpenAIConfig) *OpenAISynthesizer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "tts-1"
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		cfg.Voice = "nova"
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.1
	}
	return &OpenAISynthesizer{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed"`
	ResponseFormat string  `json:"response_format"`
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	payload, err := json.Marshal(speechRequest{
		Model:          s.cfg.Model,
		Input:          text,
		Voice:          s.cfg.Voice,
		Speed:          s.cfg.Speed,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, "", fmt.Errorf("speech status %d: %s", res.StatusCode, string(body))
	}
	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}
	return audio, "mp3", nil
}
