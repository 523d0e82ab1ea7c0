package persona

import (
	"bufio"
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
}

// OpenAIGenerator speaks the chat completions API, streamed over SSE.
type OpenAIGenerator struct {
	cfg    OpenAIConfig
	client *http.Client
}

func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gpt-4-turbo-preview"
	}
	return &OpenAIGenerator{
		cfg: cfg,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (g *OpenAIGenerator) Stream(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	res, err := g.post(ctx, req, true)
	if err != nil {
		return Response{}, err
	}
	defer res.Body.Close()

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if line == "" || line == "[DONE]" {
			if line == "[DONE]" {
				break
			}
			continue
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return Response{Text: out.String()}, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Response{Text: out.String()}, fmt.Errorf("stream read: %w", err)
	}
	return Response{Text: out.String()}, nil
}

func (g *OpenAIGenerator) Complete(ctx context.Context, req Request) (Response, error) {
	res, err := g.post(ctx, req, false)
	if err != nil {
		return Response{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	var completion chatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, fmt.Errorf("empty completion")
	}
	return Response{Text: completion.Choices[0].Message.Content}, nil
}

func (g *OpenAIGenerator) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       g.cfg.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	res, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		res.Body.Close()
		return nil, fmt.Errorf("chat completions status %d: %s", res.StatusCode, string(body))
	}
	return res, nil
}
