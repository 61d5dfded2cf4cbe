package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aura-assistant/aura-core/internal/metrics"
)

// openAIProvider talks to any OpenAI-compatible chat completions endpoint.
type openAIProvider struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
}

func newOpenAIProvider(cfg *Config) (*openAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("MODEL_API_KEY is required for the openai provider")
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &openAIProvider{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (p *openAIProvider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *openAIProvider) Complete(ctx context.Context, system, user string) (string, error) {
	done := metrics.TimeModel(p.Name())
	success := false
	defer func() { done(success) }()

	reqBody := chatRequest{
		Model:       p.model,
		Temperature: p.temperature,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		// Network and timeout failures are retryable.
		return "", &TransientError{Err: fmt.Errorf("completion request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("failed to read completion response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		var parsed chatResponse
		detail := string(body)
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
			detail = parsed.Error.Message
		}
		err := fmt.Errorf("completion API returned status %d: %s", resp.StatusCode, detail)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", &TransientError{Err: err}
		}
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response contains no choices")
	}
	success = true
	return parsed.Choices[0].Message.Content, nil
}
