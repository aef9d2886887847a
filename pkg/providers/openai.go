package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dotsetgreg/pibear/pkg/config"
	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "qwen/qwen2.5-vl-72b-instruct:free"

func init() {
	RegisterFactory(ProviderOpenAI, newOpenAIFromConfig)
}

// OpenAIProvider talks to any OpenAI-compatible chat completions API
// (OpenAI, OpenRouter, Groq, DeepSeek) and sends the prompt as one user turn.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, apiBase, model, proxy string, timeout time.Duration) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(apiBase) != "" {
		clientConfig.BaseURL = strings.TrimRight(apiBase, "/")
	}
	clientConfig.HTTPClient = newHTTPClient(timeout, proxy)
	if strings.TrimSpace(model) == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

func newOpenAIFromConfig(cfg *config.Config) (Generator, error) {
	if strings.TrimSpace(cfg.Providers.OpenAI.APIKey) == "" {
		return nil, fmt.Errorf("OpenAI-compatible API key is required (set providers.openai.api_key or PIBEAR_PROVIDERS_OPENAI_API_KEY)")
	}
	return NewOpenAIProvider(
		cfg.Providers.OpenAI.APIKey,
		cfg.Providers.OpenAI.APIBase,
		cfg.Providers.OpenAI.Model,
		strings.TrimSpace(cfg.Providers.OpenAI.Proxy),
		time.Duration(cfg.Providers.TimeoutSeconds)*time.Second,
	), nil
}

func (p *OpenAIProvider) DisplayName() string {
	return "OpenAI"
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &BackendError{Backend: p.DisplayName(), Message: apiErr.Message}
		}
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
