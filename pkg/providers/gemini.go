package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dotsetgreg/pibear/pkg/config"
)

const (
	defaultGeminiAPIBase = "https://generativelanguage.googleapis.com/v1"
	defaultGeminiModel   = "gemini-1.5-flash"
)

func init() {
	RegisterFactory(ProviderGemini, newGeminiFromConfig)
}

// GeminiProvider calls the generateContent REST endpoint with an API key.
type GeminiProvider struct {
	apiKey     string
	apiBase    string
	model      string
	httpClient *http.Client
}

func NewGeminiProvider(apiKey, apiBase, model string, timeout time.Duration) *GeminiProvider {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = defaultGeminiAPIBase
	}
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{
		apiKey:     apiKey,
		apiBase:    strings.TrimRight(apiBase, "/"),
		model:      model,
		httpClient: newHTTPClient(timeout, ""),
	}
}

func newGeminiFromConfig(cfg *config.Config) (Generator, error) {
	if strings.TrimSpace(cfg.Providers.Gemini.APIKey) == "" {
		return nil, fmt.Errorf("Gemini API key is required (set providers.gemini.api_key or PIBEAR_PROVIDERS_GEMINI_API_KEY)")
	}
	return NewGeminiProvider(
		cfg.Providers.Gemini.APIKey,
		cfg.Providers.Gemini.APIBase,
		cfg.Providers.Gemini.Model,
		time.Duration(cfg.Providers.TimeoutSeconds)*time.Second,
	), nil
}

func (p *GeminiProvider) DisplayName() string {
	return "Gemini"
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.apiBase, p.model, url.QueryEscape(p.apiKey))
	payload, err := postJSON(ctx, p.httpClient, endpoint, map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	})
	if err != nil {
		return "", err
	}

	if raw, ok := payload["candidates"]; ok {
		var candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		}
		// Candidates without text are treated as an empty reply.
		if err := json.Unmarshal(raw, &candidates); err != nil || len(candidates) == 0 || len(candidates[0].Content.Parts) == 0 {
			return "", nil
		}
		return candidates[0].Content.Parts[0].Text, nil
	}
	if raw, ok := payload["error"]; ok {
		var apiErr struct {
			Message string `json:"message"`
		}
		msg := "未知錯誤"
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return "", &BackendError{Backend: p.DisplayName(), Message: msg}
	}
	return "", fmt.Errorf("gemini: %w", ErrUnknownFormat)
}
