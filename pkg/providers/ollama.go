package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dotsetgreg/pibear/pkg/config"
)

const (
	defaultOllamaAPIBase = "http://localhost:11434"
	defaultOllamaModel   = "gemma:2b"
)

func init() {
	RegisterFactory(ProviderOllama, newOllamaFromConfig)
}

// OllamaProvider calls the non-streaming /api/generate endpoint.
type OllamaProvider struct {
	apiBase    string
	model      string
	httpClient *http.Client
}

func NewOllamaProvider(apiBase, model string, timeout time.Duration) *OllamaProvider {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = defaultOllamaAPIBase
	}
	if strings.TrimSpace(model) == "" {
		model = defaultOllamaModel
	}
	return &OllamaProvider{
		apiBase:    strings.TrimRight(apiBase, "/"),
		model:      model,
		httpClient: newHTTPClient(timeout, ""),
	}
}

func newOllamaFromConfig(cfg *config.Config) (Generator, error) {
	return NewOllamaProvider(
		cfg.Providers.Ollama.APIBase,
		cfg.Providers.Ollama.Model,
		time.Duration(cfg.Providers.TimeoutSeconds)*time.Second,
	), nil
}

func (p *OllamaProvider) DisplayName() string {
	return "Ollama"
}

func (p *OllamaProvider) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := postJSON(ctx, p.httpClient, p.apiBase+"/api/generate", map[string]interface{}{
		"model":  p.model,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return "", err
	}

	if raw, ok := payload["response"]; ok {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			// A present but non-string response counts as an empty reply.
			return "", nil
		}
		return text, nil
	}
	if raw, ok := payload["error"]; ok {
		return "", &BackendError{Backend: p.DisplayName(), Message: rawMessageText(raw)}
	}
	return "", fmt.Errorf("ollama: %w", ErrUnknownFormat)
}
