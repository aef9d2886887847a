package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dotsetgreg/pibear/pkg/config"
)

const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type factoryFunc func(cfg *config.Config) (Generator, error)

var (
	factoryMu       sync.RWMutex
	factories       = map[string]factoryFunc{}
	registrationErr error
)

func RegisterFactory(name string, build func(cfg *config.Config) (Generator, error)) {
	name = NormalizeProviderName(name)
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if build == nil {
		registrationErr = errors.Join(registrationErr, fmt.Errorf("providers: factory %q build func is required", name))
		return
	}
	factories[name] = build
}

func SupportedProviders() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizeProviderName lowercases name and maps the empty string to ollama.
func NormalizeProviderName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ProviderOllama
	}
	return name
}

func ActiveProviderName(cfg *config.Config) string {
	if cfg == nil {
		return ProviderOllama
	}
	return NormalizeProviderName(cfg.Providers.Source)
}

func CreateGenerator(cfg *config.Config) (Generator, error) {
	name := ActiveProviderName(cfg)

	factoryMu.RLock()
	if registrationErr != nil {
		err := registrationErr
		factoryMu.RUnlock()
		return nil, fmt.Errorf("provider registration failed: %w", err)
	}
	build, ok := factories[name]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported ai_model_source %q: supported sources are %s", name, strings.Join(SupportedProviders(), ", "))
	}
	return build(cfg)
}
