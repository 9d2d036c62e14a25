package ai

import (
	"fmt"
	"sort"
	"time"
)

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(RuntimeConfig) Runtime

// RuntimeConfig carries common knobs used by runtimes.
type RuntimeConfig struct {
	// Common
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OpenAI-compatible
	APIKey  string
	BaseURL string
	// Ollama
	Host string
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[name] = f }

// GetRuntime creates a Runtime for the given provider if registered.
func GetRuntime(name string, cfg RuntimeConfig) (Runtime, bool) {
	if f, ok := registry[name]; ok {
		return f(cfg), true
	}
	return nil, false
}

// MustRuntime is GetRuntime with an error naming the known providers.
func MustRuntime(name string, cfg RuntimeConfig) (Runtime, error) {
	if rt, ok := GetRuntime(name, cfg); ok {
		return rt, nil
	}
	return nil, fmt.Errorf("unknown provider %q (known: %v)", name, Providers())
}

// Providers lists registered provider names.
func Providers() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func withDefaults(c RuntimeConfig, retry int, base, maxDelay time.Duration) RuntimeConfig {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 60 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = retry
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = base
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = maxDelay
	}
	return c
}

// init registers built-in runtimes.
func init() {
	RegisterRuntime(ProviderOllama, func(c RuntimeConfig) Runtime {
		c = withDefaults(c, 2, 200*time.Millisecond, time.Second)
		return NewOllamaClient(c.Host, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
	})
	RegisterRuntime(ProviderOpenAI, func(c RuntimeConfig) Runtime {
		c = withDefaults(c, 3, 500*time.Millisecond, 4*time.Second)
		return NewOpenAIClient(c.APIKey, c.BaseURL, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
	})
	RegisterRuntime(ProviderOpenRouter, func(c RuntimeConfig) Runtime {
		c = withDefaults(c, 3, 500*time.Millisecond, 4*time.Second)
		if c.BaseURL == "" {
			c.BaseURL = OpenRouterBaseURL
		}
		return NewOpenAIClient(c.APIKey, c.BaseURL, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
	})
}
