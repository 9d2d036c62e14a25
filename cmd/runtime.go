package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/KaramelBytes/sheetqa/internal/ai"
	"github.com/KaramelBytes/sheetqa/internal/assistant"
	cfgpkg "github.com/KaramelBytes/sheetqa/internal/config"
)

type runtimeOptions struct {
	ProviderFlag string
	ModelFlag    string
	OllamaHost   string
	TimeoutSec   int
	Stream       bool
}

// resolvedRuntime is a runtime plus the settings it was built from.
type resolvedRuntime struct {
	rt       ai.Runtime
	provider string
	model    string
	host     string
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (*resolvedRuntime, error) {
	httpTimeout := 60 * time.Second
	retryMax := 2
	baseDelay := 200 * time.Millisecond
	maxDelay := time.Second
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			retryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			baseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			maxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	providerName := strings.ToLower(strings.TrimSpace(opts.ProviderFlag))
	if providerName == "" && cfg != nil && cfg.DefaultProvider != "" {
		providerName = strings.ToLower(cfg.DefaultProvider)
	}
	if providerName == "" || providerName == "local" {
		providerName = ai.ProviderOllama
	}

	model := strings.TrimSpace(opts.ModelFlag)
	if model == "" && cfg != nil {
		model = cfg.DefaultModel
	}
	if model == "" {
		model = "llama3"
	}

	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
	}
	switch providerName {
	case ai.ProviderOllama:
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" && cfg != nil {
			host = cfg.OllamaHost
		}
		if host == "" {
			host = "http://127.0.0.1:11434"
		}
		rc.Host = host
	case ai.ProviderOpenAI, ai.ProviderOpenRouter:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if providerName == ai.ProviderOpenRouter {
			if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
				apiKey = v
			}
		}
		if apiKey == "" && cfg != nil {
			apiKey = cfg.OpenAIAPIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%s requires an API key: set OPENAI_API_KEY or 'sheetqa config set openai_api_key <key>'", providerName)
		}
		rc.APIKey = apiKey
		if cfg != nil {
			rc.BaseURL = cfg.OpenAIBaseURL
		}
	}

	rt, err := ai.MustRuntime(providerName, rc)
	if err != nil {
		return nil, err
	}
	return &resolvedRuntime{rt: rt, provider: providerName, model: model, host: rc.Host}, nil
}

// orchestratorFor wires a resolved runtime with the question settings
// from config and flags.
func orchestratorFor(r *resolvedRuntime, cfg *cfgpkg.Global, opts runtimeOptions, onDelta func(string)) *assistant.Orchestrator {
	o := assistant.Options{Model: r.model, Stream: opts.Stream, OnDelta: onDelta}
	if cfg != nil {
		o.Timeout = cfg.RequestTimeout()
		o.SampleRows = cfg.SampleRows
		o.TokenBudget = cfg.PromptTokenBudget
		o.Temperature = cfg.Temperature
		if !o.Stream {
			o.Stream = cfg.Stream
		}
	}
	if opts.TimeoutSec > 0 {
		o.Timeout = time.Duration(opts.TimeoutSec) * time.Second
	}
	return assistant.NewOrchestrator(r.rt, o, logger)
}

// degradedHint explains a degraded result in terms of the configured
// runtime. It returns "" for normal results.
func degradedHint(r *resolvedRuntime, res assistant.AnalysisResult) string {
	switch {
	case errors.Is(res.Err(), assistant.ErrServiceUnavailable):
		if r.provider == ai.ProviderOllama {
			return fmt.Sprintf("Ollama did not answer at %s. Ensure it is running and the model is pulled ('ollama pull %s'); set SHEETQA_OLLAMA_HOST or config 'ollama_host' if it lives elsewhere.", r.host, r.model)
		}
		return fmt.Sprintf("%s did not answer. Check your network, API key and model name (%s).", r.provider, r.model)
	case errors.Is(res.Err(), assistant.ErrMalformedResponse):
		return fmt.Sprintf("model %s did not return the expected JSON object; rerun with --debug to see details or try another model.", r.model)
	}
	return ""
}
