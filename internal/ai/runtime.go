package ai

import "context"

// GenerateRequest is a single-prompt text generation request.
type GenerateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"-"`
}

// GenerateResponse carries the full generated text.
type GenerateResponse struct {
	Text      string `json:"text"`
	Model     string `json:"model,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Runtime is a minimal interface implemented by text-generation backends
// such as a local Ollama or any OpenAI-compatible endpoint.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// StreamRuntime is an optional extension that supports streaming output.
// Implementors should invoke onDelta with each partial content chunk.
type StreamRuntime interface {
	GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderOllama     = "ollama"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
)
