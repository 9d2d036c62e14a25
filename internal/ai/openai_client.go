package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// OpenRouterBaseURL is the OpenAI-compatible endpoint of OpenRouter.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint
// (OpenAI, OpenRouter, Ollama's /v1). The prompt is sent as one user message.
type OpenAIClient struct {
	client           *openai.Client
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// NewOpenAIClient builds a client. An empty baseURL uses the OpenAI default.
func NewOpenAIClient(apiKey, baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: httpTimeout}
	if retryMax <= 0 {
		retryMax = 3
	}
	return &OpenAIClient{
		client:           openai.NewClientWithConfig(cfg),
		baseURL:          cfg.BaseURL,
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

func (c *OpenAIClient) request(req GenerateRequest) (openai.ChatCompletionRequest, error) {
	if req.Model == "" {
		return openai.ChatCompletionRequest{}, errors.New("model cannot be empty")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return openai.ChatCompletionRequest{}, errors.New("prompt cannot be empty")
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: float32(req.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}, nil
}

// Generate sends a chat completion and returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Stream {
		var sb strings.Builder
		if err := c.GenerateStream(ctx, req, func(s string) { sb.WriteString(s) }); err != nil {
			return nil, err
		}
		return &GenerateResponse{Text: sb.String(), Model: req.Model, RequestID: uuid.NewString()}, nil
	}
	creq, err := c.request(req)
	if err != nil {
		return nil, err
	}
	bo := newBackoff(c.retryBaseDelay, c.retryMaxDelay)
	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		resp, err := c.client.CreateChatCompletion(ctx, creq)
		if err == nil {
			if len(resp.Choices) == 0 {
				return nil, errors.New("no choices in response")
			}
			return &GenerateResponse{Text: resp.Choices[0].Message.Content, Model: resp.Model, RequestID: resp.ID}, nil
		}
		lastErr = c.mapError(err)
		retry, hint := isRetryableStatus(lastErr)
		if !retry {
			var ue *UnreachableError
			retry = errors.As(lastErr, &ue) && isRetryableNetErr(err) && ctx.Err() == nil
		}
		if !retry || attempt == c.retryMaxAttempts {
			break
		}
		if werr := bo.wait(ctx, hint); werr != nil {
			return nil, werr
		}
	}
	return nil, lastErr
}

// GenerateStream streams content deltas until the server ends the stream.
func (c *OpenAIClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	creq, err := c.request(req)
	if err != nil {
		return err
	}
	creq.Stream = true
	stream, err := c.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return c.mapError(err)
	}
	defer stream.Close()
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return c.mapError(err)
		}
		for _, ch := range resp.Choices {
			if ch.Delta.Content != "" {
				onDelta(ch.Delta.Content)
			}
		}
	}
}

// mapError converts go-openai errors into this package's typed errors.
func (c *OpenAIClient) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		if apiErr.Code != nil {
			e.Code = fmt.Sprint(apiErr.Code)
		}
		return classifyAPIError(e, nil)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		e := &APIError{StatusCode: reqErr.HTTPStatusCode}
		if reqErr.Err != nil {
			e.Message = reqErr.Err.Error()
		}
		return classifyAPIError(e, nil)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &UnreachableError{Host: c.baseURL, Err: err}
}
