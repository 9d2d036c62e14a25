package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient is a minimal HTTP client for a local Ollama runtime
// speaking the /api/generate protocol.
type OllamaClient struct {
	httpClient       *http.Client
	host             string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// NewOllamaClient creates a new client targeting the given host (e.g., http://127.0.0.1:11434).
func NewOllamaClient(host string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *OllamaClient {
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 2
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 1 * time.Second
	}
	return &OllamaClient{
		httpClient:       &http.Client{Timeout: httpTimeout},
		host:             strings.TrimRight(host, "/"),
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateChunk struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (c *OllamaClient) payload(req GenerateRequest, stream bool) ([]byte, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt cannot be empty")
	}
	oreq := ollamaGenerateRequest{Model: req.Model, Prompt: req.Prompt, Stream: stream}
	if req.Temperature > 0 {
		oreq.Options = map[string]any{"temperature": req.Temperature}
	}
	payload, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return payload, nil
}

// Generate posts the prompt and returns the full reply. With req.Stream
// set, the NDJSON fragments are concatenated in arrival order.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	payload, err := c.payload(req, req.Stream)
	if err != nil {
		return nil, err
	}
	bo := newBackoff(c.retryBaseDelay, c.retryMaxDelay)
	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := c.post(ctx, payload)
		if err != nil {
			if isRetryableNetErr(err) && ctx.Err() == nil && attempt < c.retryMaxAttempts {
				if werr := bo.wait(ctx, 0); werr != nil {
					return nil, werr
				}
				continue
			}
			return nil, &UnreachableError{Host: c.host, Err: err}
		}
		var sb strings.Builder
		model, err := readGenerateStream(resp, func(s string) { sb.WriteString(s) })
		if err == nil {
			return &GenerateResponse{
				Text:      sb.String(),
				Model:     model,
				RequestID: fmt.Sprintf("ollama_%d", time.Now().UnixNano()),
			}, nil
		}
		lastErr = err
		retry, hint := isRetryableStatus(err)
		if !retry || attempt == c.retryMaxAttempts {
			break
		}
		if werr := bo.wait(ctx, hint); werr != nil {
			return nil, werr
		}
	}
	return nil, lastErr
}

// GenerateStream streams partial deltas as they arrive.
func (c *OllamaClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	payload, err := c.payload(req, true)
	if err != nil {
		return err
	}
	resp, err := c.post(ctx, payload)
	if err != nil {
		return &UnreachableError{Host: c.host, Err: err}
	}
	_, err = readGenerateStream(resp, onDelta)
	return err
}

func (c *OllamaClient) post(ctx context.Context, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(httpReq)
}

// readGenerateStream consumes one reply body and closes it. A single JSON
// object and an NDJSON stream decode the same way.
func readGenerateStream(resp *http.Response, onDelta func(string)) (string, error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		var raw map[string]any
		_ = json.Unmarshal(body, &raw)
		apiErr := &APIError{StatusCode: resp.StatusCode, Raw: raw, RequestID: extractRequestID(resp)}
		if msg, ok := raw["error"].(string); ok {
			apiErr.Message = msg
		} else if msg, ok := raw["message"].(string); ok {
			apiErr.Message = msg
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return "", classifyAPIError(apiErr, resp)
	}
	dec := json.NewDecoder(resp.Body)
	var model string
	for {
		var chunk ollamaGenerateChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return model, nil
			}
			return model, fmt.Errorf("decode response: %w", err)
		}
		if chunk.Error != "" {
			return model, &ServerError{APIError: &APIError{StatusCode: resp.StatusCode, Message: chunk.Error}}
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Response != "" {
			onDelta(chunk.Response)
		}
		if chunk.Done {
			return model, nil
		}
	}
}
