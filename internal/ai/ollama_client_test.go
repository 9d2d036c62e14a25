package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestOllamaGenerateSuccess(t *testing.T) {
	var captured ollamaGenerateRequest
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": "llama3", "response": "hello from ollama", "done": true})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, 2*time.Second, 1, 0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Generate(ctx, GenerateRequest{Model: "llama3", Prompt: "hi there"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text != "hello from ollama" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.RequestID == "" {
		t.Fatalf("expected simulated request id")
	}
	if captured.Model != "llama3" || captured.Prompt != "hi there" || captured.Stream {
		t.Fatalf("unexpected request body: %+v", captured)
	}
}

func TestOllamaGenerateStreamConcatenates(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaGenerateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			http.Error(w, "expected stream", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, part := range []string{`{"answer": "`, `three`, `"}`} {
			b, _ := json.Marshal(map[string]any{"response": part, "done": false})
			fmt.Fprintf(w, "%s\n", b)
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, 2*time.Second, 1, 0, 0)
	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3", Prompt: "p", Stream: true})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text != `{"answer": "three"}` {
		t.Fatalf("unexpected text: %q", resp.Text)
	}

	var deltas []string
	if err := c.GenerateStream(context.Background(), GenerateRequest{Model: "llama3", Prompt: "p"}, func(s string) { deltas = append(deltas, s) }); err != nil {
		t.Fatalf("GenerateStream error: %v", err)
	}
	if strings.Join(deltas, "|") != `{"answer": "|three|"}` {
		t.Fatalf("unexpected deltas: %q", deltas)
	}
}

func TestOllamaGenerateModelNotFound(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model 'nope' not found"})
	}))
	defer srv.Close()
	c := NewOllamaClient(srv.URL, 2*time.Second, 1, 0, 0)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "nope", Prompt: "hi"})
	var mnf *ModelNotFoundError
	if !errors.As(err, &mnf) {
		t.Fatalf("expected ModelNotFoundError, got %T %v", err, err)
	}
	if !strings.Contains(err.Error(), "model 'nope' not found") {
		t.Fatalf("message lost: %v", err)
	}
}

func TestOllamaGenerateEmptyInput(t *testing.T) {
	c := NewOllamaClient("http://localhost:11434", 2*time.Second, 1, 0, 0)
	if _, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3", Prompt: "  "}); err == nil || err.Error() != "prompt cannot be empty" {
		t.Fatalf("expected 'prompt cannot be empty' error, got: %v", err)
	}
	if err := c.GenerateStream(context.Background(), GenerateRequest{Prompt: "x"}, func(string) {}); err == nil || err.Error() != "model cannot be empty" {
		t.Fatalf("expected 'model cannot be empty' error, got: %v", err)
	}
}

func TestOllamaGenerateUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: cannot open local listener (%v)", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	c := NewOllamaClient("http://"+addr, time.Second, 1, 0, 0)
	_, err = c.Generate(context.Background(), GenerateRequest{Model: "llama3", Prompt: "hi"})
	var ue *UnreachableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnreachableError, got %T %v", err, err)
	}
	if !IsUnavailable(err) {
		t.Fatalf("unreachable runtime should count as unavailable")
	}
}

func TestOllamaGenerateTimeout(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	c := NewOllamaClient(srv.URL, 5*time.Second, 2, time.Millisecond, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Generate(ctx, GenerateRequest{Model: "llama3", Prompt: "hi"})
	if err == nil || !IsUnavailable(err) {
		t.Fatalf("expected timeout classified as unavailable, got %v", err)
	}
}

func TestOllamaGenerateRetriesServerError(t *testing.T) {
	calls := 0
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "loading model"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "ready", "done": true})
	}))
	defer srv.Close()
	c := NewOllamaClient(srv.URL, 2*time.Second, 2, time.Millisecond, time.Millisecond)
	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3", Prompt: "hi"})
	if err != nil || resp.Text != "ready" {
		t.Fatalf("expected retry to succeed, got %v %+v", err, resp)
	}
}
