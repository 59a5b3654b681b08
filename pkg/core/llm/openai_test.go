package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// chatServer fakes an OpenAI-compatible endpoint with a per-model
// behavior table.
type chatServer struct {
	mu       sync.Mutex
	models   []string
	failing  map[string]bool // models that always 500
	requests []chatRequest
}

func (s *chatServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if strings.HasSuffix(r.URL.Path, "/models") {
			type model struct {
				ID string `json:"id"`
			}
			var data []model
			for _, m := range s.models {
				data = append(data, model{ID: m})
			}
			json.NewEncoder(w).Encode(map[string]any{"data": data})
			return
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.requests = append(s.requests, req)

		if s.failing[req.Model] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"choices":[{"message":{"content":"{\"answered_by\":\"%s\"}"}}]}`, req.Model)
	}
}

func newChatTestClient(t *testing.T, server *chatServer, model string) *ChatClient {
	t.Helper()
	srv := httptest.NewServer(server.handler())
	t.Cleanup(srv.Close)

	client := NewChatClient(ChatConfig{
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
		Model:      model,
		MaxRetries: 2,
	})
	client.sleep = func(time.Duration) {}
	return client
}

func TestChatClientGenerate(t *testing.T) {
	server := &chatServer{models: []string{"internlm2"}, failing: map[string]bool{}}
	client := newChatTestClient(t, server, "internlm2")

	out, err := client.Generate(context.Background(), "系统提示", "用户提示")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(out, "internlm2") {
		t.Fatalf("out = %q", out)
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	req := server.requests[0]
	if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
		t.Error("Generate must force JSON mode")
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.Temperature != 0.1 {
		t.Errorf("temperature = %v", req.Temperature)
	}
}

func TestChatClientSwitchesToServedModel(t *testing.T) {
	server := &chatServer{models: []string{"qwen2"}, failing: map[string]bool{}}
	client := newChatTestClient(t, server, "gpt-4o")

	if client.cfg.Model != "qwen2" {
		t.Fatalf("model = %q, want the served one", client.cfg.Model)
	}
}

func TestChatClientFailsOverAcrossModels(t *testing.T) {
	server := &chatServer{
		models:  []string{"broken-model", "backup-model"},
		failing: map[string]bool{"broken-model": true},
	}
	client := newChatTestClient(t, server, "broken-model")

	out, err := client.Generate(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(out, "backup-model") {
		t.Fatalf("out = %q, want the backup model's answer", out)
	}

	// Retries within the first model, then the failover.
	server.mu.Lock()
	attempts := 0
	for _, req := range server.requests {
		if req.Model == "broken-model" {
			attempts++
		}
	}
	server.mu.Unlock()
	if attempts != 2 {
		t.Fatalf("broken model tried %d times, want MaxRetries", attempts)
	}
	// The working model becomes the new default.
	if client.cfg.Model != "backup-model" {
		t.Fatalf("model after failover = %q", client.cfg.Model)
	}
}

func TestChatClientAllModelsFailed(t *testing.T) {
	server := &chatServer{
		models:  []string{"a", "b"},
		failing: map[string]bool{"a": true, "b": true},
	}
	client := newChatTestClient(t, server, "a")

	_, err := client.Generate(context.Background(), "s", "u")
	if err == nil || !strings.Contains(err.Error(), "LLM_ALL_MODELS_FAILED") {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "LLM_API_ERROR") {
		t.Fatalf("last attempt's error missing: %v", err)
	}
}

func TestChatClientDecodeErrorIsTerminal(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/models") {
			fmt.Fprint(w, `{"data":[]}`)
			return
		}
		calls++
		fmt.Fprint(w, `<html>proxy error</html>`)
	}))
	t.Cleanup(srv.Close)

	client := NewChatClient(ChatConfig{BaseURL: srv.URL, Model: "m", MaxRetries: 3})
	client.sleep = func(time.Duration) {}

	_, err := client.Generate(context.Background(), "s", "u")
	if err == nil || !strings.Contains(err.Error(), "LLM_DECODE_ERROR") {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("decode failure retried %d times, must be terminal", calls)
	}
}
