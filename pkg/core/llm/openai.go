package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// ChatConfig configures the OpenAI-compatible chat client. Zero values
// fall back to environment variables and then to a local serving proxy.
type ChatConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	MaxRetries     int    `yaml:"max_retries"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c *ChatConfig) applyDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("LLM_API_KEY")
	}
	if c.APIKey == "" {
		c.APIKey = "sk-any-key"
	}
	if c.BaseURL == "" {
		c.BaseURL = os.Getenv("LLM_BASE_URL")
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://127.0.0.1:23333/v1"
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = os.Getenv("LLM_MODEL")
	}
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 120
	}
}

func (c *ChatConfig) timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient talks to any OpenAI-compatible chat-completions endpoint.
// On repeated transport failure with one model it fails over to the next
// model reported by the service's model-listing endpoint.
type ChatClient struct {
	cfg    ChatConfig
	http   *http.Client
	models []string

	sleep func(time.Duration)
}

var _ Provider = (*ChatClient)(nil)

// NewChatClient builds a client and eagerly fetches the model list. A
// failed listing is tolerated: failover simply has nowhere to go.
func NewChatClient(cfg ChatConfig) *ChatClient {
	cfg.applyDefaults()
	c := &ChatClient{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.timeout()},
		sleep: time.Sleep,
	}

	models, err := c.ListModels(context.Background())
	if err != nil {
		log.Printf("llm: model listing failed, failover disabled: %v", err)
		return c
	}
	c.models = models
	if !contains(models, c.cfg.Model) && len(models) > 0 {
		log.Printf("llm: model %q not served, switching to %q", c.cfg.Model, models[0])
		c.cfg.Model = models[0]
	}
	return c
}

// ListModels queries the service's model-listing endpoint.
func (c *ChatClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("models endpoint returned status %d", resp.StatusCode)
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(listing.Data))
	for _, m := range listing.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat sends one chat-completion request. Within one model, transient
// failures back off exponentially up to the retry bound; after that the
// next listed model is tried. The error of the last attempt surfaces
// when every model fails.
func (c *ChatClient) Chat(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	modelsToTry := []string{c.cfg.Model}
	for _, m := range c.models {
		if !contains(modelsToTry, m) {
			modelsToTry = append(modelsToTry, m)
		}
	}

	var lastErr error
	for _, model := range modelsToTry {
		content, err := c.chatWithModel(ctx, model, messages, jsonMode)
		if err == nil {
			if model != c.cfg.Model {
				log.Printf("llm: failed over to model %q", model)
				c.cfg.Model = model
			}
			return content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("llm: model %q failed, trying next: %v", model, err)
	}
	return "", fmt.Errorf("LLM_ALL_MODELS_FAILED: %w", lastErr)
}

func (c *ChatClient) chatWithModel(ctx context.Context, model string, messages []Message, jsonMode bool) (string, error) {
	payload := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0.1,
	}
	if jsonMode {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(time.Duration(1<<(attempt-1)) * time.Second)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("LLM_API_ERROR: status=%d body=%.200s", resp.StatusCode, respBody)
			continue
		}

		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", fmt.Errorf("LLM_DECODE_ERROR: %v body=%.200s", err, respBody)
		}
		if len(parsed.Choices) == 0 {
			return "", fmt.Errorf("LLM_NO_CHOICES: %.200s", respBody)
		}
		return parsed.Choices[0].Message.Content, nil
	}
	return "", lastErr
}

// Generate implements Provider with JSON-object output enforced; the
// extraction loop always expects a structured proposal.
func (c *ChatClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.Chat(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, true)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
