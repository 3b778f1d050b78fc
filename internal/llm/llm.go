package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
)

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Completion, error)
	IsConfigured() bool
}

// Request is a single prompt for a provider.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completion is the raw text returned by a provider.
type Completion struct {
	Text   string
	Tokens int
}

const (
	defaultOpenAIURL    = "https://api.openai.com/v1"
	defaultAnthropicURL = "https://api.anthropic.com/v1"
	defaultOllamaURL    = "http://localhost:11434"
)

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaProvider{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	return false
}

// Generate sends a prompt to Ollama and returns the response.
func (o *OllamaProvider) Generate(ctx context.Context, r Request) (*Completion, error) {
	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": r.Prompt},
		},
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"num_predict": r.MaxTokens,
			"temperature": r.Temperature,
		},
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		PromptEvalCount int `json:"prompt_eval_count"`
		EvalCount       int `json:"eval_count"`
	}
	if err := postJSON(ctx, o.client, "ollama", o.BaseURL+"/api/chat", nil, body, &result); err != nil {
		return nil, err
	}

	return &Completion{
		Text:   result.Message.Content,
		Tokens: result.PromptEvalCount + result.EvalCount,
	}, nil
}

// OpenAIProvider is an OpenAI-compatible chat completions provider.
type OpenAIProvider struct {
	Model   string
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(model, apiKeyEnv, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	return &OpenAIProvider{
		Model:   model,
		APIKey:  os.Getenv(apiKeyEnv),
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Generate sends a prompt to OpenAI and returns the response.
func (o *OpenAIProvider) Generate(ctx context.Context, r Request) (*Completion, error) {
	if o.APIKey == "" {
		return nil, failure.NewCallError(failure.Fatal, "openai", fmt.Errorf("OpenAI API key not configured"))
	}

	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": r.Prompt},
		},
		"max_tokens":      r.MaxTokens,
		"temperature":     r.Temperature,
		"response_format": map[string]string{"type": "json_object"},
	}
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := postJSON(ctx, o.client, "openai", o.BaseURL+"/chat/completions", headers, body, &result); err != nil {
		return nil, err
	}

	if len(result.Choices) == 0 {
		return nil, failure.NewCallError(failure.Transient, "openai", fmt.Errorf("no choices in OpenAI response"))
	}

	return &Completion{Text: result.Choices[0].Message.Content, Tokens: result.Usage.TotalTokens}, nil
}

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	Model   string
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(model, apiKeyEnv, baseURL string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	return &AnthropicProvider{
		Model:   model,
		APIKey:  os.Getenv(apiKeyEnv),
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if the API key is set.
func (a *AnthropicProvider) IsConfigured() bool {
	return a.APIKey != ""
}

// Generate sends a prompt to Anthropic and returns the response.
func (a *AnthropicProvider) Generate(ctx context.Context, r Request) (*Completion, error) {
	if a.APIKey == "" {
		return nil, failure.NewCallError(failure.Fatal, "anthropic", fmt.Errorf("Anthropic API key not configured"))
	}

	body := map[string]any{
		"model":       a.Model,
		"max_tokens":  r.MaxTokens,
		"temperature": r.Temperature,
		"messages": []map[string]string{
			{"role": "user", "content": r.Prompt},
		},
	}
	headers := map[string]string{
		"x-api-key":         a.APIKey,
		"anthropic-version": "2023-06-01",
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := postJSON(ctx, a.client, "anthropic", a.BaseURL+"/messages", headers, body, &result); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, c := range result.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	return &Completion{
		Text:   text.String(),
		Tokens: result.Usage.InputTokens + result.Usage.OutputTokens,
	}, nil
}

// postJSON sends body and decodes the response into out, classifying failures.
func postJSON(ctx context.Context, client *http.Client, op, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return failure.NewCallError(failure.Fatal, op, fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return failure.NewCallError(failure.Fatal, op, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return failure.FromTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return failure.FromStatus(op, resp.StatusCode, resp.Header.Get("Retry-After"), string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return failure.NewCallError(failure.Transient, op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// NewProvider builds a provider by name.
func NewProvider(provider, model, baseURL, apiKeyEnv string) (Provider, error) {
	switch strings.ToLower(provider) {
	case "openai":
		return NewOpenAIProvider(model, apiKeyEnv, baseURL), nil
	case "anthropic":
		return NewAnthropicProvider(model, apiKeyEnv, baseURL), nil
	case "ollama":
		return NewOllamaProvider(model, baseURL), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}
