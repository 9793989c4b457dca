// Package llmclient implements the Extractor LLM adapter boundary (spec §9
// "Dynamic dispatch over LLM/embedding vendors"): a provider-agnostic chat
// client used by the Extraction Engine's extraction and validation calls
// (spec §4.6 steps 5, 6), generalized from the teacher's
// internal/ollama/ollama.go (Generate/GenerateJSON over Ollama's /api/generate)
// and internal/llm/client.go (provider resolution), adapted from
// package-level config lookups to an explicit config.ModelsConfig value.
package llmclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tofunori/memo-rize/internal/config"
)

// Client is a provider-agnostic interface for chat/JSON generation, the
// boundary the Extraction Engine programs against (spec §9 "Extractor").
type Client interface {
	// GenerateJSON sends prompt to the model, requesting JSON-formatted
	// output where the provider supports it, and returns the raw response
	// text for robust downstream parsing (spec §4.6 step 5).
	GenerateJSON(prompt string) (string, error)
	Provider() string
}

// NewClient constructs a chat client from the extraction half of Config.Models.
// Falls back to the embedding provider's connection details when
// Extract.Provider is "auto" or unset, mirroring the teacher's
// "follows embedding provider first" resolution.
func NewClient(cfg config.ModelsConfig) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.ExtractProvider))
	if provider == "" || provider == "auto" {
		provider = strings.ToLower(strings.TrimSpace(cfg.EmbedProvider))
	}

	switch provider {
	case "", "ollama":
		return newOllamaClient(cfg), nil
	case "openai", "openai-compatible":
		return newOpenAIClient(cfg)
	case "none":
		return nil, fmt.Errorf("extraction chat provider disabled (extract_provider = none)")
	default:
		return nil, fmt.Errorf("unknown extraction chat provider: %q", provider)
	}
}

// --- Ollama ---

type ollamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

func newOllamaClient(cfg config.ModelsConfig) *ollamaClient {
	baseURL := cfg.EmbedBaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.ExtractModel
	if model == "" {
		model = "llama3.2"
	}
	return &ollamaClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    baseURL,
		model:      model,
	}
}

func (c *ollamaClient) Provider() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

func (c *ollamaClient) GenerateJSON(prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("connect to ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 20*1024*1024)).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(result.Response), nil
}

// --- OpenAI / OpenAI-compatible ---

type openAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func newOpenAIClient(cfg config.ModelsConfig) (*openAIClient, error) {
	baseURL := cfg.EmbedBaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	apiKey := cfg.EmbedAPIKey
	if baseURL == "https://api.openai.com" && apiKey == "" {
		return nil, fmt.Errorf("openai extraction provider requires an API key")
	}
	model := cfg.ExtractModel
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &openAIClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}, nil
}

func (c *openAIClient) Provider() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *openAIClient) GenerateJSON(prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("connect to openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("openai returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 20*1024*1024)).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("openai error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty choices returned")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
