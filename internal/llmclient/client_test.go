package llmclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tofunori/memo-rize/internal/config"
)

func TestNewClient_DefaultsToOllama(t *testing.T) {
	c, err := NewClient(config.ModelsConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Provider() != "ollama" {
		t.Errorf("expected ollama provider, got %q", c.Provider())
	}
}

func TestNewClient_OpenAIRequiresAPIKey(t *testing.T) {
	_, err := NewClient(config.ModelsConfig{ExtractProvider: "openai"})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(config.ModelsConfig{ExtractProvider: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestOllamaClient_GenerateJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: `{"facts":[]}`})
	}))
	defer server.Close()

	c, err := NewClient(config.ModelsConfig{EmbedBaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := c.GenerateJSON("extract facts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"facts":[]}` {
		t.Errorf("unexpected response: %q", out)
	}
}

func TestOllamaClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := NewClient(config.ModelsConfig{EmbedBaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.GenerateJSON("x"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
