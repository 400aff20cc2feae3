package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/morler/repo-translate/providers/contracts"
	"github.com/morler/repo-translate/providers/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateBatch(t *testing.T) {
	var got models.OllamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.OllamaChatResponse{
			Model:           "llama3",
			Message:         models.Message{Role: "assistant", Content: `{"translations": ["Hallo", "Hallo"]}`},
			Done:            true,
			PromptEvalCount: 30,
			EvalCount:       8,
		})
	}))
	defer srv.Close()

	temp := float32(0.2)
	p := NewOllamaProvider(&OllamaConfig{BaseURL: srv.URL + "/api", Model: "llama3", Temperature: &temp})
	resp, err := p.TranslateBatch(context.Background(), contracts.Request{Texts: []string{"Hello", "Hello"}, TargetLang: "de"})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hallo", "Hallo"}, resp.Texts)
	assert.Equal(t, 30, resp.InputTokens)
	assert.Equal(t, 8, resp.OutputTokens)
	assert.False(t, got.Stream)
	assert.Equal(t, "json", got.Format)
	assert.InDelta(t, 0.2, got.Options["temperature"], 0.001)
}

func TestTranslateBatch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "model not loaded"}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(&OllamaConfig{BaseURL: srv.URL, Model: "llama3"})
	_, err := p.TranslateBatch(context.Background(), contracts.Request{Texts: []string{"x"}, TargetLang: "de"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrRetryable))
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestTranslateBatch_NotFoundIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model 'nope' not found"}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(&OllamaConfig{BaseURL: srv.URL, Model: "nope"})
	_, err := p.TranslateBatch(context.Background(), contracts.Request{Texts: []string{"x"}, TargetLang: "de"})

	require.Error(t, err)
	assert.False(t, errors.Is(err, contracts.ErrRetryable))
}
