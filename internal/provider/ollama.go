package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const defaultOllamaModel = "llama3.2"

// Ollama classifies via a local Ollama instance's generate endpoint.
type Ollama struct {
	host   string
	model  string
	client *http.Client
}

// NewOllama creates an Ollama provider. An empty model selects the
// default; an empty host makes the provider report ErrUnavailable.
func NewOllama(host, model string) *Ollama {
	if model == "" {
		model = defaultOllamaModel
	}
	return &Ollama{host: host, model: model, client: http.DefaultClient}
}

func (o *Ollama) Name() string { return "ollama" }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// Classify sends the prompt and returns the raw reply text.
func (o *Ollama) Classify(ctx context.Context, prompt string) (string, error) {
	if o.host == "" {
		return "", fmt.Errorf("%w: no ollama host configured", ErrUnavailable)
	}

	body, err := json.Marshal(ollamaRequest{Model: o.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: ollama returned HTTP %d", ErrRequestFailed, resp.StatusCode)
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode ollama response: %v", ErrRequestFailed, err)
	}

	return result.Response, nil
}
