package provider

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAI classifies via an OpenAI-compatible chat completion endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI provider. baseURL overrides the API host
// for compatible servers; an empty key makes the provider report
// ErrUnavailable.
func NewOpenAI(key, baseURL, model string) *OpenAI {
	if model == "" {
		model = defaultOpenAIModel
	}
	p := &OpenAI{model: model}
	if key != "" {
		cfg := openai.DefaultConfig(key)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		p.client = openai.NewClientWithConfig(cfg)
	}
	return p
}

func (o *OpenAI) Name() string { return "openai" }

// Classify sends the prompt as a single user message and returns the
// raw reply text.
func (o *OpenAI) Classify(ctx context.Context, prompt string) (string, error) {
	if o.client == nil {
		return "", fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrRequestFailed)
	}
	return resp.Choices[0].Message.Content, nil
}
