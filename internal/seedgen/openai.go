package seedgen

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type CompletionRequest struct {
	APIKey       string
	Model        string
	SystemPrompt string
	UserPrompt   string
}

// Provider streams the text of one chat completion. yield receives each
// non-empty fragment in arrival order; an error from yield aborts the stream
// and is returned.
type Provider interface {
	StreamText(ctx context.Context, req CompletionRequest, yield func(text string) error) error
}

type OpenAIConfig struct {
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAIProvider talks to an OpenAI-compatible chat completions API. The API
// key belongs to the caller, so a client is built per request.
type OpenAIProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &OpenAIProvider{baseURL: baseURL, httpClient: cfg.HTTPClient}
}

func (p *OpenAIProvider) StreamText(ctx context.Context, req CompletionRequest, yield func(text string) error) error {
	if strings.TrimSpace(req.APIKey) == "" {
		return fmt.Errorf("api key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(req.APIKey),
		option.WithMaxRetries(0),
	}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(p.httpClient))
	}
	client := openai.NewClient(opts...)

	stream := client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
	})
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		if err := yield(text); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("stream chat completion: %w", err)
	}
	return nil
}

// StripSQLFence removes a surrounding markdown code fence from model output.
func StripSQLFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, fence) {
		trimmed = strings.TrimPrefix(trimmed, fence+"sql")
		trimmed = strings.TrimPrefix(trimmed, fence)
		trimmed = strings.TrimSuffix(trimmed, fence)
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
