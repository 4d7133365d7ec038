package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat-completion endpoint.
type OpenAIProvider struct {
	config *ProviderConfig
	client *openai.Client
}

// NewOpenAIProvider creates a provider for cfg. Missing fields are taken
// from DefaultConfig(cfg.Name).
func NewOpenAIProvider(cfg *ProviderConfig) *OpenAIProvider {
	if cfg == nil {
		cfg = DefaultConfig("openai")
	}
	c := *cfg
	c.merge(DefaultConfig(c.Name))

	clientCfg := openai.DefaultConfig(c.APIKey)
	if c.Endpoint != "" {
		clientCfg.BaseURL = c.Endpoint
	}
	clientCfg.HTTPClient = &http.Client{Timeout: c.Timeout}

	return &OpenAIProvider{
		config: &c,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return p.config.Name
}

// Available reports whether an API key is configured.
func (p *OpenAIProvider) Available() bool {
	return p.config.APIKey != ""
}

// Model returns the default model.
func (p *OpenAIProvider) Model() string {
	return p.config.Model
}

// Complete sends one chat-completion request with the tool schema attached.
func (p *OpenAIProvider) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if !p.Available() {
		return nil, &ProviderError{Provider: p.Name(), Kind: KindConfig, Err: errors.New("API key not configured")}
	}

	start := time.Now()

	creq := openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
	if creq.Model == "" {
		creq.Model = p.config.Model
	}
	if creq.MaxTokens == 0 {
		creq.MaxTokens = p.config.MaxTokens
	}
	if creq.Temperature == 0 {
		creq.Temperature = float32(p.config.Temperature)
	}

	if req.SystemPrompt != "" {
		creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	if len(req.Tools) > 0 {
		creq.Tools = make([]openai.Tool, len(req.Tools))
		for i, d := range req.Tools {
			creq.Tools[i] = d.OpenAITool()
		}
		creq.ToolChoice = "auto"
	}

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, classify(p.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Kind: KindMalformed, Err: ErrNoChoices}
	}

	choice := resp.Choices[0]
	out := &ChatResponse{
		Content:          choice.Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TokensUsed:       resp.Usage.TotalTokens,
		Duration:         time.Since(start),
		FinishReason:     string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}
