// Package llm provides the chat-completion client used by the assistant.
// Both backends speak the OpenAI wire contract and differ only in base
// endpoint, credential and model.
package llm

import (
	"context"
	"time"

	"github.com/normanking/alcance/internal/tools"
)

// Provider defines the interface for chat-completion backends.
type Provider interface {
	// Complete sends one request and returns the first choice.
	Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier.
	Name() string

	// Available returns true if the provider has credentials configured.
	Available() bool
}

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	// Model to use (provider-specific).
	Model string `json:"model"`

	// SystemPrompt sets the assistant's behavior.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Messages in the conversation, oldest first.
	Messages []Message `json:"messages"`

	// Tools advertised to the model. Empty disables tool calling.
	Tools []tools.Definition `json:"tools,omitempty"`

	// MaxTokens limits response length.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `json:"temperature,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// UserMessage is shorthand for a single user turn.
func UserMessage(text string) Message {
	return Message{Role: "user", Content: text}
}

// ToolCall is one structured invocation returned by the model. Arguments is
// the raw JSON payload exactly as the provider sent it.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatResponse contains the model's reply.
type ChatResponse struct {
	Content          string        `json:"content"`
	Model            string        `json:"model"`
	ToolCalls        []ToolCall    `json:"tool_calls,omitempty"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	TokensUsed       int           `json:"tokens_used,omitempty"`
	Duration         time.Duration `json:"duration"`
	FinishReason     string        `json:"finish_reason,omitempty"`
}

// ProviderConfig contains configuration for a provider.
type ProviderConfig struct {
	// Name identifies the provider (openai, deepseek).
	Name string

	// Endpoint is the API base URL.
	Endpoint string

	// APIKey for authentication.
	APIKey string

	// Model is the default model to use.
	Model string

	// MaxTokens default for responses.
	MaxTokens int

	// Temperature default.
	Temperature float64

	// Timeout for API calls.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults for a provider.
func DefaultConfig(name string) *ProviderConfig {
	switch name {
	case "openai":
		return &ProviderConfig{
			Name:        "openai",
			Endpoint:    "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
		}
	case "deepseek":
		return &ProviderConfig{
			Name:        "deepseek",
			Endpoint:    "https://api.deepseek.com",
			Model:       "deepseek-chat",
			MaxTokens:   1024,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
		}
	default:
		return &ProviderConfig{
			Name:        name,
			MaxTokens:   1024,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
		}
	}
}

// merge fills zero fields of cfg from defaults.
func (cfg *ProviderConfig) merge(defaults *ProviderConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaults.Endpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaults.Temperature
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
}
