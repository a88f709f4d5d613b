package models

import (
	"context"
	"fmt"
)

// Role indicates the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn of a conversation. Messages are plain text; tool
// use is expressed inside the text rather than through provider-native calls.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request describes one completion call.
type Request struct {
	// Model is the provider-specific model name (e.g. "gemini-2.5-pro").
	Model string
	// System is the system instruction sent ahead of the conversation.
	System string
	// Messages is the conversation, oldest first. The last entry is the newest user turn.
	Messages []Message
	// Temperature is the sampling temperature.
	Temperature float32
	// MaxTokens bounds the size of the reply.
	MaxTokens int
}

// Provider represents a service that provides LLMs (e.g. Gemini, OpenAI).
type Provider interface {
	// Name returns the provider's identifier (e.g. "gemini", "openai").
	Name() string

	// Stream sends a request to the LLM and returns a stream of responses.
	Stream(ctx context.Context, req Request) (ModelStream, error)
}

// ModelStream abstracts the stream of responses from the model.
type ModelStream interface {
	// FullMessage blocks until the complete reply is available.
	FullMessage() (Message, error)
	Close() error
}

// ProviderError wraps transport, authentication and rate-limit failures
// returned by a provider. These are never retried automatically.
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s (model %s): %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
