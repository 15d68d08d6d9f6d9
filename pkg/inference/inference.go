// Package inference provides chat completions for the assistant.
//
// The Provider interface abstracts the chat backend; Client talks to any
// OpenAI-compatible API through github.com/sashabaranov/go-openai. Assistant
// layers the conversation shaping on top: a fixed persona prompt, the
// caller's history, the new user message, and a fallback reply when the
// model returns nothing.
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	)
//	assistant := inference.NewAssistant(client)
//
//	reply, _ := assistant.Reply(ctx, nil, "hi")
//	fmt.Println(reply.Response, len(reply.UpdatedHistory)) // 2
package inference

import (
	"context"
)

// Provider is the chat completion interface.
type Provider interface {
	// Chat generates a response from a sequence of messages.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the full ordered conversation, system prompt first.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64
}

// ChatResponse from chat completion.
type ChatResponse struct {
	// Message is the assistant's response. Content may be empty.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
