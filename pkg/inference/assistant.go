package inference

import "context"

// Defaults for the assistant persona.
const (
	DefaultSystemPrompt  = "あなたは親しみやすい日本語AIアシスタントです。ユーザーとの会話を楽しく、自然に行ってください。短めで分かりやすい回答を心がけてください。"
	DefaultFallbackReply = "すみません、うまく回答できませんでした。"
)

// Assistant shapes a conversation turn around a chat Provider.
type Assistant struct {
	provider     Provider
	systemPrompt string
	fallback     string
}

// AssistantOption configures an Assistant.
type AssistantOption func(*Assistant)

// WithSystemPrompt replaces the persona instruction.
func WithSystemPrompt(prompt string) AssistantOption {
	return func(a *Assistant) { a.systemPrompt = prompt }
}

// WithFallbackReply replaces the reply used when the model returns nothing.
func WithFallbackReply(reply string) AssistantOption {
	return func(a *Assistant) { a.fallback = reply }
}

// NewAssistant wraps a provider with the default persona.
func NewAssistant(p Provider, opts ...AssistantOption) *Assistant {
	a := &Assistant{
		provider:     p,
		systemPrompt: DefaultSystemPrompt,
		fallback:     DefaultFallbackReply,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reply is the outcome of one assistant turn.
type Reply struct {
	// Response is the assistant's text, never empty.
	Response string

	// UpdatedHistory is the input history followed by the user message and
	// the assistant response.
	UpdatedHistory []Message

	// Fallback is true when Response is the substitute reply.
	Fallback bool

	Usage Usage
}

// Reply sends [system] ++ history ++ [user message] to the provider.
// history is not modified.
func (a *Assistant) Reply(ctx context.Context, history []Message, message string) (*Reply, error) {
	if message == "" {
		return nil, ErrEmptyMessage
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, NewSystemMessage(a.systemPrompt))
	messages = append(messages, history...)
	messages = append(messages, NewUserMessage(message))

	resp, err := a.provider.Chat(ctx, &ChatRequest{Messages: messages})
	if err != nil {
		return nil, err
	}

	reply := &Reply{Response: resp.Message.Content, Usage: resp.Usage}
	if reply.Response == "" {
		reply.Response = a.fallback
		reply.Fallback = true
	}

	updated := make([]Message, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated, NewUserMessage(message), NewAssistantMessage(reply.Response))
	reply.UpdatedHistory = updated
	return reply, nil
}
