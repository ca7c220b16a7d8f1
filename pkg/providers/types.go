package providers

import "context"

// Message is one chat-completions message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting an endpoint reports, when it reports any.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is a single completion call. A zero MaxTokens keeps the
// generator's configured limit.
type Request struct {
	Messages  []Message
	MaxTokens int
}

// Completion is the first choice an endpoint returned. Text is empty when the
// endpoint answered with no choices.
type Completion struct {
	Text         string
	FinishReason string
	Usage        *Usage
}

// Completer is what the command generator and the startup probe need from a
// provider. Calls are bounded by ctx.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}
