// Package llm talks to an OpenAI-compatible chat completion API and counts
// prompt tokens with the tokenizer of the target model.
//
// The package does not log; callers decide what to record.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the conversation sent to the completion API.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces a single completion for an ordered message list.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// TokenCounter counts tokens the way the completion model does.
type TokenCounter interface {
	Count(text string) int
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, messages []Message) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}
