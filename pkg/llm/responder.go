package llm

import "context"

// Message roles in provider-neutral form.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation entry.
type Message struct {
	Role    string
	Content string
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
}

// Responder defines the contract for any LLM vendor implementation.
type Responder interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Respond generates one assistant reply for the conversation so far.
	Respond(ctx context.Context, messages []Message) (Response, error)
}
