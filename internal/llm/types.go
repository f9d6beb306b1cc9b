package llm

import "context"

type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ImageContent struct {
	Data     []byte
	MimeType string
}

type Message struct {
	Role    string
	Content string
	Images  []ImageContent
}

type Capabilities struct {
	Vision bool
}

type LLM interface {
	Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error)
	Capabilities() Capabilities
}
