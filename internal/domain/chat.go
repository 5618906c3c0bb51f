package domain

// ChatMessage is the provider-agnostic role/content pair sent to LLM
// integrations. A slice of them, oldest first, is the conversation context
// for a single provider call.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)
