package assistant

import (
	"fmt"
	"time"

	"gynecology-chatbot/internal/config"
	"gynecology-chatbot/internal/integrations/gemini"
	"gynecology-chatbot/internal/integrations/openai"
)

// NewProviders builds one adapter per configured provider, keeping the order.
// chatgpt and grok speak the chat-completions protocol; gemini uses
// generateContent.
func NewProviders(cfgs []config.ProviderConfig, timeout time.Duration) ([]Provider, error) {
	providers := make([]Provider, 0, len(cfgs))
	for _, pc := range cfgs {
		var sender ChatSender
		switch pc.Name {
		case config.ProviderChatGPT, config.ProviderGrok:
			sender = openai.NewClient(pc.APIKey, openai.WithBaseURL(pc.BaseURL), openai.WithModel(pc.Model))
		case config.ProviderGemini:
			sender = gemini.NewClient(pc.APIKey, gemini.WithBaseURL(pc.BaseURL), gemini.WithModel(pc.Model))
		default:
			return nil, fmt.Errorf("assistant: unsupported provider %q", pc.Name)
		}
		a, err := NewAdapter(pc.Name, sender, timeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, a)
	}
	return providers, nil
}
