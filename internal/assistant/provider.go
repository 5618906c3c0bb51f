// Package assistant produces assistant replies from a prioritized set of
// language-model providers, falling back in order when one fails.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gynecology-chatbot/internal/domain"
)

// Provider is one AI backend able to answer a user message given the
// conversation so far.
type Provider interface {
	// Name is the identifier stored on assistant messages.
	Name() string
	// Configured reports whether a credential is present. Unconfigured
	// providers are never invoked.
	Configured() bool
	// Send returns the reply text. Every failure is a *ProviderError.
	Send(ctx context.Context, userText string, history []domain.ChatMessage) (string, error)
}

// ProviderError is a single provider call failure.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("assistant: provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ChatSender is the transport side of a provider: it receives the fully
// assembled conversation and returns the reply.
type ChatSender interface {
	Configured() bool
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// Adapter turns a ChatSender into a Provider: it prepends the system
// instruction, appends the new user turn and bounds the call with a timeout.
type Adapter struct {
	name    string
	sender  ChatSender
	timeout time.Duration
}

// DefaultTimeout bounds a single provider call when none is configured.
const DefaultTimeout = 8 * time.Second

func NewAdapter(name string, sender ChatSender, timeout time.Duration) (*Adapter, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("assistant: provider name must not be empty")
	}
	if sender == nil {
		return nil, errors.New("assistant: chat sender must not be nil")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{name: name, sender: sender, timeout: timeout}, nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Configured() bool { return a.sender.Configured() }

func (a *Adapter) Send(ctx context.Context, userText string, history []domain.ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	reply, err := a.sender.Chat(ctx, BuildConversation(userText, history))
	if err != nil {
		return "", &ProviderError{Provider: a.name, Err: err}
	}
	if strings.TrimSpace(reply) == "" {
		return "", &ProviderError{Provider: a.name, Err: errors.New("empty reply")}
	}
	return reply, nil
}

// BuildConversation returns system instruction + history + the new user turn.
// history is copied, never modified.
func BuildConversation(userText string, history []domain.ChatMessage) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.ChatRoleSystem, Content: SystemInstruction()})
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{Role: domain.ChatRoleUser, Content: userText})
	return messages
}
