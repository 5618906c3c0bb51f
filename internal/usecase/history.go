package usecase

import (
	"context"
	"fmt"

	"gynecology-chatbot/internal/domain"
)

const defaultHistoryLimit = 10

// HistoryReader returns at most limit of a session's newest messages, oldest
// first.
type HistoryReader interface {
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
}

// FormatHistory builds the provider-agnostic context for a session from its
// limit most recent messages. limit <= 0 uses the default of 10.
func FormatHistory(ctx context.Context, store HistoryReader, sessionID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	msgs, err := store.RecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("usecase: format history: %w", err)
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return toChatMessages(msgs), nil
}

func toChatMessages(msgs []domain.Message) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		role := domain.ChatRoleAssistant
		if m.Type == domain.MessageTypeUser {
			role = domain.ChatRoleUser
		}
		out = append(out, domain.ChatMessage{Role: role, Content: m.Text})
	}
	return out
}
