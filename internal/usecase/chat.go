package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"gynecology-chatbot/internal/assistant"
	"gynecology-chatbot/internal/domain"
)

const (
	defaultMaxTextLen = 4000
	minPainScale      = 1
	maxPainScale      = 10
)

// Responder produces an assistant reply. It never fails; degraded replies
// carry assistant.FallbackProvider.
type Responder interface {
	GetResponse(ctx context.Context, userText string, history []domain.ChatMessage) assistant.Response
}

// TurnStore is the persistence the conversation turn needs.
type TurnStore interface {
	HistoryReader
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	AppendMessage(ctx context.Context, msg domain.Message) error
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
}

type ChatService struct {
	store        TurnStore
	responder    Responder
	logger       *slog.Logger
	historyLimit int
	maxTextLen   int
}

type SendMessageInput struct {
	UserID    string
	SessionID string
	Text      string
	PainScale *int
}

type SendMessageOutput struct {
	UserMessage domain.Message `json:"user_message"`
	BotMessage  domain.Message `json:"bot_message"`
}

func NewChatService(store TurnStore, responder Responder, logger *slog.Logger, historyLimit, maxTextLen int) (*ChatService, error) {
	if store == nil {
		return nil, errors.New("usecase: turn store must not be nil")
	}
	if responder == nil {
		return nil, errors.New("usecase: responder must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if maxTextLen <= 0 {
		maxTextLen = defaultMaxTextLen
	}
	return &ChatService{
		store:        store,
		responder:    responder,
		logger:       logger,
		historyLimit: historyLimit,
		maxTextLen:   maxTextLen,
	}, nil
}

// SendMessage runs one conversation turn. The user message is stored before
// any provider is called; history is read before that write, so it never
// contains the message being answered.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (SendMessageOutput, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return SendMessageOutput{}, newError(ErrorInvalidInput, "empty_text", nil)
	}
	if utf8.RuneCountInString(text) > s.maxTextLen {
		return SendMessageOutput{}, newError(ErrorInvalidInput, "text_too_long", nil)
	}
	if in.PainScale != nil && (*in.PainScale < minPainScale || *in.PainScale > maxPainScale) {
		return SendMessageOutput{}, newError(ErrorInvalidInput, "pain_scale_out_of_range", nil)
	}

	session, err := ownedSession(ctx, s.store, in.UserID, in.SessionID)
	if err != nil {
		return SendMessageOutput{}, err
	}

	history, err := FormatHistory(ctx, s.store, session.ID, s.historyLimit)
	if err != nil {
		return SendMessageOutput{}, newError(ErrorInternal, "history_read_error", err)
	}

	userMsg := domain.Message{
		ID:        newUUID(),
		SessionID: session.ID,
		Type:      domain.MessageTypeUser,
		Text:      text,
		CreatedAt: now(),
		PainScale: copyInt(in.PainScale),
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return SendMessageOutput{}, newError(ErrorInternal, "user_message_write_error", err)
	}

	resp := s.responder.GetResponse(ctx, text, history)
	if resp.Provider == "" || strings.TrimSpace(resp.Text) == "" {
		return SendMessageOutput{}, newError(ErrorInternal, "empty_assistant_response", nil)
	}

	botAt := now()
	if !botAt.After(userMsg.CreatedAt) {
		// The reply must sort after the question.
		botAt = userMsg.CreatedAt.Add(time.Microsecond)
	}
	botMsg := domain.Message{
		ID:         newUUID(),
		SessionID:  session.ID,
		Type:       domain.MessageTypeBot,
		Text:       resp.Text,
		CreatedAt:  botAt,
		AIProvider: resp.Provider,
	}
	if err := s.store.AppendMessage(ctx, botMsg); err != nil {
		return SendMessageOutput{}, newError(ErrorInternal, "bot_message_write_error", err)
	}

	if err := s.store.TouchSession(ctx, session.ID, botAt); err != nil {
		return SendMessageOutput{}, newError(ErrorInternal, "session_touch_error", err)
	}

	s.logger.InfoContext(ctx, "conversation turn completed",
		"session_id", session.ID,
		"provider", resp.Provider,
		"history_len", len(history),
	)
	return SendMessageOutput{UserMessage: userMsg, BotMessage: botMsg}, nil
}

type sessionGetter interface {
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
}

// ownedSession loads a session and hides sessions of other users behind
// NOT_FOUND.
func ownedSession(ctx context.Context, store sessionGetter, userID, sessionID string) (domain.Session, error) {
	userID = strings.TrimSpace(userID)
	sessionID = strings.TrimSpace(sessionID)
	if userID == "" || sessionID == "" {
		return domain.Session{}, newError(ErrorNotFound, "session_not_found", nil)
	}
	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, storeError(err, "session_not_found", "session_read_error")
	}
	if session.UserID != userID {
		return domain.Session{}, newError(ErrorNotFound, "session_not_found", nil)
	}
	return session, nil
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var newUUID = func() string {
	return uuid.NewString()
}

var now = func() time.Time {
	return time.Now().UTC()
}
