package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"gynecology-chatbot/internal/domain"
)

const maxTitleLen = 255

// SessionStore is the persistence behind session management.
type SessionStore interface {
	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	ListSessions(ctx context.Context, userID string) ([]domain.Session, error)
	RenameSession(ctx context.Context, sessionID, title string, at time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error
	ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
}

// SessionService manages a user's chat sessions. Every operation is scoped to
// the calling user.
type SessionService struct {
	store  SessionStore
	logger *slog.Logger
}

// SessionDetail is a session with its full message log, oldest first.
type SessionDetail struct {
	domain.Session
	Messages []domain.Message `json:"messages"`
}

func NewSessionService(store SessionStore, logger *slog.Logger) (*SessionService, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{store: store, logger: logger}, nil
}

func (s *SessionService) CreateSession(ctx context.Context, userID, title string) (domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Session{}, newError(ErrorInvalidInput, "missing_user", nil)
	}
	title, err := normalizeTitle(title)
	if err != nil {
		return domain.Session{}, err
	}

	at := now()
	session := domain.Session{
		ID:        newUUID(),
		UserID:    userID,
		Title:     title,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return domain.Session{}, newError(ErrorInternal, "session_write_error", err)
	}
	s.logger.InfoContext(ctx, "session created", "session_id", session.ID)
	return session, nil
}

// ListSessions returns the user's sessions, most recently updated first.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, newError(ErrorInvalidInput, "missing_user", nil)
	}
	sessions, err := s.store.ListSessions(ctx, userID)
	if err != nil {
		return nil, newError(ErrorInternal, "session_read_error", err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return sessions, nil
}

func (s *SessionService) GetSession(ctx context.Context, userID, sessionID string) (SessionDetail, error) {
	session, err := ownedSession(ctx, s.store, userID, sessionID)
	if err != nil {
		return SessionDetail{}, err
	}
	msgs, err := s.listMessages(ctx, session.ID)
	if err != nil {
		return SessionDetail{}, err
	}
	return SessionDetail{Session: session, Messages: msgs}, nil
}

// RenameSession changes the title. The owner never changes.
func (s *SessionService) RenameSession(ctx context.Context, userID, sessionID, title string) (domain.Session, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return domain.Session{}, err
	}
	session, err := ownedSession(ctx, s.store, userID, sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	at := now()
	if err := s.store.RenameSession(ctx, session.ID, title, at); err != nil {
		return domain.Session{}, storeError(err, "session_not_found", "session_write_error")
	}
	session.Title = title
	session.UpdatedAt = at
	return session, nil
}

// DeleteSession removes the session together with all of its messages.
func (s *SessionService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	session, err := ownedSession(ctx, s.store, userID, sessionID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, session.ID); err != nil {
		return storeError(err, "session_not_found", "session_delete_error")
	}
	s.logger.InfoContext(ctx, "session deleted", "session_id", session.ID)
	return nil
}

// ListMessages returns every message of the session, oldest first.
func (s *SessionService) ListMessages(ctx context.Context, userID, sessionID string) ([]domain.Message, error) {
	session, err := ownedSession(ctx, s.store, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.listMessages(ctx, session.ID)
}

func (s *SessionService) listMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	msgs, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, newError(ErrorInternal, "message_read_error", err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > maxTitleLen {
		return "", newError(ErrorInvalidInput, "title_too_long", nil)
	}
	return title, nil
}
