package usecase

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gynecology-chatbot/internal/assistant"
	"gynecology-chatbot/internal/domain"
)

// memStore is an in-memory store with the same ordering semantics as the
// DynamoDB repository. ops records every call in order.
type memStore struct {
	sessions map[string]domain.Session
	messages map[string][]domain.Message
	ops      []string

	getErr     error
	appendErrs []error
	touchErr   error
	recentErr  error
	listErr    error
	createErr  error
	renameErr  error
	deleteErr  error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[string]domain.Session{},
		messages: map[string][]domain.Message{},
	}
}

func (m *memStore) addSession(id, userID string) domain.Session {
	s := domain.Session{ID: id, UserID: userID, Title: "t", CreatedAt: fixedNow, UpdatedAt: fixedNow}
	m.sessions[id] = s
	return s
}

func (m *memStore) seedMessages(sessionID string, n int) {
	for i := 0; i < n; i++ {
		typ := domain.MessageTypeUser
		if i%2 == 1 {
			typ = domain.MessageTypeBot
		}
		m.messages[sessionID] = append(m.messages[sessionID], domain.Message{
			ID:        fmt.Sprintf("seed-%02d", i),
			SessionID: sessionID,
			Type:      typ,
			Text:      fmt.Sprintf("msg %d", i),
			CreatedAt: fixedNow.Add(-time.Hour + time.Duration(i)*time.Second),
		})
	}
}

func (m *memStore) CreateSession(_ context.Context, s domain.Session) error {
	m.ops = append(m.ops, "CreateSession")
	if m.createErr != nil {
		return m.createErr
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	m.ops = append(m.ops, "GetSession")
	if m.getErr != nil {
		return domain.Session{}, m.getErr
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.Session{}, fmt.Errorf("memstore: %w", domain.ErrNotFound)
	}
	return s, nil
}

func (m *memStore) ListSessions(_ context.Context, userID string) ([]domain.Session, error) {
	m.ops = append(m.ops, "ListSessions")
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memStore) RenameSession(_ context.Context, sessionID, title string, at time.Time) error {
	m.ops = append(m.ops, "RenameSession")
	if m.renameErr != nil {
		return m.renameErr
	}
	s := m.sessions[sessionID]
	s.Title = title
	s.UpdatedAt = at
	m.sessions[sessionID] = s
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, sessionID string) error {
	m.ops = append(m.ops, "DeleteSession")
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.sessions, sessionID)
	delete(m.messages, sessionID)
	return nil
}

func (m *memStore) ListMessages(_ context.Context, sessionID string) ([]domain.Message, error) {
	m.ops = append(m.ops, "ListMessages")
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]domain.Message(nil), m.messages[sessionID]...), nil
}

func (m *memStore) RecentMessages(_ context.Context, sessionID string, limit int) ([]domain.Message, error) {
	m.ops = append(m.ops, "RecentMessages")
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	msgs := m.messages[sessionID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.Message(nil), msgs...), nil
}

func (m *memStore) AppendMessage(_ context.Context, msg domain.Message) error {
	m.ops = append(m.ops, "AppendMessage:"+string(msg.Type))
	if len(m.appendErrs) > 0 {
		err := m.appendErrs[0]
		m.appendErrs = m.appendErrs[1:]
		if err != nil {
			return err
		}
	}
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	return nil
}

func (m *memStore) TouchSession(_ context.Context, sessionID string, at time.Time) error {
	m.ops = append(m.ops, "TouchSession")
	if m.touchErr != nil {
		return m.touchErr
	}
	s := m.sessions[sessionID]
	s.UpdatedAt = at
	m.sessions[sessionID] = s
	return nil
}

type fakeResponder struct {
	resp      assistant.Response
	calls     int
	userTexts []string
	histories [][]domain.ChatMessage
	onCall    func()
}

func (f *fakeResponder) GetResponse(_ context.Context, userText string, history []domain.ChatMessage) assistant.Response {
	f.calls++
	f.userTexts = append(f.userTexts, userText)
	f.histories = append(f.histories, history)
	if f.onCall != nil {
		f.onCall()
	}
	return f.resp
}

var fixedNow = time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC)

// stubClock pins now and newUUID for the duration of a test.
func stubClock(t *testing.T) {
	t.Helper()
	origNow, origUUID := now, newUUID
	n := 0
	now = func() time.Time { return fixedNow }
	newUUID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	t.Cleanup(func() {
		now, newUUID = origNow, origUUID
	})
}

func expectError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}
