package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gynecology-chatbot/internal/domain"
)

type fakeSender struct {
	configured bool
	reply      string
	err        error
	captured   []domain.ChatMessage
	deadline   time.Time
	block      bool
}

func (f *fakeSender) Configured() bool { return f.configured }

func (f *fakeSender) Chat(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	f.captured = messages
	f.deadline, _ = ctx.Deadline()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func TestNewAdapter_Validates(t *testing.T) {
	_, err := NewAdapter(" ", &fakeSender{}, time.Second)
	require.ErrorContains(t, err, "name")

	_, err = NewAdapter("chatgpt", nil, time.Second)
	require.ErrorContains(t, err, "nil")

	a, err := NewAdapter("chatgpt", &fakeSender{}, 0)
	require.NoError(t, err)
	require.Equal(t, DefaultTimeout, a.timeout)
}

func TestAdapter_ConfiguredFollowsSender(t *testing.T) {
	a, err := NewAdapter("chatgpt", &fakeSender{configured: true}, time.Second)
	require.NoError(t, err)
	require.True(t, a.Configured())

	a, err = NewAdapter("chatgpt", &fakeSender{}, time.Second)
	require.NoError(t, err)
	require.False(t, a.Configured())
}

func TestAdapter_Send_BuildsConversation(t *testing.T) {
	sender := &fakeSender{configured: true, reply: "take care"}
	a, err := NewAdapter("chatgpt", sender, time.Second)
	require.NoError(t, err)

	out, err := a.Send(context.Background(), "I feel pain", []domain.ChatMessage{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi, how can I help?"},
	})
	require.NoError(t, err)
	require.Equal(t, "take care", out)

	require.Len(t, sender.captured, 4)
	require.Equal(t, domain.ChatRoleSystem, sender.captured[0].Role)
	require.Equal(t, SystemInstruction(), sender.captured[0].Content)
	require.Equal(t, "hello", sender.captured[1].Content)
	require.Equal(t, "assistant", sender.captured[2].Role)
	require.Equal(t, domain.ChatMessage{Role: "user", Content: "I feel pain"}, sender.captured[3])
	require.False(t, sender.deadline.IsZero())
}

func TestAdapter_Send_WrapsErrors(t *testing.T) {
	cause := errors.New("unexpected status 401")
	a, err := NewAdapter("grok", &fakeSender{configured: true, err: cause}, time.Second)
	require.NoError(t, err)

	_, err = a.Send(context.Background(), "hi", nil)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "grok", perr.Provider)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "grok")
}

func TestAdapter_Send_EmptyReplyIsAFailure(t *testing.T) {
	a, err := NewAdapter("gemini", &fakeSender{configured: true, reply: "  "}, time.Second)
	require.NoError(t, err)

	_, err = a.Send(context.Background(), "hi", nil)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Contains(t, err.Error(), "empty reply")
}

func TestAdapter_Send_TimeoutIsAProviderError(t *testing.T) {
	a, err := NewAdapter("chatgpt", &fakeSender{configured: true, block: true}, 20*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	_, err = a.Send(context.Background(), "hi", nil)
	require.Less(t, time.Since(start), time.Second)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuildConversation_DoesNotAliasHistory(t *testing.T) {
	history := make([]domain.ChatMessage, 1, 8)
	history[0] = domain.ChatMessage{Role: "user", Content: "a"}

	msgs := BuildConversation("b", history)
	require.Len(t, msgs, 3)
	msgs[1].Content = "changed"
	require.Equal(t, "a", history[0].Content)
}

func TestSystemInstruction_Persona(t *testing.T) {
	content := SystemInstruction()
	require.Contains(t, content, "virtual gynecology assistant")
	require.Contains(t, content, "Never provide a definitive diagnosis")
	require.Contains(t, content, "healthcare provider")
	require.Contains(t, content, "supportive")
}
