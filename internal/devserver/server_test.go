package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	req  events.APIGatewayProxyRequest
	resp events.APIGatewayProxyResponse
}

func (r *recordingHandler) handle(_ context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	r.req = req
	return r.resp, nil
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestBridge_TranslatesRequest(t *testing.T) {
	rec := &recordingHandler{resp: events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json", "X-Correlation-Id": "c1"},
		Body:       `{"ok":true}`,
	}}
	e, err := New(rec.handle)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chat-sessions/s-42/send-message?debug=1", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderUserID, "user-7")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `{"ok":true}`, w.Body.String())
	require.Equal(t, "c1", w.Header().Get("X-Correlation-Id"))

	got := rec.req
	require.Equal(t, "/chat-sessions/{sessionId}/send-message", got.Resource)
	require.Equal(t, "/chat-sessions/s-42/send-message", got.Path)
	require.Equal(t, http.MethodPost, got.HTTPMethod)
	require.Equal(t, map[string]string{"sessionId": "s-42"}, got.PathParameters)
	require.Equal(t, "1", got.QueryStringParameters["debug"])
	require.Equal(t, `{"text":"hi"}`, got.Body)
	require.Equal(t, "application/json", got.Headers["Content-Type"])
	require.Equal(t, "user-7", got.RequestContext.Authorizer["principalId"])
}

func TestBridge_NoUserHeaderMeansNoAuthorizer(t *testing.T) {
	rec := &recordingHandler{resp: events.APIGatewayProxyResponse{StatusCode: http.StatusUnauthorized, Body: `{}`}}
	e, err := New(rec.handle)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat-sessions", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Nil(t, rec.req.RequestContext.Authorizer)
	require.Nil(t, rec.req.PathParameters)
	require.Equal(t, "/chat-sessions", rec.req.Resource)
}

func TestBridge_EmptyBodyResponse(t *testing.T) {
	rec := &recordingHandler{resp: events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}}
	e, err := New(rec.handle)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/chat-sessions/abc", nil)
	req.Header.Set(HeaderUserID, "u")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Empty(t, w.Body.String())
	require.Equal(t, "/chat-sessions/{sessionId}", rec.req.Resource)
}

func TestResourceTemplate(t *testing.T) {
	require.Equal(t, "/health", resourceTemplate("/health"))
	require.Equal(t, "/chat-sessions/{sessionId}/messages", resourceTemplate("/chat-sessions/:sessionId/messages"))
}
