// Package handler exposes the chat use cases as an API Gateway proxy
// integration.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"gynecology-chatbot/internal/domain"
	"gynecology-chatbot/internal/usecase"
)

const (
	resourceHealth      = "/health"
	resourceSessions    = "/chat-sessions"
	resourceSession     = "/chat-sessions/{sessionId}"
	resourceMessages    = "/chat-sessions/{sessionId}/messages"
	resourceSendMessage = "/chat-sessions/{sessionId}/send-message"

	headerCorrelationID = "X-Correlation-Id"

	codeUnauthorized     = "UNAUTHORIZED"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

type ChatUseCase interface {
	SendMessage(ctx context.Context, in usecase.SendMessageInput) (usecase.SendMessageOutput, error)
}

type SessionUseCase interface {
	CreateSession(ctx context.Context, userID, title string) (domain.Session, error)
	ListSessions(ctx context.Context, userID string) ([]domain.Session, error)
	GetSession(ctx context.Context, userID, sessionID string) (usecase.SessionDetail, error)
	RenameSession(ctx context.Context, userID, sessionID, title string) (domain.Session, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
	ListMessages(ctx context.Context, userID, sessionID string) ([]domain.Message, error)
}

type Handler struct {
	chat     ChatUseCase
	sessions SessionUseCase
	logger   *slog.Logger
}

type createSessionRequest struct {
	Title string `json:"title"`
}

type renameSessionRequest struct {
	Title *string `json:"title"`
}

type sendMessageRequest struct {
	Text      string `json:"text"`
	PainScale *int   `json:"pain_scale"`
}

type sessionsResponse struct {
	Sessions []domain.Session `json:"sessions"`
}

type messagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(chat ChatUseCase, sessions SessionUseCase, logger *slog.Logger) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("handler: session use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chat: chat, sessions: sessions, logger: logger}, nil
}

// Handle is the Lambda entry point. Failures are always rendered as HTTP
// responses; the returned error is reserved for the runtime and is nil.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID)

	resource, sessionID := route(req)
	resp := h.dispatch(ctx, logger, req, resource, sessionID)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[headerCorrelationID] = correlationID

	logger.InfoContext(ctx, "request handled",
		"method", req.HTTPMethod,
		"resource", resource,
		"status", resp.StatusCode,
	)
	return resp, nil
}

func (h *Handler) dispatch(ctx context.Context, logger *slog.Logger, req events.APIGatewayProxyRequest, resource, sessionID string) events.APIGatewayProxyResponse {
	method := strings.ToUpper(req.HTTPMethod)

	if resource == resourceHealth {
		if method != http.MethodGet {
			return errorJSON(http.StatusMethodNotAllowed, codeMethodNotAllowed, "")
		}
		return jsonResponse(http.StatusOK, healthResponse{Status: "ok"})
	}

	allowed, known := routes[resource]
	if !known {
		return errorJSON(http.StatusNotFound, string(usecase.ErrorNotFound), "route_not_found")
	}
	if !allowed[method] {
		return errorJSON(http.StatusMethodNotAllowed, codeMethodNotAllowed, "")
	}

	userID := callerID(req)
	if userID == "" {
		return errorJSON(http.StatusUnauthorized, codeUnauthorized, "missing_identity")
	}

	switch {
	case resource == resourceSessions && method == http.MethodPost:
		var body createSessionRequest
		if err := decodeBody(req, &body, true); err != nil {
			return invalidBody()
		}
		s, err := h.sessions.CreateSession(ctx, userID, body.Title)
		if err != nil {
			return h.errorFromUseCase(ctx, logger, err)
		}
		return jsonResponse(http.StatusCreated, s)

	case resource == resourceSessions && method == http.MethodGet:
		sessions, err := h.sessions.ListSessions(ctx, userID)
		if err != nil {
			return h.errorFromUseCase(ctx, logger, err)
		}
		return jsonResponse(http.StatusOK, sessionsResponse{Sessions: sessions})

	case resource == resourceSession && method == http.MethodGet:
		detail, err := h.sessions.GetSession(ctx, userID, sessionID)
		if err != nil {
			return h.errorFromUseCase(ctx, logger, err)
		}
		return jsonResponse(http.StatusOK, detail)

	case resource == resourceSession && method == http.MethodPatch:
		var body renameSessionRequest
		if err := decodeBody(req, &body, false); err != nil {
			return invalidBody()
		}
		if body.Title == nil {
			return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "missing_title")
		}
		s, err := h.sessions.RenameSession(ctx, userID, sessionID, *body.Title)
		if err != nil {
			return h.errorFromUseCase(ctx, logger, err)
		}
		return jsonResponse(http.StatusOK, s)

	case resource == resourceSession && method == http.MethodDelete:
		if err := h.sessions.DeleteSession(ctx, userID, sessionID); err != nil {
			return h.errorFromUseCase(ctx, logger, err)
		}
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent, Headers: map[string]string{}}

	case resource == resourceMessages:
		msgs, err := h.sessions.ListMessages(ctx, userID, sessionID)
		if err != nil {
			return h.errorFromUseCase(ctx, logger, err)
		}
		return jsonResponse(http.StatusOK, messagesResponse{Messages: msgs})

	default: // resourceSendMessage, POST
		var body sendMessageRequest
		if err := decodeBody(req, &body, false); err != nil {
			return invalidBody()
		}
		out, err := h.chat.SendMessage(ctx, usecase.SendMessageInput{
			UserID:    userID,
			SessionID: sessionID,
			Text:      body.Text,
			PainScale: body.PainScale,
		})
		if err != nil {
			return h.errorFromUseCase(ctx, logger, err)
		}
		return jsonResponse(http.StatusOK, out)
	}
}

var routes = map[string]map[string]bool{
	resourceSessions:    {http.MethodGet: true, http.MethodPost: true},
	resourceSession:     {http.MethodGet: true, http.MethodPatch: true, http.MethodDelete: true},
	resourceMessages:    {http.MethodGet: true},
	resourceSendMessage: {http.MethodPost: true},
}

// route returns the resource template and session id. API Gateway fills
// Resource and PathParameters; a greedy proxy resource falls back to Path.
func route(req events.APIGatewayProxyRequest) (string, string) {
	if req.Resource != "" && !strings.Contains(req.Resource, "{proxy+}") {
		return req.Resource, strings.TrimSpace(req.PathParameters["sessionId"])
	}

	parts := strings.Split(strings.Trim(req.Path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "health":
		return resourceHealth, ""
	case len(parts) == 1 && parts[0] == "chat-sessions":
		return resourceSessions, ""
	case len(parts) == 2 && parts[0] == "chat-sessions":
		return resourceSession, parts[1]
	case len(parts) == 3 && parts[0] == "chat-sessions" && parts[2] == "messages":
		return resourceMessages, parts[1]
	case len(parts) == 3 && parts[0] == "chat-sessions" && parts[2] == "send-message":
		return resourceSendMessage, parts[1]
	}
	return req.Path, ""
}

// callerID reads the authenticated user from the authorizer context: a
// Lambda authorizer's principalId, else a Cognito claims sub.
func callerID(req events.APIGatewayProxyRequest) string {
	auth := req.RequestContext.Authorizer
	if auth == nil {
		return ""
	}
	if id, ok := auth["principalId"].(string); ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	if claims, ok := auth["claims"].(map[string]interface{}); ok {
		if sub, ok := claims["sub"].(string); ok {
			return strings.TrimSpace(sub)
		}
	}
	return ""
}

func decodeBody(req events.APIGatewayProxyRequest, v any, allowEmpty bool) error {
	body := req.Body
	if req.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return err
		}
		body = string(raw)
	}
	if strings.TrimSpace(body) == "" {
		if allowEmpty {
			return nil
		}
		return errors.New("empty body")
	}
	return json.Unmarshal([]byte(body), v)
}

func invalidBody() events.APIGatewayProxyResponse {
	return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_json")
}

func (h *Handler) errorFromUseCase(ctx context.Context, logger *slog.Logger, err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		logger.ErrorContext(ctx, "unexpected error", "err", err)
		return errorJSON(http.StatusInternalServerError, string(usecase.ErrorInternal), "")
	}

	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return errorJSON(http.StatusBadRequest, string(ucErr.Code), ucErr.Reason)
	case usecase.ErrorNotFound:
		return errorJSON(http.StatusNotFound, string(ucErr.Code), ucErr.Reason)
	default:
		logger.ErrorContext(ctx, "request failed", "reason", ucErr.Reason, "err", ucErr.Err)
		return errorJSON(http.StatusInternalServerError, string(usecase.ErrorInternal), ucErr.Reason)
	}
}

func errorJSON(status int, code, reason string) events.APIGatewayProxyResponse {
	return jsonResponse(status, errorResponse{Error: code, Reason: reason})
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
