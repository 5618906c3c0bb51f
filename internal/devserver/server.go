// Package devserver serves the Lambda handler over plain HTTP for local
// development. Each request is converted into the API Gateway proxy event the
// handler receives in production.
package devserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// HeaderUserID carries the caller identity locally, standing in for the API
// Gateway authorizer.
const HeaderUserID = "X-User-Id"

// LambdaHandler is the signature of handler.Handler.Handle.
type LambdaHandler func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// New returns an echo server routing the API surface to h.
func New(h LambdaHandler) (*echo.Echo, error) {
	if h == nil {
		return nil, errors.New("devserver: handler must not be nil")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	bridge := Bridge(h)
	e.GET("/health", bridge)
	e.POST("/chat-sessions", bridge)
	e.GET("/chat-sessions", bridge)
	e.GET("/chat-sessions/:sessionId", bridge)
	e.PATCH("/chat-sessions/:sessionId", bridge)
	e.DELETE("/chat-sessions/:sessionId", bridge)
	e.GET("/chat-sessions/:sessionId/messages", bridge)
	e.POST("/chat-sessions/:sessionId/send-message", bridge)
	return e, nil
}

// Bridge adapts a LambdaHandler to an echo handler.
func Bridge(h LambdaHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		req, err := toProxyRequest(c)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		resp, err := h(c.Request().Context(), req)
		if err != nil {
			return err
		}
		return writeProxyResponse(c, resp)
	}
}

func toProxyRequest(c echo.Context) (events.APIGatewayProxyRequest, error) {
	r := c.Request()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}

	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		headers[k] = strings.Join(v, ",")
	}

	query := make(map[string]string, len(r.URL.Query()))
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	var pathParams map[string]string
	if names := c.ParamNames(); len(names) > 0 {
		pathParams = make(map[string]string, len(names))
		for _, name := range names {
			pathParams[name] = c.Param(name)
		}
	}

	var authorizer map[string]interface{}
	if userID := strings.TrimSpace(r.Header.Get(HeaderUserID)); userID != "" {
		authorizer = map[string]interface{}{"principalId": userID}
	}

	return events.APIGatewayProxyRequest{
		Resource:              resourceTemplate(c.Path()),
		Path:                  r.URL.Path,
		HTTPMethod:            r.Method,
		Headers:               headers,
		QueryStringParameters: query,
		PathParameters:        pathParams,
		Body:                  string(body),
		RequestContext: events.APIGatewayProxyRequestContext{
			HTTPMethod: r.Method,
			Path:       r.URL.Path,
			Authorizer: authorizer,
		},
	}, nil
}

func writeProxyResponse(c echo.Context, resp events.APIGatewayProxyResponse) error {
	for k, v := range resp.Headers {
		c.Response().Header().Set(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			c.Response().Header().Add(k, v)
		}
	}
	if resp.Body == "" {
		return c.NoContent(resp.StatusCode)
	}
	c.Response().WriteHeader(resp.StatusCode)
	_, err := io.WriteString(c.Response(), resp.Body)
	return err
}

// resourceTemplate turns an echo route ("/a/:id") into an API Gateway resource
// ("/a/{id}").
func resourceTemplate(echoPath string) string {
	segments := strings.Split(echoPath, "/")
	for i, s := range segments {
		if strings.HasPrefix(s, ":") {
			segments[i] = "{" + strings.TrimPrefix(s, ":") + "}"
		}
	}
	return strings.Join(segments, "/")
}
