package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"gynecology-chatbot/internal/domain"
)

const (
	FallbackProvider = "fallback"
	FallbackText     = "I'm sorry, I'm having trouble connecting to my knowledge services. Please try again later."
)

// Response is the orchestrator outcome. Provider is FallbackProvider when no
// provider produced a reply.
type Response struct {
	Text     string
	Provider string
}

// Orchestrator tries providers strictly in order, one at a time, and returns
// the first successful reply.
type Orchestrator struct {
	providers []Provider
	logger    *slog.Logger
}

// NewOrchestrator keeps providers in the given priority order. Names must be
// unique.
func NewOrchestrator(logger *slog.Logger, providers ...Provider) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]struct{}, len(providers))
	for i, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("assistant: provider at position %d is nil", i)
		}
		if _, dup := seen[p.Name()]; dup {
			return nil, fmt.Errorf("assistant: duplicate provider %q", p.Name())
		}
		seen[p.Name()] = struct{}{}
	}
	return &Orchestrator{providers: slices.Clone(providers), logger: logger}, nil
}

// Providers returns the provider names in priority order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.providers))
	for i, p := range o.providers {
		names[i] = p.Name()
	}
	return names
}

// GetResponse never fails: provider errors are logged and the next provider
// is tried; when none succeeds the fixed fallback reply is returned.
func (o *Orchestrator) GetResponse(ctx context.Context, userText string, history []domain.ChatMessage) Response {
	for _, p := range o.providers {
		if !p.Configured() {
			o.logger.DebugContext(ctx, "provider not configured, skipping", "provider", p.Name())
			continue
		}

		reply, err := p.Send(ctx, userText, slices.Clone(history))
		if err == nil {
			return Response{Text: reply, Provider: p.Name()}
		}

		var perr *ProviderError
		if !errors.As(err, &perr) {
			perr = &ProviderError{Provider: p.Name(), Err: err}
		}
		o.logger.WarnContext(ctx, "provider call failed", "provider", perr.Provider, "err", perr.Err)
	}

	o.logger.WarnContext(ctx, "all providers unavailable, using fallback reply", "providers", o.Providers())
	return Response{Text: FallbackText, Provider: FallbackProvider}
}
