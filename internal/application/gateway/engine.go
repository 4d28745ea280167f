package gateway

import (
	"context"
	"time"

	"github.com/concierge/gateway/internal/domain/directory"
	"github.com/concierge/gateway/internal/domain/session"
	"github.com/concierge/gateway/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Directive is an optional instruction the conversation engine attaches to
// a reply
type Directive string

const (
	DirectiveNone     Directive = ""
	DirectiveTransfer Directive = "TRANSFER"
	DirectiveEnd      Directive = "END"
)

// EngineTurn is the normalized turn forwarded to the conversation engine
type EngineTurn struct {
	TenantID    uuid.UUID
	SessionID   uuid.UUID
	ChannelKind directory.ChannelKind
	Message     string
	PriorState  session.State
	TurnCount   int
	Greeting    string
	Locale      string
}

// EngineReply is the engine's answer for one turn
type EngineReply struct {
	Text      string
	Directive Directive
}

// ConversationEngine is the external AI collaborator. It is opaque and
// possibly slow; callers bound it with a context deadline.
type ConversationEngine interface {
	Respond(ctx context.Context, turn EngineTurn) (EngineReply, error)
}

// RetryingEngine wraps an engine with a bounded retry. Engine calls do not
// mutate gateway state, so retrying a failed call cannot double-apply
// anything; quota was reserved exactly once before the first attempt.
type RetryingEngine struct {
	inner    ConversationEngine
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

// NewRetryingEngine wraps inner with up to attempts tries
func NewRetryingEngine(inner ConversationEngine, attempts int, backoff time.Duration, logger *zap.Logger) *RetryingEngine {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryingEngine{inner: inner, attempts: attempts, backoff: backoff, logger: logger}
}

// Respond delegates to the wrapped engine, retrying transient failures
func (e *RetryingEngine) Respond(ctx context.Context, turn EngineTurn) (EngineReply, error) {
	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		reply, err := e.inner.Respond(ctx, turn)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		e.logger.Warn("conversation engine call failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < e.attempts {
			select {
			case <-ctx.Done():
				return EngineReply{}, shared.ErrDownstreamUnavailable
			case <-time.After(e.backoff * time.Duration(attempt)):
			}
		}
	}
	e.logger.Error("conversation engine unavailable", zap.Error(lastErr))
	return EngineReply{}, shared.ErrDownstreamUnavailable
}
