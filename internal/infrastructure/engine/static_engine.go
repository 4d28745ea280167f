package engine

import (
	"context"

	"github.com/concierge/gateway/internal/application/gateway"
)

// StaticEngine is a canned-response engine for local development and tests.
// It greets on the first turn and echoes a generic acknowledgement after
// that; intent detection in the dispatcher still applies on top.
type StaticEngine struct {
	Acknowledgement string
}

// NewStaticEngine creates a static engine
func NewStaticEngine() *StaticEngine {
	return &StaticEngine{
		Acknowledgement: "Merci, un instant pendant que je vérifie cela pour vous.",
	}
}

// Respond returns a canned reply
func (e *StaticEngine) Respond(ctx context.Context, turn gateway.EngineTurn) (gateway.EngineReply, error) {
	if turn.TurnCount <= 1 && turn.Greeting != "" {
		return gateway.EngineReply{Text: turn.Greeting}, nil
	}
	return gateway.EngineReply{Text: e.Acknowledgement}, nil
}

// Ensure StaticEngine implements ConversationEngine
var _ gateway.ConversationEngine = (*StaticEngine)(nil)
