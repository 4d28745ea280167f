package session

import (
	"time"

	"github.com/concierge/gateway/internal/domain/directory"
	"github.com/concierge/gateway/internal/domain/shared"
	"github.com/google/uuid"
)

// State is the lifecycle state of a conversation session
type State string

const (
	// StateGreeting is the initial state before the first substantive turn
	StateGreeting State = "GREETING"

	// StateActive is an in-progress conversation
	StateActive State = "ACTIVE"

	// StateTransferRequested means the contact asked for a human; the
	// session is retired after the provider bridges the call
	StateTransferRequested State = "TRANSFER_REQUESTED"

	// StateEnded is terminal. A reused session key after this state creates
	// a brand-new session, never a resurrection.
	StateEnded State = "ENDED"
)

// String returns the string representation of State
func (s State) String() string {
	return string(s)
}

// Terminal returns true for states that accept no further turns
func (s State) Terminal() bool {
	return s == StateEnded || s == StateTransferRequested
}

// TurnOutcome describes what the conversation engine (or intent detection)
// concluded about a turn
type TurnOutcome string

const (
	// OutcomeContinue is an ordinary conversational turn
	OutcomeContinue TurnOutcome = "CONTINUE"

	// OutcomeTransfer means the contact asked for a human
	OutcomeTransfer TurnOutcome = "TRANSFER"

	// OutcomeEnd means the conversation reached a terminal outcome
	// (farewell, completed booking)
	OutcomeEnd TurnOutcome = "END"
)

// Session tracks one multi-turn conversation for one contact on one channel.
// Tenant identity is fixed at creation and never changes for the session's
// lifetime.
type Session struct {
	Key            string
	SessionID      uuid.UUID
	TenantID       uuid.UUID
	ChannelKind    directory.ChannelKind
	State          State
	TurnCount      int
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// New creates a session in GREETING for the given contact
func New(key string, tenantID uuid.UUID, kind directory.ChannelKind) (*Session, error) {
	if key == "" {
		return nil, shared.NewDomainError("INVALID_SESSION_KEY", "Session key cannot be empty")
	}
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("INVALID_CHANNEL_KIND", "Invalid channel kind")
	}
	now := time.Now()
	return &Session{
		Key:            key,
		SessionID:      uuid.New(),
		TenantID:       tenantID,
		ChannelKind:    kind,
		State:          StateGreeting,
		CreatedAt:      now,
		LastActivityAt: now,
	}, nil
}

// Advance applies a turn outcome to the session state machine and returns
// the next state. Terminal states reject further turns.
func (s *Session) Advance(outcome TurnOutcome) (State, error) {
	if s.State.Terminal() {
		return s.State, shared.ErrInvalidState
	}

	now := time.Now()
	s.TurnCount++
	s.LastActivityAt = now

	switch outcome {
	case OutcomeContinue:
		s.State = StateActive
	case OutcomeTransfer:
		s.State = StateTransferRequested
	case OutcomeEnd:
		s.State = StateEnded
	default:
		return s.State, shared.NewDomainError("INVALID_TURN_OUTCOME", "Unknown turn outcome")
	}

	return s.State, nil
}

// Expire retires an idle session. This is a cancellation path, not an
// error: any in-flight turn completes against the old record.
func (s *Session) Expire() {
	if !s.State.Terminal() {
		s.State = StateEnded
	}
}

// IdleSince reports how long the session has been without a turn
func (s *Session) IdleSince(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}

// BelongsTo verifies the session's fixed tenant identity
func (s *Session) BelongsTo(tenantID uuid.UUID) bool {
	return s.TenantID == tenantID
}
