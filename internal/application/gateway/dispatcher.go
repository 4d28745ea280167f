package gateway

import (
	"context"
	"errors"
	"time"

	admissionapp "github.com/concierge/gateway/internal/application/admission"
	directoryapp "github.com/concierge/gateway/internal/application/directory"
	sessionapp "github.com/concierge/gateway/internal/application/session"
	"github.com/concierge/gateway/internal/domain/billing"
	"github.com/concierge/gateway/internal/domain/directory"
	"github.com/concierge/gateway/internal/domain/session"
	"github.com/concierge/gateway/internal/domain/shared"
	"github.com/concierge/gateway/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action tells the channel handler how to shape the provider response
type Action string

const (
	// ActionReply speaks or sends the reply text and keeps the session open
	ActionReply Action = "REPLY"

	// ActionTransfer bridges the contact to the tenant's human number
	ActionTransfer Action = "TRANSFER"

	// ActionEnd sends the reply and closes the conversation
	ActionEnd Action = "END"

	// ActionDeny refuses service with a channel-appropriate message
	ActionDeny Action = "DENY"

	// ActionDuplicate acknowledges a redelivered turn without effects
	ActionDuplicate Action = "DUPLICATE"
)

// InboundTurn is a normalized inbound webhook event
type InboundTurn struct {
	// ProviderEventID is the provider-assigned call-leg or message ID used
	// for duplicate suppression
	ProviderEventID string
	// SessionKey is the provider's call or thread identifier
	SessionKey string
	// Address is the dialed/destination address as delivered
	Address string
	Kind    directory.ChannelKind
	Message string
}

// TurnResult is the channel-agnostic outcome of a dispatched turn
type TurnResult struct {
	Action         Action
	Reply          string
	TransferNumber string
	TenantID       uuid.UUID
	SessionID      uuid.UUID
	SessionState   session.State
}

// DispatcherConfig holds dispatcher configuration
type DispatcherConfig struct {
	// DedupTTL is how long a provider event ID stays suppressed
	DedupTTL time.Duration
	// EngineTimeout bounds one conversation engine round trip
	EngineTimeout time.Duration
	// DeniedMessage is spoken/sent when quota denies a turn
	DeniedMessage string
	// UnavailableMessage is used when a downstream dependency fails
	UnavailableMessage string
}

// DefaultDispatcherConfig returns dispatcher defaults
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		DedupTTL:           24 * time.Hour,
		EngineTimeout:      30 * time.Second,
		DeniedMessage:      "This service is temporarily unavailable. Please contact the business directly.",
		UnavailableMessage: "We are unable to take your request right now. Please try again shortly.",
	}
}

// Dispatcher is the gateway entry point for every channel webhook. It
// composes directory resolution, admission control, and session management
// per request, and fails closed at every step: an unresolved address, a
// denied quota, or a tenant mismatch never degrades into default-tenant
// behavior.
type Dispatcher struct {
	config    DispatcherConfig
	cache     *directoryapp.Cache
	admission *admissionapp.Controller
	sessions  *sessionapp.Manager
	engine    ConversationEngine
	dedup     shared.DedupStore
	logger    *zap.Logger
	metrics   *telemetry.GatewayMetrics
}

// NewDispatcher creates a gateway dispatcher
func NewDispatcher(
	config DispatcherConfig,
	cache *directoryapp.Cache,
	admission *admissionapp.Controller,
	sessions *sessionapp.Manager,
	engine ConversationEngine,
	dedup shared.DedupStore,
	logger *zap.Logger,
	metrics *telemetry.GatewayMetrics,
) *Dispatcher {
	return &Dispatcher{
		config:    config,
		cache:     cache,
		admission: admission,
		sessions:  sessions,
		engine:    engine,
		dedup:     dedup,
		logger:    logger,
		metrics:   metrics,
	}
}

// channelResource maps a channel kind to the metered resource it consumes
func channelResource(kind directory.ChannelKind) billing.ResourceType {
	switch kind {
	case directory.ChannelVoice:
		return billing.ResourceTelephoneMinutes
	case directory.ChannelMessaging:
		return billing.ResourceMessagingTurns
	default:
		return billing.ResourceWebTurns
	}
}

// HandleTurn processes one inbound webhook turn end to end:
// dedup → resolve tenant → admit → session → engine → advance.
func (d *Dispatcher) HandleTurn(ctx context.Context, turn InboundTurn) (TurnResult, error) {
	if !turn.Kind.IsValid() {
		return TurnResult{}, shared.ErrInvalidInput
	}

	// Suppress provider redeliveries before anything is charged. MarkProcessed
	// is an atomic set-if-absent, so of two racing deliveries of the same
	// event exactly one proceeds.
	dedupKey := string(turn.Kind) + ":" + turn.SessionKey + ":" + turn.ProviderEventID
	fresh, err := d.dedup.MarkProcessed(ctx, dedupKey, d.config.DedupTTL)
	if err != nil {
		return TurnResult{Reply: d.config.UnavailableMessage}, shared.ErrDownstreamUnavailable
	}
	if !fresh {
		if d.metrics != nil {
			d.metrics.RecordDuplicateTurn(ctx, turn.Kind.String())
		}
		d.logger.Info("duplicate turn suppressed",
			zap.String("session_key", turn.SessionKey),
			zap.String("provider_event_id", turn.ProviderEventID),
		)
		return TurnResult{Action: ActionDuplicate}, nil
	}

	result, err := d.processTurn(ctx, turn)
	if err != nil {
		// The turn had no effect; release the dedup slot so a provider
		// retry is not swallowed. Quota reservations that already applied
		// stay recorded: consumption is honestly counted even on failure.
		if forgetErr := d.dedup.Forget(ctx, dedupKey); forgetErr != nil {
			d.logger.Error("failed to release dedup slot", zap.Error(forgetErr))
		}
		// Channels that must answer the contact (voice) speak this text;
		// request/response channels surface the error instead.
		if errors.Is(err, shared.ErrDownstreamUnavailable) {
			result.Reply = d.config.UnavailableMessage
		}
		return result, err
	}
	return result, nil
}

func (d *Dispatcher) processTurn(ctx context.Context, turn InboundTurn) (TurnResult, error) {
	entry, err := d.cache.Resolve(turn.Address, turn.Kind)
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordResolveFailure(ctx, turn.Kind.String())
		}
		// Provisioning gap: an address the platform does not know. Refuse
		// service; never guess a tenant.
		d.logger.Warn("no tenant bound to channel address",
			zap.String("address", directory.NormalizeAddress(turn.Address)),
			zap.String("channel_kind", turn.Kind.String()),
		)
		return TurnResult{}, shared.ErrTenantNotFound
	}

	profile := entry.Profile
	if !profile.IsServiceable() {
		return TurnResult{
			Action:   ActionDeny,
			Reply:    d.config.DeniedMessage,
			TenantID: profile.TenantID,
		}, nil
	}

	// Reserve the channel unit, then the AI interaction. Either denial
	// fails the turn closed before the engine is invoked.
	for _, resource := range []billing.ResourceType{channelResource(turn.Kind), billing.ResourceAIInteractions} {
		admitted, err := d.admission.CheckAndReserve(
			ctx, profile.TenantID, profile.PlanID, profile.IsTrial(), resource, 1,
		)
		if err != nil {
			return TurnResult{}, err
		}
		if !admitted.Admitted() {
			return TurnResult{
				Action:   ActionDeny,
				Reply:    d.config.DeniedMessage,
				TenantID: profile.TenantID,
			}, nil
		}
	}

	sess, err := d.sessions.GetOrCreate(ctx, turn.SessionKey, profile.TenantID, turn.Kind)
	if err != nil {
		return TurnResult{}, err
	}

	result := TurnResult{TenantID: profile.TenantID, SessionID: sess.SessionID}

	// The whole engine round trip runs under the session's turn lock so
	// turns for this session apply in delivery order.
	err = d.sessions.Do(turn.SessionKey, profile.TenantID, func(s *session.Session) error {
		engineCtx, cancel := context.WithTimeout(ctx, d.config.EngineTimeout)
		defer cancel()

		started := time.Now()
		reply, engineErr := d.engine.Respond(engineCtx, EngineTurn{
			TenantID:    s.TenantID,
			SessionID:   s.SessionID,
			ChannelKind: s.ChannelKind,
			Message:     turn.Message,
			PriorState:  s.State,
			TurnCount:   s.TurnCount,
			Greeting:    profile.Greeting,
			Locale:      profile.Locale,
		})
		if engineErr != nil {
			return engineErr
		}

		outcome := DetectOutcome(turn.Message, reply.Directive)
		nextState, advErr := s.Advance(outcome)
		if advErr != nil {
			return advErr
		}

		if d.metrics != nil {
			d.metrics.RecordEngineCall(ctx, time.Since(started), string(outcome))
		}

		result.Reply = reply.Text
		result.SessionState = nextState

		switch nextState {
		case session.StateTransferRequested:
			result.Action = ActionTransfer
			result.TransferNumber = profile.TransferNumber
		case session.StateEnded:
			result.Action = ActionEnd
		default:
			result.Action = ActionReply
		}
		return nil
	})
	if err != nil {
		return TurnResult{}, err
	}

	return result, nil
}
