package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// GatewayMetrics bundles the gateway's operational metrics: admission
// decisions, unresolved addresses, session lifecycle, and engine latency.
type GatewayMetrics struct {
	admissions      *Counter
	resolveFailures *Counter
	sessionsCreated *Counter
	sessionsEvicted *Counter
	duplicateTurns  *Counter
	engineLatency   *Histogram
	turnsDispatched *Counter
}

// NewGatewayMetrics registers the gateway metric instruments
func NewGatewayMetrics(mp *MeterProvider) (*GatewayMetrics, error) {
	meter := mp.Meter("concierge.gateway")

	admissions, err := NewCounter(meter, "gateway_admissions_total", "Admission decisions by outcome and resource", "{decision}")
	if err != nil {
		return nil, err
	}
	resolveFailures, err := NewCounter(meter, "gateway_resolve_failures_total", "Inbound contacts with no tenant binding", "{request}")
	if err != nil {
		return nil, err
	}
	sessionsCreated, err := NewCounter(meter, "gateway_sessions_created_total", "Sessions created", "{session}")
	if err != nil {
		return nil, err
	}
	sessionsEvicted, err := NewCounter(meter, "gateway_sessions_evicted_total", "Sessions evicted on idle timeout", "{session}")
	if err != nil {
		return nil, err
	}
	duplicateTurns, err := NewCounter(meter, "gateway_duplicate_turns_total", "Redelivered turns suppressed by dedup", "{turn}")
	if err != nil {
		return nil, err
	}
	engineLatency, err := NewHistogram(meter, "gateway_engine_latency_seconds", "Conversation engine round-trip latency", "s")
	if err != nil {
		return nil, err
	}
	turnsDispatched, err := NewCounter(meter, "gateway_turns_dispatched_total", "Turns forwarded to the conversation engine", "{turn}")
	if err != nil {
		return nil, err
	}

	return &GatewayMetrics{
		admissions:      admissions,
		resolveFailures: resolveFailures,
		sessionsCreated: sessionsCreated,
		sessionsEvicted: sessionsEvicted,
		duplicateTurns:  duplicateTurns,
		engineLatency:   engineLatency,
		turnsDispatched: turnsDispatched,
	}, nil
}

// RecordAdmission counts one admission decision
func (m *GatewayMetrics) RecordAdmission(ctx context.Context, decision, resource string) {
	m.admissions.Inc(ctx,
		attribute.String("decision", decision),
		attribute.String("resource", resource),
	)
}

// RecordResolveFailure counts one unresolved channel address
func (m *GatewayMetrics) RecordResolveFailure(ctx context.Context, kind string) {
	m.resolveFailures.Inc(ctx, attribute.String("channel_kind", kind))
}

// RecordSessionCreated counts one created session
func (m *GatewayMetrics) RecordSessionCreated(ctx context.Context, kind string) {
	m.sessionsCreated.Inc(ctx, attribute.String("channel_kind", kind))
}

// RecordSessionsEvicted counts idle-timeout evictions
func (m *GatewayMetrics) RecordSessionsEvicted(ctx context.Context, n int64) {
	m.sessionsEvicted.Add(ctx, n)
}

// RecordDuplicateTurn counts one suppressed redelivery
func (m *GatewayMetrics) RecordDuplicateTurn(ctx context.Context, kind string) {
	m.duplicateTurns.Inc(ctx, attribute.String("channel_kind", kind))
}

// RecordEngineCall records one engine round trip
func (m *GatewayMetrics) RecordEngineCall(ctx context.Context, d time.Duration, outcome string) {
	m.turnsDispatched.Inc(ctx, attribute.String("outcome", outcome))
	m.engineLatency.RecordDuration(ctx, d, attribute.String("outcome", outcome))
}
