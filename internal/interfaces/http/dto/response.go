package dto

import "time"

// Response represents a standard API response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// NewErrorResponseWithRequestID creates an error response carrying the
// request ID for correlation with logs
func NewErrorResponseWithRequestID(code, message, requestID string) Response {
	resp := NewErrorResponse(code, message)
	resp.RequestID = requestID
	return resp
}

// RegisterBindingRequest provisions a channel address for a tenant
type RegisterBindingRequest struct {
	TenantID string `json:"tenant_id" binding:"required,uuid"`
	Address  string `json:"address" binding:"required,channel_address"`
	Kind     string `json:"kind" binding:"required,oneof=voice messaging web"`
}

// ReleaseBindingRequest withdraws a channel address from service
type ReleaseBindingRequest struct {
	Address string `json:"address" binding:"required,channel_address"`
	Kind    string `json:"kind" binding:"required,oneof=voice messaging web"`
}

// BindingResponse describes one directory entry
type BindingResponse struct {
	Address   string    `json:"address"`
	Kind      string    `json:"kind"`
	TenantID  string    `json:"tenant_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// DirectoryResponse is the directory introspection payload
type DirectoryResponse struct {
	BuiltAt time.Time        `json:"built_at"`
	Entries []DirectoryEntry `json:"entries"`
}

// DirectoryEntry is one resolved address in the snapshot
type DirectoryEntry struct {
	Address  string `json:"address"`
	Kind     string `json:"kind"`
	TenantID string `json:"tenant_id"`
}

// UsageResponse reports a tenant's consumption for a billing period
type UsageResponse struct {
	TenantID string         `json:"tenant_id"`
	Period   string         `json:"period"`
	Counters []UsageCounter `json:"counters"`
}

// UsageCounter is one resource tally
type UsageCounter struct {
	Resource  string    `json:"resource"`
	Used      int64     `json:"used"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessagingWebhookRequest is the inbound payload from the messaging provider
type MessagingWebhookRequest struct {
	MessageID string `json:"message_id" binding:"required"`
	From      string `json:"from" binding:"required"`
	To        string `json:"to" binding:"required"`
	Body      string `json:"body" binding:"required"`
}

// VoiceWebhookRequest is the inbound payload from the telephony provider
type VoiceWebhookRequest struct {
	EventID    string `json:"event_id" binding:"required"`
	CallID     string `json:"call_id" binding:"required"`
	Caller     string `json:"caller" binding:"required"`
	Called     string `json:"called" binding:"required"`
	Transcript string `json:"transcript"`
}

// WebWebhookRequest is the inbound payload from the web chat widget
type WebWebhookRequest struct {
	MessageID string `json:"message_id" binding:"required"`
	SiteKey   string `json:"site_key" binding:"required"`
	VisitorID string `json:"visitor_id" binding:"required"`
	Body      string `json:"body" binding:"required"`
}

// TurnResponse is the reply for messaging and web turns
type TurnResponse struct {
	Action  string `json:"action"`
	Reply   string `json:"reply,omitempty"`
	Session string `json:"session,omitempty"`
}

// VoiceDirective is the call-control document returned to the telephony
// provider. Exactly one of Say/Transfer/Hangup combinations applies per the
// action field.
type VoiceDirective struct {
	Action   string `json:"action"` // say, transfer, hangup
	Say      string `json:"say,omitempty"`
	Transfer string `json:"transfer,omitempty"`
}

// HealthResponse is the health check payload
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}
