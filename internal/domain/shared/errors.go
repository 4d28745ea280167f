package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors. TenantNotFound and QuotaDenied are recovered into
// user-visible responses at the HTTP edge; SessionConflict and
// DownstreamUnavailable abort the current turn.
var (
	ErrNotFound              = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists         = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput          = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState          = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrTenantNotFound        = NewDomainError("TENANT_NOT_FOUND", "No tenant is bound to this channel address")
	ErrQuotaDenied           = NewDomainError("QUOTA_DENIED", "Usage quota exhausted for this resource")
	ErrSessionConflict       = NewDomainError("SESSION_CONFLICT", "Session belongs to a different tenant")
	ErrDownstreamUnavailable = NewDomainError("DOWNSTREAM_UNAVAILABLE", "A required downstream service is unreachable")
	ErrUnauthorized          = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden             = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
)
