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

// Common domain errors
var (
	ErrNotFound      = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput  = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidTenant = NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	ErrInvalidPeriod = NewDomainError("INVALID_PERIOD", "Unknown metrics period")
	ErrRunInProgress = NewDomainError("RUN_IN_PROGRESS", "A recalculation run is already in progress")
	ErrInvalidState  = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)
