package shared

// Error codes shared across bounded contexts. The HTTP layer maps each code
// to a status; see dto.GetHTTPStatus.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidSource       = "INVALID_SOURCE"
	CodeMigrationInProgress = "MIGRATION_IN_PROGRESS"
)

// DomainError is an error carrying a stable, client-facing code
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError returns a DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}
