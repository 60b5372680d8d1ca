package extraction

import "fmt"

// Error codes for extraction response handling.
const (
	CodeParseError      = "PARSE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeSchemaError     = "SCHEMA_ERROR"
)

// Error describes why a model response could not be turned into typed data.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func parseError(message string, cause error) *Error {
	return &Error{Code: CodeParseError, Message: message, Cause: cause}
}

func validationError(message string) *Error {
	return &Error{Code: CodeValidationError, Message: message}
}

func schemaError(message string) *Error {
	return &Error{Code: CodeSchemaError, Message: message}
}
