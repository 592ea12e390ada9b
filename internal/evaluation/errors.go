package evaluation

import (
	"fmt"
	"strings"
)

const (
	// DefaultServiceMessage is surfaced when the service gives no detail.
	DefaultServiceMessage = "An unknown error occurred during analysis."
	// ValidationMessage is shown to users who left an input empty.
	ValidationMessage = "Please provide a prompt and select both submission files."

	transportUnreachable = "unable to reach the evaluation service"
	transportUnreadable  = "evaluation service returned an unreadable response"
)

// ValidationError reports missing inputs. No network call is made.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ValidationMessage
	}
	return fmt.Sprintf("%s (missing: %s)", ValidationMessage, strings.Join(e.Fields, ", "))
}

// ServiceError reports a non-success HTTP status from the evaluation service.
type ServiceError struct {
	StatusCode int
	Detail     string
}

// NewServiceError builds a ServiceError, falling back to the default message.
func NewServiceError(status int, detail string) *ServiceError {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = DefaultServiceMessage
	}
	return &ServiceError{StatusCode: status, Detail: detail}
}

func (e *ServiceError) Error() string {
	if e.Detail == "" {
		return DefaultServiceMessage
	}
	return e.Detail
}

// TransportError reports a network failure or an unparsable response body.
type TransportError struct {
	Message string
	Err     error
}

// NewUnreachableError wraps a network failure.
func NewUnreachableError(err error) *TransportError {
	return &TransportError{Message: transportUnreachable, Err: err}
}

// NewUnreadableError wraps a body decoding failure.
func NewUnreadableError(err error) *TransportError {
	return &TransportError{Message: transportUnreadable, Err: err}
}

func (e *TransportError) Error() string {
	if e.Message == "" {
		return transportUnreachable
	}
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
