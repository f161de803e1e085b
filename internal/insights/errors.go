package insights

import (
	"errors"
	"fmt"
)

// ErrExternalService marks every failure of the AI and analytics backend
var ErrExternalService = errors.New("external service unavailable")

// ServiceError carries a message that can be shown to the user as is; the
// cause is kept for logs.
type ServiceError struct {
	Op      string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *ServiceError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrExternalService, e.Cause}
	}
	return []error{ErrExternalService}
}

// statusError is an HTTP failure from the backend
type statusError struct {
	code   int
	detail string
}

func (e *statusError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.code, e.detail)
	}
	return fmt.Sprintf("backend returned status %d", e.code)
}
