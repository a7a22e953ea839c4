package flow

import (
	"errors"
	"fmt"
)

// ValidationError is a local validation failure. It never causes a remote
// call and never advances a flow.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a local validation failure, as
// opposed to an error surfaced from the remote identity service.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// ErrAccountNotFound replaces the service's invalid-credentials message on
// sign-in, and only there. Any other service error passes through verbatim.
var ErrAccountNotFound = errors.New("No account found with this email address")

// ErrWrongStep rejects a submission that does not match the flow's current
// step; steps can only be taken in order.
var ErrWrongStep = errors.New("submission does not match the current step")
