package identity

import "errors"

// MsgInvalidCredentials is the exact message the remote service returns for
// a failed password authentication. The sign-in existence probe matches on
// it and on nothing else.
const MsgInvalidCredentials = "Invalid login credentials"

// Error is a failure reported by the remote identity service. The message
// is the service's own wording and is shown to the user unmodified.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// IsInvalidCredentials reports whether err is the service's
// invalid-credentials rejection. Any other error, including transport
// failures, must not be treated as "account does not exist".
func IsInvalidCredentials(err error) bool {
	var svcErr *Error
	return errors.As(err, &svcErr) && svcErr.Message == MsgInvalidCredentials
}
