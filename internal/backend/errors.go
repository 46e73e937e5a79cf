package backend

import (
	"errors"
	"fmt"
)

// The error taxonomy every Backend implementation maps into. Callers branch
// with errors.Is / errors.As, never on message text.
//
// Two of these are sentinels because they are often VALID outcomes, not
// failures:
//   - ErrNotFound: a profile that hasn't been provisioned yet, a conversation
//     that doesn't exist yet. Callers usually recover locally.
//   - ErrConflict: two clients raced to create the same conversation pair and
//     this one lost. The resolver recovers by re-querying.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// AuthError covers invalid credentials and expired/invalid tokens. The
// message is what the backend said — it gets shown to the user verbatim on
// sign-in/sign-up failure.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "auth: " + e.Reason
}

// NetworkError wraps transport-level failures (timeout, unreachable,
// connection reset). Op names the operation that was in flight.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidationError covers malformed input rejected before (or by) the
// backend: empty message content, missing fields, identical pair ids.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}
