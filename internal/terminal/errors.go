package terminal

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned by reads when the channel timeout elapses before
	// any input arrived. The session remains usable.
	ErrTimeout = errors.New("terminal: read timed out")

	// ErrAdmissionRejected indicates the admission ceiling has been reached.
	ErrAdmissionRejected = errors.New("terminal: admission ceiling reached")

	// ErrNotGuest is returned when renaming a session that has a fixed identity.
	ErrNotGuest = errors.New("terminal: display name is fixed for registered users")
)

// AdmissionRejectedError carries the state that caused a rejection.
type AdmissionRejectedError struct {
	Ceiling int
	Active  int
}

func (e *AdmissionRejectedError) Error() string {
	return fmt.Sprintf("%s: active=%d ceiling=%d", ErrAdmissionRejected.Error(), e.Active, e.Ceiling)
}

// Unwrap enables errors.Is checks against ErrAdmissionRejected.
func (e *AdmissionRejectedError) Unwrap() error {
	return ErrAdmissionRejected
}
