package identity

import "errors"

// ErrRejected indicates the backend answered without {success:true, user}.
var ErrRejected = errors.New("authentication rejected")

// RejectedError carries the backend message of a rejected login or register.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return ErrRejected.Error()
	}
	return ErrRejected.Error() + ": " + e.Message
}

func (e *RejectedError) Unwrap() error { return ErrRejected }
