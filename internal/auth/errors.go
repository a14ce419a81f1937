package auth

import "errors"

var (
	// ErrNotFound is returned by a TemplateStore for an unknown username.
	ErrNotFound = errors.New("user not found")

	ErrSensorUnavailable = errors.New("sensor unavailable")
	ErrDegenerateCapture = errors.New("gesture had no usable motion")
	ErrInvalidState      = errors.New("command not valid in current state")
	ErrInvalidIdentity   = errors.New("invalid username")

	// Store failures end the session instead of producing an Error event:
	// ErrStoreRead as Rejected{ReasonStoreUnavailable} and ErrStoreWrite as
	// Rejected{ReasonRegistrationNotSaved}. See RejectReason.Err.
	ErrStoreRead  = errors.New("template store read failed")
	ErrStoreWrite = errors.New("template store write failed")

	// ErrAborted is returned by Dispatch when the session was closed or ctx
	// was cancelled while a capture ran. The capture result is dropped and
	// no event is emitted for it.
	ErrAborted = errors.New("session closed during capture")
)

// ErrorKind classifies an Error event. Low-level causes never cross the
// session boundary; only the kind and a short detail do.
type ErrorKind int

const (
	KindSensorUnavailable ErrorKind = iota + 1
	KindDegenerateCapture
	KindInvalidState
	KindInvalidIdentity
)

func (k ErrorKind) String() string {
	switch k {
	case KindSensorUnavailable:
		return "SensorUnavailable"
	case KindDegenerateCapture:
		return "DegenerateCapture"
	case KindInvalidState:
		return "InvalidState"
	case KindInvalidIdentity:
		return "InvalidIdentity"
	}
	return "Unknown"
}

// Err returns the sentinel error for the kind.
func (k ErrorKind) Err() error {
	switch k {
	case KindSensorUnavailable:
		return ErrSensorUnavailable
	case KindDegenerateCapture:
		return ErrDegenerateCapture
	case KindInvalidState:
		return ErrInvalidState
	case KindInvalidIdentity:
		return ErrInvalidIdentity
	}
	return nil
}

// RejectReason says why a session ended in Rejected.
type RejectReason int

const (
	// ReasonQuorumNotReached: every verification attempt was used up.
	ReasonQuorumNotReached RejectReason = iota + 1
	// ReasonStoreUnavailable: the user's templates could not be read.
	ReasonStoreUnavailable
	// ReasonRegistrationNotSaved: the final registration write failed.
	ReasonRegistrationNotSaved
)

func (r RejectReason) String() string {
	switch r {
	case ReasonQuorumNotReached:
		return "QuorumNotReached"
	case ReasonStoreUnavailable:
		return "StoreUnavailable"
	case ReasonRegistrationNotSaved:
		return "RegistrationNotSaved"
	}
	return "Unknown"
}

// Err returns the store sentinel behind a store-related reason, or nil.
func (r RejectReason) Err() error {
	switch r {
	case ReasonStoreUnavailable:
		return ErrStoreRead
	case ReasonRegistrationNotSaved:
		return ErrStoreWrite
	}
	return nil
}
