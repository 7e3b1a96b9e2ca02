package proto

import (
	"errors"
	"fmt"
)

// Failure classes. Every ERROR frame sent to a client wraps exactly one of
// these.
var (
	ErrAuthDegraded = errors.New("auth degraded")
	ErrProtocol     = errors.New("protocol error")
	ErrSequence     = errors.New("sequence violation")
	ErrStorage      = errors.New("storage failure")
	ErrTransport    = errors.New("transport failure")
	ErrInternal     = errors.New("internal error")
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrRecordExists   = errors.New("record already exists")
)

// A FrameError is a failure that is reported to the client as an ERROR
// frame. The connection stays open and no session state is changed.
type FrameError struct {
	Kind    error
	Message string
}

func (e *FrameError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }
func (e *FrameError) Unwrap() error { return e.Kind }

// Reply returns the ERROR frame that reports e.
func (e *FrameError) Reply() Reply { return ErrorReply(e.Message) }

var (
	ErrInvalidPayload = &FrameError{Kind: ErrProtocol, Message: "Invalid JSON payload"}
	ErrNotStarted     = &FrameError{Kind: ErrSequence, Message: "Session not started. Send START first."}
	ErrNoActiveRecord = &FrameError{Kind: ErrSequence, Message: "No active record"}
	ErrRecordActive   = &FrameError{Kind: ErrSequence, Message: "Record already active. Send END first."}
	ErrUploadFailed   = &FrameError{Kind: ErrStorage, Message: "Upload failed"}
	ErrInternalFrame  = &FrameError{Kind: ErrInternal, Message: "Internal error"}
)

func UnknownTypeError(t PacketType) *FrameError {
	return &FrameError{Kind: ErrProtocol, Message: fmt.Sprintf("Unknown type: %s", t)}
}

// An AuthFailure explains why a handshake credential was not accepted. It
// matches ErrAuthDegraded under errors.Is.
type AuthFailure struct {
	Reason string
	Err    error
}

func (f *AuthFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("auth: %s: %s", f.Reason, f.Err)
	}
	return "auth: " + f.Reason
}

func (f *AuthFailure) Unwrap() error { return f.Err }

func (f *AuthFailure) Is(target error) bool { return target == ErrAuthDegraded }
