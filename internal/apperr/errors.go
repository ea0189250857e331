package apperr

import "fmt"

// ErrorKind is the closed set of error codes the engine surfaces to RPC and
// CLI callers, per the error handling table in the specification.
type ErrorKind string

const (
	ErrProjectNotFound     ErrorKind = "PROJECT_NOT_FOUND"
	ErrAgentNotRegistered  ErrorKind = "AGENT_NOT_REGISTERED"
	ErrPolicyBlocked       ErrorKind = "POLICY_BLOCKED"
	ErrContactPending      ErrorKind = "CONTACT_PENDING"
	ErrLinkRequired        ErrorKind = "LINK_REQUIRED"
	ErrClaimConflict       ErrorKind = "CLAIM_CONFLICT"
	ErrInvalidArgument     ErrorKind = "INVALID_ARGUMENT"
	ErrTimeout             ErrorKind = "TIMEOUT"
	ErrIndexArchiveMismatch ErrorKind = "INDEX_ARCHIVE_MISMATCH"
)

// Error is the error type every exported engine operation returns. It names
// the offending field or entity so a caller can act on it programmatically.
type Error struct {
	Kind   ErrorKind
	Entity string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Msg, e.Entity)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with the given kind and message.
func New(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds an *Error with a formatted message.
func Newf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WithEntity returns a copy of e naming the offending entity.
func (e *Error) WithEntity(entity string) *Error {
	return &Error{Kind: e.Kind, Entity: entity, Msg: e.Msg, Err: e.Err}
}

// Wrap builds an *Error of kind wrapping a lower-level error.
func Wrap(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}
