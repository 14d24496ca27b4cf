package types

import (
	"errors"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

type ErrorKind string

const (
	ErrorKindLock       ErrorKind = "lock"
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindIntegrity  ErrorKind = "integrity"
	ErrorKindModule     ErrorKind = "module"
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindHook       ErrorKind = "hook"
)

// ErrAuthenticationRequired marks a provider response that explicitly asked
// for credentials, as opposed to a generic failure.
var ErrAuthenticationRequired = errors.New("authentication required")

// Error is a lifecycle failure of a known kind. The errbuilder error carrying
// the status code and the original cause are both reachable through
// errors.As and errors.Is.
type Error struct {
	Kind    ErrorKind
	Msg     string
	Cause   error
	builder *errbuilder.ErrBuilder
	code    errbuilder.ErrCode
}

func newError(kind ErrorKind, code errbuilder.ErrCode, msg string, cause error) error {
	builder := errbuilder.New().WithCode(code).WithMsg(msg)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return &Error{Kind: kind, Msg: msg, Cause: cause, builder: builder, code: code}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.builder != nil {
		errs = append(errs, e.builder)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func (e *Error) Code() errbuilder.ErrCode {
	return e.code
}

// NewError builds an error of the given kind with that kind's status code.
// Unknown or empty kinds are treated as module errors.
func NewError(kind ErrorKind, msg string, cause error) error {
	switch kind {
	case ErrorKindLock:
		return NewLockError(msg, cause)
	case ErrorKindNetwork:
		return NewNetworkError(msg, cause)
	case ErrorKindIntegrity:
		return NewIntegrityError(msg, cause)
	case ErrorKindValidation:
		return NewValidationError(msg, cause)
	case ErrorKindHook:
		return NewHookError(msg, cause)
	default:
		return NewModuleError(msg, cause)
	}
}

func NewLockError(msg string, cause error) error {
	return newError(ErrorKindLock, errbuilder.CodeFailedPrecondition, msg, cause)
}

func NewNetworkError(msg string, cause error) error {
	return newError(ErrorKindNetwork, errbuilder.CodeInternal, msg, cause)
}

func NewIntegrityError(msg string, cause error) error {
	return newError(ErrorKindIntegrity, errbuilder.CodeFailedPrecondition, msg, cause)
}

func NewModuleError(msg string, cause error) error {
	return newError(ErrorKindModule, errbuilder.CodeInvalidArgument, msg, cause)
}

func NewModuleNotFoundError(msg string, cause error) error {
	return newError(ErrorKindModule, errbuilder.CodeNotFound, msg, cause)
}

func NewValidationError(msg string, cause error) error {
	return newError(ErrorKindValidation, errbuilder.CodeFailedPrecondition, msg, cause)
}

func NewHookError(msg string, cause error) error {
	return newError(ErrorKindHook, errbuilder.CodePermissionDenied, msg, cause)
}

// KindOf returns the kind of the first lifecycle error in err's chain, or ""
// when err carries none.
func KindOf(err error) ErrorKind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
