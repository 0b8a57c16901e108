package cqrs

import (
	"errors"
	"fmt"
)

var (
	// ErrResolution matches every *ResolutionError.
	ErrResolution = errors.New("handler resolution failed")

	// ErrNilMessage is returned when a nil message is dispatched.
	ErrNilMessage = errors.New("message is nil")

	// ErrNamingConvention is returned when a message type lacks the Command/Query suffix.
	ErrNamingConvention = errors.New("message type does not follow the naming convention")

	// ErrHandlerTypeNotFound is returned when no handler type with the derived name exists.
	ErrHandlerTypeNotFound = errors.New("handler type does not exist")

	// ErrHandlerNotRegistered is returned when the handler type exists but no instance is registered.
	ErrHandlerNotRegistered = errors.New("handler type exists but is not registered")

	// ErrHandlerNotCallable is returned when the registered handler has no usable Handle method.
	ErrHandlerNotCallable = errors.New("handler does not expose a Handle operation")

	// ErrUnexpectedMessage is returned when a dispatch target receives a message of another type.
	ErrUnexpectedMessage = errors.New("dispatch target received an unexpected message type")

	// ErrUnexpectedResult is returned by DispatchAs when the handler result has another type.
	ErrUnexpectedResult = errors.New("unexpected handler result type")
)

// ResolutionError reports a wiring defect found while mapping a message to its handler.
// These errors are fatal for the dispatch and are never retried.
type ResolutionError struct {
	Kind    Kind
	Message string
	Handler string
	Reason  error
	Detail  string
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Kind, e.Message, e.Reason)
	if e.Handler != "" {
		msg += fmt.Sprintf(" (handler %s)", e.Handler)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the specific reason sentinel.
func (e *ResolutionError) Unwrap() error {
	return e.Reason
}

// Is reports whether target is ErrResolution.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolution
}

func newResolutionError(kind Kind, message, handler string, reason error, detail string) error {
	return &ResolutionError{
		Kind:    kind,
		Message: message,
		Handler: handler,
		Reason:  reason,
		Detail:  detail,
	}
}

// conventionDetail describes the naming convention expected for kind.
func conventionDetail(kind Kind) string {
	return fmt.Sprintf("expected a type named <Name>%s in the message's package implementing Handle(ctx, <Name>%s)",
		kind.HandlerSuffix(), kind.Suffix())
}
