package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a sentinel error naming one failure category. Use cases wrap one of
// these so callers can branch with errors.Is.
type Kind struct {
	Code   string
	Status int
	msg    string
}

func (k *Kind) Error() string { return k.msg }

var (
	ErrValidation           = &Kind{Code: "VALIDATION_ERROR", Status: http.StatusBadRequest, msg: "validation failed"}
	ErrNotFound             = &Kind{Code: "NOT_FOUND", Status: http.StatusNotFound, msg: "not found"}
	ErrNoActiveSubscription = &Kind{Code: "NO_ACTIVE_SUBSCRIPTION", Status: http.StatusConflict, msg: "no active subscription"}
	ErrSubscriptionRequired = &Kind{Code: "SUBSCRIPTION_REQUIRED", Status: http.StatusPaymentRequired, msg: "subscription required"}
	ErrInvalidPlan          = &Kind{Code: "INVALID_PLAN", Status: http.StatusUnprocessableEntity, msg: "invalid plan"}
	ErrGateway              = &Kind{Code: "GATEWAY_ERROR", Status: http.StatusBadGateway, msg: "payment provider request failed"}
	ErrStorage              = &Kind{Code: "STORAGE_ERROR", Status: http.StatusInternalServerError, msg: "storage failure"}
	ErrConflict             = &Kind{Code: "CONFLICT", Status: http.StatusConflict, msg: "concurrent modification"}
	ErrUnauthorized         = &Kind{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized, msg: "unauthorized"}
	ErrInternal             = &Kind{Code: "INTERNAL_ERROR", Status: http.StatusInternalServerError, msg: "internal error"}
)

var kinds = []*Kind{
	ErrValidation,
	ErrNotFound,
	ErrNoActiveSubscription,
	ErrSubscriptionRequired,
	ErrInvalidPlan,
	ErrGateway,
	ErrConflict,
	ErrStorage,
	ErrUnauthorized,
}

// Error carries a kind, a message that is safe to show to clients and an
// optional internal cause that is only meant for logs.
type Error struct {
	Kind     *Kind
	Message  string
	Internal error
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Is lets errors.Is match the kind and the internal cause alike.
func (e *Error) Is(target error) bool {
	k, ok := target.(*Kind)
	return ok && k == e.Kind
}

func (e *Error) Unwrap() error { return e.Internal }

// New builds an error of the given kind with a client-facing message.
func New(kind *Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches err as the internal cause of a new error of the given kind.
func Wrap(kind *Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Internal: err}
}

// Validation creates a validation error.
func Validation(format string, args ...any) *Error {
	return New(ErrValidation, format, args...)
}

// NotFound creates a not found error for the named resource.
func NotFound(resource string) *Error {
	return New(ErrNotFound, "%s not found", resource)
}

// Storage wraps a persistence failure.
func Storage(err error, op string) *Error {
	return Wrap(ErrStorage, err, "could not %s", op)
}

// Gateway wraps a payment provider failure. The message never includes the
// provider's own error text.
func Gateway(err error, op string) *Error {
	return Wrap(ErrGateway, err, "payment provider could not %s", op)
}

// KindOf returns the kind wrapped by err, or ErrInternal when err carries none.
func KindOf(err error) *Kind {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// PublicMessage returns the text safe to show to clients.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if k, ok := err.(*Kind); ok {
		return k.msg
	}
	return ErrInternal.msg
}
