// Package apperr defines the failure taxonomy surfaced by the claim
// workflow. Every failure is per-request and recoverable by resubmission.
package apperr

import (
	"errors"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Kind classifies a workflow failure.
type Kind string

const (
	KindInputInvalid       Kind = "input_invalid"
	KindRateLimited        Kind = "rate_limited"
	KindBlocked            Kind = "blocked"
	KindOrderInvalid       Kind = "order_invalid"
	KindIdentityNotFound   Kind = "identity_not_found"
	KindLookupFailed       Kind = "lookup_failed"
	KindNotificationFailed Kind = "notification_failed"
	KindInvalidStep        Kind = "invalid_step"
	KindSessionNotFound    Kind = "session_not_found"
	KindInternal           Kind = "internal"
)

// Text codes returned to clients in the "reason" field. Order verdict
// reasons are passed through unchanged.
const (
	ReasonInvalidInput         = "invalid_input"
	ReasonRateLimited          = "rate_limited"
	ReasonTooManyAttempts      = "too_many_attempts"
	ReasonIdentityNotFound     = "identity_not_found"
	ReasonIdentityLookupFailed = "identity_lookup_failed"
	ReasonNotificationFailed   = "notification_failed"
	ReasonInvalidStep          = "invalid_step"
	ReasonSessionNotFound      = "session_not_found"
	ReasonSessionBusy          = "session_busy"
	ReasonInternal             = "internal_error"
	ReasonOrderLookupFailed    = "lookup_failed"
)

// Error is a classified workflow failure.
type Error struct {
	Kind       Kind
	Reason     string
	Message    string
	RetryAfter time.Duration
	Fields     []goerrors.FieldError
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error of the same Kind so sentinels like
// ErrRateLimited work with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind && (other.Reason == "" || other.Reason == e.Reason)
}

// Sentinels for errors.Is checks against a Kind.
var (
	ErrInputInvalid       = &Error{Kind: KindInputInvalid}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrBlocked            = &Error{Kind: KindBlocked}
	ErrOrderInvalid       = &Error{Kind: KindOrderInvalid}
	ErrIdentityNotFound   = &Error{Kind: KindIdentityNotFound}
	ErrLookupFailed       = &Error{Kind: KindLookupFailed}
	ErrNotificationFailed = &Error{Kind: KindNotificationFailed}
	ErrInvalidStep        = &Error{Kind: KindInvalidStep}
	ErrSessionNotFound    = &Error{Kind: KindSessionNotFound}
)

// InputInvalid reports missing or malformed claim fields.
func InputInvalid(fields ...goerrors.FieldError) *Error {
	return &Error{
		Kind:    KindInputInvalid,
		Reason:  ReasonInvalidInput,
		Message: "Please fill out all fields with a valid email address.",
		Fields:  fields,
	}
}

// RateLimited reports a denied limiter check.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Reason:     ReasonRateLimited,
		Message:    "Too many attempts, please wait a minute and try again.",
		RetryAfter: retryAfter,
	}
}

// Blocked reports a session that exhausted its verification attempts.
func Blocked() *Error {
	return &Error{
		Kind:    KindBlocked,
		Reason:  ReasonTooManyAttempts,
		Message: "Too many failed attempts. Start a new claim later.",
	}
}

// OrderInvalid reports a failed order verdict. The reason is the verdict's.
func OrderInvalid(reason, message string) *Error {
	kind := KindOrderInvalid
	if reason == ReasonOrderLookupFailed {
		kind = KindLookupFailed
	}
	return &Error{Kind: kind, Reason: reason, Message: message}
}

// IdentityNotFound reports a handle with no matching account.
func IdentityNotFound(handle string) *Error {
	return &Error{
		Kind:    KindIdentityNotFound,
		Reason:  ReasonIdentityNotFound,
		Message: "We could not find the username " + handle + ".",
	}
}

// IdentityLookupFailed reports a transient identity resolver failure.
func IdentityLookupFailed(cause error) *Error {
	return &Error{
		Kind:    KindLookupFailed,
		Reason:  ReasonIdentityLookupFailed,
		Message: "Account lookup failed, please try again.",
		Cause:   cause,
	}
}

// NotificationFailed reports a claim record that did not reach the sink.
func NotificationFailed(cause error) *Error {
	return &Error{
		Kind:    KindNotificationFailed,
		Reason:  ReasonNotificationFailed,
		Message: "We could not submit your claim, please try again.",
		Cause:   cause,
	}
}

// InvalidStep reports a transition not allowed from the current step.
func InvalidStep(message string) *Error {
	return &Error{Kind: KindInvalidStep, Reason: ReasonInvalidStep, Message: message}
}

// SessionBusy reports a session another request is still changing. It is a
// step conflict, so errors.Is matches ErrInvalidStep.
func SessionBusy() *Error {
	return &Error{
		Kind:    KindInvalidStep,
		Reason:  ReasonSessionBusy,
		Message: "Your claim is already being processed.",
	}
}

// SessionNotFound reports an unknown or expired claim session.
func SessionNotFound() *Error {
	return &Error{
		Kind:    KindSessionNotFound,
		Reason:  ReasonSessionNotFound,
		Message: "Your claim session expired, please start again.",
	}
}

// ToServiceError maps the failure onto a rich go-errors value carrying the
// HTTP status and client text code.
func (e *Error) ToServiceError() *goerrors.Error {
	var rich *goerrors.Error
	switch e.Kind {
	case KindInputInvalid:
		rich = goerrors.NewValidation(e.Message, e.Fields...).WithCode(http.StatusBadRequest)
	case KindRateLimited, KindBlocked:
		rich = goerrors.New(e.Message, goerrors.CategoryRateLimit).WithCode(http.StatusTooManyRequests)
	case KindOrderInvalid:
		rich = goerrors.New(e.Message, goerrors.CategoryOperation).WithCode(http.StatusUnprocessableEntity)
	case KindIdentityNotFound, KindSessionNotFound:
		rich = goerrors.New(e.Message, goerrors.CategoryNotFound).WithCode(http.StatusNotFound)
	case KindLookupFailed, KindNotificationFailed:
		rich = goerrors.New(e.Message, goerrors.CategoryExternal).WithCode(http.StatusBadGateway)
	case KindInvalidStep:
		rich = goerrors.New(e.Message, goerrors.CategoryConflict).WithCode(http.StatusConflict)
	default:
		rich = goerrors.New(e.Message, goerrors.CategoryInternal).WithCode(http.StatusInternalServerError)
	}
	reason := e.Reason
	if reason == "" {
		reason = ReasonInternal
	}
	return rich.WithTextCode(reason)
}

// From classifies any error. Unclassified errors become internal failures
// whose message does not leak the cause.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return &Error{
		Kind:    KindInternal,
		Reason:  ReasonInternal,
		Message: "Internal server error.",
		Cause:   err,
	}
}
