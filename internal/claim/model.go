// Package claim runs the VERIFY -> CONFIRM -> CLAIM workflow a buyer walks
// through to claim a purchased item.
package claim

import (
	"errors"
	"regexp"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/buygag/claimdesk/internal/apperr"
	"github.com/buygag/claimdesk/internal/identity"
)

// Step is a workflow state.
type Step string

const (
	StepVerify  Step = "VERIFY"
	StepConfirm Step = "CONFIRM"
	StepClaim   Step = "CLAIM"
)

// ErrSessionNotFound is returned by stores for unknown or expired sessions.
var ErrSessionNotFound = errors.New("claim: session not found")

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Request is what the buyer submits at VERIFY.
type Request struct {
	OrderNumber string `json:"orderNumber"`
	Email       string `json:"email"`
	Handle      string `json:"handle"`
}

// Normalize trims every field.
func (r Request) Normalize() Request {
	return Request{
		OrderNumber: strings.TrimSpace(r.OrderNumber),
		Email:       strings.TrimSpace(r.Email),
		Handle:      strings.TrimSpace(r.Handle),
	}
}

// Validate checks the request shape. It expects a normalized request.
func (r Request) Validate() error {
	var fields []goerrors.FieldError
	if r.OrderNumber == "" || r.OrderNumber == "#" {
		fields = append(fields, goerrors.FieldError{Field: "orderNumber", Message: "required"})
	}
	switch {
	case r.Email == "":
		fields = append(fields, goerrors.FieldError{Field: "email", Message: "required"})
	case !emailPattern.MatchString(r.Email):
		fields = append(fields, goerrors.FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if r.Handle == "" {
		fields = append(fields, goerrors.FieldError{Field: "handle", Message: "required"})
	}
	if len(fields) > 0 {
		return apperr.InputInvalid(fields...)
	}
	return nil
}

// Session is the server-held state of one claim interaction. Identity is
// only set at CONFIRM and CLAIM.
type Session struct {
	ID           string             `json:"id"`
	Step         Step               `json:"step"`
	OrderNumber  string             `json:"orderNumber,omitempty"`
	Email        string             `json:"email,omitempty"`
	Handle       string             `json:"handle,omitempty"`
	Identity     *identity.Identity `json:"identity,omitempty"`
	AttemptCount int                `json:"attemptCount"`
	Blocked      bool               `json:"blocked"`
	LastFailure  string             `json:"lastFailure,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	ClaimedAt    *time.Time         `json:"claimedAt,omitempty"`
}

// NewSession starts a session at VERIFY.
func NewSession(id string, now time.Time) Session {
	return Session{ID: id, Step: StepVerify, CreatedAt: now, UpdatedAt: now}
}
