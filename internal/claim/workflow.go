package claim

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/buygag/claimdesk/internal/apperr"
	"github.com/buygag/claimdesk/internal/commerce"
	"github.com/buygag/claimdesk/internal/identity"
	"github.com/buygag/claimdesk/internal/logging"
	"github.com/buygag/claimdesk/internal/notification"
	"github.com/buygag/claimdesk/internal/ratelimit"
)

const defaultMaxAttempts = 5

// OrderValidator is satisfied by *commerce.Validator.
type OrderValidator interface {
	Validate(ctx context.Context, orderNumber, email string) commerce.Verdict
}

// IdentityResolver is satisfied by *identity.RobloxResolver.
type IdentityResolver interface {
	Resolve(ctx context.Context, handle string) (identity.Identity, error)
}

// Limiter is satisfied by *ratelimit.Limiter.
type Limiter interface {
	CheckAndRecord(ctx context.Context, clientKey string) ratelimit.Decision
}

// Workflow applies transitions to a session. It holds no session state itself.
type Workflow struct {
	orders      OrderValidator
	identities  IdentityResolver
	limiter     Limiter
	notifier    notification.Notifier
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

// WorkflowOption customises a Workflow.
type WorkflowOption func(*Workflow)

// WithMaxAttempts sets how many failed VERIFY attempts block a session.
func WithMaxAttempts(n int) WorkflowOption {
	return func(w *Workflow) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithWorkflowClock overrides the time source.
func WithWorkflowClock(now func() time.Time) WorkflowOption {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorkflow wires the collaborators of the claim workflow.
func NewWorkflow(orders OrderValidator, identities IdentityResolver, limiter Limiter, notifier notification.Notifier, logger *slog.Logger, opts ...WorkflowOption) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Workflow{
		orders:      orders,
		identities:  identities,
		limiter:     limiter,
		notifier:    notifier,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// MaxAttempts returns the configured attempt ceiling.
func (w *Workflow) MaxAttempts() int { return w.maxAttempts }

// AttemptsRemaining returns how many failed attempts the session may still make.
func (w *Workflow) AttemptsRemaining(s *Session) int {
	if s.Blocked {
		return 0
	}
	if left := w.maxAttempts - s.AttemptCount; left > 0 {
		return left
	}
	return 0
}

// Verify attempts VERIFY -> CONFIRM. The validator always runs before the
// resolver. On failure the session stays at VERIFY with the attempt recorded.
func (w *Workflow) Verify(ctx context.Context, s *Session, clientKey string, req Request) error {
	if s.Blocked {
		return apperr.Blocked()
	}
	if s.Step != StepVerify {
		return apperr.InvalidStep("Verification is only possible at the first step.")
	}

	if decision := w.limiter.CheckAndRecord(ctx, clientKey); !decision.Allowed {
		return w.fail(s, apperr.RateLimited(decision.RetryAfter))
	}

	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return w.fail(s, apperr.From(err))
	}

	verdict := w.orders.Validate(ctx, req.OrderNumber, req.Email)
	if !verdict.Valid {
		return w.fail(s, apperr.OrderInvalid(string(verdict.Reason), verdict.Reason.Message()))
	}

	resolved, err := w.identities.Resolve(ctx, req.Handle)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return w.fail(s, apperr.IdentityNotFound(req.Handle))
		}
		return w.fail(s, apperr.IdentityLookupFailed(err))
	}

	s.Step = StepConfirm
	s.OrderNumber = req.OrderNumber
	s.Email = req.Email
	s.Handle = req.Handle
	s.Identity = &resolved
	s.AttemptCount = 0
	s.LastFailure = ""
	s.UpdatedAt = w.now()

	w.logger.Info("claim verified",
		slog.String("session_id", s.ID),
		slog.String("order_number", s.OrderNumber),
		slog.Int64("user_id", resolved.NumericID))
	return nil
}

// Back returns a CONFIRM session to VERIFY and discards the identity.
func (w *Workflow) Back(s *Session) error {
	if s.Step != StepConfirm {
		return apperr.InvalidStep("You can only go back from the confirmation step.")
	}
	s.Step = StepVerify
	s.Identity = nil
	s.UpdatedAt = w.now()
	return nil
}

// Confirm attempts CONFIRM -> CLAIM by dispatching exactly one claim record.
// A failed dispatch leaves the session at CONFIRM.
func (w *Workflow) Confirm(ctx context.Context, s *Session) error {
	if s.Step != StepConfirm || s.Identity == nil {
		return apperr.InvalidStep("There is nothing to confirm in this session.")
	}

	now := w.now()
	record := notification.ClaimRecord{
		SessionID:   s.ID,
		OrderNumber: s.OrderNumber,
		Handle:      s.Handle,
		Email:       s.Email,
		Identity:    *s.Identity,
		SubmittedAt: now,
	}
	if err := w.notifier.Send(ctx, record); err != nil {
		w.logger.Error("claim notification failed", slog.String("session_id", s.ID), slog.Any("error", err))
		return apperr.NotificationFailed(err)
	}

	s.Step = StepClaim
	s.UpdatedAt = now
	s.ClaimedAt = &now

	w.logger.Info("claim submitted",
		slog.String("session_id", s.ID),
		slog.String("email", logging.Redact(s.Email)))
	return nil
}

func (w *Workflow) fail(s *Session, err *apperr.Error) error {
	s.AttemptCount++
	s.LastFailure = err.Reason
	s.UpdatedAt = w.now()
	if s.AttemptCount >= w.maxAttempts {
		s.Blocked = true
	}
	w.logger.Info("claim verification failed",
		slog.String("session_id", s.ID),
		slog.String("reason", err.Reason),
		slog.Int("attempt", s.AttemptCount),
		slog.Bool("blocked", s.Blocked))
	return err
}
