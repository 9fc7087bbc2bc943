package claim

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/buygag/claimdesk/internal/apperr"
	"github.com/buygag/claimdesk/internal/commerce"
)

// sessionLockTTL bounds how long a crashed request can hold a session. It
// covers the slowest confirm: one notification send under UPSTREAM_TIMEOUT.
const sessionLockTTL = 30 * time.Second

// Service binds the workflow to a session store.
type Service struct {
	workflow *Workflow
	store    SessionStore
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService constructs a claim service.
func NewService(workflow *Workflow, store SessionStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		workflow: workflow,
		store:    store,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Workflow exposes the underlying workflow.
func (s *Service) Workflow() *Workflow { return s.workflow }

// Start opens a new session at VERIFY.
func (s *Service) Start(ctx context.Context) (Session, error) {
	session := NewSession(s.newID(), s.now())
	if err := s.store.Save(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Get loads a session.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Session{}, apperr.SessionNotFound()
	}
	session, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Session{}, apperr.SessionNotFound()
		}
		return Session{}, err
	}
	return session, nil
}

// Verify runs a VERIFY attempt. An empty sessionID starts a new session.
// The returned session reflects the attempt even when err is non-nil.
func (s *Service) Verify(ctx context.Context, sessionID, clientKey string, req Request) (Session, error) {
	var session Session
	if strings.TrimSpace(sessionID) == "" {
		session = NewSession(s.newID(), s.now())
	} else {
		unlock, err := s.lock(ctx, sessionID)
		if err != nil {
			return Session{}, err
		}
		defer unlock()
		if session, err = s.Get(ctx, sessionID); err != nil {
			return Session{}, err
		}
	}

	verifyErr := s.workflow.Verify(ctx, &session, clientKey, req)
	if err := s.store.Save(ctx, session); err != nil {
		s.logger.Error("save claim session failed", slog.String("session_id", session.ID), slog.Any("error", err))
		return session, err
	}
	return session, verifyErr
}

// Back returns a CONFIRM session to VERIFY.
func (s *Service) Back(ctx context.Context, sessionID string) (Session, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	defer unlock()

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if err := s.workflow.Back(&session); err != nil {
		return session, err
	}
	if err := s.store.Save(ctx, session); err != nil {
		return session, err
	}
	return session, nil
}

// lock takes the per-session lock that serialises state changes. A session
// held by another request fails fast with SessionBusy.
func (s *Service) lock(ctx context.Context, sessionID string) (func(), error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, apperr.SessionNotFound()
	}
	unlock, err := s.store.Lock(ctx, id, sessionLockTTL)
	if err != nil {
		if errors.Is(err, ErrSessionBusy) {
			s.logger.Info("claim session busy", slog.String("session_id", id))
			return nil, apperr.SessionBusy()
		}
		return nil, err
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release claim session lock failed", slog.String("session_id", id), slog.Any("error", err))
		}
	}, nil
}

// ConfirmInput echoes what the buyer saw on the confirmation step. Empty
// fields are not checked.
type ConfirmInput struct {
	OrderNumber string
	Email       string
	Handle      string
	NumericID   int64
}

// Confirm dispatches the claim record and moves the session to CLAIM. The
// session lock is held across the send so overlapping confirms dispatch once.
func (s *Service) Confirm(ctx context.Context, sessionID string, in ConfirmInput) (Session, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	defer unlock()

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if session.Step == StepConfirm {
		if err := matchConfirmation(session, in); err != nil {
			return session, err
		}
	}
	if err := s.workflow.Confirm(ctx, &session); err != nil {
		return session, err
	}
	if err := s.store.Save(ctx, session); err != nil {
		s.logger.Error("save claimed session failed", slog.String("session_id", session.ID), slog.Any("error", err))
		return session, err
	}
	return session, nil
}

func matchConfirmation(session Session, in ConfirmInput) error {
	var fields []goerrors.FieldError
	if v := strings.TrimSpace(in.OrderNumber); v != "" &&
		commerce.NormalizeOrderName(v) != commerce.NormalizeOrderName(session.OrderNumber) {
		fields = append(fields, goerrors.FieldError{Field: "orderNumber", Message: "does not match the verified order"})
	}
	if v := strings.TrimSpace(in.Email); v != "" && !strings.EqualFold(v, session.Email) {
		fields = append(fields, goerrors.FieldError{Field: "email", Message: "does not match the verified email"})
	}
	if v := strings.TrimSpace(in.Handle); v != "" && !strings.EqualFold(v, session.Handle) {
		fields = append(fields, goerrors.FieldError{Field: "handle", Message: "does not match the verified username"})
	}
	if in.NumericID != 0 && session.Identity != nil && in.NumericID != session.Identity.NumericID {
		fields = append(fields, goerrors.FieldError{Field: "identity", Message: "does not match the verified account"})
	}
	if len(fields) > 0 {
		return apperr.InputInvalid(fields...)
	}
	return nil
}
