package claim

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buygag/claimdesk/internal/apperr"
	"github.com/buygag/claimdesk/internal/commerce"
	"github.com/buygag/claimdesk/internal/identity"
	"github.com/buygag/claimdesk/internal/logging"
	"github.com/buygag/claimdesk/internal/notification"
	"github.com/buygag/claimdesk/internal/ratelimit"
)

func newTestService(f *fixture) *Service {
	return NewService(f.workflow, NewMemoryStore(time.Hour, nil), logging.Discard())
}

func TestServiceVerifyWithoutSessionStartsOne(t *testing.T) {
	f := newFixture()
	svc := newTestService(f)

	session, err := svc.Verify(context.Background(), "", "ip", validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, StepConfirm, session.Step)

	stored, err := svc.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, StepConfirm, stored.Step)
}

func TestServiceVerifyUnknownSession(t *testing.T) {
	svc := newTestService(newFixture())

	_, err := svc.Verify(context.Background(), "nope", "ip", validRequest())
	assert.ErrorIs(t, err, apperr.ErrSessionNotFound)
}

func TestServicePersistsFailedAttempts(t *testing.T) {
	f := newFixture(WithMaxAttempts(2))
	svc := newTestService(f)
	ctx := context.Background()

	started, err := svc.Start(ctx)
	require.NoError(t, err)

	bad := Request{OrderNumber: "1234", Email: "a@b.com", Handle: "ghost_user_zzz"}
	_, err = svc.Verify(ctx, started.ID, "ip", bad)
	require.Error(t, err)
	session, err := svc.Verify(ctx, started.ID, "ip", bad)
	require.Error(t, err)
	assert.True(t, session.Blocked)

	_, err = svc.Verify(ctx, started.ID, "ip", validRequest())
	assert.ErrorIs(t, err, apperr.ErrBlocked)

	stored, err := svc.Get(ctx, started.ID)
	require.NoError(t, err)
	assert.True(t, stored.Blocked)
	assert.Equal(t, StepVerify, stored.Step)

	fresh, err := svc.Verify(ctx, "", "ip", validRequest())
	require.NoError(t, err)
	assert.Equal(t, StepConfirm, fresh.Step)
}

func TestServiceFullFlow(t *testing.T) {
	f := newFixture()
	svc := newTestService(f)
	ctx := context.Background()

	session, err := svc.Verify(ctx, "", "ip", validRequest())
	require.NoError(t, err)

	session, err = svc.Back(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, StepVerify, session.Step)
	assert.Nil(t, session.Identity)

	session, err = svc.Verify(ctx, session.ID, "ip", validRequest())
	require.NoError(t, err)

	session, err = svc.Confirm(ctx, session.ID, ConfirmInput{OrderNumber: "#1234", Email: "A@B.com", Handle: "builder_bob", NumericID: bob.NumericID})
	require.NoError(t, err)
	assert.Equal(t, StepClaim, session.Step)
	assert.Len(t, f.notifier.records, 1)

	stored, err := svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, StepClaim, stored.Step)

	_, err = svc.Confirm(ctx, session.ID, ConfirmInput{})
	assert.ErrorIs(t, err, apperr.ErrInvalidStep)
	assert.Len(t, f.notifier.records, 1)
}

func TestServiceConfirmRejectsMismatch(t *testing.T) {
	f := newFixture()
	svc := newTestService(f)
	ctx := context.Background()

	session, err := svc.Verify(ctx, "", "ip", validRequest())
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, session.ID, ConfirmInput{Email: "other@b.com", NumericID: 1})
	require.ErrorIs(t, err, apperr.ErrInputInvalid)
	fields := apperr.From(err).Fields
	require.Len(t, fields, 2)
	assert.Equal(t, "email", fields[0].Field)
	assert.Equal(t, "identity", fields[1].Field)
	assert.Empty(t, f.notifier.records)
}

func TestServiceGetEmptyID(t *testing.T) {
	_, err := newTestService(newFixture()).Get(context.Background(), " ")
	assert.ErrorIs(t, err, apperr.ErrSessionNotFound)
}

type slowNotifier struct {
	delay time.Duration
	fail  atomic.Bool
	sent  atomic.Int32
}

func (n *slowNotifier) Send(context.Context, notification.ClaimRecord) error {
	time.Sleep(n.delay)
	if n.fail.Load() {
		return errors.New("webhook down")
	}
	n.sent.Add(1)
	return nil
}

type slowOrders struct {
	delay   time.Duration
	verdict commerce.Verdict
}

func (o slowOrders) Validate(context.Context, string, string) commerce.Verdict {
	time.Sleep(o.delay)
	return o.verdict
}

type openLimiter struct{}

func (openLimiter) CheckAndRecord(context.Context, string) ratelimit.Decision {
	return ratelimit.Decision{Allowed: true}
}

func runConcurrently(n int, fn func() error) []error {
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn()
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestServiceConcurrentConfirmDispatchesOnce(t *testing.T) {
	notifier := &slowNotifier{delay: 50 * time.Millisecond}
	resolver := &stubResolver{known: map[string]identity.Identity{"builder_bob": bob}}
	workflow := NewWorkflow(slowOrders{verdict: commerce.Valid()}, resolver, openLimiter{}, notifier, logging.Discard())
	svc := NewService(workflow, NewMemoryStore(time.Hour, nil), logging.Discard())
	ctx := context.Background()

	session, err := svc.Verify(ctx, "", "ip", validRequest())
	require.NoError(t, err)

	errs := runConcurrently(5, func() error {
		_, err := svc.Confirm(ctx, session.ID, ConfirmInput{})
		return err
	})

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInvalidStep):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 4, conflicts)
	assert.EqualValues(t, 1, notifier.sent.Load())

	stored, err := svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, StepClaim, stored.Step)
}

func TestServiceConfirmRetriesAfterFailedSend(t *testing.T) {
	notifier := &slowNotifier{}
	notifier.fail.Store(true)
	resolver := &stubResolver{known: map[string]identity.Identity{"builder_bob": bob}}
	workflow := NewWorkflow(slowOrders{verdict: commerce.Valid()}, resolver, openLimiter{}, notifier, logging.Discard())
	svc := NewService(workflow, NewMemoryStore(time.Hour, nil), logging.Discard())
	ctx := context.Background()

	session, err := svc.Verify(ctx, "", "ip", validRequest())
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, session.ID, ConfirmInput{})
	require.ErrorIs(t, err, apperr.ErrNotificationFailed)

	notifier.fail.Store(false)
	session, err = svc.Confirm(ctx, session.ID, ConfirmInput{})
	require.NoError(t, err)
	assert.Equal(t, StepClaim, session.Step)
	assert.EqualValues(t, 1, notifier.sent.Load())
}

func TestServiceConcurrentVerifyKeepsEveryAttempt(t *testing.T) {
	orders := slowOrders{delay: 20 * time.Millisecond, verdict: commerce.Invalid(commerce.ReasonNotFound)}
	resolver := &stubResolver{known: map[string]identity.Identity{}}
	workflow := NewWorkflow(orders, resolver, openLimiter{}, &slowNotifier{}, logging.Discard(), WithMaxAttempts(50))
	svc := NewService(workflow, NewMemoryStore(time.Hour, nil), logging.Discard())
	ctx := context.Background()

	started, err := svc.Start(ctx)
	require.NoError(t, err)

	errs := runConcurrently(8, func() error {
		_, err := svc.Verify(ctx, started.ID, "ip", validRequest())
		return err
	})

	var attempted int
	for _, err := range errs {
		require.Error(t, err)
		if errors.Is(err, apperr.ErrOrderInvalid) {
			attempted++
		} else {
			assert.ErrorIs(t, err, apperr.ErrInvalidStep)
		}
	}
	assert.GreaterOrEqual(t, attempted, 1)

	stored, err := svc.Get(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, attempted, stored.AttemptCount)
}
