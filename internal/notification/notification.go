// Package notification hands confirmed claims to the humans who deliver them.
package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/buygag/claimdesk/internal/identity"
	"github.com/buygag/claimdesk/internal/logging"
)

// ClaimRecord is the payload emitted once per confirmed claim.
type ClaimRecord struct {
	SessionID   string
	OrderNumber string
	Handle      string
	Email       string
	Identity    identity.Identity
	SubmittedAt time.Time
}

// Notifier delivers claim records to downstream systems.
type Notifier interface {
	Send(ctx context.Context, record ClaimRecord) error
}

// LoggerNotifier writes claim records to the logger. Used when no webhook is configured.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the record to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, record ClaimRecord) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("claim submitted",
		slog.String("session_id", record.SessionID),
		slog.String("order_number", record.OrderNumber),
		slog.String("handle", record.Handle),
		slog.String("email", logging.Redact(record.Email)),
		slog.Int64("user_id", record.Identity.NumericID),
	)
	return nil
}

// Fanout sends to a primary notifier whose result decides the outcome, then
// to secondaries whose failures are only logged.
type Fanout struct {
	primary     Notifier
	secondaries []Notifier
	logger      *slog.Logger
}

// NewFanout builds a fanout notifier.
func NewFanout(logger *slog.Logger, primary Notifier, secondaries ...Notifier) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{primary: primary, secondaries: secondaries, logger: logger}
}

// Send implements Notifier.
func (f *Fanout) Send(ctx context.Context, record ClaimRecord) error {
	if err := f.primary.Send(ctx, record); err != nil {
		return err
	}
	for _, n := range f.secondaries {
		if err := n.Send(ctx, record); err != nil {
			f.logger.Warn("secondary notifier failed",
				slog.String("session_id", record.SessionID),
				slog.Any("error", err))
		}
	}
	return nil
}
