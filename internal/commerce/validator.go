package commerce

import (
	"context"
	"log/slog"
	"strings"

	"github.com/buygag/claimdesk/internal/logging"
)

// Validator applies the claim business rules to an oracle lookup.
type Validator struct {
	oracle Oracle
	logger *slog.Logger
}

// NewValidator builds a validator over the given oracle.
func NewValidator(oracle Oracle, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{oracle: oracle, logger: logger}
}

// Validate checks orderNumber against the oracle once. Rules short-circuit
// in a fixed order: paid, then not yet fulfilled, then email match. An
// order that is both unpaid and fulfilled always reports not_paid.
func (v *Validator) Validate(ctx context.Context, orderNumber, email string) Verdict {
	name := NormalizeOrderName(orderNumber)

	orders, err := v.oracle.FindOrders(ctx, name)
	if err != nil {
		v.logger.Error("order lookup failed", slog.String("order", name), slog.Any("error", err))
		return Invalid(ReasonLookupFailed)
	}
	if len(orders) == 0 {
		v.logger.Info("order not found", slog.String("order", name))
		return Invalid(ReasonNotFound)
	}

	order := orders[0]
	verdict := evaluate(order, email)
	v.logger.Info("order validated",
		slog.String("order", name),
		slog.Int64("order_id", order.ID),
		slog.String("financial_status", order.FinancialStatus),
		slog.String("fulfillment_status", order.FulfillmentStatus),
		slog.String("email", logging.Redact(email)),
		slog.Bool("valid", verdict.Valid),
		slog.String("reason", string(verdict.Reason)),
	)
	return verdict
}

func evaluate(order Order, email string) Verdict {
	if order.FinancialStatus != FinancialStatusPaid {
		return Invalid(ReasonNotPaid)
	}
	if order.FulfillmentStatus == FulfillmentStatusFulfilled {
		return Invalid(ReasonAlreadyFulfilled)
	}
	if !strings.EqualFold(strings.TrimSpace(order.Email), strings.TrimSpace(email)) {
		return Invalid(ReasonEmailMismatch)
	}
	return Valid()
}
