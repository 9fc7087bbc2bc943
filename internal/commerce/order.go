package commerce

import (
	"context"
	"strings"
)

const (
	FinancialStatusPaid        = "paid"
	FulfillmentStatusFulfilled = "fulfilled"
)

// Reason explains why an order cannot be claimed.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonLookupFailed     Reason = "lookup_failed"
	ReasonNotFound         Reason = "not_found"
	ReasonNotPaid          Reason = "not_paid"
	ReasonAlreadyFulfilled Reason = "already_fulfilled"
	ReasonEmailMismatch    Reason = "email_mismatch"
)

var reasonMessages = map[Reason]string{
	ReasonLookupFailed:     "Order lookup failed, please try again.",
	ReasonNotFound:         "Order does not exist.",
	ReasonNotPaid:          "Order not paid yet.",
	ReasonAlreadyFulfilled: "Order already fulfilled.",
	ReasonEmailMismatch:    "Email does not match this order.",
}

// Message is the buyer facing text for the reason.
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return "Order check failed."
}

// Verdict is the tri-state outcome of order validation: valid, invalid
// for a business rule, or invalid because the lookup failed.
type Verdict struct {
	Valid  bool
	Reason Reason
}

// Valid is the passing verdict.
func Valid() Verdict { return Verdict{Valid: true} }

// Invalid builds a failing verdict.
func Invalid(reason Reason) Verdict { return Verdict{Reason: reason} }

// Order is the subset of a commerce record the claim rules need.
type Order struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	FinancialStatus   string `json:"financial_status"`
	FulfillmentStatus string `json:"fulfillment_status"`
}

// Oracle looks up orders by their external name. Matches are returned in
// oracle order.
type Oracle interface {
	FindOrders(ctx context.Context, name string) ([]Order, error)
}

// NormalizeOrderName converts buyer input into the oracle's order name,
// which always carries a leading '#'.
func NormalizeOrderName(orderNumber string) string {
	trimmed := strings.TrimSpace(orderNumber)
	if strings.HasPrefix(trimmed, "#") {
		return trimmed
	}
	return "#" + trimmed
}
