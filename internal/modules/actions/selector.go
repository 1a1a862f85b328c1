package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"frontdesk/internal/domain"
)

// Request is the caller's raw selection.
type Request struct {
	Action                string
	Amount                *decimal.Decimal
	PaymentMethod         string
	AcknowledgedDocuments []string
}

type documentChecker interface {
	HasDocumentOfType(ctx context.Context, bookingID int64, docType domain.DocumentType) (bool, error)
}

// Option describes how an action is offered for a booking.
type Option struct {
	Kind           Kind   `json:"action"`
	Label          string `json:"label"`
	Enabled        bool   `json:"enabled"`
	DisabledReason string `json:"disabled_reason,omitempty"`
	AlreadyExists  bool   `json:"already_exists"`
}

type Selector struct {
	documents documentChecker
}

func NewSelector(documents documentChecker) *Selector {
	return &Selector{documents: documents}
}

// Select validates req against the booking and returns the matching action.
// A missing amount defaults to the booking price.
func (s *Selector) Select(b *domain.Booking, req Request) (Action, error) {
	kind := Kind(strings.TrimSpace(req.Action))
	if !kind.Valid() {
		return nil, domain.NewValidationError("action", fmt.Sprintf("unknown action %q", req.Action))
	}
	if kind == KindBookingConfirmation {
		return BookingConfirmation{}, nil
	}

	amount := b.Price
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("amount", "amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, domain.NewValidationError("amount", "amount has more than two decimal places")
	}
	if kind.Charges() && !b.HasStoredCard() {
		return nil, domain.NewValidationError("card", "booking has no stored card")
	}

	switch kind {
	case KindChargeOnly:
		return ChargeOnly{Amount: amount}, nil
	case KindChargeWithInvoiceReceipt:
		return ChargeWithInvoiceReceipt{Amount: amount}, nil
	case KindInvoiceOnly:
		return InvoiceOnly{Amount: amount}, nil
	default:
		method := domain.PaymentMethod(strings.TrimSpace(req.PaymentMethod))
		if method == "" {
			return nil, domain.NewValidationError("payment_method", "payment method is required for an invoice receipt")
		}
		if !method.Valid() {
			return nil, domain.NewValidationError("payment_method", fmt.Sprintf("unknown payment method %q", req.PaymentMethod))
		}
		return InvoiceReceipt{Amount: amount, Method: method}, nil
	}
}

// Options lists all five actions for the booking. Existing documents only
// annotate an option, they never disable it.
func (s *Selector) Options(ctx context.Context, b *domain.Booking) ([]Option, error) {
	exists := make(map[domain.DocumentType]bool, 2)
	for _, t := range []domain.DocumentType{domain.DocumentInvoice, domain.DocumentInvoiceReceipt} {
		has, err := s.documents.HasDocumentOfType(ctx, b.ID, t)
		if err != nil {
			return nil, err
		}
		exists[t] = has
	}

	opts := make([]Option, 0, len(Kinds()))
	for _, k := range Kinds() {
		opt := Option{Kind: k, Label: k.Label(), Enabled: true}
		for _, t := range k.DuplicateTypes() {
			if exists[t] {
				opt.AlreadyExists = true
			}
		}
		if k.Charges() && !b.HasStoredCard() {
			opt.Enabled = false
			opt.DisabledReason = "no stored card"
		}
		if k != KindBookingConfirmation && !b.Price.IsPositive() {
			opt.Enabled = false
			opt.DisabledReason = "booking has no price"
		}
		opts = append(opts, opt)
	}
	return opts, nil
}
