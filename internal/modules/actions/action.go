package actions

import (
	"github.com/shopspring/decimal"

	"frontdesk/internal/domain"
)

// Kind names one of the five mutually exclusive front-desk intents.
type Kind string

const (
	KindChargeOnly               Kind = "charge_only"
	KindChargeWithInvoiceReceipt Kind = "charge_with_invoice_receipt"
	KindInvoiceOnly              Kind = "invoice_only"
	KindInvoiceReceipt           Kind = "invoice_receipt"
	KindBookingConfirmation      Kind = "booking_confirmation"
)

// Kinds lists every action in display order.
func Kinds() []Kind {
	return []Kind{
		KindChargeOnly,
		KindChargeWithInvoiceReceipt,
		KindInvoiceOnly,
		KindInvoiceReceipt,
		KindBookingConfirmation,
	}
}

func (k Kind) Valid() bool {
	switch k {
	case KindChargeOnly, KindChargeWithInvoiceReceipt, KindInvoiceOnly, KindInvoiceReceipt, KindBookingConfirmation:
		return true
	}
	return false
}

// Charges reports whether the action charges the stored card.
func (k Kind) Charges() bool {
	return k == KindChargeOnly || k == KindChargeWithInvoiceReceipt
}

// DuplicateTypes are the existing document types the caller must acknowledge
// before the action may issue another document.
func (k Kind) DuplicateTypes() []domain.DocumentType {
	switch k {
	case KindChargeWithInvoiceReceipt:
		return []domain.DocumentType{domain.DocumentInvoice, domain.DocumentInvoiceReceipt}
	case KindInvoiceOnly:
		return []domain.DocumentType{domain.DocumentInvoice}
	case KindInvoiceReceipt:
		return []domain.DocumentType{domain.DocumentInvoiceReceipt}
	}
	return nil
}

func (k Kind) Label() string {
	switch k {
	case KindChargeOnly:
		return "Charge card"
	case KindChargeWithInvoiceReceipt:
		return "Charge card and issue invoice receipt"
	case KindInvoiceOnly:
		return "Issue invoice"
	case KindInvoiceReceipt:
		return "Issue invoice receipt"
	case KindBookingConfirmation:
		return "Booking confirmation"
	}
	return string(k)
}

// Action is a validated intent. The concrete types below are the only
// implementations.
type Action interface {
	Kind() Kind
	isAction()
}

type ChargeOnly struct {
	Amount decimal.Decimal
}

type ChargeWithInvoiceReceipt struct {
	Amount decimal.Decimal
}

type InvoiceOnly struct {
	Amount decimal.Decimal
}

type InvoiceReceipt struct {
	Amount decimal.Decimal
	Method domain.PaymentMethod
}

type BookingConfirmation struct{}

func (ChargeOnly) Kind() Kind               { return KindChargeOnly }
func (ChargeWithInvoiceReceipt) Kind() Kind { return KindChargeWithInvoiceReceipt }
func (InvoiceOnly) Kind() Kind              { return KindInvoiceOnly }
func (InvoiceReceipt) Kind() Kind           { return KindInvoiceReceipt }
func (BookingConfirmation) Kind() Kind      { return KindBookingConfirmation }

func (ChargeOnly) isAction()               {}
func (ChargeWithInvoiceReceipt) isAction() {}
func (InvoiceOnly) isAction()              {}
func (InvoiceReceipt) isAction()           {}
func (BookingConfirmation) isAction()      {}

// AmountOf returns the amount an action moves, zero for booking_confirmation.
func AmountOf(a Action) decimal.Decimal {
	switch v := a.(type) {
	case ChargeOnly:
		return v.Amount
	case ChargeWithInvoiceReceipt:
		return v.Amount
	case InvoiceOnly:
		return v.Amount
	case InvoiceReceipt:
		return v.Amount
	}
	return decimal.Zero
}
