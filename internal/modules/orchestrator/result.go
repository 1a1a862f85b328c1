package orchestrator

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"frontdesk/internal/domain"
	"frontdesk/internal/modules/actions"
	"frontdesk/internal/modules/billing"
)

type ResultKind string

const (
	ResultSuccess              ResultKind = "success"
	ResultPartial              ResultKind = "partial"
	ResultFailure              ResultKind = "failure"
	ResultConfirmationRequired ResultKind = "confirmation_required"
)

// Result is the settled outcome of one action. Charge and Document are set
// only for the sub-operations the action attempted.
type Result struct {
	Kind      ResultKind
	Action    actions.Kind
	BookingID int64

	Charge   *billing.ChargeResult
	Document *billing.DocumentResult

	// Booking is the record after settlement; BookingChanged reports whether
	// the action wrote to it.
	Booking        *domain.Booking
	BookingChanged bool

	Warning      *domain.DuplicateWarning
	Confirmation string

	Message           string
	RetryActions      []actions.Kind
	ReconcileRequired bool

	// Err is the error that made the action fail or only partly succeed.
	Err error

	persistErr error
}

// OutcomeUnknown reports whether the provider may have applied a request
// whose answer was lost.
func (r *Result) OutcomeUnknown() bool {
	if r.Charge != nil && r.Charge.Outcome == domain.OutcomeUnknown {
		return true
	}
	return r.Document != nil && r.Document.Outcome == domain.OutcomeUnknown
}

func successMessage(kind actions.Kind, amount decimal.Decimal, doc *domain.FinancialDocument) string {
	switch kind {
	case actions.KindChargeOnly:
		return fmt.Sprintf("Card charged %s.", amount.StringFixed(2))
	case actions.KindChargeWithInvoiceReceipt:
		return fmt.Sprintf("Card charged %s and invoice receipt %s issued.", amount.StringFixed(2), doc.DocumentNumber)
	case actions.KindInvoiceOnly:
		return fmt.Sprintf("Invoice %s issued.", doc.DocumentNumber)
	case actions.KindInvoiceReceipt:
		return fmt.Sprintf("Invoice receipt %s issued.", doc.DocumentNumber)
	}
	return "Booking confirmation ready."
}

func failureMessage(err error, unknown bool) string {
	if unknown {
		return "The billing provider did not answer. The outcome is unknown: reconcile the booking before trying again."
	}
	switch {
	case domain.IsAuth(err):
		return "The billing provider rejected our credentials. Nothing was charged or issued."
	case domain.IsGateway(err):
		return fmt.Sprintf("The billing provider rejected the request: %s. Nothing was charged or issued.", gatewayReason(err))
	}
	return "The action failed. Nothing was charged or issued."
}

func partialMessage(charge billing.ChargeResult, doc billing.DocumentResult) string {
	if doc.Outcome == domain.OutcomeUnknown {
		return fmt.Sprintf("Card charged %s, but the document outcome is unknown. Reconcile the booking, then issue the document only if it is missing. Do not charge again.",
			charge.Amount.StringFixed(2))
	}
	return fmt.Sprintf("Card charged %s, but the invoice receipt failed: %s. Issue the document without charging again.",
		charge.Amount.StringFixed(2), gatewayReason(doc.Error))
}

func gatewayReason(err error) string {
	if err == nil {
		return "unknown reason"
	}
	var gw *domain.GatewayError
	if errors.As(err, &gw) && gw.Message != "" {
		return gw.Message
	}
	return err.Error()
}
