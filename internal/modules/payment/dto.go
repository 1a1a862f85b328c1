package payment

import (
	"github.com/shopspring/decimal"

	"frontdesk/internal/domain"
	"frontdesk/internal/modules/actions"
	"frontdesk/internal/modules/billing"
	"frontdesk/internal/modules/orchestrator"
)

type ExecuteActionRequest struct {
	Action                string           `json:"action" validate:"required"`
	Amount                *decimal.Decimal `json:"amount,omitempty"`
	PaymentMethod         string           `json:"payment_method,omitempty"`
	AcknowledgedDocuments []string         `json:"acknowledged_documents,omitempty" validate:"omitempty,dive,required"`
}

func (r ExecuteActionRequest) toActionRequest() actions.Request {
	return actions.Request{
		Action:                r.Action,
		Amount:                r.Amount,
		PaymentMethod:         r.PaymentMethod,
		AcknowledgedDocuments: r.AcknowledgedDocuments,
	}
}

type ActionsResponse struct {
	Booking *domain.Booking       `json:"booking"`
	Options []actions.Option      `json:"options"`
	State   orchestrator.Snapshot `json:"state"`
}

type ChargeOutcome struct {
	Outcome        domain.Outcome  `json:"outcome"`
	Amount         decimal.Decimal `json:"amount"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	CardType       string          `json:"card_type,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Error          string          `json:"error,omitempty"`
}

type DocumentOutcome struct {
	Outcome  domain.Outcome            `json:"outcome"`
	Type     domain.DocumentType       `json:"type"`
	Document *domain.FinancialDocument `json:"document,omitempty"`
	Error    string                    `json:"error,omitempty"`
}

type ActionResponse struct {
	Result            orchestrator.ResultKind  `json:"result"`
	Action            actions.Kind             `json:"action"`
	BookingID         int64                    `json:"booking_id"`
	Message           string                   `json:"message"`
	Charge            *ChargeOutcome           `json:"charge,omitempty"`
	Document          *DocumentOutcome         `json:"document,omitempty"`
	Booking           *domain.Booking          `json:"booking,omitempty"`
	BookingChanged    bool                     `json:"booking_changed"`
	Warning           *domain.DuplicateWarning `json:"warning,omitempty"`
	Confirmation      string                   `json:"confirmation,omitempty"`
	RetryActions      []actions.Kind           `json:"retry_actions,omitempty"`
	ReconcileRequired bool                     `json:"reconcile_required"`
}

func newActionResponse(res *orchestrator.Result) ActionResponse {
	out := ActionResponse{
		Result:            res.Kind,
		Action:            res.Action,
		BookingID:         res.BookingID,
		Message:           res.Message,
		Booking:           res.Booking,
		BookingChanged:    res.BookingChanged,
		Warning:           res.Warning,
		Confirmation:      res.Confirmation,
		RetryActions:      res.RetryActions,
		ReconcileRequired: res.ReconcileRequired,
	}
	if res.Charge != nil {
		out.Charge = chargeOutcome(res.Charge)
	}
	if res.Document != nil {
		out.Document = documentOutcome(res.Document)
	}
	return out
}

func chargeOutcome(c *billing.ChargeResult) *ChargeOutcome {
	return &ChargeOutcome{
		Outcome:        c.Outcome,
		Amount:         c.Amount,
		TransactionID:  c.TransactionID,
		CardType:       c.CardType,
		IdempotencyKey: c.IdempotencyKey,
		Error:          errString(c.Error),
	}
}

func documentOutcome(d *billing.DocumentResult) *DocumentOutcome {
	return &DocumentOutcome{
		Outcome:  d.Outcome,
		Type:     d.Type,
		Document: d.Document,
		Error:    errString(d.Error),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
