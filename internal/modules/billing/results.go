package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"frontdesk/internal/domain"
)

// BookingRef is what the provider needs to know about a booking to charge it
// or to issue a document for it.
type BookingRef struct {
	BookingID int64
	Location  domain.Location
	GuestName string
	Card      *domain.StoredCard
}

func (r BookingRef) Reference() string {
	return domain.BookingReference(r.BookingID)
}

func RefFromBooking(b *domain.Booking, card *domain.StoredCard) BookingRef {
	return BookingRef{
		BookingID: b.ID,
		Location:  b.Location,
		GuestName: b.GuestName,
		Card:      card,
	}
}

// ChargeResult is the settled outcome of one charge attempt.
type ChargeResult struct {
	Outcome        domain.Outcome  `json:"outcome"`
	Amount         decimal.Decimal `json:"amount"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	CardType       string          `json:"card_type,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Error          error           `json:"-"`
}

func (r ChargeResult) Succeeded() bool {
	return r.Outcome == domain.OutcomeSucceeded
}

// FailedCharge describes a charge attempt that returned err. Unavailable
// errors produce an unknown outcome, everything else a failed one.
func FailedCharge(amount decimal.Decimal, idempotencyKey string, err error) ChargeResult {
	outcome := domain.OutcomeFailed
	if domain.IsUnavailable(err) {
		outcome = domain.OutcomeUnknown
	}
	return ChargeResult{
		Outcome:        outcome,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		Error:          err,
	}
}

// DocumentResult is the settled outcome of one document issuance.
type DocumentResult struct {
	Outcome  domain.Outcome            `json:"outcome"`
	Type     domain.DocumentType       `json:"type"`
	Document *domain.FinancialDocument `json:"document,omitempty"`
	Error    error                     `json:"-"`
}

func (r DocumentResult) Succeeded() bool {
	return r.Outcome == domain.OutcomeSucceeded && r.Document != nil
}

func FailedDocument(docType domain.DocumentType, err error) DocumentResult {
	outcome := domain.OutcomeFailed
	if domain.IsUnavailable(err) {
		outcome = domain.OutcomeUnknown
	}
	return DocumentResult{Outcome: outcome, Type: docType, Error: err}
}

// CombinedResult keeps the two halves of a charge-with-document call apart:
// the document may fail after the card was charged.
type CombinedResult struct {
	Charge   ChargeResult
	Document DocumentResult
}

// ChargeRecord is a charge as listed by the provider's ledger.
type ChargeRecord struct {
	TransactionID  string          `json:"transaction_id"`
	Succeeded      bool            `json:"succeeded"`
	Amount         decimal.Decimal `json:"amount"`
	CardType       string          `json:"card_type,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
