package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DocumentType string

const (
	DocumentInvoice        DocumentType = "invoice"
	DocumentInvoiceReceipt DocumentType = "invoice_receipt"
	// DocumentConfirmation has no financial effect and is never sent to the provider.
	DocumentConfirmation DocumentType = "confirmation"
)

func (t DocumentType) Financial() bool {
	return t == DocumentInvoice || t == DocumentInvoiceReceipt
}

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodBit          PaymentMethod = "bit"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCreditCard, MethodBit, MethodBankTransfer:
		return true
	}
	return false
}

// FinancialDocument is a document the billing provider reported as issued.
// A booking may accumulate several documents of the same type.
type FinancialDocument struct {
	ID             int64           `json:"id" gorm:"primaryKey"`
	BookingID      int64           `json:"booking_id" gorm:"not null;index"`
	Location       Location        `json:"location" gorm:"type:varchar(64);not null;uniqueIndex:idx_document_number"`
	Type           DocumentType    `json:"type" gorm:"type:varchar(32);not null;index"`
	DocumentNumber string          `json:"document_number" gorm:"type:varchar(64);not null;uniqueIndex:idx_document_number"`
	ProviderID     string          `json:"provider_id,omitempty" gorm:"type:varchar(128)"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	PaymentMethod  PaymentMethod   `json:"payment_method,omitempty" gorm:"type:varchar(32)"`
	URL            string          `json:"url,omitempty" gorm:"type:text"`
	CreatedAt      time.Time       `json:"created_at" gorm:"index"`
}

func (FinancialDocument) TableName() string { return "financial_documents" }

// Outcome is the settled result of one provider sub-operation.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeUnknown means the request may or may not have been applied by the
	// provider. The booking has to be reconciled before anything is retried.
	OutcomeUnknown Outcome = "unknown"
)
