package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wire format of the billing provider's REST API.

const (
	chargeApproved = "approved"
	chargeDeclined = "declined"
	documentIssued = "issued"
)

type loginRequest struct {
	Tenant    string `json:"tenant"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type cardPayload struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
}

type customerPayload struct {
	Name string `json:"name"`
}

type chargeRequest struct {
	Reference   string          `json:"reference"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	Card        cardPayload     `json:"card"`
	Customer    customerPayload `json:"customer"`
}

type chargeResponse struct {
	TransactionID  string          `json:"transaction_id"`
	Status         string          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	CardType       string          `json:"card_type"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	ErrorCode      string          `json:"error_code,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at,omitempty"`
}

type documentSpec struct {
	Type          string `json:"type"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

type documentRequest struct {
	Reference     string          `json:"reference"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Customer      customerPayload `json:"customer"`
}

type documentResponse struct {
	ID            string          `json:"id"`
	Number        string          `json:"number"`
	Type          string          `json:"type"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	URL           string          `json:"url,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type chargeWithDocumentRequest struct {
	chargeRequest
	Document documentSpec `json:"document"`
}

type documentOutcomePayload struct {
	Status       string            `json:"status"`
	Document     *documentResponse `json:"document,omitempty"`
	ErrorCode    string            `json:"error_code,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

type chargeWithDocumentResponse struct {
	Charge   chargeResponse          `json:"charge"`
	Document *documentOutcomePayload `json:"document,omitempty"`
}

type documentsResponse struct {
	Documents []documentResponse `json:"documents"`
}

type chargesResponse struct {
	Charges []chargeResponse `json:"charges"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
