package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentCash   PaymentStatus = "cash"
	PaymentOther  PaymentStatus = "other"
)

// Booking is the subset of the front-desk booking record the payment flow
// reads and writes. PaymentStatus and HasInvoiceReceipt are only written by
// bookingstate.Updater after the billing provider reported a result.
type Booking struct {
	ID                int64           `json:"id" gorm:"primaryKey"`
	Location          Location        `json:"location" gorm:"type:varchar(64);not null;index"`
	GuestName         string          `json:"guest_name" gorm:"type:varchar(255);not null"`
	GuestEmail        string          `json:"guest_email,omitempty" gorm:"type:varchar(255)"`
	GuestPhone        string          `json:"guest_phone,omitempty" gorm:"type:varchar(64)"`
	RoomName          string          `json:"room_name,omitempty" gorm:"type:varchar(128)"`
	CheckIn           time.Time       `json:"check_in"`
	CheckOut          time.Time       `json:"check_out"`
	Price             decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	PaymentStatus     PaymentStatus   `json:"payment_status" gorm:"type:varchar(64);not null;default:'unpaid'"`
	HasInvoiceReceipt bool            `json:"has_invoice_receipt" gorm:"not null;default:false"`

	// CardCiphertext holds the sealed StoredCard; see pkg/cardvault.
	CardCiphertext []byte `json:"-" gorm:"column:card_ciphertext"`
	CardLast4      string `json:"card_last4,omitempty" gorm:"column:card_last4;type:varchar(4)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

func (b *Booking) HasStoredCard() bool {
	return len(b.CardCiphertext) > 0
}

// Reference is the external reference the billing provider files charges and
// documents under.
func (b *Booking) Reference() string {
	return BookingReference(b.ID)
}

func BookingReference(bookingID int64) string {
	return fmt.Sprintf("booking-%d", bookingID)
}

// Nights returns the number of nights between check-in and check-out.
func (b *Booking) Nights() int {
	if !b.CheckOut.After(b.CheckIn) {
		return 0
	}
	return int(b.CheckOut.Sub(b.CheckIn).Hours() / 24)
}

// StoredCard is the guest card kept on file for a booking. It is written once
// and read back only to charge.
type StoredCard struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
}

func (c StoredCard) Last4() string {
	digits := onlyDigits(c.Number)
	if len(digits) < 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

func (c StoredCard) Masked() string {
	return "**** " + c.Last4()
}

func onlyDigits(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
