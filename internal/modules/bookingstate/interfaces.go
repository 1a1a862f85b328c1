package bookingstate

import (
	"context"

	"frontdesk/internal/domain"
)

type bookingWriter interface {
	UpdatePaymentStatus(ctx context.Context, bookingID int64, status domain.PaymentStatus) (*domain.Booking, error)
	SetHasInvoiceReceipt(ctx context.Context, bookingID int64, value bool) (*domain.Booking, error)
}
