package bookingstate

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"frontdesk/internal/domain"
	"frontdesk/internal/modules/billing"
)

var ErrUnknownLocation = errors.New("booking location has no payment status vocabulary")

// Updater writes settled provider outcomes onto the booking record. It only
// applies what the provider reported and never derives state on its own.
type Updater struct {
	bookings bookingWriter
	logger   *zap.Logger
}

func NewUpdater(bookings bookingWriter, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{bookings: bookings, logger: logger.Named("booking_state")}
}

// ApplyChargeResult sets the location's credit status after a succeeded
// charge. Failed or unknown charges leave the booking untouched and return
// (nil, nil).
func (u *Updater) ApplyChargeResult(ctx context.Context, ref billing.BookingRef, res billing.ChargeResult) (*domain.Booking, error) {
	if !res.Succeeded() {
		return nil, nil
	}
	status, ok := domain.PaymentStatusAfterCharge(ref.Location, true)
	if !ok {
		return nil, ErrUnknownLocation
	}
	b, err := u.bookings.UpdatePaymentStatus(ctx, ref.BookingID, status)
	if err != nil {
		u.logger.Error("apply charge result failed",
			zap.Int64("booking_id", ref.BookingID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return nil, err
	}
	u.logger.Info("payment status applied",
		zap.Int64("booking_id", ref.BookingID),
		zap.String("status", string(status)),
		zap.String("transaction_id", res.TransactionID),
	)
	return b, nil
}

// ApplyDocumentResult sets hasInvoiceReceipt after an invoice-receipt was
// issued. A plain invoice changes nothing.
func (u *Updater) ApplyDocumentResult(ctx context.Context, ref billing.BookingRef, res billing.DocumentResult) (*domain.Booking, error) {
	if !res.Succeeded() || res.Document.Type != domain.DocumentInvoiceReceipt {
		return nil, nil
	}
	b, err := u.bookings.SetHasInvoiceReceipt(ctx, ref.BookingID, true)
	if err != nil {
		u.logger.Error("apply document result failed",
			zap.Int64("booking_id", ref.BookingID),
			zap.String("number", res.Document.DocumentNumber),
			zap.Error(err),
		)
		return nil, err
	}
	u.logger.Info("invoice receipt flag applied",
		zap.Int64("booking_id", ref.BookingID),
		zap.String("number", res.Document.DocumentNumber),
	)
	return b, nil
}
