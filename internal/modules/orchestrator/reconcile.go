package orchestrator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"frontdesk/internal/domain"
	"frontdesk/internal/modules/billing"
	"frontdesk/internal/pkg/lock"
)

// ReconcileReport lists what the provider's ledger showed for a booking and
// what was written back locally.
type ReconcileReport struct {
	BookingID             int64                      `json:"booking_id"`
	ProviderDocuments     []domain.FinancialDocument `json:"provider_documents"`
	DocumentsAdded        []domain.FinancialDocument `json:"documents_added"`
	SucceededCharges      []billing.ChargeRecord     `json:"succeeded_charges"`
	PaymentStatusApplied  bool                       `json:"payment_status_applied"`
	InvoiceReceiptApplied bool                       `json:"invoice_receipt_applied"`
	Booking               *domain.Booking            `json:"booking"`
}

// Reconcile reads the provider's charges and documents for the booking and
// applies them locally. It is the way out of an unknown outcome; nothing is
// re-sent to the provider.
func (o *Orchestrator) Reconcile(ctx context.Context, bookingID int64) (*ReconcileReport, error) {
	switch o.tracker.Get(bookingID).State {
	case StateValidating, StateInFlight:
		return nil, ErrActionInProgress
	}

	b, err := o.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	release, err := o.locker.Acquire(ctx, lockKey(bookingID), o.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, ErrActionInProgress
		}
		return nil, err
	}
	defer release()

	s, err := o.sessions.Session(ctx, b.Location)
	if err != nil {
		return nil, o.gatewayErr(b.Location, err)
	}
	ref := billing.RefFromBooking(b, nil)

	docs, err := o.gateway.ListDocuments(ctx, s, ref)
	if err != nil {
		return nil, o.gatewayErr(b.Location, err)
	}
	charges, err := o.gateway.ListCharges(ctx, s, ref)
	if err != nil {
		return nil, o.gatewayErr(b.Location, err)
	}

	report := &ReconcileReport{
		BookingID:         bookingID,
		ProviderDocuments: docs,
		DocumentsAdded:    []domain.FinancialDocument{},
		SucceededCharges:  []billing.ChargeRecord{},
	}

	added, err := o.documents.Sync(ctx, docs)
	if err != nil {
		return nil, err
	}
	report.DocumentsAdded = append(report.DocumentsAdded, added...)

	for _, c := range charges {
		if c.Succeeded {
			report.SucceededCharges = append(report.SucceededCharges, c)
		}
	}

	if n := len(report.SucceededCharges); n > 0 && !domain.IsCreditStatus(b.PaymentStatus) {
		last := report.SucceededCharges[n-1]
		updated, err := o.updater.ApplyChargeResult(ctx, ref, billing.ChargeResult{
			Outcome:        domain.OutcomeSucceeded,
			Amount:         last.Amount,
			TransactionID:  last.TransactionID,
			CardType:       last.CardType,
			IdempotencyKey: last.IdempotencyKey,
		})
		if err != nil {
			return nil, err
		}
		if updated != nil {
			b = updated
			report.PaymentStatusApplied = true
		}
	}

	if !b.HasInvoiceReceipt {
		for i := range docs {
			if docs[i].Type != domain.DocumentInvoiceReceipt {
				continue
			}
			updated, err := o.updater.ApplyDocumentResult(ctx, ref, billing.DocumentResult{
				Outcome:  domain.OutcomeSucceeded,
				Type:     docs[i].Type,
				Document: &docs[i],
			})
			if err != nil {
				return nil, err
			}
			if updated != nil {
				b = updated
				report.InvoiceReceiptApplied = true
			}
			break
		}
	}
	report.Booking = b

	o.logger.Info("booking reconciled",
		zap.Int64("booking_id", bookingID),
		zap.Int("provider_documents", len(docs)),
		zap.Int("documents_added", len(report.DocumentsAdded)),
		zap.Int("succeeded_charges", len(report.SucceededCharges)),
		zap.Bool("payment_status_applied", report.PaymentStatusApplied),
		zap.Bool("invoice_receipt_applied", report.InvoiceReceiptApplied),
	)
	return report, nil
}

func (o *Orchestrator) gatewayErr(loc domain.Location, err error) error {
	if domain.IsAuth(err) {
		o.sessions.Invalidate(loc)
	}
	return err
}
