package documents

import (
	"context"

	"go.uber.org/zap"

	"frontdesk/internal/domain"
)

type ledger interface {
	Record(ctx context.Context, doc *domain.FinancialDocument) (bool, error)
	ListByBooking(ctx context.Context, bookingID int64) ([]domain.FinancialDocument, error)
	CountByType(ctx context.Context, bookingID int64, docType domain.DocumentType) (int64, error)
}

// Registry answers which financial documents already exist for a booking.
// It informs the duplicate warning and never blocks issuance.
type Registry struct {
	ledger ledger
	logger *zap.Logger
}

func NewRegistry(l ledger, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{ledger: l, logger: logger.Named("documents")}
}

// ListDocuments returns every document issued for the booking, most recent last.
func (r *Registry) ListDocuments(ctx context.Context, bookingID int64) ([]domain.FinancialDocument, error) {
	if bookingID <= 0 {
		return nil, ErrInvalidBooking
	}
	docs, err := r.ledger.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []domain.FinancialDocument{}
	}
	return docs, nil
}

func (r *Registry) HasDocumentOfType(ctx context.Context, bookingID int64, docType domain.DocumentType) (bool, error) {
	if bookingID <= 0 {
		return false, ErrInvalidBooking
	}
	n, err := r.ledger.CountByType(ctx, bookingID, docType)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Existing returns the booking's documents whose type is one of types.
func (r *Registry) Existing(ctx context.Context, bookingID int64, types ...domain.DocumentType) ([]domain.FinancialDocument, error) {
	docs, err := r.ListDocuments(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return FilterByType(docs, types...), nil
}

// Record adds a document reported by the provider to the ledger.
func (r *Registry) Record(ctx context.Context, doc *domain.FinancialDocument) error {
	inserted, err := r.ledger.Record(ctx, doc)
	if err != nil {
		r.logger.Error("record document failed",
			zap.Int64("booking_id", doc.BookingID),
			zap.String("number", doc.DocumentNumber),
			zap.Error(err),
		)
		return err
	}
	if !inserted {
		r.logger.Debug("document already recorded", zap.String("number", doc.DocumentNumber))
	}
	return nil
}

// Sync records provider-listed documents missing from the ledger and returns
// the ones that were new.
func (r *Registry) Sync(ctx context.Context, provider []domain.FinancialDocument) ([]domain.FinancialDocument, error) {
	var added []domain.FinancialDocument
	for i := range provider {
		doc := provider[i]
		if !doc.Type.Financial() {
			continue
		}
		inserted, err := r.ledger.Record(ctx, &doc)
		if err != nil {
			return added, err
		}
		if inserted {
			added = append(added, doc)
		}
	}
	if len(added) > 0 {
		r.logger.Info("documents reconciled from provider",
			zap.Int64("booking_id", added[0].BookingID),
			zap.Int("added", len(added)),
		)
	}
	return added, nil
}

func FilterByType(docs []domain.FinancialDocument, types ...domain.DocumentType) []domain.FinancialDocument {
	out := make([]domain.FinancialDocument, 0, len(docs))
	for _, d := range docs {
		for _, t := range types {
			if d.Type == t {
				out = append(out, d)
				break
			}
		}
	}
	return out
}
