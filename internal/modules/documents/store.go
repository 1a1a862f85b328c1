package documents

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"frontdesk/internal/domain"
)

// Store is the local ledger of documents the provider reported as issued.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Record saves doc. It reports false when the provider document was already
// recorded, which is not an error.
func (s *Store) Record(ctx context.Context, doc *domain.FinancialDocument) (bool, error) {
	if doc.BookingID <= 0 {
		return false, ErrInvalidBooking
	}
	if strings.TrimSpace(doc.DocumentNumber) == "" {
		return false, ErrMissingNumber
	}
	if !doc.Type.Financial() {
		return false, ErrNotFinancial
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "location"}, {Name: "document_number"}},
			DoNothing: true,
		}).
		Create(doc)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListByBooking(ctx context.Context, bookingID int64) ([]domain.FinancialDocument, error) {
	var docs []domain.FinancialDocument
	err := s.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&docs).Error
	return docs, err
}

func (s *Store) CountByType(ctx context.Context, bookingID int64, docType domain.DocumentType) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&domain.FinancialDocument{}).
		Where("booking_id = ? AND type = ?", bookingID, docType).
		Count(&n).Error
	return n, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
