package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"frontdesk/internal/domain"
	"frontdesk/internal/pkg/cardvault"
)

var (
	ErrBookingNotFound   = errors.New("booking not found")
	ErrCardAlreadyStored = errors.New("card already stored for booking")
	ErrNoStoredCard      = errors.New("no card stored for booking")
)

// BookingRepository is the front-desk booking store as seen by the payment
// flow: price, location and card are read, payment status and the
// invoice-receipt flag are written.
type BookingRepository struct {
	db    *gorm.DB
	vault *cardvault.Vault
}

func NewBookingRepository(db *gorm.DB, vault *cardvault.Vault) *BookingRepository {
	return &BookingRepository{db: db, vault: vault}
}

func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	if b.PaymentStatus == "" {
		b.PaymentStatus = domain.PaymentUnpaid
	}
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

// StoreCard seals and saves the guest card. A booking's card can be written
// only once.
func (r *BookingRepository) StoreCard(ctx context.Context, bookingID int64, card domain.StoredCard) error {
	sealed, err := r.vault.Seal(card)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b domain.Booking
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&b, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookingNotFound
			}
			return err
		}
		if b.HasStoredCard() {
			return ErrCardAlreadyStored
		}
		return tx.Model(&domain.Booking{}).
			Where("id = ? AND card_ciphertext IS NULL", bookingID).
			Updates(map[string]interface{}{
				"card_ciphertext": sealed,
				"card_last4":      card.Last4(),
			}).Error
	})
}

func (r *BookingRepository) GetCard(ctx context.Context, bookingID int64) (*domain.StoredCard, error) {
	b, err := r.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.HasStoredCard() {
		return nil, ErrNoStoredCard
	}
	return r.vault.Open(b.CardCiphertext)
}

func (r *BookingRepository) UpdatePaymentStatus(ctx context.Context, bookingID int64, status domain.PaymentStatus) (*domain.Booking, error) {
	return r.update(ctx, bookingID, "payment_status", status)
}

func (r *BookingRepository) SetHasInvoiceReceipt(ctx context.Context, bookingID int64, value bool) (*domain.Booking, error) {
	return r.update(ctx, bookingID, "has_invoice_receipt", value)
}

func (r *BookingRepository) update(ctx context.Context, bookingID int64, column string, value interface{}) (*domain.Booking, error) {
	res := r.db.WithContext(ctx).Model(&domain.Booking{}).Where("id = ?", bookingID).Update(column, value)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrBookingNotFound
	}
	return r.GetByID(ctx, bookingID)
}
