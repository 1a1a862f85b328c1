package orchestrator

import (
	"context"

	"github.com/shopspring/decimal"

	"frontdesk/internal/domain"
	"frontdesk/internal/modules/actions"
	"frontdesk/internal/modules/billing"
)

type bookingStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	GetCard(ctx context.Context, bookingID int64) (*domain.StoredCard, error)
}

type gateway interface {
	ChargeCard(ctx context.Context, s *billing.Session, ref billing.BookingRef, amount decimal.Decimal, opts ...billing.ChargeOption) (*billing.ChargeResult, error)
	CreateDocument(ctx context.Context, s *billing.Session, ref billing.BookingRef, docType domain.DocumentType, amount decimal.Decimal, method domain.PaymentMethod) (*billing.DocumentResult, error)
	ChargeCardWithDocument(ctx context.Context, s *billing.Session, ref billing.BookingRef, amount decimal.Decimal, opts ...billing.ChargeOption) (*billing.CombinedResult, error)
	ListDocuments(ctx context.Context, s *billing.Session, ref billing.BookingRef) ([]domain.FinancialDocument, error)
	ListCharges(ctx context.Context, s *billing.Session, ref billing.BookingRef) ([]billing.ChargeRecord, error)
}

type sessionProvider interface {
	Session(ctx context.Context, loc domain.Location) (*billing.Session, error)
	Invalidate(loc domain.Location)
}

type documentRegistry interface {
	Existing(ctx context.Context, bookingID int64, types ...domain.DocumentType) ([]domain.FinancialDocument, error)
	Record(ctx context.Context, doc *domain.FinancialDocument) error
	Sync(ctx context.Context, provider []domain.FinancialDocument) ([]domain.FinancialDocument, error)
}

type stateUpdater interface {
	ApplyChargeResult(ctx context.Context, ref billing.BookingRef, res billing.ChargeResult) (*domain.Booking, error)
	ApplyDocumentResult(ctx context.Context, ref billing.BookingRef, res billing.DocumentResult) (*domain.Booking, error)
}

type actionSelector interface {
	Select(b *domain.Booking, req actions.Request) (actions.Action, error)
}

// Publisher pushes action state changes to other consoles.
type Publisher interface {
	Publish(room, event string, payload interface{})
}
