package payment

import (
	"context"

	"frontdesk/internal/domain"
	"frontdesk/internal/modules/actions"
	"frontdesk/internal/modules/orchestrator"
)

type bookingReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
}

type documentLister interface {
	ListDocuments(ctx context.Context, bookingID int64) ([]domain.FinancialDocument, error)
}

type optionLister interface {
	Options(ctx context.Context, b *domain.Booking) ([]actions.Option, error)
}

type actionRunner interface {
	Execute(ctx context.Context, bookingID int64, req actions.Request) (*orchestrator.Result, error)
	Snapshot(bookingID int64) orchestrator.Snapshot
	Dismiss(bookingID int64) error
	Reconcile(ctx context.Context, bookingID int64) (*orchestrator.ReconcileReport, error)
}
