package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"frontdesk/internal/domain"
	"frontdesk/internal/modules/actions"
	"frontdesk/internal/modules/billing"
	"frontdesk/internal/pkg/lock"
	"frontdesk/internal/repository"
)

const defaultLockTTL = 2 * time.Minute

type Config struct {
	LockTTL  time.Duration
	Currency string
}

type Deps struct {
	Bookings  bookingStore
	Gateway   gateway
	Sessions  sessionProvider
	Documents documentRegistry
	Updater   stateUpdater
	Selector  actionSelector
	Locker    lock.Locker
	Tracker   *Tracker
}

// Orchestrator runs one front-desk action at a time per booking against the
// billing provider and writes the reported outcome back to the booking.
type Orchestrator struct {
	bookings  bookingStore
	gateway   gateway
	sessions  sessionProvider
	documents documentRegistry
	updater   stateUpdater
	selector  actionSelector
	locker    lock.Locker
	tracker   *Tracker

	cfg     Config
	logger  *zap.Logger
	metrics *Metrics
}

func New(deps Deps, cfg Config, logger *zap.Logger, metrics *Metrics) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.Currency == "" {
		cfg.Currency = "ILS"
	}
	if deps.Tracker == nil {
		deps.Tracker = NewTracker(nil)
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewMemoryLocker()
	}
	return &Orchestrator{
		bookings:  deps.Bookings,
		gateway:   deps.Gateway,
		sessions:  deps.Sessions,
		documents: deps.Documents,
		updater:   deps.Updater,
		selector:  deps.Selector,
		locker:    deps.Locker,
		tracker:   deps.Tracker,
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
		metrics:   metrics,
	}
}

// Snapshot returns the booking's current action state.
func (o *Orchestrator) Snapshot(bookingID int64) Snapshot {
	return o.tracker.Get(bookingID)
}

// Dismiss clears a settled result or an unanswered duplicate warning.
func (o *Orchestrator) Dismiss(bookingID int64) error {
	return o.tracker.Dismiss(bookingID)
}

// Execute runs the action described by req against the booking. Returned
// errors mean nothing was sent to the provider (bad input, busy booking,
// missing booking). Provider outcomes, failures included, come back as a
// Result.
func (o *Orchestrator) Execute(ctx context.Context, bookingID int64, req actions.Request) (*Result, error) {
	kind := actions.Kind(strings.TrimSpace(req.Action))
	label := metricLabel(kind)

	b, err := o.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if err := o.tracker.Begin(bookingID, kind); err != nil {
		o.metrics.inc(label, resultBusy)
		return nil, err
	}

	action, err := o.selector.Select(b, req)
	if err != nil {
		o.reset(bookingID)
		o.metrics.inc(label, resultInvalid)
		return nil, err
	}

	if action.Kind() == actions.KindBookingConfirmation {
		o.reset(bookingID)
		text, err := renderConfirmation(b, o.cfg.Currency)
		if err != nil {
			return nil, err
		}
		o.metrics.inc(label, string(ResultSuccess))
		return &Result{
			Kind:         ResultSuccess,
			Action:       action.Kind(),
			BookingID:    b.ID,
			Booking:      b,
			Confirmation: text,
			Message:      successMessage(action.Kind(), decimal.Zero, nil),
		}, nil
	}

	release, err := o.locker.Acquire(ctx, lockKey(bookingID), o.cfg.LockTTL)
	if err != nil {
		o.reset(bookingID)
		if errors.Is(err, lock.ErrLocked) {
			o.metrics.inc(label, resultBusy)
			return nil, ErrActionInProgress
		}
		return nil, err
	}
	defer release()

	warning, err := o.duplicates(ctx, b, action.Kind(), req.AcknowledgedDocuments)
	if err != nil {
		o.reset(bookingID)
		return nil, err
	}
	if warning != nil {
		if err := o.tracker.Transition(bookingID, StateAwaitingConfirmation); err != nil {
			o.logger.Warn("state transition failed", zap.Int64("booking_id", bookingID), zap.Error(err))
		}
		o.metrics.inc(label, string(ResultConfirmationRequired))
		return &Result{
			Kind:      ResultConfirmationRequired,
			Action:    action.Kind(),
			BookingID: b.ID,
			Booking:   b,
			Warning:   warning,
			Message:   warning.Message(),
		}, nil
	}

	var card *domain.StoredCard
	if action.Kind().Charges() {
		card, err = o.loadCard(ctx, bookingID)
		if err != nil {
			o.reset(bookingID)
			if domain.IsValidation(err) {
				o.metrics.inc(label, resultInvalid)
			}
			return nil, err
		}
	}

	if err := o.tracker.Transition(bookingID, StateInFlight); err != nil {
		o.reset(bookingID)
		return nil, err
	}

	// Once a request may have reached the provider its outcome is written
	// back even if the caller goes away.
	persistCtx := context.WithoutCancel(ctx)
	res := o.run(ctx, persistCtx, b, billing.RefFromBooking(b, card), action)

	if err := o.tracker.Settle(bookingID, res); err != nil {
		o.logger.Error("settle state failed", zap.Int64("booking_id", bookingID), zap.Error(err))
	}
	o.metrics.inc(label, string(res.Kind))

	fields := []zap.Field{
		zap.Int64("booking_id", bookingID),
		zap.String("action", string(res.Action)),
		zap.String("result", string(res.Kind)),
		zap.Bool("reconcile_required", res.ReconcileRequired),
	}
	if res.Err != nil {
		o.logger.Warn("action settled", append(fields, zap.Error(res.Err))...)
	} else {
		o.logger.Info("action settled", fields...)
	}
	return res, nil
}

func (o *Orchestrator) run(ctx, persistCtx context.Context, b *domain.Booking, ref billing.BookingRef, action actions.Action) *Result {
	res := &Result{Action: action.Kind(), BookingID: b.ID, Booking: b}
	amount := actions.AmountOf(action)

	s, err := o.sessions.Session(ctx, ref.Location)
	if err != nil {
		o.fail(res, ref.Location, err)
		return res
	}

	switch a := action.(type) {
	case actions.ChargeOnly:
		o.chargeOnly(ctx, persistCtx, s, ref, a.Amount, res)
	case actions.ChargeWithInvoiceReceipt:
		o.chargeWithInvoiceReceipt(ctx, persistCtx, s, ref, a.Amount, res)
	case actions.InvoiceOnly:
		o.issue(ctx, persistCtx, s, ref, domain.DocumentInvoice, a.Amount, "", res)
	case actions.InvoiceReceipt:
		o.issue(ctx, persistCtx, s, ref, domain.DocumentInvoiceReceipt, a.Amount, a.Method, res)
	default:
		o.fail(res, ref.Location, domain.NewValidationError("action", fmt.Sprintf("unsupported action %q", action.Kind())))
		return res
	}
	o.finish(res, amount)
	return res
}

func (o *Orchestrator) chargeOnly(ctx, persistCtx context.Context, s *billing.Session, ref billing.BookingRef, amount decimal.Decimal, res *Result) {
	key := uuid.NewString()
	charge, err := o.gateway.ChargeCard(ctx, s, ref, amount, billing.WithIdempotencyKey(key))
	if err != nil {
		failed := billing.FailedCharge(amount, key, err)
		res.Charge = &failed
		o.fail(res, ref.Location, err)
		return
	}
	res.Charge = charge
	o.applyCharge(persistCtx, ref, *charge, res)
}

func (o *Orchestrator) chargeWithInvoiceReceipt(ctx, persistCtx context.Context, s *billing.Session, ref billing.BookingRef, amount decimal.Decimal, res *Result) {
	key := uuid.NewString()
	combined, err := o.gateway.ChargeCardWithDocument(ctx, s, ref, amount, billing.WithIdempotencyKey(key))
	if err != nil {
		failed := billing.FailedCharge(amount, key, err)
		res.Charge = &failed
		o.fail(res, ref.Location, err)
		return
	}
	res.Charge = &combined.Charge
	res.Document = &combined.Document

	// The card was charged whatever happened to the document.
	o.applyCharge(persistCtx, ref, combined.Charge, res)

	if combined.Document.Succeeded() {
		o.recordDocument(persistCtx, combined.Document.Document, res)
		o.applyDocument(persistCtx, ref, combined.Document, res)
		return
	}

	res.Kind = ResultPartial
	res.Err = combined.Document.Error
	res.Message = partialMessage(combined.Charge, combined.Document)
	if combined.Document.Outcome == domain.OutcomeUnknown {
		res.ReconcileRequired = true
		return
	}
	res.RetryActions = []actions.Kind{actions.KindInvoiceReceipt, actions.KindInvoiceOnly}
}

func (o *Orchestrator) issue(ctx, persistCtx context.Context, s *billing.Session, ref billing.BookingRef, docType domain.DocumentType, amount decimal.Decimal, method domain.PaymentMethod, res *Result) {
	doc, err := o.gateway.CreateDocument(ctx, s, ref, docType, amount, method)
	if err != nil {
		failed := billing.FailedDocument(docType, err)
		res.Document = &failed
		o.fail(res, ref.Location, err)
		if !res.ReconcileRequired && !domain.IsAuth(err) {
			res.RetryActions = []actions.Kind{res.Action}
		}
		return
	}
	res.Document = doc
	o.recordDocument(persistCtx, doc.Document, res)
	o.applyDocument(persistCtx, ref, *doc, res)
}

func (o *Orchestrator) fail(res *Result, loc domain.Location, err error) {
	if domain.IsAuth(err) {
		o.sessions.Invalidate(loc)
	}
	res.Kind = ResultFailure
	res.Err = err
	res.ReconcileRequired = res.OutcomeUnknown()
	res.Message = failureMessage(err, res.ReconcileRequired)
}

// finish fills in the success result and downgrades it when the provider
// outcome could not be saved locally.
func (o *Orchestrator) finish(res *Result, amount decimal.Decimal) {
	if res.Kind == "" {
		res.Kind = ResultSuccess
		var doc *domain.FinancialDocument
		if res.Document != nil {
			doc = res.Document.Document
		}
		res.Message = successMessage(res.Action, amount, doc)
	}
	if res.persistErr == nil {
		return
	}
	res.ReconcileRequired = true
	if res.Kind == ResultSuccess {
		res.Kind = ResultPartial
		res.Err = res.persistErr
		res.Message = "The billing provider completed the action, but saving the result locally failed. Reconcile the booking and do not repeat the action."
		return
	}
	res.Message += " Saving the result locally also failed, so reconcile the booking first."
}

func (o *Orchestrator) applyCharge(ctx context.Context, ref billing.BookingRef, charge billing.ChargeResult, res *Result) {
	updated, err := o.updater.ApplyChargeResult(ctx, ref, charge)
	if err != nil {
		res.persistErr = err
		return
	}
	if updated != nil {
		res.Booking = updated
		res.BookingChanged = true
	}
}

func (o *Orchestrator) applyDocument(ctx context.Context, ref billing.BookingRef, doc billing.DocumentResult, res *Result) {
	updated, err := o.updater.ApplyDocumentResult(ctx, ref, doc)
	if err != nil {
		res.persistErr = err
		return
	}
	if updated != nil {
		res.Booking = updated
		res.BookingChanged = true
	}
}

func (o *Orchestrator) recordDocument(ctx context.Context, doc *domain.FinancialDocument, res *Result) {
	if doc == nil {
		return
	}
	if err := o.documents.Record(ctx, doc); err != nil {
		res.persistErr = err
	}
}

// duplicates returns a warning unless every existing document the action
// could duplicate was acknowledged by the caller.
func (o *Orchestrator) duplicates(ctx context.Context, b *domain.Booking, kind actions.Kind, acknowledged []string) (*domain.DuplicateWarning, error) {
	types := kind.DuplicateTypes()
	if len(types) == 0 {
		return nil, nil
	}
	existing, err := o.documents.Existing(ctx, b.ID, types...)
	if err != nil {
		return nil, err
	}
	acked := make(map[string]struct{}, len(acknowledged))
	for _, n := range acknowledged {
		acked[strings.TrimSpace(n)] = struct{}{}
	}
	for _, d := range existing {
		if _, ok := acked[d.DocumentNumber]; !ok {
			return &domain.DuplicateWarning{BookingID: b.ID, Types: types, Existing: existing}, nil
		}
	}
	return nil, nil
}

func (o *Orchestrator) loadCard(ctx context.Context, bookingID int64) (*domain.StoredCard, error) {
	card, err := o.bookings.GetCard(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNoStoredCard) {
			return nil, domain.NewValidationError("card", "booking has no stored card")
		}
		return nil, err
	}
	if err := billing.ValidateCard(card); err != nil {
		return nil, err
	}
	return card, nil
}

func (o *Orchestrator) reset(bookingID int64) {
	if err := o.tracker.Transition(bookingID, StateIdle); err != nil {
		o.logger.Warn("reset state failed", zap.Int64("booking_id", bookingID), zap.Error(err))
	}
}

func lockKey(bookingID int64) string {
	return fmt.Sprintf("booking:%d", bookingID)
}

func metricLabel(kind actions.Kind) string {
	if !kind.Valid() {
		return "unknown"
	}
	return string(kind)
}
