package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"frontdesk/internal/domain"
	"frontdesk/internal/modules/billing"
	"frontdesk/internal/modules/documents"
	"frontdesk/internal/repository"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) ChargeCard(ctx context.Context, s *billing.Session, ref billing.BookingRef, amount decimal.Decimal, opts ...billing.ChargeOption) (*billing.ChargeResult, error) {
	args := m.Called(ctx, s, ref, amount)
	if r := args.Get(0); r != nil {
		return r.(*billing.ChargeResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) CreateDocument(ctx context.Context, s *billing.Session, ref billing.BookingRef, docType domain.DocumentType, amount decimal.Decimal, method domain.PaymentMethod) (*billing.DocumentResult, error) {
	args := m.Called(ctx, s, ref, docType, amount, method)
	if r := args.Get(0); r != nil {
		return r.(*billing.DocumentResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) ChargeCardWithDocument(ctx context.Context, s *billing.Session, ref billing.BookingRef, amount decimal.Decimal, opts ...billing.ChargeOption) (*billing.CombinedResult, error) {
	args := m.Called(ctx, s, ref, amount)
	if r := args.Get(0); r != nil {
		return r.(*billing.CombinedResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) ListDocuments(ctx context.Context, s *billing.Session, ref billing.BookingRef) ([]domain.FinancialDocument, error) {
	args := m.Called(ctx, s, ref)
	if r := args.Get(0); r != nil {
		return r.([]domain.FinancialDocument), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) ListCharges(ctx context.Context, s *billing.Session, ref billing.BookingRef) ([]billing.ChargeRecord, error) {
	args := m.Called(ctx, s, ref)
	if r := args.Get(0); r != nil {
		return r.([]billing.ChargeRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func amountEq(want int64) interface{} {
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(want)) })
}

type fakeSessions struct {
	mu          sync.Mutex
	err         error
	invalidated []domain.Location
}

func (f *fakeSessions) Session(ctx context.Context, loc domain.Location) (*billing.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &billing.Session{Location: loc, Token: "tok-" + string(loc)}, nil
}

func (f *fakeSessions) Invalidate(loc domain.Location) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, loc)
}

// fakeBookings stands in for repository.BookingRepository.
type fakeBookings struct {
	mu           sync.Mutex
	bookings     map[int64]domain.Booking
	cards        map[int64]domain.StoredCard
	statusWrites int
	flagWrites   int
	writeErr     error
}

func newFakeBookings(bookings ...domain.Booking) *fakeBookings {
	f := &fakeBookings{
		bookings: make(map[int64]domain.Booking),
		cards:    make(map[int64]domain.StoredCard),
	}
	for _, b := range bookings {
		f.bookings[b.ID] = b
	}
	return f
}

func (f *fakeBookings) withCard(bookingID int64, card domain.StoredCard) *fakeBookings {
	f.cards[bookingID] = card
	b := f.bookings[bookingID]
	b.CardCiphertext = []byte("sealed")
	b.CardLast4 = card.Last4()
	f.bookings[bookingID] = b
	return f
}

func (f *fakeBookings) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	return &b, nil
}

func (f *fakeBookings) GetCard(ctx context.Context, bookingID int64) (*domain.StoredCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[bookingID]
	if !ok {
		return nil, repository.ErrNoStoredCard
	}
	return &c, nil
}

func (f *fakeBookings) UpdatePaymentStatus(ctx context.Context, bookingID int64, status domain.PaymentStatus) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	b := f.bookings[bookingID]
	b.PaymentStatus = status
	f.bookings[bookingID] = b
	f.statusWrites++
	return &b, nil
}

func (f *fakeBookings) SetHasInvoiceReceipt(ctx context.Context, bookingID int64, value bool) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	b := f.bookings[bookingID]
	b.HasInvoiceReceipt = value
	f.bookings[bookingID] = b
	f.flagWrites++
	return &b, nil
}

func (f *fakeBookings) get(id int64) domain.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookings[id]
}

// fakeLedger is an in-memory documents ledger.
type fakeLedger struct {
	mu   sync.Mutex
	docs []domain.FinancialDocument
}

func (f *fakeLedger) Record(ctx context.Context, doc *domain.FinancialDocument) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.Location == doc.Location && d.DocumentNumber == doc.DocumentNumber {
			return false, nil
		}
	}
	doc.ID = int64(len(f.docs) + 1)
	f.docs = append(f.docs, *doc)
	return true, nil
}

func (f *fakeLedger) ListByBooking(ctx context.Context, bookingID int64) ([]domain.FinancialDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.FinancialDocument
	for _, d := range f.docs {
		if d.BookingID == bookingID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeLedger) CountByType(ctx context.Context, bookingID int64, docType domain.DocumentType) (int64, error) {
	docs, _ := f.ListByBooking(ctx, bookingID)
	return int64(len(documents.FilterByType(docs, docType))), nil
}

func (f *fakeLedger) count(bookingID int64) int {
	docs, _ := f.ListByBooking(context.Background(), bookingID)
	return len(docs)
}

type published struct {
	room    string
	event   string
	payload interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(room, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{room: room, event: event, payload: payload})
}

func (p *fakePublisher) states() []State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]State, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.payload.(Snapshot).State)
	}
	return out
}

func issuedDocument(bookingID int64, docType domain.DocumentType, number string, amount int64) *billing.DocumentResult {
	return &billing.DocumentResult{
		Outcome: domain.OutcomeSucceeded,
		Type:    docType,
		Document: &domain.FinancialDocument{
			BookingID:      bookingID,
			Location:       domain.LocationOrYehuda,
			Type:           docType,
			DocumentNumber: number,
			Amount:         decimal.NewFromInt(amount),
			CreatedAt:      time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		},
	}
}

func approvedCharge(amount int64) *billing.ChargeResult {
	return &billing.ChargeResult{
		Outcome:       domain.OutcomeSucceeded,
		Amount:        decimal.NewFromInt(amount),
		TransactionID: fmt.Sprintf("tx-%d", amount),
		CardType:      "visa",
	}
}
