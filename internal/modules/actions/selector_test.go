package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"frontdesk/internal/domain"
)

type MockDocumentChecker struct {
	mock.Mock
}

func (m *MockDocumentChecker) HasDocumentOfType(ctx context.Context, bookingID int64, docType domain.DocumentType) (bool, error) {
	args := m.Called(ctx, bookingID, docType)
	return args.Bool(0), args.Error(1)
}

func bookingWithCard() *domain.Booking {
	return &domain.Booking{
		ID:             3,
		Location:       domain.LocationOrYehuda,
		Price:          decimal.NewFromInt(500),
		CardCiphertext: []byte{1, 2, 3},
		CardLast4:      "9012",
	}
}

func amountPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func validationField(t *testing.T, err error) string {
	t.Helper()
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr), "expected validation error, got %v", err)
	return vErr.Field
}

func TestSelect_EachKind(t *testing.T) {
	s := NewSelector(nil)
	b := bookingWithCard()

	a, err := s.Select(b, Request{Action: "charge_only"})
	require.NoError(t, err)
	assert.Equal(t, ChargeOnly{Amount: decimal.NewFromInt(500)}, a)

	a, err = s.Select(b, Request{Action: "charge_with_invoice_receipt", Amount: amountPtr("120.50")})
	require.NoError(t, err)
	assert.Equal(t, KindChargeWithInvoiceReceipt, a.Kind())
	assert.True(t, AmountOf(a).Equal(decimal.RequireFromString("120.5")))

	a, err = s.Select(b, Request{Action: "invoice_only"})
	require.NoError(t, err)
	assert.IsType(t, InvoiceOnly{}, a)

	a, err = s.Select(b, Request{Action: "invoice_receipt", PaymentMethod: "bit"})
	require.NoError(t, err)
	assert.Equal(t, domain.MethodBit, a.(InvoiceReceipt).Method)

	a, err = s.Select(b, Request{Action: "booking_confirmation"})
	require.NoError(t, err)
	assert.Equal(t, BookingConfirmation{}, a)
	assert.True(t, AmountOf(a).IsZero())
}

func TestSelect_Validation(t *testing.T) {
	s := NewSelector(nil)
	noCard := bookingWithCard()
	noCard.CardCiphertext = nil
	noPrice := bookingWithCard()
	noPrice.Price = decimal.Zero

	cases := []struct {
		name  string
		b     *domain.Booking
		req   Request
		field string
	}{
		{"unknown action", bookingWithCard(), Request{Action: "refund"}, "action"},
		{"zero amount", bookingWithCard(), Request{Action: "charge_only", Amount: amountPtr("0")}, "amount"},
		{"negative amount", bookingWithCard(), Request{Action: "invoice_only", Amount: amountPtr("-1")}, "amount"},
		{"fractional agorot", bookingWithCard(), Request{Action: "invoice_only", Amount: amountPtr("10.001")}, "amount"},
		{"no price to default to", noPrice, Request{Action: "charge_only"}, "amount"},
		{"charge without card", noCard, Request{Action: "charge_only"}, "card"},
		{"combined without card", noCard, Request{Action: "charge_with_invoice_receipt"}, "card"},
		{"receipt without method", bookingWithCard(), Request{Action: "invoice_receipt"}, "payment_method"},
		{"receipt with unknown method", bookingWithCard(), Request{Action: "invoice_receipt", PaymentMethod: "cheque"}, "payment_method"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := s.Select(tc.b, tc.req)
			assert.Nil(t, a)
			assert.Equal(t, tc.field, validationField(t, err))
		})
	}
}

func TestSelect_InvoiceWithoutCardIsFine(t *testing.T) {
	b := bookingWithCard()
	b.CardCiphertext = nil

	a, err := NewSelector(nil).Select(b, Request{Action: "invoice_receipt", PaymentMethod: "cash"})
	require.NoError(t, err)
	assert.Equal(t, KindInvoiceReceipt, a.Kind())
}

func TestKind_DuplicateTypes(t *testing.T) {
	assert.ElementsMatch(t, []domain.DocumentType{domain.DocumentInvoice, domain.DocumentInvoiceReceipt}, KindChargeWithInvoiceReceipt.DuplicateTypes())
	assert.Equal(t, []domain.DocumentType{domain.DocumentInvoice}, KindInvoiceOnly.DuplicateTypes())
	assert.Equal(t, []domain.DocumentType{domain.DocumentInvoiceReceipt}, KindInvoiceReceipt.DuplicateTypes())
	assert.Empty(t, KindChargeOnly.DuplicateTypes())
	assert.Empty(t, KindBookingConfirmation.DuplicateTypes())
	assert.True(t, KindChargeOnly.Charges())
	assert.False(t, KindInvoiceOnly.Charges())
}

func TestOptions_AnnotatesWithoutDisabling(t *testing.T) {
	docs := new(MockDocumentChecker)
	docs.On("HasDocumentOfType", mock.Anything, int64(3), domain.DocumentInvoice).Return(true, nil)
	docs.On("HasDocumentOfType", mock.Anything, int64(3), domain.DocumentInvoiceReceipt).Return(false, nil)

	opts, err := NewSelector(docs).Options(context.Background(), bookingWithCard())
	require.NoError(t, err)
	require.Len(t, opts, 5)

	byKind := map[Kind]Option{}
	for _, o := range opts {
		byKind[o.Kind] = o
		assert.True(t, o.Enabled, "%s should be enabled", o.Kind)
	}
	assert.True(t, byKind[KindInvoiceOnly].AlreadyExists)
	assert.True(t, byKind[KindChargeWithInvoiceReceipt].AlreadyExists)
	assert.False(t, byKind[KindInvoiceReceipt].AlreadyExists)
	assert.False(t, byKind[KindChargeOnly].AlreadyExists)
}

func TestOptions_NoCardDisablesChargeActions(t *testing.T) {
	docs := new(MockDocumentChecker)
	docs.On("HasDocumentOfType", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	b := bookingWithCard()
	b.CardCiphertext = nil

	opts, err := NewSelector(docs).Options(context.Background(), b)
	require.NoError(t, err)
	for _, o := range opts {
		assert.Equal(t, !o.Kind.Charges(), o.Enabled, o.Kind)
	}
}

func TestOptions_RegistryError(t *testing.T) {
	docs := new(MockDocumentChecker)
	docs.On("HasDocumentOfType", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("db down"))

	_, err := NewSelector(docs).Options(context.Background(), bookingWithCard())
	assert.Error(t, err)
}
