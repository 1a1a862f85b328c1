package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"frontdesk/internal/domain"
)

func TestValidateCard(t *testing.T) {
	cases := []struct {
		name  string
		card  *domain.StoredCard
		field string
	}{
		{name: "valid 16 digits", card: &domain.StoredCard{Number: "4580000000000000", Expiry: "12/29", CVV: "123"}},
		{name: "valid spaced number", card: &domain.StoredCard{Number: "4580 0000 0000 0000", Expiry: "12/2029", CVV: "1234"}},
		{name: "valid 13 digits compact expiry", card: &domain.StoredCard{Number: "4222222222222", Expiry: "0130", CVV: "999"}},
		{name: "valid 19 digits dashed expiry", card: &domain.StoredCard{Number: "6759649826438453001", Expiry: "05-31", CVV: "000"}},
		{name: "missing card", card: nil, field: "card"},
		{name: "number too short", card: &domain.StoredCard{Number: "458000000000", Expiry: "12/29", CVV: "123"}, field: "card.number"},
		{name: "number too long", card: &domain.StoredCard{Number: "45800000000000000000", Expiry: "12/29", CVV: "123"}, field: "card.number"},
		{name: "number with letters", card: &domain.StoredCard{Number: "4580abcd00000000", Expiry: "12/29", CVV: "123"}, field: "card.number"},
		{name: "month 13", card: &domain.StoredCard{Number: "4580000000000000", Expiry: "13/29", CVV: "123"}, field: "card.expiry"},
		{name: "month 00", card: &domain.StoredCard{Number: "4580000000000000", Expiry: "00/29", CVV: "123"}, field: "card.expiry"},
		{name: "three digit year", card: &domain.StoredCard{Number: "4580000000000000", Expiry: "12/029", CVV: "123"}, field: "card.expiry"},
		{name: "cvv too short", card: &domain.StoredCard{Number: "4580000000000000", Expiry: "12/29", CVV: "12"}, field: "card.cvv"},
		{name: "cvv too long", card: &domain.StoredCard{Number: "4580000000000000", Expiry: "12/29", CVV: "12345"}, field: "card.cvv"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCard(tc.card)
			if tc.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *domain.ValidationError
			if assert.ErrorAs(t, err, &verr) {
				assert.Equal(t, tc.field, verr.Field)
			}
		})
	}
}

func TestParseExpiry(t *testing.T) {
	m, y, ok := ParseExpiry("07/27")
	assert.True(t, ok)
	assert.Equal(t, 7, m)
	assert.Equal(t, 2027, y)

	m, y, ok = ParseExpiry("112031")
	assert.True(t, ok)
	assert.Equal(t, 11, m)
	assert.Equal(t, 2031, y)

	assert.Equal(t, "07/27", wireExpiry("07/2027"))
	assert.Equal(t, "01/30", wireExpiry("0130"))
}
