package domain

import "strings"

// Location is a hotel property. Each one is its own billing tenant and has its
// own payment status vocabulary.
type Location string

const (
	LocationOrYehuda   Location = "or_yehuda"
	LocationRothschild Location = "rothschild"
)

// creditStatus is the payment status code a booking takes after a card
// charge, per location.
var creditStatus = map[Location]PaymentStatus{
	LocationOrYehuda:   "credit_or_yehuda",
	LocationRothschild: "credit_rothschild",
}

func ParseLocation(s string) (Location, bool) {
	loc := Location(strings.ToLower(strings.TrimSpace(s)))
	_, ok := creditStatus[loc]
	return loc, ok
}

func (l Location) Valid() bool {
	_, ok := creditStatus[l]
	return ok
}

// Locations returns every known location in a stable order.
func Locations() []Location {
	return []Location{LocationOrYehuda, LocationRothschild}
}

// PaymentStatusAfterCharge returns the status a booking takes after a card
// charge at loc. The second value is false when the booking must keep its
// current status: the charge did not succeed or the location is unknown.
func PaymentStatusAfterCharge(loc Location, chargeSucceeded bool) (PaymentStatus, bool) {
	if !chargeSucceeded {
		return "", false
	}
	status, ok := creditStatus[loc]
	if !ok {
		return "", false
	}
	return status, true
}

// IsCreditStatus reports whether status is a card payment code of any location.
func IsCreditStatus(status PaymentStatus) bool {
	for _, code := range creditStatus {
		if code == status {
			return true
		}
	}
	return false
}
