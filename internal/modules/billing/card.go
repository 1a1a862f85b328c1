package billing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"frontdesk/internal/domain"
)

var (
	cardNumberRe = regexp.MustCompile(`^[0-9]{13,19}$`)
	cvvRe        = regexp.MustCompile(`^[0-9]{3,4}$`)
	// MM/YY, MM/YYYY, MM-YY, MM.YY, MMYY and MMYYYY.
	expiryRe = regexp.MustCompile(`^(0[1-9]|1[0-2])[/\-.]?([0-9]{2}|[0-9]{4})$`)
)

// ValidateCard rejects card data that the provider would certainly decline,
// before any request is sent.
func ValidateCard(card *domain.StoredCard) error {
	if card == nil {
		return domain.NewValidationError("card", "no card stored for booking")
	}
	if !cardNumberRe.MatchString(NormalizeCardNumber(card.Number)) {
		return domain.NewValidationError("card.number", "card number must be 13-19 digits")
	}
	if _, _, ok := ParseExpiry(card.Expiry); !ok {
		return domain.NewValidationError("card.expiry", "expiry must be MM/YY")
	}
	if !cvvRe.MatchString(strings.TrimSpace(card.CVV)) {
		return domain.NewValidationError("card.cvv", "cvv must be 3-4 digits")
	}
	return nil
}

// NormalizeCardNumber drops the spaces and dashes staff type between groups.
func NormalizeCardNumber(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(number))
}

// ParseExpiry returns month and four-digit year.
func ParseExpiry(expiry string) (month, year int, ok bool) {
	m := expiryRe.FindStringSubmatch(strings.TrimSpace(expiry))
	if m == nil {
		return 0, 0, false
	}
	month, _ = strconv.Atoi(m[1])
	year, _ = strconv.Atoi(m[2])
	if len(m[2]) == 2 {
		year += 2000
	}
	return month, year, true
}

// wireExpiry is the MM/YY form the provider expects.
func wireExpiry(expiry string) string {
	month, year, ok := ParseExpiry(expiry)
	if !ok {
		return expiry
	}
	return fmt.Sprintf("%02d/%02d", month, year%100)
}
