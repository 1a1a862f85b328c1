package documents

import "errors"

var (
	ErrInvalidBooking = errors.New("invalid booking id")
	ErrMissingNumber  = errors.New("document number is required")
	ErrNotFinancial   = errors.New("only financial documents are recorded")
)
