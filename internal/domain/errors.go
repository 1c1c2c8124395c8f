package domain

import "github.com/cockroachdb/errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyCart    = errors.New("reservation has no line items")

	ErrConflict                = errors.New("conflict")
	ErrActiveReservationExists = errors.New("existing active reservation")
	ErrSeatTaken               = errors.New("seat already booked by someone")
	ErrSeatAlreadyYours        = errors.New("seat already booked by you")
	ErrSeatLimitReached        = errors.New("maximum number of seats reached")
	ErrCartFull                = errors.New("cart capacity reached")
	ErrOutOfStock              = errors.New("not enough stock")
	ErrInsufficientBalance     = errors.New("insufficient wallet balance")

	ErrNotFound        = errors.New("not found")
	ErrSeatNotFound    = errors.New("seat not found")
	ErrSeatNotSelected = errors.New("seat not booked")
	ErrItemNotFound    = errors.New("item not found")
	ErrVariantNotFound = errors.New("variant not found")
	ErrNotInCart       = errors.New("item not found in cart")

	ErrNotCancelable = errors.New("reservation cannot be canceled")
	ErrInvalidState  = errors.New("reservation is not in a valid state for this action")

	ErrUnauthorized = errors.New("unauthorized")

	ErrSerializationFailure = errors.New("serialization failure")
)

type Class int

const (
	ClassInternal Class = iota
	ClassValidation
	ClassConflict
	ClassNotFound
	ClassUnauthorized
	ClassTransient
)

var classes = []struct {
	class Class
	errs  []error
}{
	{ClassValidation, []error{ErrInvalidInput, ErrEmptyCart}},
	{ClassConflict, []error{ErrConflict, ErrActiveReservationExists, ErrSeatTaken, ErrSeatAlreadyYours,
		ErrSeatLimitReached, ErrCartFull, ErrOutOfStock, ErrInsufficientBalance, ErrNotCancelable, ErrInvalidState}},
	{ClassNotFound, []error{ErrNotFound, ErrSeatNotFound, ErrSeatNotSelected, ErrItemNotFound, ErrVariantNotFound, ErrNotInCart}},
	{ClassUnauthorized, []error{ErrUnauthorized}},
	{ClassTransient, []error{ErrSerializationFailure}},
}

// Classify maps err onto the caller-facing taxonomy. Unknown errors are
// internal.
func Classify(err error) Class {
	for _, c := range classes {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.class
			}
		}
	}
	return ClassInternal
}
