package domain

import "time"

type Policy struct {
	PendingTTL        time.Duration
	PaymentTTL        time.Duration
	PickupWindow      time.Duration
	BookingCutoff     time.Duration
	MaxSeats          int
	MaxCartItems      int
	VerificationGrace time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		PendingTTL:        5 * time.Minute,
		PaymentTTL:        7 * time.Minute,
		PickupWindow:      24 * time.Hour,
		BookingCutoff:     20 * time.Minute,
		MaxSeats:          10,
		MaxCartItems:      20,
		VerificationGrace: 24 * time.Hour,
	}
}
