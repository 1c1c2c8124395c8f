package domain

import "github.com/shopspring/decimal"

// AddUnit returns item with one more unit at unitPrice. A nil item starts a
// new line.
func AddUnit(item *OrderItem, reservationID string, variantID int64, unitPrice decimal.Decimal) OrderItem {
	if item == nil {
		return OrderItem{
			ReservationID: reservationID,
			VariantID:     variantID,
			Quantity:      1,
			Price:         unitPrice,
		}
	}
	next := *item
	next.Quantity++
	next.Price = next.Price.Add(unitPrice)
	return next
}

// RemoveUnit returns item with one unit less. The caller drops the line once
// Quantity reaches zero.
func RemoveUnit(item OrderItem, unitPrice decimal.Decimal) (OrderItem, error) {
	if item.Quantity <= 0 {
		return item, ErrInvalidInput
	}
	item.Quantity--
	item.Price = item.Price.Sub(unitPrice)
	if item.Quantity <= 0 {
		item.Quantity = 0
		item.Price = decimal.Zero
	}
	return item, nil
}
