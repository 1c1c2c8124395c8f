package reservation

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AdjustCartItem adds or removes one unit of a variant on the caller's
// Pending F&B order, moving the same unit in or out of cinema stock.
func (s *Service) AdjustCartItem(ctx context.Context, p domain.Principal, reservationID string, itemID, variantID int64, increment bool) error {
	ctx, span := tracer.Start(ctx, "reservation.AdjustCartItem", trace.WithAttributes(
		attribute.String("reservation.id", reservationID),
		attribute.Int64("variant.id", variantID),
		attribute.Bool("cart.increment", increment),
	))
	defer span.End()

	direction := "decrement"
	if increment {
		direction = "increment"
	}

	var (
		events  []domain.Event
		refresh *domain.RefreshRequested
	)
	now := s.now()
	err := s.store.InTx(ctx, func(q Queries) error {
		events, refresh = nil, nil

		r, err := q.Reservation(ctx, reservationID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err != nil || r.Kind != domain.KindFnbOrder || !p.Owns(&r) || !r.IsMutable(now) {
			refresh = &domain.RefreshRequested{AccountID: p.AccountID, View: domain.ViewMenu}
			return domain.ErrNotFound
		}

		stocked, err := q.ItemStocked(ctx, r.CinemaID, itemID)
		if err != nil {
			return err
		}
		if !stocked {
			refresh = &domain.RefreshRequested{AccountID: p.AccountID, View: domain.ViewMenu, TargetID: &r.CinemaID}
			return domain.ErrItemNotFound
		}

		inv, err := q.Inventory(ctx, r.CinemaID, variantID)
		if err == nil && inv.ItemID != itemID {
			err = domain.ErrVariantNotFound
		}
		if errors.Is(err, domain.ErrVariantNotFound) || errors.Is(err, domain.ErrNotFound) {
			refresh = &domain.RefreshRequested{AccountID: p.AccountID, View: domain.ViewVariants, TargetID: &r.CinemaID, ItemID: &itemID}
			return domain.ErrVariantNotFound
		}
		if err != nil {
			return err
		}

		var (
			item  domain.OrderItem
			stock int
		)
		existing := r.Item(variantID)
		if increment {
			if r.CartQuantity() >= s.policy.MaxCartItems {
				return domain.ErrCartFull
			}
			if stock, err = q.AdjustStock(ctx, r.CinemaID, variantID, -1); err != nil {
				return err
			}
			item = domain.AddUnit(existing, r.ID, variantID, inv.UnitPrice)
			if err := q.SaveOrderItem(ctx, item); err != nil {
				return err
			}
		} else {
			if existing == nil {
				return domain.ErrNotInCart
			}
			if item, err = domain.RemoveUnit(*existing, inv.UnitPrice); err != nil {
				return err
			}
			if stock, err = q.AdjustStock(ctx, r.CinemaID, variantID, 1); err != nil {
				return err
			}
			if item.Quantity == 0 {
				err = q.DeleteOrderItem(ctx, r.ID, variantID)
			} else {
				err = q.SaveOrderItem(ctx, item)
			}
			if err != nil {
				return err
			}
		}

		events = []domain.Event{
			domain.ItemChanged{ReservationID: r.ID, ItemID: itemID},
			domain.CartQuantityChanged{ReservationID: r.ID, VariantID: variantID, Quantity: item.Quantity},
			domain.StockChanged{CinemaID: r.CinemaID, VariantID: variantID, Quantity: stock},
		}
		return nil
	})
	if err != nil {
		observability.CartAdjustments.WithLabelValues(direction, outcome(err)).Inc()
		if refresh != nil {
			s.broadcast(ctx, *refresh)
		}
		return errors.Wrap(err, "adjust cart item")
	}

	observability.CartAdjustments.WithLabelValues(direction, "ok").Inc()
	s.broadcast(ctx, events...)
	return nil
}
