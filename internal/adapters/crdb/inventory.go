package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/cinema-reservations/internal/domain"
)

func (q *queries) ItemStocked(ctx context.Context, cinemaID, itemID int64) (bool, error) {
	var ok bool
	err := q.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM fnb_inventories i
			JOIN fnb_variants v ON v.id = i.variant_id
			WHERE i.cinema_id = $1 AND v.item_id = $2
		)
	`, cinemaID, itemID).Scan(&ok)
	return ok, err
}

func (q *queries) Inventory(ctx context.Context, cinemaID, variantID int64) (domain.Inventory, error) {
	var inv domain.Inventory
	err := q.tx.QueryRow(ctx, `
		SELECT i.cinema_id, i.variant_id, v.item_id, i.quantity, v.price
		FROM fnb_inventories i
		JOIN fnb_variants v ON v.id = i.variant_id
		WHERE i.cinema_id = $1 AND i.variant_id = $2
	`, cinemaID, variantID).Scan(&inv.CinemaID, &inv.VariantID, &inv.ItemID, &inv.Quantity, &inv.UnitPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Inventory{}, domain.ErrVariantNotFound
	}
	return inv, err
}

// AdjustStock is a single conditional update, so concurrent shoppers can
// never drive the counter below zero.
func (q *queries) AdjustStock(ctx context.Context, cinemaID, variantID int64, delta int) (int, error) {
	var quantity int
	err := q.tx.QueryRow(ctx, `
		UPDATE fnb_inventories SET quantity = quantity + $3
		WHERE cinema_id = $1 AND variant_id = $2 AND quantity + $3 >= 0
		RETURNING quantity
	`, cinemaID, variantID, delta).Scan(&quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, lookupErr := q.Inventory(ctx, cinemaID, variantID); lookupErr != nil {
			return 0, lookupErr
		}
		return 0, domain.ErrOutOfStock
	}
	if err != nil {
		return 0, mapError(err)
	}
	return quantity, nil
}

func (q *queries) SaveOrderItem(ctx context.Context, item domain.OrderItem) error {
	_, err := q.tx.Exec(ctx, `
		INSERT INTO order_items (reservation_id, variant_id, quantity, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (reservation_id, variant_id) DO UPDATE
		SET quantity = excluded.quantity, price = excluded.price
	`, item.ReservationID, item.VariantID, item.Quantity, item.Price)
	return mapError(err)
}

func (q *queries) DeleteOrderItem(ctx context.Context, reservationID string, variantID int64) error {
	_, err := q.tx.Exec(ctx, `
		DELETE FROM order_items WHERE reservation_id = $1 AND variant_id = $2
	`, reservationID, variantID)
	return err
}

func (q *queries) StockLevels(ctx context.Context, cinemaID int64) ([]domain.Inventory, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT i.cinema_id, i.variant_id, v.item_id, i.quantity, v.price
		FROM fnb_inventories i
		JOIN fnb_variants v ON v.id = i.variant_id
		WHERE i.cinema_id = $1
		ORDER BY v.item_id, i.variant_id
	`, cinemaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var levels []domain.Inventory
	for rows.Next() {
		var inv domain.Inventory
		if err := rows.Scan(&inv.CinemaID, &inv.VariantID, &inv.ItemID, &inv.Quantity, &inv.UnitPrice); err != nil {
			return nil, err
		}
		levels = append(levels, inv)
	}
	return levels, rows.Err()
}
