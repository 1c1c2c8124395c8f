package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, reservation_id, account_id, amount, expires_at, paid_at, COALESCE(method, ''), COALESCE(details, ''), created_at`

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.ReservationID, &p.AccountID, &p.Amount, &p.ExpiresAt, &p.PaidAt,
		&p.Method, &p.Details, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, err
}

func (q *queries) InsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := q.tx.Exec(ctx, `
		INSERT INTO payments (id, reservation_id, account_id, amount, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.ReservationID, p.AccountID, p.Amount, p.ExpiresAt, p.CreatedAt)
	return mapError(err)
}

func (q *queries) Payment(ctx context.Context, id string) (domain.Payment, error) {
	return scanPayment(q.tx.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE
	`, id))
}

func (q *queries) DeletePayment(ctx context.Context, id string) error {
	_, err := q.tx.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	return err
}

func (q *queries) MarkPaid(ctx context.Context, id, method, details string, at time.Time) (bool, error) {
	return affected(q.tx.Exec(ctx, `
		UPDATE payments SET paid_at = $2, method = $3, details = $4, expires_at = NULL
		WHERE id = $1 AND paid_at IS NULL
	`, id, at, method, details))
}

// AdjustWallet only applies a debit the balance can cover, then appends the
// ledger line in the same transaction.
func (q *queries) AdjustWallet(ctx context.Context, wt domain.WalletTransaction) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.tx.QueryRow(ctx, `
		UPDATE accounts SET wallet_balance = wallet_balance + $2
		WHERE id = $1 AND wallet_balance + $2 >= 0
		RETURNING wallet_balance
	`, wt.AccountID, wt.Amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := q.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, wt.AccountID).Scan(&exists); err != nil {
			return decimal.Zero, err
		}
		if !exists {
			return decimal.Zero, domain.ErrNotFound
		}
		return decimal.Zero, domain.ErrInsufficientBalance
	}
	if err != nil {
		return decimal.Zero, mapError(err)
	}

	_, err = q.tx.Exec(ctx, `
		INSERT INTO wallet_transactions (id, account_id, amount, description, payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, wt.ID, wt.AccountID, wt.Amount, wt.Description, wt.PaymentID, wt.CreatedAt)
	if err != nil {
		return decimal.Zero, mapError(err)
	}
	return balance, nil
}
