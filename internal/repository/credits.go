package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mmeshcher/commerce-system/internal/model"
)

// InsertCreditTransaction добавляет запись в журнал движений по счёту.
// Журнал append-only: записи никогда не обновляются и не удаляются.
// Повторная запись с тем же reference_id отклоняется уникальным индексом.
func (r *Repository) InsertCreditTransaction(ctx context.Context, tx pgx.Tx, t *model.CreditTransaction) (string, error) {
	id := uuid.NewString()

	_, err := tx.Exec(ctx,
		`INSERT INTO credit_transactions
		     (id, user_id, amount, credit_type, type, description, reference_id, balance_after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, t.UserID, t.Amount, string(t.CreditType), string(t.Type), t.Description, t.ReferenceID, t.BalanceAfter,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", ErrDuplicateReference
		}
		return "", fmt.Errorf("insert credit transaction: %w", err)
	}

	return id, nil
}

// GetCreditTransactionByReference возвращает запись журнала по внешнему reference.
func (r *Repository) GetCreditTransactionByReference(ctx context.Context, reference string) (*model.CreditTransaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, amount, credit_type, type, description, reference_id, balance_after, created_at
		 FROM credit_transactions
		 WHERE reference_id = $1`,
		reference,
	)

	t, err := scanCreditTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get credit transaction: %w", err)
	}

	return t, nil
}

// GetCreditHistory возвращает журнал движений пользователя, новые записи первыми.
// Если creditType задан, журнал фильтруется по кошельку.
func (r *Repository) GetCreditHistory(ctx context.Context, userID string, creditType *model.CreditType) ([]model.CreditTransaction, error) {
	query := `SELECT id, user_id, amount, credit_type, type, description, reference_id, balance_after, created_at
	          FROM credit_transactions
	          WHERE user_id = $1`
	args := []any{userID}

	if creditType != nil {
		query += ` AND credit_type = $2`
		args = append(args, string(*creditType))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select credit history: %w", err)
	}
	defer rows.Close()

	var res []model.CreditTransaction
	for rows.Next() {
		t, err := scanCreditTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credit transaction: %w", err)
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanCreditTransaction(row pgx.Row) (*model.CreditTransaction, error) {
	var t model.CreditTransaction
	var creditType, txType string

	err := row.Scan(&t.ID, &t.UserID, &t.Amount, &creditType, &txType,
		&t.Description, &t.ReferenceID, &t.BalanceAfter, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	t.CreditType = model.CreditType(creditType)
	t.Type = model.TransactionType(txType)
	return &t, nil
}

// CreatePaymentIntent сохраняет назначение платежа до передачи reference в шлюз.
func (r *Repository) CreatePaymentIntent(ctx context.Context, intent *model.PaymentIntent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO payment_intents (reference, kind, user_id, credit_type, credit_amount)
		 VALUES ($1, $2, $3, $4, $5)`,
		intent.Reference, string(intent.Kind), intent.UserID, string(intent.CreditType), intent.CreditAmount,
	)
	if err != nil {
		return fmt.Errorf("create payment intent: %w", err)
	}
	return nil
}

// GetPaymentIntent возвращает платёжное намерение по reference.
func (r *Repository) GetPaymentIntent(ctx context.Context, reference string) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	var kind, creditType string

	err := r.pool.QueryRow(ctx,
		`SELECT reference, kind, user_id, credit_type, credit_amount, created_at
		 FROM payment_intents
		 WHERE reference = $1`,
		reference,
	).Scan(&intent.Reference, &kind, &intent.UserID, &creditType, &intent.CreditAmount, &intent.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("get payment intent: %w", err)
	}

	intent.Kind = model.PaymentIntentKind(kind)
	intent.CreditType = model.CreditType(creditType)
	return &intent, nil
}
