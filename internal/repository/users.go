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

// CreateUser создаёт нового пользователя с нулевыми балансами.
func (r *Repository) CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (string, error) {
	id := uuid.NewString()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, login, password_hash, role) VALUES ($1, $2, $3, $4)`,
		id, login, passwordHash, string(role),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *Repository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, design_credits, purchase_credits, created_at
		 FROM users WHERE login = $1`,
		login,
	)
	return scanUser(row)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *Repository) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, design_credits, purchase_credits, created_at
		 FROM users WHERE id = $1`,
		userID,
	)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &role, &u.DesignCredits, &u.PurchaseCredits, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)
	return &u, nil
}

// GetBalances возвращает оба баланса пользователя в центах.
func (r *Repository) GetBalances(ctx context.Context, userID string) (*model.Balances, error) {
	var b model.Balances
	err := r.pool.QueryRow(ctx,
		`SELECT design_credits, purchase_credits FROM users WHERE id = $1`,
		userID,
	).Scan(&b.DesignCredits, &b.PurchaseCredits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get balances: %w", err)
	}
	return &b, nil
}

// LockBalances читает балансы пользователя под эксклюзивной блокировкой строки.
// Блокировка удерживается до конца транзакции tx: параллельное списание по тому же
// пользователю ждёт фиксации и видит уже обновлённый баланс.
func (r *Repository) LockBalances(ctx context.Context, tx pgx.Tx, userID string) (*model.Balances, error) {
	var b model.Balances
	err := tx.QueryRow(ctx,
		`SELECT design_credits, purchase_credits FROM users WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&b.DesignCredits, &b.PurchaseCredits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user balances: %w", err)
	}
	return &b, nil
}

// UpdateBalance записывает новый баланс указанного кошелька внутри транзакции tx.
func (r *Repository) UpdateBalance(ctx context.Context, tx pgx.Tx, userID string, creditType model.CreditType, newBalance int64) error {
	column := "purchase_credits"
	if creditType == model.CreditTypeDesign {
		column = "design_credits"
	}

	cmdTag, err := tx.Exec(ctx,
		`UPDATE users SET `+column+` = $2 WHERE id = $1`,
		userID, newBalance,
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}
