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

// CreateCoupon создаёт купон и возвращает его идентификатор.
func (r *Repository) CreateCoupon(ctx context.Context, c *model.Coupon) (string, error) {
	id := uuid.NewString()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO coupons
		     (id, code, type, value, min_purchase, expiration_date, is_active,
		      global_usage_limit, usage_limit_per_user, used_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)`,
		id, c.Code, string(c.Type), c.Value, c.MinPurchase, c.ExpirationDate,
		c.IsActive, c.GlobalUsageLimit, c.UsageLimitPerUser,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", fmt.Errorf("%w: %s", ErrCouponCodeTaken, c.Code)
		}
		return "", fmt.Errorf("create coupon: %w", err)
	}

	return id, nil
}

// GetCouponByCode возвращает купон по коду.
func (r *Repository) GetCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	var c model.Coupon
	var couponType string

	err := r.pool.QueryRow(ctx,
		`SELECT id, code, type, value, min_purchase, expiration_date, is_active,
		        global_usage_limit, usage_limit_per_user, used_count, created_at
		 FROM coupons
		 WHERE code = $1`,
		code,
	).Scan(&c.ID, &c.Code, &couponType, &c.Value, &c.MinPurchase, &c.ExpirationDate,
		&c.IsActive, &c.GlobalUsageLimit, &c.UsageLimitPerUser, &c.UsedCount, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	c.Type = model.CouponType(couponType)
	return &c, nil
}

// SetCouponActive включает или выключает купон. Купоны не удаляются.
func (r *Repository) SetCouponActive(ctx context.Context, couponID string, active bool) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE coupons SET is_active = $2 WHERE id = $1`,
		couponID, active,
	)
	if err != nil {
		return fmt.Errorf("set coupon active: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// CountCouponUsages возвращает число погашений купона пользователем.
func (r *Repository) CountCouponUsages(ctx context.Context, couponID, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`,
		couponID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count coupon usages: %w", err)
	}
	return count, nil
}

// InsertCouponUsage добавляет запись о погашении купона внутри транзакции tx.
func (r *Repository) InsertCouponUsage(ctx context.Context, tx pgx.Tx, usage *model.CouponUsage) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO coupon_usages (id, coupon_id, user_id, order_id) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), usage.CouponID, usage.UserID, usage.OrderID,
	)
	if err != nil {
		return fmt.Errorf("insert coupon usage: %w", err)
	}
	return nil
}

// IncrementCouponUsed увеличивает глобальный счётчик использований купона.
func (r *Repository) IncrementCouponUsed(ctx context.Context, tx pgx.Tx, couponID string) error {
	cmdTag, err := tx.Exec(ctx,
		`UPDATE coupons SET used_count = used_count + 1 WHERE id = $1`,
		couponID,
	)
	if err != nil {
		return fmt.Errorf("increment coupon used count: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}
	return nil
}
