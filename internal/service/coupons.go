package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/commerce-system/internal/model"
)

// ErrCouponInactive возвращается для деактивированного купона.
var (
	ErrCouponInactive = errors.New("coupon is deactivated")
	// ErrCouponExpired возвращается для просроченного купона.
	ErrCouponExpired = errors.New("coupon has expired")
	// ErrCouponExhausted возвращается при исчерпании глобального лимита купона.
	ErrCouponExhausted = errors.New("coupon usage limit reached")
	// ErrCouponTypeMismatch возвращается, если тип купона не подходит для операции.
	ErrCouponTypeMismatch = errors.New("coupon type not valid for this operation")
	// ErrMinPurchaseNotMet возвращается, если сумма покупки ниже порога купона.
	ErrMinPurchaseNotMet = errors.New("minimum purchase amount not met")
	// ErrCouponUserLimit возвращается при исчерпании лимита купона на пользователя.
	ErrCouponUserLimit = errors.New("per-user coupon limit reached")
	// ErrInvalidCoupon возвращается при некорректных параметрах создаваемого купона.
	ErrInvalidCoupon = errors.New("invalid coupon parameters")
)

// CouponsStore описывает контракт доступа к данным купонов.
type CouponsStore interface {
	WithinTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
	CreateCoupon(ctx context.Context, c *model.Coupon) (string, error)
	GetCouponByCode(ctx context.Context, code string) (*model.Coupon, error)
	SetCouponActive(ctx context.Context, couponID string, active bool) error
	CountCouponUsages(ctx context.Context, couponID, userID string) (int, error)
	InsertCouponUsage(ctx context.Context, tx pgx.Tx, usage *model.CouponUsage) error
	IncrementCouponUsed(ctx context.Context, tx pgx.Tx, couponID string) error
}

// CouponsService отвечает за проверку и погашение купонов.
type CouponsService struct {
	store   CouponsStore
	credits *CreditsService
	logger  *zap.Logger
}

// NewCouponsService создаёт купонный сервис.
func NewCouponsService(store CouponsStore, credits *CreditsService, logger *zap.Logger) *CouponsService {
	return &CouponsService{
		store:   store,
		credits: credits,
		logger:  logger,
	}
}

// Create создаёт купон (операция администратора).
func (s *CouponsService) Create(ctx context.Context, c *model.Coupon) (*model.Coupon, error) {
	if c.Code == "" || !c.Type.Valid() || c.Value <= 0 {
		return nil, ErrInvalidCoupon
	}
	if c.GlobalUsageLimit <= 0 {
		c.GlobalUsageLimit = 1000
	}
	if c.UsageLimitPerUser <= 0 {
		c.UsageLimitPerUser = 1
	}
	c.IsActive = true

	id, err := s.store.CreateCoupon(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id

	return c, nil
}

// Deactivate выключает купон, не удаляя его.
func (s *CouponsService) Deactivate(ctx context.Context, couponID string) error {
	return s.store.SetCouponActive(ctx, couponID, false)
}

// Validate выполняет цепочку проверок купона и возвращает его при успехе.
// Проверки только читают данные; запись погашения — ответственность вызывающего.
// Тип купона проверяется до порога покупки, чтобы запрос recharge-купона не
// получал ложную ошибку о минимальной сумме. Для RECHARGE_CREDIT порог
// покупки не проверяется вовсе.
func (s *CouponsService) Validate(ctx context.Context, code, userID string, purchaseAmount int64, expectedType *model.CouponType) (*model.Coupon, error) {
	coupon, err := s.store.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if !coupon.IsActive {
		return nil, ErrCouponInactive
	}
	if time.Now().After(coupon.ExpirationDate) {
		return nil, ErrCouponExpired
	}
	if coupon.UsedCount >= coupon.GlobalUsageLimit {
		return nil, ErrCouponExhausted
	}
	if expectedType != nil && coupon.Type != *expectedType {
		return nil, fmt.Errorf("%w: expected %s", ErrCouponTypeMismatch, *expectedType)
	}
	if coupon.Type != model.CouponRechargeCredit && purchaseAmount < coupon.MinPurchase {
		return nil, fmt.Errorf("%w: minimum is %d", ErrMinPurchaseNotMet, coupon.MinPurchase)
	}

	used, err := s.store.CountCouponUsages(ctx, coupon.ID, userID)
	if err != nil {
		return nil, err
	}
	if used >= coupon.UsageLimitPerUser {
		return nil, fmt.Errorf("%w: limit is %d", ErrCouponUserLimit, coupon.UsageLimitPerUser)
	}

	return coupon, nil
}

// ApplyRechargeCoupon погашает recharge-купон: запись погашения, инкремент
// счётчика и пополнение кошелька покупки фиксируются одной транзакцией.
// Возвращает новый баланс кредитов покупки.
func (s *CouponsService) ApplyRechargeCoupon(ctx context.Context, code, userID string) (int64, error) {
	expected := model.CouponRechargeCredit
	coupon, err := s.Validate(ctx, code, userID, 0, &expected)
	if err != nil {
		return 0, err
	}

	var newBalance int64
	err = s.store.WithinTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.store.InsertCouponUsage(ctx, tx, &model.CouponUsage{
			CouponID: coupon.ID,
			UserID:   userID,
		}); err != nil {
			return err
		}

		if err := s.store.IncrementCouponUsed(ctx, tx, coupon.ID); err != nil {
			return err
		}

		balance, _, err := s.credits.Recharge(ctx, tx, userID, coupon.Value,
			model.CreditTypePurchase, "coupon "+code, nil)
		if err != nil {
			return err
		}

		newBalance = balance
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("recharge coupon redeemed",
		zap.String("code", code),
		zap.String("userID", userID),
		zap.Int64("value", coupon.Value))
	return newBalance, nil
}

// RecordUsage фиксирует погашение купона в рамках транзакции вызывающей
// стороны: запись погашения и инкремент глобального счётчика.
func (s *CouponsService) RecordUsage(ctx context.Context, tx pgx.Tx, couponID, userID string, orderID *int64) error {
	if err := s.store.InsertCouponUsage(ctx, tx, &model.CouponUsage{
		CouponID: couponID,
		UserID:   userID,
		OrderID:  orderID,
	}); err != nil {
		return err
	}
	return s.store.IncrementCouponUsed(ctx, tx, couponID)
}

// ApplyGiftCard применяет подарочную карту к сумме заказа. Покрываемая часть
// ограничена суммой заказа, излишек зачисляется в кошелёк покупки. Погашение,
// инкремент счётчика и зачисление излишка — одна транзакция.
func (s *CouponsService) ApplyGiftCard(ctx context.Context, code, userID string, orderTotal, orderID int64) (*model.GiftCardResult, error) {
	expected := model.CouponGiftCard
	coupon, err := s.Validate(ctx, code, userID, orderTotal, &expected)
	if err != nil {
		return nil, err
	}

	result := &model.GiftCardResult{CoveredAmount: coupon.Value}
	if coupon.Value > orderTotal {
		result.CoveredAmount = orderTotal
		result.SurplusToWallet = coupon.Value - orderTotal
	}

	err = s.store.WithinTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.store.InsertCouponUsage(ctx, tx, &model.CouponUsage{
			CouponID: coupon.ID,
			UserID:   userID,
			OrderID:  &orderID,
		}); err != nil {
			return err
		}

		if err := s.store.IncrementCouponUsed(ctx, tx, coupon.ID); err != nil {
			return err
		}

		if result.SurplusToWallet > 0 {
			_, _, err := s.credits.Recharge(ctx, tx, userID, result.SurplusToWallet,
				model.CreditTypePurchase, fmt.Sprintf("gift card %s surplus", code), nil)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("gift card applied",
		zap.String("code", code),
		zap.Int64("orderID", orderID),
		zap.Int64("covered", result.CoveredAmount),
		zap.Int64("surplus", result.SurplusToWallet))
	return result, nil
}
