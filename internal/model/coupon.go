package model

import "time"

// CouponType определяет механику применения купона.
type CouponType string

const (
	// CouponPercentage — процентная скидка от суммы корзины.
	CouponPercentage CouponType = "PERCENTAGE"
	// CouponFixedAmount — фиксированная скидка.
	CouponFixedAmount CouponType = "FIXED_AMOUNT"
	// CouponRechargeCredit — пополнение кошелька покупателя.
	CouponRechargeCredit CouponType = "RECHARGE_CREDIT"
	// CouponGiftCard — подарочная карта, излишек уходит в кошелёк.
	CouponGiftCard CouponType = "GIFT_CARD"
)

// Valid сообщает, является ли значение известным типом купона.
func (c CouponType) Valid() bool {
	switch c {
	case CouponPercentage, CouponFixedAmount, CouponRechargeCredit, CouponGiftCard:
		return true
	}
	return false
}

// Coupon описывает скидочный или подарочный код.
// Для PERCENTAGE поле Value хранит целый процент, для остальных типов — сумму в центах.
// Купоны не удаляются, только деактивируются через IsActive.
type Coupon struct {
	ID                string
	Code              string
	Type              CouponType
	Value             int64
	MinPurchase       int64
	ExpirationDate    time.Time
	IsActive          bool
	GlobalUsageLimit  int
	UsageLimitPerUser int
	UsedCount         int
	CreatedAt         time.Time
}

// CouponUsage — запись об одном погашении купона пользователем.
// Используется для контроля лимита на пользователя, после создания не меняется.
type CouponUsage struct {
	ID        string
	CouponID  string
	UserID    string
	OrderID   *int64
	CreatedAt time.Time
}

// GiftCardResult — итог применения подарочной карты к заказу.
type GiftCardResult struct {
	CoveredAmount   int64
	SurplusToWallet int64
}
