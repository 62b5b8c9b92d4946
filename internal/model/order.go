package model

import (
	"errors"
	"time"
)

// OrderStatus описывает состояние заказа.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "PENDING"
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaid           OrderStatus = "PAID"
	OrderStatusPreparing      OrderStatus = "PREPARING"
	OrderStatusShipped        OrderStatus = "SHIPPED"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusRejected       OrderStatus = "REJECTED"
)

// Valid сообщает, является ли значение известным статусом заказа.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPendingPayment, OrderStatusPaid,
		OrderStatusPreparing, OrderStatusShipped, OrderStatusDelivered,
		OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// Terminal сообщает, запрещены ли дальнейшие переходы из статуса.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusDelivered
}

// ErrOrderFinalized возвращается при попытке перевести заказ из терминального статуса.
var (
	ErrOrderFinalized = errors.New("order is in a final status")
	// ErrSameStatus возвращается, если новый статус совпадает с текущим.
	ErrSameStatus = errors.New("order already has this status")
)

// CanTransition проверяет допустимость перехода между статусами.
// Кроме запрета выхода из терминальных статусов и пустых переходов ограничений нет:
// таблица смежности намеренно не вводится, ручные правки оператора разрешены.
func CanTransition(from, to OrderStatus) error {
	if from.Terminal() {
		return ErrOrderFinalized
	}
	if from == to {
		return ErrSameStatus
	}
	return nil
}

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	// PaymentWallet — списание кредитов покупки с кошелька.
	PaymentWallet PaymentMethod = "WALLET"
	// PaymentCashOnDelivery — оплата при получении.
	PaymentCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	// PaymentBankTransfer — банковский перевод с ручным подтверждением.
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
	// PaymentWompi — внешний платёжный шлюз Wompi.
	PaymentWompi PaymentMethod = "WOMPI"
)

// Valid сообщает, является ли значение известным способом оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentWallet, PaymentCashOnDelivery, PaymentBankTransfer, PaymentWompi:
		return true
	}
	return false
}

// ShippingAddress — адрес доставки, хранится в заказе как jsonb.
type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone"`
	Notes   string `json:"notes,omitempty"`
}

// Order — заказ пользователя. Items — снимки содержимого корзины на момент
// оформления, изменения каталога на исторические заказы не влияют.
type Order struct {
	ID               int64
	UserID           string
	Items            []OrderItem
	Subtotal         int64
	Discount         int64
	ShippingCost     int64
	Total            int64
	Status           OrderStatus
	PaymentMethod    PaymentMethod
	PaymentReference string
	ShippingAddress  ShippingAddress
	CouponCode       *string
	ApprovedByUserID *string
	ApprovedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderItem — замороженная позиция заказа.
type OrderItem struct {
	ID              string
	OrderID         int64
	ProductID       string
	ProductName     string
	PriceAtPurchase int64
	Quantity        int
	SelectedColor   string
	SelectedSize    string
	VariantID       string
	VariantLabel    string
	ImageURL        string
}

// OrderStatusHistory — запись аудита об одном переходе статуса.
// PreviousStatus равен nil для первой записи, ChangedByUserID — nil для системных переходов.
type OrderStatusHistory struct {
	ID              string
	OrderID         int64
	PreviousStatus  *OrderStatus
	NewStatus       OrderStatus
	ChangedByUserID *string
	Reason          string
	CreatedAt       time.Time
}

// Cart — корзина пользователя с посчитанной суммой.
type Cart struct {
	ID       string
	UserID   string
	Items    []CartItem
	Subtotal int64
}

// CartItem — позиция корзины с выбранным вариантом товара.
type CartItem struct {
	ID            string
	CartID        string
	ProductID     string
	ProductName   string
	Price         int64
	Quantity      int
	SelectedColor string
	SelectedSize  string
	VariantID     string
	VariantLabel  string
	ImageURL      string
}

// Total возвращает стоимость позиции с учётом количества.
func (i CartItem) Total() int64 {
	return i.Price * int64(i.Quantity)
}
