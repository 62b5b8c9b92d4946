package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/commerce-system/internal/model"
	"github.com/mmeshcher/commerce-system/internal/repository"
	"github.com/mmeshcher/commerce-system/internal/validation"
	"github.com/mmeshcher/commerce-system/internal/wompi"
)

// ErrEmptyCart возвращается при оформлении заказа с пустой корзиной.
var (
	ErrEmptyCart = errors.New("cart is empty")
	// ErrPaymentMethodNotAvailable возвращается, если способ оплаты недоступен для адреса.
	ErrPaymentMethodNotAvailable = errors.New("payment method not available for this address")
	// ErrUnknownPaymentMethod возвращается при неизвестном способе оплаты.
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	// ErrAmountMismatch возвращается, если оплаченная сумма расходится с суммой заказа.
	ErrAmountMismatch = errors.New("paid amount does not match order total")
	// ErrMethodNotEligible возвращается при ручном подтверждении автоматического способа оплаты.
	ErrMethodNotEligible = errors.New("payment method does not require manual approval")
	// ErrOrderAlreadyPaid возвращается, если заказ уже оплачен.
	ErrOrderAlreadyPaid = errors.New("order is already paid")
	// ErrNotOrderOwner возвращается при попытке действия с чужим заказом.
	ErrNotOrderOwner = errors.New("order belongs to another user")
	// ErrNotCancellable возвращается, если заказ нельзя отменить в текущем статусе.
	ErrNotCancellable = errors.New("order cannot be cancelled in its current status")
)

// paymentTolerance — допуск расхождения суммы webhook с суммой заказа ($100 COP на округление).
const paymentTolerance int64 = 10_000

// OrdersStore описывает контракт доступа к данным заказов.
type OrdersStore interface {
	WithinTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
	GetUserByID(ctx context.Context, userID string) (*model.User, error)
	GetOrCreateCart(ctx context.Context, userID string) (*model.Cart, error)
	DeleteCartItems(ctx context.Context, tx pgx.Tx, cartID string) error
	InsertOrder(ctx context.Context, tx pgx.Tx, o *model.Order) (int64, error)
	InsertOrderItems(ctx context.Context, tx pgx.Tx, orderID int64, items []model.OrderItem) error
	InsertStatusHistory(ctx context.Context, tx pgx.Tx, h *model.OrderStatusHistory) error
	GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error)
	GetOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*model.Order, error)
	GetOrderByPaymentReference(ctx context.Context, reference string) (*model.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, tx pgx.Tx, orderID int64, status model.OrderStatus) error
	SetOrderApproval(ctx context.Context, tx pgx.Tx, orderID int64, adminID string, at time.Time) error
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)
	ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, int, error)
	GetStatusHistory(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error)
}

// Mailer описывает best-effort отправку уведомлений о заказах.
type Mailer interface {
	SendOrderCreated(ctx context.Context, to string, orderID int64, total float64) error
	SendOrderPaid(ctx context.Context, to string, orderID int64) error
	SendOrderCancelled(ctx context.Context, to string, orderID int64, refunded bool) error
}

// CreateOrderRequest — параметры оформления заказа.
type CreateOrderRequest struct {
	PaymentMethod   model.PaymentMethod
	ShippingAddress model.ShippingAddress
	CouponCode      string
}

// CreateOrderResult — созданный заказ и, для оплаты через шлюз, данные виджета.
type CreateOrderResult struct {
	Order     *model.Order
	WompiData *wompi.PaymentData
}

// OrdersService реализует машину состояний заказа.
type OrdersService struct {
	store   OrdersStore
	credits *CreditsService
	coupons *CouponsService
	gateway Gateway
	mailer  Mailer
	logger  *zap.Logger

	// codCity — зона обслуживания для оплаты при получении.
	codCity string
}

// NewOrdersService создаёт сервис заказов. mailer может быть nil.
func NewOrdersService(store OrdersStore, credits *CreditsService, coupons *CouponsService, gateway Gateway, mailer Mailer, codCity string, logger *zap.Logger) *OrdersService {
	return &OrdersService{
		store:   store,
		credits: credits,
		coupons: coupons,
		gateway: gateway,
		mailer:  mailer,
		codCity: codCity,
		logger:  logger,
	}
}

// CreateOrder превращает корзину в заказ. Заказ, снимки позиций, очистка
// корзины, движение по кошельку (для WALLET) и запись аудита фиксируются
// одной транзакцией: либо всё, либо ничего.
func (s *OrdersService) CreateOrder(ctx context.Context, userID string, req CreateOrderRequest) (*CreateOrderResult, error) {
	if !req.PaymentMethod.Valid() {
		return nil, ErrUnknownPaymentMethod
	}

	cart, err := s.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	if req.PaymentMethod == model.PaymentCashOnDelivery &&
		!validation.CityMatches(req.ShippingAddress.City, s.codCity) {
		return nil, ErrPaymentMethodNotAvailable
	}

	subtotal := cart.Subtotal
	var discount int64
	var shippingCost int64
	giftCard := false
	var coupon *model.Coupon

	if req.CouponCode != "" {
		coupon, err = s.coupons.Validate(ctx, req.CouponCode, userID, subtotal, nil)
		if err != nil {
			return nil, err
		}

		switch coupon.Type {
		case model.CouponPercentage:
			discount = subtotal * coupon.Value / 100
		case model.CouponFixedAmount:
			discount = coupon.Value
		case model.CouponGiftCard:
			// Подарочная карта применяется к готовому заказу отдельной
			// операцией, скидкой заранее не считается.
			giftCard = true
		case model.CouponRechargeCredit:
			// Купон пополнения не даёт скидки на заказ и погашается
			// отдельной операцией; молча сжигать его здесь нельзя.
			return nil, fmt.Errorf("%w: recharge coupon is not applicable to orders", ErrCouponTypeMismatch)
		}
	}

	if discount > subtotal {
		discount = subtotal
	}
	total := subtotal - discount + shippingCost

	order := &model.Order{
		UserID:          userID,
		Subtotal:        subtotal,
		Discount:        discount,
		ShippingCost:    shippingCost,
		Total:           total,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
	}
	if req.CouponCode != "" {
		code := req.CouponCode
		order.CouponCode = &code
	}

	var wompiData *wompi.PaymentData

	err = s.store.WithinTransaction(ctx, func(tx pgx.Tx) error {
		switch req.PaymentMethod {
		case model.PaymentWallet:
			order.Status = model.OrderStatusPaid
			// Полностью покрытый скидкой заказ не двигает кошелёк.
			if total > 0 {
				_, entryID, err := s.credits.Charge(ctx, tx, userID, total,
					model.CreditTypePurchase, "order payment")
				if err != nil {
					return err
				}
				order.PaymentReference = entryID
			}

		case model.PaymentCashOnDelivery:
			order.Status = model.OrderStatusPending
			order.PaymentReference = fmt.Sprintf("COD-%d", time.Now().UnixMilli())

		case model.PaymentBankTransfer:
			order.Status = model.OrderStatusPending
			order.PaymentReference = fmt.Sprintf("TRANSFER-%d", time.Now().UnixMilli())

		case model.PaymentWompi:
			order.Status = model.OrderStatusPendingPayment
			order.PaymentReference = fmt.Sprintf("ORD-%.5s-%d", userID, time.Now().UnixMilli())

			const currency = "COP"
			wompiData = &wompi.PaymentData{
				Reference:     order.PaymentReference,
				AmountInCents: total,
				Currency:      currency,
				Signature:     s.gateway.GenerateSignature(order.PaymentReference, total, currency),
				PublicKey:     s.gateway.PublicKey(),
			}
		}

		orderID, err := s.store.InsertOrder(ctx, tx, order)
		if err != nil {
			return err
		}
		order.ID = orderID

		items := make([]model.OrderItem, 0, len(cart.Items))
		for _, item := range cart.Items {
			items = append(items, model.OrderItem{
				OrderID:         orderID,
				ProductID:       item.ProductID,
				ProductName:     item.ProductName,
				PriceAtPurchase: item.Price,
				Quantity:        item.Quantity,
				SelectedColor:   item.SelectedColor,
				SelectedSize:    item.SelectedSize,
				VariantID:       item.VariantID,
				VariantLabel:    item.VariantLabel,
				ImageURL:        item.ImageURL,
			})
		}
		if err := s.store.InsertOrderItems(ctx, tx, orderID, items); err != nil {
			return err
		}
		order.Items = items

		if err := s.store.DeleteCartItems(ctx, tx, cart.ID); err != nil {
			return err
		}

		// Подарочная карта погашается отдельной операцией к готовому заказу.
		if coupon != nil && !giftCard {
			if err := s.coupons.RecordUsage(ctx, tx, coupon.ID, userID, &orderID); err != nil {
				return err
			}
		}

		return s.store.InsertStatusHistory(ctx, tx, &model.OrderStatusHistory{
			OrderID:         orderID,
			NewStatus:       order.Status,
			ChangedByUserID: &userID,
			Reason:          fmt.Sprintf("order created via %s", req.PaymentMethod),
		})
	})
	if err != nil {
		return nil, err
	}

	if giftCard {
		s.logger.Info("order created with gift card pending",
			zap.Int64("orderID", order.ID), zap.String("coupon", req.CouponCode))
	}

	s.notifyOrderCreated(ctx, order)

	return &CreateOrderResult{Order: order, WompiData: wompiData}, nil
}

// ConfirmOrderPayment — точка входа webhook шлюза. Повторная доставка по уже
// оплаченному заказу завершается успехом без эффектов.
func (s *OrdersService) ConfirmOrderPayment(ctx context.Context, reference, gatewayTxID string, amountInCents int64) error {
	order, err := s.store.GetOrderByPaymentReference(ctx, reference)
	if err != nil {
		return err
	}

	confirmed := false
	err = s.store.WithinTransaction(ctx, func(tx pgx.Tx) error {
		locked, err := s.store.GetOrderForUpdate(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		if locked.Status == model.OrderStatusPaid {
			return nil
		}

		diff := locked.Total - amountInCents
		if diff < 0 {
			diff = -diff
		}
		if diff > paymentTolerance {
			return fmt.Errorf("%w: expected %d, got %d", ErrAmountMismatch, locked.Total, amountInCents)
		}

		if err := s.store.UpdateOrderStatus(ctx, tx, locked.ID, model.OrderStatusPaid); err != nil {
			return err
		}

		prev := locked.Status
		confirmed = true
		return s.store.InsertStatusHistory(ctx, tx, &model.OrderStatusHistory{
			OrderID:        locked.ID,
			PreviousStatus: &prev,
			NewStatus:      model.OrderStatusPaid,
			Reason:         fmt.Sprintf("payment confirmed by gateway (tx: %s)", gatewayTxID),
		})
	})
	if err != nil {
		return err
	}

	if confirmed {
		s.logger.Info("order payment confirmed",
			zap.Int64("orderID", order.ID), zap.String("gatewayTx", gatewayTxID))
		s.notifyOrderPaid(ctx, order)
	}

	return nil
}

// ApproveOrderPayment — ручное подтверждение оплаты администратором. Доступно
// только для способов без автоматического подтверждения (COD, банковский перевод).
func (s *OrdersService) ApproveOrderPayment(ctx context.Context, orderID int64, adminID string) (*model.Order, error) {
	var order *model.Order

	err := s.store.WithinTransaction(ctx, func(tx pgx.Tx) error {
		locked, err := s.store.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if locked.PaymentMethod != model.PaymentCashOnDelivery && locked.PaymentMethod != model.PaymentBankTransfer {
			return fmt.Errorf("%w: %s", ErrMethodNotEligible, locked.PaymentMethod)
		}
		if locked.Status == model.OrderStatusPaid {
			return ErrOrderAlreadyPaid
		}

		now := time.Now()
		if err := s.store.UpdateOrderStatus(ctx, tx, orderID, model.OrderStatusPaid); err != nil {
			return err
		}
		if err := s.store.SetOrderApproval(ctx, tx, orderID, adminID, now); err != nil {
			return err
		}

		prev := locked.Status
		if err := s.store.InsertStatusHistory(ctx, tx, &model.OrderStatusHistory{
			OrderID:         orderID,
			PreviousStatus:  &prev,
			NewStatus:       model.OrderStatusPaid,
			ChangedByUserID: &adminID,
			Reason:          "payment approved manually by administrator",
		}); err != nil {
			return err
		}

		locked.Status = model.OrderStatusPaid
		locked.ApprovedByUserID = &adminID
		locked.ApprovedAt = &now
		order = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyOrderPaid(ctx, order)
	return order, nil
}

// ChangeStatus — общий административный переход. Допустимость перехода
// проверяет model.CanTransition; кроме запрета терминальных статусов и пустых
// переходов ограничений нет.
func (s *OrdersService) ChangeStatus(ctx context.Context, orderID int64, newStatus model.OrderStatus, reason, adminID string) (*model.Order, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("invalid order status %q", newStatus)
	}

	var order *model.Order

	err := s.store.WithinTransaction(ctx, func(tx pgx.Tx) error {
		locked, err := s.store.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := model.CanTransition(locked.Status, newStatus); err != nil {
			return err
		}

		if err := s.store.UpdateOrderStatus(ctx, tx, orderID, newStatus); err != nil {
			return err
		}

		if reason == "" {
			reason = "manual change by administrator"
		}

		prev := locked.Status
		if err := s.store.InsertStatusHistory(ctx, tx, &model.OrderStatusHistory{
			OrderID:         orderID,
			PreviousStatus:  &prev,
			NewStatus:       newStatus,
			ChangedByUserID: &adminID,
			Reason:          reason,
		}); err != nil {
			return err
		}

		locked.Status = newStatus
		order = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// CancelMyOrder — отмена заказа клиентом. Если заказ был оплачен, вся сумма
// возвращается в кошелёк покупки той же транзакцией, что и смена статуса.
// Возвращает признак выполненного возврата.
func (s *OrdersService) CancelMyOrder(ctx context.Context, orderID int64, userID, reason string) (bool, error) {
	refunded := false
	var order *model.Order

	err := s.store.WithinTransaction(ctx, func(tx pgx.Tx) error {
		locked, err := s.store.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if locked.UserID != userID {
			return ErrNotOrderOwner
		}

		switch locked.Status {
		case model.OrderStatusPending, model.OrderStatusPendingPayment, model.OrderStatusPaid:
		default:
			return fmt.Errorf("%w: %s", ErrNotCancellable, locked.Status)
		}

		if locked.Status == model.OrderStatusPaid && locked.Total > 0 {
			_, _, err := s.credits.Refund(ctx, tx, userID, locked.Total,
				model.CreditTypePurchase, fmt.Sprintf("refund order #%d", locked.ID))
			if err != nil {
				return err
			}
			refunded = true
		}

		if err := s.store.UpdateOrderStatus(ctx, tx, orderID, model.OrderStatusCancelled); err != nil {
			return err
		}

		prev := locked.Status
		if err := s.store.InsertStatusHistory(ctx, tx, &model.OrderStatusHistory{
			OrderID:         orderID,
			PreviousStatus:  &prev,
			NewStatus:       model.OrderStatusCancelled,
			ChangedByUserID: &userID,
			Reason:          fmt.Sprintf("cancelled by client: %s", reason),
		}); err != nil {
			return err
		}

		order = locked
		return nil
	})
	if err != nil {
		return false, err
	}

	s.logger.Info("order cancelled",
		zap.Int64("orderID", orderID), zap.Bool("refunded", refunded))
	s.notifyOrderCancelled(ctx, order, refunded)

	return refunded, nil
}

// GetMyOrders возвращает заказы пользователя с позициями.
func (s *OrdersService) GetMyOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return s.store.ListOrdersByUser(ctx, userID)
}

// GetOrderByID возвращает заказ с позициями, проверяя владельца.
func (s *OrdersService) GetOrderByID(ctx context.Context, orderID int64, userID string) (*model.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}

	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// ListOrders возвращает страницу заказов по фильтру (операция администратора).
func (s *OrdersService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, int, error) {
	return s.store.ListOrders(ctx, filter)
}

// GetStatusHistory возвращает журнал переходов статуса заказа.
func (s *OrdersService) GetStatusHistory(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error) {
	if _, err := s.store.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.GetStatusHistory(ctx, orderID)
}

// notifyOrderCreated отправляет письмо о создании заказа. Ошибки доставки
// только логируются: почта не входит в границу консистентности.
func (s *OrdersService) notifyOrderCreated(ctx context.Context, order *model.Order) {
	if s.mailer == nil {
		return
	}

	user, err := s.store.GetUserByID(ctx, order.UserID)
	if err != nil {
		s.logger.Warn("lookup user for mail failed", zap.Error(err))
		return
	}

	if err := s.mailer.SendOrderCreated(ctx, user.Login, order.ID, float64(order.Total)/100); err != nil {
		s.logger.Warn("send order created mail failed", zap.Error(err), zap.Int64("orderID", order.ID))
	}
}

func (s *OrdersService) notifyOrderPaid(ctx context.Context, order *model.Order) {
	if s.mailer == nil || order == nil {
		return
	}

	user, err := s.store.GetUserByID(ctx, order.UserID)
	if err != nil {
		s.logger.Warn("lookup user for mail failed", zap.Error(err))
		return
	}

	if err := s.mailer.SendOrderPaid(ctx, user.Login, order.ID); err != nil {
		s.logger.Warn("send order paid mail failed", zap.Error(err), zap.Int64("orderID", order.ID))
	}
}

func (s *OrdersService) notifyOrderCancelled(ctx context.Context, order *model.Order, refunded bool) {
	if s.mailer == nil || order == nil {
		return
	}

	user, err := s.store.GetUserByID(ctx, order.UserID)
	if err != nil {
		s.logger.Warn("lookup user for mail failed", zap.Error(err))
		return
	}

	if err := s.mailer.SendOrderCancelled(ctx, user.Login, order.ID, refunded); err != nil {
		s.logger.Warn("send order cancelled mail failed", zap.Error(err), zap.Int64("orderID", order.ID))
	}
}
