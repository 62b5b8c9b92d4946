package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mmeshcher/commerce-system/internal/model"
)

func shirt(qty int) model.CartItem {
	return model.CartItem{
		ID:          "item-1",
		ProductID:   "p-1",
		ProductName: "camiseta",
		Price:       3_000,
		Quantity:    qty,
	}
}

func TestCreateOrderEmptyCart(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	svc := newTestOrders(store)

	_, err := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod: model.PaymentWallet,
	})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCreateOrderWallet(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 10_000, 0)
	store.addCart("u1", shirt(2))
	svc := newTestOrders(store)

	result, err := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod:   model.PaymentWallet,
		ShippingAddress: model.ShippingAddress{City: "Bogotá"},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	order := result.Order
	if order.Status != model.OrderStatusPaid {
		t.Fatalf("status = %s, want PAID", order.Status)
	}
	if order.Total != 6_000 {
		t.Fatalf("total = %d, want 6000", order.Total)
	}

	balance, _ := newTestCredits(store).GetBalance(context.Background(), "u1", model.CreditTypePurchase)
	if balance != 4_000 {
		t.Fatalf("wallet balance = %d, want 4000", balance)
	}

	cart, _ := store.GetOrCreateCart(context.Background(), "u1")
	if len(cart.Items) != 0 {
		t.Fatalf("cart not emptied after checkout")
	}

	history := store.history[order.ID]
	if len(history) != 1 || history[0].PreviousStatus != nil || history[0].NewStatus != model.OrderStatusPaid {
		t.Fatalf("unexpected status history: %+v", history)
	}
}

func TestCreateOrderWalletInsufficient(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 1_000, 0)
	store.addCart("u1", shirt(2))
	svc := newTestOrders(store)

	_, err := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod: model.PaymentWallet,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(store.orders) != 0 {
		t.Fatalf("order created despite failed payment")
	}
}

func TestCreateOrderCashOnDeliveryCityRule(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	store.addCart("u1", shirt(1))
	svc := newTestOrders(store)

	_, err := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod:   model.PaymentCashOnDelivery,
		ShippingAddress: model.ShippingAddress{City: "Bogotá"},
	})
	if !errors.Is(err, ErrPaymentMethodNotAvailable) {
		t.Fatalf("expected ErrPaymentMethodNotAvailable, got %v", err)
	}

	result, err := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod:   model.PaymentCashOnDelivery,
		ShippingAddress: model.ShippingAddress{City: "Medellín, Antioquia"},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if result.Order.Status != model.OrderStatusPending {
		t.Fatalf("status = %s, want PENDING", result.Order.Status)
	}
	if !strings.HasPrefix(result.Order.PaymentReference, "COD-") {
		t.Fatalf("reference = %q, want COD- prefix", result.Order.PaymentReference)
	}
}

func TestCreateOrderWompi(t *testing.T) {
	store := newMemStore()
	store.addUser("usr12345", 0, 0)
	store.addCart("usr12345", shirt(1))
	svc := newTestOrders(store)

	result, err := svc.CreateOrder(context.Background(), "usr12345", CreateOrderRequest{
		PaymentMethod: model.PaymentWompi,
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	if result.Order.Status != model.OrderStatusPendingPayment {
		t.Fatalf("status = %s, want PENDING_PAYMENT", result.Order.Status)
	}
	if !strings.HasPrefix(result.Order.PaymentReference, "ORD-usr12-") {
		t.Fatalf("reference = %q, want ORD-usr12- prefix", result.Order.PaymentReference)
	}
	if result.WompiData == nil {
		t.Fatalf("wompi payment data missing")
	}
	if result.WompiData.AmountInCents != 3_000 || result.WompiData.Currency != "COP" {
		t.Fatalf("payment data = %+v", result.WompiData)
	}
}

func TestCreateOrderPercentageCoupon(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 100_000, 0)
	store.addCart("u1", shirt(2))
	coupon := testCoupon(store, "OFF10", model.CouponPercentage, 10)
	svc := newTestOrders(store)

	result, err := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod: model.PaymentWallet,
		CouponCode:    "OFF10",
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	order := result.Order
	if order.Subtotal != 6_000 || order.Discount != 600 || order.Total != 5_400 {
		t.Fatalf("subtotal/discount/total = %d/%d/%d, want 6000/600/5400",
			order.Subtotal, order.Discount, order.Total)
	}

	if coupon.UsedCount != 1 {
		t.Fatalf("coupon usage not recorded")
	}

	// Лимит на пользователя исчерпан первым заказом.
	store.addCart("u1", shirt(1))
	_, err = svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod: model.PaymentWallet,
		CouponCode:    "OFF10",
	})
	if !errors.Is(err, ErrCouponUserLimit) {
		t.Fatalf("second coupon order = %v, want ErrCouponUserLimit", err)
	}
}

func TestCreateOrderFixedCouponCappedAtSubtotal(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 100_000, 0)
	store.addCart("u1", shirt(1))
	testCoupon(store, "BIG", model.CouponFixedAmount, 50_000)
	svc := newTestOrders(store)

	result, err := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod: model.PaymentWallet,
		CouponCode:    "BIG",
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if result.Order.Discount != 3_000 || result.Order.Total != 0 {
		t.Fatalf("discount/total = %d/%d, want 3000/0",
			result.Order.Discount, result.Order.Total)
	}

	// Нулевой заказ оплачен без движения по кошельку.
	if result.Order.Status != model.OrderStatusPaid {
		t.Fatalf("status = %s, want PAID", result.Order.Status)
	}
	balance, _ := newTestCredits(store).GetBalance(context.Background(), "u1", model.CreditTypePurchase)
	if balance != 100_000 {
		t.Fatalf("balance = %d, want untouched 100000", balance)
	}
	if len(store.transactions) != 0 {
		t.Fatalf("no ledger entries expected, got %d", len(store.transactions))
	}
}

func TestCancelMyOrderZeroTotalNoRefund(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 100_000, 0)
	store.addCart("u1", shirt(1))
	testCoupon(store, "BIG", model.CouponFixedAmount, 50_000)
	svc := newTestOrders(store)

	result, err := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod: model.PaymentWallet,
		CouponCode:    "BIG",
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	refunded, err := svc.CancelMyOrder(context.Background(), result.Order.ID, "u1", "changed my mind")
	if err != nil {
		t.Fatalf("CancelMyOrder error: %v", err)
	}
	if refunded {
		t.Fatalf("nothing was charged, nothing to refund")
	}
	if len(store.transactions) != 0 {
		t.Fatalf("no ledger entries expected, got %d", len(store.transactions))
	}
}

func TestCreateOrderRejectsRechargeCoupon(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 100_000, 0)
	store.addCart("u1", shirt(1))
	coupon := testCoupon(store, "TOPUP", model.CouponRechargeCredit, 2_000)
	svc := newTestOrders(store)

	_, err := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod: model.PaymentWallet,
		CouponCode:    "TOPUP",
	})
	if !errors.Is(err, ErrCouponTypeMismatch) {
		t.Fatalf("CreateOrder = %v, want ErrCouponTypeMismatch", err)
	}

	// Купон не сожжён, заказ не создан, корзина не тронута.
	if coupon.UsedCount != 0 || len(store.couponUsages) != 0 {
		t.Fatalf("coupon must stay unredeemed: usedCount=%d usages=%d",
			coupon.UsedCount, len(store.couponUsages))
	}
	if len(store.orders) != 0 {
		t.Fatalf("no order expected, got %d", len(store.orders))
	}
	cart, _ := store.GetOrCreateCart(context.Background(), "u1")
	if len(cart.Items) != 1 {
		t.Fatalf("cart must be preserved, got %d items", len(cart.Items))
	}
}

func createWompiOrder(t *testing.T, store *memStore, svc *OrdersService, userID string) *model.Order {
	t.Helper()
	store.addCart(userID, shirt(2))
	result, err := svc.CreateOrder(context.Background(), userID, CreateOrderRequest{
		PaymentMethod: model.PaymentWompi,
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	return result.Order
}

func TestConfirmOrderPayment(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	svc := newTestOrders(store)
	order := createWompiOrder(t, store, svc, "u1")

	// В пределах допуска на округление шлюза.
	err := svc.ConfirmOrderPayment(context.Background(), order.PaymentReference, "wompi-tx-1", order.Total-9_999)
	if err != nil {
		t.Fatalf("ConfirmOrderPayment error: %v", err)
	}

	updated, _ := store.GetOrderByID(context.Background(), order.ID)
	if updated.Status != model.OrderStatusPaid {
		t.Fatalf("status = %s, want PAID", updated.Status)
	}
}

func TestConfirmOrderPaymentAmountMismatch(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	svc := newTestOrders(store)
	order := createWompiOrder(t, store, svc, "u1")

	err := svc.ConfirmOrderPayment(context.Background(), order.PaymentReference, "wompi-tx-1", order.Total-10_001)
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	updated, _ := store.GetOrderByID(context.Background(), order.ID)
	if updated.Status != model.OrderStatusPendingPayment {
		t.Fatalf("status changed on mismatched amount: %s", updated.Status)
	}
}

func TestConfirmOrderPaymentIdempotent(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	svc := newTestOrders(store)
	order := createWompiOrder(t, store, svc, "u1")

	for i := 0; i < 2; i++ {
		if err := svc.ConfirmOrderPayment(context.Background(), order.PaymentReference, "wompi-tx-1", order.Total); err != nil {
			t.Fatalf("ConfirmOrderPayment #%d error: %v", i+1, err)
		}
	}

	// Создание + подтверждение: повторный webhook записей не добавляет.
	if got := len(store.history[order.ID]); got != 2 {
		t.Fatalf("history entries = %d, want 2", got)
	}
}

func TestApproveOrderPayment(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	store.addCart("u1", shirt(1))
	svc := newTestOrders(store)

	result, err := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod: model.PaymentBankTransfer,
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	order, err := svc.ApproveOrderPayment(context.Background(), result.Order.ID, "admin-1")
	if err != nil {
		t.Fatalf("ApproveOrderPayment error: %v", err)
	}
	if order.Status != model.OrderStatusPaid {
		t.Fatalf("status = %s, want PAID", order.Status)
	}
	if order.ApprovedByUserID == nil || *order.ApprovedByUserID != "admin-1" {
		t.Fatalf("approvedBy = %v, want admin-1", order.ApprovedByUserID)
	}
	if order.ApprovedAt == nil {
		t.Fatalf("approvedAt not set")
	}

	_, err = svc.ApproveOrderPayment(context.Background(), result.Order.ID, "admin-1")
	if !errors.Is(err, ErrOrderAlreadyPaid) {
		t.Fatalf("second approval = %v, want ErrOrderAlreadyPaid", err)
	}
}

func TestApproveOrderPaymentGatewayMethodRejected(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	svc := newTestOrders(store)
	order := createWompiOrder(t, store, svc, "u1")

	_, err := svc.ApproveOrderPayment(context.Background(), order.ID, "admin-1")
	if !errors.Is(err, ErrMethodNotEligible) {
		t.Fatalf("expected ErrMethodNotEligible, got %v", err)
	}
}

func TestChangeStatus(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 100_000, 0)
	store.addCart("u1", shirt(1))
	svc := newTestOrders(store)

	result, err := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod: model.PaymentWallet,
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	orderID := result.Order.ID

	// Переходы свободные, в том числе назад по цепочке.
	for _, status := range []model.OrderStatus{
		model.OrderStatusShipped,
		model.OrderStatusPreparing,
		model.OrderStatusDelivered,
	} {
		if _, err := svc.ChangeStatus(context.Background(), orderID, status, "", "admin-1"); err != nil {
			t.Fatalf("ChangeStatus(%s) error: %v", status, err)
		}
	}

	// Из терминального статуса выхода нет.
	_, err = svc.ChangeStatus(context.Background(), orderID, model.OrderStatusShipped, "", "admin-1")
	if !errors.Is(err, model.ErrOrderFinalized) {
		t.Fatalf("transition from DELIVERED = %v, want ErrOrderFinalized", err)
	}

	history, _ := svc.GetStatusHistory(context.Background(), orderID)
	if len(history) != 4 {
		t.Fatalf("history entries = %d, want 4", len(history))
	}
}

func TestChangeStatusSameStatus(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 100_000, 0)
	store.addCart("u1", shirt(1))
	svc := newTestOrders(store)

	result, _ := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod: model.PaymentWallet,
	})

	_, err := svc.ChangeStatus(context.Background(), result.Order.ID, model.OrderStatusPaid, "", "admin-1")
	if !errors.Is(err, model.ErrSameStatus) {
		t.Fatalf("expected ErrSameStatus, got %v", err)
	}
}

func TestCancelMyOrderRefundsPaid(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 10_000, 0)
	store.addCart("u1", shirt(2))
	svc := newTestOrders(store)

	result, err := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod: model.PaymentWallet,
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	refunded, err := svc.CancelMyOrder(context.Background(), result.Order.ID, "u1", "changed my mind")
	if err != nil {
		t.Fatalf("CancelMyOrder error: %v", err)
	}
	if !refunded {
		t.Fatalf("paid order must be refunded on cancellation")
	}

	balance, _ := newTestCredits(store).GetBalance(context.Background(), "u1", model.CreditTypePurchase)
	if balance != 10_000 {
		t.Fatalf("balance after refund = %d, want 10000", balance)
	}

	updated, _ := store.GetOrderByID(context.Background(), result.Order.ID)
	if updated.Status != model.OrderStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", updated.Status)
	}

	var refundEntry *model.CreditTransaction
	for i := range store.transactions {
		if store.transactions[i].Type == model.TransactionRefund {
			refundEntry = &store.transactions[i]
		}
	}
	if refundEntry == nil || refundEntry.Amount != 6_000 {
		t.Fatalf("refund ledger entry missing or wrong: %+v", refundEntry)
	}
}

func TestCancelMyOrderPendingNoRefund(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	svc := newTestOrders(store)
	order := createWompiOrder(t, store, svc, "u1")

	refunded, err := svc.CancelMyOrder(context.Background(), order.ID, "u1", "")
	if err != nil {
		t.Fatalf("CancelMyOrder error: %v", err)
	}
	if refunded {
		t.Fatalf("unpaid order must not produce a refund")
	}
	if len(store.transactions) != 0 {
		t.Fatalf("ledger entries = %d, want 0", len(store.transactions))
	}
}

func TestCancelMyOrderNotOwner(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	store.addUser("u2", 0, 0)
	svc := newTestOrders(store)
	order := createWompiOrder(t, store, svc, "u1")

	_, err := svc.CancelMyOrder(context.Background(), order.ID, "u2", "")
	if !errors.Is(err, ErrNotOrderOwner) {
		t.Fatalf("expected ErrNotOrderOwner, got %v", err)
	}
}

func TestCancelMyOrderShippedRejected(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	svc := newTestOrders(store)
	order := createWompiOrder(t, store, svc, "u1")

	store.orders[order.ID].Status = model.OrderStatusShipped

	_, err := svc.CancelMyOrder(context.Background(), order.ID, "u1", "")
	if !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
}

func TestGetOrderByIDChecksOwner(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	store.addUser("u2", 0, 0)
	svc := newTestOrders(store)
	order := createWompiOrder(t, store, svc, "u1")

	if _, err := svc.GetOrderByID(context.Background(), order.ID, "u1"); err != nil {
		t.Fatalf("owner read error: %v", err)
	}
	if _, err := svc.GetOrderByID(context.Background(), order.ID, "u2"); !errors.Is(err, ErrNotOrderOwner) {
		t.Fatalf("expected ErrNotOrderOwner, got %v", err)
	}
}

func TestOrderTimestamps(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 100_000, 0)
	store.addCart("u1", shirt(1))
	svc := newTestOrders(store)

	before := time.Now().Add(-time.Second)
	result, err := svc.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		PaymentMethod: model.PaymentWallet,
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	stored, _ := store.GetOrderByID(context.Background(), result.Order.ID)
	if stored.CreatedAt.Before(before) {
		t.Fatalf("createdAt not set: %v", stored.CreatedAt)
	}
}
