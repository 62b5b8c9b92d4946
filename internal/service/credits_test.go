package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mmeshcher/commerce-system/internal/model"
)

func TestRechargeThenCharge(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	svc := newTestCredits(store)

	balance, _, err := svc.Recharge(context.Background(), nil, "u1", 10_000, model.CreditTypePurchase, "top up", nil)
	if err != nil {
		t.Fatalf("Recharge error: %v", err)
	}
	if balance != 10_000 {
		t.Fatalf("balance after recharge = %d, want 10000", balance)
	}

	balance, _, err = svc.Charge(context.Background(), nil, "u1", 6_000, model.CreditTypePurchase, "order payment")
	if err != nil {
		t.Fatalf("Charge error: %v", err)
	}
	if balance != 4_000 {
		t.Fatalf("balance after charge = %d, want 4000", balance)
	}

	history, err := svc.GetHistory(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history entries = %d, want 2", len(history))
	}
	if history[0].BalanceAfter != 10_000 || history[1].BalanceAfter != 4_000 {
		t.Fatalf("balanceAfter chain = %d, %d; want 10000, 4000",
			history[0].BalanceAfter, history[1].BalanceAfter)
	}
	if history[1].Amount != -6_000 || history[1].Type != model.TransactionPurchase {
		t.Fatalf("charge entry = %+v, want amount -6000 type PURCHASE", history[1])
	}
}

func TestChargeInsufficientBalance(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 5_000, 0)
	svc := newTestCredits(store)

	_, _, err := svc.Charge(context.Background(), nil, "u1", 6_000, model.CreditTypePurchase, "order payment")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	balance, err := svc.GetBalance(context.Background(), "u1", model.CreditTypePurchase)
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance != 5_000 {
		t.Fatalf("balance changed on failed charge: %d, want 5000", balance)
	}
	if len(store.transactions) != 0 {
		t.Fatalf("ledger has %d entries after failed charge, want 0", len(store.transactions))
	}
}

func TestChargeRejectsNonPositiveAmount(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 5_000, 0)
	svc := newTestCredits(store)

	for _, amount := range []int64{0, -100} {
		if _, _, err := svc.Charge(context.Background(), nil, "u1", amount, model.CreditTypePurchase, "x"); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Charge(%d): expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestWalletsAreIndependent(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 10_000, 0)
	svc := newTestCredits(store)

	_, _, err := svc.Charge(context.Background(), nil, "u1", 100, model.CreditTypeDesign, "design work")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("design wallet must not borrow from purchase wallet, got %v", err)
	}
}

func TestInitiateRechargeBelowMinimum(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	svc := newTestCredits(store)

	_, err := svc.InitiateRecharge(context.Background(), "u1", 99_999, model.CreditTypePurchase)
	if !errors.Is(err, ErrRechargeBelowMinimum) {
		t.Fatalf("expected ErrRechargeBelowMinimum, got %v", err)
	}
}

func TestInitiateRechargeCreatesIntent(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	svc := newTestCredits(store)

	data, err := svc.InitiateRecharge(context.Background(), "u1", 200_000, model.CreditTypePurchase)
	if err != nil {
		t.Fatalf("InitiateRecharge error: %v", err)
	}
	if !strings.HasPrefix(data.Reference, "CREDIT-PURCHASE-u1-") {
		t.Fatalf("reference = %q, want CREDIT-PURCHASE-u1- prefix", data.Reference)
	}
	if data.AmountInCents != 200_000 || data.Currency != "COP" {
		t.Fatalf("payment data = %+v", data)
	}
	if _, ok := store.intents[data.Reference]; !ok {
		t.Fatalf("payment intent not stored for %q", data.Reference)
	}
}

func TestConfirmRechargeIdempotent(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	svc := newTestCredits(store)

	data, err := svc.InitiateRecharge(context.Background(), "u1", 200_000, model.CreditTypePurchase)
	if err != nil {
		t.Fatalf("InitiateRecharge error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.ConfirmRecharge(context.Background(), data.Reference, "wompi-tx-1", 200_000); err != nil {
			t.Fatalf("ConfirmRecharge #%d error: %v", i+1, err)
		}
	}

	balance, err := svc.GetBalance(context.Background(), "u1", model.CreditTypePurchase)
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance != 200_000 {
		t.Fatalf("balance after duplicate webhook = %d, want 200000 (credited once)", balance)
	}
	if len(store.transactions) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(store.transactions))
	}
}

func TestConfirmRechargeUnknownReference(t *testing.T) {
	store := newMemStore()
	svc := newTestCredits(store)

	err := svc.ConfirmRecharge(context.Background(), "CREDIT-PURCHASE-ghost-1", "wompi-tx-1", 200_000)
	if !errors.Is(err, ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}
}

func TestPurchaseCreditPackage(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", 0, 0)
	svc := newTestCredits(store)

	data, err := svc.PurchaseCreditPackage(context.Background(), "u1", "MEDIUM")
	if err != nil {
		t.Fatalf("PurchaseCreditPackage error: %v", err)
	}
	if data.AmountInCents != 6_990_000 {
		t.Fatalf("package price = %d, want 6990000", data.AmountInCents)
	}

	// Начисляется зафиксированное в намерении количество кредитов (с бонусом),
	// а не уплаченная сумма.
	if err := svc.ConfirmRecharge(context.Background(), data.Reference, "wompi-tx-2", 6_990_000); err != nil {
		t.Fatalf("ConfirmRecharge error: %v", err)
	}

	balance, err := svc.GetBalance(context.Background(), "u1", model.CreditTypeDesign)
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance != 5_500 {
		t.Fatalf("design balance = %d, want 5500 (55 credits)", balance)
	}
}

func TestPurchaseCreditPackageUnknown(t *testing.T) {
	store := newMemStore()
	svc := newTestCredits(store)

	_, err := svc.PurchaseCreditPackage(context.Background(), "u1", "GIGANTIC")
	if !errors.Is(err, ErrUnknownPackage) {
		t.Fatalf("expected ErrUnknownPackage, got %v", err)
	}
}
