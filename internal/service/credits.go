// Package service реализует бизнес-логику интернет-магазина.
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
	"github.com/mmeshcher/commerce-system/internal/wompi"
)

// ErrInvalidAmount возвращается при нулевой или отрицательной сумме операции.
var (
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientBalance возвращается, если списание увело бы баланс в минус.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrRechargeBelowMinimum возвращается, если сумма пополнения ниже минимальной.
	ErrRechargeBelowMinimum = errors.New("recharge amount below minimum")
	// ErrUnknownPackage возвращается при неизвестном типе пакета кредитов.
	ErrUnknownPackage = errors.New("unknown credit package")
	// ErrUnknownReference возвращается, если reference платежа никому не принадлежит.
	ErrUnknownReference = errors.New("unknown payment reference")
)

// minRechargeCents — минимальная сумма пополнения кошелька ($1.000 COP).
const minRechargeCents int64 = 100_000

// CreditPackage описывает пакет дизайн-кредитов с бонусом.
type CreditPackage struct {
	Credits      int64
	BonusCredits int64
	TotalCredits int64
	PriceCents   int64
}

// designCreditPackages — пакеты дизайн-кредитов: базовые кредиты, бонус и цена в COP.
var designCreditPackages = map[string]CreditPackage{
	"SMALL":  {Credits: 20, BonusCredits: 0, TotalCredits: 20, PriceCents: 3_490_000},
	"MEDIUM": {Credits: 50, BonusCredits: 5, TotalCredits: 55, PriceCents: 6_990_000},
	"LARGE":  {Credits: 120, BonusCredits: 15, TotalCredits: 135, PriceCents: 9_990_000},
}

// DesignCreditPackages возвращает доступные пакеты дизайн-кредитов.
func DesignCreditPackages() map[string]CreditPackage {
	res := make(map[string]CreditPackage, len(designCreditPackages))
	for k, v := range designCreditPackages {
		res[k] = v
	}
	return res
}

// CreditsStore описывает контракт доступа к данным кошельков и журнала.
type CreditsStore interface {
	WithinTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
	LockBalances(ctx context.Context, tx pgx.Tx, userID string) (*model.Balances, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, userID string, creditType model.CreditType, newBalance int64) error
	InsertCreditTransaction(ctx context.Context, tx pgx.Tx, t *model.CreditTransaction) (string, error)
	GetCreditTransactionByReference(ctx context.Context, reference string) (*model.CreditTransaction, error)
	GetBalances(ctx context.Context, userID string) (*model.Balances, error)
	GetCreditHistory(ctx context.Context, userID string, creditType *model.CreditType) ([]model.CreditTransaction, error)
	CreatePaymentIntent(ctx context.Context, intent *model.PaymentIntent) error
	GetPaymentIntent(ctx context.Context, reference string) (*model.PaymentIntent, error)
}

// Gateway описывает часть адаптера шлюза, нужную кредитному сервису.
type Gateway interface {
	GenerateSignature(reference string, amountInCents int64, currency string) string
	PublicKey() string
}

// CreditsService — единственная точка изменения балансов пользователей.
type CreditsService struct {
	store   CreditsStore
	gateway Gateway
	logger  *zap.Logger
}

// NewCreditsService создаёт кредитный сервис.
func NewCreditsService(store CreditsStore, gateway Gateway, logger *zap.Logger) *CreditsService {
	return &CreditsService{
		store:   store,
		gateway: gateway,
		logger:  logger,
	}
}

// processTransaction выполняет мутацию баланса атомарно: чтение под блокировкой
// строки пользователя, проверка неотрицательности, запись нового баланса и
// запись журнала — всё внутри одной транзакции. Если tx передан извне,
// операция присоединяется к транзакции вызывающей стороны.
func (s *CreditsService) processTransaction(
	ctx context.Context,
	tx pgx.Tx,
	userID string,
	amount int64,
	creditType model.CreditType,
	txType model.TransactionType,
	description string,
	referenceID *string,
) (int64, string, error) {
	var newBalance int64
	var entryID string

	run := func(tx pgx.Tx) error {
		balances, err := s.store.LockBalances(ctx, tx, userID)
		if err != nil {
			return err
		}

		newBalance = balances.Of(creditType) + amount
		if newBalance < 0 {
			return fmt.Errorf("%w: %s credits", ErrInsufficientBalance, creditType)
		}

		if err := s.store.UpdateBalance(ctx, tx, userID, creditType, newBalance); err != nil {
			return err
		}

		entryID, err = s.store.InsertCreditTransaction(ctx, tx, &model.CreditTransaction{
			UserID:       userID,
			Amount:       amount,
			CreditType:   creditType,
			Type:         txType,
			Description:  description,
			ReferenceID:  referenceID,
			BalanceAfter: newBalance,
		})
		return err
	}

	if tx != nil {
		if err := run(tx); err != nil {
			return 0, "", err
		}
		return newBalance, entryID, nil
	}

	if err := s.store.WithinTransaction(ctx, run); err != nil {
		return 0, "", err
	}
	return newBalance, entryID, nil
}

// Recharge увеличивает баланс пользователя и пишет запись DEPOSIT в журнал.
// referenceID служит ключом идемпотентности для платежей шлюза.
func (s *CreditsService) Recharge(ctx context.Context, tx pgx.Tx, userID string, amount int64, creditType model.CreditType, description string, referenceID *string) (int64, string, error) {
	if amount <= 0 {
		return 0, "", ErrInvalidAmount
	}
	return s.processTransaction(ctx, tx, userID, amount, creditType, model.TransactionDeposit, description, referenceID)
}

// Charge списывает amount с баланса пользователя, записывая в журнал
// отрицательную сумму с типом PURCHASE. Возвращает ErrInsufficientBalance,
// если после списания баланс стал бы отрицательным; частичных эффектов нет.
func (s *CreditsService) Charge(ctx context.Context, tx pgx.Tx, userID string, amount int64, creditType model.CreditType, description string) (int64, string, error) {
	if amount <= 0 {
		return 0, "", ErrInvalidAmount
	}
	return s.processTransaction(ctx, tx, userID, -amount, creditType, model.TransactionPurchase, description, nil)
}

// Refund возвращает средства на баланс пользователя с типом REFUND.
func (s *CreditsService) Refund(ctx context.Context, tx pgx.Tx, userID string, amount int64, creditType model.CreditType, description string) (int64, string, error) {
	if amount <= 0 {
		return 0, "", ErrInvalidAmount
	}
	return s.processTransaction(ctx, tx, userID, amount, creditType, model.TransactionRefund, description, nil)
}

// InitiateRecharge готовит данные для оплаты пополнения через шлюз: создаёт
// платёжное намерение и подписанные данные для виджета. Деньги не двигаются.
func (s *CreditsService) InitiateRecharge(ctx context.Context, userID string, amount int64, creditType model.CreditType) (*wompi.PaymentData, error) {
	if amount < minRechargeCents {
		return nil, ErrRechargeBelowMinimum
	}
	if !creditType.Valid() {
		return nil, fmt.Errorf("invalid credit type %q", creditType)
	}

	reference := fmt.Sprintf("CREDIT-%s-%s-%d", creditType, userID, time.Now().UnixMilli())

	err := s.store.CreatePaymentIntent(ctx, &model.PaymentIntent{
		Reference:  reference,
		Kind:       model.IntentRecharge,
		UserID:     userID,
		CreditType: creditType,
	})
	if err != nil {
		return nil, err
	}

	const currency = "COP"
	return &wompi.PaymentData{
		Reference:     reference,
		AmountInCents: amount,
		Currency:      currency,
		Signature:     s.gateway.GenerateSignature(reference, amount, currency),
		PublicKey:     s.gateway.PublicKey(),
	}, nil
}

// PurchaseCreditPackage готовит оплату пакета дизайн-кредитов. Начисляемое
// количество кредитов (с бонусом) фиксируется в платёжном намерении.
func (s *CreditsService) PurchaseCreditPackage(ctx context.Context, userID, packageType string) (*wompi.PaymentData, error) {
	pkg, ok := designCreditPackages[packageType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, packageType)
	}

	reference := fmt.Sprintf("PACKAGE-%s-%s-%d", packageType, userID, time.Now().UnixMilli())

	err := s.store.CreatePaymentIntent(ctx, &model.PaymentIntent{
		Reference:    reference,
		Kind:         model.IntentPackage,
		UserID:       userID,
		CreditType:   model.CreditTypeDesign,
		CreditAmount: pkg.TotalCredits * 100,
	})
	if err != nil {
		return nil, err
	}

	const currency = "COP"
	return &wompi.PaymentData{
		Reference:     reference,
		AmountInCents: pkg.PriceCents,
		Currency:      currency,
		Signature:     s.gateway.GenerateSignature(reference, pkg.PriceCents, currency),
		PublicKey:     s.gateway.PublicKey(),
	}, nil
}

// ConfirmRecharge — точка входа webhook. Повторная доставка с тем же reference
// не меняет состояние: если запись журнала уже существует, вызов завершается
// успехом. Назначение платежа восстанавливается по платёжному намерению.
func (s *CreditsService) ConfirmRecharge(ctx context.Context, reference, gatewayTxID string, amountInCents int64) error {
	existing, err := s.store.GetCreditTransactionByReference(ctx, reference)
	if err != nil && !errors.Is(err, repository.ErrTransactionNotFound) {
		return err
	}
	if existing != nil {
		s.logger.Info("recharge already processed", zap.String("reference", reference))
		return nil
	}

	intent, err := s.store.GetPaymentIntent(ctx, reference)
	if err != nil {
		if errors.Is(err, repository.ErrIntentNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownReference, reference)
		}
		return err
	}

	amount := amountInCents
	description := "wallet recharge via gateway"
	if intent.Kind == model.IntentPackage {
		amount = intent.CreditAmount
		description = "design credit package purchase"
	}

	_, _, err = s.Recharge(ctx, nil, intent.UserID, amount, intent.CreditType, description, &reference)
	if errors.Is(err, repository.ErrDuplicateReference) {
		// Параллельный webhook успел первым — состояние уже корректно.
		s.logger.Info("recharge already processed concurrently", zap.String("reference", reference))
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info("recharge confirmed",
		zap.String("reference", reference),
		zap.String("gatewayTx", gatewayTxID),
		zap.Int64("amount", amount))
	return nil
}

// GetBalance возвращает баланс указанного кошелька пользователя.
func (s *CreditsService) GetBalance(ctx context.Context, userID string, creditType model.CreditType) (int64, error) {
	balances, err := s.store.GetBalances(ctx, userID)
	if err != nil {
		return 0, err
	}
	return balances.Of(creditType), nil
}

// GetBalances возвращает оба баланса пользователя.
func (s *CreditsService) GetBalances(ctx context.Context, userID string) (*model.Balances, error) {
	return s.store.GetBalances(ctx, userID)
}

// GetHistory возвращает журнал движений пользователя, при необходимости по одному кошельку.
func (s *CreditsService) GetHistory(ctx context.Context, userID string, creditType *model.CreditType) ([]model.CreditTransaction, error) {
	return s.store.GetCreditHistory(ctx, userID, creditType)
}
