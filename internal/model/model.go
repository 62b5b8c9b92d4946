// Package model содержит доменные сущности интернет-магазина.
package model

import "time"

// Role описывает роль пользователя в системе.
type Role string

const (
	RoleClient Role = "CLIENT"
	RoleAdmin  Role = "ADMIN"
)

// User представляет зарегистрированного пользователя с двумя независимыми кошельками.
// Балансы хранятся в центах и изменяются только через CreditsService.
type User struct {
	ID              string
	Login           string
	PasswordHash    []byte
	Role            Role
	DesignCredits   int64
	PurchaseCredits int64
	CreatedAt       time.Time
}

// CreditType определяет кошелёк, к которому относится операция.
type CreditType string

const (
	// CreditTypeDesign — кредиты для покупки дизайнов.
	CreditTypeDesign CreditType = "DESIGN"
	// CreditTypePurchase — кредиты для оплаты физических товаров.
	CreditTypePurchase CreditType = "PURCHASE"
)

// Valid сообщает, является ли значение известным типом кредитов.
func (c CreditType) Valid() bool {
	return c == CreditTypeDesign || c == CreditTypePurchase
}

// TransactionType описывает вид движения по счёту.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionPurchase   TransactionType = "PURCHASE"
	TransactionRefund     TransactionType = "REFUND"
	TransactionAdjustment TransactionType = "ADJUSTMENT"
)

// CreditTransaction — неизменяемая запись журнала о движении по счёту.
// Создаётся ровно один раз на каждую мутацию баланса, никогда не обновляется.
type CreditTransaction struct {
	ID           string
	UserID       string
	Amount       int64
	CreditType   CreditType
	Type         TransactionType
	Description  string
	ReferenceID  *string
	BalanceAfter int64
	CreatedAt    time.Time
}

// Balances содержит оба баланса пользователя в центах.
type Balances struct {
	DesignCredits   int64
	PurchaseCredits int64
}

// Of возвращает баланс запрошенного типа кредитов.
func (b Balances) Of(creditType CreditType) int64 {
	if creditType == CreditTypeDesign {
		return b.DesignCredits
	}
	return b.PurchaseCredits
}

// PaymentIntentKind различает назначение платёжной ссылки.
type PaymentIntentKind string

const (
	// IntentRecharge — обычное пополнение, сумма берётся из webhook.
	IntentRecharge PaymentIntentKind = "RECHARGE"
	// IntentPackage — покупка пакета кредитов с фиксированным начислением.
	IntentPackage PaymentIntentKind = "PACKAGE"
)

// PaymentIntent фиксирует назначение платежа до передачи reference во внешний шлюз.
// Webhook находит intent по reference вместо разбора строки.
type PaymentIntent struct {
	Reference    string
	Kind         PaymentIntentKind
	UserID       string
	CreditType   CreditType
	CreditAmount int64
	CreatedAt    time.Time
}
