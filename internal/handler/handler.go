// Package handler содержит HTTP-обработчики API интернет-магазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/commerce-system/internal/middleware"
	"github.com/mmeshcher/commerce-system/internal/model"
	"github.com/mmeshcher/commerce-system/internal/repository"
	"github.com/mmeshcher/commerce-system/internal/service"
	"github.com/mmeshcher/commerce-system/internal/wompi"
)

// UsersService определяет контракт регистрации и аутентификации.
type UsersService interface {
	RegisterUser(ctx context.Context, login, password string) (*model.User, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)
}

// CartService определяет контракт управления корзиной.
type CartService interface {
	GetCart(ctx context.Context, userID string) (*model.Cart, error)
	AddItem(ctx context.Context, userID string, item model.CartItem) (*model.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID, itemID string, quantity int) (*model.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (*model.Cart, error)
}

// CreditsService определяет контракт кошельков и пополнений.
type CreditsService interface {
	InitiateRecharge(ctx context.Context, userID string, amount int64, creditType model.CreditType) (*wompi.PaymentData, error)
	PurchaseCreditPackage(ctx context.Context, userID, packageType string) (*wompi.PaymentData, error)
	ConfirmRecharge(ctx context.Context, reference, gatewayTxID string, amountInCents int64) error
	GetBalances(ctx context.Context, userID string) (*model.Balances, error)
	GetHistory(ctx context.Context, userID string, creditType *model.CreditType) ([]model.CreditTransaction, error)
}

// CouponsService определяет контракт работы с купонами.
type CouponsService interface {
	Create(ctx context.Context, c *model.Coupon) (*model.Coupon, error)
	Deactivate(ctx context.Context, couponID string) error
	Validate(ctx context.Context, code, userID string, purchaseAmount int64, expectedType *model.CouponType) (*model.Coupon, error)
	ApplyRechargeCoupon(ctx context.Context, code, userID string) (int64, error)
	ApplyGiftCard(ctx context.Context, code, userID string, orderTotal, orderID int64) (*model.GiftCardResult, error)
}

// OrdersService определяет контракт машины состояний заказа.
type OrdersService interface {
	CreateOrder(ctx context.Context, userID string, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	ConfirmOrderPayment(ctx context.Context, reference, gatewayTxID string, amountInCents int64) error
	ApproveOrderPayment(ctx context.Context, orderID int64, adminID string) (*model.Order, error)
	ChangeStatus(ctx context.Context, orderID int64, newStatus model.OrderStatus, reason, adminID string) (*model.Order, error)
	CancelMyOrder(ctx context.Context, orderID int64, userID, reason string) (bool, error)
	GetMyOrders(ctx context.Context, userID string) ([]model.Order, error)
	GetOrderByID(ctx context.Context, orderID int64, userID string) (*model.Order, error)
	ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, int, error)
	GetStatusHistory(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error)
}

// WebhookVerifier проверяет подпись событий платёжного шлюза.
type WebhookVerifier interface {
	VerifyWebhookSignature(tx wompi.Transaction, checksum string) bool
}

// Handler реализует HTTP-обработчики API интернет-магазина.
type Handler struct {
	users          UsersService
	cart           CartService
	credits        CreditsService
	coupons        CouponsService
	orders         OrdersService
	verifier       WebhookVerifier
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(users UsersService, cart CartService, credits CreditsService, coupons CouponsService, orders OrdersService, verifier WebhookVerifier, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		users:          users,
		cart:           cart,
		credits:        credits,
		coupons:        coupons,
		orders:         orders,
		verifier:       verifier,
		logger:         logger,
		authMiddleware: auth,
	}
}

// centsToUnits переводит внутренние центы в денежные единицы для JSON.
func centsToUnits(cents int64) float64 {
	return float64(cents) / 100
}

// unitsToCents переводит денежные единицы из JSON во внутренние центы.
func unitsToCents(units float64) int64 {
	return int64(math.Round(units * 100))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Login string `json:"login"`
	Role  string `json:"role"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.users.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID, user.Role)
	h.writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Login: user.Login, Role: string(user.Role)})
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.users.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID, user.Role)
	h.writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Login: user.Login, Role: string(user.Role)})
}

// Logout сбрасывает cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}
