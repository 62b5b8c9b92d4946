package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/commerce-system/internal/middleware"
	"github.com/mmeshcher/commerce-system/internal/model"
	"github.com/mmeshcher/commerce-system/internal/repository"
	"github.com/mmeshcher/commerce-system/internal/service"
)

// couponStatus переводит ошибку валидации купона в HTTP-статус.
// Любая ошибка цепочки проверок — отказ уровня клиента, не сервера.
func couponStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, repository.ErrCouponNotFound),
		errors.Is(err, service.ErrCouponInactive),
		errors.Is(err, service.ErrCouponExpired),
		errors.Is(err, service.ErrCouponExhausted),
		errors.Is(err, service.ErrCouponTypeMismatch),
		errors.Is(err, service.ErrMinPurchaseNotMet),
		errors.Is(err, service.ErrCouponUserLimit),
		errors.Is(err, service.ErrInvalidCoupon):
		return http.StatusUnprocessableEntity, true
	}
	return 0, false
}

type createCouponRequest struct {
	Code              string  `json:"code"`
	Type              string  `json:"type"`
	Value             float64 `json:"value"`
	MinPurchase       float64 `json:"minPurchase"`
	ExpirationDate    string  `json:"expirationDate"`
	GlobalUsageLimit  *int    `json:"globalUsageLimit"`
	UsageLimitPerUser *int    `json:"usageLimitPerUser"`
}

type couponResponse struct {
	ID                string  `json:"id"`
	Code              string  `json:"code"`
	Type              string  `json:"type"`
	Value             float64 `json:"value"`
	MinPurchase       float64 `json:"minPurchase"`
	ExpirationDate    string  `json:"expirationDate"`
	IsActive          bool    `json:"isActive"`
	GlobalUsageLimit  int     `json:"globalUsageLimit"`
	UsageLimitPerUser int     `json:"usageLimitPerUser"`
	UsedCount         int     `json:"usedCount"`
}

func toCouponResponse(c *model.Coupon) couponResponse {
	value := centsToUnits(c.Value)
	if c.Type == model.CouponPercentage {
		value = float64(c.Value)
	}
	return couponResponse{
		ID:                c.ID,
		Code:              c.Code,
		Type:              string(c.Type),
		Value:             value,
		MinPurchase:       centsToUnits(c.MinPurchase),
		ExpirationDate:    c.ExpirationDate.Format(time.RFC3339),
		IsActive:          c.IsActive,
		GlobalUsageLimit:  c.GlobalUsageLimit,
		UsageLimitPerUser: c.UsageLimitPerUser,
		UsedCount:         c.UsedCount,
	}
}

// CreateCoupon создаёт купон (операция администратора).
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	couponType := model.CouponType(req.Type)
	if req.Code == "" || !couponType.Valid() {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	expiration, err := time.Parse(time.RFC3339, req.ExpirationDate)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	// Для процентных купонов значение хранится как процент, для остальных — в центах.
	value := unitsToCents(req.Value)
	if couponType == model.CouponPercentage {
		value = int64(req.Value)
		if value <= 0 || value > 100 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	coupon := &model.Coupon{
		Code:           req.Code,
		Type:           couponType,
		Value:          value,
		MinPurchase:    unitsToCents(req.MinPurchase),
		ExpirationDate: expiration,
	}
	if req.GlobalUsageLimit != nil {
		coupon.GlobalUsageLimit = *req.GlobalUsageLimit
	}
	if req.UsageLimitPerUser != nil {
		coupon.UsageLimitPerUser = *req.UsageLimitPerUser
	}

	created, err := h.coupons.Create(r.Context(), coupon)
	if err != nil {
		if errors.Is(err, repository.ErrCouponCodeTaken) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("create coupon error", zap.Error(err), zap.String("code", req.Code))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, toCouponResponse(created))
}

// DeactivateCoupon выключает купон (операция администратора).
func (h *Handler) DeactivateCoupon(w http.ResponseWriter, r *http.Request) {
	couponID := chi.URLParam(r, "couponID")

	if err := h.coupons.Deactivate(r.Context(), couponID); err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("deactivate coupon error", zap.Error(err), zap.String("couponID", couponID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type redeemCouponRequest struct {
	Code string `json:"code"`
}

type redeemCouponResponse struct {
	NewBalance float64 `json:"newBalance"`
}

// RedeemRechargeCoupon применяет купон пополнения к кошельку покупок.
func (h *Handler) RedeemRechargeCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req redeemCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	newBalance, err := h.coupons.ApplyRechargeCoupon(r.Context(), req.Code, userID)
	if err != nil {
		if status, ok := couponStatus(err); ok {
			http.Error(w, err.Error(), status)
			return
		}
		h.logger.Error("redeem coupon error", zap.Error(err), zap.String("code", req.Code))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, redeemCouponResponse{NewBalance: centsToUnits(newBalance)})
}

type applyGiftCardRequest struct {
	Code    string `json:"code"`
	OrderID int64  `json:"orderId"`
}

type giftCardResponse struct {
	CoveredAmount   float64 `json:"coveredAmount"`
	SurplusToWallet float64 `json:"surplusToWallet"`
}

// ApplyGiftCard применяет подарочную карту к заказу текущего пользователя.
// Остаток сверх суммы заказа зачисляется в кошелёк покупок.
func (h *Handler) ApplyGiftCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req applyGiftCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" || req.OrderID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.orders.GetOrderByID(r.Context(), req.OrderID, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrNotOrderOwner):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("load order for gift card error", zap.Error(err), zap.Int64("orderID", req.OrderID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	result, err := h.coupons.ApplyGiftCard(r.Context(), req.Code, userID, order.Total, order.ID)
	if err != nil {
		if status, ok := couponStatus(err); ok {
			http.Error(w, err.Error(), status)
			return
		}
		h.logger.Error("apply gift card error", zap.Error(err), zap.String("code", req.Code))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, giftCardResponse{
		CoveredAmount:   centsToUnits(result.CoveredAmount),
		SurplusToWallet: centsToUnits(result.SurplusToWallet),
	})
}
