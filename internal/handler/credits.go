package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/commerce-system/internal/middleware"
	"github.com/mmeshcher/commerce-system/internal/model"
	"github.com/mmeshcher/commerce-system/internal/service"
	"github.com/mmeshcher/commerce-system/internal/wompi"
)

type balancesResponse struct {
	DesignCredits   float64 `json:"designCredits"`
	PurchaseCredits float64 `json:"purchaseCredits"`
}

// GetBalances возвращает балансы обоих кошельков текущего пользователя.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balances, err := h.credits.GetBalances(r.Context(), userID)
	if err != nil {
		h.logger.Error("get balances error", zap.Error(err), zap.String("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, balancesResponse{
		DesignCredits:   centsToUnits(balances.DesignCredits),
		PurchaseCredits: centsToUnits(balances.PurchaseCredits),
	})
}

type creditTransactionResponse struct {
	ID           string  `json:"id"`
	Amount       float64 `json:"amount"`
	CreditType   string  `json:"creditType"`
	Type         string  `json:"type"`
	Description  string  `json:"description"`
	ReferenceID  *string `json:"referenceId,omitempty"`
	BalanceAfter float64 `json:"balanceAfter"`
	CreatedAt    string  `json:"createdAt"`
}

// GetCreditHistory возвращает журнал движений по кошелькам текущего
// пользователя, опционально по одному типу кредитов (?type=DESIGN|PURCHASE).
func (h *Handler) GetCreditHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var creditType *model.CreditType
	if raw := r.URL.Query().Get("type"); raw != "" {
		ct := model.CreditType(raw)
		if !ct.Valid() {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		creditType = &ct
	}

	history, err := h.credits.GetHistory(r.Context(), userID, creditType)
	if err != nil {
		h.logger.Error("get credit history error", zap.Error(err), zap.String("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(history) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]creditTransactionResponse, 0, len(history))
	for _, t := range history {
		resp = append(resp, creditTransactionResponse{
			ID:           t.ID,
			Amount:       centsToUnits(t.Amount),
			CreditType:   string(t.CreditType),
			Type:         string(t.Type),
			Description:  t.Description,
			ReferenceID:  t.ReferenceID,
			BalanceAfter: centsToUnits(t.BalanceAfter),
			CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type rechargeRequest struct {
	Amount     float64 `json:"amount"`
	CreditType string  `json:"creditType"`
}

type paymentDataResponse struct {
	Reference string  `json:"reference"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Signature string  `json:"signature"`
	PublicKey string  `json:"publicKey"`
}

func toPaymentDataResponse(d *wompi.PaymentData) paymentDataResponse {
	return paymentDataResponse{
		Reference: d.Reference,
		Amount:    centsToUnits(d.AmountInCents),
		Currency:  d.Currency,
		Signature: d.Signature,
		PublicKey: d.PublicKey,
	}
}

// InitiateRecharge готовит платёж шлюза на пополнение кошелька.
func (h *Handler) InitiateRecharge(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req rechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	creditType := model.CreditType(req.CreditType)
	if !creditType.Valid() {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	data, err := h.credits.InitiateRecharge(r.Context(), userID, unitsToCents(req.Amount), creditType)
	if err != nil {
		if errors.Is(err, service.ErrRechargeBelowMinimum) || errors.Is(err, service.ErrInvalidAmount) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("initiate recharge error", zap.Error(err), zap.String("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, toPaymentDataResponse(data))
}

type creditPackageResponse struct {
	Type         string  `json:"type"`
	Credits      int64   `json:"credits"`
	BonusCredits int64   `json:"bonusCredits"`
	TotalCredits int64   `json:"totalCredits"`
	Price        float64 `json:"price"`
}

// GetCreditPackages возвращает доступные пакеты дизайн-кредитов.
func (h *Handler) GetCreditPackages(w http.ResponseWriter, r *http.Request) {
	packages := service.DesignCreditPackages()

	resp := make([]creditPackageResponse, 0, len(packages))
	for _, name := range []string{"SMALL", "MEDIUM", "LARGE"} {
		p, ok := packages[name]
		if !ok {
			continue
		}
		resp = append(resp, creditPackageResponse{
			Type:         name,
			Credits:      p.Credits,
			BonusCredits: p.BonusCredits,
			TotalCredits: p.TotalCredits,
			Price:        centsToUnits(p.PriceCents),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type purchasePackageRequest struct {
	PackageType string `json:"packageType"`
}

// PurchaseCreditPackage готовит платёж шлюза на покупку пакета дизайн-кредитов.
func (h *Handler) PurchaseCreditPackage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req purchasePackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	data, err := h.credits.PurchaseCreditPackage(r.Context(), userID, req.PackageType)
	if err != nil {
		if errors.Is(err, service.ErrUnknownPackage) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("purchase package error", zap.Error(err), zap.String("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, toPaymentDataResponse(data))
}
