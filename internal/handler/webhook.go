package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/commerce-system/internal/repository"
	"github.com/mmeshcher/commerce-system/internal/service"
	"github.com/mmeshcher/commerce-system/internal/wompi"
)

// wompiEvent — формат события webhook платёжного шлюза.
type wompiEvent struct {
	Event string `json:"event"`
	Data  struct {
		Transaction wompi.Transaction `json:"transaction"`
	} `json:"data"`
	Signature struct {
		Checksum string `json:"checksum"`
	} `json:"signature"`
	Timestamp int64 `json:"timestamp"`
}

// isBusinessErr отличает бизнес-отказ от инфраструктурного сбоя. Бизнес-отказ
// не лечится повторной доставкой, поэтому шлюзу отвечаем 200.
func isBusinessErr(err error) bool {
	return errors.Is(err, service.ErrUnknownReference) ||
		errors.Is(err, service.ErrAmountMismatch) ||
		errors.Is(err, repository.ErrOrderNotFound) ||
		errors.Is(err, repository.ErrIntentNotFound)
}

// WompiWebhook принимает события платёжного шлюза и разводит подтверждение
// по владельцу reference: заказ или пополнение кошелька.
func (h *Handler) WompiWebhook(w http.ResponseWriter, r *http.Request) {
	var event wompiEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.verifier.VerifyWebhookSignature(event.Data.Transaction, event.Signature.Checksum) {
		h.logger.Warn("webhook signature mismatch",
			zap.String("transaction", event.Data.Transaction.ID))
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	// Интересны только завершённые успешные платежи; остальные события
	// подтверждаем без обработки.
	if event.Event != "transaction.updated" || event.Data.Transaction.Status != "APPROVED" {
		w.WriteHeader(http.StatusOK)
		return
	}

	tx := event.Data.Transaction

	var err error
	switch {
	case strings.HasPrefix(tx.Reference, "ORD-"):
		err = h.orders.ConfirmOrderPayment(r.Context(), tx.Reference, tx.ID, tx.AmountInCents)
	case strings.HasPrefix(tx.Reference, "CREDIT-"), strings.HasPrefix(tx.Reference, "PACKAGE-"):
		err = h.credits.ConfirmRecharge(r.Context(), tx.Reference, tx.ID, tx.AmountInCents)
	default:
		h.logger.Warn("webhook with unrecognized reference", zap.String("reference", tx.Reference))
		w.WriteHeader(http.StatusOK)
		return
	}

	if err != nil {
		if isBusinessErr(err) {
			h.logger.Warn("webhook rejected",
				zap.Error(err), zap.String("reference", tx.Reference))
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("webhook processing error",
			zap.Error(err), zap.String("reference", tx.Reference))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
