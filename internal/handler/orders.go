package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/commerce-system/internal/middleware"
	"github.com/mmeshcher/commerce-system/internal/model"
	"github.com/mmeshcher/commerce-system/internal/repository"
	"github.com/mmeshcher/commerce-system/internal/service"
)

type orderItemResponse struct {
	ProductID     string  `json:"productId"`
	ProductName   string  `json:"productName"`
	Price         float64 `json:"price"`
	Quantity      int     `json:"quantity"`
	SelectedColor string  `json:"selectedColor,omitempty"`
	SelectedSize  string  `json:"selectedSize,omitempty"`
	VariantID     string  `json:"variantId,omitempty"`
	VariantLabel  string  `json:"variantLabel,omitempty"`
	ImageURL      string  `json:"imageUrl,omitempty"`
}

type orderResponse struct {
	ID               int64                 `json:"id"`
	UserID           string                `json:"userId"`
	Items            []orderItemResponse   `json:"items,omitempty"`
	Subtotal         float64               `json:"subtotal"`
	Discount         float64               `json:"discount"`
	ShippingCost     float64               `json:"shippingCost"`
	Total            float64               `json:"total"`
	Status           string                `json:"status"`
	PaymentMethod    string                `json:"paymentMethod"`
	PaymentReference string                `json:"paymentReference"`
	ShippingAddress  model.ShippingAddress `json:"shippingAddress"`
	CouponCode       *string               `json:"couponCode,omitempty"`
	ApprovedBy       *string               `json:"approvedBy,omitempty"`
	ApprovedAt       *string               `json:"approvedAt,omitempty"`
	CreatedAt        string                `json:"createdAt"`
}

func toOrderResponse(o *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID:     it.ProductID,
			ProductName:   it.ProductName,
			Price:         centsToUnits(it.PriceAtPurchase),
			Quantity:      it.Quantity,
			SelectedColor: it.SelectedColor,
			SelectedSize:  it.SelectedSize,
			VariantID:     it.VariantID,
			VariantLabel:  it.VariantLabel,
			ImageURL:      it.ImageURL,
		})
	}

	resp := orderResponse{
		ID:               o.ID,
		UserID:           o.UserID,
		Items:            items,
		Subtotal:         centsToUnits(o.Subtotal),
		Discount:         centsToUnits(o.Discount),
		ShippingCost:     centsToUnits(o.ShippingCost),
		Total:            centsToUnits(o.Total),
		Status:           string(o.Status),
		PaymentMethod:    string(o.PaymentMethod),
		PaymentReference: o.PaymentReference,
		ShippingAddress:  o.ShippingAddress,
		CouponCode:       o.CouponCode,
		ApprovedBy:       o.ApprovedByUserID,
		CreatedAt:        o.CreatedAt.Format(time.RFC3339),
	}
	if o.ApprovedAt != nil {
		at := o.ApprovedAt.Format(time.RFC3339)
		resp.ApprovedAt = &at
	}
	return resp
}

type createOrderRequest struct {
	PaymentMethod   string                `json:"paymentMethod"`
	ShippingAddress model.ShippingAddress `json:"shippingAddress"`
	CouponCode      string                `json:"couponCode"`
}

type createOrderResponse struct {
	Order     orderResponse        `json:"order"`
	WompiData *paymentDataResponse `json:"wompiData,omitempty"`
}

// CreateOrder оформляет заказ из корзины текущего пользователя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	result, err := h.orders.CreateOrder(r.Context(), userID, service.CreateOrderRequest{
		PaymentMethod:   model.PaymentMethod(req.PaymentMethod),
		ShippingAddress: req.ShippingAddress,
		CouponCode:      req.CouponCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownPaymentMethod):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, service.ErrEmptyCart):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, service.ErrPaymentMethodNotAvailable):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, service.ErrInsufficientBalance):
			http.Error(w, err.Error(), http.StatusPaymentRequired)
		default:
			if status, ok := couponStatus(err); ok {
				http.Error(w, err.Error(), status)
				return
			}
			h.logger.Error("create order error", zap.Error(err), zap.String("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	resp := createOrderResponse{Order: toOrderResponse(result.Order)}
	if result.WompiData != nil {
		data := toPaymentDataResponse(result.WompiData)
		resp.WompiData = &data
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

// GetMyOrders возвращает заказы текущего пользователя.
func (h *Handler) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.orders.GetMyOrders(r.Context(), userID)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.String("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func orderIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
}

// GetOrder возвращает один заказ текущего пользователя.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.orders.GetOrderByID(r.Context(), orderID, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrNotOrderOwner):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("get order error", zap.Error(err), zap.Int64("orderID", orderID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type cancelOrderResponse struct {
	Cancelled bool `json:"cancelled"`
	Refunded  bool `json:"refunded"`
}

// CancelMyOrder отменяет заказ текущего пользователя.
func (h *Handler) CancelMyOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req cancelOrderRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	refunded, err := h.orders.CancelMyOrder(r.Context(), orderID, userID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrNotOrderOwner):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, service.ErrNotCancellable):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("cancel order error", zap.Error(err), zap.Int64("orderID", orderID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, cancelOrderResponse{Cancelled: true, Refunded: refunded})
}

type listOrdersResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// ListOrders возвращает страницу заказов по фильтрам (операция администратора).
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.OrderFilter{Page: 1, Limit: 20}

	if raw := q.Get("page"); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil && page > 0 {
			filter.Page = page
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}
	if raw := q.Get("orderId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		filter.OrderID = &id
	}
	if raw := q.Get("status"); raw != "" {
		status := model.OrderStatus(raw)
		if !status.Valid() {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		filter.Status = &status
	}
	if raw := q.Get("paymentMethod"); raw != "" {
		method := model.PaymentMethod(raw)
		if !method.Valid() {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		filter.PaymentMethod = &method
	}
	if raw := q.Get("userId"); raw != "" {
		filter.UserID = &raw
	}
	if raw := q.Get("startDate"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		filter.StartDate = &t
	}
	if raw := q.Get("endDate"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		filter.EndDate = &t
	}
	filter.SortAsc = q.Get("sort") == "asc"

	orders, total, err := h.orders.ListOrders(r.Context(), filter)
	if err != nil {
		h.logger.Error("list orders error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := listOrdersResponse{
		Orders: make([]orderResponse, 0, len(orders)),
		Total:  total,
		Page:   filter.Page,
		Limit:  filter.Limit,
	}
	for i := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(&orders[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type changeStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// ChangeOrderStatus переводит заказ в новый статус (операция администратора).
func (h *Handler) ChangeOrderStatus(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req changeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	status := model.OrderStatus(req.Status)
	if !status.Valid() {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.orders.ChangeStatus(r.Context(), orderID, status, req.Reason, adminID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, model.ErrOrderFinalized), errors.Is(err, model.ErrSameStatus):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("change order status error", zap.Error(err), zap.Int64("orderID", orderID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// ApproveOrderPayment подтверждает оплату заказа вручную (операция администратора).
func (h *Handler) ApproveOrderPayment(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.orders.ApproveOrderPayment(r.Context(), orderID, adminID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrMethodNotEligible):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, service.ErrOrderAlreadyPaid):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("approve order payment error", zap.Error(err), zap.Int64("orderID", orderID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type statusHistoryResponse struct {
	PreviousStatus *string `json:"previousStatus,omitempty"`
	NewStatus      string  `json:"newStatus"`
	ChangedBy      *string `json:"changedBy,omitempty"`
	Reason         string  `json:"reason"`
	CreatedAt      string  `json:"createdAt"`
}

// GetOrderStatusHistory возвращает журнал переходов статуса заказа
// (операция администратора).
func (h *Handler) GetOrderStatusHistory(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	history, err := h.orders.GetStatusHistory(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get status history error", zap.Error(err), zap.Int64("orderID", orderID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]statusHistoryResponse, 0, len(history))
	for _, rec := range history {
		entry := statusHistoryResponse{
			NewStatus: string(rec.NewStatus),
			ChangedBy: rec.ChangedByUserID,
			Reason:    rec.Reason,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		}
		if rec.PreviousStatus != nil {
			prev := string(*rec.PreviousStatus)
			entry.PreviousStatus = &prev
		}
		resp = append(resp, entry)
	}

	h.writeJSON(w, http.StatusOK, resp)
}
