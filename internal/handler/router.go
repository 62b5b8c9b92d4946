package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/commerce-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware интернет-магазина.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
		})

		// Платёжный шлюз аутентифицируется подписью события, не cookie.
		r.Post("/payments/wompi/webhook", h.WompiWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Post("/items", h.AddCartItem)
				r.Patch("/items/{itemID}", h.UpdateCartItem)
				r.Delete("/items/{itemID}", h.RemoveCartItem)
			})

			r.Route("/credits", func(r chi.Router) {
				r.Get("/balance", h.GetBalances)
				r.Get("/history", h.GetCreditHistory)
				r.Post("/recharge", h.InitiateRecharge)
				r.Get("/packages", h.GetCreditPackages)
				r.Post("/packages/purchase", h.PurchaseCreditPackage)
			})

			r.Route("/coupons", func(r chi.Router) {
				r.Post("/redeem", h.RedeemRechargeCoupon)
				r.Post("/gift-card", h.ApplyGiftCard)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.CreateOrder)
				r.Get("/", h.GetMyOrders)
				r.Get("/{orderID}", h.GetOrder)
				r.Post("/{orderID}/cancel", h.CancelMyOrder)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.authMiddleware.RequireAdmin)

				r.Post("/coupons", h.CreateCoupon)
				r.Post("/coupons/{couponID}/deactivate", h.DeactivateCoupon)

				r.Get("/orders", h.ListOrders)
				r.Patch("/orders/{orderID}/status", h.ChangeOrderStatus)
				r.Post("/orders/{orderID}/approve", h.ApproveOrderPayment)
				r.Get("/orders/{orderID}/history", h.GetOrderStatusHistory)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
