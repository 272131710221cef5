package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/SabadashIvan/nexora-cart/internal/engine"
)

// AuthHandler adapts login/logout requests into the two-valued auth
// signal the identity coordinator consumes. Real credential checking is
// the auth subsystem's problem; this is only the transition hook.
type AuthHandler struct {
	coordinator *engine.Coordinator
	timeout     time.Duration
}

func NewAuthHandler(coordinator *engine.Coordinator, timeout time.Duration) *AuthHandler {
	return &AuthHandler{coordinator: coordinator, timeout: timeout}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.coordinator.HandleAuthChange(ctx, engine.AuthAuthenticated)
	respondJSON(w, http.StatusOK, map[string]string{"state": engine.AuthAuthenticated.String()})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.coordinator.HandleAuthChange(ctx, engine.AuthGuest)
	respondJSON(w, http.StatusOK, map[string]string{"state": engine.AuthGuest.String()})
}

func NewRouter(cart *CartHandler, co *CheckoutHandler, auth *AuthHandler, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cart.GetCart)
			r.Get("/summary", cart.GetSummary)
			r.Post("/refresh", cart.Refresh)
			r.Post("/items", cart.AddItem)
			r.Patch("/items/{line_id}", cart.UpdateQuantity)
			r.Delete("/items/{line_id}", cart.RemoveItem)
			r.Post("/coupons", cart.ApplyCoupon)
			r.Delete("/coupons/{code}", cart.RemoveCoupon)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/start", co.Start)
			r.Get("/session", co.GetSession)
			r.Put("/address", co.SetAddress)
			r.Put("/shipping-method", co.SetShippingMethod)
			r.Put("/payment-provider", co.SetPaymentProvider)
			r.Post("/confirm", co.Confirm)
			r.Get("/shipping-methods", co.ShippingMethods)
			r.Get("/payment-providers", co.PaymentProviders)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", auth.Login)
			r.Post("/logout", auth.Logout)
		})
	})

	return r
}
