package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/SabadashIvan/nexora-cart/internal/checkout"
	"github.com/SabadashIvan/nexora-cart/internal/client"
	"github.com/SabadashIvan/nexora-cart/internal/domain"
)

type CheckoutHandler struct {
	machine *checkout.Machine
	timeout time.Duration
}

func NewCheckoutHandler(machine *checkout.Machine, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		machine: machine,
		timeout: timeout,
	}
}

type AddressRequestDTO struct {
	Shipping domain.Address `json:"shipping"`
	Billing  domain.Address `json:"billing"`
}

type ShippingMethodRequestDTO struct {
	MethodID string `json:"method_id"`
}

type PaymentProviderRequestDTO struct {
	ProviderID string `json:"provider_id"`
}

func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, err := h.machine.Start(ctx)
	if err != nil {
		handleCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func (h *CheckoutHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session := h.machine.Session()
	if session == nil {
		respondError(w, http.StatusNotFound, "no_session", "no active checkout session")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *CheckoutHandler) SetAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddressRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	session, err := h.machine.SetAddress(ctx, req.Shipping, req.Billing)
	if err != nil {
		handleCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *CheckoutHandler) SetShippingMethod(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ShippingMethodRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.MethodID == "" {
		respondError(w, http.StatusBadRequest, "invalid_method", "method_id is required")
		return
	}

	session, err := h.machine.SetShippingMethod(ctx, req.MethodID)
	if err != nil {
		handleCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *CheckoutHandler) SetPaymentProvider(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PaymentProviderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProviderID == "" {
		respondError(w, http.StatusBadRequest, "invalid_provider", "provider_id is required")
		return
	}

	session, err := h.machine.SetPaymentProvider(ctx, req.ProviderID)
	if err != nil {
		handleCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *CheckoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, err := h.machine.Confirm(ctx)
	if err != nil {
		handleCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *CheckoutHandler) ShippingMethods(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	methods, err := h.machine.ShippingMethods(ctx)
	if err != nil {
		handleCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]domain.ShippingMethod{"shipping_methods": methods})
}

func (h *CheckoutHandler) PaymentProviders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	providers, err := h.machine.PaymentProviders(ctx)
	if err != nil {
		handleCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]domain.PaymentProvider{"payment_providers": providers})
}

func handleCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusUnprocessableEntity, "empty_cart", err.Error())
		return
	case errors.Is(err, checkout.ErrNoSession):
		respondError(w, http.StatusNotFound, "no_session", err.Error())
		return
	case errors.Is(err, checkout.ErrCompleted):
		respondError(w, http.StatusConflict, "completed", err.Error())
		return
	case errors.Is(err, checkout.ErrStepOrder):
		respondError(w, http.StatusConflict, "step_order", err.Error())
		return
	}

	var ce *client.Error
	if !errors.As(err, &ce) {
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	var httpStatus int
	switch ce.Kind {
	case client.KindEmptyCart, client.KindInvalidShippingMethod, client.KindInvalidPaymentProvider, client.KindValidation:
		httpStatus = http.StatusUnprocessableEntity
	case client.KindCartChanged:
		httpStatus = http.StatusConflict
	case client.KindNotFound:
		httpStatus = http.StatusNotFound
	case client.KindRateLimited:
		httpStatus = http.StatusTooManyRequests
	default:
		httpStatus = http.StatusBadGateway
	}

	respondJSON(w, httpStatus, ErrorResponse{
		Error:  ce.Message,
		Code:   string(ce.Kind),
		Fields: ce.Fields,
	})
}
