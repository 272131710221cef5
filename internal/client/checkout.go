package client

import (
	"context"
	"net/http"

	"github.com/SabadashIvan/nexora-cart/internal/domain"
)

type startCheckoutDTO struct {
	CartToken string `json:"cart_token,omitempty"`
}

type addressDTO struct {
	Shipping domain.Address `json:"shipping"`
	Billing  domain.Address `json:"billing"`
}

type shippingMethodDTO struct {
	MethodID string `json:"method_id"`
}

type paymentProviderDTO struct {
	ProviderID string `json:"provider_id"`
}

func (c *HTTPClient) StartCheckout(ctx context.Context, cartToken string) (*domain.CheckoutSession, error) {
	var s domain.CheckoutSession
	err := c.do(ctx, http.MethodPost, "/checkout/start", cartToken, 0, "", startCheckoutDTO{CartToken: cartToken}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) SetAddress(ctx context.Context, sessionID string, shipping, billing domain.Address) (*domain.CheckoutSession, error) {
	var s domain.CheckoutSession
	err := c.do(ctx, http.MethodPut, "/checkout/"+sessionID+"/address", "", 0, "", addressDTO{Shipping: shipping, Billing: billing}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) SetShippingMethod(ctx context.Context, sessionID, methodID string) (*domain.CheckoutSession, error) {
	var s domain.CheckoutSession
	err := c.do(ctx, http.MethodPut, "/checkout/"+sessionID+"/shipping-method", "", 0, "", shippingMethodDTO{MethodID: methodID}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) SetPaymentProvider(ctx context.Context, sessionID, providerID string) (*domain.CheckoutSession, error) {
	var s domain.CheckoutSession
	err := c.do(ctx, http.MethodPut, "/checkout/"+sessionID+"/payment-provider", "", 0, "", paymentProviderDTO{ProviderID: providerID}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) ConfirmCheckout(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	var s domain.CheckoutSession
	err := c.do(ctx, http.MethodPost, "/checkout/"+sessionID+"/confirm", "", 0, "", nil, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) ShippingMethods(ctx context.Context, sessionID string) ([]domain.ShippingMethod, error) {
	var out struct {
		Methods []domain.ShippingMethod `json:"shipping_methods"`
	}
	err := c.do(ctx, http.MethodGet, "/checkout/"+sessionID+"/shipping-methods", "", 0, "", nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Methods, nil
}

func (c *HTTPClient) PaymentProviders(ctx context.Context, sessionID string) ([]domain.PaymentProvider, error) {
	var out struct {
		Providers []domain.PaymentProvider `json:"payment_providers"`
	}
	err := c.do(ctx, http.MethodGet, "/checkout/"+sessionID+"/payment-providers", "", 0, "", nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Providers, nil
}
