package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SabadashIvan/nexora-cart/internal/checkout"
	"github.com/SabadashIvan/nexora-cart/internal/client"
	"github.com/SabadashIvan/nexora-cart/internal/domain"
	"github.com/SabadashIvan/nexora-cart/internal/engine"
	"github.com/SabadashIvan/nexora-cart/internal/token"
)

// fakeBackend is a minimal versioned cart plus scripted checkout, enough
// to drive the handlers through the engine.
type fakeBackend struct {
	mu       sync.Mutex
	cart     *domain.Cart
	nextLine int
	mutErr   error // returned by the next mutation, once

	session    *domain.CheckoutSession
	startCalls int
}

func (f *fakeBackend) Fetch(context.Context, string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cart == nil {
		return nil, &client.Error{Kind: client.KindNotFound, Status: 404}
	}
	return f.cart.Clone(), nil
}

func (f *fakeBackend) Mutate(_ context.Context, tok string, version int64, op client.Operation) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutErr != nil {
		err := f.mutErr
		f.mutErr = nil
		return nil, err
	}
	if f.cart == nil {
		f.cart = &domain.Cart{Token: tok}
	}
	if version != f.cart.Version {
		return nil, &client.Error{Kind: client.KindVersionConflict, Status: 409}
	}
	switch op.Kind {
	case client.OpAddItem:
		f.nextLine++
		f.cart.Items = append(f.cart.Items, domain.LineItem{
			ID:        fmt.Sprintf("l%d", f.nextLine),
			VariantID: op.VariantID,
			Quantity:  op.Quantity,
			UnitPrice: 1000,
		})
	case client.OpUpdateQuantity:
		if line := f.cart.FindLine(op.LineID); line != nil {
			line.Quantity = op.Quantity
		}
	case client.OpRemoveItem:
		for i := range f.cart.Items {
			if f.cart.Items[i].ID == op.LineID {
				f.cart.Items = append(f.cart.Items[:i], f.cart.Items[i+1:]...)
				break
			}
		}
	}
	var subtotal int64
	for i := range f.cart.Items {
		f.cart.Items[i].LineTotal = f.cart.Items[i].UnitPrice * int64(f.cart.Items[i].Quantity)
		subtotal += f.cart.Items[i].LineTotal
	}
	f.cart.Totals = domain.Totals{Subtotal: subtotal, GrandTotal: subtotal}
	f.cart.Version++
	return f.cart.Clone(), nil
}

func (f *fakeBackend) Attach(context.Context, string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cart == nil {
		f.cart = &domain.Cart{Token: "user-cart", Version: 1}
	}
	return f.cart.Clone(), nil
}

func (f *fakeBackend) ClearServerSide(context.Context, string) error { return nil }

func (f *fakeBackend) StartCheckout(_ context.Context, cartToken string) (*domain.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.session = &domain.CheckoutSession{
		ID:        "cs-1",
		CartToken: cartToken,
		Status:    domain.CheckoutStatusAddress,
		Items:     append([]domain.LineItem(nil), f.cart.Items...),
		Totals:    f.cart.Totals,
	}
	cp := *f.session
	return &cp, nil
}

func (f *fakeBackend) SetAddress(_ context.Context, _ string, shipping, billing domain.Address) (*domain.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session.ShippingAddress = &shipping
	f.session.BillingAddress = &billing
	cp := *f.session
	return &cp, nil
}

func (f *fakeBackend) SetShippingMethod(_ context.Context, _ string, methodID string) (*domain.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session.ShippingMethod = &domain.ShippingMethod{ID: methodID, Price: 500}
	cp := *f.session
	return &cp, nil
}

func (f *fakeBackend) SetPaymentProvider(_ context.Context, _ string, providerID string) (*domain.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session.PaymentProvider = &domain.PaymentProvider{ID: providerID}
	cp := *f.session
	return &cp, nil
}

func (f *fakeBackend) ConfirmCheckout(context.Context, string) (*domain.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session.Status = domain.CheckoutStatusCompleted
	f.session.OrderID = "order-1"
	f.cart = nil
	cp := *f.session
	return &cp, nil
}

func (f *fakeBackend) ShippingMethods(context.Context, string) ([]domain.ShippingMethod, error) {
	return []domain.ShippingMethod{{ID: "std", Name: "Standard", Price: 500}}, nil
}

func (f *fakeBackend) PaymentProviders(context.Context, string) ([]domain.PaymentProvider, error) {
	return []domain.PaymentProvider{{ID: "card", Name: "Card"}}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeBackend) {
	t.Helper()
	f := &fakeBackend{}
	tokens := token.NewStore(token.NewMemoryStorage())
	cart := engine.New(f, tokens)
	coordinator := engine.NewCoordinator(cart, nil)
	machine := checkout.New(f, cart)

	router := NewRouter(
		NewCartHandler(cart, 5*time.Second),
		NewCheckoutHandler(machine, 5*time.Second),
		NewAuthHandler(coordinator, 5*time.Second),
		10*time.Second,
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, f
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestAddItemEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/cart/items", AddItemRequestDTO{VariantID: 42, Quantity: 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var cart domain.Cart
	require.NoError(t, json.Unmarshal(body, &cart))
	assert.EqualValues(t, 1, cart.Version)
	assert.Equal(t, 2, cart.ItemCount())
}

func TestAddItemValidatesInput(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/cart/items", AddItemRequestDTO{VariantID: 0, Quantity: 2})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/cart/items", AddItemRequestDTO{VariantID: 1, Quantity: 100})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidationErrorMapsTo422(t *testing.T) {
	srv, f := newTestServer(t)

	f.mu.Lock()
	f.mutErr = &client.Error{Kind: client.KindValidation, Status: 422, Message: "quantity exceeds stock"}
	f.mu.Unlock()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/cart/items", AddItemRequestDTO{VariantID: 1, Quantity: 5})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var er ErrorResponse
	require.NoError(t, json.Unmarshal(body, &er))
	assert.Equal(t, string(client.KindValidation), er.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	_, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/cart/items", AddItemRequestDTO{VariantID: 42, Quantity: 2})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/cart/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary CartSummaryDTO
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, 2, summary.ItemCount)
	assert.EqualValues(t, 2000, summary.Total)
}

func TestCheckoutFlowEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	// Empty cart: no session, no network.
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/checkout/start", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(body, &er))
	assert.Equal(t, "empty_cart", er.Code)

	_, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/cart/items", AddItemRequestDTO{VariantID: 42, Quantity: 1})

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/checkout/start", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	addr := domain.Address{FirstName: "Ada", Line1: "1 Main", City: "Kyiv", PostalCode: "01001", Country: "UA"}
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/checkout/address", AddressRequestDTO{Shipping: addr, Billing: addr})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/checkout/shipping-method", ShippingMethodRequestDTO{MethodID: "std"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/checkout/payment-provider", PaymentProviderRequestDTO{ProviderID: "card"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/checkout/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session domain.CheckoutSession
	require.NoError(t, json.Unmarshal(body, &session))
	assert.Equal(t, domain.CheckoutStatusCompleted, session.Status)
	assert.Equal(t, "order-1", session.OrderID)

	// The local cart is cleared after order placement.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/cart/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary CartSummaryDTO
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, 0, summary.ItemCount)
}

func TestAuthTransitionEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	_, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/cart/items", AddItemRequestDTO{VariantID: 42, Quantity: 1})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/login", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/cart/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary CartSummaryDTO
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, 0, summary.ItemCount)
}
