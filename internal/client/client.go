package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/SabadashIvan/nexora-cart/internal/domain"
)

// tokenHeader carries the guest cart token; authenticated requests omit it
// and the backend resolves the cart from the session cookie instead.
const tokenHeader = "X-Cart-Token"

// versionHeader is the optimistic-concurrency precondition. Every mutating
// call sends the version it was computed against; the server rejects the
// write with a 409 when it no longer matches.
const versionHeader = "If-Match"

const idempotencyHeader = "Idempotency-Key"

type OpKind string

const (
	OpAddItem        OpKind = "add_item"
	OpUpdateQuantity OpKind = "update_quantity"
	OpRemoveItem     OpKind = "remove_item"
	OpApplyCoupon    OpKind = "apply_coupon"
	OpRemoveCoupon   OpKind = "remove_coupon"
)

// Operation is a single cart mutation intent. Exactly the fields relevant
// to Kind are set.
type Operation struct {
	ID         string // client-generated, sent as the idempotency key
	Kind       OpKind
	VariantID  int64
	LineID     string
	Quantity   int
	CouponCode string
}

// CartAPI is the remote cart resource. All mutations follow the versioned
// contract: on success the complete new cart comes back and the caller
// must treat it as the sole source of truth.
type CartAPI interface {
	Fetch(ctx context.Context, token string) (*domain.Cart, error)
	Mutate(ctx context.Context, token string, version int64, op Operation) (*domain.Cart, error)
	Attach(ctx context.Context, guestToken string) (*domain.Cart, error)
	ClearServerSide(ctx context.Context, token string) error
}

// CheckoutAPI drives the server-side checkout session. Sessions are not
// versioned like the cart; every step response replaces the snapshot.
type CheckoutAPI interface {
	StartCheckout(ctx context.Context, cartToken string) (*domain.CheckoutSession, error)
	SetAddress(ctx context.Context, sessionID string, shipping, billing domain.Address) (*domain.CheckoutSession, error)
	SetShippingMethod(ctx context.Context, sessionID, methodID string) (*domain.CheckoutSession, error)
	SetPaymentProvider(ctx context.Context, sessionID, providerID string) (*domain.CheckoutSession, error)
	ConfirmCheckout(ctx context.Context, sessionID string) (*domain.CheckoutSession, error)
	ShippingMethods(ctx context.Context, sessionID string) ([]domain.ShippingMethod, error)
	PaymentProviders(ctx context.Context, sessionID string) ([]domain.PaymentProvider, error)
}

// HTTPClient implements CartAPI and CheckoutAPI against the storefront
// backend. It is stateless; all cart state lives with the caller.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

type Option func(*HTTPClient)

// WithHTTPClient replaces the transport, e.g. to add otelhttp
// instrumentation or a circuit breaker.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *HTTPClient) { h.logger = l }
}

func New(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type addItemDTO struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

type updateQuantityDTO struct {
	Quantity int `json:"quantity"`
}

type couponDTO struct {
	Code string `json:"code"`
}

type attachDTO struct {
	GuestToken string `json:"guest_token"`
}

func (c *HTTPClient) Fetch(ctx context.Context, token string) (*domain.Cart, error) {
	var cart domain.Cart
	if err := c.do(ctx, http.MethodGet, "/cart", token, 0, "", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *HTTPClient) Mutate(ctx context.Context, token string, version int64, op Operation) (*domain.Cart, error) {
	var (
		method string
		path   string
		body   any
	)
	switch op.Kind {
	case OpAddItem:
		method, path = http.MethodPost, "/cart/items"
		body = addItemDTO{VariantID: op.VariantID, Quantity: op.Quantity}
	case OpUpdateQuantity:
		method, path = http.MethodPatch, "/cart/items/"+op.LineID
		body = updateQuantityDTO{Quantity: op.Quantity}
	case OpRemoveItem:
		method, path = http.MethodDelete, "/cart/items/"+op.LineID
	case OpApplyCoupon:
		method, path = http.MethodPost, "/cart/coupons"
		body = couponDTO{Code: op.CouponCode}
	case OpRemoveCoupon:
		method, path = http.MethodDelete, "/cart/coupons/"+op.CouponCode
	default:
		return nil, fmt.Errorf("unsupported operation kind %q", op.Kind)
	}

	var cart domain.Cart
	if err := c.do(ctx, method, path, token, version, op.ID, body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *HTTPClient) Attach(ctx context.Context, guestToken string) (*domain.Cart, error) {
	var cart domain.Cart
	err := c.do(ctx, http.MethodPost, "/cart/attach", "", 0, "", attachDTO{GuestToken: guestToken}, &cart)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *HTTPClient) ClearServerSide(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/cart", token, 0, "", nil, nil)
}

// do performs one round trip. A version of 0 means "no precondition": the
// backend creates a fresh cart on the first mutation.
func (c *HTTPClient) do(ctx context.Context, method, path, token string, version int64, opID string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}
	if version > 0 {
		req.Header.Set(versionHeader, strconv.FormatInt(version, 10))
	}
	if opID != "" {
		req.Header.Set(idempotencyHeader, opID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and transport failures are ambiguous outcomes; callers
		// must not auto-retry them.
		return &Error{Kind: KindUnknown, Message: err.Error(), cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindUnknown, Status: resp.StatusCode, Message: "malformed response body", cause: err}
	}
	return nil
}

type errorBodyDTO struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (c *HTTPClient) decodeError(resp *http.Response) error {
	var dto errorBodyDTO
	// Best effort; an unparseable body still maps by status code.
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&dto)

	e := &Error{
		Status:  resp.StatusCode,
		Code:    dto.Code,
		Message: dto.Error,
		Fields:  dto.Fields,
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		e.Kind = KindNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		e.Kind = KindVersionConflict
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		e.Kind = KindValidation
	case http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		if after := resp.Header.Get("Retry-After"); after != "" {
			if secs, err := strconv.Atoi(after); err == nil {
				e.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	default:
		e.Kind = KindUnknown
	}

	// Checkout step failures come back as 409/422 with a dedicated code;
	// the code wins over the status-derived kind.
	switch dto.Code {
	case "empty_cart":
		e.Kind = KindEmptyCart
	case "cart_changed":
		e.Kind = KindCartChanged
	case "invalid_shipping_method":
		e.Kind = KindInvalidShippingMethod
	case "invalid_payment_provider":
		e.Kind = KindInvalidPaymentProvider
	}

	c.logger.Debug("backend error",
		"status", resp.StatusCode, "kind", string(e.Kind), "code", dto.Code)
	return e
}
