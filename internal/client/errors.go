package client

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies backend failures so callers can branch without parsing
// status codes or response bodies themselves.
type Kind string

const (
	// KindNotFound means the token is unknown to the server. Recoverable:
	// treated as "no cart yet", not a fatal error.
	KindNotFound Kind = "not_found"
	// KindVersionConflict means the If-Match precondition failed. The
	// correct remediation is re-fetch-then-retry, not blind retry.
	KindVersionConflict Kind = "version_conflict"
	// KindValidation means the request was rejected (e.g. quantity exceeds
	// stock). Terminal for that operation; field details are attached.
	KindValidation Kind = "validation"
	// KindRateLimited is terminal, with a retry-after hint when the server
	// provided one.
	KindRateLimited Kind = "rate_limited"
	// KindUnknown covers 5xx, transport failures and timeouts.
	KindUnknown Kind = "unknown"

	// Checkout-specific kinds. All terminal for the step: the caller must
	// re-fetch fresh state before retrying.
	KindEmptyCart              Kind = "empty_cart"
	KindCartChanged            Kind = "cart_changed"
	KindInvalidShippingMethod  Kind = "invalid_shipping_method"
	KindInvalidPaymentProvider Kind = "invalid_payment_provider"
)

// Error is the typed failure every client call returns on the error path.
type Error struct {
	Kind       Kind
	Status     int               // HTTP status, 0 for transport failures
	Code       string            // backend error code, if any
	Message    string
	Fields     map[string]string // field-level validation detail
	RetryAfter time.Duration     // rate-limit hint, 0 if absent
	cause      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cart backend: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("cart backend: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// kindOf extracts the taxonomy kind, KindUnknown for foreign errors.
func kindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool        { return kindOf(err) == KindNotFound }
func IsVersionConflict(err error) bool { return kindOf(err) == KindVersionConflict }
func IsValidation(err error) bool      { return kindOf(err) == KindValidation }
func IsRateLimited(err error) bool     { return kindOf(err) == KindRateLimited }

func IsEmptyCart(err error) bool   { return kindOf(err) == KindEmptyCart }
func IsCartChanged(err error) bool { return kindOf(err) == KindCartChanged }
func IsInvalidShippingMethod(err error) bool {
	return kindOf(err) == KindInvalidShippingMethod
}
func IsInvalidPaymentProvider(err error) bool {
	return kindOf(err) == KindInvalidPaymentProvider
}
