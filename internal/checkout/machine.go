// Package checkout drives the multi-step purchase flow over a server-side
// checkout session seeded from the synchronized cart. The flow is strictly
// forward-only; re-entering an earlier step re-issues its update call
// instead of mutating local state.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/SabadashIvan/nexora-cart/internal/client"
	"github.com/SabadashIvan/nexora-cart/internal/domain"
	"github.com/SabadashIvan/nexora-cart/internal/engine"
	"github.com/SabadashIvan/nexora-cart/internal/events"
)

var (
	// ErrEmptyCart means checkout was started with nothing in the cart.
	// Detected locally; no network call is made.
	ErrEmptyCart = errors.New("cart is empty, nothing to checkout")
	// ErrNoSession means a step was called before Start.
	ErrNoSession = errors.New("no active checkout session")
	// ErrCompleted means the session already produced an order.
	ErrCompleted = errors.New("checkout session already completed")
	// ErrStepOrder means a step was called before the flow reached it.
	ErrStepOrder = errors.New("checkout step called out of order")
)

type Machine struct {
	api    client.CheckoutAPI
	cart   *engine.Engine
	logger *slog.Logger
	sink   events.Sink

	mu      sync.Mutex
	session *domain.CheckoutSession
	status  domain.CheckoutStatus
}

type Option func(*Machine)

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

func WithSink(s events.Sink) Option {
	return func(m *Machine) { m.sink = s }
}

func New(api client.CheckoutAPI, cart *engine.Engine, opts ...Option) *Machine {
	m := &Machine{
		api:    api,
		cart:   cart,
		logger: slog.Default(),
		sink:   events.NopSink{},
		status: domain.CheckoutStatusIdle,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Machine) Status() domain.CheckoutStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Session returns a copy of the current snapshot, or nil before Start.
func (m *Machine) Session() *domain.CheckoutSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	cp := *m.session
	return &cp
}

// Start requests a new session seeded from the confirmed cart. Starting
// over an abandoned session is allowed and discards it; the cart itself
// is untouched.
func (m *Machine) Start(ctx context.Context) (*domain.CheckoutSession, error) {
	confirmed := m.cart.ConfirmedCart()
	if confirmed.IsEmpty() {
		return nil, ErrEmptyCart
	}

	session, err := m.api.StartCheckout(ctx, confirmed.Token)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.session = session
	m.status = domain.CheckoutStatusAddress
	m.mu.Unlock()

	m.sink.Record(events.Event{
		Type:      events.CheckoutStarted,
		CartToken: confirmed.Token,
		SessionID: session.ID,
	})
	return m.Session(), nil
}

func (m *Machine) SetAddress(ctx context.Context, shipping, billing domain.Address) (*domain.CheckoutSession, error) {
	id, err := m.requireStep(domain.CheckoutStatusAddress)
	if err != nil {
		return nil, err
	}
	session, err := m.api.SetAddress(ctx, id, shipping, billing)
	if err != nil {
		return nil, m.stepFailure(err)
	}
	m.advance(session, domain.CheckoutStatusShipping)
	return m.Session(), nil
}

func (m *Machine) SetShippingMethod(ctx context.Context, methodID string) (*domain.CheckoutSession, error) {
	id, err := m.requireStep(domain.CheckoutStatusShipping)
	if err != nil {
		return nil, err
	}
	session, err := m.api.SetShippingMethod(ctx, id, methodID)
	if err != nil {
		return nil, m.stepFailure(err)
	}
	m.advance(session, domain.CheckoutStatusPayment)
	return m.Session(), nil
}

func (m *Machine) SetPaymentProvider(ctx context.Context, providerID string) (*domain.CheckoutSession, error) {
	id, err := m.requireStep(domain.CheckoutStatusPayment)
	if err != nil {
		return nil, err
	}
	session, err := m.api.SetPaymentProvider(ctx, id, providerID)
	if err != nil {
		return nil, m.stepFailure(err)
	}
	m.advance(session, domain.CheckoutStatusConfirm)
	return m.Session(), nil
}

// Confirm finalizes the order. Placement empties the cart server-side;
// the local confirmed cart is cleared as well so the UI never shows the
// purchased items as still in the cart.
func (m *Machine) Confirm(ctx context.Context) (*domain.CheckoutSession, error) {
	id, err := m.requireStep(domain.CheckoutStatusConfirm)
	if err != nil {
		return nil, err
	}
	session, err := m.api.ConfirmCheckout(ctx, id)
	if err != nil {
		return nil, m.stepFailure(err)
	}

	m.mu.Lock()
	m.session = session
	m.status = domain.CheckoutStatusCompleted
	m.mu.Unlock()

	m.cart.ClearAfterOrder()
	m.sink.Record(events.Event{
		Type:      events.CheckoutCompleted,
		SessionID: session.ID,
		Detail:    session.OrderID,
	})
	return m.Session(), nil
}

// ShippingMethods re-fetches the selectable methods, the required
// remediation after InvalidShippingMethod.
func (m *Machine) ShippingMethods(ctx context.Context) ([]domain.ShippingMethod, error) {
	id, err := m.sessionID()
	if err != nil {
		return nil, err
	}
	return m.api.ShippingMethods(ctx, id)
}

func (m *Machine) PaymentProviders(ctx context.Context) ([]domain.PaymentProvider, error) {
	id, err := m.sessionID()
	if err != nil {
		return nil, err
	}
	return m.api.PaymentProviders(ctx, id)
}

func (m *Machine) sessionID() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return "", ErrNoSession
	}
	return m.session.ID, nil
}

// requireStep gates a step call: a session must exist, must not be
// completed, and the flow must have reached the step already (re-entry)
// or be exactly one step behind it.
func (m *Machine) requireStep(step domain.CheckoutStatus) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return "", ErrNoSession
	}
	if m.status.IsTerminal() {
		return "", ErrCompleted
	}
	if !m.status.AtLeast(step) {
		return "", ErrStepOrder
	}
	return m.session.ID, nil
}

// advance replaces the snapshot with the server's and moves the status
// forward, never backward.
func (m *Machine) advance(session *domain.CheckoutSession, next domain.CheckoutStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	if !m.status.AtLeast(next) {
		m.status = next
	}
}

// stepFailure applies the re-validation semantics: CartChanged voids the
// whole session (pricing or availability moved underneath it) and the
// caller must Start again; other failures leave the step as-is so the
// caller can re-fetch options and retry.
func (m *Machine) stepFailure(err error) error {
	if client.IsCartChanged(err) {
		m.mu.Lock()
		m.session = nil
		m.status = domain.CheckoutStatusIdle
		m.mu.Unlock()
		m.logger.Warn("checkout session voided, cart changed")
	}
	return err
}
