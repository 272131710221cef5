// Package engine maintains the client's view of the remote cart: one
// confirmed (cart, version) pair plus a FIFO queue of not-yet-confirmed
// mutations. Mutations appear to apply atomically and in submission order
// even though the backend rejects stale writes, because the engine is the
// only thing that talks to the cart resource and it sends one mutation at
// a time.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/SabadashIvan/nexora-cart/internal/client"
	"github.com/SabadashIvan/nexora-cart/internal/domain"
	"github.com/SabadashIvan/nexora-cart/internal/events"
	"github.com/SabadashIvan/nexora-cart/internal/token"
)

// Mode is the active cart addressing scheme. Exactly one is active at a
// time; the identity coordinator performs the switch.
type Mode int

const (
	// ModeGuest addresses the cart by the stored guest token.
	ModeGuest Mode = iota
	// ModeAuthenticated addresses the cart implicitly via the session.
	ModeAuthenticated
)

// ErrDiscarded is returned to waiters whose queued operation was dropped
// by a reset (logout or order completion) before it reached the server.
var ErrDiscarded = errors.New("pending cart operation discarded")

// DefaultConflictRetries bounds the refetch-and-retry cycle after a
// version conflict. One retry: a second conflict on the same operation is
// terminal, never an excuse to loop against a persistently changing cart.
const DefaultConflictRetries = 1

type Engine struct {
	api    client.CartAPI
	tokens *token.Store
	logger *slog.Logger
	sink   events.Sink

	maxConflictRetries int

	mu          sync.Mutex
	mode        Mode
	confirmed   *domain.Cart // nil until the first confirmed fetch/mutation
	version     int64        // 0 means "no cart yet"
	queue       []*pendingOp
	draining    bool
	initialized bool

	sf singleflight.Group
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithSink(s events.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithConflictRetries overrides the conflict-retry bound.
func WithConflictRetries(n int) Option {
	return func(e *Engine) { e.maxConflictRetries = n }
}

func New(api client.CartAPI, tokens *token.Store, opts ...Option) *Engine {
	e := &Engine{
		api:                api,
		tokens:             tokens,
		logger:             slog.Default(),
		sink:               events.NopSink{},
		maxConflictRetries: DefaultConflictRetries,
		mode:               ModeGuest,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Initialize restores the persisted guest token and fetches the cart it
// addresses. Called once by the composition root; further calls are
// no-ops. A stale token (server answers 404) is dropped silently.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.initialized = true
	mode := e.mode
	e.mu.Unlock()

	tok := ""
	if mode == ModeGuest {
		var ok bool
		var err error
		tok, ok, err = e.tokens.Restore(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil // first visit, cart created lazily on first mutation
		}
	}

	cart, err := e.api.Fetch(ctx, tok)
	if client.IsNotFound(err) {
		if mode == ModeGuest {
			if cerr := e.tokens.Clear(ctx); cerr != nil {
				e.logger.Warn("failed to clear stale token", "error", cerr)
			}
		}
		return nil
	}
	if err != nil {
		return err
	}
	e.adopt(cart, true)
	return nil
}

// Mode returns the active addressing scheme.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// ConfirmedCart returns a copy of the last server-confirmed snapshot, or
// nil when no cart exists.
func (e *Engine) ConfirmedCart() *domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.confirmed.Clone()
}

// OptimisticCart is the confirmed snapshot with all pending operations
// applied locally, for immediate UI feedback. Its totals are the last
// confirmed ones: the server recomputes totals on every mutation and the
// client never treats its own arithmetic as authoritative.
func (e *Engine) OptimisticCart() *domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()

	view := e.confirmed.Clone()
	if view == nil {
		view = &domain.Cart{}
	}
	for _, p := range e.queue {
		if p.status == opPending {
			applyLocal(view, p.op)
		}
	}
	return view
}

func (e *Engine) ItemCount() int {
	return e.OptimisticCart().ItemCount()
}

func (e *Engine) Subtotal() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.confirmed == nil {
		return 0
	}
	return e.confirmed.Totals.Subtotal
}

func (e *Engine) Total() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.confirmed == nil {
		return 0
	}
	return e.confirmed.Totals.GrandTotal
}

func (e *Engine) AddItem(ctx context.Context, variantID int64, quantity int) (*domain.Cart, error) {
	return e.enqueue(ctx, client.Operation{
		Kind:      client.OpAddItem,
		VariantID: variantID,
		Quantity:  quantity,
	})
}

func (e *Engine) UpdateQuantity(ctx context.Context, lineID string, quantity int) (*domain.Cart, error) {
	return e.enqueue(ctx, client.Operation{
		Kind:     client.OpUpdateQuantity,
		LineID:   lineID,
		Quantity: quantity,
	})
}

func (e *Engine) RemoveItem(ctx context.Context, lineID string) (*domain.Cart, error) {
	return e.enqueue(ctx, client.Operation{
		Kind:   client.OpRemoveItem,
		LineID: lineID,
	})
}

// ApplyCoupon shares the mutation queue: coupons follow the same
// versioned contract and must not race with item mutations.
func (e *Engine) ApplyCoupon(ctx context.Context, code string) (*domain.Cart, error) {
	return e.enqueue(ctx, client.Operation{
		Kind:       client.OpApplyCoupon,
		CouponCode: code,
	})
}

func (e *Engine) RemoveCoupon(ctx context.Context, code string) (*domain.Cart, error) {
	return e.enqueue(ctx, client.Operation{
		Kind:       client.OpRemoveCoupon,
		CouponCode: code,
	})
}

// Refresh fetches the authoritative cart. Concurrent callers share one
// round trip. A 404 clears local state instead of failing.
func (e *Engine) Refresh(ctx context.Context) (*domain.Cart, error) {
	v, err, _ := e.sf.Do("refresh", func() (interface{}, error) {
		tok := ""
		if e.Mode() == ModeGuest {
			var ok bool
			var rerr error
			tok, ok, rerr = e.tokens.Restore(ctx)
			if rerr != nil {
				return nil, rerr
			}
			if !ok {
				return (*domain.Cart)(nil), nil
			}
		}
		cart, ferr := e.api.Fetch(ctx, tok)
		if client.IsNotFound(ferr) {
			e.clearConfirmed(ctx)
			return (*domain.Cart)(nil), nil
		}
		if ferr != nil {
			return nil, ferr
		}
		e.adopt(cart, false)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	cart, _ := v.(*domain.Cart)
	return cart.Clone(), nil
}

// Attach merges the guest cart into the authenticated user's cart after
// login and adopts the result. The guest token is discarded either way:
// a guest token must never coexist with an authenticated session.
func (e *Engine) Attach(ctx context.Context) (*domain.Cart, error) {
	// Queued guest mutations are void at login: a confirmation from the
	// guest lineage must not overwrite the merged user cart.
	e.mu.Lock()
	dropped := e.queue
	e.queue = nil
	e.mu.Unlock()
	for _, p := range dropped {
		p.finish(nil, ErrDiscarded)
	}

	guestToken, ok, err := e.tokens.Restore(ctx)
	if err != nil {
		return nil, err
	}

	defer func() {
		if cerr := e.tokens.Clear(ctx); cerr != nil {
			e.logger.Warn("failed to discard guest token", "error", cerr)
		}
		e.mu.Lock()
		e.mode = ModeAuthenticated
		e.mu.Unlock()
	}()

	if !ok {
		// Nothing to merge; the user cart is fetched on demand.
		e.mu.Lock()
		e.confirmed = nil
		e.version = 0
		e.mu.Unlock()
		return nil, nil
	}

	cart, err := e.api.Attach(ctx, guestToken)
	if err != nil {
		// Attach is best-effort relative to login: local state is dropped
		// so the next fetch sees the user cart, and the error surfaces.
		e.mu.Lock()
		e.confirmed = nil
		e.version = 0
		e.mu.Unlock()
		return nil, err
	}

	e.adopt(cart, true)
	e.sink.Record(events.Event{Type: events.CartAttached, CartToken: cart.Token})
	return cart.Clone(), nil
}

// Reset discards the confirmed cart, every queued operation and the
// stored token, switching back to guest addressing. No server call: on
// logout the user's cart stays server-side for next login. A fresh guest
// token is not allocated here; the next mutation creates one lazily.
func (e *Engine) Reset(ctx context.Context) {
	e.mu.Lock()
	dropped := e.queue
	e.queue = nil
	e.confirmed = nil
	e.version = 0
	e.mode = ModeGuest
	e.mu.Unlock()

	for _, p := range dropped {
		p.finish(nil, ErrDiscarded)
	}
	if err := e.tokens.Clear(ctx); err != nil {
		e.logger.Warn("failed to clear token on reset", "error", err)
	}
	e.sink.Record(events.Event{Type: events.CartCleared})
}

// ClearAfterOrder drops the local confirmed cart once an order is placed.
// Order placement empties the cart server-side; clearing locally avoids
// showing stale items. The addressing mode is unchanged.
func (e *Engine) ClearAfterOrder() {
	e.mu.Lock()
	dropped := e.queue
	e.queue = nil
	e.confirmed = nil
	e.version = 0
	e.mu.Unlock()

	for _, p := range dropped {
		p.finish(nil, ErrDiscarded)
	}
}

// clearConfirmed drops the confirmed pair after the server reported the
// cart gone, and in guest mode also the now-stale token. The next
// mutation bootstraps a fresh cart.
func (e *Engine) clearConfirmed(ctx context.Context) {
	e.mu.Lock()
	e.confirmed = nil
	e.version = 0
	guest := e.mode == ModeGuest
	e.mu.Unlock()

	if guest {
		if err := e.tokens.Clear(ctx); err != nil {
			e.logger.Warn("failed to clear stale token", "error", err)
		}
	}
}

// adopt atomically replaces the confirmed (cart, version) pair. Unless
// force is set (bootstrap, attach: a new cart lineage), a response with a
// version below the one last confirmed is rejected as a stale read.
func (e *Engine) adopt(cart *domain.Cart, force bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !force && cart.Version < e.version {
		e.logger.Warn("rejecting stale cart snapshot",
			"have", e.version, "got", cart.Version)
		return
	}
	e.confirmed = cart.Clone()
	e.version = cart.Version
}
