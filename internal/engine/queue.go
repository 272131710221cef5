package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/SabadashIvan/nexora-cart/internal/client"
	"github.com/SabadashIvan/nexora-cart/internal/domain"
	"github.com/SabadashIvan/nexora-cart/internal/events"
)

type opStatus int

const (
	opPending opStatus = iota
	opFailed
)

// pendingOp is one queued mutation intent. It stays in the queue, feeding
// the optimistic view, until the server confirms it or it fails
// terminally.
type pendingOp struct {
	ctx    context.Context
	op     client.Operation
	status opStatus

	once sync.Once
	done chan struct{}
	cart *domain.Cart
	err  error
}

func (p *pendingOp) finish(cart *domain.Cart, err error) {
	p.once.Do(func() {
		p.cart = cart
		p.err = err
		if err != nil {
			p.status = opFailed
		}
		close(p.done)
	})
}

// enqueue appends the intent and waits for its confirmation. Operations
// reach the server strictly in submission order, one in flight at a time;
// the single drain goroutine is the serialization primitive.
func (e *Engine) enqueue(ctx context.Context, op client.Operation) (*domain.Cart, error) {
	op.ID = uuid.NewString()
	p := &pendingOp{ctx: ctx, op: op, done: make(chan struct{})}

	e.mu.Lock()
	e.queue = append(e.queue, p)
	if !e.draining {
		e.draining = true
		go e.drain()
	}
	e.mu.Unlock()

	select {
	case <-p.done:
		return p.cart, p.err
	case <-ctx.Done():
		// The operation is not cancelled, the caller just stops waiting.
		return nil, ctx.Err()
	}
}

func (e *Engine) drain() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		p := e.queue[0]
		e.mu.Unlock()

		cart, err := e.perform(p)

		e.mu.Lock()
		if len(e.queue) == 0 || e.queue[0] != p {
			// A reset or attach raced the send; the waiter was already
			// released and the result must not resurrect discarded state.
			e.mu.Unlock()
			continue
		}
		e.queue = e.queue[1:]
		if err == nil {
			// Confirm: the returned cart and version replace the confirmed
			// pair atomically with the dequeue. A response carrying a
			// version below the confirmed one is a stale echo and never
			// moves the pair backward.
			if cart.Version < e.version {
				e.logger.Warn("rejecting stale cart snapshot",
					"have", e.version, "got", cart.Version)
			} else {
				e.confirmed = cart.Clone()
				e.version = cart.Version
			}
		}
		e.mu.Unlock()

		if err == nil {
			e.persistAssignedToken(context.WithoutCancel(p.ctx), cart)
			e.sink.Record(events.Event{
				Type:      events.CartMutated,
				CartToken: cart.Token,
				Detail:    string(p.op.Kind),
			})
		} else {
			e.logger.Warn("cart operation failed",
				"op", string(p.op.Kind), "op_id", p.op.ID, "error", err)
		}
		// A failed operation does not block later queued operations; its
		// optimistic effect disappears with it.
		p.finish(cart, err)
	}
}

// perform sends one operation, handling the two recoverable outcomes:
//   - VersionConflict: exactly one reconciliation cycle per the retry
//     bound - refetch the authoritative cart, re-issue the same intent
//     against the new version, then give up.
//   - NotFound: the cart is gone; drop local state and the stale token,
//     then bootstrap a fresh cart with the same intent.
//
// The send uses a context detached from the caller's: waiters may give up,
// in-flight mutations are never cancelled mid-queue.
func (e *Engine) perform(p *pendingOp) (*domain.Cart, error) {
	ctx := context.WithoutCancel(p.ctx)

	conflicts := 0
	bootstrapped := false
	for {
		// A reset or attach may have dropped the op; its result is void
		// and the recovery paths below must not touch local state.
		select {
		case <-p.done:
			return nil, ErrDiscarded
		default:
		}

		tok, err := e.sendToken(ctx)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		ver := e.version
		e.mu.Unlock()

		cart, err := e.api.Mutate(ctx, tok, ver, p.op)
		select {
		case <-p.done:
			return nil, ErrDiscarded
		default:
		}
		if err == nil {
			return cart, nil
		}

		switch {
		case client.IsVersionConflict(err):
			if conflicts >= e.maxConflictRetries {
				return nil, err
			}
			conflicts++
			fetched, ferr := e.api.Fetch(ctx, tok)
			if client.IsNotFound(ferr) {
				e.clearConfirmed(ctx)
				continue
			}
			if ferr != nil {
				return nil, ferr
			}
			e.adopt(fetched, false)
		case client.IsNotFound(err):
			if bootstrapped {
				return nil, err
			}
			bootstrapped = true
			e.clearConfirmed(ctx)
		default:
			return nil, err
		}
	}
}

// sendToken resolves the addressing for an outgoing mutation: the guest
// token (allocated lazily, which is how a cart is created on first
// mutation), or nothing when authenticated.
func (e *Engine) sendToken(ctx context.Context) (string, error) {
	if e.Mode() != ModeGuest {
		return "", nil
	}
	return e.tokens.Ensure(ctx)
}

// persistAssignedToken stores the token echoed by the server when it
// differs from the persisted one, e.g. a backend that re-keys the cart on
// creation.
func (e *Engine) persistAssignedToken(ctx context.Context, cart *domain.Cart) {
	if cart.Token == "" || e.Mode() != ModeGuest {
		return
	}
	stored, _, err := e.tokens.Restore(ctx)
	if err == nil && stored == cart.Token {
		return
	}
	if err := e.tokens.Persist(ctx, cart.Token); err != nil {
		e.logger.Warn("failed to persist cart token", "error", err)
	}
}

// applyLocal mutates the optimistic view with a not-yet-confirmed intent.
// Coupons have no local effect: discounts are server-computed.
func applyLocal(view *domain.Cart, op client.Operation) {
	switch op.Kind {
	case client.OpAddItem:
		for i := range view.Items {
			if view.Items[i].VariantID == op.VariantID {
				view.Items[i].Quantity += op.Quantity
				return
			}
		}
		view.Items = append(view.Items, domain.LineItem{
			ID:        "pending:" + op.ID,
			VariantID: op.VariantID,
			Quantity:  op.Quantity,
		})
	case client.OpUpdateQuantity:
		if line := view.FindLine(op.LineID); line != nil {
			line.Quantity = op.Quantity
		}
	case client.OpRemoveItem:
		for i := range view.Items {
			if view.Items[i].ID == op.LineID {
				view.Items = append(view.Items[:i], view.Items[i+1:]...)
				return
			}
		}
	}
}
