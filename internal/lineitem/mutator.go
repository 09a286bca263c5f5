// Package lineitem changes line item quantities with optimistic local state
// that is reconciled against the backend once each call settles.
package lineitem

import (
	"context"
	"errors"
	"sync"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/commerce"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/logger"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/retry"
	"go.uber.org/zap"
)

var ErrViewClosed = errors.New("line item view is closed")

// CartStore is what the mutator needs from the cart store.
type CartStore interface {
	Refresh(ctx context.Context, cartID string) (*domain.Cart, error)
	UpdateLineItem(ctx context.Context, cartID, itemID string, quantity int) (*domain.Cart, error)
	DeleteLineItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error)
}

// Mutator hands out one View per cart so concurrent requests for the same
// cart share overrides and per-item ordering.
type Mutator struct {
	store  CartStore
	policy retry.Policy
	logger *zap.Logger

	mu    sync.Mutex
	views map[string]*View
}

func NewMutator(store CartStore, policy retry.Policy, logger *zap.Logger) *Mutator {
	return &Mutator{
		store:  store,
		policy: policy,
		logger: logger,
		views:  make(map[string]*View),
	}
}

// View returns the shared view of the cart and offers it the fresh snapshot.
func (m *Mutator) View(cart *domain.Cart) *View {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.views[cart.ID]
	if !ok || v.isClosed() {
		v = newView(cart.ID, m.store, m.policy, m.logger)
		m.views[cart.ID] = v
	}
	v.Observe(cart)
	return v
}

// Release closes and forgets the cart's view, e.g. once the cart became an order.
func (m *Mutator) Release(cartID string) {
	m.mu.Lock()
	v, ok := m.views[cartID]
	delete(m.views, cartID)
	m.mu.Unlock()

	if ok {
		v.Close()
	}
}

// View is the client-side state of one cart: the last confirmed snapshot plus
// unconfirmed quantity overrides and removals.
type View struct {
	cartID string
	store  CartStore
	policy retry.Policy
	logger *zap.Logger

	mu         sync.Mutex
	snapshot   *domain.Cart
	overrides  map[string]int
	removed    map[string]bool
	selected   map[string]bool
	generation map[string]uint64
	inFlight   map[string]int
	slots      map[string]chan struct{}
	settled    uint64 // bumped whenever a server cart is applied
	closed     bool
}

func newView(cartID string, store CartStore, policy retry.Policy, logger *zap.Logger) *View {
	return &View{
		cartID:     cartID,
		store:      store,
		policy:     policy,
		logger:     logger,
		overrides:  make(map[string]int),
		removed:    make(map[string]bool),
		selected:   make(map[string]bool),
		generation: make(map[string]uint64),
		inFlight:   make(map[string]int),
		slots:      make(map[string]chan struct{}),
	}
}

// Observe replaces the snapshot with a server-confirmed cart unless a
// mutation is still settling.
func (v *View) Observe(cart *domain.Cart) {
	if cart == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.busy() {
		return
	}
	v.snapshot = cart.Clone()
}

// UpdateQuantity sets the item's quantity. Items that vanished server-side are
// treated as done. A rejection such as insufficient stock is returned at once
// with the item reconciled to the server; transient failures are retried and,
// once exhausted, all local overrides are dropped in favour of a fresh fetch
// and the failure is returned.
func (v *View) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return v.mutate(ctx, itemID, func(v *View) {
		v.overrides[itemID] = quantity
	}, func(ctx context.Context) (*domain.Cart, error) {
		return v.store.UpdateLineItem(ctx, v.cartID, itemID, quantity)
	})
}

// RemoveItem deletes the item, hiding it locally right away.
func (v *View) RemoveItem(ctx context.Context, itemID string) error {
	return v.mutate(ctx, itemID, func(v *View) {
		v.removed[itemID] = true
	}, func(ctx context.Context) (*domain.Cart, error) {
		return v.store.DeleteLineItem(ctx, v.cartID, itemID)
	})
}

func (v *View) mutate(ctx context.Context, itemID string, optimistic func(*View), call func(context.Context) (*domain.Cart, error)) error {
	gen, err := v.begin(itemID, optimistic)
	if err != nil {
		return err
	}
	defer v.end(itemID)

	release, err := v.acquire(ctx, itemID)
	if err != nil {
		v.reconcile(op{gen: gen, itemID: itemID}, nil)
		return err
	}
	defer release()
	o := op{gen: gen, itemID: itemID, seen: v.settledCount()}

	log := logger.WithTrace(ctx, v.logger).With(zap.String("cart_id", v.cartID), zap.String("item_id", itemID))

	server, err := v.store.Refresh(ctx, v.cartID)
	switch {
	case err == nil:
		if _, ok := server.Item(itemID); !ok {
			v.reconcile(o, server)
			return nil
		}
	case commerce.IsNotFound(err):
		v.reconcile(o, nil)
		return nil
	default:
		// the call itself decides whether the item is still there
		log.Warn("cart fetch before line item change failed", zap.Error(err))
	}

	var updated *domain.Cart
	errCall := v.policy.Do(ctx, func(attempt int) error {
		cart, err := call(ctx)
		if err != nil {
			if commerce.IsNotFound(err) || !commerce.IsTransient(err) {
				return retry.Permanent(err)
			}
			log.Warn("line item change failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		updated = cart
		return nil
	})

	switch {
	case errCall == nil:
		v.reconcile(o, updated)
		return nil
	case commerce.IsNotFound(errCall):
		fresh, err := v.store.Refresh(ctx, v.cartID)
		if err != nil {
			log.Warn("refresh after missing line item failed", zap.Error(err))
		}
		v.reconcile(o, fresh)
		return nil
	case !commerce.IsTransient(errCall) && ctx.Err() == nil:
		// rejected by the backend, e.g. not enough stock; shown as is
		log.Warn("line item change rejected", zap.Error(errCall))
		fresh, err := v.store.Refresh(ctx, v.cartID)
		if err != nil {
			log.Warn("refresh after rejected line item change failed", zap.Error(err))
		}
		v.reconcile(o, fresh)
		return errCall
	default:
		log.Error("line item change gave up", zap.Error(errCall))
		v.reset(ctx)
		return errCall
	}
}

// InFlight reports whether a change to the item is still settling.
func (v *View) InFlight(itemID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inFlight[itemID] > 0
}

// Items returns the visible items: the snapshot with overrides applied and
// removed items hidden.
func (v *View) Items() []domain.LineItem {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.snapshot == nil {
		return nil
	}

	items := make([]domain.LineItem, 0, len(v.snapshot.Items))
	for _, item := range v.snapshot.Items {
		if v.removed[item.ID] {
			continue
		}
		if q, ok := v.overrides[item.ID]; ok {
			item.Quantity = q
		}
		item.Selected = v.isSelected(item.ID)
		items = append(items, item)
	}
	return items
}

// Cart returns the snapshot with the visible items.
func (v *View) Cart() *domain.Cart {
	v.mu.Lock()
	snapshot := v.snapshot.Clone()
	v.mu.Unlock()
	if snapshot == nil {
		return nil
	}
	snapshot.Items = v.Items()
	return snapshot
}

// Selection returns the selected flag of every visible item.
func (v *View) Selection() map[string]bool {
	items := v.Items()
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item.ID] = item.Selected
	}
	return out
}

func (v *View) SetSelected(itemID string, selected bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.snapshot == nil {
		return domain.ErrItemNotFound
	}
	if _, ok := v.snapshot.Item(itemID); !ok || v.removed[itemID] {
		return domain.ErrItemNotFound
	}
	v.selected[itemID] = selected
	return nil
}

// Close discards every result that arrives afterwards.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}

func (v *View) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// items are selected unless explicitly deselected
func (v *View) isSelected(itemID string) bool {
	selected, ok := v.selected[itemID]
	return !ok || selected
}

func (v *View) busy() bool {
	for _, n := range v.inFlight {
		if n > 0 {
			return true
		}
	}
	return false
}

// begin registers a change to the item and shows it locally at once.
func (v *View) begin(itemID string, optimistic func(*View)) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, ErrViewClosed
	}
	v.generation[itemID]++
	v.inFlight[itemID]++
	optimistic(v)
	return v.generation[itemID], nil
}

func (v *View) end(itemID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inFlight[itemID]--
	if v.inFlight[itemID] <= 0 {
		delete(v.inFlight, itemID)
	}
}

// acquire serializes backend calls for one item; other items proceed.
func (v *View) acquire(ctx context.Context, itemID string) (func(), error) {
	v.mu.Lock()
	slot, ok := v.slots[itemID]
	if !ok {
		slot = make(chan struct{}, 1)
		v.slots[itemID] = slot
	}
	v.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// op identifies one change: the item, its generation and how many server
// carts had been applied when its backend call went out.
type op struct {
	gen    uint64
	itemID string
	seen   uint64
}

func (v *View) settledCount() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.settled
}

func (v *View) othersInFlight(itemID string) bool {
	for id, n := range v.inFlight {
		if id != itemID && n > 0 {
			return true
		}
	}
	return false
}

// reconcile settles one item against a server cart, unless a newer change to
// the same item has been requested meanwhile. The whole snapshot is replaced
// only when no other item settled or is settling concurrently; otherwise the
// reply may predate another item's change and only this item is taken from it.
func (v *View) reconcile(o op, server *domain.Cart) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.generation[o.itemID] != o.gen {
		return
	}
	delete(v.overrides, o.itemID)
	delete(v.removed, o.itemID)
	if server == nil {
		return
	}
	if v.snapshot == nil || (v.settled == o.seen && !v.othersInFlight(o.itemID)) {
		v.snapshot = server.Clone()
	} else {
		v.snapshot = mergeItem(v.snapshot, server, o.itemID)
	}
	v.settled++
}

func mergeItem(snapshot, server *domain.Cart, itemID string) *domain.Cart {
	out := snapshot.Clone()
	fresh, ok := server.Item(itemID)
	for i, item := range out.Items {
		if item.ID != itemID {
			continue
		}
		if ok {
			out.Items[i] = fresh
		} else {
			out.Items = append(out.Items[:i], out.Items[i+1:]...)
		}
		return out
	}
	if ok {
		out.Items = append(out.Items, fresh)
	}
	return out
}

// reset drops every unconfirmed change and takes the server's word.
func (v *View) reset(ctx context.Context) {
	fresh, err := v.store.Refresh(ctx, v.cartID)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.overrides = make(map[string]int)
	v.removed = make(map[string]bool)
	if err != nil {
		v.logger.Warn("refresh after failed line item change failed", zap.String("cart_id", v.cartID), zap.Error(err))
		return
	}
	v.snapshot = fresh
	v.settled++
}
