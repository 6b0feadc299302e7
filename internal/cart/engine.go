// Package cart keeps the local cart mirror convergent with the server cart
// across guest and authenticated sessions.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dtroode/storefront-client/internal/api"
	"github.com/dtroode/storefront-client/internal/logger"
	"github.com/dtroode/storefront-client/internal/model"
)

// API is the subset of the storefront client the engine syncs through.
type API interface {
	GetCart(ctx context.Context) (api.Cart, error)
	UpsertItem(ctx context.Context, productID int64, qty int) (api.Cart, error)
	DeleteItem(ctx context.Context, lineID int64) error
	MergeCart(ctx context.Context, items []model.CartLine) (api.Cart, error)
}

// QuantityChange reports what a quantity mutation actually applied.
type QuantityChange struct {
	ProductID int64
	Requested int
	Applied   int
	Clamped   bool
}

// Engine owns the cart mirror. Local mutations apply optimistically; in
// authenticated mode every mutation ends by adopting the server's cart.
type Engine struct {
	api       API
	store     *MirrorStore
	creds     model.CredentialStore
	inspector model.TokenInspector
	logger    *logger.Logger

	// mergeMu serializes merges; mu guards the mirror.
	mergeMu sync.Mutex
	mu      sync.Mutex
	mirror  model.CartMirror
	userID  string
	merged  bool
	// loaded is set once the persisted guest mirror has been read.
	loaded bool
	// epoch changes on every mode switch; responses from an older epoch are dropped.
	epoch uint64

	obsMu     sync.Mutex
	observers map[uint64]*subscription
	nextObs   uint64
}

type subscription struct {
	mu     sync.Mutex
	active bool
	fn     func(model.CartMirror)
}

// NewEngine creates an engine in guest mode. The persisted guest mirror is
// read by Hydrate, or lazily by the first mutation or merge, so a login that
// happens before Hydrate still merges it.
func NewEngine(client API, store *MirrorStore, creds model.CredentialStore, inspector model.TokenInspector, logger *logger.Logger) *Engine {
	return &Engine{
		api:       client,
		store:     store,
		creds:     creds,
		inspector: inspector,
		logger:    logger,
		mirror:    model.CartMirror{Mode: model.CartModeGuest},
		observers: make(map[uint64]*subscription),
	}
}

// Hydrate loads the persisted guest mirror and, when a credential is
// stored, merges it into the server cart.
func (e *Engine) Hydrate(ctx context.Context) error {
	guest, err := e.store.LoadGuest(ctx)
	if err != nil {
		return err
	}

	e.resetToGuest(guest)

	_, err = e.creds.Read(ctx)
	switch {
	case err == nil:
		return e.MergeGuestIntoServer(ctx)
	case errors.Is(err, model.ErrNotFound):
		e.notify()
		return nil
	default:
		return fmt.Errorf("failed to read credential: %w", err)
	}
}

// AddItem adds qty (at least 1) of product to the cart.
func (e *Engine) AddItem(ctx context.Context, product Product, qty int) (QuantityChange, error) {
	item, err := NormalizeProduct(product)
	if err != nil {
		return QuantityChange{}, err
	}
	if qty < 1 {
		qty = 1
	}
	if err := e.ensureLoaded(ctx); err != nil {
		return QuantityChange{}, err
	}

	e.mu.Lock()
	requested := qty
	if i := e.indexLocked(item.ProductID); i >= 0 {
		existing := e.mirror.Items[i]
		requested += existing.Quantity
		if item.KnownStock == nil {
			item.KnownStock = existing.KnownStock
		}
		item.ServerLineID = existing.ServerLineID
		item.Quantity = clamp(requested, item)
		e.mirror.Items[i] = item
	} else {
		item.Quantity = clamp(requested, item)
		e.mirror.Items = append(e.mirror.Items, item)
	}
	change := QuantityChange{
		ProductID: item.ProductID,
		Requested: requested,
		Applied:   item.Quantity,
		Clamped:   item.Quantity != requested,
	}
	state := e.commitLocked(ctx)
	e.mu.Unlock()
	e.notify()

	if !state.authenticated {
		return change, nil
	}
	return change, e.sync(ctx, state.epoch, func() (api.Cart, error) {
		return e.api.UpsertItem(ctx, change.ProductID, change.Applied)
	})
}

// SetQuantity sets the absolute quantity of a product already in the cart.
func (e *Engine) SetQuantity(ctx context.Context, productID int64, qty int) (QuantityChange, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return QuantityChange{}, err
	}

	e.mu.Lock()
	i := e.indexLocked(productID)
	if i < 0 {
		e.mu.Unlock()
		return QuantityChange{}, model.ErrItemNotInCart
	}
	applied := clamp(qty, e.mirror.Items[i])
	e.mirror.Items[i].Quantity = applied
	change := QuantityChange{
		ProductID: productID,
		Requested: qty,
		Applied:   applied,
		Clamped:   applied != qty,
	}
	state := e.commitLocked(ctx)
	e.mu.Unlock()
	e.notify()

	if !state.authenticated {
		return change, nil
	}
	return change, e.sync(ctx, state.epoch, func() (api.Cart, error) {
		return e.api.UpsertItem(ctx, productID, applied)
	})
}

// RemoveItem drops a product from the cart.
func (e *Engine) RemoveItem(ctx context.Context, productID int64) error {
	if err := e.ensureLoaded(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	i := e.indexLocked(productID)
	if i < 0 {
		e.mu.Unlock()
		return model.ErrItemNotInCart
	}
	lineID := e.mirror.Items[i].ServerLineID
	e.mirror.Items = append(e.mirror.Items[:i:i], e.mirror.Items[i+1:]...)
	state := e.commitLocked(ctx)
	e.mu.Unlock()
	e.notify()

	if !state.authenticated {
		return nil
	}
	return e.sync(ctx, state.epoch, func() (api.Cart, error) {
		if lineID != nil {
			if err := e.api.DeleteItem(ctx, *lineID); err != nil {
				return api.Cart{}, err
			}
		}
		return e.api.GetCart(ctx)
	})
}

// Clear empties the cart.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.ensureLoaded(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	e.mirror.Items = nil
	state := e.commitLocked(ctx)
	e.mu.Unlock()
	e.notify()

	if !state.authenticated {
		return nil
	}
	return e.sync(ctx, state.epoch, func() (api.Cart, error) {
		current, err := e.api.GetCart(ctx)
		if err != nil {
			return api.Cart{}, err
		}
		for _, line := range current.Items {
			if err := e.api.DeleteItem(ctx, line.ID); err != nil {
				return api.Cart{}, err
			}
		}
		return e.api.GetCart(ctx)
	})
}

// MergeGuestIntoServer sends the guest mirror to the server once per
// anonymous to authenticated transition and adopts the merged cart. Later
// calls are no-ops until the session ends. On failure the engine stays in
// guest mode with the guest mirror intact.
func (e *Engine) MergeGuestIntoServer(ctx context.Context) error {
	e.mergeMu.Lock()
	defer e.mergeMu.Unlock()

	if err := e.ensureLoaded(ctx); err != nil {
		return fmt.Errorf("%w: %w", model.ErrSyncFailed, err)
	}

	e.mu.Lock()
	if e.merged {
		e.mu.Unlock()
		return nil
	}
	epoch := e.epoch
	var lines []model.CartLine
	if e.mirror.Mode == model.CartModeGuest {
		for _, it := range e.mirror.Items {
			lines = append(lines, model.CartLine{ProductID: it.ProductID, Qty: it.Quantity})
		}
	}
	e.mu.Unlock()

	var (
		cart api.Cart
		err  error
	)
	if len(lines) == 0 {
		cart, err = e.api.GetCart(ctx)
	} else {
		cart, err = e.api.MergeCart(ctx, lines)
	}
	if err != nil {
		e.logger.Warn("Cart engine: merge failed, staying in guest mode", "error", err)
		return fmt.Errorf("%w: %w", model.ErrSyncFailed, err)
	}

	items, err := fromServer(cart)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrSyncFailed, err)
	}
	userID := e.currentUserID(ctx)

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		e.logger.Info("Cart engine: session changed during merge, discarding response")
		return nil
	}
	e.mirror = model.CartMirror{Mode: model.CartModeAuthenticated, Items: items}
	e.userID = userID
	e.merged = true
	e.epoch++
	e.mu.Unlock()

	if err := e.store.DiscardGuest(ctx); err != nil {
		e.logger.Warn("Cart engine: failed to discard guest cart", "error", err)
	}
	e.saveUser(ctx, userID, items)
	e.logger.Info("Cart engine: merged guest cart", "lines", len(lines), "items", len(items))
	e.notify()
	return nil
}

// HandleSessionEvent reacts to login and logout. Merge failures are logged;
// the merge is attempted again on the next login.
func (e *Engine) HandleSessionEvent(ctx context.Context, event model.SessionEvent) {
	switch event.Kind {
	case model.EventLoggedIn:
		e.switchAccount(ctx)
		if err := e.MergeGuestIntoServer(ctx); err != nil {
			e.logger.Error("Cart engine: failed to merge guest cart", "error", err)
		}
	case model.EventLoggedOut, model.EventExpired:
		guest, err := e.store.LoadGuest(ctx)
		if err != nil {
			e.logger.Warn("Cart engine: failed to reload guest cart", "error", err)
		}
		e.resetToGuest(guest)
		e.notify()
	}
}

// switchAccount drops the authenticated mirror when a login replaced the
// credential of another account without a logout in between. The new
// account then goes through the merge like any fresh login.
func (e *Engine) switchAccount(ctx context.Context) {
	userID := e.currentUserID(ctx)

	e.mu.Lock()
	switched := e.merged && userID != e.userID
	previous := e.userID
	e.mu.Unlock()
	if !switched {
		return
	}

	guest, err := e.store.LoadGuest(ctx)
	if err != nil {
		e.logger.Warn("Cart engine: failed to reload guest cart", "error", err)
	}
	e.logger.Info("Cart engine: account switched", "from", previous, "to", userID)
	e.resetToGuest(guest)
}

// resetToGuest swaps in a guest mirror and starts a new epoch.
func (e *Engine) resetToGuest(guest []model.CartItem) {
	e.mu.Lock()
	e.mirror = model.CartMirror{Mode: model.CartModeGuest, Items: guest}
	e.userID = ""
	e.merged = false
	e.loaded = true
	e.epoch++
	e.mu.Unlock()
}

// ensureLoaded reads the persisted guest mirror if neither Hydrate nor a
// session event has done so yet.
func (e *Engine) ensureLoaded(ctx context.Context) error {
	e.mu.Lock()
	loaded := e.loaded
	e.mu.Unlock()
	if loaded {
		return nil
	}

	guest, err := e.store.LoadGuest(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if !e.loaded {
		e.mirror = model.CartMirror{Mode: model.CartModeGuest, Items: guest}
		e.loaded = true
	}
	e.mu.Unlock()
	return nil
}

// Observe returns a session observer that forwards events to the engine.
func (e *Engine) Observe(ctx context.Context) model.SessionObserver {
	return func(event model.SessionEvent) {
		e.HandleSessionEvent(ctx, event)
	}
}

// Snapshot returns a copy of the mirror.
func (e *Engine) Snapshot() model.CartMirror {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) TotalItems() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, it := range e.mirror.Items {
		total += it.Quantity
	}
	return total
}

func (e *Engine) TotalPrice() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := decimal.Zero
	for _, it := range e.mirror.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Subscribe registers fn to receive a snapshot after every change. Once the
// returned func returns, fn is never called again. fn must not call it.
func (e *Engine) Subscribe(fn func(model.CartMirror)) (unsubscribe func()) {
	sub := &subscription{active: true, fn: fn}

	e.obsMu.Lock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = sub
	e.obsMu.Unlock()

	return func() {
		sub.mu.Lock()
		sub.active = false
		sub.mu.Unlock()

		e.obsMu.Lock()
		delete(e.observers, id)
		e.obsMu.Unlock()
	}
}

type commitState struct {
	authenticated bool
	epoch         uint64
}

// commitLocked writes the mirror through to storage.
func (e *Engine) commitLocked(ctx context.Context) commitState {
	state := commitState{
		authenticated: e.mirror.Mode == model.CartModeAuthenticated,
		epoch:         e.epoch,
	}
	items := cloneItems(e.mirror.Items)

	var err error
	if state.authenticated {
		if e.userID != "" {
			err = e.store.SaveUser(ctx, e.userID, items)
		}
	} else {
		err = e.store.SaveGuest(ctx, items)
	}
	if err != nil {
		e.logger.Warn("Cart engine: failed to persist cart", "error", err)
	}
	return state
}

// sync runs a server call and adopts the returned cart. On failure the
// optimistic local state is kept.
func (e *Engine) sync(ctx context.Context, epoch uint64, call func() (api.Cart, error)) error {
	cart, err := call()
	if err != nil {
		e.logger.Warn("Cart engine: sync failed, keeping local state", "error", err)
		return fmt.Errorf("%w: %w", model.ErrSyncFailed, err)
	}

	items, err := fromServer(cart)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrSyncFailed, err)
	}

	e.mu.Lock()
	if e.epoch != epoch || e.mirror.Mode != model.CartModeAuthenticated {
		e.mu.Unlock()
		return nil
	}
	e.mirror.Items = items
	userID := e.userID
	e.mu.Unlock()

	e.saveUser(ctx, userID, items)
	e.notify()
	return nil
}

func (e *Engine) saveUser(ctx context.Context, userID string, items []model.CartItem) {
	if userID == "" {
		return
	}
	if err := e.store.SaveUser(ctx, userID, items); err != nil {
		e.logger.Warn("Cart engine: failed to cache user cart", "error", err)
	}
}

func (e *Engine) currentUserID(ctx context.Context) string {
	c, err := e.creds.Read(ctx)
	if err != nil || e.inspector == nil {
		return ""
	}
	claims, err := e.inspector.Inspect(c.Access)
	if err != nil {
		return ""
	}
	return claims.UserID
}

func (e *Engine) indexLocked(productID int64) int {
	for i, it := range e.mirror.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

func (e *Engine) snapshotLocked() model.CartMirror {
	return model.CartMirror{Mode: e.mirror.Mode, Items: cloneItems(e.mirror.Items)}
}

func (e *Engine) notify() {
	snapshot := e.Snapshot()

	e.obsMu.Lock()
	subs := make([]*subscription, 0, len(e.observers))
	for _, s := range e.observers {
		subs = append(subs, s)
	}
	e.obsMu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		if s.active {
			s.fn(snapshot)
		}
		s.mu.Unlock()
	}
}

// fromServer converts the canonical cart into mirror items.
func fromServer(cart api.Cart) ([]model.CartItem, error) {
	items := make([]model.CartItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		p, err := DecodeProduct(line.Product)
		if err != nil {
			return nil, err
		}
		if line.ProductID > 0 {
			p["id"] = line.ProductID
		}
		item, err := NormalizeProduct(p)
		if err != nil {
			return nil, fmt.Errorf("cart line %d: %w", line.ID, err)
		}
		item.Quantity = line.Qty
		if line.ID > 0 {
			id := line.ID
			item.ServerLineID = &id
		}
		items = append(items, item)
	}
	return items, nil
}

func cloneItems(items []model.CartItem) []model.CartItem {
	if items == nil {
		return nil
	}
	out := make([]model.CartItem, len(items))
	for i, it := range items {
		if it.KnownStock != nil {
			s := *it.KnownStock
			it.KnownStock = &s
		}
		if it.ServerLineID != nil {
			id := *it.ServerLineID
			it.ServerLineID = &id
		}
		out[i] = it
	}
	return out
}
