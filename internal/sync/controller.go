package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/condorshop/storefront/internal/domain"
	"github.com/condorshop/storefront/internal/gateway"
	"github.com/condorshop/storefront/internal/store"
	apperrors "github.com/condorshop/storefront/pkg/errors"
)

// DefaultDebounce is the quiet period collapsing rapid quantity edits into a
// single remote call.
const DefaultDebounce = 300 * time.Millisecond

// Notifier surfaces user-visible, non-blocking notifications. The cart stays
// interactive regardless of what is pushed here.
type Notifier interface {
	Notify(message string)
}

// Identity is the slice of the session resolver the controller needs to
// interpret 401/403 fetch responses.
type Identity interface {
	Authenticated() bool
	ClearCredential()
}

// EventPublisher receives best-effort domain events after successful
// reconciliations. May be nil.
type EventPublisher interface {
	CartUpdated(ctx context.Context, snapshot domain.Snapshot)
	CartCleared(ctx context.Context)
}

// Controller translates cart edits into immediate local mutations plus
// debounced, deduplicated remote writes, rolling back on failure. All remote
// failures are absorbed here: callers only ever observe the optimistic state,
// a possible rollback, and notifications.
type Controller struct {
	store    *store.CartStore
	gw       gateway.CartGateway
	identity Identity
	notifier Notifier
	events   EventPublisher
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*pendingMutation

	// Fetch sequencing: a forced refetch may race an in-flight fetch; only
	// the most recent successful response replaces the store.
	fetchInFlight bool
	fetchSeq      uint64
	appliedSeq    uint64
}

// NewController creates a sync controller for one cart. events may be nil.
func NewController(
	cartStore *store.CartStore,
	gw gateway.CartGateway,
	identity Identity,
	notifier Notifier,
	events EventPublisher,
	debounce time.Duration,
	logger *slog.Logger,
) *Controller {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Controller{
		store:    cartStore,
		gw:       gw,
		identity: identity,
		notifier: notifier,
		events:   events,
		logger:   logger,
		debounce: debounce,
		pending:  make(map[string]*pendingMutation),
	}
}

// QuantityChange applies a quantity edit optimistically and schedules the
// debounced remote write. A quantity below one is a removal request, never a
// zero-quantity update on the wire. The local mutation is synchronous and
// visible before any network activity starts.
func (c *Controller) QuantityChange(ctx context.Context, lineItemID string, quantity int) error {
	if quantity < 1 {
		return c.Remove(ctx, lineItemID)
	}

	c.mu.Lock()

	prev, ok := c.store.Quantity(lineItemID)
	if !ok {
		c.mu.Unlock()
		return apperrors.NotFound("cart item", lineItemID)
	}

	c.store.UpdateQuantity(ctx, lineItemID, quantity)

	p := c.pending[lineItemID]
	if p == nil {
		// First edit in this cycle: prev is the last server-confirmed
		// quantity and stays the rollback target across debounce restarts.
		p = &pendingMutation{lineItemID: lineItemID, rollbackQuantity: prev}
		c.pending[lineItemID] = p
	} else {
		collapsedEditsTotal.Inc()
	}
	p.desiredQuantity = quantity
	p.stopTimer()
	p.timer = time.AfterFunc(c.debounce, func() { c.flush(lineItemID) })

	c.mu.Unlock()
	return nil
}

// flush dispatches the debounced quantity update for one line item. Runs on
// the timer goroutine.
func (c *Controller) flush(lineItemID string) {
	c.mu.Lock()
	p := c.pending[lineItemID]
	if p == nil {
		c.mu.Unlock()
		return
	}
	if p.phase == phaseInFlight {
		// One request per line item at a time. The trailing edit is picked
		// up by the next debounce cycle a further interaction starts.
		c.mu.Unlock()
		return
	}
	p.phase = phaseInFlight
	quantity := p.desiredQuantity
	c.mu.Unlock()

	ctx := context.Background()
	item, err := c.gw.UpdateQuantity(ctx, lineItemID, quantity)

	c.mu.Lock()
	if c.pending[lineItemID] != p {
		// The item was removed (or the record replaced) while the request
		// was in flight; the response must not revive it.
		c.mu.Unlock()
		return
	}
	if err != nil {
		// Roll back before releasing the pending slot, so an edit landing in
		// between captures the restored quantity as its rollback target.
		c.store.UpdateQuantity(ctx, lineItemID, p.rollbackQuantity)
	}
	p.stopTimer()
	delete(c.pending, lineItemID)
	c.mu.Unlock()

	if err != nil {
		remoteOpsTotal.WithLabelValues("update", "error").Inc()
		rollbacksTotal.Inc()
		c.notifier.Notify("We couldn't update your cart. Your previous quantity was restored.")
		c.logger.Warn("cart quantity update failed, rolled back",
			slog.String("line_item_id", lineItemID),
			slog.Int("rollback_quantity", p.rollbackQuantity),
			slog.String("error", err.Error()),
		)
		return
	}

	remoteOpsTotal.WithLabelValues("update", "ok").Inc()
	if c.store.Reconcile(ctx, item) {
		c.publishUpdated(ctx)
	}
}

// Remove deletes a line item optimistically and dispatches the remote
// deletion asynchronously. A backend 404 means the item was already gone and
// is treated as success. Any other failure restores the captured item and
// surfaces a notification.
func (c *Controller) Remove(ctx context.Context, lineItemID string) error {
	c.mu.Lock()

	captured, ok := c.store.Item(lineItemID)
	if p := c.pending[lineItemID]; p != nil {
		// A stale quantity update for an item that no longer exists locally
		// must never be sent.
		p.stopTimer()
		delete(c.pending, lineItemID)
	}
	if !ok {
		c.mu.Unlock()
		return nil
	}
	c.store.Remove(ctx, lineItemID)
	c.mu.Unlock()

	go c.dispatchRemove(captured)
	return nil
}

func (c *Controller) dispatchRemove(captured domain.LineItem) {
	ctx := context.Background()
	err := c.gw.RemoveItem(ctx, captured.ID)
	if err == nil || errors.Is(err, apperrors.ErrNotFound) {
		remoteOpsTotal.WithLabelValues("remove", "ok").Inc()
		c.publishUpdated(ctx)
		return
	}

	remoteOpsTotal.WithLabelValues("remove", "error").Inc()
	rollbacksTotal.Inc()
	c.store.Restore(ctx, captured)
	c.notifier.Notify("We couldn't remove the item from your cart. It has been restored.")
	c.logger.Warn("cart item removal failed, restored",
		slog.String("line_item_id", captured.ID),
		slog.String("error", err.Error()),
	)
}

// Add dispatches a remote add and refetches the full cart regardless of the
// outcome, because the add endpoint returns a confirmation only and the
// backend may apply pricing the storefront doesn't know about. The stock
// ceiling check here is informational; the authoritative check is the
// backend's and its rejection is surfaced to the caller.
func (c *Controller) Add(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return apperrors.InvalidInput("quantity must be at least 1")
	}
	if err := c.checkStock(productID, quantity); err != nil {
		return err
	}

	addErr := c.gw.AddItem(ctx, productID, quantity)
	if addErr != nil {
		remoteOpsTotal.WithLabelValues("add", "error").Inc()
	} else {
		remoteOpsTotal.WithLabelValues("add", "ok").Inc()
	}

	// Resynchronize with server truth even when the add was rejected, e.g.
	// after an out-of-stock race.
	if err := c.Refresh(ctx, true); err != nil {
		c.logger.Warn("cart refetch after add failed", slog.String("error", err.Error()))
	}

	if addErr != nil {
		return addErr
	}
	c.publishUpdated(ctx)
	return nil
}

// checkStock rejects an add that visibly exceeds the known remaining stock of
// a product already in the cart. Unknown stock passes.
func (c *Controller) checkStock(productID string, quantity int) error {
	for _, li := range c.store.Snapshot().Items {
		if li.ProductID == productID && li.Stock > 0 && li.Quantity+quantity > li.Stock {
			return apperrors.OutOfStock("requested quantity exceeds available stock")
		}
	}
	return nil
}

// Refresh fetches the cart from the backend and replaces the local item set.
// Without force, a fetch already in flight short-circuits the call. A forced
// fetch (identity transitions, post-add resync) always goes out and may race
// the in-flight one; a monotonic sequence ensures only the most recent
// successful response wins.
func (c *Controller) Refresh(ctx context.Context, force bool) error {
	c.mu.Lock()
	if c.fetchInFlight && !force {
		c.mu.Unlock()
		return nil
	}
	c.fetchInFlight = true
	c.fetchSeq++
	seq := c.fetchSeq
	c.mu.Unlock()

	// The 401/403 policy is keyed to the credential this fetch carries, not
	// to whoever is logged in by the time the response lands.
	wasAuthenticated := c.identity.Authenticated()

	items, err := c.gw.FetchCart(ctx)

	c.mu.Lock()
	if seq == c.fetchSeq {
		c.fetchInFlight = false
	}
	if seq <= c.appliedSeq {
		// A newer fetch already applied; this response, success or failure,
		// is stale and must not touch the store or the credential.
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.mu.Unlock()
		return c.handleFetchError(ctx, err, wasAuthenticated)
	}
	c.appliedSeq = seq
	// Applied under the same lock that validated the sequence, so an older
	// fetch cannot slip its items in after a newer one.
	c.store.SetItems(ctx, items)
	c.mu.Unlock()

	remoteOpsTotal.WithLabelValues("fetch", "ok").Inc()
	return nil
}

// handleFetchError applies the credential-sensitive 401/403 policy: when the
// failing fetch carried an authenticated credential the session has genuinely
// expired, so the credential and the cart are cleared; when it went out as a
// guest the rejection is the normal state before the backend mints a guest
// token and is ignored.
func (c *Controller) handleFetchError(ctx context.Context, err error, wasAuthenticated bool) error {
	if errors.Is(err, apperrors.ErrUnauthorized) || errors.Is(err, apperrors.ErrForbidden) {
		if wasAuthenticated {
			remoteOpsTotal.WithLabelValues("fetch", "auth_expired").Inc()
			c.identity.ClearCredential()
			c.store.Clear(ctx)
			c.notifier.Notify("Your session has expired.")
			c.logger.Info("credential expired, cart cleared")
			return nil
		}
		// Benign guest-mode rejection.
		remoteOpsTotal.WithLabelValues("fetch", "guest_benign").Inc()
		return nil
	}

	remoteOpsTotal.WithLabelValues("fetch", "error").Inc()
	return err
}

// Clear empties the cart locally and dispatches idempotent remote deletions
// for every line item that was present.
func (c *Controller) Clear(ctx context.Context) {
	snapshot := c.store.Snapshot()

	c.mu.Lock()
	for id, p := range c.pending {
		p.stopTimer()
		delete(c.pending, id)
	}
	c.mu.Unlock()

	c.store.Clear(ctx)

	for _, li := range snapshot.Items {
		item := li
		go func() {
			if err := c.gw.RemoveItem(context.Background(), item.ID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
				c.logger.Warn("remote removal during clear failed",
					slog.String("line_item_id", item.ID),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	if c.events != nil {
		c.events.CartCleared(ctx)
	}
}

// CompleteOrder resets the cart after a confirmed checkout. The backend has
// already consumed the server-side cart; only the local mirror is replaced.
func (c *Controller) CompleteOrder(ctx context.Context) {
	c.mu.Lock()
	for id, p := range c.pending {
		p.stopTimer()
		delete(c.pending, id)
	}
	c.mu.Unlock()

	c.store.SetItems(ctx, nil)
	if c.events != nil {
		c.events.CartCleared(ctx)
	}
}

// Snapshot returns the current consistent cart view.
func (c *Controller) Snapshot() domain.Snapshot {
	return c.store.Snapshot()
}

func (c *Controller) publishUpdated(ctx context.Context) {
	if c.events == nil {
		return
	}
	c.events.CartUpdated(ctx, c.store.Snapshot())
}
