package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condorshop/storefront/internal/domain"
	"github.com/condorshop/storefront/internal/store"
	apperrors "github.com/condorshop/storefront/pkg/errors"
	"github.com/condorshop/storefront/pkg/logger"
)

const testDebounce = 15 * time.Millisecond

type updateCall struct {
	lineItemID string
	quantity   int
}

// fakeGateway records calls and delegates to overridable behaviors.
type fakeGateway struct {
	mu          sync.Mutex
	updateCalls []updateCall
	removeCalls []string
	addCalls    []updateCall
	fetchCalls  int

	updateFn func(lineItemID string, quantity int) (domain.LineItem, error)
	removeFn func(lineItemID string) error
	addFn    func(productID string, quantity int) error
	fetchFn  func(call int) ([]domain.LineItem, error)
}

func (f *fakeGateway) FetchCart(ctx context.Context) ([]domain.LineItem, error) {
	f.mu.Lock()
	f.fetchCalls++
	call := f.fetchCalls
	fn := f.fetchFn
	f.mu.Unlock()

	if fn != nil {
		return fn(call)
	}
	return []domain.LineItem{}, nil
}

func (f *fakeGateway) AddItem(ctx context.Context, productID string, quantity int) error {
	f.mu.Lock()
	f.addCalls = append(f.addCalls, updateCall{productID, quantity})
	fn := f.addFn
	f.mu.Unlock()

	if fn != nil {
		return fn(productID, quantity)
	}
	return nil
}

func (f *fakeGateway) UpdateQuantity(ctx context.Context, lineItemID string, quantity int) (domain.LineItem, error) {
	f.mu.Lock()
	f.updateCalls = append(f.updateCalls, updateCall{lineItemID, quantity})
	fn := f.updateFn
	f.mu.Unlock()

	if fn != nil {
		return fn(lineItemID, quantity)
	}
	return domain.LineItem{ID: lineItemID, Quantity: quantity}, nil
}

func (f *fakeGateway) RemoveItem(ctx context.Context, lineItemID string) error {
	f.mu.Lock()
	f.removeCalls = append(f.removeCalls, lineItemID)
	fn := f.removeFn
	f.mu.Unlock()

	if fn != nil {
		return fn(lineItemID)
	}
	return nil
}

func (f *fakeGateway) updates() []updateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]updateCall, len(f.updateCalls))
	copy(out, f.updateCalls)
	return out
}

func (f *fakeGateway) removes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.removeCalls))
	copy(out, f.removeCalls)
	return out
}

func (f *fakeGateway) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

type fakeIdentity struct {
	mu            sync.Mutex
	authenticated bool
	cleared       bool
}

func (f *fakeIdentity) Authenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authenticated
}

func (f *fakeIdentity) ClearCredential() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authenticated = false
	f.cleared = true
}

func (f *fakeIdentity) wasCleared() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

func (f *fakeIdentity) setAuthenticated(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authenticated = v
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}

type fixture struct {
	store      *store.CartStore
	gw         *fakeGateway
	identity   *fakeIdentity
	notifier   *recordingNotifier
	controller *Controller
}

func newFixture(t *testing.T, items ...domain.LineItem) *fixture {
	t.Helper()

	log := logger.New("sync-test", "error")
	cartStore := store.New(domain.DefaultShippingPolicy, nil, log)
	cartStore.SetItems(context.Background(), items)

	gw := &fakeGateway{}
	identity := &fakeIdentity{}
	notifier := &recordingNotifier{}
	controller := NewController(cartStore, gw, identity, notifier, nil, testDebounce, log)

	return &fixture{
		store:      cartStore,
		gw:         gw,
		identity:   identity,
		notifier:   notifier,
		controller: controller,
	}
}

func (f *fixture) quantity(t *testing.T, lineItemID string) int {
	t.Helper()
	qty, _ := f.store.Quantity(lineItemID)
	return qty
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 2*time.Millisecond, msg)
}

func TestQuantityChangeIsOptimistic(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 2})

	require.NoError(t, f.controller.QuantityChange(context.Background(), "li-1", 5))

	// Visible immediately, before any remote call.
	assert.Equal(t, 5, f.quantity(t, "li-1"))
	assert.Empty(t, f.gw.updates())
}

func TestQuantityChangeUnknownItem(t *testing.T) {
	f := newFixture(t)

	err := f.controller.QuantityChange(context.Background(), "li-missing", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestDebounceCollapsesRapidEdits(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 1})
	ctx := context.Background()

	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 2))
	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 3))
	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 4))

	eventually(t, func() bool { return len(f.gw.updates()) > 0 }, "debounced update never flushed")

	// Let any stray timer fire before counting.
	time.Sleep(3 * testDebounce)

	updates := f.gw.updates()
	require.Len(t, updates, 1, "rapid edits must collapse into one remote call")
	assert.Equal(t, updateCall{"li-1", 4}, updates[0])
	assert.Equal(t, 4, f.quantity(t, "li-1"))
}

func TestRollbackToServerConfirmedQuantity(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 3})
	f.gw.updateFn = func(string, int) (domain.LineItem, error) {
		return domain.LineItem{}, apperrors.Unavailable("backend down")
	}
	ctx := context.Background()

	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 5))
	assert.Equal(t, 5, f.quantity(t, "li-1"))

	eventually(t, func() bool { return f.quantity(t, "li-1") == 3 },
		"failed update must roll back to the server-confirmed quantity")

	messages := f.notifier.all()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "previous quantity was restored")
}

func TestRollbackTargetSurvivesCollapsedEdits(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 3})
	f.gw.updateFn = func(string, int) (domain.LineItem, error) {
		return domain.LineItem{}, apperrors.Unavailable("backend down")
	}
	ctx := context.Background()

	// Several edits within one debounce window share one rollback target:
	// the quantity last confirmed by the server, not an intermediate edit.
	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 4))
	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 6))
	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 9))

	eventually(t, func() bool { return f.quantity(t, "li-1") == 3 },
		"rollback must target the pre-edit quantity")
}

func TestEditAfterFailedFlushCapturesRestoredQuantity(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 2})
	f.gw.updateFn = func(string, int) (domain.LineItem, error) {
		return domain.LineItem{}, apperrors.Unavailable("backend down")
	}
	ctx := context.Background()

	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 5))
	eventually(t, func() bool { return f.quantity(t, "li-1") == 2 }, "first edit never rolled back")

	// The rollback lands before the pending slot is released, so a fresh edit
	// can only ever capture the restored quantity as its rollback target.
	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 7))
	eventually(t, func() bool { return len(f.gw.updates()) == 2 }, "second edit never flushed")
	eventually(t, func() bool { return f.quantity(t, "li-1") == 2 },
		"second rollback must target the server-confirmed quantity, not the failed optimistic one")
}

func TestFlushReconcilesServerValues(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 1})
	f.gw.updateFn = func(lineItemID string, quantity int) (domain.LineItem, error) {
		// The backend repriced the item.
		return domain.LineItem{ID: lineItemID, UnitPrice: 900, Quantity: quantity, Stock: 7}, nil
	}
	ctx := context.Background()

	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 2))

	eventually(t, func() bool {
		item, _ := f.store.Item("li-1")
		return item.UnitPrice == 900
	}, "server-confirmed values must be reconciled into the store")

	item, _ := f.store.Item("li-1")
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, 7, item.Stock)
}

func TestQuantityZeroIsRemoval(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 2})

	require.NoError(t, f.controller.QuantityChange(context.Background(), "li-1", 0))

	_, ok := f.store.Item("li-1")
	assert.False(t, ok, "zero quantity removes the item locally")

	eventually(t, func() bool { return len(f.gw.removes()) == 1 }, "removal never dispatched")
	assert.Empty(t, f.gw.updates(), "a zero-quantity update must never go on the wire")
}

func TestRemoveAbsentItemIsNoop(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.controller.Remove(context.Background(), "li-missing"))
	time.Sleep(2 * testDebounce)
	assert.Empty(t, f.gw.removes())
}

func TestRemoveTreats404AsSuccess(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 2})
	f.gw.removeFn = func(string) error {
		return apperrors.NotFound("cart item", "li-1")
	}

	require.NoError(t, f.controller.Remove(context.Background(), "li-1"))

	eventually(t, func() bool { return len(f.gw.removes()) == 1 }, "removal never dispatched")
	time.Sleep(2 * testDebounce)

	_, ok := f.store.Item("li-1")
	assert.False(t, ok, "item already gone on the server stays removed")
	assert.Empty(t, f.notifier.all(), "an idempotent delete must not alarm the shopper")
}

func TestRemoveFailureRestoresItem(t *testing.T) {
	original := domain.LineItem{ID: "li-1", Name: "Mug", UnitPrice: 1_500, Quantity: 2}
	f := newFixture(t, original)
	f.gw.removeFn = func(string) error {
		return apperrors.Unavailable("backend down")
	}

	require.NoError(t, f.controller.Remove(context.Background(), "li-1"))

	eventually(t, func() bool {
		_, ok := f.store.Item("li-1")
		return ok
	}, "failed removal must restore the captured item")

	restored, _ := f.store.Item("li-1")
	assert.Equal(t, original, restored)

	messages := f.notifier.all()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "restored")
}

func TestRemoveCancelsPendingQuantityUpdate(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 2})
	ctx := context.Background()

	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 5))
	require.NoError(t, f.controller.Remove(ctx, "li-1"))

	eventually(t, func() bool { return len(f.gw.removes()) == 1 }, "removal never dispatched")
	time.Sleep(3 * testDebounce)

	assert.Empty(t, f.gw.updates(), "a pending update for a removed item must never be sent")
}

func TestInFlightResponseForRemovedItemIsDiscarded(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 2})
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	f.gw.updateFn = func(lineItemID string, quantity int) (domain.LineItem, error) {
		close(started)
		<-release
		return domain.LineItem{ID: lineItemID, Quantity: quantity}, nil
	}

	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 5))
	<-started

	// Removed while the update request is in flight.
	require.NoError(t, f.controller.Remove(ctx, "li-1"))
	close(release)

	time.Sleep(3 * testDebounce)
	_, ok := f.store.Item("li-1")
	assert.False(t, ok, "a late update response must not revive a removed item")
}

func TestOneRequestPerLineItemAtATime(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 1})
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	f.gw.updateFn = func(lineItemID string, quantity int) (domain.LineItem, error) {
		select {
		case <-started:
		default:
			close(started)
		}
		<-release
		return domain.LineItem{ID: lineItemID, Quantity: quantity}, nil
	}

	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 2))
	<-started

	// Another edit while the first request is still in flight; its timer may
	// fire but must not start a second request.
	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 3))
	time.Sleep(3 * testDebounce)
	assert.Len(t, f.gw.updates(), 1)

	close(release)
	time.Sleep(2 * testDebounce)
}

func TestAddRefetchesCart(t *testing.T) {
	f := newFixture(t)
	f.gw.fetchFn = func(int) ([]domain.LineItem, error) {
		return []domain.LineItem{{ID: "li-srv", ProductID: "p-1", UnitPrice: 2_000, Quantity: 3}}, nil
	}

	require.NoError(t, f.controller.Add(context.Background(), "p-1", 3))

	assert.Equal(t, 1, f.gw.fetches(), "add returns no item data, a refetch is mandatory")
	item, ok := f.store.Item("li-srv")
	require.True(t, ok)
	assert.Equal(t, 3, item.Quantity)
}

func TestAddFailureStillRefetches(t *testing.T) {
	f := newFixture(t)
	f.gw.addFn = func(string, int) error {
		return apperrors.OutOfStock("only 1 left")
	}

	err := f.controller.Add(context.Background(), "p-1", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrOutOfStock))
	assert.Equal(t, 1, f.gw.fetches(), "resync with server truth even after a rejected add")
}

func TestAddRejectsNonPositiveQuantity(t *testing.T) {
	f := newFixture(t)

	err := f.controller.Add(context.Background(), "p-1", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, 0, f.gw.fetches())
}

func TestAddStockCeiling(t *testing.T) {
	f := newFixture(t, domain.LineItem{
		ID: "li-1", ProductID: "p-1", UnitPrice: 1_000, Quantity: 4, Stock: 5,
	})

	err := f.controller.Add(context.Background(), "p-1", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrOutOfStock))
	assert.Equal(t, 0, f.gw.fetches(), "a visibly impossible add is rejected locally")

	// Unknown stock passes through to the backend.
	f2 := newFixture(t, domain.LineItem{ID: "li-1", ProductID: "p-1", UnitPrice: 1_000, Quantity: 4})
	require.NoError(t, f2.controller.Add(context.Background(), "p-1", 100))
}

func TestRefreshReplacesItems(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-old", UnitPrice: 1_000, Quantity: 1})
	f.gw.fetchFn = func(int) ([]domain.LineItem, error) {
		return []domain.LineItem{{ID: "li-new", UnitPrice: 2_000, Quantity: 2}}, nil
	}

	require.NoError(t, f.controller.Refresh(context.Background(), false))

	snap := f.store.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "li-new", snap.Items[0].ID)
}

func TestRefreshStaleResponseDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	f.gw.fetchFn = func(call int) ([]domain.LineItem, error) {
		if call == 1 {
			close(firstStarted)
			<-releaseFirst
			return []domain.LineItem{{ID: "li-stale", UnitPrice: 1_000, Quantity: 1}}, nil
		}
		return []domain.LineItem{{ID: "li-fresh", UnitPrice: 2_000, Quantity: 2}}, nil
	}

	done := make(chan error, 1)
	go func() { done <- f.controller.Refresh(ctx, true) }()
	<-firstStarted

	// A forced refetch overtakes the in-flight one and applies first.
	require.NoError(t, f.controller.Refresh(ctx, true))
	require.Len(t, f.store.Snapshot().Items, 1)
	require.Equal(t, "li-fresh", f.store.Snapshot().Items[0].ID)

	close(releaseFirst)
	require.NoError(t, <-done)

	// The slower, older response must not overwrite the newer one.
	snap := f.store.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "li-fresh", snap.Items[0].ID)
}

func TestRefreshShortCircuitsWhenNotForced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	f.gw.fetchFn = func(call int) ([]domain.LineItem, error) {
		if call == 1 {
			close(started)
			<-release
		}
		return []domain.LineItem{}, nil
	}

	go func() { _ = f.controller.Refresh(ctx, true) }()
	<-started

	require.NoError(t, f.controller.Refresh(ctx, false))
	assert.Equal(t, 1, f.gw.fetches(), "unforced refresh joins the in-flight fetch")

	close(release)
}

func TestRefreshAuthExpiredClearsCredentialAndCart(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 2})
	f.identity.authenticated = true
	f.gw.fetchFn = func(int) ([]domain.LineItem, error) {
		return nil, apperrors.Unauthorized("token expired")
	}

	require.NoError(t, f.controller.Refresh(context.Background(), false))

	assert.True(t, f.identity.wasCleared())
	assert.Empty(t, f.store.Snapshot().Items)

	messages := f.notifier.all()
	require.Len(t, messages, 1)
	assert.Equal(t, "Your session has expired.", messages[0])
}

func TestRefreshGuest401IsBenign(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 2})
	f.gw.fetchFn = func(int) ([]domain.LineItem, error) {
		return nil, apperrors.Unauthorized("no guest token yet")
	}

	require.NoError(t, f.controller.Refresh(context.Background(), false))

	assert.False(t, f.identity.wasCleared())
	assert.Len(t, f.store.Snapshot().Items, 1, "guest cart survives a pre-token rejection")
	assert.Empty(t, f.notifier.all())
}

func TestRefreshStaleGuestRejectionIgnoredAfterLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	guestStarted := make(chan struct{})
	releaseGuest := make(chan struct{})
	f.gw.fetchFn = func(call int) ([]domain.LineItem, error) {
		if call == 1 {
			close(guestStarted)
			<-releaseGuest
			return nil, apperrors.Unauthorized("guest token rejected")
		}
		return []domain.LineItem{{ID: "li-1", UnitPrice: 2_000, Quantity: 1}}, nil
	}

	done := make(chan error, 1)
	go func() { done <- f.controller.Refresh(ctx, false) }()
	<-guestStarted

	// The shopper logs in while the guest fetch hangs; the forced refetch
	// applies the authenticated cart first.
	f.identity.setAuthenticated(true)
	require.NoError(t, f.controller.Refresh(ctx, true))
	require.Equal(t, 1, f.quantity(t, "li-1"))

	close(releaseGuest)
	require.NoError(t, <-done)

	assert.False(t, f.identity.wasCleared(), "a stale guest rejection must not clear the new credential")
	assert.Equal(t, 1, f.quantity(t, "li-1"))
	assert.Empty(t, f.notifier.all())
}

func TestRefreshAuthPolicyKeyedToRequestCredential(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 2})
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	f.gw.fetchFn = func(int) ([]domain.LineItem, error) {
		close(started)
		<-release
		return nil, apperrors.Unauthorized("no guest token yet")
	}

	done := make(chan error, 1)
	go func() { done <- f.controller.Refresh(ctx, false) }()
	<-started

	// Logging in mid-flight must not reinterpret the guest fetch's rejection
	// as an expired authenticated session.
	f.identity.setAuthenticated(true)
	close(release)
	require.NoError(t, <-done)

	assert.False(t, f.identity.wasCleared())
	assert.Len(t, f.store.Snapshot().Items, 1)
	assert.Empty(t, f.notifier.all())
}

func TestRefreshOtherErrorsPropagate(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 2})
	f.gw.fetchFn = func(int) ([]domain.LineItem, error) {
		return nil, errors.New("connection reset")
	}

	err := f.controller.Refresh(context.Background(), false)
	require.Error(t, err)
	assert.Len(t, f.store.Snapshot().Items, 1, "local cart survives a failed fetch")
}

func TestClearEmptiesAndDispatchesRemovals(t *testing.T) {
	f := newFixture(t,
		domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 2},
		domain.LineItem{ID: "li-2", UnitPrice: 2_000, Quantity: 1},
	)
	ctx := context.Background()

	// A pending edit must be canceled, not flushed after the clear.
	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 9))

	f.controller.Clear(ctx)

	assert.Empty(t, f.store.Snapshot().Items)
	eventually(t, func() bool { return len(f.gw.removes()) == 2 }, "per-item removals never dispatched")

	time.Sleep(3 * testDebounce)
	assert.Empty(t, f.gw.updates(), "pending edits must not survive a clear")
	assert.ElementsMatch(t, []string{"li-1", "li-2"}, f.gw.removes())
}

func TestCompleteOrderResetsLocalCartOnly(t *testing.T) {
	f := newFixture(t, domain.LineItem{ID: "li-1", UnitPrice: 1_000, Quantity: 2})

	f.controller.CompleteOrder(context.Background())

	snap := f.controller.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, domain.Totals{}, snap.Totals)

	time.Sleep(2 * testDebounce)
	assert.Empty(t, f.gw.removes(), "the backend already consumed its cart at checkout")
}

// End-to-end: add, add again (server merges), then remove, checking totals at
// every stage.
func TestAddMergeRemoveScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flatRate := domain.DefaultShippingPolicy.FlatRate

	// The server owns the merge: repeated adds of the same product come back
	// as one line item with the summed quantity.
	serverQty := 0
	f.gw.addFn = func(productID string, quantity int) error {
		serverQty += quantity
		return nil
	}
	f.gw.fetchFn = func(int) ([]domain.LineItem, error) {
		if serverQty == 0 {
			return []domain.LineItem{}, nil
		}
		return []domain.LineItem{
			{ID: "li-a", ProductID: "p-a", UnitPrice: 10_000, Quantity: serverQty},
		}, nil
	}

	require.NoError(t, f.controller.Add(ctx, "p-a", 1))
	snap := f.controller.Snapshot()
	require.Equal(t, int64(10_000), snap.Totals.Subtotal)
	require.Equal(t, flatRate, snap.Totals.ShippingCost)
	require.Equal(t, int64(10_000)+flatRate, snap.Totals.GrandTotal)

	require.NoError(t, f.controller.Add(ctx, "p-a", 2))
	snap = f.controller.Snapshot()
	require.Len(t, snap.Items, 1, "the server merge yields a single line item")
	require.Equal(t, 3, snap.Items[0].Quantity)
	require.Equal(t, int64(30_000), snap.Totals.Subtotal)

	require.NoError(t, f.controller.Remove(ctx, "li-a"))
	eventually(t, func() bool { return len(f.gw.removes()) == 1 }, "removal never dispatched")
	snap = f.controller.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, domain.Totals{}, snap.Totals)
}

// End-to-end: an interleaved edit session settles on the server-confirmed state.
func TestEditSessionSettles(t *testing.T) {
	f := newFixture(t,
		domain.LineItem{ID: "li-1", ProductID: "p-1", UnitPrice: 10_000, Quantity: 1},
		domain.LineItem{ID: "li-2", ProductID: "p-2", UnitPrice: 5_000, Quantity: 2},
	)
	f.gw.updateFn = func(lineItemID string, quantity int) (domain.LineItem, error) {
		return domain.LineItem{ID: lineItemID, ProductID: "p-1", UnitPrice: 10_000, Quantity: quantity}, nil
	}
	ctx := context.Background()

	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 2))
	require.NoError(t, f.controller.QuantityChange(ctx, "li-1", 3))
	require.NoError(t, f.controller.Remove(ctx, "li-2"))

	eventually(t, func() bool {
		return len(f.gw.updates()) == 1 && len(f.gw.removes()) == 1
	}, "edit session never settled")
	time.Sleep(3 * testDebounce)

	snap := f.controller.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "li-1", snap.Items[0].ID)
	assert.Equal(t, 3, snap.Items[0].Quantity)
	assert.Equal(t, updateCall{"li-1", 3}, f.gw.updates()[0])
	assert.Equal(t, int64(30_000), snap.Totals.Subtotal)
	assert.Empty(t, f.notifier.all())
}
