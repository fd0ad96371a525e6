package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/condorshop/storefront/internal/domain"
)

// Persister is the durable side of a cart store. Only the raw line items are
// ever written; derived totals are recomputed on load and never trusted from
// storage. The owner key is bound at construction.
type Persister interface {
	// Load returns the raw persisted records, or an empty slice when no cart
	// has been persisted for this owner.
	Load(ctx context.Context) ([]json.RawMessage, error)

	// Save overwrites the persisted line items for this owner.
	Save(ctx context.Context, items []domain.LineItem) error

	// Delete removes the persisted record for this owner.
	Delete(ctx context.Context) error
}

// CartStore holds the locally known line items of one cart together with
// their derived totals. Every mutation recomputes totals and persists the
// items under the same lock, so a reader can never observe items and totals
// from different generations.
type CartStore struct {
	mu        sync.RWMutex
	items     []domain.LineItem
	totals    domain.Totals
	policy    domain.ShippingPolicy
	persister Persister
	logger    *slog.Logger
}

// New creates a cart store with the given shipping policy and persister.
// The persister may be nil for a purely in-memory store (tests).
func New(policy domain.ShippingPolicy, persister Persister, logger *slog.Logger) *CartStore {
	return &CartStore{
		items:     []domain.LineItem{},
		policy:    policy,
		persister: persister,
		logger:    logger,
	}
}

// Load restores the persisted line items, filtering out anything that fails
// the schema migration. A missing or unreadable persisted cart yields an
// empty cart, not an error.
func (s *CartStore) Load(ctx context.Context) {
	if s.persister == nil {
		return
	}

	raw, err := s.persister.Load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "persisted cart unreadable, starting empty",
			slog.String("error", err.Error()),
		)
		raw = nil
	}

	items := MigrateItems(raw)
	if dropped := len(raw) - len(items); dropped > 0 {
		s.logger.InfoContext(ctx, "dropped malformed persisted cart items",
			slog.Int("dropped", dropped),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.totals = domain.ComputeTotals(s.items, s.policy)
}

// SetItems replaces the full item set, for example after a full fetch or
// after order completion (with an empty set). A nil slice is coerced to
// empty; it never fails.
func (s *CartStore) SetItems(ctx context.Context, items []domain.LineItem) {
	if items == nil {
		items = []domain.LineItem{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]domain.LineItem, len(items))
	copy(s.items, items)
	s.recomputeAndPersist(ctx)
}

// AddOrMerge merges by line-item ID: an existing item's quantity is increased
// by the incoming quantity, otherwise the item is appended.
func (s *CartStore) AddOrMerge(ctx context.Context, item domain.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(item.ID); i >= 0 {
		s.items[i].Quantity += item.Quantity
	} else {
		s.items = append(s.items, item)
	}
	s.recomputeAndPersist(ctx)
}

// UpdateQuantity sets the quantity of the item with the given line-item ID.
// A quantity of zero or less removes the item. Matching is by line-item ID
// only; two items referencing the same product never alias each other.
// Returns false when no item with that ID exists.
func (s *CartStore) UpdateQuantity(ctx context.Context, lineItemID string, quantity int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(lineItemID)
	if i < 0 {
		return false
	}

	if quantity <= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	} else {
		s.items[i].Quantity = quantity
	}
	s.recomputeAndPersist(ctx)
	return true
}

// Remove deletes the item by exact line-item ID. Removing an absent item is a
// no-op, not an error.
func (s *CartStore) Remove(ctx context.Context, lineItemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(lineItemID)
	if i < 0 {
		return false
	}

	s.items = append(s.items[:i], s.items[i+1:]...)
	s.recomputeAndPersist(ctx)
	return true
}

// Restore re-inserts a previously captured item. This is the compensating
// action for a failed remote removal; it must not go through UpdateQuantity
// because the item no longer exists locally.
func (s *CartStore) Restore(ctx context.Context, item domain.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(item.ID) >= 0 {
		return
	}
	s.items = append(s.items, item)
	s.recomputeAndPersist(ctx)
}

// Reconcile overwrites the optimistic fields of the matching local item with
// server-confirmed values, leaving all other items untouched. Returns false
// when the item no longer exists locally, in which case the authoritative
// response is discarded rather than reviving the item.
func (s *CartStore) Reconcile(ctx context.Context, authoritative domain.LineItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(authoritative.ID)
	if i < 0 {
		return false
	}

	s.items[i].Quantity = authoritative.Quantity
	s.items[i].UnitPrice = authoritative.UnitPrice
	s.items[i].OriginalPrice = authoritative.OriginalPrice
	if authoritative.Stock != 0 {
		s.items[i].Stock = authoritative.Stock
	}
	s.recomputeAndPersist(ctx)
	return true
}

// Clear empties the cart, resets totals to zero, and drops the persisted
// record. Used on logout and after order confirmation.
func (s *CartStore) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = []domain.LineItem{}
	s.totals = domain.Totals{}

	if s.persister != nil {
		if err := s.persister.Delete(ctx); err != nil {
			s.logger.WarnContext(ctx, "failed to drop persisted cart",
				slog.String("error", err.Error()),
			)
		}
	}
}

// Snapshot returns a copy of the items and the totals derived from exactly
// those items.
func (s *CartStore) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.LineItem, len(s.items))
	copy(items, s.items)
	return domain.Snapshot{Items: items, Totals: s.totals}
}

// ItemCount returns the sum of quantities. It never panics; non-positive
// quantities from corrupted state count as zero.
func (s *CartStore) ItemCount() int {
	return s.Snapshot().ItemCount()
}

// Item returns a copy of the item with the given line-item ID.
func (s *CartStore) Item(lineItemID string) (domain.LineItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(lineItemID); i >= 0 {
		return s.items[i], true
	}
	return domain.LineItem{}, false
}

// Quantity returns the current quantity of the item with the given ID.
func (s *CartStore) Quantity(lineItemID string) (int, bool) {
	item, ok := s.Item(lineItemID)
	return item.Quantity, ok
}

// indexOf returns the index of the item with the given line-item ID, or -1.
// Callers must hold the lock.
func (s *CartStore) indexOf(lineItemID string) int {
	for i := range s.items {
		if s.items[i].ID == lineItemID {
			return i
		}
	}
	return -1
}

// recomputeAndPersist refreshes the derived totals and writes the raw items
// through the persister. Persistence is best effort: a write failure is
// logged and the in-memory state stays authoritative. Callers must hold the
// lock.
func (s *CartStore) recomputeAndPersist(ctx context.Context) {
	s.totals = domain.ComputeTotals(s.items, s.policy)

	if s.persister == nil {
		return
	}
	if err := s.persister.Save(ctx, s.items); err != nil {
		s.logger.WarnContext(ctx, "failed to persist cart items",
			slog.String("error", err.Error()),
		)
	}
}
