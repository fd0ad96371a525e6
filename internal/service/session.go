package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/condorshop/storefront/internal/domain"
	"github.com/condorshop/storefront/internal/event"
	"github.com/condorshop/storefront/internal/gateway"
	"github.com/condorshop/storefront/internal/session"
	"github.com/condorshop/storefront/internal/store"
	cartsync "github.com/condorshop/storefront/internal/sync"
)

// maxBufferedNotices bounds the per-session notice queue; older notices are
// dropped first.
const maxBufferedNotices = 10

// NoticeBuffer collects user-visible notifications between requests. They are
// drained onto the next cart response as transient, non-blocking notices.
type NoticeBuffer struct {
	mu      sync.Mutex
	notices []string
}

// Notify implements sync.Notifier.
func (b *NoticeBuffer) Notify(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.notices) >= maxBufferedNotices {
		b.notices = b.notices[1:]
	}
	b.notices = append(b.notices, message)
}

// Drain returns and clears the accumulated notices.
func (b *NoticeBuffer) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	return out
}

// ShopperSession aggregates one shopper's cart engine: the local store, the
// identity resolver, and the sync controller, wired to a credential-aware
// backend gateway. Sessions are constructed by the Manager and torn down on
// idle eviction; there are no package-level singletons.
type ShopperSession struct {
	ID         string
	Store      *store.CartStore
	Resolver   *session.Resolver
	Controller *cartsync.Controller
	Gateway    gateway.StorefrontGateway
	Notices    *NoticeBuffer

	events *event.Producer
	logger *slog.Logger

	mu       sync.Mutex
	lastSeen time.Time
}

// touch records activity for idle eviction.
func (s *ShopperSession) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *ShopperSession) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Login authenticates the session with a backend-issued token. The identity
// transition fires a forced cart refetch through the resolver hook.
func (s *ShopperSession) Login(token string) error {
	return s.Resolver.Login(token)
}

// Logout drops the credential, clears the local cart, and lets the identity
// hook re-establish the guest cart.
func (s *ShopperSession) Logout(ctx context.Context) {
	s.Store.Clear(ctx)
	s.Resolver.Logout()
}

// Checkout places an order from the server-side cart. On success the local
// cart is reset; the backend has already consumed its copy.
func (s *ShopperSession) Checkout(ctx context.Context) (domain.Order, error) {
	order, err := s.Gateway.Checkout(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("checkout: %w", err)
	}

	s.Controller.CompleteOrder(ctx)
	if s.events != nil {
		s.events.OrderPlaced(ctx, order)
	}

	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.Int64("total", order.Total),
	)
	return order, nil
}
